// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expression

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liuyi1112/monomi-optimizer/sql"
)

func TestWalk(t *testing.T) {
	lit1 := NewLiteral(int64(1), sql.Int64)
	lit2 := NewLiteral(int64(2), sql.Int64)
	col := NewFieldIdent("", "foo")
	fn := NewFunctionCall("bar", lit1, lit2)
	and := NewAnd(col, fn)
	e := NewNot(and)

	var f visitor
	var visited []sql.Expression
	f = func(node sql.Expression) sql.Visitor {
		visited = append(visited, node)
		return f
	}

	sql.Walk(f, e)

	require.Equal(t,
		[]sql.Expression{e, and, col, fn, lit1, lit2},
		visited,
	)

	visited = nil
	f = func(node sql.Expression) sql.Visitor {
		visited = append(visited, node)
		if _, ok := node.(*FunctionCall); ok {
			return nil
		}
		return f
	}

	sql.Walk(f, e)

	require.Equal(t,
		[]sql.Expression{e, and, col, fn},
		visited,
	)
}

type visitor func(sql.Expression) sql.Visitor

func (f visitor) Visit(n sql.Expression) sql.Visitor {
	return f(n)
}

func TestInspect(t *testing.T) {
	require := require.New(t)

	e := NewAnd(
		NewEquals(NewFieldIdent("", "a"), NewLiteral(int64(5), sql.Int64)),
		NewGreaterThan(NewFieldIdent("", "b"), NewLiteral(int64(3), sql.Int64)),
	)

	var fields int
	sql.Inspect(e, func(n sql.Expression) bool {
		if _, ok := n.(*FieldIdent); ok {
			fields++
		}
		return true
	})
	require.Equal(2, fields)
}

func TestTransformUpRebuildsChangedPaths(t *testing.T) {
	require := require.New(t)

	a := NewFieldIdent("", "a")
	b := NewFieldIdent("", "b")
	e := NewPlus(a, b)

	out, err := sql.TransformUp(e, func(n sql.Expression) (sql.Expression, error) {
		if f, ok := n.(*FieldIdent); ok && f.FieldName == "a" {
			return NewLiteral(int64(7), sql.Int64), nil
		}
		return n, nil
	})
	require.NoError(err)
	require.Equal("(7 + b)", out.String())
	// Unchanged subtrees are shared, not copied.
	require.Same(b, out.(*Arithmetic).Right)
	require.Equal("(a + b)", e.String())
}

func TestTransformDownStopsDescending(t *testing.T) {
	require := require.New(t)

	inner := NewPlus(NewFieldIdent("", "a"), NewFieldIdent("", "b"))
	e := NewNot(NewGreaterThan(inner, NewLiteral(int64(0), sql.Int64)))

	var seen []string
	out, err := sql.TransformDown(e, func(n sql.Expression) (sql.Expression, bool, error) {
		seen = append(seen, n.String())
		if _, ok := n.(*Arithmetic); ok {
			return NewTuplePosition(0), false, nil
		}
		return n, true, nil
	})
	require.NoError(err)
	require.Equal("NOT ((col0 > 0))", out.String())
	// The replaced subtree's children are never visited.
	require.NotContains(seen, "a")
	require.NotContains(seen, "b")
}

func TestSplitAndJoinConjunction(t *testing.T) {
	require := require.New(t)

	a := NewEquals(NewFieldIdent("", "a"), NewLiteral(int64(1), sql.Int64))
	b := NewGreaterThan(NewFieldIdent("", "b"), NewLiteral(int64(2), sql.Int64))
	c := NewLike(NewFieldIdent("", "c"), NewLiteral("x%", sql.Text))

	e := NewAnd(NewAnd(a, b), c)
	conjuncts := SplitConjunction(e)
	require.Len(conjuncts, 3)

	refolded := JoinAnd(conjuncts...)
	require.Equal(e.String(), refolded.String())

	require.Nil(JoinAnd())
	require.Equal(a, JoinAnd(a))
}
