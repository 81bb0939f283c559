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

package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/expression"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

func remoteLeaf(onions ...onion.Onion) *RemoteSql {
	desc := make(TupleDesc, len(onions))
	for i, o := range onions {
		desc[i] = PosDesc{Onion: o}
	}
	stmt := &sql.SelectStmt{
		Projections: []sql.SelectProjection{&sql.ExprProjection{Expr: expression.NewFieldIdent("", "a")}},
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t$enc"}},
	}
	return NewRemoteSql(stmt, desc, nil)
}

func TestLocalDecryptTupleDesc(t *testing.T) {
	require := require.New(t)

	leaf := remoteLeaf(onion.DET, onion.OPE, onion.PLAIN)
	d := NewLocalDecrypt([]int{0, 1}, leaf)

	desc := d.TupleDesc()
	require.Equal(onion.PLAIN, desc[0].Onion)
	require.Equal(onion.PLAIN, desc[1].Onion)
	require.Equal(onion.PLAIN, desc[2].Onion)
	require.True(desc.AllPlain())
	// The leaf descriptor is untouched.
	require.Equal(onion.DET, leaf.TupleDesc()[0].Onion)
}

func TestLocalEncryptTupleDesc(t *testing.T) {
	require := require.New(t)

	leaf := remoteLeaf(onion.PLAIN, onion.PLAIN)
	e := NewLocalEncrypt([]EncryptPos{{Pos: 1, Onion: onion.DET}}, leaf)

	desc := e.TupleDesc()
	require.Equal(onion.PLAIN, desc[0].Onion)
	require.Equal(onion.DET, desc[1].Onion)
	require.Equal([]int{1}, desc.EncryptedPositions())
}

func TestLocalTransformTupleDesc(t *testing.T) {
	require := require.New(t)

	leaf := remoteLeaf(onion.DET, onion.OPE)
	tr := NewLocalTransform([]TransformOp{
		PassThrough(1),
		ComputedOp(expression.NewTuplePosition(0), PosDesc{Onion: onion.PLAIN}),
	}, leaf)

	desc := tr.TupleDesc()
	require.Len(desc, 2)
	require.Equal(onion.OPE, desc[0].Onion)
	require.Equal(onion.PLAIN, desc[1].Onion)
	require.Equal("[Left(1), Right(col0)]", tr.opsString())
}

func TestFilterPreservesDesc(t *testing.T) {
	require := require.New(t)

	leaf := remoteLeaf(onion.DET)
	f := NewLocalFilter(
		expression.NewGreaterThan(expression.NewTuplePosition(0), expression.NewLiteral(int64(3), sql.Int64)),
		nil, leaf, nil)

	require.Equal(leaf.TupleDesc(), f.TupleDesc())
	require.Equal([]Node{leaf}, f.Children())
}

func TestMergeConjunctionsRemapsSlots(t *testing.T) {
	require := require.New(t)

	aField := expression.NewFieldIdent("", "a")
	bField := expression.NewFieldIdent("", "b")
	aServer := expression.NewFieldIdent("t$enc", "a$DET")
	bServer := expression.NewFieldIdent("t$enc", "b$DET")

	left := &ClientComputation{
		Expr:     expression.NewEquals(expression.NewProjectionPlaceholder(0), expression.NewLiteral(int64(1), sql.Int64)),
		OrigExpr: expression.NewEquals(aField, expression.NewLiteral(int64(1), sql.Int64)),
	}
	left.AddProjection(&ClientProjection{Orig: aField, Server: aServer, Onion: onion.OnionType{Onion: onion.DET}})

	// The right conjunct reads b (its slot 0) and a (its slot 1): the
	// shared a-projection must collapse onto the left's slot.
	right := &ClientComputation{
		Expr: expression.NewGreaterThan(expression.NewProjectionPlaceholder(0), expression.NewProjectionPlaceholder(1)),
		OrigExpr: expression.NewGreaterThan(bField, aField),
	}
	right.AddProjection(&ClientProjection{Orig: bField, Server: bServer, Onion: onion.OnionType{Onion: onion.DET}})
	right.AddProjection(&ClientProjection{Orig: aField, Server: aServer, Onion: onion.OnionType{Onion: onion.DET}})

	merged, err := MergeConjunctions(left, right)
	require.NoError(err)
	require.Len(merged.Projections, 2)
	require.Equal("((proj$0 = 1) AND (proj$1 > proj$0))", merged.Expr.String())
}

func TestMkSqlExpr(t *testing.T) {
	require := require.New(t)

	comp := &ClientComputation{
		Expr: expression.NewGreaterThan(
			expression.NewFunctionCall("f", expression.NewProjectionPlaceholder(0)),
			expression.NewLiteral(int64(3), sql.Int64)),
	}
	comp.AddProjection(&ClientProjection{
		Orig:   expression.NewFieldIdent("", "a"),
		Server: expression.NewFieldIdent("t$enc", "a$DET"),
		Onion:  onion.OnionType{Onion: onion.DET},
	})

	out, err := comp.MkSqlExpr(func(i int) int { return 4 })
	require.NoError(err)
	require.Equal("(f(col4) > 3)", out.String())
}

func TestPlanStringTree(t *testing.T) {
	require := require.New(t)

	leaf := remoteLeaf(onion.DET)
	p := NewLocalTransform(
		[]TransformOp{PassThrough(0)},
		NewLocalDecrypt([]int{0}, leaf),
	)

	s := p.String()
	require.Contains(s, "LocalTransform([Left(0)])")
	require.Contains(s, "LocalDecrypt([0])")
	require.Contains(s, "RemoteSql(SELECT a FROM t$enc)")
}
