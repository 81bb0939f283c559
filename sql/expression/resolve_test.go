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

func aliasScope() (*sql.Scope, *FieldIdent) {
	defns := sql.Definitions{
		"t": {{Name: "a", Type: sql.Int64}, {Name: "b", Type: sql.Int64}},
	}
	root := sql.NewRootScope(defns, nil)
	s := sql.NewScope(root)
	s.AddRelation("t", &sql.TableRelation{TableName: "t"})

	aSym := s.LookupColumn("", "a", false)[0]
	bSym := s.LookupColumn("", "b", false)[0]
	defn := NewPlus(
		NewBoundField("", "a", aSym),
		NewBoundField("", "b", bSym),
	)
	s.AddProjection(&sql.NamedProjection{Name: "total", Expr: defn, Pos: 0})

	totalSym := s.LookupColumn("", "total", true)[0]
	return s, NewBoundField("", "total", totalSym)
}

func TestResolveAliasesSubstitutesProjection(t *testing.T) {
	require := require.New(t)

	_, total := aliasScope()
	resolved, err := ResolveAliases(total)
	require.NoError(err)
	require.Equal("(a + b)", resolved.String())
}

func TestResolveAliasesIdempotent(t *testing.T) {
	require := require.New(t)

	_, total := aliasScope()
	e := NewGreaterThan(total, NewLiteral(int64(10), sql.Int64))

	once, err := ResolveAliases(e)
	require.NoError(err)
	twice, err := ResolveAliases(once)
	require.NoError(err)
	require.Equal(once.String(), twice.String())
}

func TestStripQualifiersCanonicalizes(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	root := sql.NewRootScope(defns, nil)
	s := sql.NewScope(root)
	s.AddRelation("t", &sql.TableRelation{TableName: "t"})
	sym := s.LookupColumn("", "a", false)[0]

	e := NewMult(
		NewBoundField("t", "a", sym),
		NewLiteral(int64(2), sql.Int64),
	)
	canon, err := StripQualifiers(e)
	require.NoError(err)
	require.Equal("(a * 2)", canon.String())

	f := canon.(*Arithmetic).Left.(*FieldIdent)
	require.Empty(f.Qualifier)
	require.Nil(f.Symbol)

	// Qualifier-free references canonicalize to the same key.
	bare := NewMult(NewFieldIdent("", "a"), NewLiteral(int64(2), sql.Int64))
	canon2, err := StripQualifiers(bare)
	require.NoError(err)
	require.Equal(canon.String(), canon2.String())
}

func TestFieldsOf(t *testing.T) {
	require := require.New(t)

	e := NewAnd(
		NewEquals(NewFieldIdent("t", "a"), NewLiteral(int64(1), sql.Int64)),
		NewLike(NewFieldIdent("t", "b"), NewLiteral("x%", sql.Text)),
	)
	fields := FieldsOf(e)
	require.Len(fields, 2)
	require.Equal("a", fields[0].FieldName)
	require.Equal("b", fields[1].FieldName)
}
