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

package planbuilder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/expression"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
	"github.com/liuyi1112/monomi-optimizer/sql/plan"
)

func tableScope(defns sql.Definitions, tables ...string) *sql.Scope {
	root := sql.NewRootScope(defns, nil)
	s := sql.NewScope(root)
	for _, t := range tables {
		s.AddRelation(t, &sql.TableRelation{TableName: t})
	}
	return s
}

func field(s *sql.Scope, name string) *expression.FieldIdent {
	syms := s.LookupColumn("", name, false)
	if len(syms) == 0 {
		panic("no symbol for " + name)
	}
	return expression.NewBoundField("", name, syms[0])
}

func projs(exprs ...sql.Expression) []sql.SelectProjection {
	out := make([]sql.SelectProjection, len(exprs))
	for i, e := range exprs {
		out[i] = &sql.ExprProjection{Expr: e}
	}
	return out
}

// SELECT SUM(l_extendedprice * (1 - l_discount)) FROM lineitem
// WHERE l_shipdate < '1998-09-01', with the revenue expression packed in a
// HOM group and l_shipdate under OPE.
func TestPackedHomSum(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"lineitem": {
		{Name: "l_extendedprice", Type: sql.Decimal},
		{Name: "l_discount", Type: sql.Decimal},
		{Name: "l_quantity", Type: sql.Decimal},
		{Name: "l_shipdate", Type: sql.Date},
	}}
	s := tableScope(defns, "lineitem")

	revenue := expression.NewMult(
		expression.NewFieldIdent("", "l_extendedprice"),
		expression.NewMinus(
			expression.NewLiteral(int64(1), sql.Int64),
			expression.NewFieldIdent("", "l_discount")))

	os := onion.NewSet()
	os.AddPackedHOMGroup("lineitem", expression.NewFieldIdent("", "l_quantity"), revenue)
	os.Add("lineitem", expression.NewFieldIdent("", "l_shipdate"), onion.OPE)

	stmt := &sql.SelectStmt{
		Projections: projs(expression.NewSum(expression.NewMult(
			field(s, "l_extendedprice"),
			expression.NewMinus(expression.NewLiteral(int64(1), sql.Int64), field(s, "l_discount"))))),
		Relations: []sql.RelationAST{&sql.TableRelationAST{Name: "lineitem"}},
		Filter: expression.NewLessThan(
			field(s, "l_shipdate"),
			expression.NewLiteral("1998-09-01", sql.Date)),
		Scope: s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	tr, ok := p.(*plan.LocalTransform)
	require.True(ok, "plan root: %s", p)
	require.Len(tr.Ops, 1)
	require.Equal("Right(hom_get_pos(col0, 1))", tr.Ops[0].String())

	dec, ok := tr.Child.(*plan.LocalDecrypt)
	require.True(ok)
	require.Equal([]int{0}, dec.Positions)

	remote, ok := dec.Child.(*plan.RemoteSql)
	require.True(ok)
	require.Equal(
		"SELECT hom_agg(lineitem$enc.rowid, 'lineitem', 0) FROM lineitem$enc"+
			" WHERE (lineitem$enc.l_shipdate$OPE < encrypt('1998-09-01', OPE))",
		remote.Stmt.String())
	require.Equal(onion.HOM, remote.Desc[0].Onion)
	require.NotNil(remote.Desc[0].HomGroup)

	require.True(p.TupleDesc().AllPlain())
}

// SELECT a FROM t ORDER BY a with `a` stored under DET and OPE: the sort
// stays server-side under OPE, the OPE column is projected alongside, and
// the client drops it after decrypting the output.
func TestServerSideOrderByOPE(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	s := tableScope(defns, "t")

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)
	os.Add("t", expression.NewFieldIdent("", "a"), onion.OPE)

	stmt := &sql.SelectStmt{
		Projections: projs(field(s, "a")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		OrderBy:     &sql.OrderBy{Keys: []sql.OrderKey{{Expr: field(s, "a")}}},
		Scope:       s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	tr, ok := p.(*plan.LocalTransform)
	require.True(ok, "plan root: %s", p)
	require.Len(tr.Ops, 1)
	require.Equal("Left(0)", tr.Ops[0].String())

	dec, ok := tr.Child.(*plan.LocalDecrypt)
	require.True(ok)
	require.Equal([]int{0}, dec.Positions)

	remote, ok := dec.Child.(*plan.RemoteSql)
	require.True(ok)
	require.Equal(
		"SELECT t$enc.a$DET, t$enc.a$OPE FROM t$enc ORDER BY t$enc.a$OPE",
		remote.Stmt.String())
}

// SELECT COUNT(*) FROM t WHERE a = 5 AND substr(b,1,2) = 'AB' with both
// conjuncts answerable under DET: the plan is a bare RemoteSql.
func TestFullyServerAnswerable(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {
		{Name: "a", Type: sql.Int64},
		{Name: "b", Type: sql.Text},
	}}
	s := tableScope(defns, "t")

	pre := expression.NewFunctionCall("substr",
		expression.NewFieldIdent("", "b"),
		expression.NewLiteral(int64(1), sql.Int64),
		expression.NewLiteral(int64(2), sql.Int64))

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)
	os.Add("t", pre, onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(expression.NewCountStar()),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Filter: expression.NewAnd(
			expression.NewEquals(field(s, "a"), expression.NewLiteral(int64(5), sql.Int64)),
			expression.NewEquals(
				expression.NewFunctionCall("substr", field(s, "b"),
					expression.NewLiteral(int64(1), sql.Int64),
					expression.NewLiteral(int64(2), sql.Int64)),
				expression.NewLiteral("AB", sql.Text))),
		Scope: s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	remote, ok := p.(*plan.RemoteSql)
	require.True(ok, "plan root: %s", p)
	sqlText := remote.Stmt.String()
	require.Contains(sqlText, "COUNT(*)")
	require.Contains(sqlText, "t$enc.a$DET = encrypt(5, DET)")
	require.Contains(sqlText, "precomp$")
	require.Contains(sqlText, "encrypt('AB', DET)")
	require.True(p.TupleDesc().AllPlain())
}

// SELECT a FROM t WHERE a IN (SELECT MIN(b) FROM u) with both sides
// reachable under OPE: the subselect inlines as nested server SQL.
func TestInlinedSubselect(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{
		"t": {{Name: "a", Type: sql.Int64}},
		"u": {{Name: "b", Type: sql.Int64}},
	}
	outer := tableScope(defns, "t")
	inner := sql.NewScope(outer)
	inner.AddRelation("u", &sql.TableRelation{TableName: "u"})

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)
	os.Add("t", expression.NewFieldIdent("", "a"), onion.OPE)
	os.Add("u", expression.NewFieldIdent("", "b"), onion.OPE)

	sub := &sql.SelectStmt{
		Projections: projs(expression.NewMin(field(inner, "b"))),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "u"}},
		Scope:       inner,
	}

	stmt := &sql.SelectStmt{
		Projections: projs(field(outer, "a")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Filter:      expression.NewIn(field(outer, "a"), expression.NewSubselect(sub)),
		Scope:       outer,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	dec, ok := p.(*plan.LocalDecrypt)
	require.True(ok, "plan root: %s", p)
	remote, ok := dec.Child.(*plan.RemoteSql)
	require.True(ok)
	require.Contains(remote.Stmt.String(),
		"t$enc.a$OPE IN ((SELECT MIN(u$enc.b$OPE) FROM u$enc))")
	require.Empty(remote.Subplans)
}

// SELECT a FROM t WHERE f(a) > 3 with no onion for f(a): the server
// projects a$DET and the client filters.
func TestResidualFilter(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	s := tableScope(defns, "t")

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(field(s, "a")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Filter: expression.NewGreaterThan(
			expression.NewFunctionCall("f", field(s, "a")),
			expression.NewLiteral(int64(3), sql.Int64)),
		Scope: s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	tr, ok := p.(*plan.LocalTransform)
	require.True(ok, "plan root: %s", p)
	require.Equal("Left(0)", tr.Ops[0].String())

	filter, ok := tr.Child.(*plan.LocalFilter)
	require.True(ok)
	require.Equal("(f(col0) > 3)", filter.Expr.String())
	require.Equal(stmt.Filter.String(), filter.OrigExpr.String())

	dec, ok := filter.Child.(*plan.LocalDecrypt)
	require.True(ok)
	require.Equal([]int{0}, dec.Positions)

	remote, ok := dec.Child.(*plan.RemoteSql)
	require.True(ok)
	require.Equal("SELECT t$enc.a$DET FROM t$enc", remote.Stmt.String())
}

// SELECT AVG(x) FROM t GROUP BY k with k under DET and x packed: the
// server groups by k$DET emitting hom_agg and COUNT(*), the client
// divides.
func TestGroupedPackedAvg(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {
		{Name: "x", Type: sql.Decimal},
		{Name: "k", Type: sql.Int64},
	}}
	s := tableScope(defns, "t")

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "k"), onion.DET)
	os.AddPackedHOMGroup("t", expression.NewFieldIdent("", "x"))

	stmt := &sql.SelectStmt{
		Projections: projs(expression.NewAvg(field(s, "x"))),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		GroupBy:     &sql.GroupBy{Keys: []sql.Expression{field(s, "k")}},
		Scope:       s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	tr, ok := p.(*plan.LocalTransform)
	require.True(ok, "plan root: %s", p)
	require.Equal("Right((hom_get_pos(col0, 0) / col1))", tr.Ops[0].String())

	dec, ok := tr.Child.(*plan.LocalDecrypt)
	require.True(ok)
	require.Equal([]int{0}, dec.Positions)

	remote, ok := dec.Child.(*plan.RemoteSql)
	require.True(ok)
	require.Equal(
		"SELECT hom_agg(t$enc.rowid, 't', 0), COUNT(*) FROM t$enc GROUP BY t$enc.k$DET",
		remote.Stmt.String())
}

func TestEncProjContract(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	os := onion.NewSet()

	newStmt := func() *sql.SelectStmt {
		s := tableScope(defns, "t")
		return &sql.SelectStmt{
			Projections: projs(field(s, "a")),
			Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
			Scope:       s,
		}
	}
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)

	// Satisfied in place: a pure RemoteSql.
	p, err := GeneratePlan(newStmt(), os, EncProj{Onions: []onion.Onion{onion.DET}, Require: true})
	require.NoError(err)
	_, ok := p.(*plan.RemoteSql)
	require.True(ok)
	require.Equal(onion.DET, p.TupleDesc()[0].Onion)

	// Unsatisfiable in place: decrypt then re-encrypt to the target.
	p, err = GeneratePlan(newStmt(), os, EncProj{Onions: []onion.Onion{onion.OPE}, Require: true})
	require.NoError(err)
	enc, ok := p.(*plan.LocalEncrypt)
	require.True(ok, "plan root: %s", p)
	require.Equal(onion.OPE, enc.TupleDesc()[0].Onion)
	_, ok = enc.Child.(*plan.LocalDecrypt)
	require.True(ok)

	// Preferred but not required: the DET output stands.
	p, err = GeneratePlan(newStmt(), os, EncProj{Onions: []onion.Onion{onion.OPE}, Require: false})
	require.NoError(err)
	require.Equal(onion.DET, p.TupleDesc()[0].Onion)

	// Width mismatch is a hard error.
	_, err = GeneratePlan(newStmt(), os, EncProj{Onions: []onion.Onion{onion.DET, onion.DET}, Require: true})
	require.True(ErrEncProjWidth.Is(err))
}

func TestGroupKeyInfeasible(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {
		{Name: "x", Type: sql.Int64},
		{Name: "k", Type: sql.Int64},
	}}
	s := tableScope(defns, "t")

	// k has no comparable onion at all.
	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "x"), onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(field(s, "x")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		GroupBy:     &sql.GroupBy{Keys: []sql.Expression{field(s, "k")}},
		Scope:       s,
	}

	_, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.True(ErrGroupKeyInfeasible.Is(err))
}

func TestWildcardRejected(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	s := tableScope(defns, "t")
	os := onion.NewSet()
	os.Complete(defns)

	stmt := &sql.SelectStmt{
		Projections: []sql.SelectProjection{&sql.StarProjection{}},
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Scope:       s,
	}

	_, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.True(sql.ErrWildcardNotSupported.Is(err))
}

// WHERE EXISTS over a correlated subquery whose filter is answerable
// under DET stays wholly server-side.
func TestServerSideCorrelatedExists(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{
		"t": {{Name: "a", Type: sql.Int64}, {Name: "b", Type: sql.Int64}},
		"u": {{Name: "c", Type: sql.Int64}},
	}
	outer := tableScope(defns, "t")
	inner := sql.NewScope(outer)
	inner.AddRelation("u", &sql.TableRelation{TableName: "u"})

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)
	os.Add("t", expression.NewFieldIdent("", "b"), onion.DET)
	os.Add("u", expression.NewFieldIdent("", "c"), onion.DET)

	bOuter := expression.NewBoundField("t", "b", outer.LookupColumn("t", "b", false)[0])
	sub := &sql.SelectStmt{
		Projections: projs(expression.NewLiteral(int64(1), sql.Int64)),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "u"}},
		Filter:      expression.NewEquals(field(inner, "c"), bOuter),
		Scope:       inner,
	}

	stmt := &sql.SelectStmt{
		Projections: projs(field(outer, "a")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Filter:      expression.NewExists(expression.NewSubselect(sub)),
		Scope:       outer,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	dec, ok := p.(*plan.LocalDecrypt)
	require.True(ok, "plan root: %s", p)
	remote, ok := dec.Child.(*plan.RemoteSql)
	require.True(ok)
	sqlText := remote.Stmt.String()
	require.Contains(sqlText, "EXISTS (SELECT 1 FROM u$enc WHERE (u$enc.c$DET = t$enc.b$DET))")
}

// A residual comparison against a correlated subselect: the outer
// reference is shipped as a bound placeholder and the subplan rides along
// with the local filter.
func TestResidualCorrelatedSubquery(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{
		"t": {{Name: "a", Type: sql.Int64}, {Name: "b", Type: sql.Int64}},
		"u": {{Name: "a", Type: sql.Int64}, {Name: "c", Type: sql.Int64}},
	}
	outer := tableScope(defns, "t")
	inner := sql.NewScope(outer)
	inner.AddRelation("u", &sql.TableRelation{TableName: "u"})

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)
	os.Add("t", expression.NewFieldIdent("", "b"), onion.DET)
	os.Add("u", expression.NewFieldIdent("", "a"), onion.DET)
	os.Add("u", expression.NewFieldIdent("", "c"), onion.OPE)

	bOuter := expression.NewBoundField("t", "b", outer.LookupColumn("t", "b", false)[0])
	sub := &sql.SelectStmt{
		Projections: projs(expression.NewMin(field(inner, "c"))),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "u"}},
		Filter:      expression.NewEquals(field(inner, "a"), bOuter),
		Scope:       inner,
	}

	stmt := &sql.SelectStmt{
		Projections: projs(field(outer, "a")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Filter: expression.NewGreaterThan(
			expression.NewFunctionCall("g", field(outer, "a")),
			expression.NewSubselect(sub)),
		Scope: outer,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	tr, ok := p.(*plan.LocalTransform)
	require.True(ok, "plan root: %s", p)
	filter, ok := tr.Child.(*plan.LocalFilter)
	require.True(ok)
	require.Contains(filter.Expr.String(), "subquery$0")
	require.Len(filter.Subplans, 1)

	subRemote := findRemote(filter.Subplans[0])
	require.NotNil(subRemote)
	require.Contains(subRemote.Stmt.String(), ":dep0$DET")
}

// A residual HAVING ships non-key fields as GROUP_CONCAT vectors.
func TestResidualHavingVector(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {
		{Name: "x", Type: sql.Int64},
		{Name: "k", Type: sql.Int64},
	}}
	s := tableScope(defns, "t")

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "x"), onion.DET)
	os.Add("t", expression.NewFieldIdent("", "k"), onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(field(s, "k")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		GroupBy: &sql.GroupBy{
			Keys: []sql.Expression{field(s, "k")},
			Having: expression.NewGreaterThan(
				expression.NewFunctionCall("g", expression.NewSum(field(s, "x"))),
				expression.NewLiteral(int64(1), sql.Int64)),
		},
		Scope: s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	// The having residual claims the leading slot; the k projection
	// follows it and the transform re-selects it.
	tr, ok := p.(*plan.LocalTransform)
	require.True(ok, "plan root: %s", p)
	require.Equal("Left(1)", tr.Ops[0].String())
	outDec, ok := tr.Child.(*plan.LocalDecrypt)
	require.True(ok)
	require.Equal([]int{1}, outDec.Positions)
	gf, ok := outDec.Child.(*plan.LocalGroupFilter)
	require.True(ok)
	require.Contains(gf.Expr.String(), "SUM(col0)")

	remote := findRemote(gf)
	require.NotNil(remote)
	require.Contains(remote.Stmt.String(), "GROUP_CONCAT(t$enc.x$DET, ',')")

	vectorPos := remote.Desc[0]
	require.True(vectorPos.VectorCtx)
}

// A client-computed ORDER BY key is materialized by a transform, sorted,
// and projected away.
func TestResidualOrderByComputedKey(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	s := tableScope(defns, "t")

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(field(s, "a")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		OrderBy: &sql.OrderBy{Keys: []sql.OrderKey{{
			Expr: expression.NewFunctionCall("f", field(s, "a")),
			Desc: true,
		}}},
		Limit: &sql.Limit{Count: 10},
		Scope: s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	// The limit cannot push to the server past a client sort.
	limit, ok := p.(*plan.LocalLimit)
	require.True(ok, "plan root: %s", p)
	require.Equal(int64(10), limit.N)

	final, ok := limit.Child.(*plan.LocalTransform)
	require.True(ok)
	require.Len(final.Ops, 1)
	require.Equal("Left(0)", final.Ops[0].String())

	sortNode, ok := final.Child.(*plan.LocalOrderBy)
	require.True(ok)
	require.Equal(1, sortNode.Keys[0].Pos)
	require.True(sortNode.Keys[0].Desc)

	materialize, ok := sortNode.Child.(*plan.LocalTransform)
	require.True(ok)
	require.Len(materialize.Ops, 2)
	require.Equal("Right(f(col0))", materialize.Ops[1].String())

	remote := findRemote(materialize)
	require.NotNil(remote)
	require.Nil(remote.Stmt.Limit)
}

// A FROM subquery whose plan is a pure RemoteSql inlines as nested server
// SQL, and outer references resolve against its projections.
func TestSubqueryRelationInlined(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	root := sql.NewRootScope(defns, nil)

	subScope := sql.NewScope(root)
	subScope.AddRelation("t", &sql.TableRelation{TableName: "t"})
	aField := field(subScope, "a")
	subScope.AddProjection(&sql.NamedProjection{Name: "a2", Expr: aField, Pos: 0})
	sub := &sql.SelectStmt{
		Projections: []sql.SelectProjection{&sql.ExprProjection{Expr: aField, Alias: "a2"}},
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Scope:       subScope,
	}

	outer := sql.NewScope(root)
	outer.AddRelation("s", &sql.SubqueryRelation{Stmt: sub})

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(field(outer, "a2")),
		Relations:   []sql.RelationAST{&sql.SubqueryRelationAST{Stmt: sub, Alias: "s"}},
		Filter: expression.NewEquals(
			field(outer, "a2"),
			expression.NewLiteral(int64(5), sql.Int64)),
		Scope: outer,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	remote := findRemote(p)
	require.NotNil(remote)
	sqlText := remote.Stmt.String()
	require.Contains(sqlText, "FROM (SELECT t$enc.a$DET AS a2 FROM t$enc) AS s")
	require.Contains(sqlText, "(s.a2 = encrypt(5, DET))")
	require.Empty(remote.Subplans)
}

// A FROM subquery that needs client work is materialized under a
// synthetic alias the outer statement references as a table.
func TestSubqueryRelationMaterialized(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "a", Type: sql.Int64}}}
	root := sql.NewRootScope(defns, nil)

	subScope := sql.NewScope(root)
	subScope.AddRelation("t", &sql.TableRelation{TableName: "t"})
	fa := expression.NewFunctionCall("f", field(subScope, "a"))
	subScope.AddProjection(&sql.NamedProjection{Name: "fa", Expr: fa, Pos: 0})
	sub := &sql.SelectStmt{
		Projections: []sql.SelectProjection{&sql.ExprProjection{Expr: fa, Alias: "fa"}},
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Scope:       subScope,
	}

	outer := sql.NewScope(root)
	outer.AddRelation("s", &sql.SubqueryRelation{Stmt: sub})

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "a"), onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(field(outer, "fa")),
		Relations:   []sql.RelationAST{&sql.SubqueryRelationAST{Stmt: sub, Alias: "s"}},
		Scope:       outer,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	remote := findRemote(p)
	require.NotNil(remote)
	require.Len(remote.Subplans, 1)
	mat, ok := remote.Subplans[0].(*plan.RemoteMaterialize)
	require.True(ok)
	require.Contains(mat.Name, "mat$")
	require.Contains(remote.Stmt.String(), "AS s")
}

// The residual filter expression, evaluated over the decrypted tuple it
// consumes, reproduces the original predicate.
func TestResidualSoundness(t *testing.T) {
	require := require.New(t)

	defns := sql.Definitions{"t": {{Name: "b", Type: sql.Text}}}
	s := tableScope(defns, "t")

	os := onion.NewSet()
	os.Add("t", expression.NewFieldIdent("", "b"), onion.DET)

	stmt := &sql.SelectStmt{
		Projections: projs(field(s, "b")),
		Relations:   []sql.RelationAST{&sql.TableRelationAST{Name: "t"}},
		Filter: expression.NewEquals(
			expression.NewFunctionCall("substr", field(s, "b"),
				expression.NewLiteral(int64(1), sql.Int64),
				expression.NewLiteral(int64(2), sql.Int64)),
			expression.NewLiteral("AB", sql.Text)),
		Scope: s,
	}

	p, err := GeneratePlan(stmt, os, PreserveOriginal{})
	require.NoError(err)

	var filter *plan.LocalFilter
	for n := p; n != nil; {
		if f, ok := n.(*plan.LocalFilter); ok {
			filter = f
			break
		}
		children := n.Children()
		if len(children) == 0 {
			break
		}
		n = children[0]
	}
	require.NotNil(filter)

	// Position 0 carries the decrypted b.
	v, err := filter.Expr.Eval(sql.NewRow("ABCDE"), nil)
	require.NoError(err)
	require.Equal(true, v)

	v, err = filter.Expr.Eval(sql.NewRow("XYZ"), nil)
	require.NoError(err)
	require.Equal(false, v)
}

func findRemote(n plan.Node) *plan.RemoteSql {
	if r, ok := n.(*plan.RemoteSql); ok {
		return r
	}
	for _, c := range n.Children() {
		if r := findRemote(c); r != nil {
			return r
		}
	}
	return nil
}
