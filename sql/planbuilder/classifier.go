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
	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/expression"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

// onionable is the canonical precomputable form of an expression: the
// alias it is reachable under in the current scope, the base table whose
// onion set keys the lookup, and the canonical expression key.
type onionable struct {
	Alias string
	Table string
	Canon sql.Expression
}

// findOnionableExpr returns the canonical precomputable form of e iff the
// resolved expression depends on columns of exactly one base table,
// following subquery relations one level. Canonicalization resolves
// aliases, strips field qualifiers, and drops scope bindings.
func findOnionableExpr(e sql.Expression) (*onionable, bool) {
	resolved, err := expression.ResolveAliases(e)
	if err != nil {
		return nil, false
	}

	fields := expression.FieldsOf(resolved)
	if len(fields) == 0 {
		return nil, false
	}

	var alias string
	var scope *sql.Scope
	for _, f := range fields {
		cs, ok := f.Symbol.(*sql.ColumnSymbol)
		if !ok {
			return nil, false
		}
		if alias == "" {
			alias, scope = cs.RelationAlias, cs.Scope
		} else if cs.RelationAlias != alias || cs.Scope != scope {
			return nil, false
		}
	}

	rel, ok := scope.Relation(alias)
	if !ok {
		return nil, false
	}

	switch r := rel.(type) {
	case *sql.TableRelation:
		canon, err := expression.StripQualifiers(resolved)
		if err != nil {
			return nil, false
		}
		return &onionable{Alias: alias, Table: r.TableName, Canon: canon}, true

	case *sql.SubqueryRelation:
		// A single field through a subquery projection stays onionable
		// when the projection itself is; the outer alias is preserved.
		f, ok := resolved.(*expression.FieldIdent)
		if !ok {
			return nil, false
		}
		np, ok := r.Stmt.Scope.NamedProjectionByName(f.FieldName)
		if !ok || np.Expr == nil {
			return nil, false
		}
		inner, ok := findOnionableExpr(np.Expr)
		if !ok {
			return nil, false
		}
		return &onionable{Alias: alias, Table: inner.Table, Canon: inner.Canon}, true
	}
	return nil, false
}

// subqueryColumn resolves a field bound to a subquery relation planned
// earlier: the projection index and the relation plan.
func (g *generator) subqueryColumn(e sql.Expression) (*relPlan, string, int, bool) {
	f, ok := e.(*expression.FieldIdent)
	if !ok {
		return nil, "", 0, false
	}
	cs, ok := f.Symbol.(*sql.ColumnSymbol)
	if !ok {
		return nil, "", 0, false
	}
	rp, ok := g.relPlans[cs.RelationAlias]
	if !ok {
		return nil, "", 0, false
	}
	for i, name := range rp.names {
		if name == f.FieldName {
			return rp, cs.RelationAlias, i, true
		}
	}
	return nil, "", 0, false
}

// getSupportedExpr rewrites e into a server-side expression iff some bit
// of mask matches a stored onion for e's canonical form, or, for
// subquery-column references, the subplan's tuple descriptor onion at the
// corresponding projection index. Literals always succeed.
func (g *generator) getSupportedExpr(e sql.Expression, mask onion.Onion) (sql.Expression, onion.OnionType, bool) {
	if lit, ok := e.(*expression.Literal); ok {
		o := mask.PickOne()
		if o == onion.PLAIN {
			return lit, onion.OnionType{Onion: onion.PLAIN}, true
		}
		return expression.NewEncrypt(lit, o), onion.OnionType{Onion: o}, true
	}

	if rp, alias, idx, ok := g.subqueryColumn(e); ok {
		match := rp.desc[idx].Onion & mask
		if match == 0 {
			return nil, onion.OnionType{}, false
		}
		return expression.NewFieldIdent(alias, rp.names[idx]), rp.desc[idx], true
	}

	oe, ok := findOnionableExpr(e)
	if !ok {
		return nil, onion.OnionType{}, false
	}
	base, stored, ok := g.os.Lookup(oe.Table, oe.Canon)
	if !ok {
		return nil, onion.OnionType{}, false
	}
	match := stored & mask
	if match == 0 {
		return nil, onion.OnionType{}, false
	}
	o := match.PickOne()

	qualifier := oe.Alias
	if qualifier == oe.Table {
		qualifier = EncTblName(oe.Table)
	}
	return expression.NewFieldIdent(qualifier, EncColName(base, o)),
		onion.OnionType{Onion: o}, true
}

// getSupportedExprConstraintAware wraps getSupportedExpr: inside an
// aggregate context a field that is also a group-by key must use the
// key's chosen onion, else it is unprojectable.
func (g *generator) getSupportedExprConstraintAware(e sql.Expression, mask onion.Onion, agg bool) (sql.Expression, onion.OnionType, bool) {
	if agg && g.stmt.GroupBy != nil {
		if _, isField := e.(*expression.FieldIdent); isField {
			if oe, ok := findOnionableExpr(e); ok {
				if chosen, ok := g.groupKeyOnions[onion.Key(oe.Canon)]; ok {
					mask &= chosen
					if mask == 0 {
						return nil, onion.OnionType{}, false
					}
				}
			}
		}
	}
	return g.getSupportedExpr(e, mask)
}

// getSupportedHomRowDescExpr is the HOM_ROW_DESC path: it returns the
// server expression yielding the packed HOM row id plus every candidate
// packed-group position holding e.
func (g *generator) getSupportedHomRowDescExpr(e sql.Expression) (sql.Expression, []onion.HomDesc, bool) {
	oe, ok := findOnionableExpr(e)
	if !ok {
		return nil, nil, false
	}
	descs := g.os.LookupPackedHOM(oe.Table, oe.Canon)
	if len(descs) == 0 {
		return nil, nil, false
	}
	qualifier := oe.Alias
	if qualifier == oe.Table {
		qualifier = EncTblName(oe.Table)
	}
	return expression.NewFieldIdent(qualifier, RowidColumn), descs, true
}

// cryptoConstraint is one onion requirement a candidate onion set must
// satisfy for a subexpression to be answerable server-side.
type cryptoConstraint struct {
	Table string
	Canon sql.Expression
	Onion onion.Onion
	// Packed requests membership in a packed HOM group instead of a
	// standalone onion column.
	Packed bool
	// DemandAlias and DemandName record the field when the constraint
	// arises through a subquery relation column; they drive the EncProj
	// demand vector of the subquery.
	DemandAlias string
	DemandName  string
}

// constraintSet is one alternative way of satisfying an expression.
type constraintSet []cryptoConstraint

func crossMerge(a, b []constraintSet) []constraintSet {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	var out []constraintSet
	for _, x := range a {
		for _, y := range b {
			merged := make(constraintSet, 0, len(x)+len(y))
			merged = append(merged, x...)
			merged = append(merged, y...)
			out = append(out, merged)
		}
	}
	return out
}

// getPotentialCryptoOpts returns the minimal alternative sets of
// (subexpr, onion) constraints sufficient to answer e server-side under
// the allowed onions. Disjunctions of onion choices propagate as multiple
// alternative sets.
func getPotentialCryptoOpts(e sql.Expression, allowed onion.Onion) []constraintSet {
	switch v := e.(type) {
	case *expression.And:
		return crossMerge(getPotentialCryptoOpts(v.Left, onion.PLAIN), getPotentialCryptoOpts(v.Right, onion.PLAIN))
	case *expression.Or:
		return crossMerge(getPotentialCryptoOpts(v.Left, onion.PLAIN), getPotentialCryptoOpts(v.Right, onion.PLAIN))
	case *expression.Not:
		return getPotentialCryptoOpts(v.Child, onion.PLAIN)

	case *expression.Comparison:
		var onions []onion.Onion
		if v.IsEquality() {
			onions = []onion.Onion{onion.DET, onion.OPE}
		} else {
			onions = []onion.Onion{onion.OPE}
		}
		var alts []constraintSet
		for _, o := range onions {
			alts = append(alts, crossMerge(leafConstraints(v.Left, o), leafConstraints(v.Right, o))...)
		}
		return alts

	case *expression.In:
		var alts []constraintSet
		for _, o := range []onion.Onion{onion.DET, onion.OPE} {
			sets := leafConstraints(v.Left, o)
			for _, val := range v.Values {
				sets = crossMerge(sets, leafConstraints(val, o))
			}
			alts = append(alts, sets...)
		}
		return alts

	case *expression.Like:
		return crossMerge(leafConstraints(v.Left, onion.SWP), leafConstraints(v.Right, onion.SWP))

	case *expression.Exists:
		return generateStmtConstraints(v.Query.Stmt)
	case *expression.Subselect:
		return generateStmtConstraints(v.Stmt)

	case *expression.CountStar:
		return nil
	case *expression.Count:
		return leafConstraints(v.Child, onion.DET)
	case *expression.Min:
		return leafConstraints(v.Child, onion.OPE)
	case *expression.Max:
		return leafConstraints(v.Child, onion.OPE)
	case *expression.Sum:
		return packedConstraints(v.Child)
	case *expression.Avg:
		return packedConstraints(v.Child)

	case *expression.Case:
		var sets []constraintSet
		for _, b := range v.Branches {
			sets = crossMerge(sets, getPotentialCryptoOpts(b.Cond, onion.PLAIN))
			sets = crossMerge(sets, leafConstraints(b.Value, allowed))
		}
		if v.Else != nil {
			sets = crossMerge(sets, leafConstraints(v.Else, allowed))
		}
		return sets

	case *expression.Literal, *expression.DependentFieldPlaceholder:
		return nil
	}
	return leafConstraints(e, allowed)
}

// leafConstraints emits the constraint of one onionable subexpression, or
// descends into children when the subexpression spans tables.
func leafConstraints(e sql.Expression, allowed onion.Onion) []constraintSet {
	if _, ok := e.(*expression.Literal); ok {
		return nil
	}
	if oe, ok := findOnionableExpr(e); ok {
		storable := allowed & (onion.DET | onion.OPE | onion.SWP | onion.HOM)
		if storable == 0 {
			storable = onion.DET
		}
		c := cryptoConstraint{Table: oe.Table, Canon: oe.Canon, Onion: storable.PickOne()}
		if f, ok := e.(*expression.FieldIdent); ok {
			if cs, ok := f.Symbol.(*sql.ColumnSymbol); ok {
				if _, isSub := subqueryRelationOf(cs); isSub {
					c.DemandAlias, c.DemandName = cs.RelationAlias, f.FieldName
				}
			}
		}
		return []constraintSet{{c}}
	}
	var sets []constraintSet
	for _, child := range e.Children() {
		sets = crossMerge(sets, getPotentialCryptoOpts(child, allowed))
	}
	return sets
}

// packedConstraints requests HOM_ROW_DESC membership for every onionable
// branch of an aggregate argument.
func packedConstraints(e sql.Expression) []constraintSet {
	var sets []constraintSet
	for _, branch := range branchExprs(e) {
		if _, ok := branch.(*expression.Literal); ok {
			continue
		}
		if oe, ok := findOnionableExpr(branch); ok {
			sets = crossMerge(sets, []constraintSet{{cryptoConstraint{
				Table: oe.Table, Canon: oe.Canon, Onion: onion.HOMRowDesc, Packed: true,
			}}})
		}
	}
	if c, ok := e.(*expression.Case); ok {
		for _, b := range c.Branches {
			sets = crossMerge(sets, getPotentialCryptoOpts(b.Cond, onion.PLAIN))
		}
	}
	return sets
}

// branchExprs returns the value branches of a CaseWhen, or the expression
// itself.
func branchExprs(e sql.Expression) []sql.Expression {
	c, ok := e.(*expression.Case)
	if !ok {
		return []sql.Expression{e}
	}
	var branches []sql.Expression
	for _, b := range c.Branches {
		branches = append(branches, b.Value)
	}
	if c.Else != nil {
		branches = append(branches, c.Else)
	}
	return branches
}

func subqueryRelationOf(cs *sql.ColumnSymbol) (*sql.SubqueryRelation, bool) {
	rel, ok := cs.Scope.Relation(cs.RelationAlias)
	if !ok {
		return nil, false
	}
	sr, ok := rel.(*sql.SubqueryRelation)
	return sr, ok
}
