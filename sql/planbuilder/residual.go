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
	"sort"

	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/expression"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
	"github.com/liuyi1112/monomi-optimizer/sql/plan"
)

// buildClientComputation constructs the residual client work for an
// expression the server rewrite bailed out on: plan embedded subqueries,
// apply local optimizations, then project the fields the remaining client
// expression reads.
func (g *generator) buildClientComputation(e sql.Expression, rctx rewriteCtx) (*plan.ClientComputation, error) {
	comp := &plan.ClientComputation{OrigExpr: e}

	expr, err := g.liftSubqueries(e, comp)
	if err != nil {
		return nil, err
	}

	expr, err = g.applyOptimizations(expr, rctx, comp)
	if err != nil {
		return nil, err
	}

	expr, err = g.projectClientFields(expr, rctx, comp)
	if err != nil {
		return nil, err
	}

	comp.Expr = expr
	return comp, nil
}

// liftSubqueries plans every embedded subselect (Exists under
// PreserveCardinality, others under PreserveOriginal), rewriting outer
// references as positional placeholders, and replaces each node with a
// reference into the computation's subquery list.
func (g *generator) liftSubqueries(e sql.Expression, comp *plan.ClientComputation) (sql.Expression, error) {
	return sql.TransformUp(e, func(n sql.Expression) (sql.Expression, error) {
		switch v := n.(type) {
		case *expression.Exists:
			idx, err := g.liftOneSubquery(v, v.Query.Stmt, PreserveCardinality{}, comp)
			if err != nil {
				return nil, err
			}
			return expression.NewExistsSubqueryPosition(idx), nil
		case *expression.Subselect:
			idx, err := g.liftOneSubquery(v, v.Stmt, PreserveOriginal{}, comp)
			if err != nil {
				return nil, err
			}
			return expression.NewSubqueryPosition(idx), nil
		}
		return n, nil
	})
}

func (g *generator) liftOneSubquery(node sql.Expression, stmt *sql.SelectStmt, ec EncContext, comp *plan.ClientComputation) (int, error) {
	rewritten, pairs, err := g.rewriteOuterReferences(stmt)
	if err != nil {
		return 0, err
	}

	subPlan, err := generate(rewritten, g.os, ec, g.relPlans)
	if err != nil {
		return 0, err
	}

	ref := &plan.SubqueryRef{Node: node, Plan: subPlan}
	for _, pair := range pairs {
		server, ot, ok := g.getSupportedExprConstraintAware(pair.field, onion.Comparable, false)
		if !ok {
			return 0, ErrFieldUnprojectable.New(pair.field)
		}
		projIdx := comp.AddSubqueryProjection(&plan.ClientProjection{
			Orig: pair.field, Server: server, Onion: ot,
		})
		ref.Bindings = append(ref.Bindings, plan.DependentBinding{
			Placeholder: pair.placeholder,
			Field:       pair.field,
			ProjIdx:     projIdx,
		})
	}
	comp.Subqueries = append(comp.Subqueries, ref)
	return len(comp.Subqueries) - 1, nil
}

// outerRefPair records one rewritten outer reference of a correlated
// subquery.
type outerRefPair struct {
	placeholder *expression.DependentFieldPlaceholder
	field       *expression.FieldIdent
}

// rewriteOuterReferences replaces every field whose symbol scope is a
// parent of the statement's scope with a positional placeholder. A
// reference to an outer projection is a hard error.
func (g *generator) rewriteOuterReferences(stmt *sql.SelectStmt) (*sql.SelectStmt, []outerRefPair, error) {
	var pairs []outerRefPair
	rewrite := func(e sql.Expression) (sql.Expression, error) {
		if e == nil {
			return nil, nil
		}
		return sql.TransformUp(e, func(n sql.Expression) (sql.Expression, error) {
			f, ok := n.(*expression.FieldIdent)
			if !ok || f.Symbol == nil {
				return n, nil
			}
			symScope := f.Symbol.SymbolScope()
			if symScope == stmt.Scope || !symScope.IsParentOf(stmt.Scope) {
				return n, nil
			}
			if _, isProj := f.Symbol.(*sql.ProjectionSymbol); isProj {
				return nil, sql.ErrOuterProjectionRef.New(f.FieldName)
			}
			for _, p := range pairs {
				if p.field.String() == f.String() && p.field.Symbol == f.Symbol {
					return p.placeholder, nil
				}
			}
			ph := expression.NewDependentFieldPlaceholder(len(pairs))
			pairs = append(pairs, outerRefPair{placeholder: ph, field: f})
			return ph, nil
		})
	}

	out, err := transformStmtExprs(stmt, rewrite)
	if err != nil {
		return nil, nil, err
	}
	return out, pairs, nil
}

// applyOptimizations replaces subtrees the server can answer in reduced
// form: packed-HOM sums and averages, and binops wholly rewritable under
// some onion.
func (g *generator) applyOptimizations(e sql.Expression, rctx rewriteCtx, comp *plan.ClientComputation) (sql.Expression, error) {
	return sql.TransformDown(e, func(n sql.Expression) (sql.Expression, bool, error) {
		switch v := n.(type) {
		case *expression.Sum:
			if repl, ok, err := g.packedHomAggregate(v.Child, false, comp); err != nil {
				return nil, false, err
			} else if ok {
				return repl, false, nil
			}
		case *expression.Avg:
			if repl, ok, err := g.packedHomAggregate(v.Child, true, comp); err != nil {
				return nil, false, err
			} else if ok {
				return repl, false, nil
			}
		case *expression.Arithmetic:
			// Prefer a wholly-server binop over field-by-field projection
			// when some onion answers the whole subtree.
			se, ok, err := g.doTransformServer(v, rctx.with(onion.All.ToSeq()...))
			if err != nil {
				return nil, false, err
			}
			if ok {
				slot := comp.AddProjection(&plan.ClientProjection{Orig: v, Server: se.expr, Onion: se.ot})
				return expression.NewProjectionPlaceholder(slot), false, nil
			}
		}
		return n, true, nil
	})
}

// packedHomAggregate rewrites SUM/AVG over a packed HOM group: one server
// projection hom_agg(rewritten, table, group) and a client hom_get_pos
// over the decrypted slot vector. AVG additionally projects COUNT(*) and
// divides.
func (g *generator) packedHomAggregate(inner sql.Expression, isAvg bool, comp *plan.ClientComputation) (sql.Expression, bool, error) {
	resolved, err := expression.ResolveAliases(inner)
	if err != nil {
		return nil, false, nil
	}

	// Establish a single HOM group consistent across every non-literal
	// branch of the argument.
	type branchHit struct {
		branch sql.Expression
		descs  []onion.HomDesc
	}
	var hits []branchHit
	var table string
	for _, branch := range branchExprs(resolved) {
		if _, ok := branch.(*expression.Literal); ok {
			continue
		}
		_, descs, ok := g.getSupportedHomRowDescExpr(branch)
		if !ok {
			return nil, false, nil
		}
		if table == "" {
			table = descs[0].Table
		}
		hits = append(hits, branchHit{branch: branch, descs: descs})
	}
	if len(hits) == 0 {
		return nil, false, nil
	}

	candidates := map[int]bool{}
	for _, d := range hits[0].descs {
		candidates[d.Group] = true
	}
	for _, h := range hits[1:] {
		next := map[int]bool{}
		for _, d := range h.descs {
			if candidates[d.Group] {
				next[d.Group] = true
			}
		}
		candidates = next
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	group := g.pickHomGroup(table, candidates)

	// Every branch must land on one position of the chosen group.
	pos := -1
	for _, h := range hits {
		for _, d := range h.descs {
			if d.Group != group {
				continue
			}
			if pos == -1 {
				pos = d.Pos
			} else if pos != d.Pos {
				return nil, false, nil
			}
		}
	}
	if pos == -1 {
		return nil, false, nil
	}

	serverInner, ok, err := g.rowidRewrite(resolved)
	if err != nil || !ok {
		return nil, false, err
	}

	homOT := onion.OnionType{
		Onion:    onion.HOM,
		HomGroup: &onion.HomGroup{Table: table, Group: group},
	}
	slot := comp.AddProjection(&plan.ClientProjection{
		Orig:   inner,
		Server: expression.NewHomAgg(serverInner, table, group),
		Onion:  homOT,
	})
	g.log.WithField("table", table).WithField("group", group).Debug("sum answered by packed HOM group")

	result := sql.Expression(expression.NewHomGetPos(expression.NewProjectionPlaceholder(slot), pos))
	if isAvg {
		countSlot := comp.AddProjection(&plan.ClientProjection{
			Orig:   expression.NewCountStar(),
			Server: expression.NewCountStar(),
			Onion:  onion.OnionType{Onion: onion.PLAIN},
		})
		result = expression.NewDiv(result, expression.NewProjectionPlaceholder(countSlot))
	}
	return result, true, nil
}

// rowidRewrite turns the aggregate argument into the hom_agg server
// argument: branch values become the packed row id, CaseWhen conditions
// are rewritten server-side in the clear.
func (g *generator) rowidRewrite(resolved sql.Expression) (sql.Expression, bool, error) {
	rowid := func(branch sql.Expression) (sql.Expression, bool) {
		if _, ok := branch.(*expression.Literal); ok {
			return nil, false
		}
		expr, _, ok := g.getSupportedHomRowDescExpr(branch)
		return expr, ok
	}

	if c, ok := resolved.(*expression.Case); ok {
		branches := make([]expression.CaseBranch, len(c.Branches))
		for i, b := range c.Branches {
			cond, ok, err := g.doTransformServer(b.Cond, rewriteCtx{onions: []onion.Onion{onion.PLAIN}})
			if err != nil || !ok {
				return nil, false, err
			}
			value, ok := rowid(b.Value)
			if !ok {
				// A literal branch contributes nothing to the packed sum.
				value = expression.NewLiteral(nil, sql.Unknown)
			}
			branches[i] = expression.CaseBranch{Cond: cond.expr, Value: value}
		}
		var elseExpr sql.Expression
		if c.Else != nil {
			if value, ok := rowid(c.Else); ok {
				elseExpr = value
			} else {
				elseExpr = expression.NewLiteral(nil, sql.Unknown)
			}
		}
		return expression.NewCase(branches, elseExpr), true, nil
	}

	expr, ok := rowid(resolved)
	return expr, ok, nil
}

// pickHomGroup selects the least-used candidate group per the preference
// ordering gathered before rewriting, keeping heavily-used groups free for
// other aggregates of the query. Group id breaks ties.
func (g *generator) pickHomGroup(table string, candidates map[int]bool) int {
	for _, id := range g.homPrefs[table] {
		if candidates[id] {
			return id
		}
	}
	ids := make([]int, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids[0]
}

// gatherHomGroupPreferences scans SUM/AVG arguments of the statement and
// orders each table's packed groups by ascending usage count.
func (g *generator) gatherHomGroupPreferences() {
	usage := map[string]map[int]int{}
	count := func(e sql.Expression) {
		sql.Inspect(e, func(n sql.Expression) bool {
			var arg sql.Expression
			switch v := n.(type) {
			case *expression.Sum:
				arg = v.Child
			case *expression.Avg:
				arg = v.Child
			default:
				return true
			}
			resolved, err := expression.ResolveAliases(arg)
			if err != nil {
				return true
			}
			for _, branch := range branchExprs(resolved) {
				_, descs, ok := g.getSupportedHomRowDescExpr(branch)
				if !ok {
					continue
				}
				for _, d := range descs {
					if usage[d.Table] == nil {
						usage[d.Table] = map[int]int{}
					}
					usage[d.Table][d.Group]++
				}
			}
			return true
		})
	}

	for _, p := range g.stmt.Projections {
		if ep, ok := p.(*sql.ExprProjection); ok {
			count(ep.Expr)
		}
	}
	if g.stmt.GroupBy != nil && g.stmt.GroupBy.Having != nil {
		count(g.stmt.GroupBy.Having)
	}

	g.homPrefs = map[string][]int{}
	for table, groups := range usage {
		ids := make([]int, 0, len(groups))
		for id := range groups {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if groups[ids[i]] != groups[ids[j]] {
				return groups[ids[i]] < groups[ids[j]]
			}
			return ids[i] < ids[j]
		})
		g.homPrefs[table] = ids
	}
}

// projectClientFields projects every field the client expression still
// reads, under DET or OPE. Inside a grouped context a non-key field is
// shipped as a GROUP_CONCAT vector carrying the whole group.
func (g *generator) projectClientFields(e sql.Expression, rctx rewriteCtx, comp *plan.ClientComputation) (sql.Expression, error) {
	resolved, err := expression.ResolveAliases(e)
	if err != nil {
		return nil, err
	}
	return sql.TransformUp(resolved, func(n sql.Expression) (sql.Expression, error) {
		f, ok := n.(*expression.FieldIdent)
		if !ok || f.Symbol == nil {
			return n, nil
		}
		server, ot, ok := g.getSupportedExprConstraintAware(f, onion.Comparable, rctx.agg)
		if !ok {
			return nil, ErrFieldUnprojectable.New(f)
		}
		if rctx.agg && g.stmt.GroupBy != nil && !g.isGroupKey(f) {
			server = expression.NewGroupConcat(server, ",")
			ot.VectorCtx = true
		}
		slot := comp.AddProjection(&plan.ClientProjection{Orig: f, Server: server, Onion: ot})
		return expression.NewProjectionPlaceholder(slot), nil
	})
}

func (g *generator) isGroupKey(f *expression.FieldIdent) bool {
	oe, ok := findOnionableExpr(f)
	if !ok {
		return false
	}
	_, isKey := g.groupKeyOnions[onion.Key(oe.Canon)]
	return isKey
}
