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
	"fmt"

	"github.com/opentracing/opentracing-go"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
	"github.com/liuyi1112/monomi-optimizer/sql/plan"
)

// GeneratePlan synthesizes an executable plan for the statement against
// encrypted storage described by the onion set. The plan's leaves are
// rewritten SQL evaluated server-side; interior nodes finish the residual
// work client-side. The generator is a pure function of its arguments:
// invocations with different onion sets are independent.
func GeneratePlan(stmt *sql.SelectStmt, os *onion.Set, ec EncContext) (plan.Node, error) {
	span := opentracing.GlobalTracer().StartSpan("planbuilder.GeneratePlan")
	defer span.Finish()
	span.SetTag("statement", stmt.String())
	span.SetTag("enc_context", ec.String())

	return generate(stmt, os, ec, nil)
}

// relPlan records the plan of a subquery relation so outer references can
// resolve against its tuple descriptor.
type relPlan struct {
	plan  plan.Node
	desc  plan.TupleDesc
	names []string
}

// serverProj is one column of the server-side SELECT list.
type serverProj struct {
	expr sql.Expression
	ot   onion.OnionType
	name string
}

// boundComp is a client computation whose projection slots have been
// assigned positions in the final server projection list.
type boundComp struct {
	comp    *plan.ClientComputation
	slotMap []int
	subMap  []int
}

// localOrderKey is one residual ORDER BY key: either a projected slot or
// a client-computed key.
type localOrderKey struct {
	slot int
	comp *boundComp
	desc bool
	ope  bool
}

// projOutput is one logical output column: a pass-through server slot or
// a client computation.
type projOutput struct {
	slot int
	comp *boundComp
}

type generator struct {
	stmt  *sql.SelectStmt
	os    *onion.Set
	defns sql.Definitions
	ec    EncContext
	log   *logrus.Entry

	relPlans map[string]*relPlan

	groupKeyOnions map[string]onion.Onion
	homPrefs       map[string][]int

	finalProjs []*serverProj
	projCache  map[string]int

	subplans []plan.Node

	serverRels      []sql.RelationAST
	serverFilter    sql.Expression
	serverGroupKeys []sql.Expression
	serverHaving    sql.Expression
	serverOrder     []sql.OrderKey
	serverLimit     *sql.Limit

	localFilters      []*boundComp
	localGroupFilters []*boundComp
	localOrder        []localOrderKey
	localLimit        *sql.Limit

	outputs []projOutput
}

func generate(stmt *sql.SelectStmt, os *onion.Set, ec EncContext, outer map[string]*relPlan) (plan.Node, error) {
	g := &generator{
		stmt:           stmt,
		os:             os,
		defns:          stmt.Scope.Definitions(),
		ec:             ec,
		log:            logrus.WithField("component", "planbuilder"),
		relPlans:       map[string]*relPlan{},
		groupKeyOnions: map[string]onion.Onion{},
		projCache:      map[string]int{},
	}
	for alias, rp := range outer {
		g.relPlans[alias] = rp
	}
	return g.run()
}

func (g *generator) run() (plan.Node, error) {
	if ep, ok := g.ec.(EncProj); ok && len(ep.Onions) != len(g.stmt.Projections) {
		return nil, ErrEncProjWidth.New(len(ep.Onions), len(g.stmt.Projections))
	}

	if err := g.planRelations(); err != nil {
		return nil, err
	}
	g.gatherHomGroupPreferences()

	if err := g.rewriteFilter(); err != nil {
		return nil, err
	}
	if err := g.rewriteGroupBy(); err != nil {
		return nil, err
	}
	// Filter and having residuals claim the leading tuple positions, the
	// projections follow, and order-by keys that need auxiliary projections
	// append after them.
	if err := g.rewriteProjections(); err != nil {
		return nil, err
	}
	if err := g.rewriteOrderBy(); err != nil {
		return nil, err
	}
	g.rewriteLimit()

	return g.assemble()
}

// planRelations rewrites the FROM clause to encrypted table names,
// planning each subquery relation recursively with a computed EncProj
// vector. A pure RemoteSql child is inlined as nested server SQL; anything
// else is materialized under a synthetic alias.
func (g *generator) planRelations() error {
	for _, rel := range g.stmt.Relations {
		switch r := rel.(type) {
		case *sql.TableRelationAST:
			enc := &sql.TableRelationAST{Name: EncTblName(r.Name)}
			if r.Alias != "" && r.Alias != r.Name {
				enc.Alias = r.Alias
			}
			g.serverRels = append(g.serverRels, enc)

		case *sql.SubqueryRelationAST:
			ep := g.computeSubqueryEncProj(r)
			child, err := generate(r.Stmt, g.os, ep, g.relPlans)
			if err != nil {
				return err
			}
			names := projectionNames(r.Stmt)
			if remote, ok := child.(*plan.RemoteSql); ok {
				g.serverRels = append(g.serverRels, &sql.SubqueryRelationAST{Stmt: remote.Stmt, Alias: r.Alias})
				g.subplans = append(g.subplans, remote.Subplans...)
				g.relPlans[r.Alias] = &relPlan{plan: child, desc: remote.Desc, names: names}
				continue
			}
			matName := fmt.Sprintf("mat$%s", uuid.NewV4().String()[:8])
			g.subplans = append(g.subplans, plan.NewRemoteMaterialize(matName, child))
			g.serverRels = append(g.serverRels, &sql.TableRelationAST{Name: matName, Alias: r.Alias})
			g.relPlans[r.Alias] = &relPlan{plan: child, desc: child.TupleDesc(), names: names}
			g.log.WithField("alias", r.Alias).Debug("subquery relation materialized")
		}
	}
	return nil
}

// computeSubqueryEncProj derives the onion demand vector of a subquery
// relation: position i carries the OR of every onion the enclosing
// statement requests from the subquery's i-th projection. Positions with
// no observed demand default to DET.
func (g *generator) computeSubqueryEncProj(r *sql.SubqueryRelationAST) EncProj {
	demands := make([]onion.Onion, len(r.Stmt.Projections))

	collect := func(e sql.Expression, allowed onion.Onion) {
		if e == nil {
			return
		}
		for _, set := range getPotentialCryptoOpts(e, allowed) {
			for _, c := range set {
				if c.DemandAlias != r.Alias {
					continue
				}
				for i, p := range r.Stmt.Projections {
					ep, ok := p.(*sql.ExprProjection)
					if ok && ep.Name() == c.DemandName {
						demands[i] |= c.Onion
					}
				}
			}
		}
	}

	for _, p := range g.stmt.Projections {
		if ep, ok := p.(*sql.ExprProjection); ok {
			collect(ep.Expr, onion.All)
		}
	}
	collect(g.stmt.Filter, onion.PLAIN)
	if g.stmt.GroupBy != nil {
		for _, k := range g.stmt.GroupBy.Keys {
			collect(k, onion.Comparable)
		}
		collect(g.stmt.GroupBy.Having, onion.PLAIN)
	}
	if g.stmt.OrderBy != nil {
		for _, k := range g.stmt.OrderBy.Keys {
			collect(k.Expr, onion.IEqualComparable)
		}
	}

	for i := range demands {
		if demands[i] == 0 {
			demands[i] = onion.DET
		}
	}
	return EncProj{Onions: demands, Require: false}
}

func (g *generator) rewriteFilter() error {
	if g.stmt.Filter == nil {
		return nil
	}
	res, err := g.rewriteExprForServer(g.stmt.Filter, rewriteCtx{onions: []onion.Onion{onion.PLAIN}})
	if err != nil {
		return err
	}
	g.serverFilter = res.server
	if res.comp != nil {
		g.localFilters = append(g.localFilters, g.bind(res.comp))
	}
	return nil
}

func (g *generator) rewriteGroupBy() error {
	gb := g.stmt.GroupBy
	if gb == nil {
		return nil
	}
	for _, key := range gb.Keys {
		se, ok, err := g.doTransformServer(key, rewriteCtx{onions: []onion.Onion{onion.Comparable}})
		if err != nil {
			return err
		}
		if !ok {
			return ErrGroupKeyInfeasible.New(key)
		}
		if oe, found := findOnionableExpr(key); found {
			g.groupKeyOnions[onion.Key(oe.Canon)] = se.ot.Onion
		}
		g.serverGroupKeys = append(g.serverGroupKeys, se.expr)
	}

	if gb.Having != nil {
		res, err := g.rewriteExprForServer(gb.Having, rewriteCtx{onions: []onion.Onion{onion.PLAIN}, agg: true})
		if err != nil {
			return err
		}
		g.serverHaving = res.server
		if res.comp != nil {
			g.localGroupFilters = append(g.localGroupFilters, g.bind(res.comp))
		}
	}
	return nil
}

func (g *generator) rewriteOrderBy() error {
	ob := g.stmt.OrderBy
	if ob == nil {
		return nil
	}
	agg := g.stmt.GroupBy != nil
	for _, key := range ob.Keys {
		se, ok, err := g.doTransformServer(key.Expr, rewriteCtx{
			onions: []onion.Onion{onion.PLAIN, onion.OPE},
			agg:    agg,
		})
		if err != nil {
			return err
		}
		if ok {
			// An encrypted server sort key is also projected so the
			// client can re-check ordering across local stages.
			if se.ot.Onion != onion.PLAIN {
				g.addServerProj(se.expr, se.ot, "")
			}
			g.serverOrder = append(g.serverOrder, sql.OrderKey{Expr: se.expr, Desc: key.Desc})
			continue
		}

		if server, ot, ok := g.getSupportedExprConstraintAware(key.Expr, onion.Comparable, agg); ok {
			slot := g.addServerProj(server, ot, "")
			g.localOrder = append(g.localOrder, localOrderKey{
				slot: slot,
				desc: key.Desc,
				ope:  ot.Onion == onion.OPE,
			})
			continue
		}

		comp, err := g.buildClientComputation(key.Expr, rewriteCtx{onions: []onion.Onion{onion.PLAIN}, agg: agg})
		if err != nil {
			return ErrOrderKeyInfeasible.New(key.Expr)
		}
		g.localOrder = append(g.localOrder, localOrderKey{slot: -1, comp: g.bind(comp), desc: key.Desc})
	}
	return nil
}

func (g *generator) rewriteLimit() {
	if g.stmt.Limit == nil {
		return
	}
	if len(g.localFilters) > 0 || len(g.localGroupFilters) > 0 || len(g.localOrder) > 0 {
		g.localLimit = g.stmt.Limit
		return
	}
	g.serverLimit = g.stmt.Limit
}

func (g *generator) rewriteProjections() error {
	// Aggregates are always legal in the select list; the grouped-context
	// constraints only engage when a GROUP BY is present.
	const agg = true
	for i, p := range g.stmt.Projections {
		ep, ok := p.(*sql.ExprProjection)
		if !ok {
			return sql.ErrWildcardNotSupported.New()
		}
		res, err := g.rewriteExprForServer(ep.Expr, rewriteCtx{onions: g.projectionOnions(i), agg: agg})
		if err != nil {
			return err
		}
		name := ep.Alias
		if name == "" && len(ep.Expr.Children()) == 0 {
			// A bare column projection keeps its name so subquery
			// relation references resolve against the output.
			if n, ok := ep.Expr.(interface{ Name() string }); ok {
				name = n.Name()
			}
		}
		if res.comp == nil {
			slot := g.addServerProj(res.server, res.ot, name)
			g.outputs = append(g.outputs, projOutput{slot: slot})
			continue
		}
		g.outputs = append(g.outputs, projOutput{slot: -1, comp: g.bind(res.comp)})
	}
	return nil
}

// projectionOnions ranks the onions projection i may be produced under.
// The requested bits lead; the rest stay as fallbacks, since finalize can
// decrypt and re-encrypt a required output the server could not produce
// directly.
func (g *generator) projectionOnions(i int) []onion.Onion {
	if ep, ok := g.ec.(EncProj); ok {
		return ep.Onions[i].CompleteSeqWithPreference()
	}
	return onion.All.ToSeq()
}

// bind assigns final projection slots to a client computation.
func (g *generator) bind(comp *plan.ClientComputation) *boundComp {
	bc := &boundComp{comp: comp}
	for _, p := range comp.Projections {
		bc.slotMap = append(bc.slotMap, g.addServerProj(p.Server, p.Onion, ""))
	}
	for _, p := range comp.SubqueryProjections {
		bc.subMap = append(bc.subMap, g.addServerProj(p.Server, p.Onion, ""))
	}
	// Dependent bindings address final tuple positions from here on.
	for _, ref := range comp.Subqueries {
		for i := range ref.Bindings {
			ref.Bindings[i].ProjIdx = bc.subMap[ref.Bindings[i].ProjIdx]
		}
	}
	return bc
}

// addServerProj inserts a server projection, deduplicating by canonical
// content, and returns its tuple position.
func (g *generator) addServerProj(expr sql.Expression, ot onion.OnionType, name string) int {
	key := expr.String() + "|" + ot.Onion.String()
	if ot.VectorCtx {
		key += "|vec"
	}
	if slot, ok := g.projCache[key]; ok {
		if name != "" && g.finalProjs[slot].name == "" {
			g.finalProjs[slot].name = name
		}
		return slot
	}
	g.finalProjs = append(g.finalProjs, &serverProj{expr: expr, ot: ot, name: name})
	slot := len(g.finalProjs) - 1
	g.projCache[key] = slot
	return slot
}

func projectionNames(stmt *sql.SelectStmt) []string {
	names := make([]string, len(stmt.Projections))
	for i, p := range stmt.Projections {
		if ep, ok := p.(*sql.ExprProjection); ok {
			names[i] = ep.Name()
		}
	}
	return names
}

// transformStmtExprs rebuilds a statement with every clause expression
// passed through f. Relations are left untouched.
func transformStmtExprs(stmt *sql.SelectStmt, f func(sql.Expression) (sql.Expression, error)) (*sql.SelectStmt, error) {
	out := &sql.SelectStmt{
		Relations: stmt.Relations,
		Limit:     stmt.Limit,
		Scope:     stmt.Scope,
	}
	for _, p := range stmt.Projections {
		ep, ok := p.(*sql.ExprProjection)
		if !ok {
			out.Projections = append(out.Projections, p)
			continue
		}
		ne, err := f(ep.Expr)
		if err != nil {
			return nil, err
		}
		out.Projections = append(out.Projections, &sql.ExprProjection{Expr: ne, Alias: ep.Alias})
	}
	var err error
	if out.Filter, err = f(stmt.Filter); err != nil {
		return nil, err
	}
	if stmt.GroupBy != nil {
		gb := &sql.GroupBy{}
		for _, k := range stmt.GroupBy.Keys {
			nk, err := f(k)
			if err != nil {
				return nil, err
			}
			gb.Keys = append(gb.Keys, nk)
		}
		if gb.Having, err = f(stmt.GroupBy.Having); err != nil {
			return nil, err
		}
		out.GroupBy = gb
	}
	if stmt.OrderBy != nil {
		ob := &sql.OrderBy{}
		for _, k := range stmt.OrderBy.Keys {
			nk, err := f(k.Expr)
			if err != nil {
				return nil, err
			}
			ob.Keys = append(ob.Keys, sql.OrderKey{Expr: nk, Desc: k.Desc})
		}
		out.OrderBy = ob
	}
	return out, nil
}
