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
	"github.com/liuyi1112/monomi-optimizer/sql/plan"
)

// rewriteCtx threads the onion constraints and aggregate flag through a
// server rewrite. Passed by value.
type rewriteCtx struct {
	// onions is the ranked sequence of onion masks the result may be
	// returned under.
	onions []onion.Onion
	// agg is set when aggregates are legal at this point of the query.
	agg bool
}

func (c rewriteCtx) inClear() bool {
	for _, o := range c.onions {
		if o&onion.PLAIN != 0 {
			return true
		}
	}
	return false
}

func (c rewriteCtx) with(onions ...onion.Onion) rewriteCtx {
	return rewriteCtx{onions: onions, agg: c.agg}
}

// serverExpr is a successfully rewritten server-side expression.
type serverExpr struct {
	expr sql.Expression
	ot   onion.OnionType
}

// rewriteResult is the outcome of rewriting one expression: either fully
// server-side (comp nil), or split into an optional reduced server
// residual and a client computation.
type rewriteResult struct {
	server sql.Expression
	ot     onion.OnionType
	comp   *plan.ClientComputation
}

// rewriteExprForServer splits top-level conjunctions and rewrites each
// conjunct independently. Fully answerable conjuncts refold into the
// server expression; the rest merge into a single client computation.
func (g *generator) rewriteExprForServer(e sql.Expression, rctx rewriteCtx) (*rewriteResult, error) {
	conjuncts := expression.SplitConjunction(e)
	if len(conjuncts) == 1 {
		return g.rewriteConjunct(e, rctx)
	}

	var serverSide []sql.Expression
	var comp *plan.ClientComputation
	for _, c := range conjuncts {
		res, err := g.rewriteConjunct(c, rctx)
		if err != nil {
			return nil, err
		}
		if res.comp == nil {
			serverSide = append(serverSide, res.server)
			continue
		}
		if comp == nil {
			comp = res.comp
		} else {
			comp, err = plan.MergeConjunctions(comp, res.comp)
			if err != nil {
				return nil, err
			}
		}
	}

	if comp == nil {
		return &rewriteResult{
			server: expression.JoinAnd(serverSide...),
			ot:     onion.OnionType{Onion: onion.PLAIN},
		}, nil
	}
	g.log.WithField("expr", e.String()).Debug("conjunction split into server residual and client computation")
	return &rewriteResult{
		server: expression.JoinAnd(serverSide...),
		comp:   comp,
	}, nil
}

// rewriteConjunct rewrites one conjunct: server-side if the shape table
// allows, else through the residual path.
func (g *generator) rewriteConjunct(e sql.Expression, rctx rewriteCtx) (*rewriteResult, error) {
	if se, ok, err := g.doTransformServer(e, rctx); err != nil {
		return nil, err
	} else if ok {
		return &rewriteResult{server: se.expr, ot: se.ot}, nil
	}

	comp, err := g.buildClientComputation(e, rctx)
	if err != nil {
		return nil, err
	}
	return &rewriteResult{comp: comp}, nil
}

// doTransformServer pattern-matches the expression root against the table
// of supported node shapes. A failed child rewrite fails the root; the
// caller recovers through the residual path.
func (g *generator) doTransformServer(e sql.Expression, rctx rewriteCtx) (serverExpr, bool, error) {
	switch v := e.(type) {
	case *expression.And, *expression.Or:
		if !rctx.inClear() {
			return serverExpr{}, false, nil
		}
		children := e.Children()
		l, ok, err := g.doTransformServer(children[0], rctx.with(onion.PLAIN))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		r, ok, err := g.doTransformServer(children[1], rctx.with(onion.PLAIN))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		rebuilt, err := e.WithChildren(l.expr, r.expr)
		if err != nil {
			return serverExpr{}, false, err
		}
		return serverExpr{expr: rebuilt, ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil

	case *expression.Not:
		if !rctx.inClear() {
			return serverExpr{}, false, nil
		}
		c, ok, err := g.doTransformServer(v.Child, rctx.with(onion.PLAIN))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		return serverExpr{expr: expression.NewNot(c.expr), ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil

	case *expression.Comparison:
		if !rctx.inClear() {
			return serverExpr{}, false, nil
		}
		trial := []onion.Onion{onion.PLAIN, onion.DET, onion.OPE}
		if !v.IsEquality() {
			trial = []onion.Onion{onion.PLAIN, onion.OPE}
		}
		for _, o := range trial {
			l, lok, err := g.rewriteOperand(v.Left, o, rctx)
			if err != nil {
				return serverExpr{}, false, err
			}
			if !lok {
				continue
			}
			r, rok, err := g.rewriteOperand(v.Right, o, rctx)
			if err != nil {
				return serverExpr{}, false, err
			}
			if !rok {
				continue
			}
			rebuilt, err := v.WithChildren(l.expr, r.expr)
			if err != nil {
				return serverExpr{}, false, err
			}
			return serverExpr{expr: rebuilt, ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil
		}
		return serverExpr{}, false, nil

	case *expression.In:
		if !rctx.inClear() {
			return serverExpr{}, false, nil
		}
	trials:
		for _, o := range []onion.Onion{onion.DET, onion.OPE} {
			l, ok, err := g.rewriteOperand(v.Left, o, rctx)
			if err != nil {
				return serverExpr{}, false, err
			}
			if !ok {
				continue
			}
			values := make([]sql.Expression, len(v.Values))
			for i, val := range v.Values {
				r, ok, err := g.rewriteOperand(val, o, rctx)
				if err != nil {
					return serverExpr{}, false, err
				}
				if !ok {
					continue trials
				}
				values[i] = r.expr
			}
			return serverExpr{
				expr: expression.NewIn(l.expr, values...),
				ot:   onion.OnionType{Onion: onion.PLAIN},
			}, true, nil
		}
		return serverExpr{}, false, nil

	case *expression.Like:
		if !rctx.inClear() {
			return serverExpr{}, false, nil
		}
		l, ok, err := g.doTransformServer(v.Left, rctx.with(onion.SWP))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		r, ok, err := g.doTransformServer(v.Right, rctx.with(onion.SWP))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		return serverExpr{
			expr: expression.NewSearchSWP(l.expr, r.expr),
			ot:   onion.OnionType{Onion: onion.PLAIN},
		}, true, nil

	case *expression.Exists:
		if !rctx.inClear() {
			return serverExpr{}, false, nil
		}
		sub, ok, err := g.planServerSubselect(v.Query, PreserveCardinality{})
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		return serverExpr{expr: expression.NewExists(sub), ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil

	case *expression.CountStar:
		if !rctx.inClear() || !rctx.agg {
			return serverExpr{}, false, nil
		}
		return serverExpr{expr: v, ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil

	case *expression.Count:
		if !rctx.inClear() || !rctx.agg {
			return serverExpr{}, false, nil
		}
		c, ok, err := g.doTransformServer(v.Child, rctx.with(onion.Countable))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		return serverExpr{expr: expression.NewCount(c.expr), ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil

	case *expression.Min, *expression.Max:
		if !rctx.agg || onion.Union(rctx.onions)&onion.OPE == 0 {
			return serverExpr{}, false, nil
		}
		child := e.Children()[0]
		c, ok, err := g.doTransformServer(child, rctx.with(onion.OPE))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		rebuilt, err := e.WithChildren(c.expr)
		if err != nil {
			return serverExpr{}, false, err
		}
		return serverExpr{expr: rebuilt, ot: onion.OnionType{Onion: onion.OPE}}, true, nil

	case *expression.Sum:
		if !rctx.agg {
			return serverExpr{}, false, nil
		}
		if rctx.inClear() {
			if c, ok, err := g.doTransformServer(v.Child, rctx.with(onion.PLAIN)); err != nil {
				return serverExpr{}, false, err
			} else if ok {
				return serverExpr{expr: expression.NewSum(c.expr), ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil
			}
		}
		if c, ok, err := g.doTransformServer(v.Child, rctx.with(onion.HOM)); err != nil {
			return serverExpr{}, false, err
		} else if ok {
			return serverExpr{
				expr: expression.NewFunctionCall("hom_agg", c.expr),
				ot:   onion.OnionType{Onion: onion.HOM},
			}, true, nil
		}
		return serverExpr{}, false, nil

	case *expression.Avg:
		if !rctx.agg || !rctx.inClear() {
			return serverExpr{}, false, nil
		}
		c, ok, err := g.doTransformServer(v.Child, rctx.with(onion.PLAIN))
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		return serverExpr{expr: expression.NewAvg(c.expr), ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil

	case *expression.Case:
		for _, o := range rctx.onions {
			branches := make([]expression.CaseBranch, len(v.Branches))
			ok := true
			for i, b := range v.Branches {
				cond, cok, err := g.doTransformServer(b.Cond, rctx.with(onion.PLAIN))
				if err != nil {
					return serverExpr{}, false, err
				}
				val, vok, err := g.doTransformServer(b.Value, rctx.with(o))
				if err != nil {
					return serverExpr{}, false, err
				}
				if !cok || !vok {
					ok = false
					break
				}
				branches[i] = expression.CaseBranch{Cond: cond.expr, Value: val.expr}
			}
			if !ok {
				continue
			}
			var elseExpr sql.Expression
			if v.Else != nil {
				ee, eok, err := g.doTransformServer(v.Else, rctx.with(o))
				if err != nil {
					return serverExpr{}, false, err
				}
				if !eok {
					continue
				}
				elseExpr = ee.expr
			}
			return serverExpr{
				expr: expression.NewCase(branches, elseExpr),
				ot:   onion.OnionType{Onion: o.PickOne()},
			}, true, nil
		}
		return serverExpr{}, false, nil

	case *expression.Literal:
		o := rctx.onions[0].PickOne()
		if o == onion.PLAIN {
			return serverExpr{expr: v, ot: onion.OnionType{Onion: onion.PLAIN}}, true, nil
		}
		return serverExpr{expr: expression.NewEncrypt(v, o), ot: onion.OnionType{Onion: o}}, true, nil

	case *expression.DependentFieldPlaceholder:
		o := rctx.onions[0].PickOne()
		return serverExpr{expr: v.Bind(o), ot: onion.OnionType{Onion: o}}, true, nil
	}

	// FieldIdent or opaque expression: first onion of the context that a
	// stored representation matches.
	for _, mask := range rctx.onions {
		if expr, ot, ok := g.getSupportedExprConstraintAware(e, mask, rctx.agg); ok {
			return serverExpr{expr: expr, ot: ot}, true, nil
		}
		if mask&onion.HOMRowDesc != 0 {
			if expr, descs, ok := g.getSupportedHomRowDescExpr(e); ok && len(descs) > 0 {
				return serverExpr{expr: expr, ot: onion.OnionType{Onion: onion.HOMRowDesc}}, true, nil
			}
		}
	}
	return serverExpr{}, false, nil
}

// rewriteOperand rewrites one comparison operand at a single onion. A
// subselect operand is planned recursively and accepted when its plan is a
// pure RemoteSql.
func (g *generator) rewriteOperand(e sql.Expression, o onion.Onion, rctx rewriteCtx) (serverExpr, bool, error) {
	if sub, ok := e.(*expression.Subselect); ok {
		inlined, ok, err := g.planServerSubselect(sub, EncProj{Onions: []onion.Onion{o}, Require: true})
		if err != nil || !ok {
			return serverExpr{}, false, err
		}
		return serverExpr{expr: inlined, ot: onion.OnionType{Onion: o}}, true, nil
	}
	return g.doTransformServer(e, rctx.with(o))
}

// planServerSubselect plans a subselect and inlines it when the result is
// a pure RemoteSql, adopting its subplans.
func (g *generator) planServerSubselect(sub *expression.Subselect, ec EncContext) (*expression.Subselect, bool, error) {
	p, err := generate(sub.Stmt, g.os, ec, g.relPlans)
	if err != nil {
		// An infeasible subselect under this onion is a shape failure,
		// not a hard error; the residual path will retry.
		return nil, false, nil
	}
	remote, ok := p.(*plan.RemoteSql)
	if !ok {
		return nil, false, nil
	}
	g.subplans = append(g.subplans, remote.Subplans...)
	return expression.NewSubselect(remote.Stmt), true, nil
}
