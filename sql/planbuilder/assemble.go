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
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
	"github.com/liuyi1112/monomi-optimizer/sql/plan"
)

// assemble stage-wise wraps the base RemoteSql with the accumulated local
// operators, then finalizes the plan against the enc-context.
func (g *generator) assemble() (plan.Node, error) {
	cur := plan.Node(plan.NewRemoteSql(g.serverStmt(), g.serverDesc(), g.subplans))

	var err error
	for _, bc := range g.localFilters {
		if cur, err = g.wrapFilter(cur, bc, false); err != nil {
			return nil, err
		}
	}
	for _, bc := range g.localGroupFilters {
		if cur, err = g.wrapFilter(cur, bc, true); err != nil {
			return nil, err
		}
	}

	cur, orderPos, auxAdded, err := g.wrapTransform(cur)
	if err != nil {
		return nil, err
	}
	cur, err = g.wrapOrderBy(cur, orderPos, auxAdded)
	if err != nil {
		return nil, err
	}
	if g.localLimit != nil {
		cur = plan.NewLocalLimit(g.localLimit.Count, cur)
	}

	return g.finalize(cur)
}

func (g *generator) serverStmt() *sql.SelectStmt {
	_, emitAlias := g.ec.(EncProj)
	projs := make([]sql.SelectProjection, len(g.finalProjs))
	for i, sp := range g.finalProjs {
		alias := ""
		if emitAlias && sp.name != "" {
			alias = sp.name
		}
		projs[i] = &sql.ExprProjection{Expr: sp.expr, Alias: alias}
	}
	stmt := &sql.SelectStmt{
		Projections: projs,
		Relations:   g.serverRels,
		Filter:      g.serverFilter,
		Limit:       g.serverLimit,
		Scope:       g.stmt.Scope,
	}
	if len(g.serverGroupKeys) > 0 || g.serverHaving != nil {
		stmt.GroupBy = &sql.GroupBy{Keys: g.serverGroupKeys, Having: g.serverHaving}
	}
	if len(g.serverOrder) > 0 {
		stmt.OrderBy = &sql.OrderBy{Keys: g.serverOrder}
	}
	return stmt
}

func (g *generator) serverDesc() plan.TupleDesc {
	desc := make(plan.TupleDesc, len(g.finalProjs))
	for i, sp := range g.finalProjs {
		desc[i] = sp.ot
	}
	return desc
}

func (g *generator) wrapFilter(cur plan.Node, bc *boundComp, group bool) (plan.Node, error) {
	slots := append(append([]int(nil), bc.slotMap...), bc.subMap...)
	if positions := neededDecrypts(cur, slots); len(positions) > 0 {
		cur = plan.NewLocalDecrypt(positions, cur)
	}
	expr, err := bc.comp.MkSqlExpr(func(i int) int { return bc.slotMap[i] })
	if err != nil {
		return nil, err
	}
	subplans := subqueryPlans(bc.comp)
	if group {
		return plan.NewLocalGroupFilter(expr, bc.comp.OrigExpr, cur, subplans), nil
	}
	return plan.NewLocalFilter(expr, bc.comp.OrigExpr, cur, subplans), nil
}

// wrapTransform emits the projection-shaping LocalTransform: original
// outputs first, then auxiliary pass-throughs needed by residual order-by
// keys. The transform is omitted only when it passes every child position
// through unchanged and no local filter, group filter or sort exists.
func (g *generator) wrapTransform(cur plan.Node) (plan.Node, []int, bool, error) {
	orderPos := make([]int, len(g.localOrder))

	if _, ok := g.ec.(PreserveCardinality); ok {
		for i, k := range g.localOrder {
			orderPos[i] = k.slot
		}
		return cur, orderPos, false, nil
	}

	var ops []plan.TransformOp
	var readSlots []int
	identity := true
	for i, out := range g.outputs {
		if out.comp == nil {
			ops = append(ops, plan.PassThrough(out.slot))
			if out.slot != i {
				identity = false
			}
			continue
		}
		identity = false
		expr, err := out.comp.comp.MkSqlExpr(func(j int) int { return out.comp.slotMap[j] })
		if err != nil {
			return nil, nil, false, err
		}
		ops = append(ops, plan.ComputedOp(expr, plan.PosDesc{Onion: onion.PLAIN}))
		readSlots = append(readSlots, out.comp.slotMap...)
	}

	auxAdded := false
	for i, k := range g.localOrder {
		if k.comp == nil {
			pos := -1
			for j, op := range ops {
				if op.Expr == nil && op.Pass == k.slot {
					pos = j
					break
				}
			}
			if pos == -1 {
				ops = append(ops, plan.PassThrough(k.slot))
				pos = len(ops) - 1
				auxAdded, identity = true, false
			}
			orderPos[i] = pos
			continue
		}
		expr, err := k.comp.comp.MkSqlExpr(func(j int) int { return k.comp.slotMap[j] })
		if err != nil {
			return nil, nil, false, err
		}
		ops = append(ops, plan.ComputedOp(expr, plan.PosDesc{Onion: onion.PLAIN}))
		readSlots = append(readSlots, k.comp.slotMap...)
		orderPos[i] = len(ops) - 1
		auxAdded, identity = true, false
	}

	if identity && len(ops) == len(cur.TupleDesc()) &&
		len(g.localFilters) == 0 && len(g.localGroupFilters) == 0 && len(g.localOrder) == 0 {
		return cur, orderPos, false, nil
	}

	// Outputs must be decryptable before any client evaluation; under
	// PreserveOriginal the pass-through outputs decrypt here as well.
	decrypts := append([]int(nil), readSlots...)
	if _, ok := g.ec.(PreserveOriginal); ok {
		for _, out := range g.outputs {
			if out.comp == nil {
				decrypts = append(decrypts, out.slot)
			}
		}
	}
	if positions := neededDecrypts(cur, decrypts); len(positions) > 0 {
		cur = plan.NewLocalDecrypt(positions, cur)
	}
	return plan.NewLocalTransform(ops, cur), orderPos, auxAdded, nil
}

func (g *generator) wrapOrderBy(cur plan.Node, orderPos []int, auxAdded bool) (plan.Node, error) {
	if len(g.localOrder) == 0 {
		return cur, nil
	}

	// A single OPE-projected key sorts without decryption under a pure
	// OPE compare.
	pureOPE := len(g.localOrder) == 1 && g.localOrder[0].comp == nil && g.localOrder[0].ope

	desc := cur.TupleDesc()
	keys := make([]plan.SortKey, len(g.localOrder))
	var decrypts []int
	for i, k := range g.localOrder {
		keys[i] = plan.SortKey{Pos: orderPos[i], Desc: k.desc, OPE: pureOPE}
		if !pureOPE && !desc[orderPos[i]].Plain() {
			decrypts = append(decrypts, orderPos[i])
		}
	}
	if positions := dedupSorted(decrypts); len(positions) > 0 {
		cur = plan.NewLocalDecrypt(positions, cur)
	}
	cur = plan.NewLocalOrderBy(keys, cur)

	if auxAdded {
		fin := make([]plan.TransformOp, len(g.outputs))
		for i := range g.outputs {
			fin[i] = plan.PassThrough(i)
		}
		cur = plan.NewLocalTransform(fin, cur)
	}
	return cur, nil
}

func (g *generator) finalize(cur plan.Node) (plan.Node, error) {
	switch ec := g.ec.(type) {
	case PreserveCardinality:
		return cur, nil

	case PreserveOriginal:
		if positions := cur.TupleDesc().EncryptedPositions(); len(positions) > 0 {
			cur = plan.NewLocalDecrypt(positions, cur)
		}
		return cur, nil

	case EncProj:
		satisfies := func(d plan.TupleDesc) bool {
			if len(d) != len(ec.Onions) {
				return false
			}
			for i := range d {
				if d[i].Onion&ec.Onions[i] == 0 {
					return false
				}
			}
			return true
		}
		if ld, ok := cur.(*plan.LocalDecrypt); ok && satisfies(ld.Child.TupleDesc()) {
			cur = ld.Child
		}
		d := cur.TupleDesc()
		if len(d) != len(ec.Onions) {
			return nil, ErrTupleDescMismatch.New(cur, len(d), len(ec.Onions))
		}
		if satisfies(d) || !ec.Require {
			return cur, nil
		}
		var dec []int
		var enc []plan.EncryptPos
		for i := range d {
			if d[i].Onion&ec.Onions[i] != 0 {
				continue
			}
			if !d[i].Plain() {
				dec = append(dec, i)
			}
			if ec.Onions[i]&onion.PLAIN == 0 {
				enc = append(enc, plan.EncryptPos{Pos: i, Onion: ec.Onions[i].PickOne()})
			}
		}
		if len(dec) > 0 {
			cur = plan.NewLocalDecrypt(dec, cur)
		}
		if len(enc) > 0 {
			cur = plan.NewLocalEncrypt(enc, cur)
		}
		return cur, nil
	}
	return cur, nil
}

func subqueryPlans(comp *plan.ClientComputation) []plan.Node {
	var plans []plan.Node
	for _, ref := range comp.Subqueries {
		plans = append(plans, ref.Plan)
	}
	return plans
}

func neededDecrypts(cur plan.Node, slots []int) []int {
	desc := cur.TupleDesc()
	seen := map[int]bool{}
	var out []int
	for _, s := range slots {
		if s < 0 || seen[s] {
			continue
		}
		seen[s] = true
		if !desc[s].Plain() {
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}

func dedupSorted(positions []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, p := range positions {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}
