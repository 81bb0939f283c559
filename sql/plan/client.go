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
	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/expression"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

// ClientProjection is one server-side projection a client computation
// reads: the original subexpression it stands in for, the rewritten
// server-side form, and the onion the value arrives under.
type ClientProjection struct {
	Orig   sql.Expression
	Server sql.Expression
	Onion  onion.OnionType
}

// Key is the content address used for projection deduplication.
func (p *ClientProjection) Key() string {
	return p.Server.String() + "$" + p.Onion.Onion.String()
}

// DependentBinding records one outer reference of a correlated subquery:
// the placeholder standing in for it, the original field, and the index of
// the outer projection whose value binds it.
type DependentBinding struct {
	Placeholder *expression.DependentFieldPlaceholder
	Field       sql.Expression
	ProjIdx     int
}

// SubqueryRef is one subquery the client evaluates as part of a residual
// expression.
type SubqueryRef struct {
	Node     sql.Expression
	Plan     Node
	Bindings []DependentBinding
}

// ClientComputation is the residual client-side work for an expression the
// server cannot fully answer. Its expression references only projection
// slots, bound dependent placeholders, and subquery positions.
type ClientComputation struct {
	Expr     sql.Expression
	OrigExpr sql.Expression
	// Projections are the server-side values the expression reads,
	// referenced by ProjectionPlaceholder index.
	Projections []*ClientProjection
	// SubqueryProjections are the outer values shipped into correlated
	// subqueries, referenced by DependentBinding.ProjIdx.
	SubqueryProjections []*ClientProjection
	// Subqueries are referenced by SubqueryPosition and
	// ExistsSubqueryPosition index.
	Subqueries []*SubqueryRef
}

// AddProjection inserts a projection, deduplicating by content, and
// returns its canonical slot index.
func (c *ClientComputation) AddProjection(p *ClientProjection) int {
	key := p.Key()
	for i, existing := range c.Projections {
		if existing.Key() == key {
			return i
		}
	}
	c.Projections = append(c.Projections, p)
	return len(c.Projections) - 1
}

// AddSubqueryProjection inserts an outer-binding projection with the same
// dedup rule.
func (c *ClientComputation) AddSubqueryProjection(p *ClientProjection) int {
	key := p.Key()
	for i, existing := range c.SubqueryProjections {
		if existing.Key() == key {
			return i
		}
	}
	c.SubqueryProjections = append(c.SubqueryProjections, p)
	return len(c.SubqueryProjections) - 1
}

// MergeConjunctions folds b into a, producing the conjunction of both
// residuals over a shared projection list. The operation is associative.
func MergeConjunctions(a, b *ClientComputation) (*ClientComputation, error) {
	merged := &ClientComputation{
		OrigExpr:            expression.NewAnd(a.OrigExpr, b.OrigExpr),
		Projections:         append([]*ClientProjection(nil), a.Projections...),
		SubqueryProjections: append([]*ClientProjection(nil), a.SubqueryProjections...),
		Subqueries:          append([]*SubqueryRef(nil), a.Subqueries...),
	}

	projMap := make(map[int]int, len(b.Projections))
	for i, p := range b.Projections {
		projMap[i] = merged.AddProjection(p)
	}
	subProjMap := make(map[int]int, len(b.SubqueryProjections))
	for i, p := range b.SubqueryProjections {
		subProjMap[i] = merged.AddSubqueryProjection(p)
	}
	subOffset := len(a.Subqueries)
	for _, s := range b.Subqueries {
		remapped := &SubqueryRef{Node: s.Node, Plan: s.Plan}
		for _, bind := range s.Bindings {
			remapped.Bindings = append(remapped.Bindings, DependentBinding{
				Placeholder: bind.Placeholder,
				Field:       bind.Field,
				ProjIdx:     subProjMap[bind.ProjIdx],
			})
		}
		merged.Subqueries = append(merged.Subqueries, remapped)
	}

	bExpr, err := sql.TransformUp(b.Expr, func(n sql.Expression) (sql.Expression, error) {
		switch v := n.(type) {
		case *expression.ProjectionPlaceholder:
			return expression.NewProjectionPlaceholder(projMap[v.Idx]), nil
		case *expression.SubqueryPosition:
			return expression.NewSubqueryPosition(v.Idx + subOffset), nil
		case *expression.ExistsSubqueryPosition:
			return expression.NewExistsSubqueryPosition(v.Idx + subOffset), nil
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	merged.Expr = expression.NewAnd(a.Expr, bExpr)
	return merged, nil
}

// MkSqlExpr resolves the computation's projection slots to final tuple
// positions via slotOf, producing the expression a local operator
// evaluates.
func (c *ClientComputation) MkSqlExpr(slotOf func(projIdx int) int) (sql.Expression, error) {
	return sql.TransformUp(c.Expr, func(n sql.Expression) (sql.Expression, error) {
		if p, ok := n.(*expression.ProjectionPlaceholder); ok {
			return expression.NewTuplePosition(slotOf(p.Idx)), nil
		}
		return n, nil
	})
}
