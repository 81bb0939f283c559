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
	"fmt"

	"github.com/liuyi1112/monomi-optimizer/sql"
)

// CountStar is COUNT(*).
type CountStar struct{}

// NewCountStar creates a COUNT(*) node.
func NewCountStar() *CountStar { return &CountStar{} }

func (*CountStar) Children() []sql.Expression { return nil }

func (c *CountStar) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return c, nil
}

func (c *CountStar) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(c)
}

func (*CountStar) String() string { return "COUNT(*)" }

// unaryAgg is the common shape of single-argument aggregates.
type unaryAgg struct {
	Child sql.Expression
	name  string
}

func (a *unaryAgg) Children() []sql.Expression { return []sql.Expression{a.Child} }

func (a *unaryAgg) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(a)
}

func (a *unaryAgg) String() string {
	return fmt.Sprintf("%s(%s)", a.name, a.Child)
}

// Count is COUNT(expr).
type Count struct{ unaryAgg }

// NewCount creates a COUNT(expr) node.
func NewCount(child sql.Expression) *Count {
	return &Count{unaryAgg{Child: child, name: "COUNT"}}
}

func (c *Count) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewCount(children[0]), nil
}

// Min is MIN(expr).
type Min struct{ unaryAgg }

// NewMin creates a MIN node.
func NewMin(child sql.Expression) *Min {
	return &Min{unaryAgg{Child: child, name: "MIN"}}
}

func (m *Min) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewMin(children[0]), nil
}

// Max is MAX(expr).
type Max struct{ unaryAgg }

// NewMax creates a MAX node.
func NewMax(child sql.Expression) *Max {
	return &Max{unaryAgg{Child: child, name: "MAX"}}
}

func (m *Max) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewMax(children[0]), nil
}

// Sum is SUM(expr).
type Sum struct{ unaryAgg }

// NewSum creates a SUM node.
func NewSum(child sql.Expression) *Sum {
	return &Sum{unaryAgg{Child: child, name: "SUM"}}
}

func (s *Sum) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewSum(children[0]), nil
}

// Avg is AVG(expr).
type Avg struct{ unaryAgg }

// NewAvg creates an AVG node.
func NewAvg(child sql.Expression) *Avg {
	return &Avg{unaryAgg{Child: child, name: "AVG"}}
}

func (a *Avg) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewAvg(children[0]), nil
}

// GroupConcat is GROUP_CONCAT(expr, sep): the server packs every value of
// a group into one delimited string, so a single projected position can
// carry the whole group for client-side residual work.
type GroupConcat struct {
	Child sql.Expression
	Sep   string
}

// NewGroupConcat creates a GROUP_CONCAT node.
func NewGroupConcat(child sql.Expression, sep string) *GroupConcat {
	return &GroupConcat{Child: child, Sep: sep}
}

func (g *GroupConcat) Children() []sql.Expression { return []sql.Expression{g.Child} }

func (g *GroupConcat) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewGroupConcat(children[0], g.Sep), nil
}

func (g *GroupConcat) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(g)
}

func (g *GroupConcat) String() string {
	return fmt.Sprintf("GROUP_CONCAT(%s, '%s')", g.Child, g.Sep)
}
