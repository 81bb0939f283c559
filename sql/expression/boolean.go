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

	"github.com/spf13/cast"

	"github.com/liuyi1112/monomi-optimizer/sql"
)

// And is the boolean conjunction of two expressions.
type And struct {
	Left  sql.Expression
	Right sql.Expression
}

// NewAnd creates an And expression.
func NewAnd(left, right sql.Expression) *And {
	return &And{Left: left, Right: right}
}

func (a *And) Children() []sql.Expression {
	return []sql.Expression{a.Left, a.Right}
}

func (a *And) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 2 {
		return nil, sql.ErrInvalidChildrenNumber.New(2, len(children))
	}
	return NewAnd(children[0], children[1]), nil
}

func (a *And) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	l, err := evalBool(a.Left, row, bindings)
	if err != nil {
		return nil, err
	}
	if !l {
		return false, nil
	}
	return evalBool(a.Right, row, bindings)
}

func (a *And) String() string {
	return fmt.Sprintf("(%s AND %s)", a.Left, a.Right)
}

// Or is the boolean disjunction of two expressions.
type Or struct {
	Left  sql.Expression
	Right sql.Expression
}

// NewOr creates an Or expression.
func NewOr(left, right sql.Expression) *Or {
	return &Or{Left: left, Right: right}
}

func (o *Or) Children() []sql.Expression {
	return []sql.Expression{o.Left, o.Right}
}

func (o *Or) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 2 {
		return nil, sql.ErrInvalidChildrenNumber.New(2, len(children))
	}
	return NewOr(children[0], children[1]), nil
}

func (o *Or) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	l, err := evalBool(o.Left, row, bindings)
	if err != nil {
		return nil, err
	}
	if l {
		return true, nil
	}
	return evalBool(o.Right, row, bindings)
}

func (o *Or) String() string {
	return fmt.Sprintf("(%s OR %s)", o.Left, o.Right)
}

// Not negates its child.
type Not struct {
	Child sql.Expression
}

// NewNot creates a Not expression.
func NewNot(child sql.Expression) *Not {
	return &Not{Child: child}
}

func (n *Not) Children() []sql.Expression {
	return []sql.Expression{n.Child}
}

func (n *Not) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewNot(children[0]), nil
}

func (n *Not) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	v, err := evalBool(n.Child, row, bindings)
	if err != nil {
		return nil, err
	}
	return !v, nil
}

func (n *Not) String() string {
	return fmt.Sprintf("NOT (%s)", n.Child)
}

// SplitConjunction breaks an expression into its top-level conjuncts.
func SplitConjunction(e sql.Expression) []sql.Expression {
	and, ok := e.(*And)
	if !ok {
		return []sql.Expression{e}
	}
	return append(
		SplitConjunction(and.Left),
		SplitConjunction(and.Right)...,
	)
}

// JoinAnd refolds a sequence of conjuncts with And. Returns nil for an
// empty sequence.
func JoinAnd(exprs ...sql.Expression) sql.Expression {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	default:
		result := exprs[0]
		for _, e := range exprs[1:] {
			result = NewAnd(result, e)
		}
		return result
	}
}

func evalBool(e sql.Expression, row sql.Row, bindings sql.Bindings) (bool, error) {
	v, err := e.Eval(row, bindings)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, nil
	}
	return cast.ToBoolE(v)
}
