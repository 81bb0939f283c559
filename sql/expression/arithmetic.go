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

// Arithmetic is a binary arithmetic node. Op distinguishes the variants.
type Arithmetic struct {
	Op    string
	Left  sql.Expression
	Right sql.Expression
}

// Arithmetic operators.
const (
	PlusOp  = "+"
	MinusOp = "-"
	MultOp  = "*"
	DivOp   = "/"
)

// NewPlus creates a + node.
func NewPlus(left, right sql.Expression) *Arithmetic {
	return &Arithmetic{Op: PlusOp, Left: left, Right: right}
}

// NewMinus creates a - node.
func NewMinus(left, right sql.Expression) *Arithmetic {
	return &Arithmetic{Op: MinusOp, Left: left, Right: right}
}

// NewMult creates a * node.
func NewMult(left, right sql.Expression) *Arithmetic {
	return &Arithmetic{Op: MultOp, Left: left, Right: right}
}

// NewDiv creates a / node.
func NewDiv(left, right sql.Expression) *Arithmetic {
	return &Arithmetic{Op: DivOp, Left: left, Right: right}
}

func (a *Arithmetic) Children() []sql.Expression {
	return []sql.Expression{a.Left, a.Right}
}

func (a *Arithmetic) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 2 {
		return nil, sql.ErrInvalidChildrenNumber.New(2, len(children))
	}
	return &Arithmetic{Op: a.Op, Left: children[0], Right: children[1]}, nil
}

func (a *Arithmetic) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	lv, err := a.Left.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	rv, err := a.Right.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil
	}
	l, err := cast.ToFloat64E(lv)
	if err != nil {
		return nil, err
	}
	r, err := cast.ToFloat64E(rv)
	if err != nil {
		return nil, err
	}
	switch a.Op {
	case PlusOp:
		return l + r, nil
	case MinusOp:
		return l - r, nil
	case MultOp:
		return l * r, nil
	case DivOp:
		if r == 0 {
			return nil, nil
		}
		return l / r, nil
	}
	return nil, sql.ErrNotClientEvaluable.New(a)
}

func (a *Arithmetic) String() string {
	return fmt.Sprintf("(%s %s %s)", a.Left, a.Op, a.Right)
}
