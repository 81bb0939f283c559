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
	"strings"

	"github.com/spf13/cast"

	"github.com/liuyi1112/monomi-optimizer/sql"
)

// Comparison is a binary comparison node. Op distinguishes the variants.
type Comparison struct {
	Op    string
	Left  sql.Expression
	Right sql.Expression
}

// Equality-like and inequality-like comparison operators.
const (
	EqOp  = "="
	NeqOp = "<>"
	LtOp  = "<"
	LteOp = "<="
	GtOp  = ">"
	GteOp = ">="
)

// NewEquals creates an equality comparison.
func NewEquals(left, right sql.Expression) *Comparison {
	return &Comparison{Op: EqOp, Left: left, Right: right}
}

// NewNotEquals creates an inequality comparison.
func NewNotEquals(left, right sql.Expression) *Comparison {
	return &Comparison{Op: NeqOp, Left: left, Right: right}
}

// NewLessThan creates a < comparison.
func NewLessThan(left, right sql.Expression) *Comparison {
	return &Comparison{Op: LtOp, Left: left, Right: right}
}

// NewLessThanOrEqual creates a <= comparison.
func NewLessThanOrEqual(left, right sql.Expression) *Comparison {
	return &Comparison{Op: LteOp, Left: left, Right: right}
}

// NewGreaterThan creates a > comparison.
func NewGreaterThan(left, right sql.Expression) *Comparison {
	return &Comparison{Op: GtOp, Left: left, Right: right}
}

// NewGreaterThanOrEqual creates a >= comparison.
func NewGreaterThanOrEqual(left, right sql.Expression) *Comparison {
	return &Comparison{Op: GteOp, Left: left, Right: right}
}

// IsEquality reports whether the comparison is equality-like (=, <>).
func (c *Comparison) IsEquality() bool {
	return c.Op == EqOp || c.Op == NeqOp
}

func (c *Comparison) Children() []sql.Expression {
	return []sql.Expression{c.Left, c.Right}
}

func (c *Comparison) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 2 {
		return nil, sql.ErrInvalidChildrenNumber.New(2, len(children))
	}
	return &Comparison{Op: c.Op, Left: children[0], Right: children[1]}, nil
}

func (c *Comparison) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	l, err := c.Left.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	r, err := c.Right.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	if l == nil || r == nil {
		return nil, nil
	}
	cmp, err := compareValues(l, r)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case EqOp:
		return cmp == 0, nil
	case NeqOp:
		return cmp != 0, nil
	case LtOp:
		return cmp < 0, nil
	case LteOp:
		return cmp <= 0, nil
	case GtOp:
		return cmp > 0, nil
	case GteOp:
		return cmp >= 0, nil
	}
	return nil, sql.ErrNotClientEvaluable.New(c)
}

func (c *Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left, c.Op, c.Right)
}

// In tests membership of Left in a sequence of values or a subselect.
type In struct {
	Left   sql.Expression
	Values []sql.Expression
}

// NewIn creates an In expression.
func NewIn(left sql.Expression, values ...sql.Expression) *In {
	return &In{Left: left, Values: values}
}

func (in *In) Children() []sql.Expression {
	children := make([]sql.Expression, 0, len(in.Values)+1)
	children = append(children, in.Left)
	children = append(children, in.Values...)
	return children
}

func (in *In) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != len(in.Values)+1 {
		return nil, sql.ErrInvalidChildrenNumber.New(len(in.Values)+1, len(children))
	}
	return NewIn(children[0], children[1:]...), nil
}

func (in *In) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	l, err := in.Left.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	for _, v := range in.Values {
		rv, err := v.Eval(row, bindings)
		if err != nil {
			return nil, err
		}
		cmp, err := compareValues(l, rv)
		if err != nil {
			return nil, err
		}
		if cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (in *In) String() string {
	values := make([]string, len(in.Values))
	for i, v := range in.Values {
		values[i] = v.String()
	}
	return fmt.Sprintf("(%s IN (%s))", in.Left, strings.Join(values, ", "))
}

// Like is a SQL LIKE pattern match.
type Like struct {
	Left  sql.Expression
	Right sql.Expression
}

// NewLike creates a Like expression.
func NewLike(left, right sql.Expression) *Like {
	return &Like{Left: left, Right: right}
}

func (l *Like) Children() []sql.Expression {
	return []sql.Expression{l.Left, l.Right}
}

func (l *Like) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 2 {
		return nil, sql.ErrInvalidChildrenNumber.New(2, len(children))
	}
	return NewLike(children[0], children[1]), nil
}

func (l *Like) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	lv, err := l.Left.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	rv, err := l.Right.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	s, err := cast.ToStringE(lv)
	if err != nil {
		return nil, err
	}
	pattern, err := cast.ToStringE(rv)
	if err != nil {
		return nil, err
	}
	return likeMatch(s, pattern), nil
}

func (l *Like) String() string {
	return fmt.Sprintf("(%s LIKE %s)", l.Left, l.Right)
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(s, pattern string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatch(s[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '_':
		return len(s) > 0 && likeMatch(s[1:], pattern[1:])
	default:
		return len(s) > 0 && s[0] == pattern[0] && likeMatch(s[1:], pattern[1:])
	}
}

// compareValues orders two client-side values, coercing numerics through
// float64 and everything else through string.
func compareValues(l, r interface{}) (int, error) {
	lf, lerr := cast.ToFloat64E(l)
	rf, rerr := cast.ToFloat64E(r)
	if lerr == nil && rerr == nil {
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	ls, err := cast.ToStringE(l)
	if err != nil {
		return 0, err
	}
	rs, err := cast.ToStringE(r)
	if err != nil {
		return 0, err
	}
	return strings.Compare(ls, rs), nil
}
