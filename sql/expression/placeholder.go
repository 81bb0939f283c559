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
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

// DependentFieldPlaceholder is a positional stand-in for an outer-tuple
// value inside a correlated subquery. Bind fixes the onion the value is
// shipped under.
type DependentFieldPlaceholder struct {
	Pos   int
	Onion onion.Onion
}

// NewDependentFieldPlaceholder creates an unbound placeholder.
func NewDependentFieldPlaceholder(pos int) *DependentFieldPlaceholder {
	return &DependentFieldPlaceholder{Pos: pos}
}

// Bind returns a copy of the placeholder bound to an onion.
func (d *DependentFieldPlaceholder) Bind(o onion.Onion) *DependentFieldPlaceholder {
	return &DependentFieldPlaceholder{Pos: d.Pos, Onion: o}
}

func (*DependentFieldPlaceholder) Children() []sql.Expression { return nil }

func (d *DependentFieldPlaceholder) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return d, nil
}

func (d *DependentFieldPlaceholder) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	v, ok := bindings[d.Pos]
	if !ok {
		return nil, sql.ErrUnboundPlaceholder.New(d.Pos)
	}
	return v, nil
}

func (d *DependentFieldPlaceholder) String() string {
	if d.Onion != 0 {
		return fmt.Sprintf(":dep%d$%s", d.Pos, d.Onion)
	}
	return fmt.Sprintf(":dep%d", d.Pos)
}

// TuplePosition references a position of the tuple a client operator
// consumes.
type TuplePosition struct {
	Pos int
}

// NewTuplePosition creates a tuple position reference.
func NewTuplePosition(pos int) *TuplePosition {
	return &TuplePosition{Pos: pos}
}

func (*TuplePosition) Children() []sql.Expression { return nil }

func (t *TuplePosition) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return t, nil
}

func (t *TuplePosition) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	if t.Pos < 0 || t.Pos >= len(row) {
		return nil, sql.ErrNotClientEvaluable.New(t)
	}
	return row[t.Pos], nil
}

func (t *TuplePosition) String() string {
	return fmt.Sprintf("col%d", t.Pos)
}

// ProjectionPlaceholder references a slot of a client computation's
// projection list before the slots are remapped to final tuple positions.
type ProjectionPlaceholder struct {
	Idx int
}

// NewProjectionPlaceholder creates a projection slot reference.
func NewProjectionPlaceholder(idx int) *ProjectionPlaceholder {
	return &ProjectionPlaceholder{Idx: idx}
}

func (*ProjectionPlaceholder) Children() []sql.Expression { return nil }

func (p *ProjectionPlaceholder) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return p, nil
}

func (p *ProjectionPlaceholder) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(p)
}

func (p *ProjectionPlaceholder) String() string {
	return fmt.Sprintf("proj$%d", p.Idx)
}

// SubqueryPosition references an entry of a client computation's subquery
// list.
type SubqueryPosition struct {
	Idx int
}

// NewSubqueryPosition creates a subquery reference.
func NewSubqueryPosition(idx int) *SubqueryPosition {
	return &SubqueryPosition{Idx: idx}
}

func (*SubqueryPosition) Children() []sql.Expression { return nil }

func (s *SubqueryPosition) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return s, nil
}

func (s *SubqueryPosition) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(s)
}

func (s *SubqueryPosition) String() string {
	return fmt.Sprintf("subquery$%d", s.Idx)
}

// ExistsSubqueryPosition references a subquery entry evaluated for row
// existence only.
type ExistsSubqueryPosition struct {
	Idx int
}

// NewExistsSubqueryPosition creates an existence subquery reference.
func NewExistsSubqueryPosition(idx int) *ExistsSubqueryPosition {
	return &ExistsSubqueryPosition{Idx: idx}
}

func (*ExistsSubqueryPosition) Children() []sql.Expression { return nil }

func (e *ExistsSubqueryPosition) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return e, nil
}

func (e *ExistsSubqueryPosition) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(e)
}

func (e *ExistsSubqueryPosition) String() string {
	return fmt.Sprintf("exists$%d", e.Idx)
}
