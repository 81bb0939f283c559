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

// Literal is a constant value.
type Literal struct {
	Value interface{}
	Typ   sql.Type
}

// NewLiteral creates a literal of the given type.
func NewLiteral(value interface{}, typ sql.Type) *Literal {
	return &Literal{Value: value, Typ: typ}
}

// Type implements sql.Typed.
func (l *Literal) Type() sql.Type { return l.Typ }

func (*Literal) Children() []sql.Expression { return nil }

func (l *Literal) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return l, nil
}

func (l *Literal) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return l.Value, nil
}

func (l *Literal) String() string {
	if l.Value == nil {
		return "NULL"
	}
	switch l.Typ {
	case sql.Text, sql.Date:
		return fmt.Sprintf("'%v'", l.Value)
	default:
		return fmt.Sprintf("%v", l.Value)
	}
}
