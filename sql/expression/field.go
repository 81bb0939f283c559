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

// FieldIdent is a column or projection reference. Resolved references
// carry a Symbol pointing back to their defining scope; canonicalized and
// physical (server-side) references carry none.
type FieldIdent struct {
	Qualifier string
	FieldName string
	Symbol    sql.Symbol
}

// NewFieldIdent creates an unbound field reference.
func NewFieldIdent(qualifier, name string) *FieldIdent {
	return &FieldIdent{Qualifier: qualifier, FieldName: name}
}

// NewBoundField creates a field reference bound to a symbol.
func NewBoundField(qualifier, name string, sym sql.Symbol) *FieldIdent {
	return &FieldIdent{Qualifier: qualifier, FieldName: name, Symbol: sym}
}

// Name returns the unqualified field name.
func (f *FieldIdent) Name() string { return f.FieldName }

// Type implements sql.Typed when the symbol is known.
func (f *FieldIdent) Type() sql.Type {
	if f.Symbol != nil {
		return f.Symbol.DataType()
	}
	return sql.Unknown
}

func (*FieldIdent) Children() []sql.Expression { return nil }

func (f *FieldIdent) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return f, nil
}

func (f *FieldIdent) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(f)
}

func (f *FieldIdent) String() string {
	if f.Qualifier != "" {
		return fmt.Sprintf("%s.%s", f.Qualifier, f.FieldName)
	}
	return f.FieldName
}
