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
	"github.com/liuyi1112/monomi-optimizer/sql"
)

// ResolveAliases substitutes every field bound to a projection symbol with
// the projection's defining expression, recursively. The result references
// columns only, which is what onionability is defined on. The function is
// idempotent.
func ResolveAliases(e sql.Expression) (sql.Expression, error) {
	return sql.TransformUp(e, func(n sql.Expression) (sql.Expression, error) {
		fi, ok := n.(*FieldIdent)
		if !ok {
			return n, nil
		}
		ps, ok := fi.Symbol.(*sql.ProjectionSymbol)
		if !ok {
			return n, nil
		}
		np, ok := ps.Scope.NamedProjectionByName(ps.Name)
		if !ok || np.Expr == nil {
			return nil, sql.ErrColumnNotFound.New(ps.Name)
		}
		return ResolveAliases(np.Expr)
	})
}

// FieldsOf collects every field reference of the expression in traversal
// order.
func FieldsOf(e sql.Expression) []*FieldIdent {
	var fields []*FieldIdent
	sql.Inspect(e, func(n sql.Expression) bool {
		if f, ok := n.(*FieldIdent); ok {
			fields = append(fields, f)
		}
		return true
	})
	return fields
}

// StripQualifiers copies the expression with every field's qualifier and
// symbol removed. Together with alias resolution this is the canonical
// form keyed by onion sets.
func StripQualifiers(e sql.Expression) (sql.Expression, error) {
	return sql.TransformUp(e, func(n sql.Expression) (sql.Expression, error) {
		if f, ok := n.(*FieldIdent); ok {
			if f.Qualifier == "" && f.Symbol == nil {
				return f, nil
			}
			return NewFieldIdent("", f.FieldName), nil
		}
		return n, nil
	})
}
