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

// Subselect is a scalar subquery. The nested statement is not part of the
// expression child list: traversals descend into it explicitly.
type Subselect struct {
	Stmt *sql.SelectStmt
}

// NewSubselect creates a Subselect.
func NewSubselect(stmt *sql.SelectStmt) *Subselect {
	return &Subselect{Stmt: stmt}
}

func (*Subselect) Children() []sql.Expression { return nil }

func (s *Subselect) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return s, nil
}

func (s *Subselect) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(s)
}

func (s *Subselect) String() string {
	return fmt.Sprintf("(%s)", s.Stmt)
}

// Exists tests whether a subquery returns any row.
type Exists struct {
	Query *Subselect
}

// NewExists creates an Exists node.
func NewExists(query *Subselect) *Exists {
	return &Exists{Query: query}
}

func (*Exists) Children() []sql.Expression { return nil }

func (e *Exists) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 0 {
		return nil, sql.ErrInvalidChildrenNumber.New(0, len(children))
	}
	return e, nil
}

func (e *Exists) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(e)
}

func (e *Exists) String() string {
	return fmt.Sprintf("EXISTS %s", e.Query)
}
