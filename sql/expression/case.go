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
	"strings"

	"github.com/liuyi1112/monomi-optimizer/sql"
)

// CaseBranch is one WHEN/THEN pair of a searched CASE.
type CaseBranch struct {
	Cond  sql.Expression
	Value sql.Expression
}

// Case is a searched CASE expression with an optional ELSE.
type Case struct {
	Branches []CaseBranch
	Else     sql.Expression
}

// NewCase creates a Case expression.
func NewCase(branches []CaseBranch, elseExpr sql.Expression) *Case {
	return &Case{Branches: branches, Else: elseExpr}
}

func (c *Case) Children() []sql.Expression {
	var children []sql.Expression
	for _, b := range c.Branches {
		children = append(children, b.Cond, b.Value)
	}
	if c.Else != nil {
		children = append(children, c.Else)
	}
	return children
}

func (c *Case) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	want := 2 * len(c.Branches)
	if c.Else != nil {
		want++
	}
	if len(children) != want {
		return nil, sql.ErrInvalidChildrenNumber.New(want, len(children))
	}
	branches := make([]CaseBranch, len(c.Branches))
	for i := range branches {
		branches[i] = CaseBranch{Cond: children[2*i], Value: children[2*i+1]}
	}
	var elseExpr sql.Expression
	if c.Else != nil {
		elseExpr = children[len(children)-1]
	}
	return NewCase(branches, elseExpr), nil
}

func (c *Case) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	for _, b := range c.Branches {
		ok, err := evalBool(b.Cond, row, bindings)
		if err != nil {
			return nil, err
		}
		if ok {
			return b.Value.Eval(row, bindings)
		}
	}
	if c.Else != nil {
		return c.Else.Eval(row, bindings)
	}
	return nil, nil
}

func (c *Case) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, br := range c.Branches {
		b.WriteString(" WHEN ")
		b.WriteString(br.Cond.String())
		b.WriteString(" THEN ")
		b.WriteString(br.Value.String())
	}
	if c.Else != nil {
		b.WriteString(" ELSE ")
		b.WriteString(c.Else.String())
	}
	b.WriteString(" END")
	return b.String()
}
