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
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

// FunctionCall is an opaque scalar function application. The generator
// treats unknown functions as unsupported server-side and pushes them to
// the client.
type FunctionCall struct {
	FuncName string
	Args     []sql.Expression
}

// NewFunctionCall creates a function application.
func NewFunctionCall(name string, args ...sql.Expression) *FunctionCall {
	return &FunctionCall{FuncName: name, Args: args}
}

func (f *FunctionCall) Children() []sql.Expression { return f.Args }

func (f *FunctionCall) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != len(f.Args) {
		return nil, sql.ErrInvalidChildrenNumber.New(len(f.Args), len(children))
	}
	return NewFunctionCall(f.FuncName, children...), nil
}

func (f *FunctionCall) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	if strings.EqualFold(f.FuncName, "substr") && len(f.Args) == 3 {
		args := make([]interface{}, 3)
		for i, a := range f.Args {
			v, err := a.Eval(row, bindings)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		s, err := cast.ToStringE(args[0])
		if err != nil {
			return nil, err
		}
		start, err := cast.ToIntE(args[1])
		if err != nil {
			return nil, err
		}
		n, err := cast.ToIntE(args[2])
		if err != nil {
			return nil, err
		}
		if start < 1 {
			start = 1
		}
		if start > len(s) {
			return "", nil
		}
		end := start - 1 + n
		if end > len(s) {
			end = len(s)
		}
		return s[start-1 : end], nil
	}
	return nil, sql.ErrNotClientEvaluable.New(f)
}

func (f *FunctionCall) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", f.FuncName, strings.Join(args, ", "))
}

// Encrypt renders a server-side encryption of a literal under an onion.
type Encrypt struct {
	Child sql.Expression
	Onion onion.Onion
}

// NewEncrypt creates an encrypt node.
func NewEncrypt(child sql.Expression, o onion.Onion) *Encrypt {
	return &Encrypt{Child: child, Onion: o}
}

func (e *Encrypt) Children() []sql.Expression { return []sql.Expression{e.Child} }

func (e *Encrypt) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewEncrypt(children[0], e.Onion), nil
}

func (e *Encrypt) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(e)
}

func (e *Encrypt) String() string {
	return fmt.Sprintf("encrypt(%s, %s)", e.Child, e.Onion)
}

// HomAgg is the server-side homomorphic aggregate over a packed HOM
// group's ciphertext rows.
type HomAgg struct {
	Child sql.Expression
	Table string
	Group int
}

// NewHomAgg creates a hom_agg node.
func NewHomAgg(child sql.Expression, table string, group int) *HomAgg {
	return &HomAgg{Child: child, Table: table, Group: group}
}

func (h *HomAgg) Children() []sql.Expression { return []sql.Expression{h.Child} }

func (h *HomAgg) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewHomAgg(children[0], h.Table, h.Group), nil
}

func (h *HomAgg) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(h)
}

func (h *HomAgg) String() string {
	return fmt.Sprintf("hom_agg(%s, '%s', %d)", h.Child, h.Table, h.Group)
}

// HomGetPos extracts one slot of a decrypted packed HOM aggregate.
type HomGetPos struct {
	Child sql.Expression
	Pos   int
}

// NewHomGetPos creates a hom_get_pos node.
func NewHomGetPos(child sql.Expression, pos int) *HomGetPos {
	return &HomGetPos{Child: child, Pos: pos}
}

func (h *HomGetPos) Children() []sql.Expression { return []sql.Expression{h.Child} }

func (h *HomGetPos) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 1 {
		return nil, sql.ErrInvalidChildrenNumber.New(1, len(children))
	}
	return NewHomGetPos(children[0], h.Pos), nil
}

func (h *HomGetPos) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	v, err := h.Child.Eval(row, bindings)
	if err != nil {
		return nil, err
	}
	packed, ok := v.([]interface{})
	if !ok || h.Pos >= len(packed) {
		return nil, sql.ErrNotClientEvaluable.New(h)
	}
	return packed[h.Pos], nil
}

func (h *HomGetPos) String() string {
	return fmt.Sprintf("hom_get_pos(%s, %d)", h.Child, h.Pos)
}

// SearchSWP is the server-side substring-match primitive backing LIKE
// under the SWP onion.
type SearchSWP struct {
	Left  sql.Expression
	Right sql.Expression
}

// NewSearchSWP creates a searchSWP node.
func NewSearchSWP(left, right sql.Expression) *SearchSWP {
	return &SearchSWP{Left: left, Right: right}
}

func (s *SearchSWP) Children() []sql.Expression {
	return []sql.Expression{s.Left, s.Right}
}

func (s *SearchSWP) WithChildren(children ...sql.Expression) (sql.Expression, error) {
	if len(children) != 2 {
		return nil, sql.ErrInvalidChildrenNumber.New(2, len(children))
	}
	return NewSearchSWP(children[0], children[1]), nil
}

func (s *SearchSWP) Eval(row sql.Row, bindings sql.Bindings) (interface{}, error) {
	return nil, sql.ErrNotClientEvaluable.New(s)
}

func (s *SearchSWP) String() string {
	return fmt.Sprintf("searchSWP(%s, %s, NULL)", s.Left, s.Right)
}
