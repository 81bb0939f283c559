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

package sql

import (
	"fmt"
)

// Row is a tuple of values.
type Row []interface{}

// NewRow creates a row from the given values.
func NewRow(values ...interface{}) Row {
	row := make(Row, len(values))
	copy(row, values)
	return row
}

// Copy creates a new row with the same values as this one.
func (r Row) Copy() Row {
	return NewRow(r...)
}

// Bindings maps dependent field placeholder positions to the outer-tuple
// values they stand in for during client evaluation.
type Bindings map[int]interface{}

// Expression is a node in an expression tree. Trees are read-only shared
// data: transformations produce new nodes with shared subtrees where
// unchanged.
type Expression interface {
	fmt.Stringer
	// Children returns the immediate children of this node.
	Children() []Expression
	// WithChildren returns a copy of this node with the given children.
	WithChildren(children ...Expression) (Expression, error)
	// Eval evaluates the node against a client tuple. Server-only nodes
	// return ErrNotClientEvaluable.
	Eval(row Row, bindings Bindings) (interface{}, error)
}

// Visitor visits expression nodes. If the result of Visit is not nil, Walk
// visits each child of the node with that visitor.
type Visitor interface {
	Visit(e Expression) Visitor
}

// Walk traverses the expression tree in depth-first order. It starts by
// calling v.Visit(e); e must not be nil.
func Walk(v Visitor, e Expression) {
	if v = v.Visit(e); v == nil {
		return
	}

	for _, child := range e.Children() {
		Walk(v, child)
	}
}

type inspector func(Expression) bool

func (f inspector) Visit(e Expression) Visitor {
	if f(e) {
		return f
	}
	return nil
}

// Inspect traverses the expression in depth-first order: it starts by
// calling f(e); e must not be nil. If f returns true, Inspect invokes f
// recursively for each of the children of e.
func Inspect(e Expression, f func(Expression) bool) {
	Walk(inspector(f), e)
}

// TransformExprFunc rebuilds an expression node.
type TransformExprFunc func(Expression) (Expression, error)

// TransformUp applies f to each node of the tree bottom-up, rebuilding
// parents whose children changed.
func TransformUp(e Expression, f TransformExprFunc) (Expression, error) {
	children := e.Children()
	if len(children) > 0 {
		newChildren := make([]Expression, len(children))
		changed := false
		for i, c := range children {
			nc, err := TransformUp(c, f)
			if err != nil {
				return nil, err
			}
			if nc != c {
				changed = true
			}
			newChildren[i] = nc
		}
		if changed {
			var err error
			e, err = e.WithChildren(newChildren...)
			if err != nil {
				return nil, err
			}
		}
	}
	return f(e)
}

// TransformDownFunc rewrites a node top-down. It returns the replacement
// node and whether the transform should keep descending into its children.
type TransformDownFunc func(Expression) (Expression, bool, error)

// TransformDown applies f to each node of the tree top-down. When f
// reports false for descend, the returned subtree is taken as-is.
func TransformDown(e Expression, f TransformDownFunc) (Expression, error) {
	ne, descend, err := f(e)
	if err != nil {
		return nil, err
	}
	if !descend {
		return ne, nil
	}

	children := ne.Children()
	if len(children) == 0 {
		return ne, nil
	}

	newChildren := make([]Expression, len(children))
	changed := false
	for i, c := range children {
		nc, err := TransformDown(c, f)
		if err != nil {
			return nil, err
		}
		if nc != c {
			changed = true
		}
		newChildren[i] = nc
	}
	if !changed {
		return ne, nil
	}
	return ne.WithChildren(newChildren...)
}
