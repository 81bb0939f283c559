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

package plan

import (
	"fmt"
	"strings"

	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

// LocalFilter drops tuples for which Expr evaluates false. OrigExpr is the
// plaintext predicate the filter stands in for.
type LocalFilter struct {
	Expr     sql.Expression
	OrigExpr sql.Expression
	Child    Node
	Subplans []Node
}

// NewLocalFilter creates a LocalFilter node.
func NewLocalFilter(expr, origExpr sql.Expression, child Node, subplans []Node) *LocalFilter {
	return &LocalFilter{Expr: expr, OrigExpr: origExpr, Child: child, Subplans: subplans}
}

func (f *LocalFilter) TupleDesc() TupleDesc { return f.Child.TupleDesc() }
func (f *LocalFilter) Children() []Node     { return append([]Node{f.Child}, f.Subplans...) }
func (f *LocalFilter) String() string       { return printTree(f) }

// LocalGroupFilter applies a residual HAVING predicate after the server
// has aggregated.
type LocalGroupFilter struct {
	Expr     sql.Expression
	OrigExpr sql.Expression
	Child    Node
	Subplans []Node
}

// NewLocalGroupFilter creates a LocalGroupFilter node.
func NewLocalGroupFilter(expr, origExpr sql.Expression, child Node, subplans []Node) *LocalGroupFilter {
	return &LocalGroupFilter{Expr: expr, OrigExpr: origExpr, Child: child, Subplans: subplans}
}

func (f *LocalGroupFilter) TupleDesc() TupleDesc { return f.Child.TupleDesc() }
func (f *LocalGroupFilter) Children() []Node     { return append([]Node{f.Child}, f.Subplans...) }
func (f *LocalGroupFilter) String() string       { return printTree(f) }

// TransformOp is one output of a LocalTransform: either a pass-through of
// an input position or a computed expression.
type TransformOp struct {
	// Pass is the input position passed through when Expr is nil.
	Pass int
	// Expr computes the output from the input tuple when non-nil.
	Expr sql.Expression
	// Desc describes the output when Expr is non-nil.
	Desc PosDesc
}

// PassThrough creates a pass-through transform output.
func PassThrough(pos int) TransformOp {
	return TransformOp{Pass: pos}
}

// ComputedOp creates a computed transform output.
func ComputedOp(expr sql.Expression, desc PosDesc) TransformOp {
	return TransformOp{Expr: expr, Desc: desc}
}

func (op TransformOp) String() string {
	if op.Expr != nil {
		return fmt.Sprintf("Right(%s)", op.Expr)
	}
	return fmt.Sprintf("Left(%d)", op.Pass)
}

// LocalTransform reshapes tuples: each output is either a pass-through
// input position or a client-computed expression.
type LocalTransform struct {
	Ops   []TransformOp
	Child Node
}

// NewLocalTransform creates a LocalTransform node.
func NewLocalTransform(ops []TransformOp, child Node) *LocalTransform {
	return &LocalTransform{Ops: ops, Child: child}
}

func (t *LocalTransform) TupleDesc() TupleDesc {
	childDesc := t.Child.TupleDesc()
	desc := make(TupleDesc, len(t.Ops))
	for i, op := range t.Ops {
		if op.Expr != nil {
			desc[i] = op.Desc
		} else {
			desc[i] = childDesc[op.Pass]
		}
	}
	return desc
}

func (t *LocalTransform) Children() []Node { return []Node{t.Child} }
func (t *LocalTransform) String() string   { return printTree(t) }

func (t *LocalTransform) opsString() string {
	parts := make([]string, len(t.Ops))
	for i, op := range t.Ops {
		parts[i] = op.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// SortKey is one key of a LocalOrderBy.
type SortKey struct {
	Pos  int
	Desc bool
	// OPE is set when the position is compared under OPE without
	// decryption.
	OPE bool
}

func (k SortKey) String() string {
	s := fmt.Sprintf("col%d", k.Pos)
	if k.OPE {
		s += "$OPE"
	}
	if k.Desc {
		s += " DESC"
	}
	return s
}

// LocalOrderBy sorts tuples client-side.
type LocalOrderBy struct {
	Keys  []SortKey
	Child Node
}

// NewLocalOrderBy creates a LocalOrderBy node.
func NewLocalOrderBy(keys []SortKey, child Node) *LocalOrderBy {
	return &LocalOrderBy{Keys: keys, Child: child}
}

func (o *LocalOrderBy) TupleDesc() TupleDesc { return o.Child.TupleDesc() }
func (o *LocalOrderBy) Children() []Node     { return []Node{o.Child} }
func (o *LocalOrderBy) String() string       { return printTree(o) }

func (o *LocalOrderBy) keysString() string {
	parts := make([]string, len(o.Keys))
	for i, k := range o.Keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}

// LocalLimit truncates the stream after N tuples.
type LocalLimit struct {
	N     int64
	Child Node
}

// NewLocalLimit creates a LocalLimit node.
func NewLocalLimit(n int64, child Node) *LocalLimit {
	return &LocalLimit{N: n, Child: child}
}

func (l *LocalLimit) TupleDesc() TupleDesc { return l.Child.TupleDesc() }
func (l *LocalLimit) Children() []Node     { return []Node{l.Child} }
func (l *LocalLimit) String() string       { return printTree(l) }

// LocalDecrypt decrypts the given positions of each tuple. Packed HOM
// positions decrypt to the plaintext slot vector of their group.
type LocalDecrypt struct {
	Positions []int
	Child     Node
}

// NewLocalDecrypt creates a LocalDecrypt node.
func NewLocalDecrypt(positions []int, child Node) *LocalDecrypt {
	return &LocalDecrypt{Positions: positions, Child: child}
}

func (d *LocalDecrypt) TupleDesc() TupleDesc {
	childDesc := d.Child.TupleDesc()
	desc := make(TupleDesc, len(childDesc))
	copy(desc, childDesc)
	for _, pos := range d.Positions {
		desc[pos] = PosDesc{
			Onion:     onion.PLAIN,
			VectorCtx: childDesc[pos].VectorCtx,
			HomGroup:  childDesc[pos].HomGroup,
		}
	}
	return desc
}

func (d *LocalDecrypt) Children() []Node { return []Node{d.Child} }
func (d *LocalDecrypt) String() string   { return printTree(d) }

// EncryptPos is one re-encryption target of a LocalEncrypt.
type EncryptPos struct {
	Pos   int
	Onion onion.Onion
}

// LocalEncrypt re-encrypts positions to the given onions, used to satisfy
// an EncProj output requirement.
type LocalEncrypt struct {
	Positions []EncryptPos
	Child     Node
}

// NewLocalEncrypt creates a LocalEncrypt node.
func NewLocalEncrypt(positions []EncryptPos, child Node) *LocalEncrypt {
	return &LocalEncrypt{Positions: positions, Child: child}
}

func (e *LocalEncrypt) TupleDesc() TupleDesc {
	childDesc := e.Child.TupleDesc()
	desc := make(TupleDesc, len(childDesc))
	copy(desc, childDesc)
	for _, p := range e.Positions {
		desc[p.Pos] = PosDesc{Onion: p.Onion, VectorCtx: childDesc[p.Pos].VectorCtx}
	}
	return desc
}

func (e *LocalEncrypt) Children() []Node { return []Node{e.Child} }
func (e *LocalEncrypt) String() string   { return printTree(e) }

func (e *LocalEncrypt) positionsString() string {
	parts := make([]string, len(e.Positions))
	for i, p := range e.Positions {
		parts[i] = fmt.Sprintf("%d:%s", p.Pos, p.Onion)
	}
	return strings.Join(parts, ", ")
}
