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

	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

// PosDesc describes the encryption state of one tuple position.
type PosDesc = onion.OnionType

// TupleDesc describes every position of a node's output tuples.
type TupleDesc []PosDesc

// Onions returns the onion of each position.
func (d TupleDesc) Onions() []onion.Onion {
	onions := make([]onion.Onion, len(d))
	for i, p := range d {
		onions[i] = p.Onion
	}
	return onions
}

// AllPlain reports whether no position needs decryption.
func (d TupleDesc) AllPlain() bool {
	for _, p := range d {
		if !p.Plain() {
			return false
		}
	}
	return true
}

// EncryptedPositions returns the positions that are not PLAIN.
func (d TupleDesc) EncryptedPositions() []int {
	var positions []int
	for i, p := range d {
		if !p.Plain() {
			positions = append(positions, i)
		}
	}
	return positions
}

func (d TupleDesc) String() string {
	parts := make([]string, len(d))
	for i, p := range d {
		parts[i] = p.Onion.String()
		if p.VectorCtx {
			parts[i] += "*"
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Node is a node of a plan tree. Leaves are rewritten SQL statements
// executed server-side; interior nodes are client-side operators.
type Node interface {
	fmt.Stringer
	// TupleDesc describes the node's output tuples.
	TupleDesc() TupleDesc
	// Children returns the child plans.
	Children() []Node
}

// treePrinter renders plan trees in indented form.
type treePrinter struct {
	b      strings.Builder
	indent int
}

func (p *treePrinter) node(label string) {
	if p.indent > 0 {
		p.b.WriteString(strings.Repeat("    ", p.indent-1))
		p.b.WriteString(" └─ ")
	}
	p.b.WriteString(label)
	p.b.WriteByte('\n')
}

func printTree(n Node) string {
	var p treePrinter
	printNode(&p, n)
	return strings.TrimRight(p.b.String(), "\n")
}

func printNode(p *treePrinter, n Node) {
	p.node(nodeLabel(n))
	p.indent++
	for _, c := range n.Children() {
		printNode(p, c)
	}
	p.indent--
}
