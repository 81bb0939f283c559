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

	"github.com/liuyi1112/monomi-optimizer/sql"
)

// RemoteSql is a leaf: a rewritten SQL statement evaluated server-side
// against encrypted storage. Subplans carry the plans of dependent or
// materialized subqueries referenced by the statement.
type RemoteSql struct {
	Stmt     *sql.SelectStmt
	Desc     TupleDesc
	Subplans []Node
}

// NewRemoteSql creates a RemoteSql leaf.
func NewRemoteSql(stmt *sql.SelectStmt, desc TupleDesc, subplans []Node) *RemoteSql {
	return &RemoteSql{Stmt: stmt, Desc: desc, Subplans: subplans}
}

func (r *RemoteSql) TupleDesc() TupleDesc { return r.Desc }
func (r *RemoteSql) Children() []Node     { return nil }

func (r *RemoteSql) String() string { return printTree(r) }

// RemoteMaterialize stores its child's output server-side under a
// synthetic relation name, so an outer statement can reference it as a
// table.
type RemoteMaterialize struct {
	Name  string
	Child Node
}

// NewRemoteMaterialize creates a RemoteMaterialize node.
func NewRemoteMaterialize(name string, child Node) *RemoteMaterialize {
	return &RemoteMaterialize{Name: name, Child: child}
}

func (r *RemoteMaterialize) TupleDesc() TupleDesc { return r.Child.TupleDesc() }
func (r *RemoteMaterialize) Children() []Node     { return []Node{r.Child} }

func (r *RemoteMaterialize) String() string { return printTree(r) }

func nodeLabel(n Node) string {
	switch v := n.(type) {
	case *RemoteSql:
		label := fmt.Sprintf("RemoteSql(%s) %s", v.Stmt, v.Desc)
		for _, sp := range v.Subplans {
			label += fmt.Sprintf("\n    <subplan> %s", sp)
		}
		return label
	case *RemoteMaterialize:
		return fmt.Sprintf("RemoteMaterialize(%s)", v.Name)
	case *LocalFilter:
		return fmt.Sprintf("LocalFilter(%s)", v.Expr)
	case *LocalGroupFilter:
		return fmt.Sprintf("LocalGroupFilter(%s)", v.Expr)
	case *LocalTransform:
		return fmt.Sprintf("LocalTransform(%s)", v.opsString())
	case *LocalOrderBy:
		return fmt.Sprintf("LocalOrderBy(%s)", v.keysString())
	case *LocalLimit:
		return fmt.Sprintf("LocalLimit(%d)", v.N)
	case *LocalDecrypt:
		return fmt.Sprintf("LocalDecrypt(%v)", v.Positions)
	case *LocalEncrypt:
		return fmt.Sprintf("LocalEncrypt(%s)", v.positionsString())
	default:
		return fmt.Sprintf("%T", n)
	}
}
