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

// Relation is a named data source visible in a scope: either a base table
// or a derived table produced by a subquery.
type Relation interface {
	relationNode()
}

// TableRelation is a base table relation.
type TableRelation struct {
	TableName string
}

func (*TableRelation) relationNode() {}

// SubqueryRelation is a derived table produced by a nested SELECT.
type SubqueryRelation struct {
	Stmt *SelectStmt
}

func (*SubqueryRelation) relationNode() {}

// RelationBinding associates a scope alias with its relation. Bindings are
// kept ordered so lookups are deterministic.
type RelationBinding struct {
	Alias    string
	Relation Relation
}

// Projection is a projection descriptor of a scope: either a named
// projection with its defining expression and position, or a wildcard.
type Projection interface {
	projectionNode()
}

// NamedProjection is a named output column of a SELECT.
type NamedProjection struct {
	Name string
	Expr Expression
	Pos  int
}

func (*NamedProjection) projectionNode() {}

// WildcardProjection is a `*` projection descriptor.
type WildcardProjection struct{}

func (*WildcardProjection) projectionNode() {}

// Scope is the name-resolution node of one SELECT statement. The parent
// chain is acyclic; the root scope carries the schema definitions and
// statistics.
type Scope struct {
	Relations   []RelationBinding
	Projections []Projection
	Parent      *Scope

	defns Definitions
	stats Statistics
}

// NewRootScope creates a scope with no parent, carrying the schema
// definitions and statistics.
func NewRootScope(defns Definitions, stats Statistics) *Scope {
	return &Scope{defns: defns, stats: stats}
}

// NewScope creates a child scope of parent.
func NewScope(parent *Scope) *Scope {
	return &Scope{Parent: parent}
}

// AddRelation binds alias to a relation in this scope.
func (s *Scope) AddRelation(alias string, r Relation) {
	s.Relations = append(s.Relations, RelationBinding{Alias: alias, Relation: r})
}

// AddProjection appends a projection descriptor.
func (s *Scope) AddProjection(p Projection) {
	s.Projections = append(s.Projections, p)
}

// Relation returns the relation bound to alias in this scope only.
func (s *Scope) Relation(alias string) (Relation, bool) {
	for _, b := range s.Relations {
		if b.Alias == alias {
			return b.Relation, true
		}
	}
	return nil, false
}

// Root walks the parent chain to the root scope.
func (s *Scope) Root() *Scope {
	for s.Parent != nil {
		s = s.Parent
	}
	return s
}

// Definitions returns the schema definitions of the root scope.
func (s *Scope) Definitions() Definitions {
	return s.Root().defns
}

// Statistics returns the statistics of the root scope.
func (s *Scope) Statistics() Statistics {
	return s.Root().stats
}

// IsParentOf reports whether s is a (transitive) parent of child.
func (s *Scope) IsParentOf(child *Scope) bool {
	for c := child.Parent; c != nil; c = c.Parent {
		if c == s {
			return true
		}
	}
	return false
}

// NamedProjectionByName returns the named projection with the given name.
func (s *Scope) NamedProjectionByName(name string) (*NamedProjection, bool) {
	for _, p := range s.Projections {
		if np, ok := p.(*NamedProjection); ok && np.Name == name {
			return np, true
		}
	}
	return nil, false
}

// Symbol is the binding of a field reference.
type Symbol interface {
	// SymbolScope is the scope the symbol was defined in.
	SymbolScope() *Scope
	// DataType is the logical type of the bound value.
	DataType() Type
}

// ColumnSymbol binds a field reference to a column of a relation in scope.
type ColumnSymbol struct {
	RelationAlias string
	Column        string
	Scope         *Scope
	Type          Type
}

func (c *ColumnSymbol) SymbolScope() *Scope { return c.Scope }
func (c *ColumnSymbol) DataType() Type      { return c.Type }

// ProjectionSymbol binds a field reference to a named projection of the
// enclosing SELECT. Only GROUP BY and ORDER BY keys may carry one.
type ProjectionSymbol struct {
	Name  string
	Scope *Scope
	Type  Type
}

func (p *ProjectionSymbol) SymbolScope() *Scope { return p.Scope }
func (p *ProjectionSymbol) DataType() Type      { return p.Type }

// LookupColumn resolves a possibly qualified column reference in this
// scope. Relations are searched first; with no qualifier and no relation
// match, named projections are searched when inProjectionScope is set;
// still empty, the parent is searched with inProjectionScope forced off.
// Multiple matches may be returned; the tie-break is the relation binding
// order and callers must tolerate it.
func (s *Scope) LookupColumn(qualifier, name string, inProjectionScope bool) []Symbol {
	var syms []Symbol

	for _, b := range s.Relations {
		if qualifier != "" && b.Alias != qualifier {
			continue
		}
		switch r := b.Relation.(type) {
		case *TableRelation:
			if col, ok := s.Definitions().Lookup(r.TableName, name); ok {
				syms = append(syms, &ColumnSymbol{
					RelationAlias: b.Alias,
					Column:        name,
					Scope:         s,
					Type:          col.Type,
				})
			}
		case *SubqueryRelation:
			if typ, ok := r.Stmt.Scope.lookupProjectionType(name); ok {
				syms = append(syms, &ColumnSymbol{
					RelationAlias: b.Alias,
					Column:        name,
					Scope:         s,
					Type:          typ,
				})
			}
		}
	}
	if len(syms) > 0 {
		return syms
	}

	if qualifier == "" && inProjectionScope {
		if np, ok := s.NamedProjectionByName(name); ok {
			var typ Type
			if np.Expr != nil {
				typ = expressionType(np.Expr)
			}
			return []Symbol{&ProjectionSymbol{Name: name, Scope: s, Type: typ}}
		}
	}

	if s.Parent != nil {
		return s.Parent.LookupColumn(qualifier, name, false)
	}
	return nil
}

// lookupProjectionType resolves a name against this scope's projection
// list: named projections match by name, wildcards recurse into the
// scope's relations.
func (s *Scope) lookupProjectionType(name string) (Type, bool) {
	for _, p := range s.Projections {
		switch pr := p.(type) {
		case *NamedProjection:
			if pr.Name == name {
				if pr.Expr != nil {
					return expressionType(pr.Expr), true
				}
				return Unknown, true
			}
		case *WildcardProjection:
			if syms := s.LookupColumn("", name, false); len(syms) > 0 {
				return syms[0].DataType(), true
			}
		}
	}
	return Unknown, false
}

// Typed is implemented by expressions that know their result type.
type Typed interface {
	Type() Type
}

func expressionType(e Expression) Type {
	if t, ok := e.(Typed); ok {
		return t.Type()
	}
	return Unknown
}
