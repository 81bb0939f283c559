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

package onion

import (
	"fmt"
	"sort"

	"github.com/mitchellh/hashstructure"

	"github.com/liuyi1112/monomi-optimizer/sql"
)

// HomDesc locates a canonical expression within a packed HOM group.
type HomDesc struct {
	Table string
	Group int
	// Pos is the position of the expression within the group's ciphertext
	// row.
	Pos int
}

// entry is one (canonical expr, onion mask) binding of a table.
type entry struct {
	Key      string
	BaseName string
	Onions   Onion
}

// tableOnions holds the onion catalog of one table. Entries are kept
// ordered by insertion so iteration is deterministic.
type tableOnions struct {
	Entries []*entry
	// Groups are the packed HOM groups, each an ordered sequence of
	// canonical expression keys co-packed into one ciphertext row.
	Groups [][]string
}

func (t *tableOnions) find(key string) *entry {
	for _, e := range t.Entries {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// Set is a catalog of which onions exist for each (table, canonical
// expression), plus the packed HOM groups of each table. Canonical
// expressions are keyed by their rendered form; canonicalization strips
// qualifiers and scope, so syntactically identical expressions collide.
type Set struct {
	tables map[string]*tableOnions
}

// NewSet creates an empty onion set.
func NewSet() *Set {
	return &Set{tables: make(map[string]*tableOnions)}
}

// Key returns the catalog key of a canonical expression.
func Key(canonExpr sql.Expression) string {
	return canonExpr.String()
}

func (s *Set) table(name string) *tableOnions {
	t, ok := s.tables[name]
	if !ok {
		t = &tableOnions{}
		s.tables[name] = t
	}
	return t
}

// Add registers an onion bit for (table, canonical expr). The base name of
// a bare column is the column itself; other expressions get a synthetic
// precomputed-column name.
func (s *Set) Add(table string, canonExpr sql.Expression, o Onion) {
	s.AddNamed(table, canonExpr, baseNameOf(canonExpr), o)
}

// AddNamed registers an onion bit under an explicit base column name.
func (s *Set) AddNamed(table string, canonExpr sql.Expression, baseName string, o Onion) {
	t := s.table(table)
	key := Key(canonExpr)
	if e := t.find(key); e != nil {
		e.Onions |= o
		return
	}
	t.Entries = append(t.Entries, &entry{Key: key, BaseName: baseName, Onions: o})
}

// Lookup resolves (table, canonical expr) to the base column name and the
// mask of stored onions.
func (s *Set) Lookup(table string, canonExpr sql.Expression) (string, Onion, bool) {
	t, ok := s.tables[table]
	if !ok {
		return "", 0, false
	}
	e := t.find(Key(canonExpr))
	if e == nil {
		return "", 0, false
	}
	return e.BaseName, e.Onions, true
}

// LookupPackedHOM returns every packed-group position holding the
// canonical expression, in group order.
func (s *Set) LookupPackedHOM(table string, canonExpr sql.Expression) []HomDesc {
	t, ok := s.tables[table]
	if !ok {
		return nil
	}
	key := Key(canonExpr)
	var descs []HomDesc
	for g, group := range t.Groups {
		for p, k := range group {
			if k == key {
				descs = append(descs, HomDesc{Table: table, Group: g, Pos: p})
			}
		}
	}
	return descs
}

// AddPackedHOMToLastGroup appends the canonical expression to the table's
// last packed HOM group, opening the first group if none exists.
func (s *Set) AddPackedHOMToLastGroup(table string, canonExpr sql.Expression) {
	t := s.table(table)
	if len(t.Groups) == 0 {
		t.Groups = append(t.Groups, nil)
	}
	last := len(t.Groups) - 1
	t.Groups[last] = append(t.Groups[last], Key(canonExpr))
}

// AddPackedHOMGroup opens a new packed group holding the given canonical
// expressions in order, and returns its group id.
func (s *Set) AddPackedHOMGroup(table string, canonExprs ...sql.Expression) int {
	t := s.table(table)
	keys := make([]string, len(canonExprs))
	for i, e := range canonExprs {
		keys[i] = Key(e)
	}
	t.Groups = append(t.Groups, keys)
	return len(t.Groups) - 1
}

// Groups returns the packed HOM groups of a table.
func (s *Set) Groups(table string) [][]string {
	if t, ok := s.tables[table]; ok {
		return t.Groups
	}
	return nil
}

// Merge unions other into s: onion masks are OR-ed per entry and packed
// groups are appended.
func (s *Set) Merge(other *Set) {
	for name, ot := range other.tables {
		t := s.table(name)
		for _, e := range ot.Entries {
			if mine := t.find(e.Key); mine != nil {
				mine.Onions |= e.Onions
				continue
			}
			t.Entries = append(t.Entries, &entry{Key: e.Key, BaseName: e.BaseName, Onions: e.Onions})
		}
		for _, g := range ot.Groups {
			t.Groups = append(t.Groups, append([]string(nil), g...))
		}
	}
}

// Clone deep-copies the set.
func (s *Set) Clone() *Set {
	c := NewSet()
	c.Merge(s)
	return c
}

// Complete fills in DET for every base column of the definitions that no
// entry covers, so every column has at least one usable onion.
func (s *Set) Complete(defns sql.Definitions) {
	for _, table := range defns.Tables() {
		t := s.table(table)
		for _, col := range defns[table] {
			if e := t.find(col.Name); e != nil && e.Onions != 0 {
				continue
			}
			t.Entries = append(t.Entries, &entry{Key: col.Name, BaseName: col.Name, Onions: DET})
		}
	}
}

// Hash returns a content hash of the set, used to deduplicate merged
// candidates before planning.
func (s *Set) Hash() uint64 {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	type hashed struct {
		Name    string
		Entries []entry
		Groups  [][]string
	}
	var all []hashed
	for _, name := range names {
		t := s.tables[name]
		h := hashed{Name: name, Groups: t.Groups}
		for _, e := range t.Entries {
			h.Entries = append(h.Entries, *e)
		}
		sort.Slice(h.Entries, func(i, j int) bool { return h.Entries[i].Key < h.Entries[j].Key })
		all = append(all, h)
	}

	hash, err := hashstructure.Hash(all, nil)
	if err != nil {
		panic(fmt.Sprintf("onion: hashing set: %v", err))
	}
	return hash
}

// baseNameOf derives the physical base column name of a canonical
// expression: bare columns keep their name, anything else becomes a
// synthetic precomputed-column name.
func baseNameOf(canonExpr sql.Expression) string {
	if len(canonExpr.Children()) == 0 {
		if n, ok := canonExpr.(interface{ Name() string }); ok {
			return n.Name()
		}
	}
	h, err := hashstructure.Hash(Key(canonExpr), nil)
	if err != nil {
		panic(fmt.Sprintf("onion: hashing expression key: %v", err))
	}
	return fmt.Sprintf("precomp$%08x", uint32(h))
}
