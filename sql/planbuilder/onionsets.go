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

package planbuilder

import (
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/liuyi1112/monomi-optimizer/sql"
	"github.com/liuyi1112/monomi-optimizer/sql/onion"
	"github.com/liuyi1112/monomi-optimizer/sql/plan"
)

// GenerateOnionSets walks the statement with the same traversal as the
// plan generator, collecting the onion requirements each clause imposes.
// Each returned set is one alternative; the union over all clauses is
// returned.
func GenerateOnionSets(stmt *sql.SelectStmt) []*onion.Set {
	var sets []*onion.Set
	seen := map[uint64]bool{}
	for _, cs := range generateStmtConstraints(stmt) {
		s := constraintsToSet(cs)
		h := s.Hash()
		if seen[h] {
			continue
		}
		seen[h] = true
		sets = append(sets, s)
	}
	return sets
}

// generateStmtConstraints visits projections, filter, group-by keys and
// having, order-by keys, then FROM subqueries: the alternatives of every
// clause are unioned, not intersected; candidate merging happens during
// enumeration.
func generateStmtConstraints(stmt *sql.SelectStmt) []constraintSet {
	var sets []constraintSet
	for _, p := range stmt.Projections {
		if ep, ok := p.(*sql.ExprProjection); ok {
			sets = append(sets, getPotentialCryptoOpts(ep.Expr, onion.All)...)
		}
	}
	if stmt.Filter != nil {
		sets = append(sets, getPotentialCryptoOpts(stmt.Filter, onion.PLAIN)...)
	}
	if stmt.GroupBy != nil {
		for _, k := range stmt.GroupBy.Keys {
			sets = append(sets, getPotentialCryptoOpts(k, onion.Comparable)...)
		}
		if stmt.GroupBy.Having != nil {
			sets = append(sets, getPotentialCryptoOpts(stmt.GroupBy.Having, onion.PLAIN)...)
		}
	}
	if stmt.OrderBy != nil {
		for _, k := range stmt.OrderBy.Keys {
			sets = append(sets, getPotentialCryptoOpts(k.Expr, onion.IEqualComparable)...)
		}
	}
	for _, rel := range stmt.Relations {
		if sr, ok := rel.(*sql.SubqueryRelationAST); ok {
			sets = append(sets, generateStmtConstraints(sr.Stmt)...)
		}
	}
	return sets
}

func constraintsToSet(cs constraintSet) *onion.Set {
	s := onion.NewSet()
	for _, c := range cs {
		if c.Packed {
			s.AddPackedHOMToLastGroup(c.Table, c.Canon)
			continue
		}
		s.Add(c.Table, c.Canon, c.Onion)
	}
	return s
}

// EstimateContext carries what the cost-based ranker needs about one
// candidate.
type EstimateContext struct {
	OnionSet *onion.Set
}

// Candidate is one generated plan with its estimate context.
type Candidate struct {
	Plan     plan.Node
	Estimate EstimateContext
}

// maxEnumeratedAlternatives bounds the power-set enumeration.
const maxEnumeratedAlternatives = 16

// GenerateCandidatePlans enumerates candidate onion sets (power set of the
// per-clause alternatives, merged, deduplicated, completed over the
// schema) and generates one plan per feasible candidate, deduplicated by
// plan identity.
func GenerateCandidatePlans(stmt *sql.SelectStmt) ([]Candidate, error) {
	span := opentracing.GlobalTracer().StartSpan("planbuilder.GenerateCandidatePlans")
	defer span.Finish()

	sets := GenerateOnionSets(stmt)
	if len(sets) > maxEnumeratedAlternatives {
		logrus.WithFields(logrus.Fields{
			"component":    "planbuilder",
			"alternatives": len(sets),
			"kept":         maxEnumeratedAlternatives,
		}).Warn("onion-set alternatives truncated before enumeration")
		sets = sets[:maxEnumeratedAlternatives]
	}

	var merged []*onion.Set
	seen := map[uint64]bool{}
	for mask := 1; mask < 1<<uint(len(sets)); mask++ {
		s := onion.NewSet()
		for i := range sets {
			if mask&(1<<uint(i)) != 0 {
				s.Merge(sets[i])
			}
		}
		h := s.Hash()
		if seen[h] {
			continue
		}
		seen[h] = true
		merged = append(merged, s)
	}

	defns := stmt.Scope.Definitions()
	var out []Candidate
	planSeen := map[string]bool{}
	for _, s := range merged {
		s.Complete(defns)
		p, err := GeneratePlan(stmt, s, PreserveOriginal{})
		if err != nil {
			// The candidate cannot serve this query; try the next one.
			continue
		}
		key := p.String()
		if planSeen[key] {
			continue
		}
		planSeen[key] = true
		out = append(out, Candidate{Plan: p, Estimate: EstimateContext{OnionSet: s}})
	}
	span.SetTag("candidates", len(out))
	return out, nil
}
