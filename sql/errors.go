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
	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrInvalidChildrenNumber is returned when the WithChildren method of
	// a node is called with an invalid number of children.
	ErrInvalidChildrenNumber = errors.NewKind("expected %d children, got %d")

	// ErrColumnNotFound is returned when a column reference cannot be
	// resolved in any relation in scope.
	ErrColumnNotFound = errors.NewKind("column %q could not be found in any relation in scope")

	// ErrTableNotFound is returned when a relation alias resolves to a
	// table missing from the schema definitions.
	ErrTableNotFound = errors.NewKind("table not found: %s")

	// ErrNotClientEvaluable is returned by Eval on nodes that only the
	// server can compute.
	ErrNotClientEvaluable = errors.NewKind("expression %s cannot be evaluated client-side")

	// ErrUnboundPlaceholder is returned when a dependent field placeholder
	// is evaluated without a binding for its position.
	ErrUnboundPlaceholder = errors.NewKind("no binding for dependent field placeholder %d")

	// ErrWildcardNotSupported is returned for wildcard projections in the
	// final output of a statement.
	ErrWildcardNotSupported = errors.NewKind("wildcard projections are not supported in the final output")

	// ErrOuterProjectionRef is returned when a correlated subquery
	// references a projection of an outer statement.
	ErrOuterProjectionRef = errors.NewKind("correlated reference to outer projection %q is not supported")
)
