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
	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrGroupKeyInfeasible is returned when no supported onion can answer
	// a GROUP BY key server-side. The candidate onion set cannot serve
	// this query.
	ErrGroupKeyInfeasible = errors.NewKind("no supported onion for group-by key %s")

	// ErrOrderKeyInfeasible is returned when an ORDER BY key is not
	// expressible as any supported projection.
	ErrOrderKeyInfeasible = errors.NewKind("no supported projection for order-by key %s")

	// ErrFieldUnprojectable is returned when a field needed by residual
	// client work cannot be projected under any usable onion.
	ErrFieldUnprojectable = errors.NewKind("field %s cannot be projected for client evaluation")

	// ErrEncProjWidth is returned when an EncProj onion vector does not
	// match the statement's projection count.
	ErrEncProjWidth = errors.NewKind("EncProj expects %d onion entries, statement has %d projections")

	// ErrTupleDescMismatch is returned when a plan's tuple descriptor
	// fails an internal sanity check.
	ErrTupleDescMismatch = errors.NewKind("tuple descriptor of %T has %d positions, expected %d")
)
