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
	"fmt"

	"github.com/liuyi1112/monomi-optimizer/sql/onion"
)

// EncContext is the caller's requirement on a generated plan's output
// encryption.
type EncContext interface {
	fmt.Stringer
	encContext()
}

// PreserveOriginal requires a fully PLAIN output tuple descriptor.
type PreserveOriginal struct{}

func (PreserveOriginal) encContext()    {}
func (PreserveOriginal) String() string { return "PreserveOriginal" }

// PreserveCardinality only requires the row count to match; the
// descriptor may stay encrypted.
type PreserveCardinality struct{}

func (PreserveCardinality) encContext()    {}
func (PreserveCardinality) String() string { return "PreserveCardinality" }

// EncProj requires each output position i to be encrypted under one of
// the bits of Onions[i]. When Require is false the onions are preferred,
// not enforced.
type EncProj struct {
	Onions  []onion.Onion
	Require bool
}

func (EncProj) encContext() {}

func (e EncProj) String() string {
	return fmt.Sprintf("EncProj(%v, require=%v)", e.Onions, e.Require)
}

// Physical naming of encrypted storage.

// EncTblName is the encrypted table backing a base table.
func EncTblName(table string) string {
	return table + "$enc"
}

// EncColName is the encrypted column of a base column under one onion.
func EncColName(base string, o onion.Onion) string {
	return base + "$" + o.String()
}

// RowidColumn is the shared row identifier of packed HOM groups.
const RowidColumn = "rowid"
