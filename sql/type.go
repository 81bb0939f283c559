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

// Type is the logical data type of a column or expression.
type Type int

const (
	Unknown Type = iota
	Int64
	Float64
	Decimal
	Text
	Date
	Bool
)

func (t Type) String() string {
	switch t {
	case Int64:
		return "INT64"
	case Float64:
		return "FLOAT64"
	case Decimal:
		return "DECIMAL"
	case Text:
		return "TEXT"
	case Date:
		return "DATE"
	case Bool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

// IsNumeric reports whether values of this type support arithmetic.
func (t Type) IsNumeric() bool {
	return t == Int64 || t == Float64 || t == Decimal
}
