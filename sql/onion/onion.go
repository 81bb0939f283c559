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
	"math/bits"
	"strings"
)

// Onion is a bitmask of encryption schemes. Each bit names a scheme and
// the operation class it supports server-side.
type Onion uint16

const (
	// PLAIN is unencrypted storage.
	PLAIN Onion = 1 << iota
	// DET supports equality.
	DET
	// OPE supports ordering.
	OPE
	// HOM supports summation.
	HOM
	// HOMRowDesc tags a row within a packed HOM group.
	HOMRowDesc
	// HOMAgg is the aggregate sink for HOM.
	HOMAgg
	// SWP supports substring match.
	SWP
)

// All is every onion bit.
const All = PLAIN | DET | OPE | HOM | HOMRowDesc | HOMAgg | SWP

// Operation classes.
const (
	Countable        = DET | OPE | HOMRowDesc | SWP
	Comparable       = DET | OPE
	IEqualComparable = OPE
)

// preference is the fixed trial order over single bits. It is load-bearing:
// plan determinism depends on it.
var preference = []Onion{PLAIN, DET, OPE, HOM, HOMRowDesc, SWP, HOMAgg}

func (o Onion) String() string {
	switch o {
	case PLAIN:
		return "PLAIN"
	case DET:
		return "DET"
	case OPE:
		return "OPE"
	case HOM:
		return "HOM"
	case HOMRowDesc:
		return "HOM_ROW_DESC"
	case HOMAgg:
		return "HOM_AGG"
	case SWP:
		return "SWP"
	}
	var parts []string
	for _, b := range preference {
		if o&b != 0 {
			parts = append(parts, b.String())
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Contains reports whether every bit of other is set in o.
func (o Onion) Contains(other Onion) bool {
	return o&other == other
}

// SingleBit reports whether exactly one bit is set.
func (o Onion) SingleBit() bool {
	return bits.OnesCount16(uint16(o)) == 1
}

// PickOne returns one bit contained in o, chosen by the fixed preference
// order. o must be non-empty.
func (o Onion) PickOne() Onion {
	for _, b := range preference {
		if o&b != 0 {
			return b
		}
	}
	panic("onion: PickOne on empty mask")
}

// ToSeq expands o into its set bits in preference order.
func (o Onion) ToSeq() []Onion {
	var seq []Onion
	for _, b := range preference {
		if o&b != 0 {
			seq = append(seq, b)
		}
	}
	return seq
}

// CompleteSeqWithPreference returns the bits of o in preference order,
// followed by the remaining bits.
func (o Onion) CompleteSeqWithPreference() []Onion {
	seq := o.ToSeq()
	for _, b := range preference {
		if o&b == 0 {
			seq = append(seq, b)
		}
	}
	return seq
}

// Union folds a sequence of masks into one.
func Union(onions []Onion) Onion {
	var o Onion
	for _, b := range onions {
		o |= b
	}
	return o
}

// HomGroup identifies one packed HOM group of a table.
type HomGroup struct {
	Table string
	Group int
}

// OnionType is the encryption state of one tuple position.
type OnionType struct {
	Onion     Onion
	VectorCtx bool
	// HomGroup is set when the position carries a packed HOM aggregate.
	HomGroup *HomGroup
}

// Plain reports whether the position needs no decryption.
func (t OnionType) Plain() bool {
	return t.Onion == PLAIN
}
