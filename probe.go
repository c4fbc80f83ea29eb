// Copyright 2024 The Cockroach Authors
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

package hashtable

import (
	"fmt"
	"iter"
)

// Probing selects the collision resolution strategy of a Map. Every
// strategy visits each slot of a power-of-two table exactly once before
// repeating, and the order depends only on the starting hash and the
// capacity.
type Probing uint8

const (
	// LinearProbing examines consecutive slots, wrapping around with the
	// mask: i, i+1, i+2, ...
	LinearProbing Probing = iota
	// TriangularProbing examines slots at triangular offsets from the start:
	// i, i+1, i+3, i+6, ... Since (j^2+j)/2 is a bijection in Z/(2^m) the
	// sequence still covers the whole table, while breaking up the primary
	// clusters linear probing builds under a weak hash function.
	TriangularProbing
)

func (p Probing) String() string {
	switch p {
	case LinearProbing:
		return "linear"
	case TriangularProbing:
		return "triangular"
	default:
		return fmt.Sprintf("Probing(%d)", uint8(p))
	}
}

// Sequence returns the slot indices examined for a key whose probe starts at
// hash&(capacity-1). The sequence is finite: it ends after visiting all
// capacity slots. It is empty if capacity is not a power of two.
func (p Probing) Sequence(hash uint64, capacity int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if capacity <= 0 || capacity&(capacity-1) != 0 {
			return
		}
		seq := makeProbeSeq(p, uintptr(hash), uintptr(capacity-1))
		for i := 0; i < capacity; i++ {
			if !yield(int(seq.offset)) {
				return
			}
			seq = seq.next()
		}
	}
}

// probeSeq maintains the state for a probe sequence. For TriangularProbing
// the sequence is
//
//	p(i) := (i^2 + i)/2 + hash (mod mask+1)
//
// which is computed incrementally by adding the step index to the offset.
type probeSeq struct {
	probing Probing
	mask    uintptr
	offset  uintptr
	index   uintptr
}

func makeProbeSeq(probing Probing, hash, mask uintptr) probeSeq {
	return probeSeq{
		probing: probing,
		mask:    mask,
		offset:  hash & mask,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	if s.probing == TriangularProbing {
		s.offset = (s.offset + s.index) & s.mask
	} else {
		s.offset = (s.offset + 1) & s.mask
	}
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("%s mask=%d offset=%d index=%d", s.probing, s.mask, s.offset, s.index)
}
