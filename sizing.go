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
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
)

const (
	// MinCapacity is the smallest number of slots a Map ever has.
	MinCapacity = 2
	// MaxCapacity is the largest power of two NextCapacity will return.
	MaxCapacity = 1 << (bits.UintSize - 2)

	// LoadFactorUnit is the fixed-point denominator of a LoadFactor.
	LoadFactorUnit = 1 << loadFactorShift

	loadFactorShift = 16
)

// LoadFactor is the target ratio of occupied slots to capacity, stored as a
// fixed-point fraction of LoadFactorUnit. Keeping the ratio in integer form
// makes MaxLoad a pure function of its inputs on every platform. Valid load
// factors lie in [1, LoadFactorUnit-1].
type LoadFactor uint32

// DefaultLoadFactor is 3/4.
const DefaultLoadFactor LoadFactor = 3 * LoadFactorUnit / 4

// NewLoadFactor converts f to a LoadFactor, rounding to the nearest unit. The
// conversion happens once; nothing downstream touches floating point.
func NewLoadFactor(f float64) (LoadFactor, error) {
	if math.IsNaN(f) || f <= 0 || f >= 1 {
		return 0, errors.Wrapf(ErrInvalidLoadFactor, "%v not in (0, 1)", f)
	}
	lf := LoadFactor(math.Round(f * LoadFactorUnit))
	if !lf.valid() {
		return 0, errors.Wrapf(ErrInvalidLoadFactor, "%v rounds to %d/%d", f, lf, LoadFactorUnit)
	}
	return lf, nil
}

// LoadFactorOf returns num/den as a LoadFactor, rounded down.
func LoadFactorOf(num, den int) (LoadFactor, error) {
	if num <= 0 || den <= 0 || num >= den {
		return 0, errors.Wrapf(ErrInvalidLoadFactor, "%d/%d not in (0, 1)", num, den)
	}
	hi, lo := bits.Mul64(uint64(num), LoadFactorUnit)
	q, _ := bits.Div64(hi, lo, uint64(den))
	lf := LoadFactor(q)
	if !lf.valid() {
		return 0, errors.Wrapf(ErrInvalidLoadFactor, "%d/%d rounds to %d/%d", num, den, lf, LoadFactorUnit)
	}
	return lf, nil
}

func (lf LoadFactor) valid() bool {
	return lf > 0 && lf < LoadFactorUnit
}

// Float64 returns the load factor as a float for display.
func (lf LoadFactor) Float64() float64 {
	return float64(lf) / LoadFactorUnit
}

func (lf LoadFactor) String() string {
	return fmt.Sprintf("%.4f", lf.Float64())
}

// NextCapacity returns the smallest power of two >= max(minElements, 2). It
// returns ErrOverflow if that power of two exceeds MaxCapacity.
func NextCapacity(minElements int) (int, error) {
	if minElements < MinCapacity {
		minElements = MinCapacity
	}
	if minElements > MaxCapacity {
		return 0, errors.Wrapf(ErrOverflow, "no power of two >= %d", minElements)
	}
	return 1 << bits.Len(uint(minElements-1)), nil
}

// MaxLoad returns floor(lf * capacity), clamped to capacity-1 so that at
// least one slot is always empty. Lookups rely on that empty slot to
// terminate.
func MaxLoad(capacity int, lf LoadFactor) int {
	if capacity <= 1 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(capacity), uint64(lf))
	threshold := hi<<(64-loadFactorShift) | lo>>loadFactorShift
	if threshold >= uint64(capacity) {
		return capacity - 1
	}
	return int(threshold)
}

// growCapacity returns the capacity a Map holding need entries grows to. It
// starts from twice the requirement and keeps doubling until the threshold
// admits need entries, which matters for small tables with low load factors
// where floor(lf * capacity) can be 0.
func growCapacity(need int, lf LoadFactor) (int, error) {
	if need > MaxCapacity/2 {
		return 0, errors.Wrapf(ErrOverflow, "growing to hold %d entries", need)
	}
	capacity, err := NextCapacity(2 * need)
	if err != nil {
		return 0, err
	}
	for MaxLoad(capacity, lf) < need {
		if capacity >= MaxCapacity {
			return 0, errors.Wrapf(ErrOverflow, "growing to hold %d entries at load factor %s", need, lf)
		}
		capacity <<= 1
	}
	return capacity, nil
}
