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
	"math/bits"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Option configures a Map while it is being created.
type Option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash func(key *K, seed uintptr) uintptr
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// The function must return equal hashes for keys the Map considers equal.
func WithHash[K comparable, V any](hash func(key *K, seed uintptr) uintptr) Option[K, V] {
	return hashOption[K, V]{hash}
}

type equalOption[K comparable, V any] struct {
	equal func(a, b *K) bool
}

func (op equalOption[K, V]) apply(m *Map[K, V]) {
	m.equal = op.equal
}

// WithEqual is an option to specify the key equality predicate. By default
// keys are compared with ==. WithEqual is usually paired with WithHash.
func WithEqual[K comparable, V any](equal func(a, b *K) bool) Option[K, V] {
	return equalOption[K, V]{equal}
}

type seedOption[K comparable, V any] struct {
	seed uintptr
}

func (op seedOption[K, V]) apply(m *Map[K, V]) {
	m.seed = op.seed
}

// WithSeed fixes the seed passed to the hash function. Together with a
// deterministic WithHash function this makes slot placement reproducible
// across processes. By default each Map draws a random seed.
func WithSeed[K comparable, V any](seed uintptr) Option[K, V] {
	return seedOption[K, V]{seed}
}

type probingOption[K comparable, V any] struct {
	probing Probing
}

func (op probingOption[K, V]) apply(m *Map[K, V]) {
	m.probing = op.probing
}

// WithProbing is an option to select the collision resolution strategy. The
// default is LinearProbing.
func WithProbing[K comparable, V any](probing Probing) Option[K, V] {
	return probingOption[K, V]{probing}
}

type shrinkOption[K comparable, V any] struct{}

func (shrinkOption[K, V]) apply(m *Map[K, V]) {
	m.shrink = true
}

// WithShrinkOnRemove lets Delete and DeleteFunc shrink the Map once
// occupancy drops below a quarter of the load threshold. It is off by
// default so that alternating inserts and removes near a size boundary do
// not thrash between two capacities.
func WithShrinkOnRemove[K comparable, V any]() Option[K, V] {
	return shrinkOption[K, V]{}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Map. The default allocator utilizes Go's builtin make() and allows the
// GC to reclaim memory.
//
// An allocation error aborts the operation that needed the memory and leaves
// the Map as it was. If the allocator is manually managing memory and
// requires that slots and controls be freed then Map.Close must be called in
// order to ensure FreeSlots and FreeControls are called.
type Allocator[K comparable, V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[K,V], n).
	AllocSlots(n int) ([]Slot[K, V], error)

	// AllocControls should return a slice equivalent to make([]uint8, n).
	AllocControls(n int) ([]uint8, error)

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[K, V])

	// FreeControls can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocControls.
	FreeControls(v []uint8)
}

// maxAlloc bounds a single allocation made by the default allocator. It
// mirrors the runtime's limit on 64-bit platforms so that absurd capacities
// are reported as errors instead of crashing in makeslice.
const maxAlloc = uint64(1) << min(bits.UintSize-1, 48)

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocSlots(n int) ([]Slot[K, V], error) {
	var s Slot[K, V]
	if err := checkAllocSize(n, unsafe.Sizeof(s)); err != nil {
		return nil, err
	}
	return make([]Slot[K, V], n), nil
}

func (defaultAllocator[K, V]) AllocControls(n int) ([]uint8, error) {
	if err := checkAllocSize(n, 1); err != nil {
		return nil, err
	}
	return make([]uint8, n), nil
}

func (defaultAllocator[K, V]) FreeSlots(v []Slot[K, V]) {
}

func (defaultAllocator[K, V]) FreeControls(v []uint8) {
}

func checkAllocSize(n int, size uintptr) error {
	if n < 0 {
		return errors.Wrapf(ErrAllocationFailure, "negative length %d", n)
	}
	hi, lo := bits.Mul64(uint64(n), uint64(size))
	if hi != 0 || lo > maxAlloc {
		return errors.Wrapf(ErrAllocationFailure, "%d elements of %d bytes", n, size)
	}
	return nil
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}
