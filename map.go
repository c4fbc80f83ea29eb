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

// Package hashtable implements an open-addressing hash table with
// power-of-two sizing and an explicit load-factor-driven resize policy.
//
// # Layout
//
// A Map stores its entries in a flat array of capacity slots, where capacity
// is always a power of two >= 2, together with a parallel array holding one
// control byte per slot. The control byte records whether the slot is
// empty, deleted (a tombstone) or full. A full control byte carries 7 bits
// of hash(key) so that most mismatching slots are rejected without a key
// comparison:
//
//	  empty: 1 0 0 0 0 0 0 0
//	deleted: 1 1 1 1 1 1 1 0
//	   full: 0 h h h h h h h  // h represents the H2 hash bits
//
// Probing starts at hash(key) & (capacity-1), the first slot of
// Probing.Sequence for that hash, and follows the configured
// Probing strategy until a matching full slot or an empty slot is found.
// Tombstones are skipped by lookups and reused by inserts.
//
// # Sizing
//
// The load threshold (MaxLoad) is floor(loadFactor * capacity), clamped to
// capacity-1, computed in fixed point. A Put that would take the entry count
// past the threshold first grows the table, and a Put that lands on an empty
// slot while tombstones have eaten the headroom rehashes at the same
// capacity. Both keep used+deleted < capacity, so every probe sequence meets
// an empty slot.
//
// The only invariant the threshold keeps across a Resize is
// MaxLoad < Capacity. An explicit Resize to fewer slots than the load factor
// calls for may leave MaxLoad <= Len; the next Put of a new key then grows
// the table.
package hashtable

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
)

const debug = false

const (
	ctrlEmpty   ctrl = 0b10000000
	ctrlDeleted ctrl = 0b11111110
)

// noSlot is returned by find when neither a match nor an insertion point was
// recorded.
const noSlot = ^uintptr(0)

// Each slot in the hash table has a control byte which can have one of three
// states: empty, deleted and full.
type ctrl uint8

func (c ctrl) full() bool {
	return c&ctrlEmpty == 0
}

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Map is an unordered map from keys to values with Put, Get, Delete, Resize
// and All operations. By default a Map[K,V] hashes keys with a randomly
// keyed hasher consistent with ==; a different hash function and equality
// predicate can be specified using the WithHash and WithEqual options.
//
// A Map is NOT goroutine-safe. Mutations need an exclusive lock held for
// their whole duration, and readers must be excluded while a mutation is in
// flight since a resize replaces the slot array wholesale. See Locked.
type Map[K comparable, V any] struct {
	hash  func(key *K, seed uintptr) uintptr
	equal func(a, b *K) bool
	seed  uintptr
	// The allocator to use for the ctrls and slots slices.
	allocator Allocator[K, V]
	probing   Probing
	shrink    bool

	// ctrls and slots are capacity in length.
	ctrls []ctrl
	slots []Slot[K, V]
	// capacity-1. Since capacity is a power of two, h&mask == h%capacity.
	mask uintptr
	// The number of full slots (i.e. the number of entries in the map).
	used int
	// The number of tombstones. Tombstones count against the load threshold
	// when an insert needs a fresh empty slot, otherwise a table filled with
	// tombstones would never rehash and probe sequences would grow without
	// bound.
	deleted    int
	maxLoad    int
	loadFactor LoadFactor
}

// New constructs a new Map with capacity NextCapacity(initialCapacity) and
// the given load factor.
func New[K comparable, V any](
	initialCapacity int, loadFactor LoadFactor, options ...Option[K, V],
) (*Map[K, V], error) {
	if !loadFactor.valid() {
		return nil, errors.Wrapf(ErrInvalidLoadFactor, "%d/%d", loadFactor, LoadFactorUnit)
	}
	m := &Map[K, V]{
		seed:       randomSeed(),
		allocator:  defaultAllocator[K, V]{},
		loadFactor: loadFactor,
	}
	for _, op := range options {
		op.apply(m)
	}
	if m.hash == nil {
		m.hash = defaultHash[K]()
	}

	capacity, err := NextCapacity(initialCapacity)
	if err != nil {
		return nil, err
	}
	if err := m.resize(capacity); err != nil {
		return nil, err
	}
	return m, nil
}

// Close releases the slot arrays back to the configured allocator. It is
// unnecessary to close a map using the default allocator. It is invalid to
// use a Map after it has been closed, though Close itself is idempotent.
func (m *Map[K, V]) Close() {
	if m.slots != nil {
		m.allocator.FreeSlots(m.slots)
		m.allocator.FreeControls(unsafeConvertSlice[uint8](m.ctrls))
	}
	m.slots = nil
	m.ctrls = nil
	m.mask = 0
	m.used = 0
	m.deleted = 0
	m.maxLoad = 0
}

// Put inserts an entry into the map. If an entry with the same key already
// exists its value is overwritten and the previous value is returned with
// replaced=true.
//
// Inserting a new key may grow the table. If growing fails with
// ErrOverflow or ErrAllocationFailure the error is returned and the map is
// left exactly as it was: the key is not inserted.
func (m *Map[K, V]) Put(key K, value V) (prev V, replaced bool, err error) {
	h := m.hash(&key, m.seed)
	i, ok := m.find(h, &key)
	if ok {
		s := &m.slots[i]
		prev, s.value = s.value, value
		m.checkInvariants()
		return prev, true, nil
	}
	if err := m.insert(h, i, key, value); err != nil {
		return prev, false, err
	}
	return prev, false, nil
}

// GetOrPut returns the value for key, calling fn to create and insert it if
// the key is not present. created reports whether fn was called.
func (m *Map[K, V]) GetOrPut(key K, fn func() V) (value V, created bool, err error) {
	h := m.hash(&key, m.seed)
	i, ok := m.find(h, &key)
	if ok {
		return m.slots[i].value, false, nil
	}
	value = fn()
	if err := m.insert(h, i, key, value); err != nil {
		var zero V
		return zero, false, err
	}
	return value, true, nil
}

// Get retrieves the value from the map for the specified key, return ok=false
// if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if m.slots == nil {
		return value, false
	}
	i, ok := m.find(m.hash(&key, m.seed), &key)
	if !ok {
		return value, false
	}
	return m.slots[i].value, true
}

// Delete removes the entry for key and returns its value. It returns
// ok=false, and leaves the map untouched, if the key is not present.
func (m *Map[K, V]) Delete(key K) (value V, ok bool) {
	if m.slots == nil {
		return value, false
	}
	i, ok := m.find(m.hash(&key, m.seed), &key)
	if !ok {
		return value, false
	}
	value = m.slots[i].value
	m.deleteAt(i)
	if debug {
		fmt.Printf("delete(%v): index=%d used=%d deleted=%d\n", key, i, m.used, m.deleted)
	}
	m.maybeShrink()
	m.checkInvariants()
	return value, true
}

// DeleteFunc removes every entry for which fn returns true and returns the
// number of entries removed.
func (m *Map[K, V]) DeleteFunc(fn func(key K, value V) bool) int {
	var n int
	for i := range m.ctrls {
		if !m.ctrls[i].full() {
			continue
		}
		s := &m.slots[i]
		if fn(s.key, s.value) {
			m.deleteAt(uintptr(i))
			n++
		}
	}
	if n > 0 {
		m.maybeShrink()
	}
	m.checkInvariants()
	return n
}

// Resize reallocates the table with room for at least minElements entries,
// rehashing every entry and dropping all tombstones. The new capacity is
// NextCapacity(max(minElements, Len()+1)): Resize never discards entries,
// and may leave MaxLoad() <= Len() when asked for a small table.
//
// On error (ErrOverflow or ErrAllocationFailure) the map is unchanged.
func (m *Map[K, V]) Resize(minElements int) error {
	if minElements < m.used+1 {
		minElements = m.used + 1
	}
	capacity, err := NextCapacity(minElements)
	if err != nil {
		return err
	}
	return m.resize(capacity)
}

// Clear deletes all entries from the map, keeping its capacity.
func (m *Map[K, V]) Clear() {
	for i := range m.ctrls {
		m.ctrls[i] = ctrlEmpty
	}
	clear(m.slots)
	m.used = 0
	m.deleted = 0
	m.checkInvariants()
}

// All calls yield sequentially for each key and value present in the map. If
// yield returns false, range stops the iteration. The signature allows
// ranging over the map directly:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
//
// The map can be mutated during iteration, though there is no guarantee that
// the mutations will be visible to the iteration.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the controls and slots so that iteration remains valid if the
	// map is resized during iteration.
	ctrls := m.ctrls
	slots := m.slots

	for i := range ctrls {
		if ctrls[i].full() {
			s := &slots[i]
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Capacity returns the number of slots in the table.
func (m *Map[K, V]) Capacity() int {
	return len(m.slots)
}

// MaxLoad returns the current resize threshold.
func (m *Map[K, V]) MaxLoad() int {
	return m.maxLoad
}

// LoadFactor returns the load factor the map was created with.
func (m *Map[K, V]) LoadFactor() LoadFactor {
	return m.loadFactor
}

// Swap exchanges the contents of m and other, including their options.
func (m *Map[K, V]) Swap(other *Map[K, V]) {
	*m, *other = *other, *m
}

// Equal reports whether a and b hold the same keys with values that eq
// considers equal. Keys are looked up in b with b's hash and equality.
func Equal[K comparable, V any](a, b *Map[K, V], eq func(x, y V) bool) bool {
	if a.Len() != b.Len() {
		return false
	}
	equal := true
	a.All(func(k K, v V) bool {
		w, ok := b.Get(k)
		equal = ok && eq(v, w)
		return equal
	})
	return equal
}

func (m *Map[K, V]) keysEqual(a, b *K) bool {
	if m.equal != nil {
		return m.equal(a, b)
	}
	return *a == *b
}

// find returns the index of the slot holding key and ok=true if it is
// present. Otherwise it returns the index where key should be inserted: the
// first tombstone on its probe sequence, or the empty slot that ended the
// probe.
func (m *Map[K, V]) find(h uintptr, key *K) (i uintptr, ok bool) {
	seq := makeProbeSeq(m.probing, h, m.mask)
	if debug {
		fmt.Printf("find(%v): %s\n", *key, seq)
	}
	tag := h2(h)
	insert := noSlot
	// used+deleted < capacity guarantees an empty slot, and every probe
	// sequence visits every slot, so this loop terminates.
	for ; ; seq = seq.next() {
		j := seq.offset
		switch c := m.ctrls[j]; c {
		case ctrlEmpty:
			if insert == noSlot {
				insert = j
			}
			if debug {
				fmt.Printf("find(not-found): index=%d insert=%d\n", j, insert)
			}
			return insert, false
		case ctrlDeleted:
			if insert == noSlot {
				insert = j
			}
		default:
			if c == tag && m.keysEqual(key, &m.slots[j].key) {
				return j, true
			}
		}
	}
}

// insert places a key known not to be in the table. i is the insertion
// point returned by find for the key's hash h; it is recomputed if the table
// has to be rehashed first.
func (m *Map[K, V]) insert(h uintptr, i uintptr, key K, value V) error {
	switch {
	case m.used+1 > m.maxLoad:
		capacity, err := growCapacity(m.used+1, m.loadFactor)
		if err != nil {
			return err
		}
		if err := m.resize(capacity); err != nil {
			return err
		}
		i = m.findEmpty(m.ctrls, m.mask, h)
	case m.ctrls[i] == ctrlEmpty && m.used+m.deleted+1 > m.maxLoad:
		// Tombstones have used up the headroom. Rehash at the same capacity
		// to drop them.
		if err := m.resize(len(m.slots)); err != nil {
			return err
		}
		i = m.findEmpty(m.ctrls, m.mask, h)
	}

	if m.ctrls[i] == ctrlDeleted {
		m.deleted--
	}
	m.ctrls[i] = h2(h)
	m.slots[i] = Slot[K, V]{key: key, value: value}
	m.used++
	if debug {
		fmt.Printf("put(inserting): index=%d used=%d deleted=%d max-load=%d\n",
			i, m.used, m.deleted, m.maxLoad)
	}
	m.checkInvariants()
	return nil
}

func (m *Map[K, V]) deleteAt(i uintptr) {
	m.slots[i] = Slot[K, V]{}
	m.ctrls[i] = ctrlDeleted
	m.used--
	m.deleted++
}

// findEmpty returns the first empty slot on the probe sequence for h in
// ctrls. The caller guarantees one exists and that ctrls holds no
// tombstones.
func (m *Map[K, V]) findEmpty(ctrls []ctrl, mask uintptr, h uintptr) uintptr {
	for seq := makeProbeSeq(m.probing, h, mask); ; seq = seq.next() {
		if ctrls[seq.offset] == ctrlEmpty {
			return seq.offset
		}
	}
}

// resize allocates arrays of the given capacity and moves every entry into
// them in slot order, dropping tombstones. The old arrays are released only
// after every entry has been moved. If allocation fails the map is left
// untouched.
func (m *Map[K, V]) resize(capacity int) error {
	slots, err := m.allocator.AllocSlots(capacity)
	if err == nil && len(slots) != capacity {
		err = errors.Newf("allocator returned %d slots, want %d", len(slots), capacity)
	}
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "allocating %d slots", capacity), ErrAllocationFailure)
	}
	rawCtrls, err := m.allocator.AllocControls(capacity)
	if err == nil && len(rawCtrls) != capacity {
		err = errors.Newf("allocator returned %d controls, want %d", len(rawCtrls), capacity)
	}
	if err != nil {
		m.allocator.FreeSlots(slots)
		return errors.Mark(errors.Wrapf(err, "allocating %d controls", capacity), ErrAllocationFailure)
	}
	ctrls := unsafeConvertSlice[ctrl](rawCtrls)
	for i := range ctrls {
		ctrls[i] = ctrlEmpty
	}

	mask := uintptr(capacity - 1)
	if debug {
		fmt.Printf("resize: capacity=%d->%d used=%d deleted=%d\n",
			len(m.slots), capacity, m.used, m.deleted)
	}
	for i := range m.ctrls {
		if !m.ctrls[i].full() {
			continue
		}
		s := &m.slots[i]
		h := m.hash(&s.key, m.seed)
		j := m.findEmpty(ctrls, mask, h)
		ctrls[j] = h2(h)
		slots[j] = *s
	}

	if m.slots != nil {
		m.allocator.FreeSlots(m.slots)
		m.allocator.FreeControls(unsafeConvertSlice[uint8](m.ctrls))
	}
	m.ctrls = ctrls
	m.slots = slots
	m.mask = mask
	m.deleted = 0
	m.maxLoad = MaxLoad(capacity, m.loadFactor)
	m.checkInvariants()
	return nil
}

// maybeShrink resizes the table down once occupancy falls below a quarter of
// the load threshold, if WithShrinkOnRemove was given. Shrinking is best
// effort: a failed reallocation leaves the current (valid) table in place.
func (m *Map[K, V]) maybeShrink() {
	if !m.shrink || len(m.slots) <= MinCapacity || m.used*4 >= m.maxLoad {
		return
	}
	capacity, err := growCapacity(max(m.used, 1), m.loadFactor)
	if err != nil || capacity >= len(m.slots) {
		return
	}
	if err := m.resize(capacity); err != nil && debug {
		fmt.Printf("shrink: %v\n", err)
	}
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if err := m.verify(); err != nil {
			panic(fmt.Sprintf("invariant failed: %v\n%s", err, m.debugString()))
		}
	}
}

// verify checks the structural invariants of the map.
func (m *Map[K, V]) verify() error {
	capacity := len(m.slots)
	if m.slots == nil {
		return nil
	}
	if capacity < MinCapacity || capacity&(capacity-1) != 0 {
		return errors.Newf("capacity %d is not a power of two >= %d", capacity, MinCapacity)
	}
	if len(m.ctrls) != capacity {
		return errors.Newf("%d controls for %d slots", len(m.ctrls), capacity)
	}
	if m.mask != uintptr(capacity-1) {
		return errors.Newf("mask %d for capacity %d", m.mask, capacity)
	}
	if m.maxLoad >= capacity {
		return errors.Newf("max-load %d >= capacity %d", m.maxLoad, capacity)
	}
	if m.used+m.deleted >= capacity {
		return errors.Newf("used %d + deleted %d leaves no empty slot in %d", m.used, m.deleted, capacity)
	}

	var used, deleted int
	for i, c := range m.ctrls {
		switch {
		case c == ctrlEmpty:
		case c == ctrlDeleted:
			deleted++
		case c.full():
			s := &m.slots[i]
			h := m.hash(&s.key, m.seed)
			if c != h2(h) {
				return errors.Newf("slot(%d): ctrl %02x != h2 %02x", i, c, h2(h))
			}
			if j, ok := m.find(h, &s.key); !ok || j != uintptr(i) {
				return errors.Newf("slot(%d): %v not found", i, s.key)
			}
			used++
		default:
			return errors.Newf("slot(%d): invalid ctrl %02x", i, c)
		}
	}
	if used != m.used {
		return errors.Newf("found %d used slots, but used count is %d", used, m.used)
	}
	if deleted != m.deleted {
		return errors.Newf("found %d deleted slots, but deleted count is %d", deleted, m.deleted)
	}
	return nil
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  deleted=%d  max-load=%d  probing=%s\n",
		len(m.slots), m.used, m.deleted, m.maxLoad, m.probing)
	for i, c := range m.ctrls {
		switch c {
		case ctrlEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case ctrlDeleted:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		default:
			s := &m.slots[i]
			h := m.hash(&s.key, m.seed)
			fmt.Fprintf(&buf, "  %4d: %v [ctrl=%02x h2=%02x]\n", i, s.key, c, h2(h))
		}
	}
	return buf.String()
}

// unsafeConvertSlice reinterprets a slice of Src as a slice of Dest. The two
// element types must have the same size.
func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}
