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
	"strings"
	"sync"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// DefaultMaxStringLen is the default bound on the content length of a
// StringValue.
const DefaultMaxStringLen = 1 << 16

// Arena hands out byte buffers against a fixed budget. Buffers are tracked
// until freed so that double frees do not inflate the budget. An Arena is
// safe for concurrent use.
type Arena struct {
	mu    sync.Mutex
	limit int
	used  int
	live  map[*byte]int
}

// ArenaOption configures an Arena.
type ArenaOption func(*Arena)

// WithArenaLimit caps the number of bytes the Arena may have outstanding. A
// limit <= 0 means unbounded.
func WithArenaLimit(limit int) ArenaOption {
	return func(a *Arena) {
		if limit > 0 {
			a.limit = limit
		}
	}
}

// NewArena creates an Arena. Without options it is unbounded.
func NewArena(opts ...ArenaOption) *Arena {
	a := &Arena{live: make(map[*byte]int)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Alloc returns a zeroed buffer of n bytes, or ErrAllocationFailure if that
// would exceed the budget.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrAllocationFailure, "arena: invalid size %d", n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limit > 0 && n > a.limit-a.used {
		return nil, errors.Wrapf(ErrAllocationFailure, "arena: %d bytes requested, %d of %d in use",
			n, a.used, a.limit)
	}
	b := make([]byte, n)
	a.used += n
	a.live[&b[0]] = n
	return b, nil
}

// Free returns b to the budget. Freeing a buffer that the Arena did not
// allocate, or freeing it twice, is a no-op.
func (a *Arena) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p := unsafe.SliceData(b)
	if n, ok := a.live[p]; ok {
		delete(a.live, p)
		a.used -= n
	}
}

// Used returns the number of bytes currently allocated.
func (a *Arena) Used() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Ownership records who owns the storage behind a StringValue: an Arena
// (Owned) or nobody (Borrowed). It is fixed when the value is constructed.
type Ownership struct {
	arena *Arena
}

// Borrowed is the Ownership of a StringValue that references memory it does
// not own.
var Borrowed = Ownership{}

// Owned returns the Ownership of storage allocated from a.
func Owned(a *Arena) Ownership {
	return Ownership{arena: a}
}

// IsOwned reports whether the storage is owned by an Arena.
func (o Ownership) IsOwned() bool {
	return o.arena != nil
}

// Arena returns the owning Arena, or nil for borrowed storage.
func (o Ownership) Arena() *Arena {
	return o.arena
}

func (o Ownership) String() string {
	if o.IsOwned() {
		return "owned"
	}
	return "borrowed"
}

// StringValue is an immutable byte string stored with a NUL terminator
// immediately after its last content byte. Its content may itself contain
// NUL bytes. The zero value is the empty borrowed string.
//
// StringValue is comparable, but == also compares ownership; use Equal, or
// the StringKeys options for Map keys, to compare by content.
type StringValue struct {
	owner Ownership
	// data is the content followed by the terminator, or "" for the zero
	// value.
	data string
}

type stringOptions struct {
	maxLen int
}

// StringOption configures StringValue construction.
type StringOption func(*stringOptions)

// WithMaxLen overrides DefaultMaxStringLen.
func WithMaxLen(n int) StringOption {
	return func(o *stringOptions) {
		o.maxLen = n
	}
}

func makeStringOptions(opts []StringOption) stringOptions {
	o := stringOptions{maxLen: DefaultMaxStringLen}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewOwnedString copies b into storage allocated from a and terminates it.
// The result is owned by a until Release. A nil arena fails with
// ErrAllocationFailure.
func NewOwnedString(a *Arena, b []byte, opts ...StringOption) (StringValue, error) {
	o := makeStringOptions(opts)
	if len(b) > o.maxLen {
		return StringValue{}, errors.Wrapf(ErrStringTooLong, "%d > %d", len(b), o.maxLen)
	}
	if a == nil {
		return StringValue{}, errors.Wrapf(ErrAllocationFailure, "nil arena")
	}
	buf, err := a.Alloc(len(b) + 1)
	if err != nil {
		return StringValue{}, err
	}
	copy(buf, b)
	buf[len(b)] = 0
	// buf is never written again and is only reachable through this value,
	// so it can back an immutable string.
	return StringValue{
		owner: Owned(a),
		data:  unsafe.String(unsafe.SliceData(buf), len(buf)),
	}, nil
}

// BorrowString wraps s without copying. s must end with the NUL terminator,
// which is not part of the content; the caller keeps s alive, as with any Go
// string.
func BorrowString(s string, opts ...StringOption) (StringValue, error) {
	o := makeStringOptions(opts)
	if !strings.HasSuffix(s, "\x00") {
		return StringValue{}, errors.Wrapf(ErrNotTerminated, "%q", s)
	}
	if n := len(s) - 1; n > o.maxLen {
		return StringValue{}, errors.Wrapf(ErrStringTooLong, "%d > %d", n, o.maxLen)
	}
	return StringValue{owner: Borrowed, data: s}, nil
}

// Clone copies the content of s into storage owned by a.
func (s StringValue) Clone(a *Arena, opts ...StringOption) (StringValue, error) {
	return NewOwnedString(a, unsafe.Slice(unsafe.StringData(s.String()), s.Len()), opts...)
}

// Len returns the content length, excluding the terminator.
func (s StringValue) Len() int {
	if s.data == "" {
		return 0
	}
	return len(s.data) - 1
}

// String returns the content without the terminator.
func (s StringValue) String() string {
	return s.data[:s.Len()]
}

// CString returns the content followed by the NUL terminator.
func (s StringValue) CString() string {
	if s.data == "" {
		return "\x00"
	}
	return s.data
}

// Bytes returns a copy of the content.
func (s StringValue) Bytes() []byte {
	return []byte(s.String())
}

// Ownership returns who owns the storage of s.
func (s StringValue) Ownership() Ownership {
	return s.owner
}

// Equal reports whether s and o have the same content, regardless of
// ownership.
func (s StringValue) Equal(o StringValue) bool {
	return s.String() == o.String()
}

// Release returns owned storage to its Arena. The value must not be used
// afterwards. Release is a no-op for borrowed strings and is idempotent.
func (s StringValue) Release() {
	if !s.owner.IsOwned() || s.data == "" {
		return
	}
	s.owner.arena.Free(unsafe.Slice(unsafe.StringData(s.data), len(s.data)))
}

// Format implements fmt.Formatter so that %v prints the content.
func (s StringValue) Format(f fmt.State, verb rune) {
	switch verb {
	case 'q':
		fmt.Fprintf(f, "%q", s.String())
	default:
		fmt.Fprint(f, s.String())
	}
}

// StringHash hashes the content of a StringValue with xxhash. It ignores
// ownership, so it agrees with StringEqual. The result is stable across
// processes for a fixed seed.
func StringHash(key *StringValue, seed uintptr) uintptr {
	return uintptr(xxhash.Sum64String(key.String()) ^ uint64(seed))
}

// StringEqual compares two StringValues by content.
func StringEqual(a, b *StringValue) bool {
	return a.Equal(*b)
}

// StringKeys returns the options that make a Map keyed by StringValue hash
// and compare keys by content.
func StringKeys[V any]() []Option[StringValue, V] {
	return []Option[StringValue, V]{
		WithHash[StringValue, V](StringHash),
		WithEqual[StringValue, V](StringEqual),
	}
}
