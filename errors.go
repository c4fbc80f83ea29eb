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

import "github.com/cockroachdb/errors"

var (
	// ErrOverflow is returned when a requested capacity cannot be represented
	// as a power of two. The operation that computed it is abandoned and the
	// Map is left unchanged.
	ErrOverflow = errors.New("hashtable: capacity overflow")

	// ErrAllocationFailure is returned when the Allocator (or an Arena) cannot
	// satisfy a request. Errors returned by a custom Allocator are marked so
	// that errors.Is(err, ErrAllocationFailure) holds.
	ErrAllocationFailure = errors.New("hashtable: allocation failure")

	// ErrInvalidLoadFactor is returned for a load factor outside (0, 1).
	ErrInvalidLoadFactor = errors.New("hashtable: invalid load factor")

	// ErrStringTooLong is returned when a StringValue would exceed its
	// configured maximum length.
	ErrStringTooLong = errors.New("hashtable: string too long")

	// ErrNotTerminated is returned when a borrowed string does not carry its
	// own NUL terminator.
	ErrNotTerminated = errors.New("hashtable: string not NUL terminated")
)
