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

import "sync"

// Locked guards a Map with a reader/writer lock. Mutations hold the write
// lock for their whole duration, including any resize they trigger; Get and
// Len hold the read lock, so readers never observe a slot array being
// replaced.
type Locked[K comparable, V any] struct {
	mu sync.RWMutex
	m  *Map[K, V]
}

// NewLocked wraps m. The caller must not use m directly afterwards.
func NewLocked[K comparable, V any](m *Map[K, V]) *Locked[K, V] {
	return &Locked[K, V]{m: m}
}

// Put is Map.Put under the write lock.
func (l *Locked[K, V]) Put(key K, value V) (prev V, replaced bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Put(key, value)
}

// GetOrPut is Map.GetOrPut under the write lock.
func (l *Locked[K, V]) GetOrPut(key K, fn func() V) (value V, created bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.GetOrPut(key, fn)
}

// Get is Map.Get under the read lock.
func (l *Locked[K, V]) Get(key K) (value V, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Get(key)
}

// Delete is Map.Delete under the write lock.
func (l *Locked[K, V]) Delete(key K) (value V, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Delete(key)
}

// Resize is Map.Resize under the write lock.
func (l *Locked[K, V]) Resize(minElements int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Resize(minElements)
}

// Clear is Map.Clear under the write lock.
func (l *Locked[K, V]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m.Clear()
}

// Len is Map.Len under the read lock.
func (l *Locked[K, V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Len()
}

// Do runs fn with exclusive access to the underlying Map, for compound
// operations that must not interleave with other callers.
func (l *Locked[K, V]) Do(fn func(m *Map[K, V]) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.m)
}
