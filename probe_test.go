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
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeSeq(t *testing.T) {
	genSeq := func(n int, hash, mask uintptr) []uintptr {
		seq := makeProbeSeq(TriangularProbing, hash, mask)
		vals := make([]uintptr, n)
		for i := 0; i < n; i++ {
			vals[i] = seq.offset
			seq = seq.next()
		}
		return vals
	}

	// The Abseil probeSeq test cases.
	expected := []uintptr{0, 1, 3, 6, 10, 15, 5, 12, 4, 13, 7, 2, 14, 11, 9, 8}
	require.Equal(t, expected, genSeq(16, 0, 15))
	require.Equal(t, expected, genSeq(16, 16, 15))

	seq := makeProbeSeq(LinearProbing, 14, 15)
	var linear []uintptr
	for i := 0; i < 4; i++ {
		linear = append(linear, seq.offset)
		seq = seq.next()
	}
	require.Equal(t, []uintptr{14, 15, 0, 1}, linear)
}

func TestProbingSequence(t *testing.T) {
	for _, probing := range []Probing{LinearProbing, TriangularProbing} {
		t.Run(probing.String(), func(t *testing.T) {
			for capacity := 1; capacity <= 1024; capacity *= 2 {
				hashes := []uint64{0, uint64(capacity - 1), ^uint64(0), rand.Uint64(), rand.Uint64()}
				for _, h := range hashes {
					vals := slices.Collect(probing.Sequence(h, capacity))
					require.Len(t, vals, capacity)
					require.Equal(t, int(h&uint64(capacity-1)), vals[0])

					// Deterministic for a given hash and capacity.
					require.Equal(t, vals, slices.Collect(probing.Sequence(h, capacity)))

					// Every slot is visited exactly once.
					slices.Sort(vals)
					for i, v := range vals {
						require.Equal(t, i, v)
					}
				}
			}
		})
	}
}

func TestProbingSequenceEdgeCases(t *testing.T) {
	for _, capacity := range []int{-4, 0, 3, 6, 100} {
		require.Empty(t, slices.Collect(LinearProbing.Sequence(7, capacity)), "capacity=%d", capacity)
	}

	var n int
	for range TriangularProbing.Sequence(7, 64) {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
	require.Equal(t, "Probing(7)", Probing(7).String())
}
