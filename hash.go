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

	"github.com/dolthub/maphash"
	"github.com/zhangyunhao116/fastrand"
)

// defaultHash returns a hash function for K that agrees with ==. The
// underlying hasher is randomly keyed per Map; the seed is mixed in so that
// WithSeed still changes slot placement.
func defaultHash[K comparable]() func(key *K, seed uintptr) uintptr {
	h := maphash.NewHasher[K]()
	return func(key *K, seed uintptr) uintptr {
		return uintptr(h.Hash(*key) ^ uint64(seed))
	}
}

func randomSeed() uintptr {
	return uintptr(fastrand.Uint64())
}

// Extracts the H2 portion of a hash: the top 7 bits. The low bits pick the
// first slot of the probe sequence (hash & mask), so the tag stays
// independent of the slot for any table smaller than 1<<(UintSize-7).
//
// These are used as an occupied control byte.
func h2(h uintptr) ctrl {
	return ctrl(h >> (bits.UintSize - 7))
}
