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


package bucketmap

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashFunc computes the 64-bit hash of a key. It must be deterministic for
// the lifetime of a Map and should distribute well across both 32-bit halves:
// the low half selects the bucket and the high half seeds the probe within
// it.
type HashFunc func(key string) uint64

// XXHash is the default HashFunc, the 64-bit xxhash of the key.
func XXHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Key is the two-part surrogate derived from hash(key). Two strings whose
// hashes are equal map to the same Key and are treated as the same entry
// unless the Map was created with WithExactKeys.
type Key struct {
	// Primary selects the bucket in the primary table.
	Primary uint32
	// Secondary seeds the linear probe within the bucket.
	Secondary uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%08x %08x", k.Primary, k.Secondary)
}

// makeKey splits h into its low (primary) and high (secondary) halves.
func makeKey(h uint64) Key {
	return Key{
		Primary:   uint32(h & 0xFFFFFFFF),
		Secondary: uint32(h >> 32),
	}
}
