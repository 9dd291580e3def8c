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


// Package bucketmap is a two-level hash map from string keys to values,
// designed for predictable latency: it never rehashes the whole table.
//
// # Layout
//
// A Map is a primary table of buckets whose size is fixed when the Map is
// created. hash(key) is split into two 32-bit halves, the Key. The low half
// (Key.Primary) modulo the primary capacity selects a bucket. Each bucket is
// a small open-addressing table of slots that is materialized on its first
// insertion with the base bucket size (8 by default) and doubles whenever an
// insertion would fill it. Only the bucket being inserted into is rehashed,
// so the cost of a growth is bounded by the size of one bucket rather than
// the size of the whole Map.
//
// Within a bucket, the high half (Key.Secondary) modulo the bucket capacity
// is the first slot probed. Probing is linear and wraps around. A bucket is
// never full (used < capacity), so a probe for an empty slot always
// terminates.
//
// # Deletion
//
// Deletion clears the slot outright. There are no tombstones. Lookups pay for
// this by scanning the whole bucket rather than stopping at the first empty
// slot, which is O(bucket capacity) in the worst case. Buckets are kept
// small by a well-distributed hash and a large enough primary table.
//
// # Keys
//
// Entries are identified by their Key, not by the original string. Two
// strings whose 64-bit hashes are equal are the same entry. WithExactKeys
// stores and compares the original string as well, at the cost of memory.
//
// A Map is NOT goroutine-safe.
package bucketmap

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	debug = false

	defaultBaseBucketSize = 8
)

// Slot holds a key and value.
type Slot[V any] struct {
	key Key
	// raw is the original key string when the Map uses exact keys and is
	// empty otherwise.
	raw   string
	value V
	used  bool
}

// bucket is one entry of the primary table. The zero bucket has no slots and
// is materialized on the first insertion.
type bucket[V any] struct {
	// slots is capacity in length. An unused slot is always the zero Slot.
	slots []Slot[V]
	// The number of used slots. Always < len(slots) once slots is allocated.
	used int
}

// Map is an unordered map from string keys to values with Set, Get, Delete,
// and All operations. The primary table size is fixed at creation and
// buckets grow independently.
//
// A Map is NOT goroutine-safe.
type Map[V any] struct {
	buckets []bucket[V]
	hash    HashFunc
	// destroy is called on values the Map drops: overwritten values and the
	// values remaining at Clear and Close. May be nil.
	destroy   func(value V)
	allocator Allocator[V]
	logger    *slog.Logger
	// scratch stages the old slots of a bucket while it is resized. It is
	// shared by all buckets and only ever grows.
	scratch   []Slot[V]
	baseSize  int
	shrink    bool
	exactKeys bool
	// The number of used slots across all buckets (i.e. the number of
	// elements in the map).
	used    int
	grows   int
	shrinks int
}

// New constructs a new Map with a primary table of capacity buckets, using
// hash to derive keys. The capacity is never changed afterwards. New returns
// an error wrapping ErrInvalidArgument if capacity is not positive, hash is
// nil, or the configured base bucket size is below 2.
func New[V any](capacity int, hash HashFunc, options ...Option[V]) (*Map[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: primary capacity must be positive, got %d",
			ErrInvalidArgument, capacity)
	}
	if hash == nil {
		return nil, fmt.Errorf("%w: hash function is required", ErrInvalidArgument)
	}

	m := &Map[V]{
		hash:      hash,
		allocator: defaultAllocator[V]{},
		logger:    discardLogger,
		baseSize:  defaultBaseBucketSize,
	}

	for _, op := range options {
		op.apply(m)
	}

	if m.baseSize < 2 {
		return nil, fmt.Errorf("%w: base bucket size must be at least 2, got %d",
			ErrInvalidArgument, m.baseSize)
	}
	if m.allocator == nil {
		m.allocator = defaultAllocator[V]{}
	}
	if m.logger == nil {
		m.logger = discardLogger
	}

	m.buckets = make([]bucket[V], capacity)
	return m, nil
}

// Close destroys every remaining value and releases all slot memory back to
// the configured allocator. It is invalid to use a Map after it has been
// closed, and Close must be called at most once.
func (m *Map[V]) Close() {
	for i := range m.buckets {
		b := &m.buckets[i]
		if b.slots == nil {
			continue
		}
		m.destroyAll(b)
		m.allocator.FreeSlots(b.slots)
		b.slots = nil
		b.used = 0
	}
	if m.scratch != nil {
		m.allocator.FreeSlots(m.scratch)
		m.scratch = nil
	}

	m.buckets = nil
	m.used = 0
	m.allocator = nil
}

// Set inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists. The overwritten value is passed to
// the destroy function, if any.
//
// Set returns an error wrapping ErrAllocationFailure if the destination
// bucket needed to grow and the allocator failed. In that case the map is
// unchanged and the caller retains ownership of value. Set panics if key is
// empty.
func (m *Map[V]) Set(key string, value V) error {
	k, raw := m.makeKey(key)
	i := m.bucketIndex(k)
	b := &m.buckets[i]

	// Grow before probing so that there is always an empty slot to take.
	if b.used+1 >= len(b.slots) {
		newCapacity := max(m.baseSize, 2*len(b.slots))
		if err := m.resize(i, newCapacity); err != nil {
			m.logger.Warn("bucket growth failed",
				"bucket", i,
				"capacity", len(b.slots),
				"target", newCapacity,
				"error", err,
			)
			return fmt.Errorf("bucketmap: set %q: %w", key, err)
		}
		m.grows++
	}

	j := b.find(k, raw, true)
	if debug {
		fmt.Printf("set(%s): bucket=%d index=%d\n", k, i, j)
	}
	if j < 0 {
		// Unreachable: growth guarantees used+1 < capacity.
		return fmt.Errorf("bucketmap: set %q: %w: no free slot", key, ErrAllocationFailure)
	}

	s := &b.slots[j]
	if s.used {
		if m.destroy != nil {
			m.destroy(s.value)
		}
	} else {
		b.used++
		m.used++
	}
	*s = Slot[V]{key: k, raw: raw, value: value, used: true}

	b.checkInvariants(m)
	return nil
}

// Get retrieves the value from the map for the specified key, return ok=false
// if the key is not present. Get panics if key is empty.
func (m *Map[V]) Get(key string) (value V, ok bool) {
	k, raw := m.makeKey(key)
	b := &m.buckets[m.bucketIndex(k)]
	j := b.find(k, raw, false)
	if debug {
		fmt.Printf("get(%s): index=%d\n", k, j)
	}
	if j < 0 {
		return value, false
	}
	return b.slots[j].value, true
}

// Delete removes the entry for key and returns its value. Ownership of the
// returned value moves to the caller: the destroy function is not called. It
// returns ok=false if the key is not present. Delete panics if key is empty.
func (m *Map[V]) Delete(key string) (value V, ok bool) {
	k, raw := m.makeKey(key)
	i := m.bucketIndex(k)
	b := &m.buckets[i]

	// The scan covers the whole bucket, like find. Stopping at the first
	// empty slot would miss entries placed past a slot cleared by an earlier
	// Delete.
	j := b.find(k, raw, false)
	if debug {
		fmt.Printf("delete(%s): bucket=%d index=%d\n", k, i, j)
	}
	if j < 0 {
		return value, false
	}

	value = b.slots[j].value
	b.slots[j] = Slot[V]{}
	b.used--
	m.used--

	if m.shrink {
		m.maybeShrink(i)
	}

	b.checkInvariants(m)
	return value, true
}

// All calls yield sequentially for each key and value present in the map,
// in bucket order and then slot order. If yield returns false, All stops the
// iteration. The order is not stable across growth. The map must not be
// mutated during iteration.
func (m *Map[V]) All(yield func(key Key, value V) bool) {
	for i := range m.buckets {
		b := &m.buckets[i]
		for j := range b.slots {
			s := &b.slots[j]
			if !s.used {
				continue
			}
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Clear deletes all entries from the map, passing each value to the destroy
// function, if any. Bucket capacity is retained.
func (m *Map[V]) Clear() {
	for i := range m.buckets {
		b := &m.buckets[i]
		m.destroyAll(b)
		clear(b.slots)
		b.used = 0
	}
	m.used = 0
}

// Len returns the number of entries in the map.
func (m *Map[V]) Len() int {
	return m.used
}

// Stats describes the shape of a Map.
type Stats struct {
	// Len is the number of entries.
	Len int
	// Buckets is the fixed size of the primary table.
	Buckets int
	// AllocatedBuckets is the number of buckets that have slots.
	AllocatedBuckets int
	// SlotCapacity is the total number of slots across all buckets.
	SlotCapacity int
	// MaxBucketCapacity is the capacity of the largest bucket.
	MaxBucketCapacity int
	// ScratchCapacity is the size of the shared resize buffer.
	ScratchCapacity int
	// Grows counts bucket growths, including first allocations.
	Grows int
	// Shrinks counts bucket shrinks.
	Shrinks int
}

// Stats returns a snapshot of the map's shape. It walks every bucket.
func (m *Map[V]) Stats() Stats {
	s := Stats{
		Len:             m.used,
		Buckets:         len(m.buckets),
		ScratchCapacity: len(m.scratch),
		Grows:           m.grows,
		Shrinks:         m.shrinks,
	}
	for i := range m.buckets {
		c := len(m.buckets[i].slots)
		if c == 0 {
			continue
		}
		s.AllocatedBuckets++
		s.SlotCapacity += c
		s.MaxBucketCapacity = max(s.MaxBucketCapacity, c)
	}
	return s
}

// makeKey derives the Key for key along with the string to store and compare
// alongside it (empty unless the map uses exact keys).
func (m *Map[V]) makeKey(key string) (Key, string) {
	if len(key) == 0 {
		panic(fmt.Errorf("%w: empty key", ErrInvalidArgument))
	}
	k := makeKey(m.hash(key))
	if m.exactKeys {
		return k, key
	}
	return k, ""
}

// bucketIndex returns the index of the bucket holding k.
func (m *Map[V]) bucketIndex(k Key) int {
	return int(uint64(k.Primary) % uint64(len(m.buckets)))
}

func (m *Map[V]) destroyAll(b *bucket[V]) {
	if m.destroy == nil {
		return
	}
	for j := range b.slots {
		if b.slots[j].used {
			m.destroy(b.slots[j].value)
		}
	}
}

// reserveScratch ensures the scratch buffer holds at least n slots. It only
// ever grows the buffer.
func (m *Map[V]) reserveScratch(n int) error {
	if len(m.scratch) >= n {
		return nil
	}
	scratch, err := m.allocator.AllocSlots(n)
	if err != nil {
		return fmt.Errorf("%w: scratch of %d slots: %w", ErrAllocationFailure, n, err)
	}
	if m.scratch != nil {
		m.allocator.FreeSlots(m.scratch)
	}
	m.scratch = scratch
	return nil
}

// resize moves bucket i to an array of newCapacity slots, re-inserting every
// entry under the new capacity's probe start. newCapacity must exceed the
// bucket's used count. All allocations happen before the bucket is touched,
// so on error the bucket is unchanged.
func (m *Map[V]) resize(i int, newCapacity int) error {
	b := &m.buckets[i]
	oldCapacity := len(b.slots)

	if oldCapacity > 0 {
		if err := m.reserveScratch(oldCapacity); err != nil {
			return err
		}
	}
	slots, err := m.allocator.AllocSlots(newCapacity)
	if err != nil {
		return fmt.Errorf("%w: bucket of %d slots: %w", ErrAllocationFailure, newCapacity, err)
	}
	clear(slots)

	if debug {
		fmt.Printf("resize: bucket=%d capacity=%d->%d used=%d\n",
			i, oldCapacity, newCapacity, b.used)
	}

	if oldCapacity == 0 {
		b.slots = slots
	} else {
		old := m.scratch[:oldCapacity]
		copy(old, b.slots)
		m.allocator.FreeSlots(b.slots)
		b.slots = slots

		for j := range old {
			if old[j].used {
				b.uncheckedPut(old[j])
			}
		}
		// Drop the references held by the staged copy.
		clear(old)
	}

	m.logger.Debug("bucket resized",
		"bucket", i,
		"from", oldCapacity,
		"to", newCapacity,
		"used", b.used,
	)

	b.checkInvariants(m)
	return nil
}

// maybeShrink halves bucket i when it is larger than the base size and at
// most a quarter full. A failed allocation leaves the bucket as it is.
func (m *Map[V]) maybeShrink(i int) {
	b := &m.buckets[i]
	capacity := len(b.slots)
	if capacity <= m.baseSize || b.used > capacity/4 {
		return
	}
	newCapacity := max(m.baseSize, capacity/2)
	if err := m.resize(i, newCapacity); err != nil {
		m.logger.Warn("bucket shrink failed",
			"bucket", i,
			"capacity", capacity,
			"target", newCapacity,
			"error", err,
		)
		return
	}
	m.shrinks++
}

// find returns the index of the slot holding k, or -1. The scan starts at
// k.Secondary modulo the capacity and covers every slot, since a cleared
// slot does not end a probe run. If acceptEmpty is set and k is not present,
// find returns the first unused slot of the scan instead.
func (b *bucket[V]) find(k Key, raw string, acceptEmpty bool) int {
	n := len(b.slots)
	if n == 0 {
		return -1
	}

	empty := -1
	j := int(uint64(k.Secondary) % uint64(n))
	for p := 0; p < n; p++ {
		s := &b.slots[j]
		if s.used {
			if s.key == k && s.raw == raw {
				return j
			}
		} else if acceptEmpty && empty < 0 {
			empty = j
		}
		if j++; j == n {
			j = 0
		}
	}
	return empty
}

// uncheckedPut places s, which is known not to be in the bucket, in the first
// unused slot of its probe sequence. Used when relocating entries during a
// resize.
func (b *bucket[V]) uncheckedPut(s Slot[V]) {
	n := len(b.slots)
	j := int(uint64(s.key.Secondary) % uint64(n))
	for b.slots[j].used {
		if j++; j == n {
			j = 0
		}
	}
	b.slots[j] = s
}

func (b *bucket[V]) checkInvariants(m *Map[V]) {
	if invariants {
		if len(b.slots) > 0 && b.used >= len(b.slots) {
			panic(fmt.Sprintf("invariant failed: used %d >= capacity %d\n%s",
				b.used, len(b.slots), b.debugString()))
		}

		// For every used slot, verify find returns that slot. Verify every
		// unused slot is zeroed.
		var used int
		for j := range b.slots {
			s := &b.slots[j]
			if !s.used {
				if s.key != (Key{}) || s.raw != "" {
					panic(fmt.Sprintf("invariant failed: slot(%d): unused slot has key %s\n%s",
						j, s.key, b.debugString()))
				}
				continue
			}
			if f := b.find(s.key, s.raw, false); f != j {
				panic(fmt.Sprintf("invariant failed: slot(%d): %s found at %d\n%s",
					j, s.key, f, b.debugString()))
			}
			used++
		}
		if used != b.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, b.used, b.debugString()))
		}

		var total int
		for i := range m.buckets {
			total += m.buckets[i].used
		}
		if total != m.used {
			panic(fmt.Sprintf("invariant failed: buckets hold %d entries, but map used count is %d",
				total, m.used))
		}
	}
}

func (b *bucket[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", len(b.slots), b.used)
	for j := range b.slots {
		s := &b.slots[j]
		if !s.used {
			fmt.Fprintf(&buf, "  %4d: empty\n", j)
			continue
		}
		n := len(b.slots)
		fmt.Fprintf(&buf, "  %4d: %s [start=%d]\n", j, s.key, int(uint64(s.key.Secondary)%uint64(n)))
	}
	return buf.String()
}
