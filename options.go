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
	"context"
	"log/slog"
)

// Option provide an interface to do work on Map while it is being created.
type Option[V any] interface {
	apply(m *Map[V])
}

type destroyOption[V any] struct {
	destroy func(value V)
}

func (op destroyOption[V]) apply(m *Map[V]) {
	m.destroy = op.destroy
}

// WithDestroy is an option to specify a function that releases a value owned
// by the Map. It is called on the previous value when Set overwrites a key,
// and on every remaining value by Clear and Close. It is never called on a
// value returned by Delete; ownership of that value moves to the caller.
func WithDestroy[V any](destroy func(value V)) Option[V] {
	return destroyOption[V]{destroy}
}

type baseBucketSizeOption[V any] struct {
	size int
}

func (op baseBucketSizeOption[V]) apply(m *Map[V]) {
	m.baseSize = op.size
}

// WithBaseBucketSize is an option to specify the number of slots a bucket
// is given on its first insertion. Buckets double from there. The size must
// be at least 2; the default is 8.
func WithBaseBucketSize[V any](size int) Option[V] {
	return baseBucketSizeOption[V]{size}
}

// Allocator specifies an interface for allocating and releasing the slot
// arrays used by a Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Map.Close must be called in order to ensure FreeSlots is called.
type Allocator[V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[V], n), or
	// an error if the memory cannot be provided. A failed allocation never
	// corrupts the Map: the operation that needed it fails with
	// ErrAllocationFailure.
	AllocSlots(n int) ([]Slot[V], error)

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[V])
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) AllocSlots(n int) ([]Slot[V], error) {
	return make([]Slot[V], n), nil
}

func (defaultAllocator[V]) FreeSlots(v []Slot[V]) {
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(m *Map[V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[V].
func WithAllocator[V any](allocator Allocator[V]) Option[V] {
	return allocatorOption[V]{allocator}
}

type loggerOption[V any] struct {
	logger *slog.Logger
}

func (op loggerOption[V]) apply(m *Map[V]) {
	m.logger = op.logger
}

// WithLogger is an option to receive structured records about bucket growth
// and shrinkage (debug level) and allocation failures (warn level). By
// default nothing is logged.
func WithLogger[V any](logger *slog.Logger) Option[V] {
	return loggerOption[V]{logger}
}

type shrinkOption[V any] struct{}

func (shrinkOption[V]) apply(m *Map[V]) {
	m.shrink = true
}

// WithShrink is an option to halve a bucket after Delete once it is at most a
// quarter full and larger than the base bucket size. A halved bucket is at
// most half full, so it takes a quarter of its capacity in new insertions
// before it grows again.
func WithShrink[V any]() Option[V] {
	return shrinkOption[V]{}
}

type exactKeysOption[V any] struct{}

func (exactKeysOption[V]) apply(m *Map[V]) {
	m.exactKeys = true
}

// WithExactKeys is an option to store the original key string in every slot
// and compare it on lookup, so that distinct keys whose hashes collide remain
// distinct entries. It costs one string header per slot.
func WithExactKeys[V any]() Option[V] {
	return exactKeysOption[V]{}
}

// discardHandler drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

var discardLogger = slog.New(discardHandler{})
