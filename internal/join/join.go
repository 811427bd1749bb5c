// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

// Package join builds cursors over a join property (§4.10): a
// property on one type whose value is computed by following a chain
// to another type, either loading a single related record (one-to-one)
// or scanning every related record (one-to-many).
package join

import (
	"context"
	"strconv"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Lookup loads the single record of type T related to s, reporting
// false (not an error) when none exists.
type Lookup[S, T types.Record] func(ctx context.Context, s S) (T, bool, error)

// One wraps src with a one-to-one join: every S is replaced by its
// related T, and an S with no related record is silently dropped
// (§4.10 "a join property whose external record no longer exists
// yields no row, rather than a null"). Grounded on
// internal/cursor.Transformed, the same adapter the build pipeline's
// master-to-entry projection conceptually specializes.
func One[S, T types.Record](ctx context.Context, src cursor.Cursor[S], lookup Lookup[S, T]) cursor.Cursor[T] {
	return cursor.Transformed[S, T](src, func(s S) (T, bool, error) {
		return lookup(ctx, s)
	})
}

// FetchMany loads every record of type T related to s.
type FetchMany[S, T types.Record] func(ctx context.Context, s S) (cursor.Cursor[T], error)

// Many wraps src with a one-to-many join: every S expands to zero or
// more related T values, in the order fetch returns them, via
// internal/cursor.MultiTransformed.
func Many[S, T types.Record](ctx context.Context, src cursor.Cursor[S], fetch FetchMany[S, T]) cursor.Cursor[T] {
	return cursor.MultiTransformed[S, T](src, func(s S) (cursor.Cursor[T], error) {
		return fetch(ctx, s)
	})
}

// StorageLookup builds a Lookup that loads the related record from
// store using keyOf to project s's foreign-key fields onto a blank T
// (§4.10 "following a join property's chain").
func StorageLookup[S, T types.Record](store types.Storage[T], keyOf func(s S, blank T) T) Lookup[S, T] {
	return func(ctx context.Context, s S) (T, bool, error) {
		partial := keyOf(s, store.Prepare())
		return store.TryLoad(ctx, partial)
	}
}

// StorageFetchMany builds a FetchMany that queries store with filter,
// parameterized per s via args (§4.10's one-to-many case: "an
// ExternalDerived property's dependents are found by the same
// parameterized query machinery as any other index").
func StorageFetchMany[S, T types.Record](store types.Storage[T], filter types.Filter, argsOf func(s S) []any) FetchMany[S, T] {
	return func(ctx context.Context, s S) (cursor.Cursor[T], error) {
		return store.Query(ctx, filter, argsOf(s)...)
	}
}

// ClassCache is a process-wide cache of built join functions (a
// Lookup[S,T] or a FetchMany[S,T]), keyed by a caller-chosen "join
// class" — typically the source and target type names plus the
// foreign-key property involved. It is the join-side analogue of
// internal/indexent.Cache: equal join classes share one built closure
// rather than a caller re-deriving StorageLookup/StorageFetchMany
// (and whatever key-projection closures they capture) on every call.
type ClassCache[F any] struct {
	lru *lru.Cache[string, F]
}

// NewClassCache builds a ClassCache bounded to size entries.
func NewClassCache[F any](size int) (*ClassCache[F], error) {
	c, err := lru.New[string, F](size)
	if err != nil {
		return nil, err
	}
	return &ClassCache[F]{lru: c}, nil
}

// GetOrCreate returns the cached join function for class, building one
// via gen on a cache miss. class is fingerprinted with xxh3 before use
// as the LRU's bucket key, the same "hash descriptors into cache keys"
// discipline internal/indexent.Cache follows.
func (c *ClassCache[F]) GetOrCreate(class string, gen func() F) F {
	key := strconv.FormatUint(xxh3.HashString(class), 16)
	if f, ok := c.lru.Get(key); ok {
		return f
	}
	f := gen()
	c.lru.Add(key, f)
	return f
}
