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

// Package cursor implements the lazy, pull-based cursor algebra (§4.1-
// §4.3): a uniform iterator contract plus the set-algebra, filter,
// transform, grouping, slicing, fetch-ahead, throttling and controller
// adapters built on top of it. Every adapter here closes its source(s)
// before surfacing a fetch error, and treats end-of-stream as a normal
// `false`/`None` value rather than an exception (§9).
package cursor

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
)

// Comparator gives a total order over T. It returns a negative number
// if a < b, zero if equal, and a positive number if a > b.
type Comparator[T any] func(a, b T) int

// A Cursor is a lazy, one-shot, single-consumer pull iterator (§4.1).
// No method is safe to call concurrently with another method on the
// same Cursor.
type Cursor[T any] interface {
	// HasNext reports whether Next would succeed. It may perform I/O
	// and may be called repeatedly without advancing the cursor.
	// Returning false guarantees the cursor has been closed.
	HasNext(ctx context.Context) (bool, error)
	// Next returns the next value. It fails with an error wrapping
	// types.ErrNoSuchElement if the cursor is exhausted.
	Next(ctx context.Context) (T, error)
	// SkipNext skips up to n elements, returning the number actually
	// skipped (which is less than n only at end of stream). A negative
	// n fails with types.ErrIllegalArgument.
	SkipNext(ctx context.Context, n int) (int, error)
	// Close reclaims any resources held by the cursor. Close is
	// idempotent.
	Close()
}

// CopyInto drains c into sink, closing c when done (successfully or
// not). If limit is non-negative, at most limit elements are copied.
func CopyInto[T any](ctx context.Context, c Cursor[T], limit int, sink func(T) error) error {
	defer c.Close()
	count := 0
	for limit < 0 || count < limit {
		has, err := c.HasNext(ctx)
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		v, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if err := sink(v); err != nil {
			return err
		}
		count++
	}
	return nil
}

// ToList drains c into a slice, closing c when done. limit < 0 means
// unbounded.
func ToList[T any](ctx context.Context, c Cursor[T], limit int) ([]T, error) {
	var out []T
	err := CopyInto(ctx, c, limit, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// closeAndFail closes c and wraps err as a fetch failure, the pattern
// every adapter below uses at its single "something went wrong" exit
// point (§7 "any fetch failure closes the cursor before surfacing").
func closeAndFail[T any](c Cursor[T], err error) error {
	c.Close()
	if _, ok := err.(*types.FetchError); ok {
		return err
	}
	return types.NewFetchError(types.FetchGeneric, "cursor fetch failed", err)
}

// ---- empty ----

type emptyCursor[T any] struct{}

// Empty returns a Cursor that is immediately exhausted.
func Empty[T any]() Cursor[T] { return emptyCursor[T]{} }

func (emptyCursor[T]) HasNext(context.Context) (bool, error) { return false, nil }
func (emptyCursor[T]) Next(context.Context) (T, error) {
	var zero T
	return zero, errors.WithStack(types.ErrNoSuchElement)
}
func (emptyCursor[T]) SkipNext(_ context.Context, n int) (int, error) {
	if n < 0 {
		return 0, errors.WithStack(types.ErrIllegalArgument)
	}
	return 0, nil
}
func (emptyCursor[T]) Close() {}

// ---- singleton ----

type singletonCursor[T any] struct {
	value   T
	emitted bool
	closed  bool
}

// Singleton returns a Cursor that yields value exactly once.
func Singleton[T any](value T) Cursor[T] {
	return &singletonCursor[T]{value: value}
}

func (s *singletonCursor[T]) HasNext(context.Context) (bool, error) {
	if s.emitted || s.closed {
		if !s.closed {
			s.Close()
		}
		return false, nil
	}
	return true, nil
}

func (s *singletonCursor[T]) Next(context.Context) (T, error) {
	if s.emitted || s.closed {
		var zero T
		return zero, errors.WithStack(types.ErrNoSuchElement)
	}
	s.emitted = true
	return s.value, nil
}

func (s *singletonCursor[T]) SkipNext(_ context.Context, n int) (int, error) {
	if n < 0 {
		return 0, errors.WithStack(types.ErrIllegalArgument)
	}
	if n == 0 || s.emitted || s.closed {
		return 0, nil
	}
	s.emitted = true
	return 1, nil
}

func (s *singletonCursor[T]) Close() { s.closed = true }

// ---- slice-backed / generic iterator-backed ----

// An IterFunc produces successive values. It returns (zero, false, nil)
// at end of stream, or (zero, false, err) on failure.
type IterFunc[T any] func(ctx context.Context) (T, bool, error)

type funcCursor[T any] struct {
	next   IterFunc[T]
	onClose func()
	peeked  *T
	done    bool
	closed  bool
}

// FromFunc adapts an arbitrary pull function into a Cursor, buffering
// a single lookahead value so HasNext is idempotent (the `mNext`
// pattern from §9, modeled here as an `Option[T]` owned by the
// cursor).
func FromFunc[T any](next IterFunc[T], onClose func()) Cursor[T] {
	return &funcCursor[T]{next: next, onClose: onClose}
}

// FromSlice returns a Cursor over a snapshot of vals.
func FromSlice[T any](vals []T) Cursor[T] {
	i := 0
	return FromFunc(func(context.Context) (T, bool, error) {
		if i >= len(vals) {
			var zero T
			return zero, false, nil
		}
		v := vals[i]
		i++
		return v, true, nil
	}, nil)
}

func (f *funcCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if f.closed {
		return false, nil
	}
	if f.peeked != nil {
		return true, nil
	}
	if f.done {
		f.Close()
		return false, nil
	}
	v, ok, err := f.next(ctx)
	if err != nil {
		return false, closeAndFail[T](f, err)
	}
	if !ok {
		f.done = true
		f.Close()
		return false, nil
	}
	f.peeked = &v
	return true, nil
}

func (f *funcCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := f.HasNext(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if !has {
		var zero T
		return zero, errors.WithStack(types.ErrNoSuchElement)
	}
	v := *f.peeked
	f.peeked = nil
	return v, nil
}

func (f *funcCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	if n < 0 {
		return 0, errors.WithStack(types.ErrIllegalArgument)
	}
	skipped := 0
	for skipped < n {
		has, err := f.HasNext(ctx)
		if err != nil {
			return skipped, err
		}
		if !has {
			break
		}
		if _, err := f.Next(ctx); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

func (f *funcCursor[T]) Close() {
	if f.closed {
		return
	}
	f.closed = true
	if f.onClose != nil {
		f.onClose()
	}
}
