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

package cursor

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
)

// TransformFunc maps one input value to at most one output value; a
// false second return drops the input (the `null` case in §4.3).
type TransformFunc[S, T any] func(S) (T, bool, error)

type transformedCursor[S, T any] struct {
	src       Cursor[S]
	transform TransformFunc[S, T]
	ticker    cancelTicker

	pending *T
	done    bool
	closed  bool
}

// Transformed maps each value from src through fn, dropping values fn
// rejects (§4.3 "TransformedCursor").
func Transformed[S, T any](src Cursor[S], fn TransformFunc[S, T]) Cursor[T] {
	return &transformedCursor[S, T]{src: src, transform: fn}
}

func (t *transformedCursor[S, T]) HasNext(ctx context.Context) (bool, error) {
	if t.closed {
		return false, nil
	}
	if t.pending != nil {
		return true, nil
	}
	if t.done {
		t.Close()
		return false, nil
	}
	for {
		if err := t.ticker.tick(ctx); err != nil {
			return false, closeAndFail[T](t, err)
		}
		has, err := t.src.HasNext(ctx)
		if err != nil {
			return false, closeAndFail[T](t, err)
		}
		if !has {
			t.done = true
			t.Close()
			return false, nil
		}
		s, err := t.src.Next(ctx)
		if err != nil {
			return false, closeAndFail[T](t, err)
		}
		out, ok, err := t.transform(s)
		if err != nil {
			return false, closeAndFail[T](t, err)
		}
		if ok {
			t.pending = &out
			return true, nil
		}
	}
}

func (t *transformedCursor[S, T]) Next(ctx context.Context) (T, error) {
	has, err := t.HasNext(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if !has {
		var zero T
		return zero, errors.WithStack(types.ErrNoSuchElement)
	}
	v := *t.pending
	t.pending = nil
	return v, nil
}

func (t *transformedCursor[S, T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, t, n)
}

func (t *transformedCursor[S, T]) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.src.Close()
}

// MultiTransformFunc maps one input value to a sub-cursor of outputs
// (the 1:N case, §4.3 "MultiTransformedCursor").
type MultiTransformFunc[S, T any] func(S) (Cursor[T], error)

type multiTransformedCursor[S, T any] struct {
	src       Cursor[S]
	transform MultiTransformFunc[S, T]
	ticker    cancelTicker

	inner   Cursor[T]
	pending *T
	done    bool
	closed  bool
}

// MultiTransformed maps each value from src to a sub-cursor via fn,
// switching to the next sub-cursor once the current one is exhausted
// and closing inner cursors deterministically as it goes.
func MultiTransformed[S, T any](src Cursor[S], fn MultiTransformFunc[S, T]) Cursor[T] {
	return &multiTransformedCursor[S, T]{src: src, transform: fn}
}

func (m *multiTransformedCursor[S, T]) HasNext(ctx context.Context) (bool, error) {
	if m.closed {
		return false, nil
	}
	if m.pending != nil {
		return true, nil
	}
	if m.done {
		m.Close()
		return false, nil
	}
	for {
		if m.inner != nil {
			if err := m.ticker.tick(ctx); err != nil {
				return false, closeAndFail[T](m, err)
			}
			has, err := m.inner.HasNext(ctx)
			if err != nil {
				return false, closeAndFail[T](m, err)
			}
			if has {
				v, err := m.inner.Next(ctx)
				if err != nil {
					return false, closeAndFail[T](m, err)
				}
				m.pending = &v
				return true, nil
			}
			m.inner.Close()
			m.inner = nil
		}

		has, err := m.src.HasNext(ctx)
		if err != nil {
			return false, closeAndFail[T](m, err)
		}
		if !has {
			m.done = true
			m.Close()
			return false, nil
		}
		s, err := m.src.Next(ctx)
		if err != nil {
			return false, closeAndFail[T](m, err)
		}
		next, err := m.transform(s)
		if err != nil {
			return false, closeAndFail[T](m, err)
		}
		m.inner = next
	}
}

func (m *multiTransformedCursor[S, T]) Next(ctx context.Context) (T, error) {
	has, err := m.HasNext(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if !has {
		var zero T
		return zero, errors.WithStack(types.ErrNoSuchElement)
	}
	v := *m.pending
	m.pending = nil
	return v, nil
}

func (m *multiTransformedCursor[S, T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, m, n)
}

func (m *multiTransformedCursor[S, T]) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if m.inner != nil {
		m.inner.Close()
		m.inner = nil
	}
	m.src.Close()
}
