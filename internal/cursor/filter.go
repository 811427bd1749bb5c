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

type filteredCursor[T any] struct {
	src       Cursor[T]
	isAllowed func(T) bool
	ticker    cancelTicker

	pending *T
	done    bool
	closed  bool
}

// Filtered wraps src, retaining only values for which isAllowed
// returns true (§4.3 "FilteredCursor"). The next accepted element is
// buffered so HasNext is idempotent.
func Filtered[T any](src Cursor[T], isAllowed func(T) bool) Cursor[T] {
	return &filteredCursor[T]{src: src, isAllowed: isAllowed}
}

func (f *filteredCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if f.closed {
		return false, nil
	}
	if f.pending != nil {
		return true, nil
	}
	if f.done {
		f.Close()
		return false, nil
	}
	for {
		if err := f.ticker.tick(ctx); err != nil {
			return false, closeAndFail[T](f, err)
		}
		has, err := f.src.HasNext(ctx)
		if err != nil {
			return false, closeAndFail[T](f, err)
		}
		if !has {
			f.done = true
			f.Close()
			return false, nil
		}
		v, err := f.src.Next(ctx)
		if err != nil {
			return false, closeAndFail[T](f, err)
		}
		if f.isAllowed(v) {
			f.pending = &v
			return true, nil
		}
	}
}

func (f *filteredCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := f.HasNext(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if !has {
		var zero T
		return zero, errors.WithStack(types.ErrNoSuchElement)
	}
	v := *f.pending
	f.pending = nil
	return v, nil
}

func (f *filteredCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, f, n)
}

func (f *filteredCursor[T]) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.src.Close()
}
