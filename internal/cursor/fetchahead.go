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
	"sync"

	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
)

type fetchAheadItem[T any] struct {
	value T
	err   error
	eof   bool
}

// fetchAheadCursor prefetches up to k+1 items from src on a background
// goroutine so that any lock the source holds on the underlying store
// can be released before the consumer finishes processing earlier
// items (§4.3 "FetchAhead(k)"). Fetch errors are captured as sentinel
// items in the queue rather than raised directly by the goroutine.
type fetchAheadCursor[T any] struct {
	src  Cursor[T]
	buf  chan fetchAheadItem[T]
	stop chan struct{}
	done chan struct{}

	pending   *fetchAheadItem[T]
	closeOnce sync.Once
	closed    bool
}

// FetchAhead wraps src with a background prefetcher holding up to k+1
// outstanding items. ctx governs the background goroutine's calls into
// src; it should outlive every call to the returned Cursor.
func FetchAhead[T any](ctx context.Context, src Cursor[T], k int) Cursor[T] {
	if k < 0 {
		k = 0
	}
	f := &fetchAheadCursor[T]{
		src:  src,
		buf:  make(chan fetchAheadItem[T], k+1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

func (f *fetchAheadCursor[T]) run(ctx context.Context) {
	defer close(f.done)
	for {
		has, err := f.src.HasNext(ctx)
		if err != nil {
			f.send(fetchAheadItem[T]{err: err})
			return
		}
		if !has {
			f.send(fetchAheadItem[T]{eof: true})
			return
		}
		v, err := f.src.Next(ctx)
		if err != nil {
			f.send(fetchAheadItem[T]{err: err})
			return
		}
		if !f.send(fetchAheadItem[T]{value: v}) {
			return
		}
	}
}

// send enqueues item, returning false if the cursor was closed first.
func (f *fetchAheadCursor[T]) send(item fetchAheadItem[T]) bool {
	select {
	case f.buf <- item:
		return true
	case <-f.stop:
		return false
	}
}

func (f *fetchAheadCursor[T]) fill() {
	if f.pending != nil {
		return
	}
	item := <-f.buf
	f.pending = &item
}

func (f *fetchAheadCursor[T]) HasNext(context.Context) (bool, error) {
	if f.closed {
		return false, nil
	}
	f.fill()
	if f.pending.eof {
		f.Close()
		return false, nil
	}
	if f.pending.err != nil {
		err := f.pending.err
		f.pending = nil
		f.Close()
		if _, ok := err.(*types.FetchError); ok {
			return false, err
		}
		return false, types.NewFetchError(types.FetchGeneric, "fetch-ahead prefetch failed", err)
	}
	return true, nil
}

func (f *fetchAheadCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := f.HasNext(ctx)
	if err != nil || !has {
		var zero T
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	v := f.pending.value
	f.pending = nil
	return v, nil
}

func (f *fetchAheadCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, f, n)
}

func (f *fetchAheadCursor[T]) Close() {
	f.closeOnce.Do(func() {
		f.closed = true
		close(f.stop)
		<-f.done
		f.src.Close()
	})
}
