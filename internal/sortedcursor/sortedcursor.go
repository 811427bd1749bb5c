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

// Package sortedcursor imposes a total order on a source cursor,
// exploiting a known-sorted prefix when one is available so only the
// remaining properties need re-sorting within each prefix-equal chunk
// (§4.5).
package sortedcursor

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
)

// New returns a Cursor over src ordered by the composition of prefix
// (if non-nil) and finisher. If prefix is nil, the whole of src is
// buffered, sorted by finisher, and iterated (§4.5 "If the prefix is
// absent"). Otherwise src is consumed in chunks of prefix-equal runs,
// each chunk re-sorted by finisher (§4.5 "process chunks").
//
// Sort stability is not guaranteed: elements that compare equal under
// Comparator(prefix, finisher) may be reordered.
func New[S any](
	src cursor.Cursor[S], prefix, finisher cursor.Comparator[S], buf sortbuf.SortBuffer[S],
) *Cursor[S] {
	return &Cursor[S]{src: src, prefix: prefix, finisher: finisher, buf: buf}
}

// Cursor is returned by New. Comparator exposes the composed ordering
// the cursor actually produces.
type Cursor[S any] struct {
	src      cursor.Cursor[S]
	prefix   cursor.Comparator[S]
	finisher cursor.Comparator[S]
	buf      sortbuf.SortBuffer[S]

	started bool
	whole   bool // true once buffering the entire source (no prefix)

	chunk        cursor.Cursor[S]
	pendingFirst *S
	srcDone      bool

	closed bool
}

// Comparator returns the lexicographic composition of the prefix (if
// any) followed by the finisher (§4.5 "exposes comparator() equal to
// the lexicographic composition").
func (c *Cursor[S]) Comparator() cursor.Comparator[S] {
	if c.prefix == nil {
		return c.finisher
	}
	prefix, finisher := c.prefix, c.finisher
	return func(a, b S) int {
		if d := prefix(a, b); d != 0 {
			return d
		}
		return finisher(a, b)
	}
}

func (c *Cursor[S]) fail(err error) error {
	c.Close()
	if _, ok := err.(*types.FetchError); ok {
		return err
	}
	return types.NewFetchError(types.FetchGeneric, "sortedcursor: chunk load failed", err)
}

func (c *Cursor[S]) ensureStarted(ctx context.Context) error {
	if c.started {
		return nil
	}
	c.started = true
	if c.prefix == nil {
		c.whole = true
		return c.loadWhole(ctx)
	}
	return nil
}

func (c *Cursor[S]) loadWhole(ctx context.Context) error {
	c.buf.Prepare(c.finisher)
	defer c.src.Close()
	for {
		has, err := c.src.HasNext(ctx)
		if err != nil {
			return err
		}
		if !has {
			break
		}
		v, err := c.src.Next(ctx)
		if err != nil {
			return err
		}
		if err := c.buf.Add(ctx, v); err != nil {
			return err
		}
	}
	if err := c.buf.Sort(ctx); err != nil {
		return err
	}
	c.chunk = c.buf.Iterator()
	return nil
}

// loadNextChunk consumes one prefix-equal run from src into buf, sorts
// it by finisher, and installs it as the current chunk iterator. The
// first element of the following chunk (if any) is pushed back into
// pendingFirst.
func (c *Cursor[S]) loadNextChunk(ctx context.Context) error {
	var leader *S
	if c.pendingFirst != nil {
		leader = c.pendingFirst
		c.pendingFirst = nil
	} else if !c.srcDone {
		has, err := c.src.HasNext(ctx)
		if err != nil {
			return err
		}
		if has {
			v, err := c.src.Next(ctx)
			if err != nil {
				return err
			}
			leader = &v
		} else {
			c.srcDone = true
		}
	}
	if leader == nil {
		c.chunk = nil
		return nil
	}

	c.buf.Prepare(c.finisher)
	if err := c.buf.Add(ctx, *leader); err != nil {
		return err
	}
	for {
		if c.srcDone {
			break
		}
		has, err := c.src.HasNext(ctx)
		if err != nil {
			return err
		}
		if !has {
			c.srcDone = true
			break
		}
		v, err := c.src.Next(ctx)
		if err != nil {
			return err
		}
		if c.prefix(*leader, v) != 0 {
			c.pendingFirst = &v
			break
		}
		if err := c.buf.Add(ctx, v); err != nil {
			return err
		}
	}
	if err := c.buf.Sort(ctx); err != nil {
		return err
	}
	c.chunk = c.buf.Iterator()
	return nil
}

func (c *Cursor[S]) HasNext(ctx context.Context) (bool, error) {
	if c.closed {
		return false, nil
	}
	if err := c.ensureStarted(ctx); err != nil {
		return false, c.fail(err)
	}
	for {
		if c.chunk != nil {
			has, err := c.chunk.HasNext(ctx)
			if err != nil {
				return false, c.fail(err)
			}
			if has {
				return true, nil
			}
			c.chunk.Close()
			c.chunk = nil
		}
		if c.whole {
			c.Close()
			return false, nil
		}
		if err := c.loadNextChunk(ctx); err != nil {
			return false, c.fail(err)
		}
		if c.chunk == nil {
			c.Close()
			return false, nil
		}
	}
}

func (c *Cursor[S]) Next(ctx context.Context) (S, error) {
	has, err := c.HasNext(ctx)
	if err != nil || !has {
		var zero S
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	return c.chunk.Next(ctx)
}

func (c *Cursor[S]) SkipNext(ctx context.Context, n int) (int, error) {
	if n < 0 {
		return 0, errors.WithStack(types.ErrIllegalArgument)
	}
	skipped := 0
	for skipped < n {
		has, err := c.HasNext(ctx)
		if err != nil {
			return skipped, err
		}
		if !has {
			break
		}
		if _, err := c.Next(ctx); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

func (c *Cursor[S]) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.chunk != nil {
		c.chunk.Close()
		c.chunk = nil
	}
	if !c.whole {
		c.src.Close()
	}
	c.buf.Close()
}

var _ cursor.Cursor[int] = (*Cursor[int])(nil)
