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

package sortbuf

import (
	"container/heap"
	"context"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
)

// mergeItem is one outstanding value pulled from a leaf cursor, ready
// to be compared in the priority queue.
type mergeItem[S any] struct {
	value S
	leaf  int
}

// mergeHeap orders mergeItems by the supplied comparator, breaking
// ties by leaf index so that equal keys retain their per-file input
// order (§4.4 "ties are broken by input index").
type mergeHeap[S any] struct {
	items []mergeItem[S]
	cmp   cursor.Comparator[S]
}

func (h *mergeHeap[S]) Len() int { return len(h.items) }
func (h *mergeHeap[S]) Less(i, j int) bool {
	if c := h.cmp(h.items[i].value, h.items[j].value); c != 0 {
		return c < 0
	}
	return h.items[i].leaf < h.items[j].leaf
}
func (h *mergeHeap[S]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap[S]) Push(x any)    { h.items = append(h.items, x.(mergeItem[S])) }
func (h *mergeHeap[S]) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// kwayMerge is a strictly-monotonic priority-queue merger over a fixed
// set of already-sorted leaf cursors (§4.4 "iterator() yields a
// priority-queue merger").
type kwayMerge[S any] struct {
	leaves []cursor.Cursor[S]
	cmp    cursor.Comparator[S]
	h      mergeHeap[S]

	initialized bool
	pending     *S
	done        bool
	closed      bool
}

func newKWayMerge[S any](leaves []cursor.Cursor[S], cmp cursor.Comparator[S]) cursor.Cursor[S] {
	return &kwayMerge[S]{leaves: leaves, cmp: cmp, h: mergeHeap[S]{cmp: cmp}}
}

func (m *kwayMerge[S]) fail(err error) error {
	m.Close()
	if _, ok := err.(*types.FetchError); ok {
		return err
	}
	return types.NewFetchError(types.FetchGeneric, "sortbuf: merge failed", err)
}

func (m *kwayMerge[S]) pullInto(ctx context.Context, leaf int) error {
	has, err := m.leaves[leaf].HasNext(ctx)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}
	v, err := m.leaves[leaf].Next(ctx)
	if err != nil {
		return err
	}
	heap.Push(&m.h, mergeItem[S]{value: v, leaf: leaf})
	return nil
}

func (m *kwayMerge[S]) init(ctx context.Context) error {
	if m.initialized {
		return nil
	}
	m.initialized = true
	heap.Init(&m.h)
	for i := range m.leaves {
		if err := m.pullInto(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (m *kwayMerge[S]) HasNext(ctx context.Context) (bool, error) {
	if m.closed || m.done {
		return false, nil
	}
	if m.pending != nil {
		return true, nil
	}
	if err := m.init(ctx); err != nil {
		return false, m.fail(err)
	}
	if m.h.Len() == 0 {
		m.done = true
		m.Close()
		return false, nil
	}
	top := heap.Pop(&m.h).(mergeItem[S])
	if err := m.pullInto(ctx, top.leaf); err != nil {
		return false, m.fail(err)
	}
	v := top.value
	m.pending = &v
	return true, nil
}

func (m *kwayMerge[S]) Next(ctx context.Context) (S, error) {
	has, err := m.HasNext(ctx)
	if err != nil || !has {
		var zero S
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	v := *m.pending
	m.pending = nil
	return v, nil
}

func (m *kwayMerge[S]) SkipNext(ctx context.Context, n int) (int, error) {
	skipped := 0
	for skipped < n {
		has, err := m.HasNext(ctx)
		if err != nil {
			return skipped, err
		}
		if !has {
			break
		}
		if _, err := m.Next(ctx); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

func (m *kwayMerge[S]) Close() {
	if m.closed {
		return
	}
	m.closed = true
	for _, l := range m.leaves {
		l.Close()
	}
}

// drainSorted merges leaves into a single ordered slice, used by
// compact to materialize a subset of spill files into one new file.
func drainSorted[S any](ctx context.Context, leaves []cursor.Cursor[S], cmp cursor.Comparator[S]) ([]S, error) {
	return cursor.ToList(ctx, newKWayMerge(leaves, cmp), -1)
}
