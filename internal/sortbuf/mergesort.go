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
	"context"
	"sync/atomic"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMemCapStart = 64
	defaultMemCapMax   = 8192
	defaultFileCap     = 100
	addCancelCadence   = 256
)

// MergeSortBuffer is the external merge-sort SortBuffer (§4.4): an
// in-memory array that spills to pooled work files on overflow, with
// a bounded in-use file count maintained by periodic compaction.
type MergeSortBuffer[S any] struct {
	codec Codec[S]
	pool  *WorkFilePool
	cmp   cursor.Comparator[S]

	mem         *ArraySortBuffer[S]
	memCapStart int
	memCapMax   int
	memCapCur   int
	fileCap     int

	inUse []*WorkFileHandle

	addTicks int
	stopped  atomic.Bool
	closed   bool
}

// NewMergeSortBuffer returns a MergeSortBuffer spilling under pool,
// using codec to serialize entries to work files.
func NewMergeSortBuffer[S any](pool *WorkFilePool, codec Codec[S]) *MergeSortBuffer[S] {
	return &MergeSortBuffer[S]{
		codec:       codec,
		pool:        pool,
		mem:         NewArraySortBuffer[S](),
		memCapStart: defaultMemCapStart,
		memCapMax:   defaultMemCapMax,
		fileCap:     defaultFileCap,
	}
}

// WithCapacities overrides the default in-memory growth range (64 ->
// 8192) and in-use file cap (100).
func (m *MergeSortBuffer[S]) WithCapacities(memCapStart, memCapMax, fileCap int) *MergeSortBuffer[S] {
	m.memCapStart, m.memCapMax, m.fileCap = memCapStart, memCapMax, fileCap
	return m
}

func (m *MergeSortBuffer[S]) Prepare(cmp cursor.Comparator[S]) {
	if len(m.inUse) > 0 {
		m.pool.release(m.inUse)
		m.inUse = nil
	}
	m.cmp = cmp
	m.mem.Prepare(cmp)
	m.memCapCur = m.memCapStart
	m.addTicks = 0
}

// stopForShutdown implements stoppableBuffer.
func (m *MergeSortBuffer[S]) stopForShutdown() { m.stopped.Store(true) }

func (m *MergeSortBuffer[S]) tickAdd(ctx context.Context) error {
	m.addTicks++
	if m.addTicks%addCancelCadence != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return types.NewFetchError(types.FetchInterrupted, "sortbuf: add interrupted", err)
	}
	return nil
}

func (m *MergeSortBuffer[S]) Add(ctx context.Context, v S) error {
	if m.stopped.Load() {
		return types.NewFetchError(types.FetchInterrupted, "sortbuf: buffer stopped for shutdown", nil)
	}
	if err := m.tickAdd(ctx); err != nil {
		return err
	}
	if err := m.mem.Add(ctx, v); err != nil {
		return err
	}
	if m.mem.Len() < m.memCapCur {
		return nil
	}
	return m.spill(ctx)
}

func (m *MergeSortBuffer[S]) spill(ctx context.Context) error {
	if err := m.mem.Sort(ctx); err != nil {
		return err
	}
	handle, err := m.pool.acquire(m)
	if err != nil {
		return errors.Wrap(err, "sortbuf: acquire work file")
	}
	if err := writeEntries(handle.file, m.codec, m.mem.Items()); err != nil {
		m.pool.release([]*WorkFileHandle{handle})
		return errors.Wrap(err, "sortbuf: spill to work file")
	}
	m.inUse = append(m.inUse, handle)
	m.mem.Reset()
	if m.memCapCur < m.memCapMax {
		if next := m.memCapCur * 2; next <= m.memCapMax {
			m.memCapCur = next
		} else {
			m.memCapCur = m.memCapMax
		}
	}
	if len(m.inUse) >= m.fileCap {
		if err := m.compact(ctx); err != nil {
			return err
		}
	}
	return nil
}

// compact merges every in-use file whose size is at or below the mean
// size into a single new file, keeping the in-use count well below
// fileCap (§4.4 "merges a subset ... whose length is at or below the
// mean").
func (m *MergeSortBuffer[S]) compact(ctx context.Context) error {
	sizes := make([]int64, len(m.inUse))
	var total int64
	for i, h := range m.inUse {
		info, err := h.file.Stat()
		if err != nil {
			return errors.Wrap(err, "sortbuf: stat spill file")
		}
		sizes[i] = info.Size()
		total += sizes[i]
	}
	mean := total / int64(len(m.inUse))

	var subset, keep []*WorkFileHandle
	for i, h := range m.inUse {
		if sizes[i] <= mean {
			subset = append(subset, h)
		} else {
			keep = append(keep, h)
		}
	}
	if len(subset) < 2 {
		return nil
	}

	leaves := make([]cursor.Cursor[S], len(subset))
	for i, h := range subset {
		fc, err := newFileCursor[S](h.file, m.codec)
		if err != nil {
			return errors.Wrap(err, "sortbuf: open spill file for compaction")
		}
		leaves[i] = fc
	}
	merged, err := drainSorted[S](ctx, leaves, m.cmp)
	if err != nil {
		return errors.Wrap(err, "sortbuf: merge spill files for compaction")
	}

	dst, err := m.pool.acquire(m)
	if err != nil {
		return errors.Wrap(err, "sortbuf: acquire compaction target")
	}
	if err := writeEntries(dst.file, m.codec, merged); err != nil {
		return errors.Wrap(err, "sortbuf: write compacted spill file")
	}

	m.pool.release(subset)
	m.inUse = append(keep, dst)
	log.WithFields(log.Fields{
		"merged": len(subset),
		"kept":   len(keep),
	}).Debug("sortbuf: compacted spill files")
	return nil
}

// Sort finalizes the residual in-memory array; the spilled files are
// already individually sorted from when they were written.
func (m *MergeSortBuffer[S]) Sort(ctx context.Context) error {
	return m.mem.Sort(ctx)
}

// Iterator returns a priority-queue merger over the in-memory array
// and every in-use spill file (§4.4).
func (m *MergeSortBuffer[S]) Iterator() cursor.Cursor[S] {
	leaves := make([]cursor.Cursor[S], 0, len(m.inUse)+1)
	leaves = append(leaves, cursor.FromSlice(append([]S(nil), m.mem.Items()...)))
	for _, h := range m.inUse {
		fc, err := newFileCursor[S](h.file, m.codec)
		if err != nil {
			return errorCursor[S]{err: errors.Wrap(err, "sortbuf: open spill file")}
		}
		leaves = append(leaves, fc)
	}
	return newKWayMerge(leaves, m.cmp)
}

// Close releases every in-use file back to the pool and unregisters
// the buffer from shutdown notification (§4.4).
func (m *MergeSortBuffer[S]) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if len(m.inUse) > 0 {
		m.pool.release(m.inUse)
		m.inUse = nil
	}
	m.pool.unregister(m)
	m.mem.Close()
}

// errorCursor is a Cursor that always fails; used when Iterator must
// report a setup failure without changing the SortBuffer interface to
// return an error.
type errorCursor[T any] struct{ err error }

func (e errorCursor[T]) HasNext(context.Context) (bool, error) { return false, e.err }
func (e errorCursor[T]) Next(context.Context) (T, error) {
	var zero T
	return zero, e.err
}
func (e errorCursor[T]) SkipNext(context.Context, int) (int, error) { return 0, e.err }
func (e errorCursor[T]) Close()                                     {}
