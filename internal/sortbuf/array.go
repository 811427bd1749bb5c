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
	"sort"

	"github.com/carbonadodb/carbonado/internal/cursor"
)

// ArraySortBuffer is a SortBuffer that never spills: the whole input
// is held in one growing slice. Use it for small result sets, or as
// the in-memory tier that MergeSortBuffer wraps.
type ArraySortBuffer[S any] struct {
	cmp    cursor.Comparator[S]
	items  []S
	sorted bool
}

// NewArraySortBuffer returns an empty ArraySortBuffer.
func NewArraySortBuffer[S any]() *ArraySortBuffer[S] {
	return &ArraySortBuffer[S]{}
}

func (a *ArraySortBuffer[S]) Prepare(cmp cursor.Comparator[S]) {
	a.cmp = cmp
	a.items = a.items[:0]
	a.sorted = false
}

func (a *ArraySortBuffer[S]) Add(_ context.Context, v S) error {
	a.items = append(a.items, v)
	a.sorted = false
	return nil
}

func (a *ArraySortBuffer[S]) Sort(_ context.Context) error {
	sort.SliceStable(a.items, func(i, j int) bool { return a.cmp(a.items[i], a.items[j]) < 0 })
	a.sorted = true
	return nil
}

func (a *ArraySortBuffer[S]) Iterator() cursor.Cursor[S] {
	return cursor.FromSlice(a.items)
}

func (a *ArraySortBuffer[S]) Close() {
	a.items = nil
}

// Len reports the number of buffered items.
func (a *ArraySortBuffer[S]) Len() int { return len(a.items) }

// Items exposes the underlying slice for the merge-sort buffer's
// overflow path; callers must not retain it past the next Prepare.
func (a *ArraySortBuffer[S]) Items() []S { return a.items }

// Reset empties the buffer without forgetting the comparator, used
// by the merge-sort buffer after spilling the in-memory array to a
// work file.
func (a *ArraySortBuffer[S]) Reset() {
	a.items = a.items[:0]
	a.sorted = false
}
