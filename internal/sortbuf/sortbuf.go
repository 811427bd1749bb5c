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

// Package sortbuf implements the sort-buffer abstraction used by the
// index build/repair pipeline (§4.4): an in-memory array buffer for
// small inputs, and a spill-to-file external merge-sort buffer backed
// by a process-wide work-file pool for large ones.
package sortbuf

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/cursor"
)

// Codec serializes and deserializes entries of type S to and from the
// work files a MergeSortBuffer spills to.
type Codec[S any] interface {
	Encode(v S) ([]byte, error)
	Decode(b []byte) (S, error)
}

// SortBuffer is the C4 lifecycle contract: prepare, repeated add, sort,
// iterate, close (§4.4).
type SortBuffer[S any] interface {
	// Prepare clears the buffer and installs the ordering used by a
	// subsequent Sort.
	Prepare(cmp cursor.Comparator[S])
	// Add appends a value. It may trigger a spill to a work file.
	Add(ctx context.Context, v S) error
	// Sort finalizes ordering; no more Adds are permitted afterwards.
	Sort(ctx context.Context) error
	// Iterator returns a Cursor over the sorted contents. Sort must
	// have already succeeded.
	Iterator() cursor.Cursor[S]
	// Close releases any resources (work files) held by the buffer.
	Close()
}

var (
	_ SortBuffer[int] = (*ArraySortBuffer[int])(nil)
	_ SortBuffer[int] = (*MergeSortBuffer[int])(nil)
)
