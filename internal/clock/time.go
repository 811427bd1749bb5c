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

// Package clock provides a small, totally-ordered timestamp type used
// to stamp StoredIndexInfo metadata and to break ties between
// concurrent writers. It is the same (nanos, logical) shape as a
// hybrid-logical clock, without the distributed-skew-bounding
// machinery that name usually implies.
package clock

import "fmt"

// A Time is a monotonic timestamp composed of a wall-clock component
// and a logical tiebreaker. Two Times with the same Nanos are ordered
// by Logical.
type Time struct {
	nanos   int64
	logical int32
}

// New constructs a Time from its components.
func New(nanos int64, logical int32) Time {
	return Time{nanos: nanos, logical: logical}
}

// Zero is the minimum Time value.
func Zero() Time { return Time{} }

// Nanos returns the wall-clock component.
func (t Time) Nanos() int64 { return t.nanos }

// Logical returns the logical tiebreaker component.
func (t Time) Logical() int32 { return t.logical }

// IsZero reports whether t is the Zero value.
func (t Time) IsZero() bool { return t.nanos == 0 && t.logical == 0 }

// Next returns a Time strictly greater than t, bumping only the
// logical counter.
func (t Time) Next() Time { return Time{nanos: t.nanos, logical: t.logical + 1} }

// String implements fmt.Stringer.
func (t Time) String() string {
	return fmt.Sprintf("%d.%d", t.nanos, t.logical)
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater
// than b. Compare gives a total order: it is the comparator every
// index-entry comparator (§4.6) composes with when a property's
// declared type is this Time type.
func Compare(a, b Time) int {
	switch {
	case a.nanos < b.nanos:
		return -1
	case a.nanos > b.nanos:
		return 1
	case a.logical < b.logical:
		return -1
	case a.logical > b.logical:
		return 1
	default:
		return 0
	}
}
