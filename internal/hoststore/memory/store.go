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

// Package memory is a reference host: an in-process, mutex-guarded
// types.Storage[R] with trigger dispatch and nested-transaction
// bookkeeping, standing in for a real record repository (§6.1, §1 "the
// underlying record repository"). It exists for tests and examples,
// the way the teacher's own internal/sinktest fixtures stand in for a
// live CockroachDB cluster.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/carbonadodb/carbonado/internal/types"
)

// Predicate is the concrete type this reference host gives
// types.Filter values: a parameterized match function built by the
// caller, since this package has no query compiler of its own (§1,
// "the filter AST/bytecode compiler... external collaborators").
type Predicate[R types.Record] func(r R, args ...any) bool

// Store is a types.Storage[R] over an in-memory, key-sorted slice.
// less must implement a strict weak ordering over primary keys only;
// the engine never relies on any particular order among rows sharing a
// primary key because primary keys are unique by construction.
type Store[R types.Record] struct {
	mu       sync.Mutex
	prepare  func() R
	keyOf    func(R) string
	less     func(a, b R) bool
	equalKey func(a, b R) bool

	rows []R

	nextTriggerID int
	triggers      []registeredTrigger[R]
}

type registeredTrigger[R types.Record] struct {
	id      int
	trigger types.Trigger[R]
}

// New constructs an empty Store. keyOf must return a string uniquely
// identifying a record's primary key; less must order consistently
// with keyOf equality (equal keys are never less than one another).
func New[R types.Record](prepare func() R, keyOf func(R) string, less func(a, b R) bool) *Store[R] {
	return &Store[R]{
		prepare:  prepare,
		keyOf:    keyOf,
		less:     less,
		equalKey: func(a, b R) bool { return keyOf(a) == keyOf(b) },
	}
}

func (s *Store[R]) Prepare() R { return s.prepare() }

func (s *Store[R]) find(partial R) int {
	key := s.keyOf(partial)
	return sort.Search(len(s.rows), func(i int) bool { return !s.less(s.rows[i], partial) || s.keyOf(s.rows[i]) == key })
}

func (s *Store[R]) TryLoad(_ context.Context, partial R) (R, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(partial)
	if i < len(s.rows) && s.equalKey(s.rows[i], partial) {
		return s.rows[i], true, nil
	}
	var zero R
	return zero, false, nil
}

func (s *Store[R]) TryInsert(ctx context.Context, r R) (bool, error) {
	states, err := s.runBefore(ctx, func(t types.Trigger[R]) (types.TriggerState, error) {
		return t.BeforeInsert(ctx, r)
	})
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	i := s.find(r)
	if i < len(s.rows) && s.equalKey(s.rows[i], r) {
		s.mu.Unlock()
		return false, nil
	}
	s.rows = append(s.rows, r)
	copy(s.rows[i+1:], s.rows[i:])
	s.rows[i] = r
	s.mu.Unlock()

	if err := s.runAfter(ctx, states, func(t types.Trigger[R], st types.TriggerState) error {
		return t.AfterInsert(ctx, r, st)
	}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store[R]) TryUpdate(ctx context.Context, r R) (bool, error) {
	s.mu.Lock()
	i := s.find(r)
	if i >= len(s.rows) || !s.equalKey(s.rows[i], r) {
		s.mu.Unlock()
		return false, nil
	}
	old := s.rows[i]
	s.mu.Unlock()

	states, err := s.runBefore(ctx, func(t types.Trigger[R]) (types.TriggerState, error) {
		return t.BeforeUpdate(ctx, old, r)
	})
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	i = s.find(r)
	if i >= len(s.rows) || !s.equalKey(s.rows[i], r) {
		s.mu.Unlock()
		return false, nil
	}
	s.rows[i] = r
	s.mu.Unlock()

	if err := s.runAfter(ctx, states, func(t types.Trigger[R], st types.TriggerState) error {
		return t.AfterUpdate(ctx, old, r, st)
	}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store[R]) TryDelete(ctx context.Context, partial R) (bool, error) {
	s.mu.Lock()
	i := s.find(partial)
	if i >= len(s.rows) || !s.equalKey(s.rows[i], partial) {
		s.mu.Unlock()
		return false, nil
	}
	old := s.rows[i]
	s.mu.Unlock()

	states, err := s.runBefore(ctx, func(t types.Trigger[R]) (types.TriggerState, error) {
		return t.BeforeDelete(ctx, old)
	})
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	i = s.find(old)
	if i < len(s.rows) && s.equalKey(s.rows[i], old) {
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
	}
	s.mu.Unlock()

	if err := s.runAfter(ctx, states, func(t types.Trigger[R], st types.TriggerState) error {
		return t.AfterDelete(ctx, old, st)
	}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store[R]) snapshot(filter any, args ...any) []R {
	s.mu.Lock()
	defer s.mu.Unlock()
	pred, _ := filter.(Predicate[R])
	out := make([]R, 0, len(s.rows))
	for _, r := range s.rows {
		if pred == nil || pred(r, args...) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store[R]) Query(_ context.Context, filter any, args ...any) (types.Cursor[R], error) {
	return &sliceCursor[R]{rows: s.snapshot(filter, args...)}, nil
}

func (s *Store[R]) FetchAfter(_ context.Context, prev R) (types.Cursor[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(prev)
	if i < len(s.rows) && s.equalKey(s.rows[i], prev) {
		i++
	}
	rows := make([]R, len(s.rows)-i)
	copy(rows, s.rows[i:])
	return &sliceCursor[R]{rows: rows}, nil
}

func (s *Store[R]) Count(_ context.Context, filter any, args ...any) (int64, error) {
	return int64(len(s.snapshot(filter, args...))), nil
}

func (s *Store[R]) Truncate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = nil
	return nil
}

func (s *Store[R]) AddTrigger(trigger types.Trigger[R]) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTriggerID++
	id := s.nextTriggerID
	s.triggers = append(s.triggers, registeredTrigger[R]{id: id, trigger: trigger})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, rt := range s.triggers {
			if rt.id == id {
				s.triggers = append(s.triggers[:i], s.triggers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store[R]) triggerList() []types.Trigger[R] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Trigger[R], len(s.triggers))
	for i, rt := range s.triggers {
		out[i] = rt.trigger
	}
	return out
}

func (s *Store[R]) runBefore(_ context.Context, call func(types.Trigger[R]) (types.TriggerState, error)) ([]types.TriggerState, error) {
	triggers := s.triggerList()
	states := make([]types.TriggerState, len(triggers))
	for i, t := range triggers {
		st, err := call(t)
		if err != nil {
			return nil, err
		}
		states[i] = st
	}
	return states, nil
}

func (s *Store[R]) runAfter(_ context.Context, states []types.TriggerState, call func(types.Trigger[R], types.TriggerState) error) error {
	triggers := s.triggerList()
	for i, t := range triggers {
		if i >= len(states) {
			break
		}
		if err := call(t, states[i]); err != nil {
			return err
		}
	}
	return nil
}

// sliceCursor adapts a materialized slice to types.Cursor[R].
type sliceCursor[R types.Record] struct {
	rows []R
	pos  int
}

func (c *sliceCursor[R]) HasNext(context.Context) (bool, error) { return c.pos < len(c.rows), nil }

func (c *sliceCursor[R]) Next(context.Context) (R, error) {
	if c.pos >= len(c.rows) {
		var zero R
		return zero, types.ErrNoSuchElement
	}
	r := c.rows[c.pos]
	c.pos++
	return r, nil
}

func (c *sliceCursor[R]) SkipNext(_ context.Context, n int) (int, error) {
	if n < 0 {
		return 0, types.ErrIllegalArgument
	}
	remaining := len(c.rows) - c.pos
	if n > remaining {
		n = remaining
	}
	c.pos += n
	return n, nil
}

func (c *sliceCursor[R]) Close() {}
