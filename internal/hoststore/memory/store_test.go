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

package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/stretchr/testify/require"
)

type widget struct {
	id   int
	name string
}

func newWidgetStore() *Store[widget] {
	return New(
		func() widget { return widget{} },
		func(w widget) string { return fmt.Sprintf("%08d", w.id) },
		func(a, b widget) bool { return a.id < b.id },
	)
}

func TestTryInsertLoadUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := newWidgetStore()

	ok, err := s.TryInsert(ctx, widget{id: 2, name: "b"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TryInsert(ctx, widget{id: 2, name: "dup"})
	require.NoError(t, err)
	require.False(t, ok, "duplicate primary key must be rejected")

	got, found, err := s.TryLoad(ctx, widget{id: 2})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", got.name)

	ok, err = s.TryUpdate(ctx, widget{id: 2, name: "c"})
	require.NoError(t, err)
	require.True(t, ok)
	got, _, _ = s.TryLoad(ctx, widget{id: 2})
	require.Equal(t, "c", got.name)

	ok, err = s.TryDelete(ctx, widget{id: 2})
	require.NoError(t, err)
	require.True(t, ok)
	_, found, _ = s.TryLoad(ctx, widget{id: 2})
	require.False(t, found)
}

func TestQueryOrderingAndFetchAfter(t *testing.T) {
	ctx := context.Background()
	s := newWidgetStore()
	for _, id := range []int{5, 1, 3, 4, 2} {
		_, err := s.TryInsert(ctx, widget{id: id})
		require.NoError(t, err)
	}

	cur, err := s.Query(ctx, nil)
	require.NoError(t, err)
	defer cur.Close()
	var ids []int
	for {
		has, err := cur.HasNext(ctx)
		require.NoError(t, err)
		if !has {
			break
		}
		w, err := cur.Next(ctx)
		require.NoError(t, err)
		ids = append(ids, w.id)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, ids)

	after, err := s.FetchAfter(ctx, widget{id: 3})
	require.NoError(t, err)
	defer after.Close()
	w, err := after.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, w.id)
}

func TestQueryPredicateFilter(t *testing.T) {
	ctx := context.Background()
	s := newWidgetStore()
	for _, id := range []int{1, 2, 3, 4} {
		_, err := s.TryInsert(ctx, widget{id: id})
		require.NoError(t, err)
	}

	evens := Predicate[widget](func(w widget, args ...any) bool { return w.id%2 == 0 })
	n, err := s.Count(ctx, evens)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

type countingTrigger struct {
	types.NopTrigger[widget]
	inserts int
}

func (c *countingTrigger) AfterInsert(_ context.Context, _ widget, _ types.TriggerState) error {
	c.inserts++
	return nil
}

func TestAddTriggerFiresAndCanBeRemoved(t *testing.T) {
	ctx := context.Background()
	s := newWidgetStore()
	trig := &countingTrigger{}
	remove := s.AddTrigger(trig)

	_, err := s.TryInsert(ctx, widget{id: 1})
	require.NoError(t, err)
	require.Equal(t, 1, trig.inserts)

	remove()
	_, err = s.TryInsert(ctx, widget{id: 2})
	require.NoError(t, err)
	require.Equal(t, 1, trig.inserts, "removed trigger must not fire again")
}
