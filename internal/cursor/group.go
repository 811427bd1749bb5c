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

// Grouper receives the members of one group, in input order, and
// produces an aggregate (§4.3 "GroupedCursor"). Exactly one
// BeginGroup call precedes any AddToGroup calls, followed by exactly
// one FinishGroup call; FinishGroup returning false drops the group.
type Grouper[S, G any] interface {
	BeginGroup(leader S)
	AddToGroup(member S)
	FinishGroup() (G, bool)
}

type groupedCursor[S, G any] struct {
	src       Cursor[S]
	sameGroup func(leader, candidate S) bool
	newGrouper func() Grouper[S, G]
	ticker    cancelTicker

	// pendingLeader holds an already-pulled value that starts the next
	// group, since detecting a group boundary requires pulling one
	// value past the end of the current group.
	pendingLeader *S
	srcExhausted  bool

	pending *G
	done    bool
	closed  bool
}

// Grouped partitions src, which must already be ordered so that every
// member of a group is contiguous, into groups using sameGroup (a
// partial order over the grouping-key prefix), aggregating each group
// with a fresh Grouper from newGrouper.
func Grouped[S, G any](
	src Cursor[S], sameGroup func(leader, candidate S) bool, newGrouper func() Grouper[S, G],
) Cursor[G] {
	return &groupedCursor[S, G]{src: src, sameGroup: sameGroup, newGrouper: newGrouper}
}

func (g *groupedCursor[S, G]) pullNext(ctx context.Context) (S, bool, error) {
	if g.pendingLeader != nil {
		v := *g.pendingLeader
		g.pendingLeader = nil
		return v, true, nil
	}
	if g.srcExhausted {
		var zero S
		return zero, false, nil
	}
	has, err := g.src.HasNext(ctx)
	if err != nil {
		var zero S
		return zero, false, err
	}
	if !has {
		g.srcExhausted = true
		var zero S
		return zero, false, nil
	}
	v, err := g.src.Next(ctx)
	if err != nil {
		var zero S
		return zero, false, err
	}
	return v, true, nil
}

func (g *groupedCursor[S, G]) HasNext(ctx context.Context) (bool, error) {
	if g.closed {
		return false, nil
	}
	if g.pending != nil {
		return true, nil
	}
	if g.done {
		g.Close()
		return false, nil
	}

	for {
		leader, ok, err := g.pullNext(ctx)
		if err != nil {
			return false, closeAndFail[G](g, err)
		}
		if !ok {
			g.done = true
			g.Close()
			return false, nil
		}

		grouper := g.newGrouper()
		grouper.BeginGroup(leader)

		for {
			if err := g.ticker.tick(ctx); err != nil {
				return false, closeAndFail[G](g, err)
			}
			member, ok, err := g.pullNext(ctx)
			if err != nil {
				return false, closeAndFail[G](g, err)
			}
			if !ok {
				break
			}
			if !g.sameGroup(leader, member) {
				g.pendingLeader = &member
				break
			}
			grouper.AddToGroup(member)
		}

		if agg, ok := grouper.FinishGroup(); ok {
			g.pending = &agg
			return true, nil
		}
		// Dropped group (FinishGroup returned false); keep scanning.
	}
}

func (g *groupedCursor[S, G]) Next(ctx context.Context) (G, error) {
	has, err := g.HasNext(ctx)
	if err != nil {
		var zero G
		return zero, err
	}
	if !has {
		var zero G
		return zero, errors.WithStack(types.ErrNoSuchElement)
	}
	v := *g.pending
	g.pending = nil
	return v, nil
}

func (g *groupedCursor[S, G]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[G](ctx, g, n)
}

func (g *groupedCursor[S, G]) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.src.Close()
}
