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
)

// cancelCadence is the number of items consumed between cooperative
// interrupt checks (§5). Every internally-looping cursor below (filter,
// transform, multi-transform, grouped, ...) shares this cadence.
const cancelCadence = 256

// cancelTicker checks ctx for cancellation every cancelCadence calls to
// tick. Go's context.Context is the process-wide cooperative interrupt
// mechanism the design calls for: a context cancelled by the caller (or
// by a deadline) is observed here instead of a bespoke interrupt flag.
type cancelTicker struct {
	n int
}

func (c *cancelTicker) tick(ctx context.Context) error {
	c.n++
	if c.n%cancelCadence != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return types.NewFetchError(types.FetchInterrupted, "cursor interrupted", err)
	}
	return nil
}

// A Controller is an external supervisor that may abort in-flight
// cursor work at cooperative check points (§4.3, §5). Unlike the
// cancelTicker cadence above, a Controller is consulted on every
// HasNext/Next call, not just every 256th.
type Controller interface {
	// Begin is called once, lazily, before the first check.
	Begin(ctx context.Context) error
	// ContinueCheck returns an error if the controller has decided to
	// abort.
	ContinueCheck(ctx context.Context) error
	// Close releases any resources the controller holds.
	Close()
}

type controlledCursor[T any] struct {
	src     Cursor[T]
	ctrl    Controller
	started bool
	closed  bool
}

// WithController wraps src so that ctrl.ContinueCheck is consulted
// before every HasNext and Next call, aborting the cursor early if the
// controller signals cancellation (§4.3 "Controller").
func WithController[T any](src Cursor[T], ctrl Controller) Cursor[T] {
	return &controlledCursor[T]{src: src, ctrl: ctrl}
}

func (c *controlledCursor[T]) ensureStarted(ctx context.Context) error {
	if c.started {
		return nil
	}
	c.started = true
	return c.ctrl.Begin(ctx)
}

func (c *controlledCursor[T]) checkAndClose(ctx context.Context) error {
	if err := c.ensureStarted(ctx); err != nil {
		c.Close()
		return err
	}
	if err := c.ctrl.ContinueCheck(ctx); err != nil {
		c.Close()
		return types.NewFetchError(types.FetchInterrupted, "controller aborted cursor", err)
	}
	return nil
}

func (c *controlledCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if err := c.checkAndClose(ctx); err != nil {
		return false, err
	}
	has, err := c.src.HasNext(ctx)
	if err != nil {
		return false, closeAndFail[T](c, err)
	}
	if !has {
		c.Close()
	}
	return has, nil
}

func (c *controlledCursor[T]) Next(ctx context.Context) (T, error) {
	if err := c.checkAndClose(ctx); err != nil {
		var zero T
		return zero, err
	}
	v, err := c.src.Next(ctx)
	if err != nil {
		var zero T
		return zero, closeAndFail[T](c, err)
	}
	return v, nil
}

func (c *controlledCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, c, n)
}

func (c *controlledCursor[T]) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.src.Close()
	c.ctrl.Close()
}
