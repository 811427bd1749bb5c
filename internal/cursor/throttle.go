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
	"time"
)

// Pacer approximates a desired fraction of full throughput by sleeping
// before each item in proportion to how far ahead of schedule the
// caller has gotten (§4.3 "Throttled", §4.8 "throttle pacer").
//
// A Pacer is not safe for concurrent use; each throttled cursor or
// build pipeline owns one.
type Pacer struct {
	itemsPerSecond float64
	start          time.Time
	count          int64
	now            func() time.Time
	sleep          func(context.Context, time.Duration) error
}

// NewPacer constructs a Pacer targeting itemsPerSecond. A
// non-positive itemsPerSecond disables pacing (Wait always returns
// immediately), matching a desired fraction of 1.0 (full speed).
func NewPacer(itemsPerSecond float64) *Pacer {
	return &Pacer{
		itemsPerSecond: itemsPerSecond,
		now:            time.Now,
		sleep:          defaultSleep,
	}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetClockForTest overrides the Pacer's time source and sleep function.
// It exists for deterministic tests and has no production caller.
func (p *Pacer) SetClockForTest(now func() time.Time, sleep func(context.Context, time.Duration) error) {
	p.now = now
	p.sleep = sleep
}

// Wait blocks, if necessary, so that the long-run rate of Wait calls
// approximates itemsPerSecond.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.itemsPerSecond <= 0 {
		return nil
	}
	if p.count == 0 {
		p.start = p.now()
		p.count = 1
		return nil
	}
	p.count++
	expected := time.Duration(float64(p.count) / p.itemsPerSecond * float64(time.Second))
	elapsed := p.now().Sub(p.start)
	if wait := expected - elapsed; wait > 0 {
		return p.sleep(ctx, wait)
	}
	return nil
}

type throttledCursor[T any] struct {
	src   Cursor[T]
	pacer *Pacer
}

// Throttled wraps src so that pacer.Wait is consulted before each Next
// call (§4.3 "Throttled").
func Throttled[T any](src Cursor[T], pacer *Pacer) Cursor[T] {
	return &throttledCursor[T]{src: src, pacer: pacer}
}

func (t *throttledCursor[T]) HasNext(ctx context.Context) (bool, error) {
	has, err := t.src.HasNext(ctx)
	if err != nil {
		return false, closeAndFail[T](t, err)
	}
	if !has {
		t.Close()
	}
	return has, nil
}

func (t *throttledCursor[T]) Next(ctx context.Context) (T, error) {
	if err := t.pacer.Wait(ctx); err != nil {
		var zero T
		return zero, closeAndFail[T](t, err)
	}
	v, err := t.src.Next(ctx)
	if err != nil {
		var zero T
		return zero, closeAndFail[T](t, err)
	}
	return v, nil
}

func (t *throttledCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, t, n)
}

func (t *throttledCursor[T]) Close() { t.src.Close() }
