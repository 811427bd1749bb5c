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

// Package stopctx provides a supervised-goroutine context, the shape
// the work-file pool's shutdown hook (§4.4) and the managed index's
// background repair drain need: start goroutines via Go, signal them
// to wind down via Stop, and wait (with a timeout) for them to finish.
package stopctx

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// A Context wraps a context.Context with a supervised-goroutine
// waitgroup and a "please stop" channel, mirroring the teacher's
// internal/util/stopper.Context: code starts background work with Go,
// observes Stopping() to begin winding down cooperatively, and the
// owner calls Stop to request shutdown and block until drained or a
// deadline passes.
type Context struct {
	context.Context
	cancel context.CancelFunc

	stopping chan struct{}
	once     sync.Once

	wg      sync.WaitGroup
	mu      sync.Mutex
	firstErr error
}

// WithContext constructs a new Context whose lifetime is bound to
// parent.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	return &Context{
		Context:  ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
	}
}

// Stopping returns a channel that is closed once Stop has been called,
// before the hard cancellation deadline. Long-running loops should
// select on this to begin a graceful wind-down.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Go starts fn in a supervised goroutine. The Context is not considered
// drained until fn returns. The first non-nil error returned by any
// supervised goroutine is retained and returned by Stop.
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			c.mu.Lock()
			if c.firstErr == nil {
				c.firstErr = err
			}
			c.mu.Unlock()
		}
	}()
}

// Stop requests a graceful shutdown (closing Stopping(), once) and
// blocks until every supervised goroutine has returned or timeout
// elapses, whichever is first. If the timeout elapses first, the
// underlying context is hard-cancelled and Stop returns a timeout
// error. It is safe to call Stop more than once; only the first call
// has effect, later calls block on the same drain.
func (c *Context) Stop(timeout time.Duration) error {
	c.once.Do(func() { close(c.stopping) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.firstErr
	case <-time.After(timeout):
		c.cancel()
		return errors.Errorf("stopctx: supervised goroutines did not drain within %s", timeout)
	}
}
