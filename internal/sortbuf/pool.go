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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/pkg/errors"
)

// stoppableBuffer is implemented by every MergeSortBuffer registered
// with a WorkFilePool; stopForShutdown asks the buffer to give up its files as
// soon as it safely can (§4.4 "shutdown hook").
type stoppableBuffer interface {
	stopForShutdown()
}

// WorkFilePool is the process-wide, per-canonical-temp-dir pool of
// spill files shared by every MergeSortBuffer rooted at that directory
// (§4.4 "work-file pool"). Callers obtain one via PoolFor.
type WorkFilePool struct {
	dir string

	mu   sync.Mutex
	free []*os.File
	users map[stoppableBuffer]struct{}

	waiters sync.WaitGroup
}

var (
	poolsMu sync.Mutex
	pools   = map[string]*WorkFilePool{}
)

// PoolFor returns the singleton WorkFilePool for dir's canonical path,
// creating it lazily on first use (§4.4, §9 "lazily initialized map
// with explicit shutdown").
func PoolFor(dir string) (*WorkFilePool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	abs = filepath.Clean(abs)

	poolsMu.Lock()
	defer poolsMu.Unlock()
	if p, ok := pools[abs]; ok {
		return p, nil
	}
	p := &WorkFilePool{dir: abs, users: map[stoppableBuffer]struct{}{}}
	pools[abs] = p
	return p, nil
}

// WorkFileHandle is a spill file checked out of the pool.
type WorkFileHandle struct {
	file *os.File
}

// acquire registers buffer as a user of the pool and returns a pooled
// handle, reusing a free file if one exists or creating
// "mergesort-<rand>" under the pool's directory otherwise.
func (p *WorkFilePool) acquire(buffer stoppableBuffer) (*WorkFileHandle, error) {
	p.mu.Lock()
	if _, ok := p.users[buffer]; !ok {
		p.users[buffer] = struct{}{}
		p.waiters.Add(1)
	}
	var f *os.File
	if n := len(p.free); n > 0 {
		f = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if f != nil {
		return &WorkFileHandle{file: f}, nil
	}

	name := filepath.Join(p.dir, fmt.Sprintf("mergesort-%s", uuid.NewString()))
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "work-file pool: create spill file")
	}
	// Best-effort: the file is removed from the directory entry
	// immediately; its contents remain accessible through f until
	// closed, and the OS reclaims the inode once every fd is closed,
	// including across an unclean process exit.
	_ = os.Remove(name)
	return &WorkFileHandle{file: f}, nil
}

// release truncates each handle's file to zero length and returns it
// to the free list; a handle whose truncate fails is discarded rather
// than pooled.
func (p *WorkFilePool) release(handles []*WorkFileHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range handles {
		if _, err := h.file.Seek(0, 0); err != nil {
			_ = h.file.Close()
			continue
		}
		if err := h.file.Truncate(0); err != nil {
			_ = h.file.Close()
			continue
		}
		p.free = append(p.free, h.file)
	}
}

// unregister removes buffer from the user set and wakes the shutdown
// waiter if it was the last registered buffer.
func (p *WorkFilePool) unregister(buffer stoppableBuffer) {
	p.mu.Lock()
	_, ok := p.users[buffer]
	if ok {
		delete(p.users, buffer)
	}
	p.mu.Unlock()
	if ok {
		p.waiters.Done()
	}
}

// Shutdown signals every registered buffer to stop, waits up to
// timeout for them to drain, then closes every free file so the OS
// can reclaim it (§4.4 "Shutdown hook").
func (p *WorkFilePool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	for b := range p.users {
		b.stopForShutdown()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.waiters.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("sortbuf: work-file pool shutdown timed out waiting for buffers to drain")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.free {
		_ = f.Close()
	}
	p.free = nil
}
