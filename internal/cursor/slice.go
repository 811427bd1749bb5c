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

type sliceCursor[T any] struct {
	src        Cursor[T]
	from, to   int
	skipped    bool
	emitted    int
	closed     bool
}

// Slice returns a Cursor over src's elements with index in [from, to).
// The skip is performed lazily, on the first HasNext call, and the
// source is closed as soon as the limit is reached (§4.3 "Slice").
func Slice[T any](src Cursor[T], from, to int) Cursor[T] {
	return &sliceCursor[T]{src: src, from: from, to: to}
}

func (s *sliceCursor[T]) ensureSkipped(ctx context.Context) error {
	if s.skipped {
		return nil
	}
	s.skipped = true
	if s.from <= 0 {
		return nil
	}
	if _, err := s.src.SkipNext(ctx, s.from); err != nil {
		return err
	}
	return nil
}

func (s *sliceCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if s.closed {
		return false, nil
	}
	if err := s.ensureSkipped(ctx); err != nil {
		return false, closeAndFail[T](s, err)
	}
	if s.from+s.emitted >= s.to {
		s.Close()
		return false, nil
	}
	has, err := s.src.HasNext(ctx)
	if err != nil {
		return false, closeAndFail[T](s, err)
	}
	if !has {
		s.Close()
	}
	return has, nil
}

func (s *sliceCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := s.HasNext(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if !has {
		var zero T
		return zero, errors.WithStack(types.ErrNoSuchElement)
	}
	v, err := s.src.Next(ctx)
	if err != nil {
		var zero T
		return zero, closeAndFail[T](s, err)
	}
	s.emitted++
	return v, nil
}

func (s *sliceCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, s, n)
}

func (s *sliceCursor[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.src.Close()
}
