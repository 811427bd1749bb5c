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

// peeked wraps a source Cursor with a one-element lookahead so the
// set-algebra cursors below can compare heads without consuming them.
type peeked[T any] struct {
	src    Cursor[T]
	value  T
	has    bool
	peeked bool
}

func newPeeked[T any](src Cursor[T]) *peeked[T] {
	return &peeked[T]{src: src}
}

func (p *peeked[T]) fill(ctx context.Context) error {
	if p.peeked {
		return nil
	}
	has, err := p.src.HasNext(ctx)
	if err != nil {
		return err
	}
	if !has {
		p.has = false
		p.peeked = true
		return nil
	}
	v, err := p.src.Next(ctx)
	if err != nil {
		return err
	}
	p.value = v
	p.has = true
	p.peeked = true
	return nil
}

// take consumes and returns the peeked value; fill must have been
// called and succeeded with has == true.
func (p *peeked[T]) take() T {
	p.peeked = false
	return p.value
}

func (p *peeked[T]) close() { p.src.Close() }

// twoSource is the shared plumbing for Union/Intersection/Difference/
// SymmetricDifference: two peeked sources plus the comparator, with a
// single Close that is safe to call more than once (§4.2 "second close
// is a no-op").
type twoSource[T any] struct {
	l, r    *peeked[T]
	cmp     Comparator[T]
	closed  bool
}

func (t *twoSource[T]) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.l.close()
	t.r.close()
}

func (t *twoSource[T]) fillBoth(ctx context.Context) error {
	if err := t.l.fill(ctx); err != nil {
		return err
	}
	if err := t.r.fill(ctx); err != nil {
		return err
	}
	return nil
}

func wrapSetOpErr[T any](c interface{ Close() }, err error) error {
	c.Close()
	if _, ok := err.(*types.FetchError); ok {
		return err
	}
	return types.NewFetchError(types.FetchGeneric, "set-algebra cursor fetch failed", err)
}

// ---- Union ----

type unionCursor[T any] struct {
	twoSource[T]
	nextVal T
	nextOK  bool
	primed  bool
}

// Union returns a Cursor yielding every value that appears in l or r,
// in order, emitting equal heads once (§4.2).
func Union[T any](l, r Cursor[T], cmp Comparator[T]) Cursor[T] {
	return &unionCursor[T]{twoSource: twoSource[T]{l: newPeeked(l), r: newPeeked(r), cmp: cmp}}
}

func (u *unionCursor[T]) prime(ctx context.Context) error {
	if u.primed {
		return nil
	}
	if err := u.fillBoth(ctx); err != nil {
		return wrapSetOpErr[T](u, err)
	}
	switch {
	case u.l.has && u.r.has:
		c := u.cmp(u.l.value, u.r.value)
		switch {
		case c < 0:
			u.nextVal, u.nextOK = u.l.take(), true
		case c > 0:
			u.nextVal, u.nextOK = u.r.take(), true
		default:
			u.nextVal, u.nextOK = u.l.take(), true
			u.r.take()
		}
	case u.l.has:
		u.nextVal, u.nextOK = u.l.take(), true
	case u.r.has:
		u.nextVal, u.nextOK = u.r.take(), true
	default:
		u.nextOK = false
	}
	u.primed = true
	return nil
}

func (u *unionCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if err := u.prime(ctx); err != nil {
		return false, err
	}
	if !u.nextOK {
		u.Close()
		return false, nil
	}
	return true, nil
}

func (u *unionCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := u.HasNext(ctx)
	if err != nil || !has {
		var zero T
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	v := u.nextVal
	u.primed = false
	return v, nil
}

func (u *unionCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, u, n)
}

// ---- Intersection ----

type intersectionCursor[T any] struct {
	twoSource[T]
	nextVal T
	nextOK  bool
	primed  bool
}

// Intersection returns a Cursor yielding values present in both l and
// r (§4.2).
func Intersection[T any](l, r Cursor[T], cmp Comparator[T]) Cursor[T] {
	return &intersectionCursor[T]{twoSource: twoSource[T]{l: newPeeked(l), r: newPeeked(r), cmp: cmp}}
}

func (x *intersectionCursor[T]) prime(ctx context.Context) error {
	if x.primed {
		return nil
	}
	for {
		if err := x.fillBoth(ctx); err != nil {
			return wrapSetOpErr[T](x, err)
		}
		if !x.l.has || !x.r.has {
			x.nextOK = false
			x.primed = true
			return nil
		}
		c := x.cmp(x.l.value, x.r.value)
		switch {
		case c < 0:
			x.l.take()
		case c > 0:
			x.r.take()
		default:
			x.nextVal = x.l.take()
			x.r.take()
			x.nextOK = true
			x.primed = true
			return nil
		}
	}
}

func (x *intersectionCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if err := x.prime(ctx); err != nil {
		return false, err
	}
	if !x.nextOK {
		x.Close()
		return false, nil
	}
	return true, nil
}

func (x *intersectionCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := x.HasNext(ctx)
	if err != nil || !has {
		var zero T
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	v := x.nextVal
	x.primed = false
	return v, nil
}

func (x *intersectionCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, x, n)
}

// ---- Difference (asymmetric, L-R) ----

type differenceCursor[T any] struct {
	twoSource[T]
	nextVal T
	nextOK  bool
	primed  bool
}

// Difference returns a Cursor yielding values present in l but not r
// (§4.2 "Asymmetric difference").
func Difference[T any](l, r Cursor[T], cmp Comparator[T]) Cursor[T] {
	return &differenceCursor[T]{twoSource: twoSource[T]{l: newPeeked(l), r: newPeeked(r), cmp: cmp}}
}

func (d *differenceCursor[T]) prime(ctx context.Context) error {
	if d.primed {
		return nil
	}
	for {
		if err := d.fillBoth(ctx); err != nil {
			return wrapSetOpErr[T](d, err)
		}
		if !d.l.has {
			d.nextOK = false
			d.primed = true
			return nil
		}
		if !d.r.has {
			d.nextVal = d.l.take()
			d.nextOK = true
			d.primed = true
			return nil
		}
		c := d.cmp(d.l.value, d.r.value)
		switch {
		case c < 0:
			d.nextVal = d.l.take()
			d.nextOK = true
			d.primed = true
			return nil
		case c > 0:
			d.r.take()
		default:
			d.l.take()
			d.r.take()
		}
	}
}

func (d *differenceCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if err := d.prime(ctx); err != nil {
		return false, err
	}
	if !d.nextOK {
		d.Close()
		return false, nil
	}
	return true, nil
}

func (d *differenceCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := d.HasNext(ctx)
	if err != nil || !has {
		var zero T
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	v := d.nextVal
	d.primed = false
	return v, nil
}

func (d *differenceCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, d, n)
}

// ---- Symmetric difference ----

// SymmetricDiffSide identifies which input a SymmetricDifference value
// would next come from.
type SymmetricDiffSide int

const (
	// SideNone means both inputs are exhausted.
	SideNone SymmetricDiffSide = iota
	SideLeft
	SideRight
)

// SymmetricDifferenceCursor is returned by SymmetricDifference; it adds
// a CompareNext side channel (§4.2) beyond the plain Cursor contract.
type SymmetricDifferenceCursor[T any] struct {
	twoSource[T]
	nextVal T
	nextOK  bool
	side    SymmetricDiffSide
	primed  bool
}

// SymmetricDifference returns a Cursor yielding values present in
// exactly one of l or r (§4.2).
func SymmetricDifference[T any](l, r Cursor[T], cmp Comparator[T]) *SymmetricDifferenceCursor[T] {
	return &SymmetricDifferenceCursor[T]{twoSource: twoSource[T]{l: newPeeked(l), r: newPeeked(r), cmp: cmp}}
}

func (s *SymmetricDifferenceCursor[T]) prime(ctx context.Context) error {
	if s.primed {
		return nil
	}
	for {
		if err := s.fillBoth(ctx); err != nil {
			return wrapSetOpErr[T](s, err)
		}
		switch {
		case !s.l.has && !s.r.has:
			s.nextOK = false
			s.side = SideNone
			s.primed = true
			return nil
		case s.l.has && !s.r.has:
			s.nextVal = s.l.take()
			s.nextOK = true
			s.side = SideLeft
			s.primed = true
			return nil
		case !s.l.has && s.r.has:
			s.nextVal = s.r.take()
			s.nextOK = true
			s.side = SideRight
			s.primed = true
			return nil
		default:
			c := s.cmp(s.l.value, s.r.value)
			switch {
			case c < 0:
				s.nextVal = s.l.take()
				s.nextOK = true
				s.side = SideLeft
				s.primed = true
				return nil
			case c > 0:
				s.nextVal = s.r.take()
				s.nextOK = true
				s.side = SideRight
				s.primed = true
				return nil
			default:
				s.l.take()
				s.r.take()
			}
		}
	}
}

// CompareNext reports which side the next value would come from,
// without consuming it. SideNone means both inputs are exhausted.
func (s *SymmetricDifferenceCursor[T]) CompareNext(ctx context.Context) (SymmetricDiffSide, error) {
	if err := s.prime(ctx); err != nil {
		return SideNone, err
	}
	return s.side, nil
}

func (s *SymmetricDifferenceCursor[T]) HasNext(ctx context.Context) (bool, error) {
	if err := s.prime(ctx); err != nil {
		return false, err
	}
	if !s.nextOK {
		s.Close()
		return false, nil
	}
	return true, nil
}

func (s *SymmetricDifferenceCursor[T]) Next(ctx context.Context) (T, error) {
	has, err := s.HasNext(ctx)
	if err != nil || !has {
		var zero T
		if err == nil {
			err = errors.WithStack(types.ErrNoSuchElement)
		}
		return zero, err
	}
	v := s.nextVal
	s.primed = false
	return v, nil
}

func (s *SymmetricDifferenceCursor[T]) SkipNext(ctx context.Context, n int) (int, error) {
	return genericSkip[T](ctx, s, n)
}

// genericSkip implements SkipNext in terms of HasNext/Next, shared by
// every set-algebra cursor above.
func genericSkip[T any](ctx context.Context, c Cursor[T], n int) (int, error) {
	if n < 0 {
		return 0, errors.WithStack(types.ErrIllegalArgument)
	}
	skipped := 0
	for skipped < n {
		has, err := c.HasNext(ctx)
		if err != nil {
			return skipped, err
		}
		if !has {
			break
		}
		if _, err := c.Next(ctx); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}
