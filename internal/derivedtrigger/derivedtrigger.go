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

// Package derivedtrigger maintains a DerivedToDependency (§4.10,
// internal/indexanalysis.DerivedToDependency): when a master record M
// changes in a way that feeds an external type D's derived property
// (one computed by following a join chain back to M), this trigger
// finds every dependent D, reloads it under an upgradable lock, and —
// only if the derived bytes actually changed — writes D back so that
// D's own mutation triggers re-derive and re-index it.
package derivedtrigger

import (
	"bytes"
	"context"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/types"
)

// DependentFinder locates every D whose derived property depends on
// oldM/newM, typically by following the join chain's foreign key
// backwards from the master's primary key.
type DependentFinder[M, D types.Record] func(ctx context.Context, oldM, newM M) (cursor.Cursor[D], error)

// Snapshot renders the portion of d that the derived property is
// computed from, for the byte-inequality check that decides whether a
// dependent actually needs re-deriving.
type Snapshot[D types.Record] func(d D) []byte

// Touch returns a copy of d with its derived property recomputed from
// the now-current master state; the caller writes this copy back via
// Storage[D].TryUpdate; Persist so that d's own mutation triggers (and
// hence d's own managed indexes) pick up the change.
type Touch[D types.Record] func(d D) D

// Trigger implements types.Trigger[M], firing only on the hooks that
// can change a dependent's derived property: update and delete.
type Trigger[M, D types.Record] struct {
	types.NopTrigger[M]

	find       DependentFinder[M, D]
	dependents types.Storage[D]
	txm        types.TransactionManager
	snapshot   Snapshot[D]
	touch      Touch[D]
}

// New constructs a derived-dependency trigger. dependents is the
// storage the located D values live in; txm is used to take an
// upgradable lock on each dependent before deciding whether to rewrite
// it, the same discipline internal/managedindex's own mutation
// triggers use (§5 "Locking discipline").
func New[M, D types.Record](
	find DependentFinder[M, D],
	dependents types.Storage[D],
	txm types.TransactionManager,
	snapshot Snapshot[D],
	touch Touch[D],
) *Trigger[M, D] {
	return &Trigger[M, D]{
		find:       find,
		dependents: dependents,
		txm:        txm,
		snapshot:   snapshot,
		touch:      touch,
	}
}

var _ types.Trigger[int] = (*Trigger[int, int])(nil)

// AfterUpdate refreshes every dependent of oldM/newM whose derived
// bytes have changed.
func (t *Trigger[M, D]) AfterUpdate(ctx context.Context, oldM, newM M, _ types.TriggerState) error {
	return t.refreshDependents(ctx, oldM, newM)
}

// AfterDelete treats a deleted master the same as an update to a zero
// value: whatever derived state depended on it must be recomputed (to
// whatever "the referenced master is gone" means for touch).
func (t *Trigger[M, D]) AfterDelete(ctx context.Context, m M, _ types.TriggerState) error {
	var zero M
	return t.refreshDependents(ctx, m, zero)
}

func (t *Trigger[M, D]) refreshDependents(ctx context.Context, oldM, newM M) error {
	deps, err := t.find(ctx, oldM, newM)
	if err != nil {
		return err
	}
	defer deps.Close()

	for {
		has, err := deps.HasNext(ctx)
		if err != nil {
			return err
		}
		if !has {
			break
		}
		d, err := deps.Next(ctx)
		if err != nil {
			return err
		}
		if err := t.refreshOne(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// refreshOne reloads d for-update, recomputes its derived property,
// and writes it back only if the bytes actually differ, avoiding a
// spurious trigger cascade on every dependent for every master write.
func (t *Trigger[M, D]) refreshOne(ctx context.Context, d D) error {
	lctx, tx, err := t.txm.EnterTransaction(ctx, types.IsolationRepeatableRead)
	if err != nil {
		return err
	}
	defer tx.Exit(lctx)
	tx.SetForUpdate(true)

	locked, ok, err := t.dependents.TryLoad(lctx, d)
	if err != nil {
		return err
	}
	if !ok {
		// The dependent was deleted concurrently; nothing to refresh.
		return nil
	}

	before := t.snapshot(locked)
	touched := t.touch(locked)
	after := t.snapshot(touched)
	if bytes.Equal(before, after) {
		return nil
	}

	if _, err := t.dependents.TryUpdate(lctx, touched); err != nil {
		return err
	}
	return tx.Commit(lctx)
}
