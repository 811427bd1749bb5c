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

package managedindex

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/types"
)

// triggerState is what a before-hook hands its matching after-hook:
// the old master's projected entry, already computed under the
// upgradable lock BeforeUpdate/BeforeDelete take (§4.8 "Mutation
// triggers").
type triggerState[E types.Record] struct {
	oldEntry E
	hadOld   bool
}

var _ types.Trigger[int] = (*Index[int, int])(nil)

// BeforeInsert has nothing to lock; master row doesn't exist yet.
func (idx *Index[M, E]) BeforeInsert(ctx context.Context, m M) (types.TriggerState, error) {
	return nil, nil
}

// AfterInsert runs insertIndexEntry (§4.8 "Mutation triggers").
func (idx *Index[M, E]) AfterInsert(ctx context.Context, m M, _ types.TriggerState) error {
	return idx.insertIndexEntry(ctx, m)
}

// BeforeUpdate reloads the old master row with for-update semantics so
// the coming write cannot deadlock a concurrent writer taking the same
// path (§5 "Locking discipline"), and projects its current entry while
// still holding that lock.
func (idx *Index[M, E]) BeforeUpdate(ctx context.Context, oldM, newM M) (types.TriggerState, error) {
	locked, ok, err := idx.reloadForUpdate(ctx, oldM)
	if err != nil {
		return nil, err
	}
	if !ok {
		return triggerState[E]{hadOld: false}, nil
	}
	old := idx.model.CopyFromMaster(idx.entries.Prepare, locked)
	return triggerState[E]{oldEntry: old, hadOld: true}, nil
}

// AfterUpdate runs updateIndexEntry using the entry projected under
// lock by BeforeUpdate, comparing it against a fresh projection of the
// post-update master.
func (idx *Index[M, E]) AfterUpdate(ctx context.Context, oldM, newM M, state types.TriggerState) error {
	st, _ := state.(triggerState[E])
	newEntry := idx.model.CopyFromMaster(idx.entries.Prepare, newM)
	if !st.hadOld {
		return idx.insertIndexEntry(ctx, newM)
	}
	return idx.updateIndexEntry(ctx, newEntry, st.oldEntry)
}

// BeforeDelete reloads the master row for-update; a corrupt encoding
// on reload is logged and treated as "no entry to delete" (§4.8
// "before*Delete").
func (idx *Index[M, E]) BeforeDelete(ctx context.Context, m M) (types.TriggerState, error) {
	locked, ok, err := idx.reloadForUpdate(ctx, m)
	if err != nil {
		if types.IsFetchKind(err, types.FetchCorruptEncoding) {
			idx.log.WithError(err).Warn("corrupt master row during before-delete reload; treating as already gone")
			return triggerState[E]{hadOld: false}, nil
		}
		return nil, err
	}
	if !ok {
		return triggerState[E]{hadOld: false}, nil
	}
	old := idx.model.CopyFromMaster(idx.entries.Prepare, locked)
	return triggerState[E]{oldEntry: old, hadOld: true}, nil
}

// AfterDelete runs deleteIndexEntry (§4.8 "Mutation triggers").
func (idx *Index[M, E]) AfterDelete(ctx context.Context, m M, state types.TriggerState) error {
	return idx.deleteIndexEntry(ctx, m)
}

// reloadForUpdate opens a nested transaction marked for-update and
// reloads partial, giving the caller an upgradable lock on the row
// before it mutates anything derived from the row's current values
// (§5 "Locking discipline").
func (idx *Index[M, E]) reloadForUpdate(ctx context.Context, partial M) (M, bool, error) {
	ctx, tx, err := idx.txm.EnterTransaction(ctx, types.IsolationRepeatableRead)
	if err != nil {
		var zero M
		return zero, false, err
	}
	defer tx.Exit(ctx)
	tx.SetForUpdate(true)
	return idx.master.TryLoad(ctx, partial)
}

// insertIndexEntry projects m and attempts to insert it; on a primary-
// key collision it reconciles against the entry already stored there
// (§4.8 "insertIndexEntry").
func (idx *Index[M, E]) insertIndexEntry(ctx context.Context, m M) error {
	projected := idx.model.CopyFromMaster(idx.entries.Prepare, m)
	inserted, err := idx.entries.TryInsert(ctx, projected)
	if err != nil {
		idx.metrics.insertErrors.Inc()
		return err
	}
	if inserted {
		return nil
	}

	existing, ok, err := idx.entries.TryLoad(ctx, projected)
	if err != nil {
		idx.metrics.insertErrors.Inc()
		return err
	}
	if !ok {
		// Raced with a concurrent delete of the colliding row; retry
		// the insert once.
		inserted, err = idx.entries.TryInsert(ctx, projected)
		if err != nil || inserted {
			return err
		}
		existing, ok, err = idx.entries.TryLoad(ctx, projected)
		if err != nil || !ok {
			return err
		}
	}

	adjusted := idx.entryOps.CopyVersionProperty(existing, projected)
	if idx.entryOps.EqualProperties(adjusted, existing) {
		if idx.desc.Unique {
			return types.NewPersistError(types.PersistUniqueConstraint,
				"managedindex: duplicate key on unique index "+idx.desc.NameDescriptor(), nil)
		}
		// Non-unique (alternate-key) index: a duplicate key from a
		// distinct master sharing the same indexed values is expected.
		return nil
	}

	// The stored entry's properties disagree with what this master
	// would produce today: it's stale, not a genuine collision.
	// Reconcile it out of band rather than fail this transaction.
	idx.metrics.repairScheduled.Inc()
	idx.repair.scheduleReplace(projected)
	return nil
}

// updateIndexEntry deletes the old entry and inserts the new one when
// their primary keys differ; an in-place key match means nothing
// changed for this index (§4.8 "updateIndexEntry").
func (idx *Index[M, E]) updateIndexEntry(ctx context.Context, newEntry, oldEntry E) error {
	if idx.entryOps.EqualPrimaryKeys(oldEntry, newEntry) {
		return nil
	}
	if _, err := idx.entries.TryDelete(ctx, oldEntry); err != nil {
		return err
	}
	inserted, err := idx.entries.TryInsert(ctx, newEntry)
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent writer already occupies the new key; reconcile
		// the same way insertIndexEntry's collision path does.
		idx.metrics.repairScheduled.Inc()
		idx.repair.scheduleReplace(newEntry)
	}
	return nil
}

// deleteIndexEntry projects the current master and deletes its entry
// (§4.8 "deleteIndexEntry").
func (idx *Index[M, E]) deleteIndexEntry(ctx context.Context, m M) error {
	projected := idx.model.CopyFromMaster(idx.entries.Prepare, m)
	_, err := idx.entries.TryDelete(ctx, projected)
	return err
}
