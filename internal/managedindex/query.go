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
	"fmt"

	"github.com/carbonadodb/carbonado/internal/cursor"
)

// FetchOne runs the cached single-match query — logically
// `SELECT index-entry WHERE p0=? AND p1=? AND …` over this index's
// property tuple — parameterized by identityValues, and returns a
// cursor over the masters it joins back to, applying stale-entry
// repair as it goes (§4.8 "Single-entry query", "Stale-entry repair on
// read"). identityValues must supply a value for each of this index's
// leading properties, in descriptor order.
func (idx *Index[M, E]) FetchOne(ctx context.Context, identityValues ...any) (cursor.Cursor[M], error) {
	start := idx.now()
	defer func() { idx.metrics.fetchOneDuration.Observe(idx.since(start).Seconds()) }()

	key := fmt.Sprintf("%s|%v", idx.desc.NameDescriptor(), identityValues)
	matches, err, _ := idx.fetchOne.Do(key, func() (any, error) {
		entryCur, err := idx.entries.Query(ctx, idx.prefixFilter, identityValues...)
		if err != nil {
			return nil, err
		}
		return cursor.ToList(ctx, entryCur, -1)
	})
	if err != nil {
		return nil, err
	}
	snapshot := matches.([]E)

	return cursor.Transformed[E, M](cursor.FromSlice(snapshot), idx.repairAndJoin(ctx)), nil
}

// repairAndJoin builds the per-entry TransformFunc used by both
// FetchOne and any externally constructed IndexedCursor: load the
// master behind an entry, dropping it if the master is gone, and
// otherwise either yielding it directly (consistent) or yielding it
// while scheduling an out-of-transaction repair (stale).
func (idx *Index[M, E]) repairAndJoin(ctx context.Context) cursor.TransformFunc[E, M] {
	return func(e E) (M, bool, error) {
		partial := idx.model.CopyToMasterPrimaryKey(idx.master.Prepare, e, idx.pk)
		master, ok, err := idx.master.TryLoad(ctx, partial)
		if err != nil {
			var zero M
			return zero, false, err
		}
		if !ok {
			idx.log.WithField("entry", idx.desc.NameDescriptor()).
				Debug("stale repair: index entry has no backing master, dropping")
			var zero M
			return zero, false, nil
		}
		if idx.model.IsConsistent(e, master) {
			return master, true, nil
		}

		expected := idx.model.CopyFromMaster(idx.entries.Prepare, master)
		if _, exists, err := idx.entries.TryLoad(ctx, expected); err == nil && exists {
			// The correct entry is already present; we'll see this
			// master again through it, so drop this stale one.
			var zero M
			return zero, false, nil
		}
		// Neither entry is reliable yet: surface the master now so it
		// isn't lost to the caller, and fix the index out of band.
		idx.metrics.repairScheduled.Inc()
		idx.repair.scheduleReplace(e)
		return master, true, nil
	}
}

// JoinToMaster exposes the same stale-entry-repair join used by
// FetchOne to callers who already hold an entry cursor of their own
// (e.g. the one-to-many join factory in internal/join).
func (idx *Index[M, E]) JoinToMaster(ctx context.Context, entries cursor.Cursor[E]) cursor.Cursor[M] {
	return cursor.Transformed[E, M](entries, idx.repairAndJoin(ctx))
}
