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
	"time"

	"github.com/carbonadodb/carbonado/internal/stopctx"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/cenkalti/backoff/v4"
)

// repairTask is one out-of-transaction fixup: replace whatever entry
// currently occupies stale's primary key with a fresh projection of
// the master that owns it (§4.8 "schedule an out-of-transaction repair
// that reloads the master and replaces (delete + insert) the entry").
type repairTask[E types.Record] struct {
	stale E
}

// repairQueue drains scheduled repairs on a small supervised worker
// pool so that mutation triggers and stale-entry reads never block
// their own transaction on a fixup (§4.8, §4.9 "failure to install is
// fatal" — by contrast, a failed repair only logs and retries later).
type repairQueue[M, E types.Record] struct {
	idx  *Index[M, E]
	work chan repairTask[E]
	sc   *stopctx.Context
}

func newRepairQueue[M, E types.Record](parent context.Context, idx *Index[M, E], workers, depth int) *repairQueue[M, E] {
	sc := stopctx.WithContext(parent)
	q := &repairQueue[M, E]{
		idx:  idx,
		work: make(chan repairTask[E], depth),
		sc:   sc,
	}
	for i := 0; i < workers; i++ {
		sc.Go(q.worker)
	}
	return q
}

func (q *repairQueue[M, E]) worker() error {
	for {
		select {
		case <-q.sc.Stopping():
			return nil
		case task, ok := <-q.work:
			if !ok {
				return nil
			}
			q.apply(task)
		}
	}
}

// scheduleReplace enqueues a repair for stale, dropping it (and
// logging) if the queue is saturated rather than blocking the caller's
// transaction.
func (q *repairQueue[M, E]) scheduleReplace(stale E) {
	select {
	case q.work <- repairTask[E]{stale: stale}:
	default:
		q.idx.log.Warn("repair queue full; dropping scheduled repair, a later read will reschedule it")
	}
}

func (q *repairQueue[M, E]) apply(task repairTask[E]) {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	err := backoff.Retry(func() error {
		return q.applyOnce(task)
	}, backoff.WithContext(b, q.sc))
	if err != nil {
		q.idx.metrics.repairFailed.Inc()
		q.idx.log.WithError(err).Error("out-of-transaction repair exhausted its retry budget")
		return
	}
	q.idx.metrics.repairApplied.Inc()
}

func (q *repairQueue[M, E]) applyOnce(task repairTask[E]) error {
	ctx, tx, err := q.idx.txm.EnterTopTransaction(q.sc, types.IsolationReadCommitted)
	if err != nil {
		return retryableOrPermanent(err)
	}
	defer tx.Exit(ctx)

	masterPartial := q.idx.model.CopyToMasterPrimaryKey(q.idx.master.Prepare, task.stale, q.idx.pk)
	master, ok, err := q.idx.master.TryLoad(ctx, masterPartial)
	if err != nil {
		return retryableOrPermanent(err)
	}
	if !ok {
		// The master is gone; the stale entry is simply bogus.
		if _, err := q.idx.entries.TryDelete(ctx, task.stale); err != nil {
			return retryableOrPermanent(err)
		}
		return tx.Commit(ctx)
	}

	fresh := q.idx.model.CopyFromMaster(q.idx.entries.Prepare, master)
	if q.idx.model.IsConsistent(task.stale, master) {
		return tx.Commit(ctx)
	}
	if _, err := q.idx.entries.TryDelete(ctx, task.stale); err != nil {
		return retryableOrPermanent(err)
	}
	if _, err := q.idx.entries.TryInsert(ctx, fresh); err != nil {
		return retryableOrPermanent(err)
	}
	return tx.Commit(ctx)
}

// retryableOrPermanent classifies a Fetch/Persist error as transient
// (deadlock/timeout, worth another backoff.Retry attempt) or permanent.
func retryableOrPermanent(err error) error {
	if types.IsFetchKind(err, types.FetchDeadlock) || types.IsFetchKind(err, types.FetchTimeout) ||
		types.IsPersistKind(err, types.PersistDeadlock) || types.IsPersistKind(err, types.PersistTimeout) {
		return err
	}
	return backoff.Permanent(err)
}

// close stops accepting new work and waits up to timeout for the
// worker pool to drain (§5 "Idempotence" — safe to call more than
// once; stopctx.Context.Stop already tolerates repeat calls).
func (q *repairQueue[M, E]) close(timeout time.Duration) error {
	return q.sc.Stop(timeout)
}
