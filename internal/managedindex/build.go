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
	"sync"
	"time"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/carbonadodb/carbonado/internal/types"
	"golang.org/x/sync/errgroup"
)

// BuildIndex runs the one-shot build/repair pipeline (§4.8
// "Build / repair"): scan every master row into a sort buffer,
// detect uniqueness violations, then reconcile the sorted projection
// against whatever entries already exist. desiredSpeed, in items per
// second, paces the scan phase; zero or negative disables throttling.
func (idx *Index[M, E]) BuildIndex(ctx context.Context, desiredSpeed float64) error {
	start := idx.now()
	empty, err := idx.masterIsEmpty(ctx)
	if err != nil {
		return err
	}
	if empty {
		idx.log.Info("build: master is empty, nothing to do")
		return nil
	}

	buf := sortbuf.NewMergeSortBuffer[E](idx.pool, idx.codec)
	buf.Prepare(idx.model.Comparator())
	defer buf.Close()

	skipped, scanned, err := idx.scanIntoBuffer(ctx, buf, desiredSpeed)
	if err != nil {
		return err
	}
	idx.metrics.skipped.Add(float64(skipped))
	idx.log.WithField("scanned", scanned).WithField("skipped", skipped).Info("build: scan complete")

	if err := buf.Sort(ctx); err != nil {
		return err
	}

	if idx.desc.Unique {
		if err := idx.checkUnique(ctx, buf); err != nil {
			return err
		}
	}

	inserted, updated, deleted, err := idx.reconcile(ctx, buf)
	if err != nil {
		return err
	}
	idx.metrics.inserted.Add(float64(inserted))
	idx.metrics.updated.Add(float64(updated))
	idx.metrics.deleted.Add(float64(deleted))
	idx.metrics.buildDuration.Observe(idx.since(start).Seconds())
	idx.log.WithField("inserted", inserted).WithField("updated", updated).WithField("deleted", deleted).
		Info("build: reconciliation complete")
	return nil
}

func (idx *Index[M, E]) now() time.Time   { return time.Now() }
func (idx *Index[M, E]) since(t time.Time) time.Duration { return time.Since(t) }

// masterIsEmpty opens a read-committed transaction and checks for at
// least one master row (§4.8 step 1).
func (idx *Index[M, E]) masterIsEmpty(ctx context.Context) (bool, error) {
	ctx, tx, err := idx.txm.EnterTransaction(ctx, types.IsolationReadCommitted)
	if err != nil {
		return false, err
	}
	defer tx.Exit(ctx)
	n, err := idx.master.Count(ctx, nil)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// scanIntoBuffer runs step 2: a top-level, isolation-none scan of the
// master, fanning the projection of each row (Model.CopyFromMaster)
// out across a small worker pool while a single collector goroutine
// adds the results to buf one at a time, since MergeSortBuffer.Add is
// not safe for concurrent use. errgroup cancels every stage as soon as
// any one of them returns an error, so a failed Add or a fatal scan
// error unwinds the whole pipeline instead of deadlocking on a full
// channel. A corrupt encoding is logged and skipped by resuming after
// the last good record (§4.8 step 2).
func (idx *Index[M, E]) scanIntoBuffer(ctx context.Context, buf *sortbuf.MergeSortBuffer[E], desiredSpeed float64) (skipped, scanned int, err error) {
	sctx, tx, err := idx.txm.EnterTopTransaction(ctx, types.IsolationNone)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Exit(sctx)

	var pacer *cursor.Pacer
	if desiredSpeed > 0 {
		pacer = cursor.NewPacer(desiredSpeed)
	}

	workers := idx.opts.scanWorkers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(sctx)
	rows := make(chan M, workers)
	results := make(chan E, workers)

	var workerWG sync.WaitGroup
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		g.Go(func() error {
			defer workerWG.Done()
			for {
				select {
				case m, ok := <-rows:
					if !ok {
						return nil
					}
					entry := idx.model.CopyFromMaster(idx.entries.Prepare, m)
					select {
					case results <- entry:
					case <-gctx.Done():
						return gctx.Err()
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	// Once every projection worker has exited (whether drained or
	// cancelled), close results so the collector's range below stops;
	// this runs inside the group so a panic here still surfaces, but it
	// never itself fails.
	g.Go(func() error {
		workerWG.Wait()
		close(results)
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case entry, ok := <-results:
				if !ok {
					return nil
				}
				if err := buf.Add(gctx, entry); err != nil {
					return err
				}
				scanned++
				if scanned%idx.opts.progressEvery == 0 {
					idx.log.WithField("scanned", scanned).Info("build: scan progress")
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		defer close(rows)

		var lastGood M
		haveLastGood := false
		src, err := idx.master.Query(gctx, nil)
		if err != nil {
			return err
		}
		wrapped := cursor.Cursor[M](src)

		for {
			has, herr := wrapped.HasNext(gctx)
			if herr != nil {
				if types.IsFetchKind(herr, types.FetchCorruptEncoding) && haveLastGood {
					skipped++
					wrapped.Close()
					resumed, rerr := idx.master.FetchAfter(sctx, lastGood)
					if rerr != nil {
						return rerr
					}
					if _, rerr := resumed.SkipNext(gctx, skipped); rerr != nil {
						resumed.Close()
						return rerr
					}
					wrapped = cursor.Cursor[M](resumed)
					continue
				}
				return herr
			}
			if !has {
				return nil
			}
			m, nerr := wrapped.Next(gctx)
			if nerr != nil {
				return nerr
			}
			lastGood, haveLastGood = m, true

			select {
			case rows <- m:
			case <-gctx.Done():
				return gctx.Err()
			}
			if pacer != nil {
				if err := pacer.Wait(gctx); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return skipped, scanned, err
	}
	return skipped, scanned, nil
}

// checkUnique walks the sorted buffer once, failing with
// PersistUniqueConstraint if any two adjacent entries compare equal
// (§4.8 step 4).
func (idx *Index[M, E]) checkUnique(ctx context.Context, buf *sortbuf.MergeSortBuffer[E]) error {
	it := buf.Iterator()
	defer it.Close()
	cmp := idx.model.Comparator()

	has, err := it.HasNext(ctx)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}
	prev, err := it.Next(ctx)
	if err != nil {
		return err
	}
	for {
		has, err := it.HasNext(ctx)
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		cur, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if cmp(prev, cur) == 0 {
			return types.NewPersistError(types.PersistUniqueConstraint,
				"managedindex: duplicate key building unique index "+idx.desc.NameDescriptor(), nil)
		}
		prev = cur
	}
}

// reconcile runs step 5-6: walk the sorted buffer and the currently
// stored entries in lockstep, inserting new keys, repairing stale
// collisions, and deleting bogus leftovers, committing every
// opts.buildBatchSize items.
func (idx *Index[M, E]) reconcile(ctx context.Context, buf *sortbuf.MergeSortBuffer[E]) (inserted, updated, deleted int, err error) {
	cmp := idx.model.Comparator()
	newIt := buf.Iterator()
	defer newIt.Close()

	rctx, tx, err := idx.txm.EnterTransaction(ctx, types.IsolationRepeatableRead)
	if err != nil {
		return 0, 0, 0, err
	}
	tx.SetForUpdate(true)

	existing, err := idx.entries.Query(rctx, nil)
	if err != nil {
		tx.Exit(rctx)
		return 0, 0, 0, err
	}

	var existingPending *E
	advanceExisting := func() error {
		has, err := existing.HasNext(rctx)
		if err != nil {
			return err
		}
		if !has {
			existingPending = nil
			return nil
		}
		v, err := existing.Next(rctx)
		if err != nil {
			return err
		}
		existingPending = &v
		return nil
	}
	if err := advanceExisting(); err != nil {
		existing.Close()
		tx.Exit(rctx)
		return 0, 0, 0, err
	}

	sinceCommit := 0
	var lastNew E
	haveLastNew := false

	commitAndReopen := func() error {
		existing.Close()
		if err := tx.Commit(rctx); err != nil {
			return err
		}
		if err := tx.Exit(rctx); err != nil {
			return err
		}
		idx.log.WithField("inserted", inserted).WithField("updated", updated).WithField("deleted", deleted).
			Info("build: reconciliation progress")
		rctx, tx, err = idx.txm.EnterTransaction(ctx, types.IsolationRepeatableRead)
		if err != nil {
			return err
		}
		tx.SetForUpdate(true)
		if haveLastNew {
			existing, err = idx.entries.FetchAfter(rctx, lastNew)
		} else {
			existing, err = idx.entries.Query(rctx, nil)
		}
		if err != nil {
			return err
		}
		return advanceExisting()
	}

	for {
		has, err := newIt.HasNext(rctx)
		if err != nil {
			existing.Close()
			tx.Exit(rctx)
			return inserted, updated, deleted, err
		}
		if !has {
			break
		}
		cur, err := newIt.Next(rctx)
		if err != nil {
			existing.Close()
			tx.Exit(rctx)
			return inserted, updated, deleted, err
		}

		// Delete bogus leftovers strictly less than cur.
		for existingPending != nil && cmp(*existingPending, cur) < 0 {
			if _, err := idx.entries.TryDelete(rctx, *existingPending); err != nil {
				existing.Close()
				tx.Exit(rctx)
				return inserted, updated, deleted, err
			}
			deleted++
			if err := advanceExisting(); err != nil {
				existing.Close()
				tx.Exit(rctx)
				return inserted, updated, deleted, err
			}
		}

		switch {
		case existingPending == nil || cmp(*existingPending, cur) > 0:
			if _, err := idx.entries.TryInsert(rctx, cur); err != nil {
				existing.Close()
				tx.Exit(rctx)
				return inserted, updated, deleted, err
			}
			inserted++
		default:
			// Same key: consistent modulo version means leave it,
			// otherwise replace it.
			if !idx.entryOps.EqualProperties(idx.entryOps.CopyVersionProperty(*existingPending, cur), *existingPending) {
				if _, err := idx.entries.TryDelete(rctx, *existingPending); err != nil {
					existing.Close()
					tx.Exit(rctx)
					return inserted, updated, deleted, err
				}
				if _, err := idx.entries.TryInsert(rctx, cur); err != nil {
					existing.Close()
					tx.Exit(rctx)
					return inserted, updated, deleted, err
				}
				updated++
			}
			if err := advanceExisting(); err != nil {
				existing.Close()
				tx.Exit(rctx)
				return inserted, updated, deleted, err
			}
		}

		lastNew, haveLastNew = cur, true
		sinceCommit++
		if sinceCommit >= idx.opts.buildBatchSize {
			if err := commitAndReopen(); err != nil {
				return inserted, updated, deleted, err
			}
			sinceCommit = 0
		}
	}

	// Any remaining existing entries sort after every new entry and
	// are bogus.
	for existingPending != nil {
		if _, err := idx.entries.TryDelete(rctx, *existingPending); err != nil {
			existing.Close()
			tx.Exit(rctx)
			return inserted, updated, deleted, err
		}
		deleted++
		if err := advanceExisting(); err != nil {
			existing.Close()
			tx.Exit(rctx)
			return inserted, updated, deleted, err
		}
	}

	existing.Close()
	if err := tx.Commit(rctx); err != nil {
		tx.Exit(rctx)
		return inserted, updated, deleted, err
	}
	return inserted, updated, deleted, tx.Exit(rctx)
}
