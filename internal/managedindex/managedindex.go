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

// Package managedindex implements the per-index runtime (§4.8):
// mutation triggers that keep one index's entries in sync with its
// master's rows, the one-shot build/repair pipeline, the cached
// single-match query, and stale-entry repair on read.
package managedindex

import (
	"context"
	"time"

	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/carbonadodb/carbonado/internal/indexent"
	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Index is the runtime for one managed index over master records M,
// whose entries are stored as records E.
type Index[M, E types.Record] struct {
	desc  indexdesc.Descriptor
	model *indexent.Model[M, E]

	master  types.Storage[M]
	entries types.Storage[E]
	txm     types.TransactionManager

	masterOps types.RecordOps[M]
	entryOps  types.RecordOps[E]

	pk []types.PropertyID

	pool  *sortbuf.WorkFilePool
	codec sortbuf.Codec[E]

	entryAccessors types.PropertyAccessors[E]
	prefixFilter   types.Filter

	repair   *repairQueue[M, E]
	fetchOne singleflight.Group

	opts options

	metrics *indexMetrics

	log *logrus.Entry
}

type options struct {
	buildBatchSize   int
	removeBatchSize  int
	buildThrottle    float64
	repairWorkers    int
	repairQueueDepth int
	progressEvery    int
	scanWorkers      int
}

func defaultOptions() options {
	return options{
		buildBatchSize:   128,
		removeBatchSize:  128,
		buildThrottle:    0,
		repairWorkers:    4,
		repairQueueDepth: 1024,
		progressEvery:    10000,
		scanWorkers:      4,
	}
}

// Option configures an Index at construction.
type Option func(*options)

// WithBuildBatchSize overrides the default commit batch size (128)
// used by the reconciliation phase of buildIndex (§4.8 step 5).
func WithBuildBatchSize(n int) Option {
	return func(o *options) { o.buildBatchSize = n }
}

// WithRepairWorkers sets how many goroutines drain the out-of-
// transaction repair queue (§4.8 "insertIndexEntry" collision repair,
// "Stale-entry repair on read").
func WithRepairWorkers(n int) Option {
	return func(o *options) { o.repairWorkers = n }
}

// WithProgressLogInterval sets how many processed master rows elapse
// between progress log lines during a build (§4.8 step 2,
// "Periodically log progress").
func WithProgressLogInterval(n int) Option {
	return func(o *options) { o.progressEvery = n }
}

// WithScanWorkers sets how many goroutines run the projection step
// (Model.CopyFromMaster) of the build pipeline's scan phase (§4.8
// step 2) concurrently. The scan itself, and every call to the sort
// buffer's Add, still happen one at a time — only the projection work
// in between is fanned out.
func WithScanWorkers(n int) Option {
	return func(o *options) { o.scanWorkers = n }
}

// New constructs an Index runtime for desc, wiring it to master/entry
// storage and a transaction manager. ctx's lifetime governs the
// background repair workers; callers should call Close when the
// master type is closed.
func New[M, E types.Record](
	ctx context.Context,
	desc indexdesc.Descriptor,
	model *indexent.Model[M, E],
	master types.Storage[M],
	entries types.Storage[E],
	txm types.TransactionManager,
	masterOps types.RecordOps[M],
	entryOps types.RecordOps[E],
	pk []types.PropertyID,
	pool *sortbuf.WorkFilePool,
	codec sortbuf.Codec[E],
	entryAccessors types.PropertyAccessors[E],
	prefixFilter types.Filter,
	opts ...Option,
) *Index[M, E] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	idx := &Index[M, E]{
		desc:      desc,
		model:     model,
		master:    master,
		entries:   entries,
		txm:       txm,
		masterOps:      masterOps,
		entryOps:       entryOps,
		pk:             pk,
		pool:           pool,
		codec:          codec,
		entryAccessors: entryAccessors,
		prefixFilter:   prefixFilter,
		opts:           o,
		log:            logrus.WithField("index", desc.NameDescriptor()),
	}
	idx.bindMetrics()
	idx.repair = newRepairQueue(ctx, idx, o.repairWorkers, o.repairQueueDepth)
	return idx
}

// Descriptor returns the descriptor this runtime serves.
func (idx *Index[M, E]) Descriptor() indexdesc.Descriptor { return idx.desc }

// TypeDescriptor returns the descriptor's current type-descriptor
// rendering (§6.3), for comparison against a persisted
// StoredIndexInfo.IndexTypeDescriptor.
func (idx *Index[M, E]) TypeDescriptor() string { return idx.model.TypeDescriptor() }

// Close drains the background repair queue, waiting up to timeout.
func (idx *Index[M, E]) Close(timeout time.Duration) error {
	return idx.repair.close(timeout)
}
