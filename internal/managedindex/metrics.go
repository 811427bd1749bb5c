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
	"github.com/carbonadodb/carbonado/internal/util/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "index_build_duration_seconds",
		Help:    "the length of time a full build/repair pass took",
		Buckets: metrics.LatencyBuckets,
	}, metrics.IndexLabels)
	buildInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_build_inserted_total",
		Help: "entries inserted by the reconciliation phase of a build",
	}, metrics.IndexLabels)
	buildUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_build_updated_total",
		Help: "entries replaced by the reconciliation phase of a build",
	}, metrics.IndexLabels)
	buildDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_build_deleted_total",
		Help: "bogus entries deleted by the reconciliation phase of a build",
	}, metrics.IndexLabels)
	buildSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_build_skipped_total",
		Help: "master rows skipped during a build due to a corrupt encoding",
	}, metrics.IndexLabels)

	triggerInsertErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_trigger_insert_errors_total",
		Help: "errors encountered projecting or inserting an index entry",
	}, metrics.IndexLabels)
	triggerRepairsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_trigger_repairs_scheduled_total",
		Help: "out-of-transaction repairs scheduled by mutation triggers or stale reads",
	}, metrics.IndexLabels)
	triggerRepairsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_trigger_repairs_applied_total",
		Help: "out-of-transaction repairs successfully applied",
	}, metrics.IndexLabels)
	triggerRepairsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_trigger_repairs_failed_total",
		Help: "out-of-transaction repairs that exhausted their retry budget",
	}, metrics.IndexLabels)

	fetchOneDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "index_fetch_one_duration_seconds",
		Help:    "the length of time a single-match index query took",
		Buckets: metrics.LatencyBuckets,
	}, metrics.IndexLabels)
)

// indexMetrics binds the package's label-vectored collectors to one
// index's constant label values, so call sites never repeat the label
// pair.
type indexMetrics struct {
	buildDuration prometheus.Observer

	inserted prometheus.Counter
	updated  prometheus.Counter
	deleted  prometheus.Counter
	skipped  prometheus.Counter

	insertErrors     prometheus.Counter
	repairScheduled  prometheus.Counter
	repairApplied    prometheus.Counter
	repairFailed     prometheus.Counter
	fetchOneDuration prometheus.Observer
}

// bind lazily attaches label values once the index's identity is
// known; called once from New.
func (idx *Index[M, E]) bindMetrics() {
	labels := prometheus.Labels{"type": idx.desc.TypeName, "index": idx.desc.NameDescriptor()}
	idx.metrics = &indexMetrics{
		buildDuration:    buildDurations.With(labels),
		inserted:         buildInserted.With(labels),
		updated:          buildUpdated.With(labels),
		deleted:          buildDeleted.With(labels),
		skipped:          buildSkipped.With(labels),
		insertErrors:     triggerInsertErrors.With(labels),
		repairScheduled:  triggerRepairsScheduled.With(labels),
		repairApplied:    triggerRepairsApplied.With(labels),
		repairFailed:     triggerRepairsFailed.With(labels),
		fetchOneDuration: fetchOneDurations.With(labels),
	}
}
