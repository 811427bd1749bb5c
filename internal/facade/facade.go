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

// Package facade is the index lifecycle manager for one master record
// type (§4.9): it runs the six-set analysis from internal/indexanalysis
// against a registry of available managed indexes, installs mutation
// triggers for the indexes that should exist, builds the ones that are
// missing, and drops storage for the ones that have become bogus or
// redundant.
package facade

import (
	"context"
	"time"

	"github.com/carbonadodb/carbonado/internal/clock"
	"github.com/carbonadodb/carbonado/internal/indexanalysis"
	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ManagedIndex is the subset of *managedindex.Index[M, E]'s methods the
// facade needs, expressed without E so that one Facade[M] can hold
// indexes of heterogeneous entry types for the same master M.
// *managedindex.Index[M, E] satisfies this for any E.
type ManagedIndex[M types.Record] interface {
	types.Trigger[M]
	Descriptor() indexdesc.Descriptor
	TypeDescriptor() string
	BuildIndex(ctx context.Context, desiredSpeed float64) error
	Close(timeout time.Duration) error
}

// StorageDropper removes whatever storage backs a bogus or redundant
// index, keyed by its descriptor string (§4.9 "Remove").
type StorageDropper func(ctx context.Context, nameDescriptor string) error

// Facade manages every ManagedIndex registered for one master type.
type Facade[M types.Record] struct {
	typeName  string
	master    types.Storage[M]
	registry  map[string]ManagedIndex[M]
	installed map[string]func()
	dropper   StorageDropper
	meta      MetadataStore
	version   map[string]int
	log       *logrus.Entry
}

// Option configures a Facade at construction.
type Option func(*options)

type options struct {
	meta MetadataStore
}

// WithMetadataStore gives the facade somewhere to persist StoredIndexInfo
// records (§6.3) across Reconcile calls; without one, Reconcile still
// installs/drops triggers and indexes but tracks no durable bookkeeping.
func WithMetadataStore(meta MetadataStore) Option {
	return func(o *options) { o.meta = meta }
}

// New constructs a Facade over master, with drop responsible for
// discarding storage behind indexes the analysis declares bogus.
func New[M types.Record](typeName string, master types.Storage[M], drop StorageDropper, opts ...Option) *Facade[M] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Facade[M]{
		typeName:  typeName,
		master:    master,
		registry:  make(map[string]ManagedIndex[M]),
		installed: make(map[string]func()),
		dropper:   drop,
		meta:      o.meta,
		version:   make(map[string]int),
		log:       logrus.WithField("type", typeName),
	}
}

// LoadStoredIndexInfo reads this facade's persisted StoredIndexInfo
// collection, for populating indexanalysis.Input.Stored before calling
// Reconcile. Returns an empty slice if no metadata store was
// configured via WithMetadataStore.
func (f *Facade[M]) LoadStoredIndexInfo(ctx context.Context) ([]indexanalysis.StoredIndexInfo, error) {
	if f.meta == nil {
		return nil, nil
	}
	return LoadStoredIndexInfo(ctx, f.meta, f.typeName)
}

// Register makes idx available for installation, without yet wiring
// its trigger — Reconcile decides whether it belongs in the Add set.
func (f *Facade[M]) Register(idx ManagedIndex[M]) {
	f.registry[idx.Descriptor().NameDescriptor()] = idx
}

// Reconcile runs the §4.7 six-set analysis and applies its verdict:
// installs triggers and runs an initial build for every newly-Add
// index, drops storage for every Remove index, and leaves Queryable/
// Managed indexes untouched (§4.9). in.Declared is filled in from the
// registry automatically; callers only need to supply the rest of the
// analysis input (joins, external-derived properties, free indexes,
// and so on).
func (f *Facade[M]) Reconcile(ctx context.Context, in indexanalysis.Input, desiredBuildSpeed float64) (indexanalysis.Result, error) {
	in.Declared = nil
	for _, idx := range f.registry {
		in.Declared = append(in.Declared, idx.Descriptor())
	}
	result := indexanalysis.Analyze(in)

	for _, desc := range result.Add {
		idx, ok := f.registry[desc.NameDescriptor()]
		if !ok {
			f.log.WithField("index", desc.NameDescriptor()).
				Warn("reconcile: analysis wants an index with no registered runtime, skipping")
			continue
		}
		if err := f.install(ctx, idx, desiredBuildSpeed); err != nil {
			return result, errors.Wrapf(err, "facade: installing %s", desc.NameDescriptor())
		}
	}

	for _, desc := range result.Remove {
		if remove, ok := f.installed[desc.NameDescriptor()]; ok {
			remove()
			delete(f.installed, desc.NameDescriptor())
		}
		if f.dropper != nil {
			if err := f.dropper(ctx, desc.NameDescriptor()); err != nil {
				return result, errors.Wrapf(err, "facade: dropping %s", desc.NameDescriptor())
			}
		}
		if err := f.removeStoredIndexInfo(ctx, desc.NameDescriptor()); err != nil {
			return result, errors.Wrapf(err, "facade: removing StoredIndexInfo for %s", desc.NameDescriptor())
		}
		delete(f.version, desc.NameDescriptor())
	}

	return result, nil
}

// install wires idx's mutation trigger onto the master, then runs a
// build to bring its entries current with existing master rows (§4.9
// "Adding a managed index": the trigger alone only covers writes from
// this point forward).
func (f *Facade[M]) install(ctx context.Context, idx ManagedIndex[M], desiredBuildSpeed float64) error {
	name := idx.Descriptor().NameDescriptor()
	if _, already := f.installed[name]; already {
		return nil
	}
	remove := f.master.AddTrigger(idx)
	f.installed[name] = remove
	if err := idx.BuildIndex(ctx, desiredBuildSpeed); err != nil {
		remove()
		delete(f.installed, name)
		return err
	}
	f.version[name]++
	if err := f.persistStoredIndexInfo(ctx, name, idx.TypeDescriptor(), clock.New(time.Now().UnixNano(), 0), f.version[name]); err != nil {
		remove()
		delete(f.installed, name)
		return err
	}
	f.log.WithField("index", name).Info("facade: index installed and built")
	return nil
}

// Close uninstalls every trigger this facade installed and closes the
// underlying index runtimes, waiting up to timeout for each to drain.
func (f *Facade[M]) Close(timeout time.Duration) error {
	var firstErr error
	for name, remove := range f.installed {
		remove()
		if idx, ok := f.registry[name]; ok {
			if err := idx.Close(timeout); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	f.installed = make(map[string]func())
	return firstErr
}
