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

package facade

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/clock"
	"github.com/carbonadodb/carbonado/internal/indexanalysis"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// StoredIndexInfo is the small persisted bookkeeping record for one
// active index on a master type (§6.3): its stable name descriptor,
// the type descriptor recorded when it was built, a creation
// timestamp, and a version number bumped on every rebuild.
type StoredIndexInfo struct {
	IndexName           string
	IndexTypeDescriptor string
	CreationTimestamp   clock.Time
	VersionNumber       int
}

// MetadataStore is a small, prefix-scannable blob key/value store — the
// facade-level analogue of the teacher's types.Memo, minus the
// pgx-flavored StagingQuerier parameter so the facade's generic core
// stays host-agnostic (§6.1 "the engine never inspects a host's
// concrete transport"). A master type's StoredIndexInfo collection
// shares the key prefix "<typeName>~", mirroring §6.3's half-open
// range-scan key layout.
type MetadataStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error)
}

func storedIndexInfoKey(typeName, nameDescriptor string) string {
	return typeName + "~" + nameDescriptor
}

// LoadStoredIndexInfo reads every StoredIndexInfo persisted for
// typeName out of meta, for use as indexanalysis.Input.Stored.
func LoadStoredIndexInfo(ctx context.Context, meta MetadataStore, typeName string) ([]indexanalysis.StoredIndexInfo, error) {
	blobs, err := meta.ScanPrefix(ctx, typeName+"~")
	if err != nil {
		return nil, errors.Wrap(err, "facade: scan StoredIndexInfo")
	}
	out := make([]indexanalysis.StoredIndexInfo, 0, len(blobs))
	for key, blob := range blobs {
		var rec StoredIndexInfo
		if err := json.Unmarshal(blob, &rec); err != nil {
			return nil, errors.Wrapf(err, "facade: decode StoredIndexInfo %q", key)
		}
		out = append(out, indexanalysis.StoredIndexInfo{
			NameDescriptor: rec.IndexName,
			TypeDescriptor: rec.IndexTypeDescriptor,
		})
	}
	return out, nil
}

// persistStoredIndexInfo upserts one StoredIndexInfo record for an
// installed index, and removeStoredIndexInfo deletes one for a
// dropped index. Both retry once on a deadlock/timeout from meta,
// on the assumption — per §5 "Locking discipline" — that the caller's
// enclosing transaction already holds a coarse lock covering the row,
// so a second attempt is cheap and usually succeeds (§7).
func (f *Facade[M]) persistStoredIndexInfo(ctx context.Context, desc, typeDescriptor string, now clock.Time, version int) error {
	if f.meta == nil {
		return nil
	}
	rec := StoredIndexInfo{
		IndexName:           desc,
		IndexTypeDescriptor: typeDescriptor,
		CreationTimestamp:   now,
		VersionNumber:       version,
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "facade: encode StoredIndexInfo")
	}
	key := storedIndexInfoKey(f.typeName, desc)
	return retryOnce(ctx, func() error {
		return f.meta.Put(ctx, key, blob)
	})
}

func (f *Facade[M]) removeStoredIndexInfo(ctx context.Context, desc string) error {
	if f.meta == nil {
		return nil
	}
	key := storedIndexInfoKey(f.typeName, desc)
	return retryOnce(ctx, func() error {
		return f.meta.Delete(ctx, key)
	})
}

// retryOnce wraps op in a single-retry backoff.Retry: a deadlock or
// timeout from the metadata store gets exactly one more attempt before
// giving up, everything else fails immediately (§7 "deadlock/timeout
// on metadata operations retries at most once").
func retryOnce(ctx context.Context, op func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if types.IsFetchKind(err, types.FetchDeadlock) || types.IsFetchKind(err, types.FetchTimeout) ||
			types.IsPersistKind(err, types.PersistDeadlock) || types.IsPersistKind(err, types.PersistTimeout) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}
