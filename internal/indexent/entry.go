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

// Package indexent implements the synthetic index-entry record shape
// (§4.6 "Index-entry record") as a generated value type over a
// cached, descriptor-keyed model, rather than through reflection
// (§9 "dynamic property access").
package indexent

import (
	"strconv"

	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/carbonadodb/carbonado/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Model generates and compares index-entry records of shape E for a
// master record shape M, given a Descriptor (§4.6). One Model serves
// exactly one (master type, descriptor) pair; Cache below shares
// Models across equal descriptors process-wide, approximating the
// source's per-descriptor weak-referenced generated class.
type Model[M, E types.Record] struct {
	desc       indexdesc.Descriptor
	master     types.PropertyAccessors[M]
	entry      types.PropertyAccessors[E]
	kindOf     func(id types.PropertyID) types.PropertyKind
	versionID  types.PropertyID
	hasVersion bool
}

// NewModel builds a Model for desc. kindOf classifies each indexed
// property for comparator purposes (§4.6); versionID/hasVersion name
// the optional version property entries carry but never compare on.
func NewModel[M, E types.Record](
	desc indexdesc.Descriptor,
	master types.PropertyAccessors[M],
	entry types.PropertyAccessors[E],
	kindOf func(id types.PropertyID) types.PropertyKind,
	versionID types.PropertyID,
	hasVersion bool,
) *Model[M, E] {
	return &Model[M, E]{
		desc:       desc,
		master:     master,
		entry:      entry,
		kindOf:     kindOf,
		versionID:  versionID,
		hasVersion: hasVersion,
	}
}

// Descriptor returns the descriptor this model was generated for.
func (m *Model[M, E]) Descriptor() indexdesc.Descriptor { return m.desc }

// TypeDescriptor renders this model's descriptor plus every declared
// property's live kind (§6.3), the form compared against a persisted
// StoredIndexInfo.IndexTypeDescriptor to detect drift between what was
// built and what the type looks like today.
func (m *Model[M, E]) TypeDescriptor() string {
	return indexdesc.TypeDescriptor(m.desc, m.kindOf)
}

// CopyFromMaster projects the indexed and primary-key properties of
// master onto a freshly prepared entry, plus the version property if
// the model carries one (§4.6 "copyFromMaster").
func (m *Model[M, E]) CopyFromMaster(prepare func() E, master M) E {
	e := prepare()
	for _, p := range m.desc.Props {
		e = m.entry.Set(e, types.PropertyID(p.ID), m.master.Get(master, types.PropertyID(p.ID)))
	}
	if m.hasVersion {
		e = m.entry.Set(e, m.versionID, m.master.Get(master, m.versionID))
	}
	return e
}

// CopyToMasterPrimaryKey sets just the trailing primary-key properties
// of entry onto a freshly prepared master (§4.6
// "copyToMasterPrimaryKey"). pk names, in order, which of desc's
// properties are primary-key properties (the suffix Uniquify appends,
// or any PK property already present in desc).
func (m *Model[M, E]) CopyToMasterPrimaryKey(prepareMaster func() M, entry E, pk []types.PropertyID) M {
	master := prepareMaster()
	for _, id := range pk {
		master = m.master.Set(master, id, m.entry.Get(entry, id))
	}
	return master
}

// IsConsistent reports whether entry's indexed and primary-key
// properties all agree with master's, ignoring the version property
// (§4.6 "isConsistent").
func (m *Model[M, E]) IsConsistent(entry E, master M) bool {
	for _, p := range m.desc.Props {
		ev := m.entry.Get(entry, types.PropertyID(p.ID))
		mv := m.master.Get(master, types.PropertyID(p.ID))
		if !valuesEqual(ev, mv, m.kindOf(types.PropertyID(p.ID))) {
			return false
		}
	}
	return true
}

// Comparator returns the total order over entries implied by the
// descriptor's property tuple and per-property directions (§4.6, §8
// "Floating-point ordering" / "byte array ordering").
func (m *Model[M, E]) Comparator() func(a, b E) int {
	return func(a, b E) int {
		for _, p := range m.desc.Props {
			av := m.entry.Get(a, types.PropertyID(p.ID))
			bv := m.entry.Get(b, types.PropertyID(p.ID))
			if c := compareValues(av, bv, m.kindOf(types.PropertyID(p.ID)), p.Direction); c != 0 {
				return c
			}
		}
		return 0
	}
}

// ReferenceClass is an identity suitable for keying storage-of-entry
// lookups (§4.6 "referenceClass"): the master type name plus the
// descriptor's stable name form is already a unique, comparable key,
// so it is returned directly rather than synthesizing a reflect.Type.
func (m *Model[M, E]) ReferenceClass() string {
	return m.desc.NameDescriptor()
}

// Cache is a process-wide, descriptor-keyed cache of generated Models,
// the practical analogue of the source's soft/weak-reference class
// cache (§9 "Global state"): equal descriptors share one Model rather
// than regenerating get/set/compare closures per call (§5 "Shared
// state" in the expanded design).
type Cache[M, E types.Record] struct {
	lru *lru.Cache[string, *Model[M, E]]
}

// NewCache builds a Cache bounded to size generated models.
func NewCache[M, E types.Record](size int) (*Cache[M, E], error) {
	c, err := lru.New[string, *Model[M, E]](size)
	if err != nil {
		return nil, err
	}
	return &Cache[M, E]{lru: c}, nil
}

// GetOrCreate returns the cached Model for desc, generating one via
// gen on a cache miss. The cache key is desc's name descriptor, hashed
// with xxh3 to keep the LRU's internal bucket key a fixed-size value
// rather than an arbitrarily long descriptor string (§9 "fingerprint
// descriptors into cache keys").
func (c *Cache[M, E]) GetOrCreate(desc indexdesc.Descriptor, gen func() *Model[M, E]) *Model[M, E] {
	key := fingerprint(desc.NameDescriptor())
	if m, ok := c.lru.Get(key); ok {
		return m
	}
	m := gen()
	c.lru.Add(key, m)
	return m
}

func fingerprint(s string) string {
	return strconv.FormatUint(xxh3.HashString(s), 16)
}
