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

// Package indexanalysis computes the desired/existing/bogus/free/
// queryable/managed/remove/add index sets for a single master type
// from its declared metadata, the underlying store's own index
// capabilities, and previously persisted index bookkeeping (§4.7), and
// detects derived-to dependencies that require a derived-index
// trigger (§4.11).
package indexanalysis

import (
	"github.com/carbonadodb/carbonado/internal/ident"
	"github.com/carbonadodb/carbonado/internal/indexdesc"
)

// JoinProperty declares one internal join property of the master type
// that refers to an external record type, used to discover synthetic
// desired indexes and derived-to dependencies (§4.7 "synthetic indexes
// on internal join properties").
type JoinProperty struct {
	// Chain is the dotted property path from the master to this join
	// property (§4.11 "derived-to chain's tail").
	Chain []string
	// ExternalType names the record type this join property refers to.
	ExternalType string
	// ExternalProps is the join tuple's property list on the external
	// side, in the same order as the internal join's own key tuple.
	ExternalProps []indexdesc.Property
}

// ExternalDerived names one indexed derived property declared on an
// external type, keyed by that type's name. A master's join property
// participates in a derived-to dependency when the external type it
// refers to declares one of these (§4.7 last paragraph, §4.11).
type ExternalDerived struct {
	ExternalType    string
	DerivedProperty string
}

// DerivedToDependency is one chained external derived-property
// dependency discovered for the master type (§4.7, §4.11): the chain
// tail is a join property whose external side participates in another
// type's indexed derived expression.
type DerivedToDependency struct {
	Chain           []string
	ExternalType    string
	DerivedProperty string
}

// StoredIndexInfo is the persisted bookkeeping record for one index on
// the master type (§6.3): its stable name descriptor and the type
// descriptor recorded when it was built.
type StoredIndexInfo struct {
	NameDescriptor string
	TypeDescriptor string
}

// Input collects everything Analyze needs (§4.7 "Inputs").
type Input struct {
	// Declared is every index declared directly on the record type
	// (primary alternate keys and explicit secondary indexes).
	Declared []indexdesc.Descriptor
	// Joins lists the master's internal join properties, used to
	// derive synthetic desired indexes and dependency detection.
	Joins []JoinProperty
	// ExternalDerived lists, for every external type reachable via
	// Joins, the indexed derived properties it declares.
	ExternalDerived []ExternalDerived
	// PrimaryKey is the master's own primary-key property tuple, used
	// by uniquify.
	PrimaryKey []indexdesc.Property
	// Free is the set of index descriptor strings the underlying store
	// already provides without the engine's help (§6.1
	// IndexInfoCapability).
	Free []string
	// AllClustered reports whether the store serves every free index
	// at roughly primary-key cost.
	AllClustered bool
	// Stored is the previously persisted StoredIndexInfo collection.
	Stored []StoredIndexInfo
	// ParseAndRetype parses a persisted NameDescriptor and returns the
	// live type descriptor it would have today, for Bogus detection.
	// The bool is false if the name descriptor no longer resolves
	// (a dropped property), in which case it is also Bogus.
	ParseAndRetype func(nameDescriptor string) (live indexdesc.Descriptor, liveTypeDescriptor string, ok bool)
	// RepairEnabled selects the repair-on variants of Queryable/Managed/
	// Remove/Add (§4.7 table).
	RepairEnabled bool
}

// Result is the six descriptor sets plus dependency list Analyze
// computes (§4.7 "Outputs").
type Result struct {
	Desired    []indexdesc.Descriptor
	Existing   []indexdesc.Descriptor
	Bogus      []indexdesc.Descriptor
	Free       []indexdesc.Descriptor
	Queryable  []indexdesc.Descriptor
	Managed    []indexdesc.Descriptor
	Remove     []indexdesc.Descriptor
	Add        []indexdesc.Descriptor
	Clustered  bool
	DerivedTo  []DerivedToDependency
}

// descSet is a NameDescriptor-keyed set of descriptors, preserving one
// representative Descriptor value per key.
type descSet map[string]indexdesc.Descriptor

func newDescSet(descs ...[]indexdesc.Descriptor) descSet {
	s := make(descSet)
	for _, group := range descs {
		for _, d := range group {
			s[d.NameDescriptor()] = d
		}
	}
	return s
}

func (s descSet) union(o descSet) descSet {
	out := make(descSet, len(s)+len(o))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

func (s descSet) intersect(o descSet) descSet {
	out := make(descSet)
	for k, v := range s {
		if _, ok := o[k]; ok {
			out[k] = v
		}
	}
	return out
}

func (s descSet) minus(o descSet) descSet {
	out := make(descSet)
	for k, v := range s {
		if _, ok := o[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func (s descSet) slice() []indexdesc.Descriptor {
	out := make([]indexdesc.Descriptor, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}

// Analyze computes Result from in (§4.7).
func Analyze(in Input) Result {
	desired := computeDesired(in)
	existing, bogus := computeExistingAndBogus(in)
	free := parseFree(in.Free)

	desiredSet := newDescSet(desired)
	existingSet := newDescSet(existing)
	// Free-index strings are already stable name-descriptor keys (or,
	// for a host that can't express one, an opaque identifier); key the
	// set directly by that string rather than by re-deriving a
	// NameDescriptor from a synthesized placeholder Descriptor, which
	// would not round-trip back to the same string.
	freeSet := make(descSet, len(in.Free))
	for i, f := range in.Free {
		freeSet[f] = free[i]
	}

	var queryable, managed, remove, add descSet
	if in.RepairEnabled {
		queryable = desiredSet.union(freeSet)
		managed = desiredSet.minus(freeSet)
		remove = existingSet.minus(desiredSet).minus(freeSet).union(newDescSet(bogus))
		add = desiredSet.minus(existingSet).minus(freeSet)
	} else {
		queryable = desiredSet.intersect(existingSet).union(freeSet)
		managed = desiredSet.union(existingSet).minus(freeSet)
		remove = make(descSet)
		add = make(descSet)
	}

	return Result{
		Desired:   desired,
		Existing:  existing,
		Bogus:     bogus,
		Free:      free,
		Queryable: queryable.slice(),
		Managed:   managed.slice(),
		Remove:    remove.slice(),
		Add:       add.slice(),
		Clustered: in.AllClustered,
		DerivedTo: detectDerivedTo(in.Joins, in.ExternalDerived),
	}
}

// computeDesired builds the Desired set (§4.7 table row 1): declared
// indexes plus one synthetic index per join property participating in
// a derived-to dependency, then reduce+uniquify.
func computeDesired(in Input) []indexdesc.Descriptor {
	all := append([]indexdesc.Descriptor(nil), in.Declared...)

	deps := detectDerivedTo(in.Joins, in.ExternalDerived)
	depChains := make(map[string]bool, len(deps))
	for _, d := range deps {
		depChains[ident.JoinDotted(d.Chain...)] = true
	}
	for _, j := range in.Joins {
		if depChains[ident.JoinDotted(j.Chain...)] {
			all = append(all, indexdesc.Descriptor{
				TypeName: ident.JoinDotted(j.Chain...),
				Props:    j.ExternalProps,
			})
		}
	}

	reduced := indexdesc.Reduce(all)

	anyUnique := false
	for _, d := range in.Declared {
		if d.Unique {
			anyUnique = true
			break
		}
	}
	if !anyUnique {
		return reduced
	}
	out := make([]indexdesc.Descriptor, len(reduced))
	for i, d := range reduced {
		out[i] = indexdesc.Uniquify(d, in.PrimaryKey)
	}
	return out
}

// computeExistingAndBogus splits Stored into Existing (type descriptor
// still matches) and Bogus (it no longer does, or the name descriptor
// no longer resolves) per §4.7 table rows 2-3.
func computeExistingAndBogus(in Input) (existing, bogus []indexdesc.Descriptor) {
	if in.ParseAndRetype == nil {
		return nil, nil
	}
	for _, si := range in.Stored {
		live, liveType, ok := in.ParseAndRetype(si.NameDescriptor)
		if !ok {
			bogus = append(bogus, live)
			continue
		}
		if liveType != si.TypeDescriptor {
			bogus = append(bogus, live)
			continue
		}
		existing = append(existing, live)
	}
	return existing, bogus
}

// parseFree turns each of the store's free-index descriptor strings
// into a Descriptor whose TypeName is the raw string; no string is
// parsed or dropped.
func parseFree(free []string) []indexdesc.Descriptor {
	// Free-index strings are host-reported and opaque to this package;
	// callers that can resolve them pass already-parsed Descriptors via
	// a ParseAndRetype-style callback upstream. Absent one here, each
	// string becomes a single-segment, unparsed Descriptor identified
	// by its raw form so set membership (union/intersect/minus) still
	// works by NameDescriptor equality.
	out := make([]indexdesc.Descriptor, 0, len(free))
	for _, f := range free {
		out = append(out, indexdesc.Descriptor{TypeName: f})
	}
	return out
}

// detectDerivedTo finds every join property whose external type
// declares an indexed derived property (§4.7 last paragraph).
func detectDerivedTo(joins []JoinProperty, externalDerived []ExternalDerived) []DerivedToDependency {
	byType := make(map[string][]string)
	for _, ed := range externalDerived {
		byType[ed.ExternalType] = append(byType[ed.ExternalType], ed.DerivedProperty)
	}
	var out []DerivedToDependency
	for _, j := range joins {
		for _, derivedProp := range byType[j.ExternalType] {
			out = append(out, DerivedToDependency{
				Chain:           j.Chain,
				ExternalType:    j.ExternalType,
				DerivedProperty: derivedProp,
			})
		}
	}
	return out
}
