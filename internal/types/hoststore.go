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

// Package types collects the narrow interfaces the index-engine core
// consumes from its host (§6.1) and the record-shaped values it passes
// across those interfaces. The filter AST/bytecode compiler, the
// storable-introspection facility, and the underlying record
// repository's page format are all external collaborators (§1) — this
// package only states the contract, the way the teacher's own
// internal/types package states contracts for Appliers/Stagers/
// Watchers without implementing a database.
package types

import "context"

// IsolationLevel mirrors the isolation levels the build pipeline and
// mutation triggers request from the host (§4.8, §5).
type IsolationLevel int

const (
	// IsolationNone is the weakest level, used for the initial,
	// write-nothing master scan during a build (§4.8 step 2).
	IsolationNone IsolationLevel = iota
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

// Record is implemented by every generated value type the engine
// manipulates: user master records and synthetic index-entry records
// alike. A host supplies a Record's zero value via Storage[R].Prepare.
type Record any

// Transaction is the host-provided transaction handle (§6.1).
type Transaction interface {
	// SetForUpdate marks the transaction as acquiring upgradable locks
	// on rows it reads, so that a later write within the same
	// transaction cannot deadlock against a concurrent writer taking
	// the same path (§5 "Locking discipline").
	SetForUpdate(forUpdate bool)
	// Commit commits the transaction.
	Commit(ctx context.Context) error
	// Exit ends the transaction scope, rolling back if it was never
	// committed. Exit is idempotent.
	Exit(ctx context.Context) error
}

// TransactionManager opens nested or top-level transactions against
// the host (§6.1, §5 "Locking discipline").
type TransactionManager interface {
	// EnterTransaction opens a transaction nested inside any
	// already-open transaction on ctx, or a new top-level transaction
	// if none is open.
	EnterTransaction(ctx context.Context, level IsolationLevel) (context.Context, Transaction, error)
	// EnterTopTransaction always opens a new top-level transaction,
	// independent of any transaction already open on ctx. The build
	// pipeline's initial scan uses this (§4.8 step 2) so that its weak
	// isolation level doesn't get silently upgraded by an enclosing
	// transaction.
	EnterTopTransaction(ctx context.Context, level IsolationLevel) (context.Context, Transaction, error)
}

// Cursor is the minimal host-side result-set shape that this package's
// own cursor adapters (internal/cursor) wrap. It intentionally mirrors
// internal/cursor.Cursor but lives here because Storage[R] below
// returns one directly from the host, before any engine-side adapter
// has touched it.
type Cursor[R Record] interface {
	HasNext(ctx context.Context) (bool, error)
	Next(ctx context.Context) (R, error)
	SkipNext(ctx context.Context, n int) (int, error)
	Close()
}

// Storage is the host-provided, queryable storage for one record type
// (§6.1). Both master storage and every managed index's entry storage
// are Storage[R] for their respective record shapes.
type Storage[R Record] interface {
	// Prepare returns a blank record ready to have properties set.
	Prepare() R
	// TryLoad loads the record matching the primary key fields already
	// set on partial, returning false (not an error) if no such record
	// exists.
	TryLoad(ctx context.Context, partial R) (R, bool, error)
	// TryInsert inserts r, returning false if a record with the same
	// primary key already exists.
	TryInsert(ctx context.Context, r R) (bool, error)
	// TryUpdate updates the record matching r's primary key, returning
	// false if no such record exists.
	TryUpdate(ctx context.Context, r R) (bool, error)
	// TryDelete deletes the record matching partial's primary key,
	// returning false if no such record exists.
	TryDelete(ctx context.Context, partial R) (bool, error)

	// Query returns a Cursor over every record accepted by filter. A
	// nil filter matches every record. Query is the seam this package
	// hands off to the external filter/query layer (§1).
	Query(ctx context.Context, filter any, args ...any) (Cursor[R], error)
	// FetchAfter resumes a primary-key-ordered scan strictly after
	// prev, used by the build pipeline's corrupt-record skip-and-resume
	// path (§4.8 step 2) and stale-entry repair (§4.8).
	FetchAfter(ctx context.Context, prev R) (Cursor[R], error)
	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter any, args ...any) (int64, error)
	// Truncate discards every record in this storage.
	Truncate(ctx context.Context) error

	// AddTrigger installs a mutation trigger (§6.1). It returns a
	// function that removes the trigger.
	AddTrigger(trigger Trigger[R]) (remove func())
}

// RecordOps holds the per-record-type comparisons and copies the
// engine needs. EqualPrimaryKeys reports whether a and b share the
// same primary key. Hosts that cannot provide a generic implementation supply one per
// record type; the engine never compares primary keys by any other
// means.
type RecordOps[R Record] interface {
	EqualPrimaryKeys(a, b R) bool
	EqualProperties(a, b R) bool
	CopyVersionProperty(src, dst R) R
	// CopyUnequalProperties copies every property of src that differs
	// from dst onto a fresh copy of dst, returning it. Used by the
	// build pipeline's batched reconciliation (§4.8 step 5).
	CopyUnequalProperties(src, dst R) R
	Copy(r R) R
}

// TriggerState is the opaque value a before-hook hands its matching
// after-hook (§6.1).
type TriggerState any

// Trigger is the before/after hook set a Storage[R] invokes around
// each mutating operation (§6.1, §4.8, §4.11).
type Trigger[R Record] interface {
	BeforeInsert(ctx context.Context, r R) (TriggerState, error)
	AfterInsert(ctx context.Context, r R, state TriggerState) error

	BeforeUpdate(ctx context.Context, oldR, newR R) (TriggerState, error)
	AfterUpdate(ctx context.Context, oldR, newR R, state TriggerState) error

	BeforeDelete(ctx context.Context, r R) (TriggerState, error)
	AfterDelete(ctx context.Context, r R, state TriggerState) error
}

// NopTrigger implements Trigger[R] with no-ops, convenient to embed
// when only a subset of hooks is meaningful.
type NopTrigger[R Record] struct{}

func (NopTrigger[R]) BeforeInsert(context.Context, R) (TriggerState, error) { return nil, nil }
func (NopTrigger[R]) AfterInsert(context.Context, R, TriggerState) error    { return nil }
func (NopTrigger[R]) BeforeUpdate(context.Context, R, R) (TriggerState, error) {
	return nil, nil
}
func (NopTrigger[R]) AfterUpdate(context.Context, R, R, TriggerState) error { return nil }
func (NopTrigger[R]) BeforeDelete(context.Context, R) (TriggerState, error) {
	return nil, nil
}
func (NopTrigger[R]) AfterDelete(context.Context, R, TriggerState) error { return nil }

// IndexInfoCapability is an optional host capability (§6.1) listing
// indexes the host already provides without the engine's help.
type IndexInfoCapability interface {
	// FreeIndexes returns the descriptor strings (§6.3) of indexes the
	// underlying store already offers for the named type.
	FreeIndexes(typeName string) ([]string, error)
	// AllClustered reports whether every free index on typeName reads
	// at approximately primary-key cost (§3 "Clustered").
	AllClustered(typeName string) bool
}

// StorableInfoCapability is an optional host capability (§6.1)
// enumerating user record types known to the host.
type StorableInfoCapability interface {
	UserStorableTypeNames() ([]string, error)
}

// StorableInfo is the opaque introspection/reflection facility (§1):
// the engine only needs a stable list of PropertyDescriptors and a
// type name, never the host's internal representation.
type StorableInfo interface {
	TypeName() string
	Properties() []PropertyDescriptor
	// PrimaryKey returns the ordered property IDs making up the
	// primary key.
	PrimaryKey() []PropertyID
	// VersionProperty returns the property ID used for optimistic
	// concurrency, and whether one is declared.
	VersionProperty() (PropertyID, bool)
}

// PropertyID identifies a property within a StorableInfo; re-exported
// here (rather than imported from internal/ident) so that
// internal/types has no dependency on internal/ident, keeping the
// host-contract package leaf-level.
type PropertyID uint32

// PropertyKind classifies a property's storage representation for
// comparator purposes (§4.6): floats compare by bit pattern, byte
// slices by unsigned lexicographic order, other slices by deep
// equality/element-wise order, everything else by natural ordering.
type PropertyKind int

const (
	KindOther PropertyKind = iota
	KindFloat32
	KindFloat64
	KindBytes
	KindSlice
)

// PropertyDescriptor describes one property of a record type.
type PropertyDescriptor struct {
	ID         PropertyID
	Name       string
	Kind       PropertyKind
	Nullable   bool
	IsJoin     bool
	// JoinTarget names the record type this join property refers to,
	// meaningful only when IsJoin is true.
	JoinTarget string
}

// Filter is the opaque, externally-compiled query predicate (§1, §3).
// The core never inspects a Filter's structure; it only threads Filter
// values through to Storage[R].Query.
type Filter any

// PropertyAccessors is the per-record-type "table of (propertyId ->
// accessor)" called for in §9 in place of reflection: the host
// supplies one Get/Set pair per record shape, generated once and
// shared process-wide, rather than the engine reflecting over R.
type PropertyAccessors[R Record] struct {
	Get func(r R, id PropertyID) any
	Set func(r R, id PropertyID, v any) R
}

