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

package types

import "github.com/pkg/errors"

// FetchKind classifies a Fetch error (§7).
type FetchKind int

const (
	// FetchGeneric is an otherwise unclassified fetch failure.
	FetchGeneric FetchKind = iota
	// FetchDeadlock indicates the underlying store detected a deadlock.
	FetchDeadlock
	// FetchTimeout indicates the underlying store timed out.
	FetchTimeout
	// FetchInterrupted indicates cooperative cancellation (§5).
	FetchInterrupted
	// FetchCorruptEncoding indicates a record could not be decoded.
	FetchCorruptEncoding
)

// A FetchError wraps a failure to read from a cursor or the underlying
// store. Per §7, any code path that surfaces a FetchError from a cursor
// must have already closed that cursor.
type FetchError struct {
	Kind FetchKind
	msg  string
	err  error
}

func (e *FetchError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *FetchError) Unwrap() error { return e.err }

// NewFetchError constructs a FetchError of the given kind.
func NewFetchError(kind FetchKind, msg string, cause error) *FetchError {
	return &FetchError{Kind: kind, msg: msg, err: cause}
}

// IsFetchKind reports whether err is a *FetchError of the given kind.
func IsFetchKind(err error, kind FetchKind) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// ErrNoSuchElement is returned internally by source cursors once
// exhausted; per §9 ("Exception-for-control-flow"), no code outside
// the adapter that owns a raw source should ever see this value — it
// is translated to a plain `false` return from hasNext.
var ErrNoSuchElement = errors.New("carbonado: no such element")

// ErrIllegalArgument indicates a caller passed an invalid argument,
// such as a negative skipNext count.
var ErrIllegalArgument = errors.New("carbonado: illegal argument")

// PersistKind classifies a Persist error (§7).
type PersistKind int

const (
	// PersistGeneric is an otherwise unclassified persist failure.
	PersistGeneric PersistKind = iota
	// PersistDeadlock indicates the underlying store detected a deadlock.
	PersistDeadlock
	// PersistTimeout indicates the underlying store timed out.
	PersistTimeout
	// PersistUniqueConstraint indicates a unique index rejected a write.
	PersistUniqueConstraint
	// PersistNoMatchingRecord indicates an update/delete found no row.
	PersistNoMatchingRecord
	// PersistUnsupported indicates the operation isn't supported by the
	// underlying store (e.g. a capability the host doesn't implement).
	PersistUnsupported
)

// A PersistError wraps a failure to write to the underlying store.
type PersistError struct {
	Kind PersistKind
	msg  string
	err  error
}

func (e *PersistError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *PersistError) Unwrap() error { return e.err }

// NewPersistError constructs a PersistError of the given kind.
func NewPersistError(kind PersistKind, msg string, cause error) *PersistError {
	return &PersistError{Kind: kind, msg: msg, err: cause}
}

// IsPersistKind reports whether err is a *PersistError of the given kind.
func IsPersistKind(err error, kind PersistKind) bool {
	var pe *PersistError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}
