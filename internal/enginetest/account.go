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

// Package enginetest is a fixture package, in the spirit of the
// teacher's internal/sinktest: a single concrete domain (Account,
// indexed by balance) wired
// end to end over internal/hoststore/memory, reusable by every other
// package's tests instead of each package hand-rolling its own fake
// records.
package enginetest

import (
	"fmt"

	"github.com/carbonadodb/carbonado/internal/ident"
	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/goccy/go-json"
)

// Account is the master record type used throughout this fixture.
type Account struct {
	ID      int64
	Balance float64
	Owner   string
	Version int64
}

// AccountByBalance is the entry record for the (balance, id) index.
type AccountByBalance struct {
	Balance float64
	ID      int64
	Version int64
}

const (
	// PropAccountID etc. are the stable property IDs the fixture's
	// accessors and descriptors are built from.
	PropAccountID types.PropertyID = iota + 1
	PropAccountBalance
	PropAccountOwner
	PropAccountVersion
)

// AccountMasterAccessors returns the Get/Set table for Account (§9,
// in place of reflection).
func AccountMasterAccessors() types.PropertyAccessors[Account] {
	return types.PropertyAccessors[Account]{
		Get: func(r Account, id types.PropertyID) any {
			switch id {
			case PropAccountID:
				return r.ID
			case PropAccountBalance:
				return r.Balance
			case PropAccountOwner:
				return r.Owner
			case PropAccountVersion:
				return r.Version
			default:
				panic(fmt.Sprintf("enginetest: unknown Account property %d", id))
			}
		},
		Set: func(r Account, id types.PropertyID, v any) Account {
			switch id {
			case PropAccountID:
				r.ID = v.(int64)
			case PropAccountBalance:
				r.Balance = v.(float64)
			case PropAccountOwner:
				r.Owner = v.(string)
			case PropAccountVersion:
				r.Version = v.(int64)
			}
			return r
		},
	}
}

// AccountByBalanceAccessors returns the Get/Set table for the entry
// type of the (balance, id) index.
func AccountByBalanceAccessors() types.PropertyAccessors[AccountByBalance] {
	return types.PropertyAccessors[AccountByBalance]{
		Get: func(r AccountByBalance, id types.PropertyID) any {
			switch id {
			case PropAccountID:
				return r.ID
			case PropAccountBalance:
				return r.Balance
			case PropAccountVersion:
				return r.Version
			default:
				panic(fmt.Sprintf("enginetest: unknown AccountByBalance property %d", id))
			}
		},
		Set: func(r AccountByBalance, id types.PropertyID, v any) AccountByBalance {
			switch id {
			case PropAccountID:
				r.ID = v.(int64)
			case PropAccountBalance:
				r.Balance = v.(float64)
			case PropAccountVersion:
				r.Version = v.(int64)
			}
			return r
		},
	}
}

// AccountPropertyKind classifies Account/AccountByBalance properties
// for comparator purposes (§4.6).
func AccountPropertyKind(id types.PropertyID) types.PropertyKind {
	if id == PropAccountBalance {
		return types.KindFloat64
	}
	return types.KindOther
}

// AccountByBalanceDescriptor is the canonical non-unique secondary
// index this fixture exercises.
func AccountByBalanceDescriptor() indexdesc.Descriptor {
	return indexdesc.Descriptor{
		TypeName: "Account",
		Props: []indexdesc.Property{
			{ID: PropAccountBalance, Name: "balance", Direction: ident.Ascending},
			{ID: PropAccountID, Name: "id", Direction: ident.Ascending},
		},
	}
}

// AccountOps implements types.RecordOps[Account].
type AccountOps struct{}

func (AccountOps) EqualPrimaryKeys(a, b Account) bool { return a.ID == b.ID }
func (AccountOps) EqualProperties(a, b Account) bool  { return a == b }
func (AccountOps) CopyVersionProperty(src, dst Account) Account {
	dst.Version = src.Version
	return dst
}
func (AccountOps) CopyUnequalProperties(src, dst Account) Account {
	if src.Balance != dst.Balance {
		dst.Balance = src.Balance
	}
	if src.Owner != dst.Owner {
		dst.Owner = src.Owner
	}
	if src.Version != dst.Version {
		dst.Version = src.Version
	}
	return dst
}
func (AccountOps) Copy(r Account) Account { return r }

// AccountByBalanceOps implements types.RecordOps[AccountByBalance].
type AccountByBalanceOps struct{}

func (AccountByBalanceOps) EqualPrimaryKeys(a, b AccountByBalance) bool {
	return a.Balance == b.Balance && a.ID == b.ID
}
func (AccountByBalanceOps) EqualProperties(a, b AccountByBalance) bool { return a == b }
func (AccountByBalanceOps) CopyVersionProperty(src, dst AccountByBalance) AccountByBalance {
	dst.Version = src.Version
	return dst
}
func (AccountByBalanceOps) CopyUnequalProperties(src, dst AccountByBalance) AccountByBalance {
	dst.Version = src.Version
	return dst
}
func (AccountByBalanceOps) Copy(r AccountByBalance) AccountByBalance { return r }

// AccountByBalanceCodec implements sortbuf.Codec[AccountByBalance]
// with goccy/go-json, a drop-in faster encoding/json; the build
// pipeline never inspects the wire format, so any codec the host's
// storable-encoding facility offers would do.
type AccountByBalanceCodec struct{}

func (AccountByBalanceCodec) Encode(v AccountByBalance) ([]byte, error) { return json.Marshal(v) }
func (AccountByBalanceCodec) Decode(b []byte) (AccountByBalance, error) {
	var v AccountByBalance
	err := json.Unmarshal(b, &v)
	return v, err
}
