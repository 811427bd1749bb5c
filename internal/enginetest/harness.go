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

package enginetest

import (
	"context"
	"fmt"

	"github.com/carbonadodb/carbonado/internal/hoststore/memory"
	"github.com/carbonadodb/carbonado/internal/indexent"
	"github.com/carbonadodb/carbonado/internal/managedindex"
	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/carbonadodb/carbonado/internal/types"
)

// Harness wires one Account master store to one AccountByBalance
// managed index over internal/hoststore/memory, the way a production
// binary wires a generated master/index pair to a real host (§6).
type Harness struct {
	Accounts      *memory.Store[Account]
	AccountsByBal *memory.Store[AccountByBalance]
	Txns          memory.Txns
	Index         *managedindex.Index[Account, AccountByBalance]

	removeTrigger func()
}

// NewHarness constructs a Harness and installs the index's mutation
// trigger on the Account master store.
func NewHarness(ctx context.Context) *Harness {
	accounts := memory.New(
		func() Account { return Account{} },
		func(a Account) string { return fmt.Sprintf("%020d", a.ID) },
		func(a, b Account) bool { return a.ID < b.ID },
	)
	entries := memory.New(
		func() AccountByBalance { return AccountByBalance{} },
		func(e AccountByBalance) string { return fmt.Sprintf("%024.6f%020d", e.Balance, e.ID) },
		func(a, b AccountByBalance) bool {
			if a.Balance != b.Balance {
				return a.Balance < b.Balance
			}
			return a.ID < b.ID
		},
	)

	model := indexent.NewModel[Account, AccountByBalance](
		AccountByBalanceDescriptor(),
		AccountMasterAccessors(),
		AccountByBalanceAccessors(),
		AccountPropertyKind,
		PropAccountVersion,
		true,
	)

	pool, err := sortbuf.PoolFor("")
	if err != nil {
		panic(err)
	}

	idx := managedindex.New[Account, AccountByBalance](
		ctx,
		AccountByBalanceDescriptor(),
		model,
		accounts,
		entries,
		memory.Txns{},
		AccountOps{},
		AccountByBalanceOps{},
		[]types.PropertyID{PropAccountID},
		pool,
		AccountByBalanceCodec{},
		AccountByBalanceAccessors(),
		nil,
	)

	remove := accounts.AddTrigger(idx)

	return &Harness{
		Accounts:      accounts,
		AccountsByBal: entries,
		Index:         idx,
		removeTrigger: remove,
	}
}

// Close removes the installed trigger and stops the index's repair
// workers.
func (h *Harness) Close() {
	h.removeTrigger()
	_ = h.Index.Close(0)
}
