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

package join_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/enginetest"
	"github.com/carbonadodb/carbonado/internal/hoststore/memory"
	"github.com/carbonadodb/carbonado/internal/join"
	"github.com/stretchr/testify/require"
)

type transfer struct {
	AccountID int64
	Seq       int64
	Amount    float64
}

func newTransferStore() *memory.Store[transfer] {
	return memory.New(
		func() transfer { return transfer{} },
		func(t transfer) string { return fmt.Sprintf("%020d%020d", t.AccountID, t.Seq) },
		func(a, b transfer) bool {
			if a.AccountID != b.AccountID {
				return a.AccountID < b.AccountID
			}
			return a.Seq < b.Seq
		},
	)
}

func TestOneDropsAccountsWithNoRelatedRecord(t *testing.T) {
	ctx := context.Background()
	accounts := memory.New(
		func() enginetest.Account { return enginetest.Account{} },
		func(a enginetest.Account) string { return fmt.Sprintf("%020d", a.ID) },
		func(a, b enginetest.Account) bool { return a.ID < b.ID },
	)
	_, err := accounts.TryInsert(ctx, enginetest.Account{ID: 1, Owner: "alice"})
	require.NoError(t, err)
	_, err = accounts.TryInsert(ctx, enginetest.Account{ID: 2, Owner: "bob"})
	require.NoError(t, err)

	entries := []enginetest.AccountByBalance{{ID: 1}, {ID: 2}, {ID: 99}}
	lookup := join.StorageLookup[enginetest.AccountByBalance, enginetest.Account](
		accounts,
		func(e enginetest.AccountByBalance, blank enginetest.Account) enginetest.Account {
			blank.ID = e.ID
			return blank
		},
	)
	joined := join.One[enginetest.AccountByBalance, enginetest.Account](ctx, cursor.FromSlice(entries), lookup)

	owners, err := cursor.ToList(ctx, joined, -1)
	require.NoError(t, err)
	require.Len(t, owners, 2, "the entry referencing a deleted account (99) must be dropped, not nulled")
	require.ElementsMatch(t, []string{"alice", "bob"}, []string{owners[0].Owner, owners[1].Owner})
}

func TestManyExpandsEachAccountToItsTransfers(t *testing.T) {
	ctx := context.Background()
	transfers := newTransferStore()
	for _, tr := range []transfer{
		{AccountID: 1, Seq: 1, Amount: 5}, {AccountID: 1, Seq: 2, Amount: 7},
		{AccountID: 2, Seq: 1, Amount: 9},
	} {
		_, err := transfers.TryInsert(ctx, tr)
		require.NoError(t, err)
	}

	byAccount := memory.Predicate[transfer](func(t transfer, args ...any) bool {
		return t.AccountID == args[0].(int64)
	})
	fetch := join.StorageFetchMany[enginetest.Account, transfer](transfers, byAccount, func(a enginetest.Account) []any {
		return []any{a.ID}
	})

	accounts := []enginetest.Account{{ID: 1}, {ID: 2}, {ID: 3}}
	joined := join.Many[enginetest.Account, transfer](ctx, cursor.FromSlice(accounts), fetch)

	got, err := cursor.ToList(ctx, joined, -1)
	require.NoError(t, err)
	require.Len(t, got, 3, "account 3 has no transfers and contributes zero rows")
}

func TestClassCacheReusesBuiltLookup(t *testing.T) {
	cache, err := join.NewClassCache[join.Lookup[enginetest.AccountByBalance, enginetest.Account]](8)
	require.NoError(t, err)

	accounts := memory.New(
		func() enginetest.Account { return enginetest.Account{} },
		func(a enginetest.Account) string { return fmt.Sprintf("%020d", a.ID) },
		func(a, b enginetest.Account) bool { return a.ID < b.ID },
	)

	builds := 0
	build := func() join.Lookup[enginetest.AccountByBalance, enginetest.Account] {
		builds++
		return join.StorageLookup[enginetest.AccountByBalance, enginetest.Account](
			accounts,
			func(e enginetest.AccountByBalance, blank enginetest.Account) enginetest.Account {
				blank.ID = e.ID
				return blank
			},
		)
	}

	l1 := cache.GetOrCreate("AccountByBalance->Account", build)
	l2 := cache.GetOrCreate("AccountByBalance->Account", build)
	require.Equal(t, 1, builds, "second GetOrCreate for the same class must reuse the cached lookup")
	require.NotNil(t, l1)
	require.NotNil(t, l2)
}
