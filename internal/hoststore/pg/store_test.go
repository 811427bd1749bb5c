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

package pg_test

import (
	"context"
	"os"
	"testing"

	"github.com/carbonadodb/carbonado/internal/hoststore/pg"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// account mirrors internal/enginetest.Account, kept separate so this
// package's tests don't need to import enginetest just for a mapping.
type account struct {
	ID      int64
	Balance float64
	Owner   string
	Version int64
}

func accountMapping() pg.Mapping[account] {
	return pg.Mapping[account]{
		Table:      "accounts",
		Columns:    []string{"id", "balance", "owner", "version"},
		PrimaryKey: []string{"id"},
		OrderBy:    "id",
		Scan: func(row pgx.Rows) (account, error) {
			var a account
			err := row.Scan(&a.ID, &a.Balance, &a.Owner, &a.Version)
			return a, err
		},
		Values:           func(a account) []any { return []any{a.ID, a.Balance, a.Owner, a.Version} },
		PrimaryKeyValues: func(a account) []any { return []any{a.ID} },
	}
}

// TestStoreAgainstLiveDatabase exercises Truncate/TryInsert/TryLoad/
// TryUpdate/TryDelete against a real Postgres, the way the teacher's own
// sinktest fixtures require a live CockroachDB cluster rather than
// mocking the driver. It is skipped unless CARBONADO_TEST_DATABASE_URL
// names a reachable instance with an "accounts" table already present.
func TestStoreAgainstLiveDatabase(t *testing.T) {
	dsn := os.Getenv("CARBONADO_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("set CARBONADO_TEST_DATABASE_URL to run pg.Store against a live database")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	store := pg.New[account](pool, accountMapping())
	require.NoError(t, store.Truncate(ctx))

	a := account{ID: 1, Balance: 100, Owner: "alice", Version: 1}
	ok, err := store.TryInsert(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	loaded, found, err := store.TryLoad(ctx, account{ID: 1})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alice", loaded.Owner)

	a.Balance = 250
	ok, err = store.TryUpdate(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)

	loaded, _, err = store.TryLoad(ctx, account{ID: 1})
	require.NoError(t, err)
	require.Equal(t, float64(250), loaded.Balance)

	ok, err = store.TryDelete(ctx, account{ID: 1})
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err = store.TryLoad(ctx, account{ID: 1})
	require.NoError(t, err)
	require.False(t, found)
}
