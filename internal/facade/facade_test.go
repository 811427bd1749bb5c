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

package facade_test

import (
	"context"
	"testing"

	"github.com/carbonadodb/carbonado/internal/enginetest"
	"github.com/carbonadodb/carbonado/internal/facade"
	"github.com/carbonadodb/carbonado/internal/hoststore/memory"
	"github.com/carbonadodb/carbonado/internal/indexanalysis"
	"github.com/carbonadodb/carbonado/internal/indexdesc"
	"github.com/stretchr/testify/require"
)

func TestReconcileInstallsDeclaredIndexAndBacklfillsExisting(t *testing.T) {
	ctx := context.Background()
	h := enginetest.NewHarness(ctx)
	defer h.Close()

	// Uninstall the harness's own trigger: the facade under test will
	// install its own copy and we don't want double maintenance.
	h.Close()

	_, err := h.Accounts.TryInsert(ctx, enginetest.Account{ID: 1, Balance: 10})
	require.NoError(t, err)

	dropped := map[string]bool{}
	meta := memory.NewMetadata()
	f := facade.New[enginetest.Account]("Account", h.Accounts, func(_ context.Context, nd string) error {
		dropped[nd] = true
		return nil
	}, facade.WithMetadataStore(meta))
	f.Register(h.Index)

	stored, err := f.LoadStoredIndexInfo(ctx)
	require.NoError(t, err)
	require.Empty(t, stored, "nothing has been installed yet")

	result, err := f.Reconcile(ctx, indexanalysis.Input{
		PrimaryKey:    []indexdesc.Property{{ID: enginetest.PropAccountID}},
		RepairEnabled: true,
	}, 0)
	require.NoError(t, err)
	require.Len(t, result.Add, 1)
	require.Empty(t, dropped)

	stored, err = f.LoadStoredIndexInfo(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1, "installing the index must persist its StoredIndexInfo")
	require.Equal(t, h.Index.Descriptor().NameDescriptor(), stored[0].NameDescriptor)
	require.Equal(t, h.Index.TypeDescriptor(), stored[0].TypeDescriptor)

	_, found, err := h.AccountsByBal.TryLoad(ctx, enginetest.AccountByBalance{Balance: 10, ID: 1})
	require.NoError(t, err)
	require.True(t, found, "reconcile should have backfilled the pre-existing account")

	_, err = h.Accounts.TryInsert(ctx, enginetest.Account{ID: 2, Balance: 30})
	require.NoError(t, err)
	_, found, err = h.AccountsByBal.TryLoad(ctx, enginetest.AccountByBalance{Balance: 30, ID: 2})
	require.NoError(t, err)
	require.True(t, found, "installed trigger should maintain new writes")

	require.NoError(t, f.Close(0))
}
