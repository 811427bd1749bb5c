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

package memory

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/types"
)

// txnKey is how a nested EnterTransaction finds an already-open
// transaction on ctx, the way a real host threads its client/handle
// through context values.
type txnKey struct{}

// Txns is a trivial, single-process types.TransactionManager: since
// Store already serializes every mutation under its own mutex,
// "transactions" here only need to track isolation/for-update
// bookkeeping and nesting depth, not actually buffer writes (§6.1).
// A real host instead opens a genuine database transaction here; this
// stands in for tests the same way the rest of this package does.
type Txns struct{}

type txnHandle struct {
	level     types.IsolationLevel
	forUpdate bool
	nested    bool
}

func (t *txnHandle) SetForUpdate(forUpdate bool) { t.forUpdate = forUpdate }
func (t *txnHandle) Commit(context.Context) error { return nil }
func (t *txnHandle) Exit(context.Context) error   { return nil }

func (Txns) EnterTransaction(ctx context.Context, level types.IsolationLevel) (context.Context, types.Transaction, error) {
	if existing, ok := ctx.Value(txnKey{}).(*txnHandle); ok {
		return ctx, &txnHandle{level: level, nested: true, forUpdate: existing.forUpdate}, nil
	}
	h := &txnHandle{level: level}
	return context.WithValue(ctx, txnKey{}, h), h, nil
}

func (Txns) EnterTopTransaction(ctx context.Context, level types.IsolationLevel) (context.Context, types.Transaction, error) {
	h := &txnHandle{level: level}
	return context.WithValue(ctx, txnKey{}, h), h, nil
}
