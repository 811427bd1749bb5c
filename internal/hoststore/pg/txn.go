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

package pg

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type txKey struct{}

// Txns is a types.TransactionManager backed by real pgx transactions,
// unlike internal/hoststore/memory's Txns, which only tracks nesting —
// this is the implementation SPEC_FULL.md's host-store reference
// commits to exercising real driver-level isolation semantics against.
type Txns struct {
	Pool *pgxpool.Pool
}

func (t Txns) EnterTransaction(ctx context.Context, level types.IsolationLevel) (context.Context, types.Transaction, error) {
	if existing, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return ctx, &nestedHandle{tx: existing}, nil
	}
	return t.EnterTopTransaction(ctx, level)
}

func (t Txns) EnterTopTransaction(ctx context.Context, level types.IsolationLevel) (context.Context, types.Transaction, error) {
	tx, err := t.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel(level)})
	if err != nil {
		return ctx, nil, errors.Wrap(err, "pg: begin transaction")
	}
	return context.WithValue(ctx, txKey{}, tx), &topHandle{tx: tx}, nil
}

func isoLevel(level types.IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case types.IsolationSerializable:
		return pgx.Serializable
	case types.IsolationRepeatableRead:
		return pgx.RepeatableRead
	case types.IsolationReadCommitted, types.IsolationReadUncommitted:
		return pgx.ReadCommitted
	default:
		return pgx.ReadCommitted
	}
}

// topHandle owns a real pgx.Tx: Commit/Exit actually commit or roll it
// back. SetForUpdate is a no-op: this reference store never issues a
// SELECT ... FOR UPDATE and relies on the transaction's isolation
// level instead, matching the upgradable-lock discipline loosely rather
// than literally (noted as a deliberate simplification).
type topHandle struct {
	tx        pgx.Tx
	committed bool
}

func (h *topHandle) SetForUpdate(bool) {}

func (h *topHandle) Commit(ctx context.Context) error {
	if h.committed {
		return nil
	}
	h.committed = true
	return errors.Wrap(h.tx.Commit(ctx), "pg: commit transaction")
}

func (h *topHandle) Exit(ctx context.Context) error {
	if h.committed {
		return nil
	}
	err := h.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return errors.Wrap(err, "pg: rollback transaction")
}

// nestedHandle represents a transaction entered while one was already
// open on ctx; it defers entirely to the enclosing transaction; only
// the outermost EnterTopTransaction's handle actually commits.
type nestedHandle struct {
	tx pgx.Tx
}

func (h *nestedHandle) SetForUpdate(bool)             {}
func (h *nestedHandle) Commit(context.Context) error  { return nil }
func (h *nestedHandle) Exit(context.Context) error     { return nil }
