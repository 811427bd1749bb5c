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

// Package pg is a reference, Postgres/CockroachDB-backed
// types.Storage[R] (§6.1), exercising the host-store contract against
// a real driver the way the teacher's internal/types.StagingPool does
// for its own staging tier. There is no reflection-based record
// mapping here, matching §9's "dynamic property access instead of
// reflection": callers supply a Mapping[R] of hand-written scan/bind
// functions, the SQL-side analogue of internal/types.PropertyAccessors.
package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/carbonadodb/carbonado/internal/cursor"
	"github.com/carbonadodb/carbonado/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Mapping binds record type R to one table. Columns must list every
// column in a stable order; PrimaryKey names the subset (by column
// name) that uniquely identifies a row.
type Mapping[R types.Record] struct {
	Table      string
	Columns    []string
	PrimaryKey []string

	// Scan reads one row's worth of columns, in Columns order, into a
	// fresh R.
	Scan func(row pgx.Rows) (R, error)
	// Values returns r's column values, in Columns order, for an
	// insert or update.
	Values func(r R) []any
	// PrimaryKeyValues returns r's primary-key column values, in
	// PrimaryKey order.
	PrimaryKeyValues func(r R) []any
	// OrderBy is the column list (with direction) FetchAfter/Query use
	// to produce a stable, resumable row order; it must be consistent
	// with PrimaryKey so FetchAfter's keyset pagination is well defined.
	OrderBy string
}

// Store is a types.Storage[R] backed by a pgxpool.Pool, dispatching
// the engine's own Go-side mutation triggers around each write instead
// of relying on database triggers (§6.1).
type Store[R types.Record] struct {
	pool    *pgxpool.Pool
	mapping Mapping[R]

	triggers []types.Trigger[R]
}

// New constructs a Store for mapping over pool.
func New[R types.Record](pool *pgxpool.Pool, mapping Mapping[R]) *Store[R] {
	return &Store[R]{pool: pool, mapping: mapping}
}

func (s *Store[R]) Prepare() R {
	var zero R
	return zero
}

func (s *Store[R]) querier(ctx context.Context) types.StagingQuerier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func (s *Store[R]) whereByPrimaryKey(startArg int) string {
	parts := make([]string, len(s.mapping.PrimaryKey))
	for i, col := range s.mapping.PrimaryKey {
		parts[i] = fmt.Sprintf("%s = $%d", col, startArg+i)
	}
	return strings.Join(parts, " AND ")
}

func (s *Store[R]) TryLoad(ctx context.Context, partial R) (R, bool, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(s.mapping.Columns, ", "), s.mapping.Table, s.whereByPrimaryKey(1))
	rows, err := s.querier(ctx).Query(ctx, sql, s.mapping.PrimaryKeyValues(partial)...)
	if err != nil {
		var zero R
		return zero, false, classifyFetch(err)
	}
	defer rows.Close()
	if !rows.Next() {
		var zero R
		return zero, false, classifyFetch(rows.Err())
	}
	r, err := s.mapping.Scan(rows)
	if err != nil {
		var zero R
		return zero, false, types.NewFetchError(types.FetchCorruptEncoding, "pg: scan row", err)
	}
	return r, true, nil
}

func (s *Store[R]) TryInsert(ctx context.Context, r R) (bool, error) {
	states, err := s.runBefore(ctx, func(t types.Trigger[R]) (types.TriggerState, error) {
		return t.BeforeInsert(ctx, r)
	})
	if err != nil {
		return false, err
	}

	placeholders := make([]string, len(s.mapping.Columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		s.mapping.Table, strings.Join(s.mapping.Columns, ", "), strings.Join(placeholders, ", "),
		strings.Join(s.mapping.PrimaryKey, ", "))
	tag, err := s.querier(ctx).Exec(ctx, sql, s.mapping.Values(r)...)
	if err != nil {
		return false, classifyPersist(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := s.runAfter(ctx, states, func(t types.Trigger[R], st types.TriggerState) error {
		return t.AfterInsert(ctx, r, st)
	}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store[R]) TryUpdate(ctx context.Context, r R) (bool, error) {
	old, found, err := s.TryLoad(ctx, r)
	if err != nil || !found {
		return false, err
	}

	states, err := s.runBefore(ctx, func(t types.Trigger[R]) (types.TriggerState, error) {
		return t.BeforeUpdate(ctx, old, r)
	})
	if err != nil {
		return false, err
	}

	sets := make([]string, len(s.mapping.Columns))
	for i, col := range s.mapping.Columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		s.mapping.Table, strings.Join(sets, ", "), s.whereByPrimaryKey(len(s.mapping.Columns)+1))
	args := append(append([]any{}, s.mapping.Values(r)...), s.mapping.PrimaryKeyValues(r)...)
	tag, err := s.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, classifyPersist(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := s.runAfter(ctx, states, func(t types.Trigger[R], st types.TriggerState) error {
		return t.AfterUpdate(ctx, old, r, st)
	}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store[R]) TryDelete(ctx context.Context, partial R) (bool, error) {
	old, found, err := s.TryLoad(ctx, partial)
	if err != nil || !found {
		return false, err
	}

	states, err := s.runBefore(ctx, func(t types.Trigger[R]) (types.TriggerState, error) {
		return t.BeforeDelete(ctx, old)
	})
	if err != nil {
		return false, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", s.mapping.Table, s.whereByPrimaryKey(1))
	tag, err := s.querier(ctx).Exec(ctx, sql, s.mapping.PrimaryKeyValues(old)...)
	if err != nil {
		return false, classifyPersist(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := s.runAfter(ctx, states, func(t types.Trigger[R], st types.TriggerState) error {
		return t.AfterDelete(ctx, old, st)
	}); err != nil {
		return true, err
	}
	return true, nil
}

// queryFilter is the concrete types.Filter this store understands: a
// raw SQL boolean expression over Columns, parameterized positionally
// starting at $1, mirroring how the engine's compiled filter/query
// layer (§1) would hand a predicate to any SQL-backed host.
type queryFilter struct {
	where string
}

// Filter builds a types.Filter this Store accepts (§1's external
// filter compiler is out of scope; this is the minimal SQL-shaped
// stand-in other hosts in the pack hand-roll the same way).
func Filter(where string) types.Filter { return queryFilter{where: where} }

func (s *Store[R]) Query(ctx context.Context, filter any, args ...any) (types.Cursor[R], error) {
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(s.mapping.Columns, ", "), s.mapping.Table)
	if qf, ok := filter.(queryFilter); ok && qf.where != "" {
		sql += " WHERE " + qf.where
	}
	if s.mapping.OrderBy != "" {
		sql += " ORDER BY " + s.mapping.OrderBy
	}
	rows, err := s.querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, classifyFetch(err)
	}
	return &rowCursor[R]{rows: rows, scan: s.mapping.Scan}, nil
}

func (s *Store[R]) FetchAfter(ctx context.Context, prev R) (types.Cursor[R], error) {
	where := make([]string, len(s.mapping.PrimaryKey))
	for i, col := range s.mapping.PrimaryKey {
		where[i] = fmt.Sprintf("%s > $%d", col, i+1)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(s.mapping.Columns, ", "), s.mapping.Table, strings.Join(where, " AND "))
	if s.mapping.OrderBy != "" {
		sql += " ORDER BY " + s.mapping.OrderBy
	}
	rows, err := s.querier(ctx).Query(ctx, sql, s.mapping.PrimaryKeyValues(prev)...)
	if err != nil {
		return nil, classifyFetch(err)
	}
	return &rowCursor[R]{rows: rows, scan: s.mapping.Scan}, nil
}

func (s *Store[R]) Count(ctx context.Context, filter any, args ...any) (int64, error) {
	sql := fmt.Sprintf("SELECT count(*) FROM %s", s.mapping.Table)
	if qf, ok := filter.(queryFilter); ok && qf.where != "" {
		sql += " WHERE " + qf.where
	}
	var n int64
	if err := s.querier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, classifyFetch(err)
	}
	return n, nil
}

func (s *Store[R]) Truncate(ctx context.Context) error {
	_, err := s.querier(ctx).Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", s.mapping.Table))
	return classifyPersist(err)
}

func (s *Store[R]) AddTrigger(trigger types.Trigger[R]) (remove func()) {
	s.triggers = append(s.triggers, trigger)
	idx := len(s.triggers) - 1
	return func() {
		if idx < len(s.triggers) {
			s.triggers[idx] = nil
		}
	}
}

func (s *Store[R]) runBefore(_ context.Context, call func(types.Trigger[R]) (types.TriggerState, error)) ([]types.TriggerState, error) {
	states := make([]types.TriggerState, len(s.triggers))
	for i, t := range s.triggers {
		if t == nil {
			continue
		}
		st, err := call(t)
		if err != nil {
			return nil, err
		}
		states[i] = st
	}
	return states, nil
}

func (s *Store[R]) runAfter(_ context.Context, states []types.TriggerState, call func(types.Trigger[R], types.TriggerState) error) error {
	for i, t := range s.triggers {
		if t == nil || i >= len(states) {
			continue
		}
		if err := call(t, states[i]); err != nil {
			return err
		}
	}
	return nil
}

// rowCursor adapts pgx.Rows to types.Cursor[R].
type rowCursor[R types.Record] struct {
	rows pgx.Rows
	scan func(pgx.Rows) (R, error)
	done bool
}

func (c *rowCursor[R]) HasNext(context.Context) (bool, error) {
	if c.done {
		return false, nil
	}
	if c.rows.Next() {
		return true, nil
	}
	c.done = true
	return false, classifyFetch(c.rows.Err())
}

func (c *rowCursor[R]) Next(context.Context) (R, error) {
	r, err := c.scan(c.rows)
	if err != nil {
		var zero R
		return zero, types.NewFetchError(types.FetchCorruptEncoding, "pg: scan row", err)
	}
	return r, nil
}

func (c *rowCursor[R]) SkipNext(ctx context.Context, n int) (int, error) {
	skipped := 0
	for skipped < n {
		has, err := c.HasNext(ctx)
		if err != nil {
			return skipped, err
		}
		if !has {
			break
		}
		if _, err := c.Next(ctx); err != nil {
			return skipped, err
		}
		skipped++
	}
	return skipped, nil
}

func (c *rowCursor[R]) Close() { c.rows.Close() }

var _ cursor.Cursor[int] = (*rowCursor[int])(nil)

func classifyFetch(err error) error {
	if err == nil {
		return nil
	}
	return types.NewFetchError(types.FetchGeneric, "pg: query failed", errors.WithStack(err))
}

func classifyPersist(err error) error {
	if err == nil {
		return nil
	}
	return types.NewPersistError(types.PersistGeneric, "pg: statement failed", errors.WithStack(err))
}
