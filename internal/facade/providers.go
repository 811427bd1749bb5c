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

package facade

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Deps bundles the process-wide infrastructure a facade for some
// master type needs, assembled once per process by NewDeps rather than
// per Facade[M] (the database pool and work-file pool are shared
// across every master type's facade).
type Deps struct {
	Log       *logrus.Entry
	Pool      *pgxpool.Pool
	WorkFiles *sortbuf.WorkFilePool
}

// ProvideLogger is called by Wire to build the facade subsystem's
// logger.
func ProvideLogger(typeName string) *logrus.Entry {
	return logrus.WithField("subsystem", "facade").WithField("type", typeName)
}

// ProvidePostgresPool is called by Wire to open the pgxpool.Pool every
// internal/hoststore/pg.Store shares. The pool is closed by the
// returned cleanup function.
func ProvidePostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "facade: open postgres pool")
	}
	return pool, pool.Close, nil
}

// ProvideWorkFilePool is called by Wire to obtain the singleton
// WorkFilePool for cfg's spill directory; it simply forwards to
// internal/sortbuf's own provider, which owns the resource.
func ProvideWorkFilePool(cfg sortbuf.Config) (*sortbuf.WorkFilePool, func(), error) {
	return sortbuf.ProvideWorkFilePool(cfg)
}
