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

//go:build wireinject
// +build wireinject

package facade

import (
	"context"

	"github.com/carbonadodb/carbonado/internal/sortbuf"
	"github.com/google/wire"
)

// NewDeps assembles the process-wide Deps a host application shares
// across every Facade[M] it runs: one Postgres pool and one work-file
// pool, regardless of how many master record types are managed. typeName
// only labels the logger; dsn and sortCfg configure the pool providers.
func NewDeps(ctx context.Context, typeName, dsn string, sortCfg sortbuf.Config) (*Deps, func(), error) {
	panic(wire.Build(
		ProvideLogger,
		ProvidePostgresPool,
		ProvideWorkFilePool,
		wire.Struct(new(Deps), "*"),
	))
}
