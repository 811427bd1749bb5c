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

package managedindex

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the operator-tunable knobs of the build/repair pipeline
// (§4.8): commit batch sizes, build throttling, and the repair queue's
// worker pool and depth. A zero Config is not ready to use; parse
// flags registered by RegisterFlags first.
type Config struct {
	BuildBatchSize   int
	RemoveBatchSize  int
	BuildThrottleQPS float64
	ScanWorkers      int
	RepairWorkers    int
	RepairQueueDepth int
	ProgressLogEvery int
}

// RegisterFlags binds Config's fields onto fs, in the style of the
// server package's Config.Bind.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.BuildBatchSize, "indexBuildBatchSize", 128,
		"number of entries committed per transaction during index build/repair")
	fs.IntVar(&c.RemoveBatchSize, "indexRemoveBatchSize", 128,
		"number of entries committed per transaction while dropping an index")
	fs.Float64Var(&c.BuildThrottleQPS, "indexBuildThrottleQPS", 0,
		"maximum master rows scanned per second during a build, 0 for unlimited")
	fs.IntVar(&c.ScanWorkers, "indexScanWorkers", 4,
		"number of goroutines projecting master rows into entries during a build scan")
	fs.IntVar(&c.RepairWorkers, "indexRepairWorkers", 4,
		"number of goroutines draining the out-of-transaction repair queue")
	fs.IntVar(&c.RepairQueueDepth, "indexRepairQueueDepth", 1024,
		"maximum number of pending repair requests buffered before further requests are dropped")
	fs.IntVar(&c.ProgressLogEvery, "indexProgressLogEvery", 10000,
		"number of rows between build progress log lines")
}

// Preflight validates Config after flags are parsed.
func (c *Config) Preflight() error {
	if c.BuildBatchSize <= 0 {
		return errors.New("indexBuildBatchSize must be positive")
	}
	if c.RemoveBatchSize <= 0 {
		return errors.New("indexRemoveBatchSize must be positive")
	}
	if c.BuildThrottleQPS < 0 {
		return errors.New("indexBuildThrottleQPS must not be negative")
	}
	if c.ScanWorkers <= 0 {
		return errors.New("indexScanWorkers must be positive")
	}
	if c.RepairWorkers <= 0 {
		return errors.New("indexRepairWorkers must be positive")
	}
	if c.RepairQueueDepth <= 0 {
		return errors.New("indexRepairQueueDepth must be positive")
	}
	return nil
}

// Options converts Config into the Option values New expects. It
// covers BuildBatchSize, RepairWorkers, ProgressLogEvery and
// ScanWorkers only; RemoveBatchSize, BuildThrottleQPS and
// RepairQueueDepth have no Option and are not applied by it.
func (c *Config) Options() []Option {
	return []Option{
		WithBuildBatchSize(c.BuildBatchSize),
		WithRepairWorkers(c.RepairWorkers),
		WithProgressLogInterval(c.ProgressLogEvery),
		WithScanWorkers(c.ScanWorkers),
	}
}
