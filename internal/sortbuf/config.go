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

package sortbuf

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config is the user-visible configuration for a work-file pool,
// following the shape of the teacher's internal/source/server.Config.
type Config struct {
	WorkFileDir       string
	MaxBufferedInMem  int
	ShutdownTimeoutMS int
}

// RegisterFlags registers flags onto fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.WorkFileDir,
		"sortBufferDir",
		"",
		"the directory used for merge-sort spill files; empty uses the OS default temp directory")
	fs.IntVar(
		&c.MaxBufferedInMem,
		"sortBufferMaxInMem",
		10_000,
		"the maximum number of entries a merge-sort buffer keeps in memory before spilling to a work file")
	fs.IntVar(
		&c.ShutdownTimeoutMS,
		"sortBufferShutdownTimeoutMS",
		5_000,
		"how long the work-file pool waits for in-flight buffers to give up their files on shutdown")
}

// Preflight validates the configuration.
func (c *Config) Preflight() error {
	if c.MaxBufferedInMem <= 0 {
		return errors.New("sortBufferMaxInMem must be positive")
	}
	if c.ShutdownTimeoutMS <= 0 {
		return errors.New("sortBufferShutdownTimeoutMS must be positive")
	}
	return nil
}
