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

package ident

import "sync"

// A Map is a concurrency-safe, comparable-keyed map, generalizing the
// teacher's ident.TableMap / ident.SchemaMap helpers to any key type
// used across this module (Ident, PropertyID, descriptor strings).
type Map[K comparable, V any] struct {
	mu struct {
		sync.RWMutex
		m map[K]V
	}
}

// Get returns the value for key and whether it was present.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.mu.m[key]
	return v, ok
}

// GetZero returns the value for key, or the zero value of V if absent.
func (m *Map[K, V]) GetZero(key K) V {
	v, _ := m.Get(key)
	return v
}

// Put stores value under key.
func (m *Map[K, V]) Put(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mu.m == nil {
		m.mu.m = make(map[K]V)
	}
	m.mu.m[key] = value
}

// Delete removes key, if present.
func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mu.m, key)
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mu.m)
}

// Range calls fn for each entry in an unspecified order, stopping and
// returning the first error fn returns.
func (m *Map[K, V]) Range(fn func(key K, value V) error) error {
	m.mu.RLock()
	snapshot := make(map[K]V, len(m.mu.m))
	for k, v := range m.mu.m {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
