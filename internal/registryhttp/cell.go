/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package registryhttp

import (
	"sync"

	"github.com/ConfigButler/cargo-registry/internal/gitindex"
)

// IndexCell holds the single index handle shared between the startup
// reconciler and the publish handler. Every publish acquires the lock for
// its entire duration, serialising all writes to the underlying git
// repository regardless of how many request goroutines are in flight.
type IndexCell struct {
	mu  sync.Mutex
	idx *gitindex.Index
}

// NewIndexCell wraps an already-constructed index.
func NewIndexCell(idx *gitindex.Index) *IndexCell {
	return &IndexCell{idx: idx}
}

// With runs fn while holding the cell's lock, passing it the wrapped index.
func (c *IndexCell) With(fn func(*gitindex.Index) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.idx)
}
