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

// Package archive stores and retrieves the opaque crate archive files that
// sit alongside the index inside the registry root.
package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ConfigButler/cargo-registry/internal/index"
)

// Store writes and reads archive files directly under a registry root.
type Store struct {
	root string
}

// NewStore returns a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Path returns the path of the archive file for name/version, joined onto
// the store's root; it is absolute only when that root is.
func (s *Store) Path(name, version string) string {
	return filepath.Join(s.root, index.CrateFileName(name, version))
}

// Write truncates (or creates) the archive file for name/version and writes
// data to it in full.
func (s *Store) Write(name, version string, data []byte) (string, error) {
	path := s.Path(name, version)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create crate file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return "", fmt.Errorf("failed to write to crate file %s: %w", path, err)
	}

	return path, nil
}

// Read loads the full contents of the archive file for name/version.
func (s *Store) Read(name, version string) ([]byte, error) {
	path := s.Path(name, version)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crate file %s: %w", path, err)
	}
	return data, nil
}
