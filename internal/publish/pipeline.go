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

// Package publish decodes a cargo publish request body and applies it to
// the registry: writing the crate archive, appending an index entry, and
// committing both to the git-backed index.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode"

	"github.com/go-logr/logr"

	"github.com/ConfigButler/cargo-registry/internal/archive"
	"github.com/ConfigButler/cargo-registry/internal/gitindex"
	"github.com/ConfigButler/cargo-registry/internal/index"
)

// Result describes what Publish did, for the HTTP layer to report back and
// for metrics to record.
type Result struct {
	Name    string
	Version string
}

// Publish decodes body as a cargo publish request -- a metadata length
// prefix, JSON metadata, a crate length prefix, and the crate archive bytes,
// all length-prefixed in host byte order -- then appends the new entry to
// the package's index file, writes the archive, and commits both to idx. Any bytes trailing the crate payload are logged and discarded rather
// than treated as an error, matching the reference server's tolerance of
// trailing padding from some clients.
func Publish(body []byte, idx *gitindex.Index, store *archive.Store, log logr.Logger) (Result, error) {
	metaLen, rest, err := parseUint32(body)
	if err != nil {
		return Result{}, err
	}

	metaBytes, rest, err := splitMetadata(rest, metaLen)
	if err != nil {
		return Result{}, err
	}

	var meta metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return Result{}, fmt.Errorf("failed to parse JSON metadata: %w", err)
	}

	if err := validateName(meta.Name); err != nil {
		return Result{}, err
	}

	crateLen, rest, err := parseUint32(rest)
	if err != nil {
		return Result{}, err
	}

	crateBytes, rest, err := splitCrate(rest, crateLen)
	if err != nil {
		return Result{}, err
	}

	if len(rest) > 0 {
		log.Info("ignoring trailing bytes in publish request", "count", len(rest))
	}

	cksum := checksum(crateBytes)
	entry := meta.toEntry(cksum)

	shardDir := filepath.Join(idx.Root(), index.ShardPath(meta.Name))
	if err := os.MkdirAll(shardDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("failed to create directory %s: %w", shardDir, err)
	}

	entryPath := filepath.Join(idx.Root(), index.EntryPath(meta.Name))
	if err := appendEntry(entryPath, entry); err != nil {
		return Result{}, fmt.Errorf("failed to create crate index file %s: %w", entryPath, err)
	}

	if _, err := store.Write(meta.Name, meta.Vers, crateBytes); err != nil {
		return Result{}, err
	}

	if err := idx.Stage(entryPath); err != nil {
		return Result{}, err
	}
	if err := idx.Stage(store.Path(meta.Name, meta.Vers)); err != nil {
		return Result{}, err
	}

	message := fmt.Sprintf("Add %s in version %s", meta.Name, meta.Vers)
	if err := idx.Commit(message); err != nil {
		return Result{}, err
	}

	return Result{Name: meta.Name, Version: meta.Vers}, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("crate name cannot be empty")
	}
	for _, r := range name {
		if r > unicode.MaxASCII {
			return errors.New("crate name contains non-ASCII characters")
		}
	}
	return nil
}

// appendEntry appends entry as one JSON line to the package's index file,
// creating the file (and any directories above it, already ensured by the
// caller) if it does not yet exist. Index files are append-only: existing
// lines for earlier versions are never rewritten.
func appendEntry(path string, entry index.Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode index entry: %w", err)
	}
	line = append(line, '\n')

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write(line)
	return err
}
