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

package publish

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConfigButler/cargo-registry/internal/archive"
	"github.com/ConfigButler/cargo-registry/internal/gitindex"
	"github.com/ConfigButler/cargo-registry/internal/index"
)

func setup(t *testing.T) (*gitindex.Index, *archive.Store) {
	t.Helper()
	root := t.TempDir()
	idx, err := gitindex.Open(root, "127.0.0.1:0", logr.Discard())
	require.NoError(t, err)
	return idx, archive.NewStore(root)
}

func TestPublishMinimal(t *testing.T) {
	idx, store := setup(t)

	meta := []byte(`{"name":"my-lib","vers":"0.1.0","deps":[],"features":{}}`)
	data := []byte("crate-bytes")
	body := EncodeFrame(meta, data)

	result, err := Publish(body, idx, store, logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, "my-lib", result.Name)
	assert.Equal(t, "0.1.0", result.Version)

	entryPath := filepath.Join(idx.Root(), index.EntryPath("my-lib"))
	raw, err := os.ReadFile(entryPath)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "\n"))

	var entry index.Entry
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "my-lib", entry.Name)
	assert.Equal(t, "0.1.0", entry.Vers)
	assert.Len(t, entry.Cksum, 64)
	assert.False(t, entry.Yanked)

	got, err := store.Read("my-lib", "0.1.0")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPublishAppendsSecondVersionWithoutTruncating(t *testing.T) {
	idx, store := setup(t)

	first := EncodeFrame([]byte(`{"name":"my-lib","vers":"0.1.0","deps":[],"features":{}}`), []byte("v1"))
	_, err := Publish(first, idx, store, logr.Discard())
	require.NoError(t, err)

	second := EncodeFrame([]byte(`{"name":"my-lib","vers":"0.2.0","deps":[],"features":{}}`), []byte("v2"))
	_, err = Publish(second, idx, store, logr.Discard())
	require.NoError(t, err)

	entryPath := filepath.Join(idx.Root(), index.EntryPath("my-lib"))
	raw, err := os.ReadFile(entryPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)

	var e1, e2 index.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e1))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e2))
	assert.Equal(t, "0.1.0", e1.Vers)
	assert.Equal(t, "0.2.0", e2.Vers)
}

func TestPublishRenamedDependencyIsNotSwapped(t *testing.T) {
	idx, store := setup(t)

	explicit := "explicit-name"
	meta := map[string]any{
		"name": "my-lib",
		"vers": "0.1.0",
		"deps": []map[string]any{
			{
				"name":                  "original-name",
				"version_req":           "^1",
				"features":              []string{},
				"optional":              false,
				"default_features":      true,
				"kind":                  "normal",
				"explicit_name_in_toml": explicit,
			},
		},
		"features": map[string][]string{},
	}
	metaBytes, err := json.Marshal(meta)
	require.NoError(t, err)

	body := EncodeFrame(metaBytes, []byte("bytes"))
	_, err = Publish(body, idx, store, logr.Discard())
	require.NoError(t, err)

	entryPath := filepath.Join(idx.Root(), index.EntryPath("my-lib"))
	raw, err := os.ReadFile(entryPath)
	require.NoError(t, err)

	var entry index.Entry
	require.NoError(t, json.Unmarshal(raw, &entry))
	require.Len(t, entry.Deps, 1)
	assert.Equal(t, "original-name", entry.Deps[0].Name)
	require.NotNil(t, entry.Deps[0].Package)
	assert.Equal(t, explicit, *entry.Deps[0].Package)
}

func TestPublishRejectsEmptyName(t *testing.T) {
	idx, store := setup(t)

	body := EncodeFrame([]byte(`{"name":"","vers":"0.1.0"}`), []byte("x"))
	_, err := Publish(body, idx, store, logr.Discard())
	assert.Error(t, err)
}

func TestPublishRejectsNonASCIIName(t *testing.T) {
	idx, store := setup(t)

	body := EncodeFrame([]byte(`{"name":"café","vers":"0.1.0"}`), []byte("x"))
	_, err := Publish(body, idx, store, logr.Discard())
	assert.Error(t, err)
}

func TestPublishIgnoresTrailingBytes(t *testing.T) {
	idx, store := setup(t)

	meta := []byte(`{"name":"my-lib","vers":"0.1.0","deps":[],"features":{}}`)
	body := EncodeFrame(meta, []byte("data"))
	body = append(body, 0x00, 0x00, 0x00)

	_, err := Publish(body, idx, store, logr.Discard())
	assert.NoError(t, err)
}
