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
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ConfigButler/cargo-registry/internal/archive"
	"github.com/ConfigButler/cargo-registry/internal/gitindex"
	"github.com/ConfigButler/cargo-registry/internal/publish"
)

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	root := t.TempDir()
	idx, err := gitindex.Open(root, "127.0.0.1:0", logr.Discard())
	require.NoError(t, err)
	cell := NewIndexCell(idx)
	store := archive.NewStore(root)
	return New(root, cell, store, Metrics{}, logr.Discard()), root
}

func TestHandlePublishSuccess(t *testing.T) {
	h, root := newTestHandler(t)

	meta := []byte(`{"name":"my-lib","vers":"0.1.0","deps":[],"features":{}}`)
	body := publish.EncodeFrame(meta, []byte("crate-bytes"))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/crates/new", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	_, err := archive.NewStore(root).Read("my-lib", "0.1.0")
	assert.NoError(t, err)
}

func TestHandlePublishFailureUsesEnvelope(t *testing.T) {
	h, _ := newTestHandler(t)

	body := publish.EncodeFrame([]byte(`{"name":"","vers":"0.1.0"}`), []byte("x"))
	req := httptest.NewRequest(http.MethodPut, "/api/v1/crates/new", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errors"`)
	assert.Contains(t, rec.Body.String(), "crate name cannot be empty")
}

func TestHandleDownloadRedirects(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates/my-lib/0.1.0/download", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/crates/my-lib-0.1.0.crate", rec.Header().Get("Location"))
}

func TestHandleDownloadMalformedPath(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/crates/download", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

