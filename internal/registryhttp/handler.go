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

// Package registryhttp exposes the registry's HTTP surface: the dumb-HTTP
// git transport, static crate downloads, and the cargo publish API.
package registryhttp

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ConfigButler/cargo-registry/internal/archive"
	"github.com/ConfigButler/cargo-registry/internal/gitindex"
	"github.com/ConfigButler/cargo-registry/internal/publish"
)

const maxPublishBodyBytes = 20 << 20 // 20 MiB

var _ http.Handler = (*Handler)(nil)

// Handler is the registry's HTTP surface, a *http.ServeMux with named
// handlers registered on it.
type Handler struct {
	*http.ServeMux

	cell  *IndexCell
	store *archive.Store
	log   logr.Logger

	publishRequests  metric.Int64Counter
	downloadRequests metric.Int64Counter
	publishDuration  metric.Float64Histogram
}

// Metrics groups the instruments the handler records against. Any nil
// instrument is skipped, so tests may construct a Handler without a
// metrics provider wired up.
type Metrics struct {
	PublishRequests  metric.Int64Counter
	DownloadRequests metric.Int64Counter
	PublishDuration  metric.Float64Histogram
}

// New builds the registry's HTTP handler rooted at root, serving the git
// repository under /git, crate archives under /crates, and the cargo
// publish API under /api/v1.
func New(root string, cell *IndexCell, store *archive.Store, m Metrics, log logr.Logger) *Handler {
	h := &Handler{
		cell:             cell,
		store:            store,
		log:              log,
		publishRequests:  m.PublishRequests,
		downloadRequests: m.DownloadRequests,
		publishDuration:  m.PublishDuration,
	}

	mux := http.NewServeMux()
	mux.Handle("/git/", http.StripPrefix("/git/", http.FileServer(http.Dir(filepath.Join(root, ".git")))))
	mux.Handle("/crates/", http.StripPrefix("/crates/", http.FileServer(http.Dir(root))))
	mux.HandleFunc("/api/v1/crates/new", h.handlePublish)
	mux.HandleFunc("/api/v1/crates/", h.handleDownload)
	h.ServeMux = mux

	return h
}

// handleDownload serves GET /api/v1/crates/{name}/{version}/download by
// redirecting to the static crate file; URL parameters are not validated
// before being interpolated, matching the reference server's tolerance of
// path-traversal, which the static layer is responsible for rejecting.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	name, version, ok := parseDownloadPath(r.URL.Path)
	if !ok {
		h.recordDownload(r, false)
		http.NotFound(w, r)
		return
	}

	h.recordDownload(r, true)
	target := fmt.Sprintf("/crates/%s-%s.crate", name, version)
	http.Redirect(w, r, target, http.StatusFound)
}

// parseDownloadPath extracts {name} and {version} from
// /api/v1/crates/{name}/{version}/download.
func parseDownloadPath(path string) (name, version string, ok bool) {
	const prefix = "/api/v1/crates/"
	const suffix = "/download"
	if len(path) <= len(prefix)+len(suffix) {
		return "", "", false
	}
	if path[:len(prefix)] != prefix || path[len(path)-len(suffix):] != suffix {
		return "", "", false
	}
	middle := path[len(prefix) : len(path)-len(suffix)]

	for i := len(middle) - 1; i >= 0; i-- {
		if middle[i] == '/' {
			name, version = middle[:i], middle[i+1:]
			return name, version, name != "" && version != ""
		}
	}
	return "", "", false
}

// handlePublish serves PUT /api/v1/crates/new.
func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxPublishBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.finishPublish(w, r, start, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	err = h.cell.With(func(idx *gitindex.Index) error {
		_, pubErr := publish.Publish(body, idx, h.store, h.log.WithName("publish"))
		return pubErr
	})

	h.finishPublish(w, r, start, err)
}

func (h *Handler) finishPublish(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		writeError(w, err)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if h.publishRequests != nil {
		h.publishRequests.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if h.publishDuration != nil {
		h.publishDuration.Record(r.Context(), time.Since(start).Seconds())
	}
}

func (h *Handler) recordDownload(r *http.Request, ok bool) {
	if h.downloadRequests == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	h.downloadRequests.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
