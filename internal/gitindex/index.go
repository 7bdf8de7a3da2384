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

// Package gitindex maintains the registry index as a git repository:
// staging and committing index and archive files, reconciling config.json
// against the server's bound address, and refreshing the repository's
// dumb-HTTP auxiliary files after every commit.
package gitindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-logr/logr"

	"github.com/ConfigButler/cargo-registry/internal/index"
	"github.com/ConfigButler/cargo-registry/internal/metrics"
)

const (
	commitAuthorName  = "cargo-registry"
	commitAuthorEmail = "noreply@cargo-registry.local"
)

// Index wraps a git repository that doubles as a registry index.
type Index struct {
	root string
	repo *git.Repository
	log  logr.Logger
}

// Open creates root if missing, initialises (or reuses) a git repository
// there, ensures an initial commit, reconciles config.json against addr,
// creates the index/ self-symlink, and refreshes the dumb-HTTP auxiliary
// files. It is safe to call repeatedly against the same root.
func Open(root, addr string, log logr.Logger) (*Index, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", root, err)
	}

	repo, err := git.PlainOpen(root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(root, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize git repository %s: %w", root, err)
	}

	idx := &Index{root: root, repo: repo, log: log}

	if err := idx.ensureHasCommit(); err != nil {
		return nil, err
	}
	if err := idx.ensureConfig(addr); err != nil {
		return nil, err
	}
	if err := idx.ensureIndexSymlink(); err != nil {
		return nil, err
	}
	if err := idx.updateServerInfo(); err != nil {
		return nil, err
	}

	return idx, nil
}

// Root returns the index's filesystem root.
func (idx *Index) Root() string {
	return idx.root
}

// Stage adds a path to the git staging area. Absolute paths are made
// relative to the index root; paths outside the root are rejected.
func (idx *Index) Stage(path string) error {
	rel, err := idx.relativize(path)
	if err != nil {
		return err
	}

	wt, err := idx.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to retrieve git repository index: %w", err)
	}
	if _, err := wt.Add(filepath.ToSlash(rel)); err != nil {
		return fmt.Errorf("failed to add file to git index: %w", err)
	}
	return nil
}

func (idx *Index) relativize(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return path, nil
	}
	rel, err := filepath.Rel(idx.root, path)
	if err != nil {
		return "", fmt.Errorf("failed to make %s relative to %s: %w", path, idx.root, err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s is outside of registry root %s", path, idx.root)
	}
	return rel, nil
}

// Commit creates a commit from the currently staged tree, using the
// previous HEAD (if any) as its sole parent, and refreshes the dumb-HTTP
// auxiliary files afterwards.
func (idx *Index) Commit(message string) error {
	wt, err := idx.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to retrieve git repository index object: %w", err)
	}

	now := time.Now()
	signature := &object.Signature{
		Name:  commitAuthorName,
		Email: commitAuthorEmail,
		When:  now,
	}

	if _, err := wt.Commit(message, &git.CommitOptions{
		Author:    signature,
		Committer: signature,
	}); err != nil {
		return fmt.Errorf("failed to create git commit: %w", err)
	}

	if metrics.GitCommitsTotal != nil {
		metrics.GitCommitsTotal.Add(context.Background(), 1)
	}

	return idx.updateServerInfo()
}

// TryReadPort best-effort reads the port the server bound to last time from
// a previously written config.json's "api" field.
func TryReadPort(root string) (int, error) {
	path := filepath.Join(root, "config.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open config.json: %w", err)
	}

	var cfg index.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("failed to parse config.json: %w", err)
	}

	if cfg.API == nil {
		return 0, errors.New("no API URL present in config")
	}
	return parsePort(*cfg.API)
}

// parsePort extracts the port from a "http(s)://host:port" URL, matching
// the authority-segment parsing the reference client performs.
func parsePort(url string) (int, error) {
	parts := strings.SplitN(url, "/", 4)
	if len(parts) < 3 {
		return 0, fmt.Errorf("provided URL %s has unexpected format", url)
	}
	authority := parts[2]

	_, portStr, err := net.SplitHostPort(authority)
	if err != nil {
		return 0, fmt.Errorf("provided URL %s has unexpected format: %w", url, err)
	}

	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0, fmt.Errorf("provided URL %s has unexpected format: %w", url, err)
	}
	return port, nil
}

// ensureHasCommit creates an initial empty commit if the repository has no
// HEAD yet.
func (idx *Index) ensureHasCommit() error {
	if _, err := idx.repo.Head(); err == nil {
		return nil
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("failed to inspect git repository HEAD: %w", err)
	}

	if err := idx.Commit("Create new repository for cargo registry"); err != nil {
		return fmt.Errorf("failed to create initial git commit: %w", err)
	}
	return nil
}

// ensureConfig creates or updates config.json so that its dl/api fields
// reflect addr, committing only when a change was actually necessary.
func (idx *Index) ensureConfig(addr string) error {
	path := filepath.Join(idx.root, "config.json")
	dl := fmt.Sprintf("http://%s/api/v1/crates/{crate}/{version}/download", addr)
	api := fmt.Sprintf("http://%s", addr)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg := index.Config{DL: dl, API: &api}
		if err := writeConfig(path, cfg); err != nil {
			return fmt.Errorf("failed to write config.json: %w", err)
		}
		if err := idx.Stage("config.json"); err != nil {
			return fmt.Errorf("failed to stage config.json file: %w", err)
		}
		if err := idx.Commit("Add initial config.json"); err != nil {
			return fmt.Errorf("failed to commit config.json: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to open/create config.json: %w", err)
	}

	var cfg index.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config.json: %w", err)
	}

	if cfg.DL == dl && cfg.API != nil && *cfg.API == api {
		return nil
	}

	cfg.DL = dl
	cfg.API = &api
	if err := writeConfig(path, cfg); err != nil {
		return fmt.Errorf("failed to reopen config.json: %w", err)
	}
	if err := idx.Stage("config.json"); err != nil {
		return fmt.Errorf("failed to stage config.json file: %w", err)
	}
	if err := idx.Commit("Update config.json"); err != nil {
		return fmt.Errorf("failed to commit config.json: %w", err)
	}
	return nil
}

func writeConfig(path string, cfg index.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ensureIndexSymlink creates the index/ -> . self-symlink, for
// interoperability with tooling that expects index data below index/, and
// commits it once.
func (idx *Index) ensureIndexSymlink() error {
	link := filepath.Join(idx.root, "index")

	if err := os.Symlink(".", link); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to create index/ symbolic link below %s: %w", idx.root, err)
	}

	if err := idx.Stage("index"); err != nil {
		return fmt.Errorf("failed to stage index symlink: %w", err)
	}
	if err := idx.Commit("Add index symlink"); err != nil {
		return fmt.Errorf("failed to commit index symlink: %w", err)
	}
	return nil
}

// updateServerInfo refreshes the repository's dumb-HTTP auxiliary files by
// shelling out to git, since no mature native Go git library exposes this
// operation.
func (idx *Index) updateServerInfo() error {
	cmd := exec.Command("git", "update-server-info")
	cmd.Dir = idx.root

	if out, err := cmd.CombinedOutput(); err != nil {
		idx.log.Error(err, "git update-server-info failed", "output", string(out))
		return fmt.Errorf("git update-server-info failed: %w", err)
	}
	return nil
}
