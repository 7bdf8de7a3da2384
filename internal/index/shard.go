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

// Package index defines the on-disk schema of the registry index: the
// sharded path convention, the per-version entry shape, and the registry
// config file.
package index

import "path"

// ShardPath infers the path to a package's index file, relative to the
// registry root, from its name. Only the leading up-to-four bytes of the
// name matter; the result is never lowercased.
func ShardPath(name string) string {
	b := []byte(name)
	switch {
	case len(b) == 0:
		panic("index: ShardPath called with empty name")
	case len(b) == 1:
		return "1"
	case len(b) == 2:
		return "2"
	case len(b) == 3:
		return path.Join("3", string(b[0:1]))
	default:
		return path.Join(string(b[0:2]), string(b[2:4]))
	}
}

// EntryPath infers the full relative path of a package's index file,
// <shard>/<name>, relative to the registry root.
func EntryPath(name string) string {
	return path.Join(ShardPath(name), name)
}

// CrateFileName builds the archive file name for a package at a given
// version: <name>-<version>.crate.
func CrateFileName(name, version string) string {
	return name + "-" + version + ".crate"
}
