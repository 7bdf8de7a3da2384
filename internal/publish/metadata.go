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

import "github.com/ConfigButler/cargo-registry/internal/index"

// wireDep is a single dependency exactly as the client sends it.
type wireDep struct {
	// Name is the dependency's original package name. If the dependency is
	// renamed in the manifest, ExplicitNameInTOML carries the rename.
	Name               string   `json:"name"`
	VersionReq         string   `json:"version_req"`
	Features           []string `json:"features"`
	Optional           bool     `json:"optional"`
	DefaultFeatures    bool     `json:"default_features"`
	Target             *string  `json:"target"`
	Kind               string   `json:"kind"`
	Registry           *string  `json:"registry"`
	ExplicitNameInTOML *string  `json:"explicit_name_in_toml"`
}

// toIndexDep maps a wire dependency onto the stored index form. The
// mapping is mechanical except for the name/package pair: the wire name is
// carried straight into the stored name, and ExplicitNameInTOML straight
// into package, without swapping them -- see DESIGN.md for why this
// asymmetry is intentional.
func (d wireDep) toIndexDep() index.Dep {
	return index.Dep{
		Name:            d.Name,
		Req:             d.VersionReq,
		Features:        emptyIfNil(d.Features),
		Optional:        d.Optional,
		DefaultFeatures: d.DefaultFeatures,
		Target:          d.Target,
		Kind:            d.Kind,
		Registry:        d.Registry,
		Package:         d.ExplicitNameInTOML,
	}
}

// metadata is the JSON body a publish request carries, restricted to the
// fields the registry actually stores plus the set of fields the client may
// send and that are silently ignored.
type metadata struct {
	Name     string              `json:"name"`
	Vers     string              `json:"vers"`
	Deps     []wireDep           `json:"deps"`
	Features map[string][]string `json:"features"`
	Links    *string             `json:"links"`

	// Ignored fields the client commonly sends. Present here only so that
	// json.Unmarshal does not need DisallowUnknownFields, matching the
	// reference registry's tolerant parsing.
	Authors       []string            `json:"authors"`
	Description   *string             `json:"description"`
	Documentation *string             `json:"documentation"`
	Homepage      *string             `json:"homepage"`
	Readme        *string             `json:"readme"`
	ReadmeFile    *string             `json:"readme_file"`
	Keywords      []string            `json:"keywords"`
	Categories    []string            `json:"categories"`
	License       *string             `json:"license"`
	LicenseFile   *string             `json:"license_file"`
	Repository    *string             `json:"repository"`
	Badges        map[string]any      `json:"badges"`
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// toEntry builds the index entry that publish appends, given the SHA-256
// hex checksum of the stored archive bytes.
func (m metadata) toEntry(cksum string) index.Entry {
	deps := make([]index.Dep, 0, len(m.Deps))
	for _, d := range m.Deps {
		deps = append(deps, d.toIndexDep())
	}

	features := m.Features
	if features == nil {
		features = map[string][]string{}
	}

	return index.Entry{
		Name:     m.Name,
		Vers:     m.Vers,
		Deps:     deps,
		Cksum:    cksum,
		Features: features,
		Yanked:   false,
		Links:    m.Links,
	}
}
