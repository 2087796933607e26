// Copyright 2026 The Cackle-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config decodes the key-value configuration document described in
// spec.md §6 ([common], [sandbox], [api.<name>], [pkg.<name>]) and resolves
// per-crate effective permission sets from it.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/cackle-rs/cackle-go/internal/crate"
)

// ErrUnsupportedVersion is returned when [common].version is not 1 or 2.
var ErrUnsupportedVersion = errors.New("config: unsupported [common].version")

// ErrUnknownImportStd is returned when import_std names a bundle that
// internal/config/stdbundles.go doesn't define.
var ErrUnknownImportStd = errors.New("config: unknown import_std bundle")

// CommonConfig is the [common] section.
type CommonConfig struct {
	Version    int      `toml:"version"`
	Features   []string `toml:"features"`
	BuildFlags []string `toml:"build_flags"`
	Profile    string   `toml:"profile"`
}

// SandboxConfig is the [sandbox] section. The sandbox itself is an
// external collaborator (spec.md §1 Non-goals); this struct only carries
// the config through to the RPC BuildScriptRun response (§6).
type SandboxConfig struct {
	Kind         string   `toml:"kind" json:"kind"` // "Bubblewrap" | "Disabled"
	AllowNetwork bool     `toml:"allow_network" json:"allow_network"`
	BindWritable []string `toml:"bind_writable" json:"bind_writable"`
	MakeWritable []string `toml:"make_writable" json:"make_writable"`
}

// APIConfig is one [api.<name>] section.
type APIConfig struct {
	Include      []string `toml:"include"`
	Exclude      []string `toml:"exclude"`
	NoAutoDetect []string `toml:"no_auto_detect"`
}

// PkgOverride is the shape shared by [pkg.<name>.build], [pkg.<name>.test],
// [pkg.<name>.dep.build] and [pkg.<name>.dep.test].
type PkgOverride struct {
	AllowUnsafe       bool     `toml:"allow_unsafe"`
	AllowAPIs         []string `toml:"allow_apis"`
	IgnoreUnreachable bool     `toml:"ignore_unreachable"`
}

// DepOverride is the [pkg.<name>.dep] table, holding the overrides this
// package grants to its own direct dependencies' build-scripts/tests.
type DepOverride struct {
	Build *PkgOverride `toml:"build"`
	Test  *PkgOverride `toml:"test"`
}

// PkgConfig is one [pkg.<name>] section.
type PkgConfig struct {
	AllowUnsafe       bool         `toml:"allow_unsafe"`
	AllowAPIs         []string     `toml:"allow_apis"`
	Import            []string     `toml:"import"`
	IgnoreUnreachable bool         `toml:"ignore_unreachable"`
	Build             *PkgOverride `toml:"build"`
	Test              *PkgOverride `toml:"test"`
	Dep               *DepOverride `toml:"dep"`
}

// File is the whole decoded configuration document.
type File struct {
	Common    CommonConfig         `toml:"common"`
	Sandbox   SandboxConfig        `toml:"sandbox"`
	API       map[string]APIConfig `toml:"api"`
	Pkg       map[string]PkgConfig `toml:"pkg"`
	ImportStd []string             `toml:"import_std"`
}

// Load decodes a configuration file from disk and validates the
// [common].version field.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %q: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a configuration document from r, the same
// toml.NewDecoder(...).Decode(...) shape used throughout the corpus's TOML
// manifest extractors.
func Decode(r io.Reader) (*File, error) {
	var parsed File
	if _, err := toml.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("config: decoding toml: %w", err)
	}
	if parsed.Common.Version != 1 && parsed.Common.Version != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, parsed.Common.Version)
	}
	for _, name := range parsed.ImportStd {
		if _, ok := stdBundles[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownImportStd, name)
		}
	}
	return &parsed, nil
}

// apiConfigFor merges import_std bundles into the explicit [api.<name>]
// table, returning the effective include/exclude rules keyed by API name.
func (f *File) apiConfigFor() map[string]APIConfig {
	out := make(map[string]APIConfig, len(f.API))
	for _, bundle := range f.ImportStd {
		for name, rules := range stdBundles[bundle] {
			out[name] = rules
		}
	}
	for name, rules := range f.API {
		existing := out[name]
		existing.Include = append(existing.Include, rules.Include...)
		existing.Exclude = append(existing.Exclude, rules.Exclude...)
		existing.NoAutoDetect = append(existing.NoAutoDetect, rules.NoAutoDetect...)
		out[name] = existing
	}
	return out
}

// APIs returns the effective API rule set (explicit config plus expanded
// import_std bundles), ready to feed internal/apimatch.
func (f *File) APIs() map[string]APIConfig {
	return f.apiConfigFor()
}

// importedAllowAPIs resolves pc.Import transitively: spec.md §4.E point 4
// says "import from another crate namespaces imported API names with the
// source crate", so each API name granted by a source crate's own
// [pkg.<src>] allow_apis is folded in twice -- once under its bare name,
// so an existing allow_apis/Allows() check keeps working unmodified, and
// once under "<src>::<api>", so a Problem or audit can tell an inherited
// grant apart from one this package declared itself. visited seeds with
// the importing package's own name so an import cycle (direct or
// transitive) terminates instead of recursing forever.
func (f *File) importedAllowAPIs(pkgName string, visited map[string]bool) map[string]bool {
	out := map[string]bool{}
	pc, ok := f.Pkg[pkgName]
	if !ok {
		return out
	}
	for _, src := range pc.Import {
		if visited[src] {
			continue
		}
		visited[src] = true
		for _, api := range f.Pkg[src].AllowAPIs {
			out[api] = true
			out[src+"::"+api] = true
		}
		for api := range f.importedAllowAPIs(src, visited) {
			out[api] = true
		}
	}
	return out
}

// Resolve computes the effective crate.PermissionSet for a package
// compiled under kind, optionally as a build/test dependency pulled in by
// dependerPkg (empty when the crate is being compiled standalone, i.e. its
// own primary/build/test artifact rather than a dependency's).
//
// Inheritance chain (spec.md §3): pkg -> pkg.dep.build -> pkg.build, and
// the test analogue. A later link in the chain can only grant additional
// permissions, never revoke ones granted earlier (crate.PermissionSet.Merge).
func (f *File) Resolve(pkgName string, kind crate.Kind, dependerPkg string) crate.PermissionSet {
	pc := f.Pkg[pkgName]
	base := crate.PermissionSet{
		AllowUnsafe:       pc.AllowUnsafe,
		IgnoreUnreachable: pc.IgnoreUnreachable,
		AllowAPIs:         toSet(pc.AllowAPIs),
	}
	for api := range f.importedAllowAPIs(pkgName, map[string]bool{pkgName: true}) {
		base.AllowAPIs[api] = true
	}

	switch kind {
	case crate.KindPrimary:
		return base

	case crate.KindBuildScript:
		result := base.Merge(overrideToSet(pc.Build))
		if dependerPkg != "" {
			if dep := f.Pkg[dependerPkg].Dep; dep != nil {
				result = result.Merge(overrideToSet(dep.Build))
			}
		}
		return result

	case crate.KindTest:
		result := base.Merge(overrideToSet(pc.Test))
		if dependerPkg != "" {
			if dep := f.Pkg[dependerPkg].Dep; dep != nil {
				result = result.Merge(overrideToSet(dep.Test))
			}
		}
		return result

	case crate.KindProcMacro:
		return base

	default:
		return base
	}
}

func overrideToSet(o *PkgOverride) crate.PermissionSet {
	if o == nil {
		return crate.PermissionSet{AllowAPIs: map[string]bool{}}
	}
	return crate.PermissionSet{
		AllowUnsafe:       o.AllowUnsafe,
		IgnoreUnreachable: o.IgnoreUnreachable,
		AllowAPIs:         toSet(o.AllowAPIs),
	}
}

func toSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}
