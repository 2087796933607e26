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

// Package crate holds the crate identity and permission model: a crate is
// a package name plus a kind (primary/build-script/test/proc-macro), and
// each crate has a permission set inherited along the
// pkg -> pkg.dep.build -> pkg.build chain (and the test analogue).
package crate

import "fmt"

// Kind distinguishes the four compilation roles a crate can be compiled
// under. The same package name can appear under more than one Kind within
// a single build (e.g. compiled once as a dependency, once as its own
// test binary).
type Kind int

// Kind values.
const (
	KindPrimary Kind = iota
	KindBuildScript
	KindTest
	KindProcMacro
)

// String renders a Kind the way config keys reference it.
func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindBuildScript:
		return "build"
	case KindTest:
		return "test"
	case KindProcMacro:
		return "proc-macro"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ID identifies a crate by package name and kind. It is deterministic
// across runs: permission lookups and Problem ordering (spec §5) depend on
// it never containing anything generated at runtime (contrast with the
// RPC link_id, which is a UUID minted per analysis run).
type ID struct {
	Package string
	Kind    Kind
}

// String renders an ID the way config [pkg.<name>] sections and nested
// build/test/dep.build/dep.test overrides address it.
func (id ID) String() string {
	if id.Kind == KindPrimary {
		return id.Package
	}
	return id.Package + "." + id.Kind.String()
}

// Crate owns a set of source file paths derived from its dependency
// manifest (internal/membership builds this set; Crate itself is a plain
// value type so permission resolution doesn't need to touch the
// membership map).
type Crate struct {
	ID ID
	// Dep, if non-empty, is the package name of the crate this one is a
	// build-script or test dependency *of* -- only meaningful for
	// KindBuildScript/KindTest crates reached via another package's
	// dependency edge, used to resolve the dep.build/dep.test overrides.
	Dep string
}

// PermissionSet is the effective (resolved) permission state for one
// crate. It never forbids/allows anything implicitly: a crate with no
// matching config entry gets the zero value (no unsafe, no APIs), which
// is the conservative default spec.md implies by only ever *granting*
// permissions explicitly.
type PermissionSet struct {
	AllowUnsafe      bool
	AllowAPIs        map[string]bool
	IgnoreUnreachable bool
}

// Allows reports whether api is in the allow-list.
func (p PermissionSet) Allows(api string) bool {
	return p.AllowAPIs[api]
}

// Merge overlays override on top of p, returning a new PermissionSet.
// AllowUnsafe and IgnoreUnreachable are OR'd (an override can only grant,
// never revoke, matching the inheritance direction pkg -> pkg.dep.build:
// a stricter outer scope can't un-grant what a more specific override
// allowed). AllowAPIs is unioned.
func (p PermissionSet) Merge(override PermissionSet) PermissionSet {
	out := PermissionSet{
		AllowUnsafe:       p.AllowUnsafe || override.AllowUnsafe,
		IgnoreUnreachable: p.IgnoreUnreachable || override.IgnoreUnreachable,
		AllowAPIs:         make(map[string]bool, len(p.AllowAPIs)+len(override.AllowAPIs)),
	}
	for k := range p.AllowAPIs {
		out.AllowAPIs[k] = true
	}
	for k := range override.AllowAPIs {
		out.AllowAPIs[k] = true
	}
	return out
}
