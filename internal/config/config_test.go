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

package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/cackle-rs/cackle-go/internal/config"
	"github.com/cackle-rs/cackle-go/internal/crate"
)

const validDoc = `
[common]
version = 2

[sandbox]
kind = "Bubblewrap"
allow_network = false

[api.process]
include = ["std.process"]

[pkg.libc]
allow_unsafe = true

[pkg.serde]
allow_apis = ["process"]

[pkg.serde.build]
allow_unsafe = true

[pkg.serde.dep.build]
allow_apis = ["fs"]
`

func TestDecode(t *testing.T) {
	f, err := config.Decode(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Common.Version != 2 {
		t.Errorf("Common.Version = %d, want 2", f.Common.Version)
	}
	if f.Sandbox.Kind != "Bubblewrap" {
		t.Errorf("Sandbox.Kind = %q, want Bubblewrap", f.Sandbox.Kind)
	}
	if !f.Pkg["libc"].AllowUnsafe {
		t.Error("Pkg[libc].AllowUnsafe = false, want true")
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	doc := "[common]\nversion = 99\n"
	_, err := config.Decode(strings.NewReader(doc))
	if !errors.Is(err, config.ErrUnsupportedVersion) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeRejectsUnknownImportStd(t *testing.T) {
	doc := "import_std = [\"not_a_real_bundle\"]\n[common]\nversion = 1\n"
	_, err := config.Decode(strings.NewReader(doc))
	if !errors.Is(err, config.ErrUnknownImportStd) {
		t.Errorf("Decode() error = %v, want ErrUnknownImportStd", err)
	}
}

func TestAPIsExpandsImportStd(t *testing.T) {
	doc := "import_std = [\"fs_net_process\"]\n[common]\nversion = 1\n\n[api.fs]\ninclude = [\"custom.fs.path\"]\n"
	f, err := config.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	apis := f.APIs()
	fs, ok := apis["fs"]
	if !ok {
		t.Fatal(`APIs()["fs"] missing, want bundle-expanded entry`)
	}
	wantIncludes := map[string]bool{"std.fs": true, "std.path": true, "custom.fs.path": true}
	for _, inc := range fs.Include {
		if !wantIncludes[inc] {
			t.Errorf("unexpected include rule %q in merged fs API", inc)
		}
		delete(wantIncludes, inc)
	}
	if len(wantIncludes) != 0 {
		t.Errorf("missing expected include rules: %v", wantIncludes)
	}
	if _, ok := apis["net"]; !ok {
		t.Error(`APIs()["net"] missing from fs_net_process bundle expansion`)
	}
	if _, ok := apis["process"]; !ok {
		t.Error(`APIs()["process"] missing from fs_net_process bundle expansion`)
	}
}

// TestResolveInheritanceChain covers the pkg -> pkg.build step of spec.md
// §3's inheritance chain for a build-script compile with no depender
// package (so no pkg.dep.build override applies): a later link in the
// chain can only grant additional permissions.
func TestResolveInheritanceChain(t *testing.T) {
	f, err := config.Decode(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	// serde's own crate gets allow_apis=["process"] from [pkg.serde], plus
	// allow_unsafe from [pkg.serde.build] for its build-script compile.
	perm := f.Resolve("serde", crate.KindBuildScript, "")
	if !perm.AllowUnsafe {
		t.Error("Resolve(serde, build, \"\").AllowUnsafe = false, want true (from [pkg.serde.build])")
	}
	if !perm.Allows("process") {
		t.Error("Resolve(serde, build, \"\").Allows(process) = false, want true (inherited from [pkg.serde])")
	}
}

// TestResolveImportNamespacesSourceCrate covers spec.md §4.E point 4:
// "import from another crate namespaces imported API names with the
// source crate". pkg.wrapper imports pkg.json_parser's allow_apis, which
// should show up both under the bare name (so an existing allow_apis
// check still recognizes it) and under "json_parser::<api>" (so it's
// distinguishable from an API wrapper grants itself).
func TestResolveImportNamespacesSourceCrate(t *testing.T) {
	doc := `
[common]
version = 2

[pkg.json_parser]
allow_apis = ["fs"]

[pkg.wrapper]
import = ["json_parser"]
`
	f, err := config.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	perm := f.Resolve("wrapper", crate.KindPrimary, "")
	if !perm.Allows("fs") {
		t.Error(`Resolve(wrapper).Allows("fs") = false, want true (inherited via import)`)
	}
	if !perm.Allows("json_parser::fs") {
		t.Error(`Resolve(wrapper).Allows("json_parser::fs") = false, want true (namespaced import form)`)
	}
	if f.Resolve("json_parser", crate.KindPrimary, "").Allows("json_parser::fs") {
		t.Error(`Resolve(json_parser) should not itself carry the namespaced form it exports`)
	}
}

// TestResolveImportCycleTerminates guards the recursive import walk
// against a direct cycle -- a misconfigured doc shouldn't hang Resolve.
func TestResolveImportCycleTerminates(t *testing.T) {
	doc := `
[common]
version = 2

[pkg.a]
allow_apis = ["fs"]
import = ["b"]

[pkg.b]
allow_apis = ["net"]
import = ["a"]
`
	f, err := config.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	perm := f.Resolve("a", crate.KindPrimary, "")
	if !perm.Allows("net") || !perm.Allows("b::net") {
		t.Error(`Resolve(a) should inherit b's "net" API (directly and namespaced) despite the import cycle`)
	}
}

func TestResolveUnknownPackageIsZeroValue(t *testing.T) {
	f, err := config.Decode(strings.NewReader(validDoc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	perm := f.Resolve("never_configured", crate.KindPrimary, "")
	if perm.AllowUnsafe {
		t.Error("Resolve() of an unconfigured package granted AllowUnsafe, want conservative default")
	}
	if perm.Allows("process") {
		t.Error("Resolve() of an unconfigured package granted an API, want conservative default")
	}
}
