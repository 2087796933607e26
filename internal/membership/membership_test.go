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

package membership_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cackle-rs/cackle-go/internal/crate"
	"github.com/cackle-rs/cackle-go/internal/membership"
)

func sortedIDs(ids []crate.ID) []crate.ID {
	out := append([]crate.ID{}, ids...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func TestParseManifest(t *testing.T) {
	id := crate.ID{Package: "serde", Kind: crate.KindPrimary}
	r := strings.NewReader("libserde.rlib: src/lib.rs src/de.rs src/ser.rs\n")

	got, err := membership.ParseManifest(id, r)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	want := membership.Manifest{
		Crate:   id,
		Target:  "libserde.rlib",
		Sources: []string{"src/lib.rs", "src/de.rs", "src/ser.rs"},
		Direct:  map[string]bool{"src/lib.rs": true, "src/de.rs": true, "src/ser.rs": true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseManifest() diff (-want +got):\n%s", diff)
	}
}

func TestParseManifestRejectsMalformedLine(t *testing.T) {
	id := crate.ID{Package: "serde", Kind: crate.KindPrimary}
	r := strings.NewReader("not a dep line at all\n")
	if _, err := membership.ParseManifest(id, r); err == nil {
		t.Fatal("ParseManifest() error = nil, want error for line without \": \" separator")
	}
}

func TestMapLookupUnknownFile(t *testing.T) {
	m := membership.New()
	if got := m.Lookup("src/never_seen.rs"); got != nil {
		t.Errorf("Lookup() on unknown file = %v, want nil", got)
	}
}

func TestMapLookupSingleOwner(t *testing.T) {
	m := membership.New()
	serde := crate.ID{Package: "serde", Kind: crate.KindPrimary}
	m.Add(membership.Manifest{
		Crate:   serde,
		Sources: []string{"src/lib.rs"},
		Direct:  map[string]bool{"src/lib.rs": true},
	})

	got := m.Lookup("src/lib.rs")
	want := []crate.ID{serde}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lookup() diff (-want +got):\n%s", diff)
	}
}

// TestMapLookupDirectWinsOverTransitive covers spec.md §4.C's tie-break: a
// crate that lists a file as a direct input wins over one that only lists
// it transitively, even though both manifests mention the file.
func TestMapLookupDirectWinsOverTransitive(t *testing.T) {
	m := membership.New()
	owner := crate.ID{Package: "owner", Kind: crate.KindPrimary}
	includer := crate.ID{Package: "includer", Kind: crate.KindPrimary}

	m.Add(membership.Manifest{
		Crate:   owner,
		Sources: []string{"shared/included.rs"},
		Direct:  map[string]bool{"shared/included.rs": true},
	})
	m.Add(membership.Manifest{
		Crate:   includer,
		Sources: []string{"shared/included.rs"},
		Direct:  map[string]bool{}, // pulled in via include!(), not a direct source
	})

	got := m.Lookup("shared/included.rs")
	want := []crate.ID{owner}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lookup() diff (-want +got):\n%s", diff)
	}
}

// TestMapLookupAmbiguousUnion covers spec.md §4.C/§9: when more than one
// crate claims a file directly (or none do), every match is returned so
// downstream attribution can union the resulting problems.
func TestMapLookupAmbiguousUnion(t *testing.T) {
	m := membership.New()
	a := crate.ID{Package: "crate_a", Kind: crate.KindPrimary}
	b := crate.ID{Package: "crate_b", Kind: crate.KindPrimary}

	for _, id := range []crate.ID{a, b} {
		m.Add(membership.Manifest{
			Crate:   id,
			Sources: []string{"shared/build.rs"},
			Direct:  map[string]bool{"shared/build.rs": true},
		})
	}

	got := sortedIDs(m.Lookup("shared/build.rs"))
	want := sortedIDs([]crate.ID{a, b})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lookup() diff (-want +got):\n%s", diff)
	}
}

// TestMapAddIsAppendOnly covers spec.md §5: adding a second manifest never
// removes an earlier crate's membership of a file it still legitimately
// owns, even across repeated Add calls for unrelated crates.
func TestMapAddIsAppendOnly(t *testing.T) {
	m := membership.New()
	first := crate.ID{Package: "first", Kind: crate.KindPrimary}
	second := crate.ID{Package: "second", Kind: crate.KindPrimary}

	m.Add(membership.Manifest{
		Crate:   first,
		Sources: []string{"src/a.rs"},
		Direct:  map[string]bool{"src/a.rs": true},
	})
	m.Add(membership.Manifest{
		Crate:   second,
		Sources: []string{"src/b.rs"},
		Direct:  map[string]bool{"src/b.rs": true},
	})

	if got := m.Lookup("src/a.rs"); len(got) != 1 || got[0] != first {
		t.Errorf("Lookup(src/a.rs) = %v, want [%v]", got, first)
	}
	if got := m.Lookup("src/b.rs"); len(got) != 1 || got[0] != second {
		t.Errorf("Lookup(src/b.rs) = %v, want [%v]", got, second)
	}
}
