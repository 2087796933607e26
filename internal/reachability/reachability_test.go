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

package reachability_test

import (
	"debug/dwarf"
	"testing"

	"github.com/cackle-rs/cackle-go/internal/crate"
	"github.com/cackle-rs/cackle-go/internal/object"
	"github.com/cackle-rs/cackle-go/internal/reachability"
	"github.com/cackle-rs/cackle-go/internal/symbolgraph"
)

type fakeView struct {
	id      string
	symbols []object.Symbol
	relocs  []object.Relocation
}

func (f *fakeView) ID() string                       { return f.id }
func (f *fakeView) Sections() []object.Section       { return []object.Section{{Index: 0, Name: ".text"}} }
func (f *fakeView) Symbols() []object.Symbol         { return f.symbols }
func (f *fakeView) Relocations() []object.Relocation { return f.relocs }
func (f *fakeView) DWARF() (*dwarf.Data, error)       { return nil, nil }
func (f *fakeView) Entry() (uint64, bool)             { return 0, false }
func (f *fakeView) DynamicSymbols() []object.Symbol   { return nil }

func reloc(offset uint64, to string) object.Relocation {
	return object.Relocation{SourceSection: 0, Offset: offset, Target: object.RelocationTarget{Symbol: to, HasSymbol: true}}
}

// chain: main -> used -> deeply_used ; dead is never referenced.
func buildChainGraph(t *testing.T) (*symbolgraph.Graph, map[string]symbolgraph.VertexID) {
	t.Helper()
	obj := &fakeView{
		id: "a.o",
		symbols: []object.Symbol{
			{Name: "main", Section: 0, Offset: 0},
			{Name: "used", Section: 0, Offset: 8},
			{Name: "deeply_used", Section: 0, Offset: 16},
			{Name: "dead", Section: 0, Offset: 24},
		},
		relocs: []object.Relocation{
			reloc(0, "used"),
			reloc(8, "deeply_used"),
		},
	}
	g, err := symbolgraph.Build([]object.View{obj})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	byName := map[string]symbolgraph.VertexID{}
	for _, v := range g.Vertices() {
		if v.Kind == symbolgraph.VertexNamed {
			byName[v.Symbol] = v.ID
		}
	}
	return g, byName
}

func TestComputeForwardClosure(t *testing.T) {
	g, byName := buildChainGraph(t)
	roots := reachability.Roots{Entry: []symbolgraph.VertexID{byName["main"]}}
	res := reachability.Compute(g, roots, nil, nil)

	for _, name := range []string{"main", "used", "deeply_used"} {
		if !res.Reachable(byName[name]) {
			t.Errorf("Reachable(%s) = false, want true", name)
		}
	}
	if res.Reachable(byName["dead"]) {
		t.Error("Reachable(dead) = true, want false")
	}
}

func TestBacktraceReconstructsPath(t *testing.T) {
	g, byName := buildChainGraph(t)
	roots := reachability.Roots{Entry: []symbolgraph.VertexID{byName["main"]}}
	res := reachability.Compute(g, roots, nil, nil)

	path := res.Backtrace(byName["deeply_used"])
	if len(path) == 0 {
		t.Fatal("Backtrace(deeply_used) is empty, want a path back to main")
	}
	if path[0] != byName["deeply_used"] {
		t.Errorf("Backtrace(deeply_used)[0] = %v, want the vertex itself first", path[0])
	}
	if path[len(path)-1] != byName["main"] {
		t.Errorf("Backtrace(deeply_used) last hop = %v, want main (%v)", path[len(path)-1], byName["main"])
	}
}

func TestBacktraceOfUnreachableVertexIsNil(t *testing.T) {
	g, byName := buildChainGraph(t)
	roots := reachability.Roots{Entry: []symbolgraph.VertexID{byName["main"]}}
	res := reachability.Compute(g, roots, nil, nil)

	if path := res.Backtrace(byName["dead"]); path != nil {
		t.Errorf("Backtrace(dead) = %v, want nil", path)
	}
}

// TestIgnoreUnreachableIsPerCrateNotTransitive covers the SPEC_FULL.md
// Open Question resolution: a crate's own ignore_unreachable flag only
// suppresses vertices reached from that crate's own named vertices, and
// does not propagate across a re-export boundary into a different crate's
// otherwise-dead code.
func TestIgnoreUnreachableIsPerCrateNotTransitive(t *testing.T) {
	// own_entry (crate A) -> reexported (crate A) -> other_dead (crate B)
	obj := &fakeView{
		id: "a.o",
		symbols: []object.Symbol{
			{Name: "own_entry", Section: 0, Offset: 0},
			{Name: "reexported", Section: 0, Offset: 8},
			{Name: "other_dead", Section: 0, Offset: 16},
		},
		relocs: []object.Relocation{
			reloc(0, "reexported"),
			reloc(8, "other_dead"),
		},
	}
	g, err := symbolgraph.Build([]object.View{obj})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	byName := map[string]symbolgraph.VertexID{}
	for _, v := range g.Vertices() {
		if v.Kind == symbolgraph.VertexNamed {
			byName[v.Symbol] = v.ID
		}
	}

	crateA := crate.ID{Package: "crate_a"}
	crateB := crate.ID{Package: "crate_b"}
	owner := func(v symbolgraph.VertexID) (crate.ID, bool) {
		switch g.Vertices()[v].Symbol {
		case "own_entry", "reexported":
			return crateA, true
		case "other_dead":
			return crateB, true
		default:
			return crate.ID{}, false
		}
	}

	res := reachability.Compute(g, reachability.Roots{}, owner, map[crate.ID]bool{crateA: true})

	if !res.SuppressedByOwnEntry(crateA, byName["own_entry"]) {
		t.Error("own_entry should itself be suppressed by crate_a's own ignore_unreachable flag")
	}
	if !res.SuppressedByOwnEntry(crateA, byName["reexported"]) {
		t.Error("reexported (still crate_a) should be suppressed via crate_a's own-entry closure")
	}
	if res.SuppressedByOwnEntry(crateB, byName["other_dead"]) {
		t.Error("other_dead belongs to crate_b, which never set ignore_unreachable, and must not be suppressed through crate_a's closure")
	}
}

func TestSuppressedByOwnEntryNeverOverridesRealReachability(t *testing.T) {
	g, byName := buildChainGraph(t)
	crateA := crate.ID{Package: "crate_a"}
	owner := func(v symbolgraph.VertexID) (crate.ID, bool) {
		if g.Vertices()[v].Symbol == "main" {
			return crateA, true
		}
		return crate.ID{}, false
	}
	roots := reachability.Roots{Entry: []symbolgraph.VertexID{byName["main"]}}
	res := reachability.Compute(g, roots, owner, map[crate.ID]bool{crateA: true})

	if res.SuppressedByOwnEntry(crateA, byName["used"]) {
		t.Error("a vertex reachable from the binary's real roots must never be suppressed by ignore_unreachable")
	}
}
