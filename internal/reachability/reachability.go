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

// Package reachability is the Reachability Engine (spec.md §4.G): a
// forward closure from the binary's roots (entry symbol, dynamically
// exported symbols, proc-macro registrars) over the Symbol Graph.
//
// This is grounded on the teacher's enricher/reachability/rust package as
// a whole -- the closest thing in the pack to "decide which code is
// actually exercised, not merely present" -- generalized from the
// teacher's package-graph-of-advisories shape to a forward closure over
// symbolgraph.Graph vertices.
package reachability

import (
	"github.com/cackle-rs/cackle-go/internal/crate"
	"github.com/cackle-rs/cackle-go/internal/symbolgraph"
)

// Roots names the starting vertices for the forward closure.
type Roots struct {
	Entry              []symbolgraph.VertexID
	DynamicallyExported []symbolgraph.VertexID
	ProcMacroRegistrars []symbolgraph.VertexID
}

// All returns every root vertex, deduplicated.
func (r Roots) All() []symbolgraph.VertexID {
	seen := map[symbolgraph.VertexID]bool{}
	var out []symbolgraph.VertexID
	for _, set := range [][]symbolgraph.VertexID{r.Entry, r.DynamicallyExported, r.ProcMacroRegistrars} {
		for _, v := range set {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// OwnerFunc resolves a symbol graph vertex to the crate it belongs to, if
// known. The engine supplies this (engine.ownerFromIndex) via the
// Debug-Info Index and Crate-Membership Map; reachability itself stays
// graph-only.
type OwnerFunc func(v symbolgraph.VertexID) (crate.ID, bool)

// Result is the computed reachable set for one linked output.
type Result struct {
	graph     *symbolgraph.Graph
	reachable map[symbolgraph.VertexID]bool
	// parent records, for every vertex reached from the binary's real
	// roots, the edge it was first discovered through -- used to
	// reconstruct the backtrace spec.md §4.H's Problem record carries.
	parent map[symbolgraph.VertexID]symbolgraph.VertexID
	isRoot map[symbolgraph.VertexID]bool
	// ownEntry records, per crate with ignore_unreachable set, the
	// vertices reachable from that crate's own entry points (as opposed
	// to the binary's roots) -- spec.md §4.G's extended-pruning flag.
	ownEntry map[crate.ID]map[symbolgraph.VertexID]bool
}

// Compute performs the forward closure from roots, then -- for every
// crate named in ignoreUnreachable -- a second closure seeded from that
// crate's own vertices (found via owner), used to suppress API
// usage that is reachable only through a crate's own unused entry
// points (SPEC_FULL.md resolution: this pruning is per-crate and does
// not propagate across a re-export into another crate; see DESIGN.md).
func Compute(g *symbolgraph.Graph, roots Roots, owner OwnerFunc, ignoreUnreachable map[crate.ID]bool) *Result {
	reachable, parent := forwardClosure(g, roots.All())
	res := &Result{
		graph:     g,
		reachable: reachable,
		parent:    parent,
		isRoot:    map[symbolgraph.VertexID]bool{},
		ownEntry:  map[crate.ID]map[symbolgraph.VertexID]bool{},
	}
	for _, r := range roots.All() {
		res.isRoot[r] = true
	}
	if len(ignoreUnreachable) == 0 || owner == nil {
		return res
	}

	ownRoots := map[crate.ID][]symbolgraph.VertexID{}
	for _, v := range g.Vertices() {
		if v.Kind != symbolgraph.VertexNamed {
			continue
		}
		c, ok := owner(v.ID)
		if !ok || !ignoreUnreachable[c] {
			continue
		}
		ownRoots[c] = append(ownRoots[c], v.ID)
	}
	for c, rs := range ownRoots {
		set, _ := forwardClosure(g, rs)
		res.ownEntry[c] = set
	}
	return res
}

func forwardClosure(g *symbolgraph.Graph, roots []symbolgraph.VertexID) (map[symbolgraph.VertexID]bool, map[symbolgraph.VertexID]symbolgraph.VertexID) {
	visited := map[symbolgraph.VertexID]bool{}
	parent := map[symbolgraph.VertexID]symbolgraph.VertexID{}
	stack := append([]symbolgraph.VertexID{}, roots...)
	for _, r := range roots {
		visited[r] = true
	}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.Edges(v) {
			if !visited[next] {
				visited[next] = true
				parent[next] = v
				stack = append(stack, next)
			}
		}
	}
	return visited, parent
}

// Backtrace reconstructs the path of reverse edges from v back to the
// root that first discovered it, innermost (v itself) first, matching
// spec.md §4.H's backtrace field. Returns nil if v is not reachable from
// a real root.
func (res *Result) Backtrace(v symbolgraph.VertexID) []symbolgraph.VertexID {
	if !res.reachable[v] {
		return nil
	}
	path := []symbolgraph.VertexID{v}
	for !res.isRoot[v] {
		p, ok := res.parent[v]
		if !ok {
			break
		}
		path = append(path, p)
		v = p
	}
	return path
}

// Reachable reports whether v survived the forward closure from the
// binary's roots. Vertices outside the closure are "dead" and suppressed
// from API-attribution output, but not from unsafe detection, which is
// source-based (spec.md §4.G).
func (res *Result) Reachable(v symbolgraph.VertexID) bool {
	return res.reachable[v]
}

// SuppressedByOwnEntry reports whether v's only path to a root runs
// through owningCrate's own entry points rather than the binary's real
// roots, when owningCrate has ignore_unreachable set. A vertex reachable
// from the binary's actual roots is never suppressed this way, even if
// it is also reachable from the crate's own entries.
func (res *Result) SuppressedByOwnEntry(owningCrate crate.ID, v symbolgraph.VertexID) bool {
	if res.reachable[v] {
		// Already reachable from a real root; ignore_unreachable only
		// ever removes vertices that would otherwise be dead.
		return false
	}
	return res.ownEntry[owningCrate][v]
}
