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

// Package symbolgraph builds the Symbol Graph (spec.md §4.F): a directed
// graph over every relocation in a linked output's contributing objects,
// with anonymous (symbol-less) sections collapsed by a memoized recursive
// closure so that shared vtables/statics don't explode into a cross
// product of edges.
//
// No graph library exists anywhere in the retrieved example pack, and the
// vertex/edge shape here (arena of vertices by integer index, adjacency
// lists) is prescribed directly by spec.md §4.F's own implementation
// hint, so this is built on plain slices and maps rather than a
// third-party graph package (see DESIGN.md).
package symbolgraph

import (
	"fmt"
	"sort"

	"github.com/cackle-rs/cackle-go/internal/object"
)

// VertexKind distinguishes a real symbol from a synthetic vertex standing
// in for a symbol-less section (anonymous data: vtables, statics,
// string literals).
type VertexKind int

const (
	VertexNamed VertexKind = iota
	VertexAnonymous
	VertexUnresolved
)

// VertexID indexes into Graph's vertex arena.
type VertexID int

// Vertex is one node of the symbol graph.
type Vertex struct {
	ID      VertexID
	Kind    VertexKind
	Object  string // object.View.ID(), empty for the singleton Unresolved vertex
	Section int    // section index within Object, for Anonymous vertices
	Symbol  string // symbol name, for Named vertices
	Addr    uint64
}

// Graph is the built symbol graph for one linked output.
type Graph struct {
	vertices []Vertex
	adj      map[VertexID]map[VertexID]bool

	named        map[string]VertexID
	anon         map[anonKey]VertexID
	unresolvedID VertexID
	hasUnresolved bool

	Warnings []string
}

type anonKey struct {
	object  string
	section int
}

func newGraph() *Graph {
	return &Graph{
		adj:   map[VertexID]map[VertexID]bool{},
		named: map[string]VertexID{},
		anon:  map[anonKey]VertexID{},
	}
}

func (g *Graph) addVertex(v Vertex) VertexID {
	v.ID = VertexID(len(g.vertices))
	g.vertices = append(g.vertices, v)
	return v.ID
}

func (g *Graph) namedVertex(name string, addr uint64, objID string) VertexID {
	if id, ok := g.named[name]; ok {
		return id
	}
	id := g.addVertex(Vertex{Kind: VertexNamed, Symbol: name, Addr: addr, Object: objID})
	g.named[name] = id
	return id
}

func (g *Graph) anonymousVertex(objID string, section int, addr uint64) VertexID {
	key := anonKey{objID, section}
	if id, ok := g.anon[key]; ok {
		return id
	}
	id := g.addVertex(Vertex{Kind: VertexAnonymous, Object: objID, Section: section, Addr: addr})
	g.anon[key] = id
	return id
}

func (g *Graph) unresolvedVertex() VertexID {
	if g.hasUnresolved {
		return g.unresolvedID
	}
	g.unresolvedID = g.addVertex(Vertex{Kind: VertexUnresolved})
	g.hasUnresolved = true
	return g.unresolvedID
}

func (g *Graph) addEdge(from, to VertexID) {
	if from == to {
		return
	}
	set, ok := g.adj[from]
	if !ok {
		set = map[VertexID]bool{}
		g.adj[from] = set
	}
	set[to] = true
}

// Vertices returns the graph's vertex arena, indexed by VertexID.
func (g *Graph) Vertices() []Vertex { return g.vertices }

// Edges returns the direct successors of v, including edges into
// anonymous vertices.
func (g *Graph) Edges(v VertexID) []VertexID {
	set := g.adj[v]
	out := make([]VertexID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type secSymbols struct {
	symbols []object.Symbol // sorted by Offset ascending
}

// Build scans every relocation in objs and constructs the directed
// symbol graph, per spec.md §4.F.
func Build(objs []object.View) (*Graph, error) {
	g := newGraph()

	// Pass 1: register every defined symbol as a named vertex, and index
	// per-(object,section) symbol lists for "from" vertex resolution.
	bySection := map[string]map[int]*secSymbols{}
	for _, ov := range objs {
		id := ov.ID()
		bySection[id] = map[int]*secSymbols{}
		for _, sym := range ov.Symbols() {
			if sym.Section < 0 {
				continue
			}
			ss, ok := bySection[id][sym.Section]
			if !ok {
				ss = &secSymbols{}
				bySection[id][sym.Section] = ss
			}
			ss.symbols = append(ss.symbols, sym)
			if sym.Name != "" {
				g.namedVertex(sym.Name, sym.Offset, id)
			}
		}
	}
	for _, secs := range bySection {
		for _, ss := range secs {
			sort.Slice(ss.symbols, func(i, j int) bool { return ss.symbols[i].Offset < ss.symbols[j].Offset })
		}
	}

	// Pass 2: walk relocations, resolving "from" and "to" vertices.
	for _, ov := range objs {
		id := ov.ID()
		secIndex := map[int]object.Section{}
		for _, s := range ov.Sections() {
			secIndex[s.Index] = s
		}
		for _, reloc := range ov.Relocations() {
			from := g.resolveFrom(id, reloc.SourceSection, reloc.Offset, bySection[id], secIndex)
			to := g.resolveTo(id, reloc.Target, secIndex)
			g.addEdge(from, to)
		}
	}

	if err := g.expandAnonymous(); err != nil {
		return nil, fmt.Errorf("symbolgraph: %w", err)
	}
	return g, nil
}

// resolveFrom finds the lowest-addressed symbol in sourceSection covering
// offset; if the section defines no symbols, it is a synthetic vertex.
func (g *Graph) resolveFrom(objID string, sourceSection int, offset uint64, bySection map[int]*secSymbols, secIndex map[int]object.Section) VertexID {
	ss, ok := bySection[sourceSection]
	if !ok || len(ss.symbols) == 0 {
		addr := uint64(0)
		if s, ok := secIndex[sourceSection]; ok {
			addr = s.Addr
		}
		return g.anonymousVertex(objID, sourceSection, addr)
	}
	// Lowest-addressed symbol covering offset: the last symbol whose
	// Offset <= offset (symbols are sorted ascending), falling back to
	// the first symbol in the section if offset precedes all of them.
	best := ss.symbols[0]
	for _, sym := range ss.symbols {
		if sym.Offset <= offset {
			best = sym
		} else {
			break
		}
	}
	if best.Name == "" {
		addr := uint64(0)
		if s, ok := secIndex[sourceSection]; ok {
			addr = s.Addr
		}
		return g.anonymousVertex(objID, sourceSection, addr)
	}
	return g.namedVertex(best.Name, best.Offset, objID)
}

func (g *Graph) resolveTo(objID string, target object.RelocationTarget, secIndex map[int]object.Section) VertexID {
	if target.HasSymbol {
		return g.namedVertex(target.Symbol, 0, objID)
	}
	if target.Section >= 0 {
		addr := uint64(0)
		if s, ok := secIndex[target.Section]; ok {
			addr = s.Addr
		}
		return g.anonymousVertex(objID, target.Section, addr)
	}
	return g.unresolvedVertex()
}

// expandAnonymous implements spec.md §4.F's transitive-closure rule: for
// every source vertex with an edge into an anonymous vertex, add direct
// edges to every named symbol ultimately reachable through that
// anonymous vertex's own chain, while preserving the original edge into
// the anonymous vertex (so shared anonymous blobs are visited once, not
// duplicated per reacher).
//
// Per-anonymous-vertex reachable-named sets are memoized by vertex id,
// with a visiting/done state to guard against cycles, since every
// anonymous vertex's closure is a pure function of the graph and only
// needs computing once no matter how many reachers share it. A cycle
// among anonymous sections is cut at the back edge the depth-first walk
// finds: that edge is skipped, and a warning names both of its sections
// and the lower-addressed of the two. The cut is not moved to the
// lowest-addressed section of the whole cycle, and a closure memoized
// while its cycle was open omits what lies beyond the cut edge.
func (g *Graph) expandAnonymous() error {
	memo := map[VertexID][]VertexID{}
	state := map[VertexID]int{} // 0=unvisited, 1=visiting, 2=done

	var closure func(v VertexID) []VertexID
	closure = func(v VertexID) []VertexID {
		if named, ok := memo[v]; ok {
			return named
		}
		state[v] = 1
		seen := map[VertexID]bool{}
		var out []VertexID
		for _, next := range g.Edges(v) {
			switch g.vertices[next].Kind {
			case VertexNamed, VertexUnresolved:
				if !seen[next] {
					seen[next] = true
					out = append(out, next)
				}
			case VertexAnonymous:
				if state[next] == 1 {
					g.breakCycle(v, next)
					continue
				}
				for _, n := range closure(next) {
					if !seen[n] {
						seen[n] = true
						out = append(out, n)
					}
				}
			}
		}
		state[v] = 2
		memo[v] = out
		return out
	}

	for _, v := range g.vertices {
		if v.Kind != VertexAnonymous {
			continue
		}
		closure(v.ID)
	}

	// Add the transitive edges: any vertex with a direct edge into an
	// anonymous vertex also gets edges to that vertex's named closure.
	for from, targets := range g.adjSnapshot() {
		for _, to := range targets {
			if g.vertices[to].Kind != VertexAnonymous {
				continue
			}
			for _, named := range closure(to) {
				g.addEdge(from, named)
			}
		}
	}
	return nil
}

func (g *Graph) adjSnapshot() map[VertexID][]VertexID {
	out := make(map[VertexID][]VertexID, len(g.adj))
	for from, set := range g.adj {
		for to := range set {
			out[from] = append(out[from], to)
		}
	}
	return out
}

func (g *Graph) breakCycle(from, to VertexID) {
	a, b := g.vertices[from], g.vertices[to]
	lowest := a
	if b.Addr < a.Addr {
		lowest = b
	}
	g.Warnings = append(g.Warnings, fmt.Sprintf(
		"symbolgraph: cycle detected between anonymous sections %s#%d and %s#%d, broken at %s#%d",
		a.Object, a.Section, b.Object, b.Section, lowest.Object, lowest.Section))
}
