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

// Package attribution is the Attribution Engine (spec.md §4.H): it walks
// the reachable symbol graph, resolves each edge's caller crate and
// referenced APIs, applies the generic-instantiation rule, and emits
// Problem records after a permission check.
//
// Grounded directly on spec.md §4.H since no single teacher file does
// this; the shape (walk edges, classify, accumulate problems, sort
// deterministically) follows the teacher's enricher result-accumulation
// pattern in enricher/enricher.go.
package attribution

import (
	"sort"

	"github.com/cackle-rs/cackle-go/internal/apimatch"
	"github.com/cackle-rs/cackle-go/internal/crate"
	"github.com/cackle-rs/cackle-go/internal/debuginfo"
	"github.com/cackle-rs/cackle-go/internal/membership"
	"github.com/cackle-rs/cackle-go/internal/namepath"
	"github.com/cackle-rs/cackle-go/internal/reachability"
	"github.com/cackle-rs/cackle-go/internal/symbolgraph"
)

// ProblemKind classifies a reported Problem, per spec.md §3.
type ProblemKind int

const (
	DisallowedAPI ProblemKind = iota
	DisallowedUnsafe
	UnknownCrate
	MissingDebugInfo
)

func (k ProblemKind) String() string {
	switch k {
	case DisallowedAPI:
		return "DisallowedApi"
	case DisallowedUnsafe:
		return "DisallowedUnsafe"
	case UnknownCrate:
		return "UnknownCrate"
	case MissingDebugInfo:
		return "MissingDebugInfo"
	default:
		return "Unknown"
	}
}

// BacktraceFrame is one hop of a Problem's backtrace, root-ward.
type BacktraceFrame struct {
	Symbol   string
	Location debuginfo.Location
}

// Problem is one reported attribution finding (spec.md §3).
type Problem struct {
	Kind       ProblemKind
	Crate      crate.ID
	API        string // empty for DisallowedUnsafe/UnknownCrate without an API context
	SourceFile string
	Line       int
	Location   debuginfo.Location
	Backtrace  []BacktraceFrame
}

// Resolver supplies the effective permission set for a crate; callers
// wire this to config.File.Resolve (kept out of this package's import
// graph so attribution stays testable without a config fixture).
type Resolver func(id crate.ID) crate.PermissionSet

// Inputs bundles everything one linked output's attribution pass needs.
type Inputs struct {
	Graph   *symbolgraph.Graph
	Reach   *reachability.Result
	Debug   *debuginfo.Index
	Members *membership.Map
	Matcher *apimatch.Matcher
	Resolve Resolver
}

// Attribute walks every edge of the reachable graph and returns the
// resulting Problems, sorted per spec.md §5 by (crate, api, source_file,
// line).
func Attribute(in Inputs) []Problem {
	var problems []Problem

	for _, u := range in.Graph.Vertices() {
		if !in.Reach.Reachable(u.ID) {
			continue
		}
		for _, vID := range in.Graph.Edges(u.ID) {
			v := in.Graph.Vertices()[vID]
			if v.Kind != symbolgraph.VertexNamed || !in.Reach.Reachable(vID) {
				continue
			}
			problems = append(problems, attributeEdge(in, u, v)...)
		}
	}

	sort.Slice(problems, func(i, j int) bool {
		a, b := problems[i], problems[j]
		if a.Crate.Package != b.Crate.Package {
			return a.Crate.Package < b.Crate.Package
		}
		if a.Crate.Kind != b.Crate.Kind {
			return a.Crate.Kind < b.Crate.Kind
		}
		if a.API != b.API {
			return a.API < b.API
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.Line < b.Line
	})
	return problems
}

func attributeEdge(in Inputs, u, v symbolgraph.Vertex) []Problem {
	loc, crates, ok := resolveCaller(in, u)
	if !ok {
		return []Problem{{Kind: UnknownCrate, Location: loc, Backtrace: backtraceOf(in, u.ID)}}
	}

	matchedAPIs, missingDebug := referencedAPIs(in, v)

	// Generic-instantiation rule (spec.md §4.H step 3): if u's own
	// defining path matches an API, that API was already attributed at
	// u's instantiation site, so it is dropped here.
	if u.Kind == symbolgraph.VertexNamed {
		callerPath := namepath.Split(u.Symbol)
		for api := range in.Matcher.Match(callerPath.Defining) {
			delete(matchedAPIs, api)
		}
	}

	var out []Problem
	for _, callerCrate := range crates {
		perm := in.Resolve(callerCrate)
		for api := range matchedAPIs {
			if perm.Allows(api) {
				continue
			}
			out = append(out, Problem{
				Kind:       DisallowedAPI,
				Crate:      callerCrate,
				API:        api,
				SourceFile: loc.File,
				Line:       loc.Line,
				Location:   loc,
				Backtrace:  backtraceOf(in, u.ID),
			})
		}
		if missingDebug && len(matchedAPIs) > 0 {
			out = append(out, Problem{
				Kind:       MissingDebugInfo,
				Crate:      callerCrate,
				SourceFile: loc.File,
				Line:       loc.Line,
				Location:   loc,
				Backtrace:  backtraceOf(in, u.ID),
			})
		}
	}
	return out
}

// resolveCaller determines u's source file via the Debug-Info Index and
// looks it up in the Crate-Membership Map (spec.md §4.H step 1). When
// membership is ambiguous (spec.md §4.C), every candidate crate is
// returned and the caller emits a Problem per candidate, so downstream
// consumers see the union rather than a single guessed owner.
func resolveCaller(in Inputs, u symbolgraph.Vertex) (debuginfo.Location, []crate.ID, bool) {
	loc, ok := in.Debug.LookupAddress(u.Addr)
	if !ok {
		return debuginfo.Location{}, nil, false
	}
	candidates := in.Members.Lookup(loc.File)
	if len(candidates) == 0 {
		return loc, nil, false
	}
	return loc, candidates, true
}

// referencedAPIs collects v's referenced names (spec.md §4.H step 2):
// the demangled linkage name, DWARF canonical name, and each
// generic-argument path, each matched against the configured APIs
// independently.
func referencedAPIs(in Inputs, v symbolgraph.Vertex) (map[string]bool, bool) {
	matched := map[string]bool{}
	var paths [][]string

	np := namepath.Split(v.Symbol)
	paths = append(paths, np.Defining)
	for _, g := range np.GenericArgs {
		paths = append(paths, g.Defining)
	}

	die, ok := in.Debug.DIEFor(v.Symbol)
	missingDebug := !ok
	if ok {
		if die.CanonicalName != "" && die.CanonicalName != v.Symbol {
			cnp := namepath.Split(die.CanonicalName)
			paths = append(paths, cnp.Defining)
			for _, g := range cnp.GenericArgs {
				paths = append(paths, g.Defining)
			}
		}
		for _, tp := range die.TypeParameters {
			paths = append(paths, namepath.Split(tp).Defining)
		}
	}

	for _, p := range paths {
		for api := range in.Matcher.Match(p) {
			matched[api] = true
		}
	}
	return matched, missingDebug
}

func backtraceOf(in Inputs, v symbolgraph.VertexID) []BacktraceFrame {
	path := in.Reach.Backtrace(v)
	frames := make([]BacktraceFrame, 0, len(path))
	for _, id := range path {
		vert := in.Graph.Vertices()[id]
		loc, _ := in.Debug.LookupAddress(vert.Addr)
		frames = append(frames, BacktraceFrame{Symbol: vert.Symbol, Location: loc})
	}
	return frames
}
