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

// Package engine orchestrates one linked output through the state
// machine of spec.md §4 ("State machine (per linked output)"):
// Opened -> ObjectsParsed -> GraphBuilt -> ReachabilityComputed ->
// Attributed -> Reported. Object parsing within a stage is parallelized
// per object file; a failure at any stage degrades that output rather
// than aborting the whole build (spec.md §7).
//
// The errgroup/multierr concurrency shape is lifted directly from the
// teacher's enricher/baseimage/baseimage.go Enrich method: one
// errgroup.WithContext for the parallel object fan-out, whose error
// (cancellation) multierr.Append wraps. A per-object or per-archive parse
// failure is logged and marks the output degraded instead.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/cackle-rs/cackle-go/internal/apimatch"
	"github.com/cackle-rs/cackle-go/internal/attribution"
	"github.com/cackle-rs/cackle-go/internal/crate"
	"github.com/cackle-rs/cackle-go/internal/debuginfo"
	"github.com/cackle-rs/cackle-go/internal/log"
	"github.com/cackle-rs/cackle-go/internal/membership"
	"github.com/cackle-rs/cackle-go/internal/object"
	"github.com/cackle-rs/cackle-go/internal/reachability"
	"github.com/cackle-rs/cackle-go/internal/symbolgraph"
)

// Stage names the state machine's one-shot transitions.
type Stage int

const (
	Opened Stage = iota
	ObjectsParsed
	GraphBuilt
	ReachabilityComputed
	Attributed
	Reported
)

func (s Stage) String() string {
	switch s {
	case Opened:
		return "Opened"
	case ObjectsParsed:
		return "ObjectsParsed"
	case GraphBuilt:
		return "GraphBuilt"
	case ReachabilityComputed:
		return "ReachabilityComputed"
	case Attributed:
		return "Attributed"
	case Reported:
		return "Reported"
	default:
		return "Unknown"
	}
}

// LinkInput is everything needed to analyze one linked output, as
// surfaced by the build-wrapper collaborator over the RPC boundary
// (spec.md §6).
type LinkInput struct {
	LinkID      string
	OutputPath  string
	ObjectPaths []string
	ArchivePaths []string
	IsProcMacro bool

	Members *membership.Map
	Matcher *apimatch.Matcher
	Resolve attribution.Resolver
	// IgnoreUnreachable names the crates whose own entry points should
	// not, by themselves, count as reachability roots (spec.md §4.G).
	IgnoreUnreachable map[crate.ID]bool
}

// LinkResult is one linked output's outcome. Degraded is set when a
// stage failed partway and the result reflects whatever was salvaged.
type LinkResult struct {
	LinkID    string
	Stage     Stage
	Degraded  bool
	Problems  []attribution.Problem
	Warnings  []string
}

// AnalyzeLink drives one linked output through the full state machine.
// Object parsing is parallelized via errgroup, one goroutine per object
// file and one per archive; a parse failure for one object or archive
// doesn't abort the others, but does mark the output degraded (spec.md
// §7: partial results, not aborted builds).
func AnalyzeLink(ctx context.Context, in LinkInput) (LinkResult, error) {
	res := LinkResult{LinkID: in.LinkID, Stage: Opened}

	views, degraded, err := parseObjectsParallel(ctx, in.ObjectPaths, in.ArchivePaths)
	if err != nil {
		return res, fmt.Errorf("engine: %s: opening objects: %w", in.LinkID, err)
	}
	res.Degraded = degraded
	res.Stage = ObjectsParsed
	if len(views) == 0 {
		log.Warnf("engine: %s: no parseable object files", in.LinkID)
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("engine: %s: %w", in.LinkID, err)
	}

	linked, err := object.Open(in.OutputPath)
	if err != nil {
		res.Degraded = true
		log.Warnf("engine: %s: opening linked output %s: %v", in.LinkID, in.OutputPath, err)
		return res, nil
	}

	dwarfData, err := linked.DWARF()
	if err != nil {
		res.Degraded = true
	}
	idx, err := debuginfo.Build(dwarfData)
	if err != nil {
		log.Warnf("engine: %s: %v", in.LinkID, err)
		res.Degraded = true
		idx, _ = debuginfo.Build(nil)
	}

	g, err := symbolgraph.Build(append(views, linked))
	if err != nil {
		return res, fmt.Errorf("engine: %s: building symbol graph: %w", in.LinkID, err)
	}
	res.Stage = GraphBuilt
	res.Warnings = append(res.Warnings, g.Warnings...)
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("engine: %s: %w", in.LinkID, err)
	}

	roots := computeRoots(g, linked, in.IsProcMacro)
	owner := ownerFromIndex(g, idx, in.Members)
	reach := reachability.Compute(g, roots, owner, in.IgnoreUnreachable)
	res.Stage = ReachabilityComputed
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("engine: %s: %w", in.LinkID, err)
	}

	problems := attribution.Attribute(attribution.Inputs{
		Graph:   g,
		Reach:   reach,
		Debug:   idx,
		Members: in.Members,
		Matcher: in.Matcher,
		Resolve: in.Resolve,
	})
	res.Stage = Attributed
	res.Problems = problems
	res.Stage = Reported
	return res, nil
}

// computeRoots assembles spec.md §4.G's root set: the entry symbol, every
// dynamically exported symbol, and -- for proc-macro outputs -- the
// well-known registrar symbols.
func computeRoots(g *symbolgraph.Graph, linked object.View, isProcMacro bool) reachability.Roots {
	var roots reachability.Roots
	nameToVertex := map[string]symbolgraph.VertexID{}
	for _, v := range g.Vertices() {
		if v.Kind == symbolgraph.VertexNamed {
			nameToVertex[v.Symbol] = v.ID
		}
	}

	if _, ok := linked.Entry(); ok {
		for _, entryName := range []string{"_start", "main"} {
			if id, ok := nameToVertex[entryName]; ok {
				roots.Entry = append(roots.Entry, id)
			}
		}
	}
	for _, sym := range linked.DynamicSymbols() {
		if id, ok := nameToVertex[sym.Name]; ok {
			roots.DynamicallyExported = append(roots.DynamicallyExported, id)
		}
	}
	if isProcMacro {
		for _, registrar := range []string{"__rustc_proc_macro_decls", "_rustc_proc_macro_decls_"} {
			if id, ok := nameToVertex[registrar]; ok {
				roots.ProcMacroRegistrars = append(roots.ProcMacroRegistrars, id)
			}
		}
	}
	return roots
}

// ownerFromIndex builds a reachability.OwnerFunc the same way the
// Attribution Engine resolves a caller crate (spec.md §4.H step 1):
// address -> source file via the Debug-Info Index, source file -> crate
// via the Crate-Membership Map. Ambiguous membership picks the
// lexicographically smallest candidate for a deterministic ignore_unreachable
// seed set; attribution itself still emits Problems for every candidate.
func ownerFromIndex(g *symbolgraph.Graph, idx *debuginfo.Index, members *membership.Map) reachability.OwnerFunc {
	return func(id symbolgraph.VertexID) (crate.ID, bool) {
		v := g.Vertices()[id]
		loc, ok := idx.LookupAddress(v.Addr)
		if !ok {
			return crate.ID{}, false
		}
		candidates := members.Lookup(loc.File)
		if len(candidates) == 0 {
			return crate.ID{}, false
		}
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Package < best.Package || (c.Package == best.Package && c.Kind < best.Kind) {
				best = c
			}
		}
		return best, true
	}
}

func parseObjectsParallel(ctx context.Context, objectPaths, archivePaths []string) ([]object.View, bool, error) {
	g, ctx := errgroup.WithContext(ctx)
	views := make([]object.View, len(objectPaths))
	var degraded atomic.Bool

	for i, p := range objectPaths {
		i, p := i, p
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			v, err := object.Open(p)
			if err != nil {
				log.Warnf("engine: skipping unparseable object %s: %v", p, err)
				degraded.Store(true)
				return nil
			}
			views[i] = v
			return nil
		})
	}

	archiveMembers := make([][]object.Member, len(archivePaths))
	for i, p := range archivePaths {
		i, p := i, p
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			members, err := object.OpenArchive(p)
			if err != nil {
				log.Warnf("engine: skipping unparseable archive %s: %v", p, err)
				degraded.Store(true)
				return nil
			}
			archiveMembers[i] = members
			return nil
		})
	}

	var enrichErr error
	if err := g.Wait(); err != nil {
		enrichErr = multierr.Append(enrichErr, err)
	}

	var out []object.View
	for _, v := range views {
		if v != nil {
			out = append(out, v)
		}
	}
	for _, members := range archiveMembers {
		for _, m := range members {
			out = append(out, m.View)
		}
	}
	return out, degraded.Load(), enrichErr
}
