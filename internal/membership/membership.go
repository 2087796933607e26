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

// Package membership is the Crate-Membership Map (spec.md §4.C): it
// ingests dependency manifests ("target: source1 source2 ..." lines, one
// per compilation step's emitted artifact) and builds source_file ->
// {crate} membership, append-only across the life of a build (spec.md
// §5 Shared-resource policy).
//
// The manifest line shape mirrors the teacher's own cargo .d-file parsing
// in enricher/reachability/rust/client.go's rustBuildSource
// (strings.Split(string(file), ": ")), generalized from "one .d file per
// cargo output" to "one manifest per compilation step, many steps per
// build".
package membership

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cackle-rs/cackle-go/internal/crate"
)

// Manifest is one compilation step's dependency-file contents: the
// artifact it produced, and every source file it consumed.
type Manifest struct {
	Crate   crate.ID
	Target  string
	Sources []string
	// Direct marks sources that are direct inputs (as opposed to
	// transitively pulled in, e.g. via #[path] or include!()); used for
	// the ambiguous-membership tie-break in spec.md §4.C.
	Direct map[string]bool
}

// ParseManifest parses one manifest's "target: source1 source2 ..." line,
// the same split-on-": " shape the teacher uses for cargo's .d files.
func ParseManifest(id crate.ID, r io.Reader) (Manifest, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	m := Manifest{Crate: id, Direct: map[string]bool{}}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			return Manifest{}, fmt.Errorf("membership: manifest line contains no \": \" separator: %q", line)
		}
		m.Target = parts[0]
		for _, src := range strings.Fields(parts[1]) {
			m.Sources = append(m.Sources, src)
			m.Direct[src] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, fmt.Errorf("membership: scanning manifest: %w", err)
	}
	return m, nil
}

// LoadManifest reads and parses a manifest file from disk.
func LoadManifest(id crate.ID, path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("membership: opening %q: %w", path, err)
	}
	defer f.Close()
	return ParseManifest(id, f)
}

type entry struct {
	crates map[crate.ID]bool
	direct map[crate.ID]bool
}

// Map is the append-only source_file -> {crate} map. Safe for concurrent
// Add/Lookup (spec.md §5: "The Crate-Membership Map is append-only").
type Map struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// Add ingests one manifest, growing the map. Existing entries are never
// removed or overwritten, only unioned, matching the append-only
// resource policy.
func (m *Map) Add(manifest Manifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range manifest.Sources {
		e, ok := m.entries[src]
		if !ok {
			e = &entry{crates: map[crate.ID]bool{}, direct: map[crate.ID]bool{}}
			m.entries[src] = e
		}
		e.crates[manifest.Crate] = true
		if manifest.Direct[src] {
			e.direct[manifest.Crate] = true
		}
	}
}

// Lookup returns the crate(s) that own sourceFile. Per spec.md §4.C's
// tie-break: a crate that lists the file as a direct input wins over one
// that only lists it transitively; if more than one crate lists it
// directly (or none do), every match is returned and downstream
// attribution unions the resulting problems (Open Question in spec.md §9,
// resolved in SPEC_FULL.md: duplicates are intentional, not deduped).
func (m *Map) Lookup(sourceFile string) []crate.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sourceFile]
	if !ok {
		return nil
	}
	if len(e.direct) > 0 {
		return idsOf(e.direct)
	}
	return idsOf(e.crates)
}

func idsOf(set map[crate.ID]bool) []crate.ID {
	out := make([]crate.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
