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

package namepath

import (
	"strings"
	"sync"
)

// ID is an interned path identifier: identical dotted paths always return
// the same ID, so set-membership checks become cheap integer comparisons
// (spec.md §4.D point 4). internal/apimatch and internal/attribution
// compare path strings and do not use the Interner.
type ID int

// Interner hash-conses dotted defining paths to IDs.
type Interner struct {
	mu   sync.Mutex
	ids  map[string]ID
	next ID
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{ids: make(map[string]ID)}
}

// Intern returns the ID for segments, minting a new one on first sight.
func (in *Interner) Intern(segments []string) ID {
	key := strings.Join(segments, ".")
	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[key]; ok {
		return id
	}
	id := in.next
	in.next++
	in.ids[key] = id
	return id
}

// InternPath interns the NamePath's defining path.
func (in *Interner) InternPath(p NamePath) ID {
	return in.Intern(p.Defining)
}
