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

package apimatch_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cackle-rs/cackle-go/internal/apimatch"
)

func TestSegments(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{"dotted", "std.process", []string{"std", "process"}},
		{"rust_path", "std::process::Command", []string{"std", "process", "Command"}},
		{"trimmed", ".std.fs.", []string{"std", "fs"}},
		{"empty", "", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := apimatch.Segments(tc.prefix)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Segments(%q) diff (-want +got):\n%s", tc.prefix, diff)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	m := apimatch.New(map[string]apimatch.Rules{
		"process": {Include: []string{"std.process"}},
		"fs": {
			Include: []string{"std.fs"},
			Exclude: []string{"std.fs.read_to_string"},
		},
		"net": {
			Include: []string{"std.net"},
			Exclude: []string{"std.net"},
		},
		"everything": {Include: []string{""}},
	})

	tests := []struct {
		name string
		path []string
		want map[string]bool
	}{
		{
			name: "simple_include",
			path: []string{"std", "process", "Command", "new"},
			want: map[string]bool{"process": true, "everything": true},
		},
		{
			name: "no_match",
			path: []string{"serde", "Deserialize"},
			want: map[string]bool{"everything": true},
		},
		{
			name: "exclude_longer_than_include_wins",
			path: []string{"std", "fs", "read_to_string"},
			want: map[string]bool{"everything": true},
		},
		{
			name: "include_still_matches_sibling",
			path: []string{"std", "fs", "write"},
			want: map[string]bool{"fs": true, "everything": true},
		},
		{
			name: "exclude_at_equal_depth_wins",
			path: []string{"std", "net"},
			want: map[string]bool{"everything": true},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := m.Match(tc.path)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Match(%v) diff (-want +got):\n%s", tc.path, diff)
			}
		})
	}
}

// TestMatchMonotone checks spec.md §8's monotonicity invariant: widening an
// include rule's matched path can only ever add APIs to the result, never
// remove one that already matched a shorter prefix, absent an exclude rule.
func TestMatchMonotone(t *testing.T) {
	m := apimatch.New(map[string]apimatch.Rules{
		"fs": {Include: []string{"std.fs"}},
	})
	short := m.Match([]string{"std", "fs"})
	long := m.Match([]string{"std", "fs", "File", "open"})
	for api := range short {
		if !long[api] {
			t.Errorf("API %q matched shorter path %v but not longer path", api, short)
		}
	}
}
