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

// Package apimatch implements the API Matcher (spec.md §4.E): given a
// canonicalized path, compute the set of configured APIs whose include
// rules match a prefix of it and whose exclude rules don't win at an
// equal or longer prefix.
package apimatch

import "strings"

// Rules is one API's include/exclude prefix lists, already normalized
// (dotted, no leading/trailing separators).
type Rules struct {
	Include []string
	Exclude []string
}

// Matcher is a trie-backed matcher across every configured API.
type Matcher struct {
	includeRoot *trieNode
	excludeRoot *trieNode
	apiNames    []string
}

type trieNode struct {
	children map[string]*trieNode
	// apis marks, for each API name present here, that this node is the
	// end of one of that API's configured prefixes.
	apis map[string]bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode), apis: make(map[string]bool)}
}

// New builds a Matcher from a set of APIs to their include/exclude rules.
func New(apis map[string]Rules) *Matcher {
	m := &Matcher{
		includeRoot: newTrieNode(),
		excludeRoot: newTrieNode(),
	}
	for name, rules := range apis {
		m.apiNames = append(m.apiNames, name)
		for _, prefix := range rules.Include {
			insert(m.includeRoot, Segments(prefix), name)
		}
		for _, prefix := range rules.Exclude {
			insert(m.excludeRoot, Segments(prefix), name)
		}
	}
	return m
}

func insert(root *trieNode, segments []string, api string) {
	node := root
	if len(segments) == 0 {
		// An empty prefix rule ("" after normalization) matches every
		// path at depth 0.
		node.apis[api] = true
		return
	}
	for _, seg := range segments {
		next, ok := node.children[seg]
		if !ok {
			next = newTrieNode()
			node.children[seg] = next
		}
		node = next
	}
	node.apis[api] = true
}

// Segments normalizes a dotted-path prefix rule into its segments,
// treating "." as the universal separator per spec.md §4.D/§6 ("e.g.
// std.process, with . as the universal separator after normalization");
// "::" is also accepted so config authors can paste a Rust path verbatim.
func Segments(prefix string) []string {
	prefix = strings.ReplaceAll(prefix, "::", ".")
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return nil
	}
	return strings.Split(prefix, ".")
}

// Match returns the set of API names whose rules match path, per the
// longest-prefix-wins semantics of spec.md §4.E:
//  1. an API matches if some prefix of path matches one of its include
//     rules;
//  2. the longest matching exclude rule beats a shorter (or equal) include
//     match for that same API;
//  3. matches are independent per API, so a path can match several.
func (m *Matcher) Match(path []string) map[string]bool {
	includeDepth := deepestMatch(m.includeRoot, path)
	excludeDepth := deepestMatch(m.excludeRoot, path)

	result := make(map[string]bool, len(includeDepth))
	for api, li := range includeDepth {
		le, excluded := excludeDepth[api]
		if excluded && le >= li {
			continue
		}
		result[api] = true
	}
	return result
}

// deepestMatch walks the trie along path, returning for each API name the
// greatest depth at which one of its rules matched a prefix of path.
func deepestMatch(root *trieNode, path []string) map[string]int {
	depth := map[string]int{}
	node := root
	for api := range node.apis {
		depth[api] = 0
	}
	for i, seg := range path {
		next, ok := node.children[seg]
		if !ok {
			break
		}
		node = next
		for api := range node.apis {
			depth[api] = i + 1
		}
	}
	return depth
}
