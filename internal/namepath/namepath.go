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

// Package namepath canonicalizes a demangled symbol or DWARF type/function
// name into a NamePath: an ordered defining path plus the generic-argument
// paths that were peeled off it. This is the Name Splitter of spec.md
// §4.D, grounded on the teacher's demangle.ToString(...) call followed by
// its cleanRustFunctionSymbols regex cleanup -- generalized here into a
// real bracket-depth-aware parser that retains what it strips, because
// the Attribution Engine (spec.md §4.H) needs the generic-argument paths,
// not just the cleaned-up defining path.
package namepath

import (
	"regexp"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// NamePath is the result of splitting one demangled name.
type NamePath struct {
	// Defining is the defining path: e.g. ["alloc","vec","Vec","push"].
	Defining []string
	// GenericArgs holds one NamePath per generic argument encountered
	// anywhere in the name, e.g. for alloc.vec.Vec<std.path.PathBuf>.push
	// this holds one entry for std.path.PathBuf.
	GenericArgs []NamePath
}

// DefiningDotted renders the defining path with "." as the universal
// separator, matching the config file's prefix-rule convention.
func (p NamePath) DefiningDotted() string {
	return strings.Join(p.Defining, ".")
}

var (
	lifetimeRE = regexp.MustCompile(`'[A-Za-z_][A-Za-z0-9_]*`)
	dynWordRE  = regexp.MustCompile(`\bdyn\s+`)
)

// Split demangles name if it looks mangled, then splits it into a
// NamePath. It never returns an error: malformed input -- including
// truncated angle-bracket nesting or non-UTF8 garbage that survived
// demangling -- degrades to an empty or partial Defining path, per the
// fuzz-safety contract in spec.md §4.D.
func Split(name string) (result NamePath) {
	defer func() {
		if recover() != nil {
			result = NamePath{}
		}
	}()

	demangled := tryDemangle(name)
	cleaned := collapseDynAndLifetimes(demangled)
	return parse(cleaned)
}

// tryDemangle demangles name if it has a recognized mangled-name prefix,
// following the teacher's demangle.ToString(name, demangle.NoClones) call
// in enricher/reachability/rust; names that don't demangle (e.g. already
// demangled, or from another language entirely) are returned unchanged.
func tryDemangle(name string) string {
	if !looksMangled(name) {
		return name
	}
	out, err := demangle.ToString(name, demangle.NoClones)
	if err != nil {
		return name
	}
	return out
}

func looksMangled(name string) bool {
	return strings.HasPrefix(name, "_R") ||
		strings.HasPrefix(name, "_Z") ||
		strings.HasPrefix(name, "__Z")
}

func collapseDynAndLifetimes(s string) string {
	s = dynWordRE.ReplaceAllString(s, "")
	s = lifetimeRE.ReplaceAllString(s, "")
	// Lifetime removal can leave "Foo<, Bar>" or "Foo<>"; tidy the
	// resulting punctuation so the generic-argument splitter below
	// doesn't see empty segments.
	s = regexp.MustCompile(`<\s*,\s*`).ReplaceAllString(s, "<")
	s = regexp.MustCompile(`,\s*,`).ReplaceAllString(s, ",")
	s = regexp.MustCompile(`,\s*>`).ReplaceAllString(s, ">")
	s = regexp.MustCompile(`<\s*>`).ReplaceAllString(s, "")
	return s
}

// parse implements steps 2-3 of spec.md §4.D: split on "::"/"." at
// bracket depth 0, peeling `<...>` generic-argument lists and `<X as
// Trait>` qualified-impl prefixes off each segment as it goes.
func parse(s string) NamePath {
	segments := splitTopLevel(s)

	var out NamePath
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "<") && strings.HasSuffix(seg, ">") {
			inner := seg[1 : len(seg)-1]
			left := inner
			if idx := splitAsAtDepth0(inner); idx >= 0 {
				left = inner[:idx]
			}
			sub := parse(left)
			out.Defining = append(out.Defining, sub.Defining...)
			out.GenericArgs = append(out.GenericArgs, sub.GenericArgs...)
			continue
		}

		name, argsStr, hasGenerics := splitGenericSuffix(seg)
		if name != "" {
			out.Defining = append(out.Defining, name)
		}
		if hasGenerics {
			for _, argStr := range splitArgsAtDepth0(argsStr) {
				argStr = strings.TrimSpace(argStr)
				if argStr == "" {
					continue
				}
				out.GenericArgs = append(out.GenericArgs, parse(argStr))
			}
		}
	}
	return out
}

// splitTopLevel splits s on "::" or "." at bracket depth 0, while also
// keeping a leading "<...>" qualified-impl block as one segment (so
// <X as Trait>::method doesn't get split inside the angle brackets).
func splitTopLevel(s string) []string {
	var segments []string
	depth := 0
	start := 0
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 && i+1 < len(runes) && runes[i+1] == ':' {
				segments = append(segments, string(runes[start:i]))
				i++
				start = i + 1
			}
		case '.':
			if depth == 0 {
				segments = append(segments, string(runes[start:i]))
				start = i + 1
			}
		}
	}
	segments = append(segments, string(runes[start:]))
	return segments
}

// splitGenericSuffix splits "Name<Args>" into ("Name", "Args", true), or
// returns (seg, "", false) when seg has no top-level generic suffix.
func splitGenericSuffix(seg string) (name, args string, ok bool) {
	i := strings.IndexByte(seg, '<')
	if i < 0 {
		return seg, "", false
	}
	if !strings.HasSuffix(seg, ">") {
		return seg, "", false
	}
	return seg[:i], seg[i+1 : len(seg)-1], true
}

// splitArgsAtDepth0 splits a generic-argument list on "," at bracket
// depth 0, so Either<A, B> and Map<K, Vec<V>> both split correctly.
func splitArgsAtDepth0(s string) []string {
	var args []string
	depth := 0
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		switch r {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				args = append(args, string(runes[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, string(runes[start:]))
	return args
}

// splitAsAtDepth0 finds " as " at bracket depth 0 inside an impl
// qualifier's contents, returning its index or -1.
func splitAsAtDepth0(s string) int {
	depth := 0
	runes := []rune(s)
	for i := 0; i+4 <= len(runes); i++ {
		switch runes[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 && string(runes[i:i+4]) == " as " {
			return i
		}
	}
	return -1
}
