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

// Package object is the Object Reader (spec.md §4.A): it parses object
// files and static archives, exposing sections, symbols and relocations.
// Each object file (or archive member) is read fully into memory and
// parsed from that buffer. Archives (.rlib/.a) expand transparently to
// their member objects, each retaining a stable "archive:member"
// identifier so symbols trace back to the rlib that contributed them.
package object

import (
	"debug/dwarf"
	"errors"
)

// ErrMalformedObject is returned for truncated or structurally invalid
// object/archive input.
var ErrMalformedObject = errors.New("object: malformed object file")

// ErrUnsupportedFormat is returned for non-ELF input unless a porting
// flag is set (spec.md §4.A; only ELF is wired today, see SPEC_FULL.md §4.A).
var ErrUnsupportedFormat = errors.New("object: unsupported object format")

// Scope is a symbol's linkage scope.
type Scope int

// Scope values.
const (
	ScopeLocal Scope = iota
	ScopeWeak
	ScopeGlobal
)

// Section is a contiguous region within an object file.
type Section struct {
	Index      int
	Name       string
	Executable bool
	Size       uint64
	// Addr is the section's link-time virtual address; zero for
	// relocatable object files that haven't been linked yet.
	Addr uint64
}

// Symbol is a defined or undefined symbol.
type Symbol struct {
	Name string
	// Section is the index into Sections() that defines this symbol, or
	// -1 if the symbol is undefined (defined in another object/archive
	// member).
	Section int
	Offset  uint64
	Size    uint64
	Scope   Scope
}

// RelocationTarget is either a named symbol or an anonymous section.
type RelocationTarget struct {
	// Symbol is non-empty when the relocation targets a named symbol.
	Symbol string
	// Section is the target section index when Symbol is empty (an
	// anonymous-section reference, e.g. into a vtable or static string).
	Section int
	HasSymbol bool
}

// Relocation is a position within a section that must be patched to refer
// to some symbol or section.
type Relocation struct {
	SourceSection int
	Offset        uint64
	Target        RelocationTarget
}

// View exposes one object file's contents, parsed from an in-memory copy
// of the file's bytes. Concrete backends (ELF today, see internal/object/elf.go) are
// tagged variants behind this one interface (spec.md §9 "Dynamic dispatch
// over binary format").
type View interface {
	// ID identifies the object, e.g. a plain path or "archive:member" for
	// an archive member.
	ID() string
	Sections() []Section
	Symbols() []Symbol
	Relocations() []Relocation
	// DWARF returns the object's DWARF data, or nil if it carries none
	// (e.g. stripped).
	DWARF() (*dwarf.Data, error)
	// Entry returns the ELF entry point address and true, or (0, false)
	// for a relocatable object / archive member with no entry point.
	Entry() (uint64, bool)
	// DynamicSymbols returns the symbols that survive in the dynamic
	// symbol table (spec.md §4.G root: "all dynamically exported
	// symbols").
	DynamicSymbols() []Symbol
}
