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

package object

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
)

// elfView is the ELF-backed View implementation (spec.md non-goals: only
// ELF is supported; macho/pe get ErrUnsupportedFormat, see reader.go).
type elfView struct {
	id   string
	file *elf.File

	sections []Section
	symbols  []Symbol
	relocs   []Relocation
}

func newELFView(id string, f *elf.File) (*elfView, error) {
	v := &elfView{id: id, file: f}
	v.loadSections()
	if err := v.loadSymbols(); err != nil {
		return nil, err
	}
	if err := v.loadRelocations(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *elfView) ID() string              { return v.id }
func (v *elfView) Sections() []Section     { return v.sections }
func (v *elfView) Symbols() []Symbol       { return v.symbols }
func (v *elfView) Relocations() []Relocation { return v.relocs }

func (v *elfView) DWARF() (*dwarf.Data, error) {
	d, err := v.file.DWARF()
	if err != nil {
		// Missing debug info is recoverable (spec.md §4.B): callers fall
		// back to the linkage name alone.
		return nil, nil
	}
	return d, nil
}

func (v *elfView) Entry() (uint64, bool) {
	if v.file.Type != elf.ET_EXEC && v.file.Type != elf.ET_DYN {
		return 0, false
	}
	if v.file.Entry == 0 {
		return 0, false
	}
	return v.file.Entry, true
}

func (v *elfView) DynamicSymbols() []Symbol {
	syms, err := v.file.DynamicSymbols()
	if err != nil {
		return nil
	}
	out := make([]Symbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, convertSymbol(s, v.file))
	}
	return out
}

func (v *elfView) loadSections() {
	for i, s := range v.file.Sections {
		v.sections = append(v.sections, Section{
			Index:      i,
			Name:       s.Name,
			Executable: s.Flags&elf.SHF_EXECINSTR != 0,
			Size:       s.Size,
			Addr:       s.Addr,
		})
	}
}

func (v *elfView) loadSymbols() error {
	syms, err := v.file.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return fmt.Errorf("%w: reading symtab of %s: %v", ErrMalformedObject, v.id, err)
	}
	for _, s := range syms {
		v.symbols = append(v.symbols, convertSymbol(s, v.file))
	}
	return nil
}

func convertSymbol(s elf.Symbol, f *elf.File) Symbol {
	sec := -1
	if s.Section != elf.SHN_UNDEF && int(s.Section) < len(f.Sections) {
		sec = int(s.Section)
	}
	scope := ScopeLocal
	switch elf.ST_BIND(s.Info) {
	case elf.STB_GLOBAL:
		scope = ScopeGlobal
	case elf.STB_WEAK:
		scope = ScopeWeak
	}
	return Symbol{
		Name:    s.Name,
		Section: sec,
		Offset:  s.Value,
		Size:    s.Size,
		Scope:   scope,
	}
}

// elf64Rela mirrors the on-disk Elf64_Rela layout (spec.md §3 Relocation;
// only the common ELF64/RELA case is parsed -- 32-bit ELF and REL-style
// relocations without an explicit addend are out of scope for this
// reference implementation).
type elf64Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (v *elfView) loadRelocations() error {
	if v.file.Class != elf.ELFCLASS64 {
		// 32-bit relocation parsing isn't implemented; this doesn't
		// block analysis (spec.md §7: input errors degrade per-output,
		// they don't abort), so just skip it rather than erroring.
		return nil
	}
	allSyms, err := v.file.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return fmt.Errorf("%w: reading symtab for relocations of %s: %v", ErrMalformedObject, v.id, err)
	}

	for _, s := range v.file.Sections {
		if s.Type != elf.SHT_RELA {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return fmt.Errorf("%w: reading %s of %s: %v", ErrMalformedObject, s.Name, v.id, err)
		}
		// The RELA section applies to the section named by s.Info
		// (classic ELF convention: sh_info of a SHT_RELA section is the
		// target section index).
		targetSection := int(s.Info)
		const entSize = 24
		for off := 0; off+entSize <= len(data); off += entSize {
			var rela elf64Rela
			rela.Offset = v.file.ByteOrder.Uint64(data[off:])
			rela.Info = v.file.ByteOrder.Uint64(data[off+8:])
			rela.Addend = int64(v.file.ByteOrder.Uint64(data[off+16:]))

			symIdx := rela.Info >> 32
			target := RelocationTarget{}
			if symIdx == 0 {
				// A zero symbol index is recorded as an unresolved
				// target (Section -1); its addend is not resolved to a
				// section.
				target = RelocationTarget{Section: -1}
			} else if int(symIdx-1) < len(allSyms) {
				sym := allSyms[symIdx-1]
				if sym.Name != "" {
					target = RelocationTarget{Symbol: sym.Name, HasSymbol: true}
				} else if int(sym.Section) < len(v.file.Sections) {
					target = RelocationTarget{Section: int(sym.Section)}
				}
			}

			v.relocs = append(v.relocs, Relocation{
				SourceSection: targetSection,
				Offset:        rela.Offset,
				Target:        target,
			})
		}
	}
	return nil
}
