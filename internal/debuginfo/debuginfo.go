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

// Package debuginfo is the Debug-Info Index (spec.md §4.B): it builds an
// address map (address -> source file/line/inlined-frames) and a
// symbol-to-DIE map from a linked binary's DWARF data, following the
// sorted-table + binary-search shape of the rhysh-go-perf reference
// (perfsession/symbolize.go's dwarfFuncTable/dwarfLineTable) combined with
// the teacher's DIE-walking loop in enricher/reachability/rust (client.go
// FunctionsFromDWARF).
package debuginfo

import (
	"debug/dwarf"
	"errors"
	"io"
	"sort"
)

// ErrUnsupportedDebugLayout is returned when DWARF references split debug
// info (a separate .dwo file), which spec.md §4.B explicitly leaves
// unsupported.
var ErrUnsupportedDebugLayout = errors.New("debuginfo: split debug info is unsupported")

// InlinedFrame is one frame of an inlined-call chain, innermost first.
type InlinedFrame struct {
	Function string
	File     string
	Line     int
}

// Location is the result of an address lookup.
type Location struct {
	File    string
	Line    int
	Column  int
	Inlined []InlinedFrame
}

// DIEInfo is what the symbol-to-DIE map stores per mangled name.
type DIEInfo struct {
	LinkageName    string
	CanonicalName  string
	TypeParameters []string
}

type funcRange struct {
	name          string
	lowpc, highpc uint64
}

type lineEntry struct {
	addr      uint64
	file      string
	line, col int
}

type inlinedRange struct {
	lowpc, highpc uint64
	function      string
	file          string
	line          int
}

// Index is the built Debug-Info Index for one linked output.
type Index struct {
	funcs    []funcRange
	lines    []lineEntry
	inlines  []inlinedRange
	symToDIE map[string]DIEInfo
}

// Build walks dwarfData once, constructing the address map and
// symbol-to-DIE map. A nil dwarfData (stripped binary) yields an empty,
// usable Index rather than an error -- spec.md §4.B requires missing
// debug info to be recoverable.
func Build(dwarfData *dwarf.Data) (*Index, error) {
	idx := &Index{symToDIE: map[string]DIEInfo{}}
	if dwarfData == nil {
		return idx, nil
	}

	if err := idx.walkDIEs(dwarfData); err != nil {
		return nil, err
	}
	if err := idx.walkLines(dwarfData); err != nil {
		return nil, err
	}

	sort.Slice(idx.funcs, func(i, j int) bool { return idx.funcs[i].lowpc < idx.funcs[j].lowpc })
	sort.Slice(idx.lines, func(i, j int) bool { return idx.lines[i].addr < idx.lines[j].addr })
	// Innermost (narrowest range) first, matching spec.md §4.B's
	// requirement that inlined frames stay in innermost-first order.
	sort.Slice(idx.inlines, func(i, j int) bool {
		return (idx.inlines[i].highpc - idx.inlines[i].lowpc) < (idx.inlines[j].highpc - idx.inlines[j].lowpc)
	})
	return idx, nil
}

func (idx *Index) walkDIEs(d *dwarf.Data) error {
	r := d.Reader()
	var curTypeParams []string
	for {
		entry, err := r.Next()
		if entry == nil || err != nil {
			break
		}

		if entry.Val(dwarf.Attr(0x2130)) != nil { // DW_AT_GNU_dwo_name
			return ErrUnsupportedDebugLayout
		}

		switch entry.Tag {
		case dwarf.TagSubprogram:
			name, linkage := subprogramNames(entry)
			low, high, hasRange := subprogramRange(entry)
			if hasRange {
				fname := name
				if fname == "" {
					fname = linkage
				}
				idx.funcs = append(idx.funcs, funcRange{name: fname, lowpc: low, highpc: high})
			}
			if linkage != "" || name != "" {
				idx.symToDIE[pickKey(linkage, name)] = DIEInfo{
					LinkageName:    linkage,
					CanonicalName:  name,
					TypeParameters: curTypeParams,
				}
			}
			curTypeParams = nil

		case dwarf.TagTemplateTypeParameter:
			if tn, ok := entry.Val(dwarf.AttrName).(string); ok {
				curTypeParams = append(curTypeParams, tn)
			}

		case dwarf.TagInlinedSubroutine:
			low, high, hasRange := subprogramRange(entry)
			if !hasRange {
				break
			}
			name := idx.resolveAbstractOrigin(d, entry)
			var callLine int
			if cl, ok := entry.Val(dwarf.AttrCallLine).(int64); ok {
				callLine = int(cl)
			}
			idx.inlines = append(idx.inlines, inlinedRange{
				lowpc: low, highpc: high, function: name, line: callLine,
			})
		}
	}
	return nil
}

// resolveAbstractOrigin follows DW_AT_abstract_origin to the inlined
// subroutine's originating DW_TAG_subprogram to recover its name, since
// DW_TAG_inlined_subroutine entries usually omit DW_AT_name directly.
func (idx *Index) resolveAbstractOrigin(d *dwarf.Data, entry *dwarf.Entry) string {
	if name, ok := entry.Val(dwarf.AttrName).(string); ok && name != "" {
		return name
	}
	off, ok := entry.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
	if !ok {
		return ""
	}
	r := d.Reader()
	r.Seek(off)
	origin, err := r.Next()
	if err != nil || origin == nil {
		return ""
	}
	name, linkage := subprogramNames(origin)
	return pickKey(linkage, name)
}

func pickKey(linkage, name string) string {
	if linkage != "" {
		return linkage
	}
	return name
}

func subprogramNames(entry *dwarf.Entry) (name, linkage string) {
	if n, ok := entry.Val(dwarf.AttrName).(string); ok {
		name = n
	}
	if l, ok := entry.Val(dwarf.AttrLinkageName).(string); ok {
		linkage = l
	}
	return
}

func subprogramRange(entry *dwarf.Entry) (low, high uint64, ok bool) {
	lowpc, lok := entry.Val(dwarf.AttrLowpc).(uint64)
	if !lok {
		return 0, 0, false
	}
	switch h := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		return lowpc, h, true
	case int64:
		return lowpc, lowpc + uint64(h), true
	default:
		return 0, 0, false
	}
}

func (idx *Index) walkLines(d *dwarf.Data) error {
	r := d.Reader()
	for {
		entry, err := r.Next()
		if entry == nil || err != nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := d.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		for {
			var le dwarf.LineEntry
			if err := lr.Next(&le); err != nil {
				if err == io.EOF {
					break
				}
				return nil
			}
			if le.EndSequence {
				continue
			}
			idx.lines = append(idx.lines, lineEntry{
				addr: le.Address,
				file: fileName(le.File),
				line: le.Line,
				col:  le.Column,
			})
		}
	}
	return nil
}

func fileName(f *dwarf.LineFile) string {
	if f == nil {
		return ""
	}
	return f.Name
}

// LookupAddress returns the source location for addr, following
// funcRangeSorter's sorted-slice + sort.Search pattern from the
// rhysh-go-perf reference.
func (idx *Index) LookupAddress(addr uint64) (Location, bool) {
	if len(idx.lines) == 0 {
		return Location{}, false
	}
	i := sort.Search(len(idx.lines), func(i int) bool { return idx.lines[i].addr > addr })
	if i == 0 {
		return Location{}, false
	}
	e := idx.lines[i-1]
	return Location{File: e.file, Line: e.line, Column: e.col, Inlined: idx.inlinedFramesAt(addr)}, true
}

// inlinedFramesAt returns every inlined range covering addr, narrowest
// first (innermost-first per spec.md §4.B).
func (idx *Index) inlinedFramesAt(addr uint64) []InlinedFrame {
	var frames []InlinedFrame
	for _, r := range idx.inlines {
		if r.lowpc <= addr && addr < r.highpc {
			frames = append(frames, InlinedFrame{Function: r.function, File: r.file, Line: r.line})
		}
	}
	return frames
}

// FunctionAt returns the name of the function whose [lowpc,highpc) range
// contains addr.
func (idx *Index) FunctionAt(addr uint64) (string, bool) {
	if len(idx.funcs) == 0 {
		return "", false
	}
	i := sort.Search(len(idx.funcs), func(i int) bool { return addr < idx.funcs[i].highpc })
	if i < len(idx.funcs) && idx.funcs[i].lowpc <= addr && addr < idx.funcs[i].highpc {
		return idx.funcs[i].name, true
	}
	return "", false
}

// DIEFor returns the DWARF name information for a mangled/linkage name.
func (idx *Index) DIEFor(name string) (DIEInfo, bool) {
	d, ok := idx.symToDIE[name]
	return d, ok
}
