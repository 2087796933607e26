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
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The ar package referenced by the teacher's enricher/reachability/rust
// client.go (ar.NewReader(...), .Next(), the "//" long-name store, the
// "/0" first-member marker) was not present in the retrieved pack. This
// file implements the common System V / GNU ar archive format from
// scratch, matching that usage contract, since rlibs and .a static
// archives are both plain ar archives (spec.md §4.A).

const (
	arMagic       = "!<arch>\n"
	arHeaderSize  = 60
	arEndMarker   = "`\n"
)

// ArHeader is one archive member's 60-byte header, decoded.
type ArHeader struct {
	Name string
	Size int64
}

// ArReader reads the members of a Unix ar archive sequentially.
type ArReader struct {
	r          io.Reader
	longNames  string
	pending    int64 // bytes left to read/skip in the current member
	padding    bool  // whether the current member has a trailing pad byte
}

// NewArReader validates the archive magic and returns a reader positioned
// at the first member.
func NewArReader(r io.Reader) (*ArReader, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: reading ar magic: %v", ErrMalformedObject, err)
	}
	if string(magic[:]) != arMagic {
		return nil, fmt.Errorf("%w: not an ar archive", ErrMalformedObject)
	}
	return &ArReader{r: r}, nil
}

// Next advances to the next member and returns its header. It returns
// io.EOF when the archive is exhausted.
func (a *ArReader) Next() (ArHeader, error) {
	if err := a.skipRemainder(); err != nil {
		return ArHeader{}, err
	}

	var raw [arHeaderSize]byte
	n, err := io.ReadFull(a.r, raw[:])
	if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
		return ArHeader{}, io.EOF
	}
	if err != nil {
		return ArHeader{}, fmt.Errorf("%w: reading ar header: %v", ErrMalformedObject, err)
	}
	if string(raw[58:60]) != arEndMarker {
		return ArHeader{}, fmt.Errorf("%w: bad ar header terminator", ErrMalformedObject)
	}

	name := strings.TrimRight(string(raw[0:16]), " ")
	sizeStr := strings.TrimSpace(string(raw[48:58]))
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return ArHeader{}, fmt.Errorf("%w: bad ar member size %q: %v", ErrMalformedObject, sizeStr, err)
	}

	a.pending = size
	a.padding = size%2 != 0

	switch {
	case name == "//":
		// GNU long-filename store: the member's contents are a table of
		// "/"-terminated names, referenced by later members as "/<offset>".
		table := make([]byte, size)
		if _, err := io.ReadFull(a.r, table); err != nil {
			return ArHeader{}, fmt.Errorf("%w: reading long-name table: %v", ErrMalformedObject, err)
		}
		a.pending = 0
		if a.padding {
			a.skipPad()
		}
		a.longNames = string(table)
		return a.Next()
	case strings.HasPrefix(name, "/") && name != "/":
		off, convErr := strconv.Atoi(name[1:])
		if convErr == nil && off >= 0 && off < len(a.longNames) {
			name = longNameAt(a.longNames, off)
		}
	}

	return ArHeader{Name: name, Size: size}, nil
}

// Read reads from the current member's contents, implementing io.Reader
// so callers can io.Copy directly out of the archive.
func (a *ArReader) Read(p []byte) (int, error) {
	if a.pending <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > a.pending {
		p = p[:a.pending]
	}
	n, err := a.r.Read(p)
	a.pending -= int64(n)
	return n, err
}

func (a *ArReader) skipRemainder() error {
	if a.pending > 0 {
		if _, err := io.CopyN(io.Discard, a.r, a.pending); err != nil {
			return fmt.Errorf("%w: skipping ar member: %v", ErrMalformedObject, err)
		}
		a.pending = 0
	}
	if a.padding {
		a.skipPad()
	}
	return nil
}

func (a *ArReader) skipPad() {
	var b [1]byte
	io.ReadFull(a.r, b[:])
	a.padding = false
}

func longNameAt(table string, offset int) string {
	rest := table[offset:]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return strings.TrimRight(rest, "\x00\n")
}
