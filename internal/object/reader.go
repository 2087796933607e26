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
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"
)

// OpenOptions controls format support. AllowNonELF is the "porting flag"
// of spec.md §4.A; no non-ELF backend is wired yet, so setting it still
// yields ErrUnsupportedFormat, but it changes the error message to
// reflect an intentional attempt rather than a surprise.
type OpenOptions struct {
	AllowNonELF bool
}

// Open parses path as a single object file (not an archive). Archives
// should go through OpenArchive.
func Open(path string) (View, error) {
	return OpenWith(path, OpenOptions{})
}

// OpenWith is Open with explicit options.
func OpenWith(path string, opts OpenOptions) (View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("object: opening %q: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrMalformedObject, path, err)
	}
	return openBytes(path, data, opts)
}

func openBytes(id string, data []byte, opts OpenOptions) (View, error) {
	if !bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		if opts.AllowNonELF {
			return nil, fmt.Errorf("%w: %s is not ELF and no non-ELF backend is wired", ErrUnsupportedFormat, id)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, id)
	}
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedObject, id, err)
	}
	return newELFView(id, ef)
}

// Member is one object contained in a static archive, retaining a stable
// "archive:member" identifier (spec.md §4.A) so a symbol traces back to
// the rlib/.a that contributed it.
type Member struct {
	ID   string
	View View
}

// OpenArchive expands a static archive (.a, .rlib) into its member object
// files, using the ar reader in ar.go -- grounded on the teacher's
// ExtractRlibArchive usage of the (missing-from-pack) ar subpackage.
func OpenArchive(path string) ([]Member, error) {
	return OpenArchiveWith(path, OpenOptions{})
}

// OpenArchiveWith is OpenArchive with explicit options.
func OpenArchiveWith(path string, opts OpenOptions) ([]Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("object: opening archive %q: %w", path, err)
	}
	defer f.Close()

	ar, err := NewArReader(f)
	if err != nil {
		return nil, fmt.Errorf("object: %q: %w", path, err)
	}

	var members []Member
	for {
		hdr, err := ar.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return members, fmt.Errorf("object: %q: %w", path, err)
		}
		if hdr.Size == 0 {
			continue
		}
		data, err := io.ReadAll(ar)
		if err != nil {
			return members, fmt.Errorf("object: reading member %q of %q: %w", hdr.Name, path, err)
		}
		id := path + ":" + hdr.Name
		view, err := openBytes(id, data, opts)
		if err != nil {
			// A non-object member (e.g. cargo's metadata blob) doesn't
			// abort the whole archive; skip it.
			continue
		}
		members = append(members, Member{ID: id, View: view})
	}
	return members, nil
}
