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

package object_test

import (
	"errors"
	"os"
	"testing"

	"github.com/cackle-rs/cackle-go/internal/object"
)

// TestOpenRejectsNonELF exercises the magic-byte dispatch (spec.md §4.A)
// without depending on any real object-file fixture.
func TestOpenRejectsNonELF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-elf-*")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	if _, err := f.WriteString("#!/bin/sh\necho hi\n"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	f.Close()

	_, err = object.Open(f.Name())
	if !errors.Is(err, object.ErrUnsupportedFormat) {
		t.Errorf("Open() error = %v, want ErrUnsupportedFormat", err)
	}
}

// TestOpenRealELFBinary exercises the full Object Reader against the
// currently running test binary itself, which on Linux is always a real
// ELF executable -- avoiding the need to check a binary fixture into the
// tree.
func TestOpenRealELFBinary(t *testing.T) {
	self, err := os.Executable()
	if err != nil {
		t.Skipf("os.Executable() unavailable: %v", err)
	}

	v, err := object.Open(self)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", self, err)
	}
	if v.ID() != self {
		t.Errorf("ID() = %q, want %q", v.ID(), self)
	}
	if len(v.Sections()) == 0 {
		t.Error("Sections() is empty, want at least one section for a real binary")
	}
	if len(v.Symbols()) == 0 {
		t.Error("Symbols() is empty, want at least one symbol for an unstripped test binary")
	}
	if _, ok := v.Entry(); !ok {
		t.Error("Entry() ok = false, want true for an executable")
	}
}
