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

package attribution_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cackle-rs/cackle-go/internal/attribution"
	"github.com/cackle-rs/cackle-go/internal/crate"
)

func writeSource(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lib.rs")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestScanUnsafeAllowUnsafeShortCircuits(t *testing.T) {
	id := crate.ID{Package: "libc"}
	p, found, err := attribution.ScanUnsafe(id, "/does/not/exist.rs", true)
	if err != nil {
		t.Fatalf("ScanUnsafe() error = %v", err)
	}
	if found {
		t.Errorf("ScanUnsafe() found = true with allowUnsafe=true, want false without even reading the file")
	}
	_ = p
}

func TestScanUnsafeFindsStandaloneToken(t *testing.T) {
	path := writeSource(t, "fn safe() {}\n\nunsafe fn danger() {\n    std::mem::transmute(0)\n}\n")
	id := crate.ID{Package: "libc"}

	p, found, err := attribution.ScanUnsafe(id, path, false)
	if err != nil {
		t.Fatalf("ScanUnsafe() error = %v", err)
	}
	if !found {
		t.Fatal("ScanUnsafe() found = false, want true")
	}
	if p.Kind != attribution.DisallowedUnsafe {
		t.Errorf("Kind = %v, want DisallowedUnsafe", p.Kind)
	}
	if p.Line != 3 {
		t.Errorf("Line = %d, want 3", p.Line)
	}
	if p.Crate != id {
		t.Errorf("Crate = %v, want %v", p.Crate, id)
	}
}

func TestScanUnsafeIgnoresSubstringMatches(t *testing.T) {
	path := writeSource(t, "use std::cell::UnsafeCell;\nfn f(_x: unsafe_cell::Thing) {}\n")
	_, found, err := attribution.ScanUnsafe(crate.ID{Package: "libc"}, path, false)
	if err != nil {
		t.Fatalf("ScanUnsafe() error = %v", err)
	}
	if found {
		t.Error("ScanUnsafe() found = true for identifiers merely containing \"unsafe\" as a substring, want false")
	}
}

func TestScanUnsafeMissingFileErrors(t *testing.T) {
	_, _, err := attribution.ScanUnsafe(crate.ID{Package: "libc"}, "/no/such/file.rs", false)
	if err == nil {
		t.Fatal("ScanUnsafe() error = nil, want an error for a missing source file")
	}
}
