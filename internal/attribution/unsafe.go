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

package attribution

import (
	"bufio"
	"fmt"
	"os"
	"regexp"

	"github.com/cackle-rs/cackle-go/internal/crate"
)

// unsafeToken matches a standalone "unsafe" identifier, not a substring
// of a longer identifier (e.g. "unsafe_cell" or "MyUnsafe").
var unsafeToken = regexp.MustCompile(`\bunsafe\b`)

// ScanUnsafe implements spec.md §4.H's secondary lexical scan: the
// compiler's forbid-unsafe flag is the primary enforcement mechanism
// (handled outside this package, by the build-wrapper collaborator), and
// this catches what that flag doesn't -- attributes like #[no_mangle]
// and tokens discarded by macro expansion before the forbid-unsafe lint
// ever sees them. It is complementary, not part of the graph analysis:
// it runs per source file, independent of reachability or the symbol
// graph.
func ScanUnsafe(id crate.ID, sourceFile string, allowUnsafe bool) (Problem, bool, error) {
	if allowUnsafe {
		return Problem{}, false, nil
	}
	f, err := os.Open(sourceFile)
	if err != nil {
		return Problem{}, false, fmt.Errorf("attribution: scanning %q for unsafe: %w", sourceFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if unsafeToken.MatchString(scanner.Text()) {
			return Problem{
				Kind:       DisallowedUnsafe,
				Crate:      id,
				SourceFile: sourceFile,
				Line:       line,
			}, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Problem{}, false, fmt.Errorf("attribution: scanning %q for unsafe: %w", sourceFile, err)
	}
	return Problem{}, false, nil
}
