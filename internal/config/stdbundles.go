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

package config

// stdBundles are the built-in API definitions import_std can expand to
// (spec.md §4.E point 4). Each bundle is keyed by the API name it defines.
var stdBundles = map[string]map[string]APIConfig{
	"process": {
		"process": {Include: []string{"std.process"}},
	},
	"fs": {
		"fs": {Include: []string{"std.fs", "std.path"}},
	},
	"net": {
		"net": {Include: []string{"std.net"}},
	},
	"env": {
		"env": {Include: []string{"std.env"}},
	},
	"fs_net_process": {
		"fs":      {Include: []string{"std.fs", "std.path"}},
		"net":     {Include: []string{"std.net"}},
		"process": {Include: []string{"std.process"}},
	},
}
