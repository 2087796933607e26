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

// Command cackled is the main process of spec.md's API-attribution
// engine: it loads the configuration, listens for the build-wrapper
// RPC stream, and attributes each linked output as LinkInvoked frames
// arrive. Deliberately thin -- no subcommands, no flags, no terminal
// rendering -- since all of that is an explicit external collaborator
// (spec.md §1 Non-goals), following the teacher's own thin cmd/
// entrypoints that wire a handful of constructors together and call
// Serve.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cackle-rs/cackle-go/internal/apimatch"
	"github.com/cackle-rs/cackle-go/internal/attribution"
	"github.com/cackle-rs/cackle-go/internal/config"
	"github.com/cackle-rs/cackle-go/internal/crate"
	"github.com/cackle-rs/cackle-go/internal/engine"
	"github.com/cackle-rs/cackle-go/internal/log"
	"github.com/cackle-rs/cackle-go/internal/membership"
	"github.com/cackle-rs/cackle-go/internal/rpcserver"
)

const (
	configPathEnv = "CACKLE_CONFIG"
	socketPathEnv = "CACKLE_SOCKET"
)

// Exit codes, spec.md §6.
const (
	exitSuccess = iota
	exitConfigError
	exitDisallowedUsage
	exitInternalError
	exitUnsupportedFormat
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		log.Errorf("cackled: %v", err)
		return exitConfigError
	}

	apis, err := apiRules(cfg)
	if err != nil {
		log.Errorf("cackled: %v", err)
		return exitConfigError
	}
	matcher := apimatch.New(apis)

	reg := newRegistry(cfg)

	socketPath, err := rpcserver.SocketPathFromEnv(socketPathEnv)
	if err != nil {
		log.Errorf("cackled: %v", err)
		return exitConfigError
	}

	srv, err := rpcserver.Listen(socketPath, rpcserver.Handlers{
		OnCrateCompiled:  reg.handleCrateCompiled,
		OnLinkInvoked:    reg.handleLinkInvoked(matcher),
		OnBuildScriptRun: reg.handleBuildScriptRun,
	})
	if err != nil {
		log.Errorf("cackled: %v", err)
		return exitInternalError
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("cackled: listening on %s", socketPath)
	if err := srv.Serve(ctx); err != nil {
		log.Errorf("cackled: %v", err)
		return exitInternalError
	}
	return exitSuccess
}

func loadConfig() (*config.File, error) {
	path := os.Getenv(configPathEnv)
	if path == "" {
		return nil, fmt.Errorf("environment variable %s is not set", configPathEnv)
	}
	return config.Load(path)
}

func apiRules(cfg *config.File) (map[string]apimatch.Rules, error) {
	rules := map[string]apimatch.Rules{}
	for name, api := range cfg.APIs() {
		rules[name] = apimatch.Rules{Include: api.Include, Exclude: api.Exclude}
	}
	return rules, nil
}

// registry holds the mutable, in-memory build state that accrues across
// the life of the process: the Crate-Membership Map (append-only,
// spec.md §5) plus everything needed to resolve a crate's permissions.
type registry struct {
	cfg     *config.File
	members *membership.Map

	mu            sync.Mutex
	ignoreUnreach map[crate.ID]bool
}

func newRegistry(cfg *config.File) *registry {
	return &registry{
		cfg:           cfg,
		members:       membership.New(),
		ignoreUnreach: map[crate.ID]bool{},
	}
}

// resolve always passes an empty dependerPkg: the RPC protocol's
// CrateCompiled frame identifies a crate by its own id and kind, not by
// which dependent package pulled it in as a build/test dependency, so the
// dep.build/dep.test override chain never applies to it (see
// SPEC_FULL.md's Open Questions for the resulting scope of effect).
func (r *registry) resolve(id crate.ID) crate.PermissionSet {
	return r.cfg.Resolve(id.Package, id.Kind, "")
}

func parseKind(s string) crate.Kind {
	switch s {
	case "build", "build-script":
		return crate.KindBuildScript
	case "test":
		return crate.KindTest
	case "proc-macro":
		return crate.KindProcMacro
	default:
		return crate.KindPrimary
	}
}

func (r *registry) handleCrateCompiled(msg rpcserver.CrateCompiled) {
	id := crate.ID{Package: msg.CrateID, Kind: parseKind(msg.Kind)}
	manifest, err := membership.LoadManifest(id, msg.DepsFilePath)
	if err != nil {
		log.Warnf("cackled: crate %s: %v", id, err)
		return
	}
	r.members.Add(manifest)

	perm := r.resolve(id)
	if perm.IgnoreUnreachable {
		r.mu.Lock()
		r.ignoreUnreach[id] = true
		r.mu.Unlock()
	}
	if !perm.AllowUnsafe {
		for _, src := range msg.SourceFiles {
			if _, found, err := attribution.ScanUnsafe(id, src, perm.AllowUnsafe); err != nil {
				log.Warnf("cackled: scanning %s for unsafe: %v", src, err)
			} else if found {
				log.Warnf("cackled: crate %s uses unsafe in %s without permission", id, src)
			}
		}
	}
}

func (r *registry) handleLinkInvoked(matcher *apimatch.Matcher) func(rpcserver.LinkInvoked, *rpcserver.Writer) string {
	return func(msg rpcserver.LinkInvoked, w *rpcserver.Writer) string {
		linkID := rpcserver.NewLinkID()
		go r.analyzeAndReply(linkID, msg, matcher, w)
		return linkID
	}
}

func (r *registry) analyzeAndReply(linkID string, msg rpcserver.LinkInvoked, matcher *apimatch.Matcher, w *rpcserver.Writer) {
	r.mu.Lock()
	ignoreUnreach := make(map[crate.ID]bool, len(r.ignoreUnreach))
	for k, v := range r.ignoreUnreach {
		ignoreUnreach[k] = v
	}
	r.mu.Unlock()

	result, err := engine.AnalyzeLink(context.Background(), engine.LinkInput{
		LinkID:            linkID,
		OutputPath:        msg.OutputPath,
		ObjectPaths:       msg.ObjectFiles,
		ArchivePaths:      msg.Archives,
		IsProcMacro:       msg.LinkKind == "proc-macro",
		Members:           r.members,
		Matcher:           matcher,
		Resolve:           r.resolve,
		IgnoreUnreachable: ignoreUnreach,
	})
	if err != nil {
		log.Errorf("cackled: analyzing %s: %v", linkID, err)
		return
	}
	for _, warning := range result.Warnings {
		log.Warnf("cackled: %s", warning)
	}

	if err := rpcserver.SendProblems(w, rpcserver.ToProblems(linkID, result.Problems)); err != nil {
		log.Errorf("cackled: sending problems for %s: %v", linkID, err)
	}
}

func (r *registry) handleBuildScriptRun(msg rpcserver.BuildScriptRun) rpcserver.BuildScriptRunResponse {
	sandbox := r.cfg.Sandbox
	return rpcserver.BuildScriptRunResponse{
		RunInSandbox:  sandbox.Kind != "Disabled",
		SandboxConfig: &sandbox,
	}
}
