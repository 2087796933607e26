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

// Package rpcserver implements the wire protocol of spec.md §6: a
// length-framed, newline-delimited JSON stream between the build-wrapper
// processes (the external collaborator that intercepts the compiler,
// linker, and build scripts) and this engine, over a Unix socket whose
// path comes from an environment variable. Each line is one JSON
// envelope; encoding/json's control-character escaping guarantees no
// frame ever contains a literal newline, so newline-delimiting alone is a
// safe, sufficient framing for this stream.
//
// link_id minting follows the teacher's converter/spdx.go pattern
// (uuid.New().String() stamped onto an emitted record).
package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/cackle-rs/cackle-go/internal/attribution"
	"github.com/cackle-rs/cackle-go/internal/config"
	"github.com/cackle-rs/cackle-go/internal/log"
)

// Envelope wraps every frame. Type selects which payload field is valid.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// CrateCompiled notifies the engine that a compilation step finished.
type CrateCompiled struct {
	CrateID      string   `json:"crate_id"`
	Kind         string   `json:"kind"`
	DepsFilePath string   `json:"deps_file_path"`
	SourceFiles  []string `json:"source_files"`
}

// LinkInvoked notifies the engine that a link step is ready for
// analysis. The engine replies with a Problems message once attribution
// for this output completes.
type LinkInvoked struct {
	OutputPath  string   `json:"output_path"`
	ObjectFiles []string `json:"object_files"`
	Archives    []string `json:"archives"`
	LinkKind    string   `json:"link_kind"`
}

// BuildScriptRun asks whether a build script should run sandboxed.
type BuildScriptRun struct {
	Path    string `json:"path"`
	CrateID string `json:"crate_id"`
}

// BuildScriptRunResponse answers a BuildScriptRun request. The sandbox
// itself is an external collaborator (spec.md §1 Non-goals); this only
// carries the decision and config through.
type BuildScriptRunResponse struct {
	RunInSandbox  bool                  `json:"run_in_sandbox"`
	SandboxConfig *config.SandboxConfig `json:"sandbox_config,omitempty"`
}

// ProblemDTO is the wire representation of an attribution.Problem.
type ProblemDTO struct {
	Kind       string   `json:"kind"`
	Crate      string   `json:"crate"`
	API        string   `json:"api,omitempty"`
	SourceFile string   `json:"source_file,omitempty"`
	Line       int      `json:"line,omitempty"`
	Backtrace  []string `json:"backtrace,omitempty"`
}

// Problems is sent by the engine once analysis of link_id completes.
type Problems struct {
	LinkID string       `json:"link_id"`
	Items  []ProblemDTO `json:"items"`
}

func toProblemDTO(p attribution.Problem) ProblemDTO {
	dto := ProblemDTO{
		Kind:       p.Kind.String(),
		Crate:      p.Crate.String(),
		API:        p.API,
		SourceFile: p.SourceFile,
		Line:       p.Line,
	}
	for _, f := range p.Backtrace {
		dto.Backtrace = append(dto.Backtrace, f.Symbol)
	}
	return dto
}

// NewLinkID mints a fresh link_id (spec.md §6/§1.1), to be handed out
// when a LinkInvoked frame is accepted and echoed back on the eventual
// Problems reply so the wrapper can correlate the two.
func NewLinkID() string { return uuid.New().String() }

// ToProblems converts a link's attribution results into the wire
// message under the given (previously minted) link_id.
func ToProblems(linkID string, problems []attribution.Problem) Problems {
	msg := Problems{LinkID: linkID}
	for _, p := range problems {
		msg.Items = append(msg.Items, toProblemDTO(p))
	}
	return msg
}

// Handlers are the callbacks invoked as messages arrive. OnLinkInvoked
// returns the link_id that will later correlate a Problems reply sent
// over the same connection via SendProblems.
type Handlers struct {
	OnCrateCompiled func(CrateCompiled)
	// OnLinkInvoked acknowledges a link with a freshly minted link_id; the
	// writer is retained for the caller to deliver a later SendProblems
	// call asynchronously, once attribution for this output finishes. It
	// may be written to from a goroutine other than the one that accepted
	// the frame, concurrently with the connection's own frame loop, so
	// Writer serializes its own writes.
	OnLinkInvoked    func(msg LinkInvoked, w *Writer) string
	OnBuildScriptRun func(BuildScriptRun) BuildScriptRunResponse
}

// Writer serializes frame writes to one connection. A LinkInvoked
// handler is expected to retain it and call SendProblems later from a
// background goroutine once attribution finishes, while the connection's
// own frame loop keeps handling subsequent frames (and replying to them)
// on the same underlying bufio.Writer -- without the lock, those two
// writers would interleave partial frames on the wire.
type Writer struct {
	mu sync.Mutex
	bw *bufio.Writer
}

func (w *Writer) writeFrame(msgType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rpcserver: marshaling %s: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Payload: body}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("rpcserver: marshaling envelope: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.bw.Write(line); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Server listens on a Unix socket and dispatches incoming frames.
type Server struct {
	ln net.Listener
	h  Handlers

	mu    sync.Mutex
	conns map[net.Conn]bool
}

// SocketPathFromEnv reads the socket path from the named environment
// variable (spec.md §6: "a socket path passed in an environment
// variable").
func SocketPathFromEnv(envVar string) (string, error) {
	path := os.Getenv(envVar)
	if path == "" {
		return "", fmt.Errorf("rpcserver: environment variable %s is not set", envVar)
	}
	return path, nil
}

// Listen binds socketPath and returns a Server ready to Serve.
func Listen(socketPath string, h Handlers) (*Server, error) {
	os.Remove(socketPath) // stale socket from a previous crashed run
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("rpcserver: listening on %s: %w", socketPath, err)
	}
	return &Server{ln: ln, h: h, conns: map[net.Conn]bool{}}, nil
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	return s.ln.Close()
}

// Serve accepts connections until ctx is cancelled or the listener
// closes. Cancellation is cooperative: in-flight connections finish
// their current frame before observing ctx.Done (spec.md §5 cancellation
// model -- coarse boundaries only).
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rpcserver: accept: %w", err)
		}
		s.mu.Lock()
		s.conns[conn] = true
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	writer := &Writer{bw: bufio.NewWriter(conn)}

	for scanner.Scan() {
		var env Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			log.Warnf("rpcserver: malformed frame: %v", err)
			continue
		}
		if err := s.dispatch(env, writer); err != nil {
			log.Warnf("rpcserver: handling %s frame: %v", env.Type, err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("rpcserver: connection read error: %v", err)
	}
}

func (s *Server) dispatch(env Envelope, w *Writer) error {
	switch env.Type {
	case "crate_compiled":
		var msg CrateCompiled
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return err
		}
		if s.h.OnCrateCompiled != nil {
			s.h.OnCrateCompiled(msg)
		}
		return nil
	case "link_invoked":
		var msg LinkInvoked
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return err
		}
		var linkID string
		if s.h.OnLinkInvoked != nil {
			linkID = s.h.OnLinkInvoked(msg, w)
		}
		return w.writeFrame("link_accepted", map[string]string{"link_id": linkID})
	case "build_script_run":
		var msg BuildScriptRun
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return err
		}
		resp := BuildScriptRunResponse{}
		if s.h.OnBuildScriptRun != nil {
			resp = s.h.OnBuildScriptRun(msg)
		}
		return w.writeFrame("build_script_run_response", resp)
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

// SendProblems writes a Problems frame to w, one line, flushed
// immediately (§6: "sent by main when analysis completes"). Safe to call
// from a different goroutine than the one driving the connection's frame
// loop.
func SendProblems(w *Writer, msg Problems) error {
	return w.writeFrame("problems", msg)
}
