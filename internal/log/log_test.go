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

package log_test

import (
	"fmt"
	"testing"

	"github.com/cackle-rs/cackle-go/internal/log"
)

type recordingLogger struct {
	calls []string
}

func (r *recordingLogger) Errorf(format string, args ...any) { r.calls = append(r.calls, "Errorf:"+fmt.Sprintf(format, args...)) }
func (r *recordingLogger) Error(args ...any)                 { r.calls = append(r.calls, "Error:"+fmt.Sprint(args...)) }
func (r *recordingLogger) Warnf(format string, args ...any)  { r.calls = append(r.calls, "Warnf:"+fmt.Sprintf(format, args...)) }
func (r *recordingLogger) Warn(args ...any)                  { r.calls = append(r.calls, "Warn:"+fmt.Sprint(args...)) }
func (r *recordingLogger) Infof(format string, args ...any)  { r.calls = append(r.calls, "Infof:"+fmt.Sprintf(format, args...)) }
func (r *recordingLogger) Info(args ...any)                  { r.calls = append(r.calls, "Info:"+fmt.Sprint(args...)) }
func (r *recordingLogger) Debugf(format string, args ...any) { r.calls = append(r.calls, "Debugf:"+fmt.Sprintf(format, args...)) }
func (r *recordingLogger) Debug(args ...any)                 { r.calls = append(r.calls, "Debug:"+fmt.Sprint(args...)) }

func TestSetLoggerRoutesStaticCalls(t *testing.T) {
	rec := &recordingLogger{}
	log.SetLogger(rec)
	defer log.SetLogger(&log.DefaultLogger{})

	log.Errorf("engine: %s failed", "link1")
	log.Warnf("engine: %d warnings", 3)
	log.Infof("cackled: listening on %s", "/tmp/sock")

	want := []string{
		"Errorf:engine: link1 failed",
		"Warnf:engine: 3 warnings",
		"Infof:cackled: listening on /tmp/sock",
	}
	if len(rec.calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %v", len(rec.calls), len(want), rec.calls)
	}
	for i, w := range want {
		if rec.calls[i] != w {
			t.Errorf("call %d = %q, want %q", i, rec.calls[i], w)
		}
	}
}

func TestDefaultLoggerDebugRespectsVerbose(t *testing.T) {
	quiet := &log.DefaultLogger{Verbose: false}
	verbose := &log.DefaultLogger{Verbose: true}

	// Neither call should panic; Verbose only gates whether output is
	// actually written to stderr, which this test can't observe directly,
	// but both modes must be safely callable.
	quiet.Debugf("suppressed %d", 1)
	verbose.Debugf("shown %d", 1)
}
