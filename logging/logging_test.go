/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cowdogmoo/dnpack/logging"
)

func newBufferedLogger(level, format string, quiet, verbose bool) (*logging.CustomLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logging.NewCustomLoggerWithOptions(level, format, quiet, verbose)
	l.ConsoleWriter = &buf
	return l, &buf
}

func TestNewCustomLoggerWithOptions(t *testing.T) {
	tests := []struct {
		name        string
		logLevel    string
		format      string
		verbose     bool
		wantLevel   slog.Level
		wantOutput  logging.OutputType
		wantVerbose bool
	}{
		{
			name:       "defaults",
			logLevel:   "info",
			format:     "text",
			wantLevel:  slog.LevelInfo,
			wantOutput: logging.PlainOutput,
		},
		{
			name:       "json",
			logLevel:   "error",
			format:     "json",
			wantLevel:  slog.LevelError,
			wantOutput: logging.JSONOutput,
		},
		{
			name:        "verbose lowers level",
			logLevel:    "warn",
			format:      "color",
			verbose:     true,
			wantLevel:   slog.LevelDebug,
			wantOutput:  logging.ColorOutput,
			wantVerbose: true,
		},
		{
			name:       "unknown format falls back to plain",
			logLevel:   "bogus",
			format:     "yaml",
			wantLevel:  slog.LevelInfo,
			wantOutput: logging.PlainOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := logging.NewCustomLoggerWithOptions(tt.logLevel, tt.format, false, tt.verbose)
			if l.LogLevel != tt.wantLevel {
				t.Errorf("got level %v, want %v", l.LogLevel, tt.wantLevel)
			}
			if l.OutputType != tt.wantOutput {
				t.Errorf("got output %v, want %v", l.OutputType, tt.wantOutput)
			}
			if l.Verbose != tt.wantVerbose {
				t.Errorf("got verbose %v, want %v", l.Verbose, tt.wantVerbose)
			}
		})
	}
}

func TestCustomLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		quiet     bool
		verbose   bool
		wantLines []string
		hidden    []string
	}{
		{
			name:      "default hides debug",
			level:     "info",
			wantLines: []string{"info msg", "warn msg", "error msg"},
			hidden:    []string{"debug msg"},
		},
		{
			name:      "verbose shows debug",
			level:     "info",
			verbose:   true,
			wantLines: []string{"debug msg", "info msg", "warn msg", "error msg"},
		},
		{
			name:      "quiet only errors",
			level:     "info",
			quiet:     true,
			wantLines: []string{"error msg"},
			hidden:    []string{"debug msg", "info msg", "warn msg"},
		},
		{
			name:      "warn level hides info",
			level:     "warn",
			wantLines: []string{"warn msg", "error msg"},
			hidden:    []string{"info msg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferedLogger(tt.level, "plain", tt.quiet, tt.verbose)
			l.Debug("debug msg")
			l.Info("info msg")
			l.Warn("warn msg")
			l.Error("error msg")

			out := buf.String()
			for _, want := range tt.wantLines {
				if !strings.Contains(out, want) {
					t.Errorf("expected %q in output %q", want, out)
				}
			}
			for _, h := range tt.hidden {
				if strings.Contains(out, h) {
					t.Errorf("did not expect %q in output %q", h, out)
				}
			}
		})
	}
}

func TestCustomLogger_Error(t *testing.T) {
	l, buf := newBufferedLogger("info", "plain", false, false)

	l.Error(errors.New("upload failed"))
	l.Error("build of %s failed", "geth")
	l.Error(42)

	out := buf.String()
	for _, want := range []string{"upload failed", "build of geth failed", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}

func TestCustomLogger_WithScope(t *testing.T) {
	l, buf := newBufferedLogger("info", "plain", false, false)

	l.WithScope("mainnet").Info("building")
	l.WithScope("mainnet").WithScope("amd64").Info("saving")

	out := buf.String()
	if !strings.Contains(out, "[mainnet] building") {
		t.Errorf("expected scoped message, got %q", out)
	}
	if !strings.Contains(out, "[mainnet/amd64] saving") {
		t.Errorf("expected nested scope, got %q", out)
	}
}

func TestCustomLogger_JSONOutput(t *testing.T) {
	l, buf := newBufferedLogger("info", "json", false, false)
	l.WithScope("holesky").Warn("retrying %d", 2)

	var entry map[string]string
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "WARN" || entry["msg"] != "retrying 2" || entry["scope"] != "holesky" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestCustomLogger_ColorOutputPrefixes(t *testing.T) {
	l, buf := newBufferedLogger("debug", "color", false, true)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	out := buf.String()
	for _, prefix := range []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"} {
		if !strings.Contains(out, prefix) {
			t.Errorf("expected %s in %q", prefix, out)
		}
	}
}

func TestCustomLogger_Output(t *testing.T) {
	l := logging.NewCustomLoggerWithOptions("info", "json", false, false)
	var stdout bytes.Buffer
	l.StdoutWriter = &stdout

	l.Output(map[string]string{"hash": "/ipfs/Qm"})
	if !strings.Contains(stdout.String(), `"hash": "/ipfs/Qm"`) {
		t.Errorf("unexpected output %q", stdout.String())
	}
}

func TestCustomLogger_NilConsoleWriter(t *testing.T) {
	l := logging.NewCustomLogger(slog.LevelInfo)
	l.ConsoleWriter = nil
	l.Info("should not panic")
}

func TestCustomLogger_SetQuietVerbose(t *testing.T) {
	l := logging.NewCustomLogger(slog.LevelInfo)
	l.SetQuiet(true)
	if !l.IsQuiet() {
		t.Error("expected quiet")
	}
	l.SetVerbose(true)
	if !l.Verbose {
		t.Error("expected verbose")
	}
}

func TestCustomLogger_ConcurrentAccess(t *testing.T) {
	l, buf := newBufferedLogger("info", "plain", false, false)
	scoped := l.WithScope("v")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.Info("root")
		}()
		go func() {
			defer wg.Done()
			scoped.Info("child")
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 40 {
		t.Errorf("expected 40 lines, got %d", got)
	}
}

func TestDetermineLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := logging.DetermineLogLevel(in); got != want {
			t.Errorf("DetermineLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogLevel_String(t *testing.T) {
	if logging.DebugLevel.String() != "DEBUG" || logging.ErrorLevel.String() != "ERROR" {
		t.Error("unexpected level strings")
	}
	if logging.LogLevel(99).String() != "INFO" {
		t.Error("unknown levels should render as INFO")
	}
}

func TestContextLogging(t *testing.T) {
	l, buf := newBufferedLogger("info", "plain", false, true)
	ctx := logging.WithLogger(context.Background(), l)
	ctx = logging.WithScope(ctx, "default")

	logging.InfoContext(ctx, "info %d", 1)
	logging.WarnContext(ctx, "warn")
	logging.DebugContext(ctx, "debug")
	logging.ErrorContext(ctx, errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"[default] info 1", "[default] warn", "[default] debug", "[default] boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestFromContext_Defaults(t *testing.T) {
	//nolint:staticcheck // exercising nil context handling
	if logging.FromContext(nil) == nil {
		t.Fatal("expected default logger for nil context")
	}
	if logging.FromContext(context.Background()) == nil {
		t.Fatal("expected default logger for empty context")
	}
}
