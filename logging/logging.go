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

// Package logging provides the context-carried logger used by every stage of
// the package pipeline. All logging should go through the context functions
// (InfoContext, WarnContext, ...) so that scoped loggers propagate.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the severity level of a log message
type LogLevel int

// OutputType represents the output format for logs
type OutputType int

// Output types for different log formats
const (
	PlainOutput OutputType = iota
	ColorOutput
	JSONOutput
)

// Log levels ordered from least to most severe.
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// CustomLogger writes leveled, optionally scoped messages to a console writer.
// Scoped children created with WithScope share the parent's writer and lock.
type CustomLogger struct {
	mu            *sync.Mutex
	LogLevel      slog.Level
	OutputType    OutputType
	Quiet         bool
	Verbose       bool
	ConsoleWriter io.Writer
	StdoutWriter  io.Writer
	Scope         string
}

// NewCustomLogger creates a plain-text logger writing to stderr.
func NewCustomLogger(level slog.Level) *CustomLogger {
	return &CustomLogger{
		mu:            &sync.Mutex{},
		LogLevel:      level,
		OutputType:    PlainOutput,
		ConsoleWriter: os.Stderr,
		StdoutWriter:  os.Stdout,
	}
}

// NewCustomLoggerWithOptions creates a logger from the string settings found
// in configuration and on the command line.
func NewCustomLoggerWithOptions(logLevelStr, outputFormat string, quiet, verbose bool) *CustomLogger {
	l := NewCustomLogger(DetermineLogLevel(logLevelStr))

	switch outputFormat {
	case "json":
		l.OutputType = JSONOutput
	case "color":
		l.OutputType = ColorOutput
	}

	if verbose && l.LogLevel > slog.LevelDebug {
		l.LogLevel = slog.LevelDebug
	}
	l.Quiet = quiet
	l.Verbose = verbose
	return l
}

// WithScope returns a child logger whose messages are prefixed by scope,
// typically a package variant name.
func (l *CustomLogger) WithScope(scope string) *CustomLogger {
	l.lock()
	defer l.unlock()

	child := &CustomLogger{
		mu:            l.mu,
		LogLevel:      l.LogLevel,
		OutputType:    l.OutputType,
		Quiet:         l.Quiet,
		Verbose:       l.Verbose,
		ConsoleWriter: l.ConsoleWriter,
		StdoutWriter:  l.StdoutWriter,
		Scope:         scope,
	}
	if l.Scope != "" && scope != "" {
		child.Scope = l.Scope + "/" + scope
	}
	return child
}

func (l *CustomLogger) lock() {
	if l.mu == nil {
		l.mu = &sync.Mutex{}
	}
	l.mu.Lock()
}

func (l *CustomLogger) unlock() {
	l.mu.Unlock()
}

// SetQuiet enables or disables quiet mode. In quiet mode only errors are shown.
func (l *CustomLogger) SetQuiet(quiet bool) {
	l.lock()
	defer l.unlock()
	l.Quiet = quiet
}

// SetVerbose enables or disables verbose mode, which shows debug messages.
func (l *CustomLogger) SetVerbose(verbose bool) {
	l.lock()
	defer l.unlock()
	l.Verbose = verbose
}

// IsQuiet returns whether the logger is in quiet mode.
func (l *CustomLogger) IsQuiet() bool {
	l.lock()
	defer l.unlock()
	return l.Quiet
}

// enabledLocked must be called while holding l.mu.
func (l *CustomLogger) enabledLocked(level LogLevel) bool {
	if l.Quiet {
		return level == ErrorLevel
	}
	if l.Verbose {
		return true
	}
	if level == DebugLevel {
		return l.LogLevel <= slog.LevelDebug
	}
	return slogLevel(level) >= l.LogLevel
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *CustomLogger) render(level LogLevel, now time.Time, msg string) string {
	switch l.OutputType {
	case JSONOutput:
		entry := map[string]string{
			"time":  now.Format(time.RFC3339),
			"level": level.String(),
			"msg":   msg,
		}
		if l.Scope != "" {
			entry["scope"] = l.Scope
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return msg
		}
		return string(data)
	case ColorOutput:
		if l.Scope != "" {
			msg = color.CyanString("[%s]", l.Scope) + " " + msg
		}
		var prefixed string
		switch level {
		case DebugLevel:
			prefixed = color.HiBlackString("[DEBUG]") + " " + msg
		case WarnLevel:
			prefixed = color.HiYellowString("[WARN]") + " " + msg
		case ErrorLevel:
			prefixed = color.HiRedString("[ERROR]") + " " + msg
		default:
			prefixed = color.HiGreenString("[INFO]") + " " + msg
		}
		return fmt.Sprintf("[%s] %s", now.Format("2006-01-02 15:04:05"), prefixed)
	default:
		if l.Scope != "" {
			msg = "[" + l.Scope + "] " + msg
		}
		return fmt.Sprintf("[%s] %s", now.Format("2006-01-02 15:04:05"), msg)
	}
}

func (l *CustomLogger) log(level LogLevel, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	l.lock()
	defer l.unlock()

	if !l.enabledLocked(level) || l.ConsoleWriter == nil {
		return
	}
	line := l.render(level, time.Now(), msg)
	if _, err := fmt.Fprintln(l.ConsoleWriter, line); err != nil {
		fmt.Fprintln(os.Stderr, line)
	}
}

// Info logs an informational message.
func (l *CustomLogger) Info(format string, args ...any) {
	l.log(InfoLevel, format, args...)
}

// Warn logs a warning message.
func (l *CustomLogger) Warn(format string, args ...any) {
	l.log(WarnLevel, format, args...)
}

// Debug logs a debug message.
func (l *CustomLogger) Debug(format string, args ...any) {
	l.log(DebugLevel, format, args...)
}

// Error logs an error message. It accepts either an error, a format string,
// or any other value as the first argument.
func (l *CustomLogger) Error(firstArg any, args ...any) {
	switch v := firstArg.(type) {
	case error:
		if len(args) == 0 {
			l.log(ErrorLevel, "%s", v.Error())
			return
		}
		l.log(ErrorLevel, v.Error(), args...)
	case string:
		l.log(ErrorLevel, v, args...)
	default:
		l.log(ErrorLevel, "%v", v)
	}
}

// Output writes a result value to stdout, as indented JSON when the logger
// is in JSON mode.
func (l *CustomLogger) Output(data any) {
	l.lock()
	w := l.StdoutWriter
	jsonMode := l.OutputType == JSONOutput
	l.unlock()

	if w == nil {
		return
	}

	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			l.Error("failed to encode JSON output: %v", err)
		}
		return
	}
	if _, err := fmt.Fprintln(w, data); err != nil {
		l.Error("failed to write output: %v", err)
	}
}

// DetermineLogLevel converts a string to slog.Level
func DetermineLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// WithLogger returns a new context with the provided logger.
func WithLogger(ctx context.Context, l *CustomLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithScope returns a context whose logger prefixes messages with scope.
func WithScope(ctx context.Context, scope string) context.Context {
	return WithLogger(ctx, FromContext(ctx).WithScope(scope))
}

// FromContext retrieves the logger from the context, or a new default logger
// when none is stored.
func FromContext(ctx context.Context) *CustomLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*CustomLogger); ok && l != nil {
			return l
		}
	}
	return NewCustomLogger(slog.LevelInfo)
}

// InfoContext logs an informational message using the logger from context.
func InfoContext(ctx context.Context, message string, args ...any) {
	FromContext(ctx).Info(message, args...)
}

// WarnContext logs a warning message using the logger from context.
func WarnContext(ctx context.Context, message string, args ...any) {
	FromContext(ctx).Warn(message, args...)
}

// DebugContext logs a debug message using the logger from context.
func DebugContext(ctx context.Context, message string, args ...any) {
	FromContext(ctx).Debug(message, args...)
}

// ErrorContext logs an error message using the logger from context.
func ErrorContext(ctx context.Context, firstArg any, args ...any) {
	FromContext(ctx).Error(firstArg, args...)
}

// OutputContext writes a result value to stdout using the logger from context.
func OutputContext(ctx context.Context, data any) {
	FromContext(ctx).Output(data)
}
