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

package docker

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/cowdogmoo/dnpack/logging"
)

// stderrTailLines bounds how much stderr a CommandError carries.
const stderrTailLines = 20

// Command is a single external process invocation.
type Command struct {
	Name string
	Args []string

	// Dir is the working directory; empty means the current one.
	Dir string

	// Timeout kills the process when exceeded. Zero means no limit.
	Timeout time.Duration

	// Stream forwards process output to these writers as it arrives, in
	// addition to capturing it.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandRunner executes external processes. The docker builder drives the
// docker CLI through it so tests can substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// CommandError describes a failed external process.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *CommandError) Error() string {
	var b strings.Builder
	switch {
	case e.TimedOut:
		fmt.Fprintf(&b, "command %q timed out", e.Command)
	case e.ExitCode >= 0:
		fmt.Fprintf(&b, "command %q exited with code %d", e.Command, e.ExitCode)
	default:
		fmt.Fprintf(&b, "command %q failed: %v", e.Command, e.Err)
	}
	if e.Stderr != "" {
		b.WriteString("\n")
		b.WriteString(e.Stderr)
	}
	return b.String()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a runner backed by the host's processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes cmd and returns its trimmed stdout. A non-zero exit, a
// timeout or a cancelled context yields a *CommandError.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (string, error) {
	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	logging.DebugContext(ctx, "Running %s", cmd)

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...) // #nosec G204
	c.Dir = cmd.Dir
	c.Stdout = teeTo(&stdout, cmd.Stdout)
	c.Stderr = teeTo(&stderr, cmd.Stderr)
	c.WaitDelay = 5 * time.Second

	err := c.Run()
	if err == nil {
		return strings.TrimSpace(stdout.String()), nil
	}

	cmdErr := &CommandError{
		Command:  cmd.String(),
		ExitCode: -1,
		Stderr:   tail(stderr.String(), stderrTailLines),
		Err:      err,
	}
	if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		cmdErr.TimedOut = true
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) && !cmdErr.TimedOut {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	return strings.TrimSpace(stdout.String()), cmdErr
}

func teeTo(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
