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

//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	// mage utility functions
	"github.com/magefile/mage/sh"
)

type compileParams struct {
	GOOS   string
	GOARCH string
}

func (p *compileParams) populateFromEnv() {
	if p.GOOS == "" {
		p.GOOS = os.Getenv("GOOS")
		if p.GOOS == "" {
			p.GOOS = runtime.GOOS
		}
	}

	if p.GOARCH == "" {
		p.GOARCH = os.Getenv("GOARCH")
		if p.GOARCH == "" {
			p.GOARCH = runtime.GOARCH
		}
	}
}

// Compile builds the dnpack binary into bin/ for GOOS and GOARCH, which
// default to the current system. The version, commit and build date are
// stamped into the binary.
//
// Example usage:
//
// ```go
// mage compile
// GOOS=linux GOARCH=arm64 mage compile
// ```
//
// **Returns:**
//
// error: An error if any issue occurs during compilation.
func Compile() error {
	var p compileParams
	p.populateFromEnv()

	return inRepoRoot(func() error {
		version, _ := sh.Output("git", "describe", "--tags", "--always", "--dirty")
		commit, _ := sh.Output("git", "rev-parse", "HEAD")
		if version == "" {
			version = "dev"
		}
		if commit == "" {
			commit = "none"
		}
		ldflags := strings.Join([]string{
			"-s", "-w",
			"-X main.version=" + version,
			"-X main.commit=" + commit,
			"-X main.date=" + time.Now().UTC().Format(time.RFC3339),
		}, " ")

		out := filepath.Join("bin", fmt.Sprintf("dnpack-%s-%s", p.GOOS, p.GOARCH))
		fmt.Printf("Compiling the dnpack binary for %s/%s, please wait.\n", p.GOOS, p.GOARCH)
		env := map[string]string{"GOOS": p.GOOS, "GOARCH": p.GOARCH, "CGO_ENABLED": "0"}
		if err := sh.RunWithV(env, "go", "build", "-ldflags", ldflags, "-o", out, "./cmd/dnpack"); err != nil {
			return fmt.Errorf("go build failed: %w", err)
		}
		return nil
	})
}

// RunTests executes all unit tests with the race detector.
//
// Example usage:
//
// ```go
// mage runtests
// ```
//
// **Returns:**
//
// error: An error if any issue occurs while running the tests.
func RunTests() error {
	fmt.Println("Running unit tests.")
	return inRepoRoot(func() error {
		if err := sh.RunV("go", "test", "-race", "-count=1", "./..."); err != nil {
			return fmt.Errorf("failed to run unit tests: %w", err)
		}
		return nil
	})
}

// inRepoRoot runs fn with the working directory set to the repository root.
func inRepoRoot(fn func() error) error {
	root, err := sh.Output("git", "rev-parse", "--show-toplevel")
	if err != nil {
		return fmt.Errorf("failed to get repo root: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}
	if err := os.Chdir(root); err != nil {
		return fmt.Errorf("failed to change directory to repo root: %w", err)
	}
	defer func() { _ = os.Chdir(cwd) }()

	return fn()
}
