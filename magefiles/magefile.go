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

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	// mage utility functions
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

func init() {
	os.Setenv("GO111MODULE", "on")
}

// InstallDeps tidies the module and installs pre-commit.
func InstallDeps() error {
	fmt.Println(color.YellowString("Installing dependencies."))

	if err := inRepoRoot(func() error { return sh.RunV("go", "mod", "tidy") }); err != nil {
		return fmt.Errorf("failed to tidy go.mod: %w", err)
	}
	if err := sh.RunV("python3", "-m", "pip", "install", "--user", "pre-commit"); err != nil {
		return fmt.Errorf("failed to install pre-commit: %w", err)
	}
	return nil
}

// InstallPreCommitHooks installs pre-commit hooks locally
func InstallPreCommitHooks() error {
	mg.Deps(InstallDeps)

	fmt.Println(color.YellowString("Installing pre-commit hooks."))
	return inRepoRoot(func() error { return sh.RunV("pre-commit", "install") })
}

// RunPreCommit runs all pre-commit hooks locally
func RunPreCommit() error {
	fmt.Println(color.YellowString("Running all pre-commit hooks locally."))
	return inRepoRoot(func() error {
		if err := sh.RunV("pre-commit", "autoupdate"); err != nil {
			return err
		}
		return sh.RunV("pre-commit", "run", "--all-files")
	})
}

// GenerateSchemas writes the manifest and compose JSON schemas to schema/.
//
// Example usage:
//
// ```go
// mage generateschemas
// ```
func GenerateSchemas() error {
	fmt.Println(color.YellowString("Generating JSON schemas."))
	return inRepoRoot(func() error {
		return sh.RunV("go", "run", "./cmd/schema-gen", "-o", "schema")
	})
}
