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

// Package validation gates a build on the correctness of every variant's
// manifest and compose. All violations are collected and reported together
// before any image is built.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/release"
)

// Violation is one failed check.
type Violation struct {
	Variant string
	File    string
	Message string
}

// String renders the violation on a single line.
func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s: %s", v.Variant, v.File, v.Message)
}

// Error aggregates every violation found across all variants.
type Error struct {
	Violations []Violation
}

// Error implements error.
func (e *Error) Error() string {
	lines := make([]string, 0, len(e.Violations)+1)
	lines = append(lines, fmt.Sprintf("release validation failed with %d error(s):", len(e.Violations)))
	for _, v := range e.Violations {
		lines = append(lines, "  - "+v.String())
	}
	return strings.Join(lines, "\n")
}

// Validator runs the schema and policy gates.
type Validator struct {
	schemas *schemaGate
}

// New compiles the schemas and returns a Validator.
func New() (*Validator, error) {
	schemas, err := newSchemaGate()
	if err != nil {
		return nil, err
	}
	return &Validator{schemas: schemas}, nil
}

// Validate checks every variant and returns an *Error listing all
// violations, or nil.
func (v *Validator) Validate(ctx context.Context, variants []*release.Variant) error {
	var all []Violation
	for _, variant := range variants {
		found := v.ValidateVariant(variant)
		logging.DebugContext(ctx, "Variant %s: %d validation issue(s)", variant.Name, len(found))
		all = append(all, found...)
	}
	if len(all) > 0 {
		return &Error{Violations: all}
	}
	logging.InfoContext(ctx, "Validated %d variant(s)", len(variants))
	return nil
}

// ValidateVariant returns the violations found in one variant.
func (v *Validator) ValidateVariant(variant *release.Variant) []Violation {
	var out []Violation
	add := func(file string, msgs []string) {
		for _, msg := range msgs {
			out = append(out, Violation{Variant: variant.Name, File: file, Message: msg})
		}
	}

	manifestDoc, err := documentOf(variant.RawManifest, variant.Manifest)
	if err != nil {
		add(release.ManifestFileName, []string{err.Error()})
	} else {
		add(release.ManifestFileName, v.schemas.check(v.schemas.manifest, manifestDoc))
	}
	add(release.ManifestFileName, CheckManifest(variant.Manifest))

	composeDoc, err := documentOf(variant.RawCompose, variant.Compose)
	if err != nil {
		add(release.ComposeFileName, []string{err.Error()})
	} else {
		add(release.ComposeFileName, v.schemas.check(v.schemas.compose, composeDoc))
	}
	add(release.ComposeFileName, CheckCompose(variant.Compose, variant.Manifest.IsCore()))

	return out
}
