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

// Package builder provides the abstractions for turning a resolved package
// variant into per-architecture image artifacts.
//
// # Architecture
//
// The package is organized into a few layers:
//
//   - Interfaces (builder.go): the ImageBuilder contract and request/result types
//   - Strategy (strategy.go): compose build vs buildx bake, native vs emulated
//   - Options (options.go): timeout parsing and artifact compression
//   - Service (service.go): sequential variant x architecture build loop
//
// Concrete backends live in sub-packages (builder/docker) and are injected
// through a BuilderCreatorFunc so the service layer never imports them:
//
//	svc := builder.NewBuildService(func(ctx context.Context) (builder.ImageBuilder, error) {
//	    return docker.New(ctx, docker.OptionsFromConfig(cfg))
//	}, opts)
//	results, err := svc.Build(ctx, variants)
//
// Builds are sequential across variants and architectures. A failed build
// is fatal and is never retried.
package builder

import (
	"context"
	"time"

	"github.com/cowdogmoo/dnpack/release"
)

// BuilderCreatorFunc creates an ImageBuilder instance.
// This function type enables dependency injection of builder implementations
// without creating import cycles between the service layer and concrete builders.
type BuilderCreatorFunc func(ctx context.Context) (ImageBuilder, error)

// ImageBuilder builds, tags and saves the images of one package variant for
// one architecture.
//
// Callers must call Close() when done with the builder to release resources:
//
//	b, err := creator(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() {
//	    if err := b.Close(); err != nil {
//	        logging.WarnContext(ctx, "Failed to close builder: %v", err)
//	    }
//	}()
type ImageBuilder interface {
	// Build produces the images described by req and, unless req.SkipSave
	// is set, writes the compressed image artifact to the release directory.
	Build(ctx context.Context, req Request) (*Result, error)

	// Close releases any resources held by the builder. Close should be
	// idempotent.
	Close() error
}

// Request describes a single-architecture build of one variant.
type Request struct {
	Variant *release.Variant

	// Architecture is the full platform, e.g. "linux/arm64".
	Architecture string

	// Strategy is how local images are built.
	Strategy BuildStrategy

	// Timeout bounds each external build process. Zero means no limit.
	Timeout time.Duration

	// SkipSave builds and tags images but does not write the artifact.
	SkipSave bool

	Compression Compression
}

// Result is the outcome of one Request.
type Result struct {
	Variant      string        `json:"variant"`
	Architecture string        `json:"architecture"`
	Strategy     BuildStrategy `json:"strategy"`

	// ImageTags are the canonical tags of every image in the artifact.
	ImageTags []string `json:"image_tags"`

	// ImageIDs are the content digests of the tagged images.
	ImageIDs []string `json:"image_ids,omitempty"`

	// ArtifactPath is empty when the save was skipped.
	ArtifactPath string `json:"artifact_path,omitempty"`

	// Cached is true when an up to date artifact was already on disk.
	Cached bool `json:"cached"`

	Duration string   `json:"duration,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}
