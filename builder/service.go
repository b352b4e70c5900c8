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

package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/release"
)

// BuildService runs the build of every variant for every architecture it
// declares, one at a time, through a single ImageBuilder.
type BuildService struct {
	creator  BuilderCreatorFunc
	detector *StrategyDetector
	opts     Options
}

// NewBuildService creates a new build service. The creator is invoked once
// per Build call.
func NewBuildService(creator BuilderCreatorFunc, opts Options) *BuildService {
	if opts.Compression == "" {
		opts.Compression = CompressionXZ
	}
	return &BuildService{
		creator:  creator,
		detector: NewStrategyDetector(),
		opts:     opts,
	}
}

// WithDetector replaces the host strategy detector.
func (s *BuildService) WithDetector(d *StrategyDetector) *BuildService {
	s.detector = d
	return s
}

// Requests expands a variant into one request per architecture.
func (s *BuildService) Requests(ctx context.Context, v *release.Variant) []Request {
	strategy := s.detector.DetectStrategy(ctx, v)

	archs := v.Architectures
	if len(archs) == 0 {
		archs = []string{release.DefaultArchitecture}
	}

	requests := make([]Request, 0, len(archs))
	for _, arch := range archs {
		requests = append(requests, Request{
			Variant:      v,
			Architecture: arch,
			Strategy:     strategy,
			Timeout:      s.opts.Timeout,
			SkipSave:     s.opts.SkipSave,
			Compression:  s.opts.Compression,
		})
	}
	return requests
}

// Build builds every variant in order and returns one result per variant and
// architecture. The first failure aborts the run.
func (s *BuildService) Build(ctx context.Context, variants []*release.Variant) ([]Result, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	bldr, err := s.creator(ctx)
	if err != nil {
		return nil, errors.Wrap("create builder", "", err)
	}
	defer func() {
		if err := bldr.Close(); err != nil {
			logging.WarnContext(ctx, "Failed to close builder: %v", err)
		}
	}()

	var results []Result
	for _, v := range variants {
		for _, req := range s.Requests(ctx, v) {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			logging.InfoContext(ctx, "Building %s %s for %s (%s)", v.Manifest.Name, v.Manifest.Version, req.Architecture, req.Strategy)
			start := time.Now()

			result, err := bldr.Build(ctx, req)
			if err != nil {
				return results, errors.Wrap(fmt.Sprintf("build %s", v.Manifest.Name), req.Architecture, err)
			}
			if result.Duration == "" {
				result.Duration = time.Since(start).Round(time.Millisecond).String()
			}

			if result.Cached {
				logging.InfoContext(ctx, "Reused cached artifact for %s (%s)", v.Manifest.Name, req.Architecture)
			} else {
				logging.InfoContext(ctx, "Successfully built %s for %s in %s", v.Manifest.Name, req.Architecture, result.Duration)
			}
			results = append(results, *result)
		}
	}

	return results, nil
}
