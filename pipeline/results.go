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

package pipeline

import (
	"slices"

	"github.com/cowdogmoo/dnpack/builder"
	"github.com/cowdogmoo/dnpack/pins"
)

// ImageArtifact is one built architecture of a variant.
type ImageArtifact struct {
	Architecture string   `json:"architecture"`
	Strategy     string   `json:"strategy"`
	ImageTags    []string `json:"image_tags"`
	Path         string   `json:"path,omitempty"`
	Cached       bool     `json:"cached"`
	Duration     string   `json:"duration,omitempty"`
	Notes        []string `json:"notes,omitempty"`
}

func artifactFromResult(r builder.Result) ImageArtifact {
	return ImageArtifact{
		Architecture: r.Architecture,
		Strategy:     r.Strategy.String(),
		ImageTags:    slices.Clone(r.ImageTags),
		Path:         r.ArtifactPath,
		Cached:       r.Cached,
		Duration:     r.Duration,
		Notes:        slices.Clone(r.Notes),
	}
}

// VariantResult is what a run produced for one variant.
type VariantResult struct {
	Variant         string `json:"variant"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	NextVersion     string `json:"next_version,omitempty"`
	UpstreamVersion string `json:"upstream_version,omitempty"`
	ReleaseDir      string `json:"release_dir"`
	// ReleaseMultiHash is the content reference returned by the upload
	// backend, empty when the upload was skipped.
	ReleaseMultiHash string          `json:"release_multi_hash,omitempty"`
	Artifacts        []ImageArtifact `json:"artifacts,omitempty"`
	// PinCleanup is set when old pins were cleaned for this variant.
	PinCleanup *pins.Report `json:"-"`
}

func (v VariantResult) clone() VariantResult {
	out := v
	out.Artifacts = make([]ImageArtifact, len(v.Artifacts))
	for i, a := range v.Artifacts {
		a.ImageTags = slices.Clone(a.ImageTags)
		a.Notes = slices.Clone(a.Notes)
		out.Artifacts[i] = a
	}
	if v.PinCleanup != nil {
		r := *v.PinCleanup
		r.Unpinned = slices.Clone(r.Unpinned)
		r.Failed = slices.Clone(r.Failed)
		out.PinCleanup = &r
	}
	return out
}

// Results is the read-only outcome of a run. Accessors return copies, so
// consumers cannot alter what other consumers see.
type Results struct {
	runID    string
	variants []VariantResult
	skipped  []string
	stages   []StageStatus
}

// RunID identifies the run in logs and the build record.
func (r Results) RunID() string {
	return r.runID
}

// Variants returns one result per built variant in resolution order.
func (r Results) Variants() []VariantResult {
	out := make([]VariantResult, len(r.variants))
	for i, v := range r.variants {
		out[i] = v.clone()
	}
	return out
}

// Variant returns the result for a variant key or package name.
func (r Results) Variant(name string) (VariantResult, bool) {
	for _, v := range r.variants {
		if v.Variant == name || v.Name == name {
			return v.clone(), true
		}
	}
	return VariantResult{}, false
}

// Skipped lists requested variants that do not exist.
func (r Results) Skipped() []string {
	return slices.Clone(r.skipped)
}

// Stages lists every stage transition in order.
func (r Results) Stages() []StageStatus {
	return slices.Clone(r.stages)
}

// Stage returns the statuses recorded for stage.
func (r Results) Stage(stage Stage) []StageStatus {
	var out []StageStatus
	for _, s := range r.stages {
		if s.Stage == stage {
			out = append(out, s)
		}
	}
	return out
}
