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

// Package pipeline runs the build and upload of a package: resolve
// variants, validate, prepare release directories, build images, upload
// each release, clean up superseded pins and persist what was produced.
//
// Stages run strictly in order. A failing stage ends the run; skipped
// stages are recorded with the reason. Pin cleanup is best effort and
// never fails a run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cowdogmoo/dnpack/builder"
	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/git"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/pins"
	"github.com/cowdogmoo/dnpack/release"
	"github.com/cowdogmoo/dnpack/uploader"
	"github.com/cowdogmoo/dnpack/validation"
	"github.com/cowdogmoo/dnpack/variants"
)

// PinCleaner removes pins superseded by commit on branch.
type PinCleaner interface {
	CleanSuperseded(ctx context.Context, branch, commit string) (pins.Report, error)
}

// PinCleanerFunc returns the cleaner for one package name.
type PinCleanerFunc func(packageName string) PinCleaner

// Options controls one run.
type Options struct {
	Variants variants.Options
	Build    builder.Options

	// SkipUpload stops after building; no connection test, upload, pin
	// cleanup or releases record happens.
	SkipUpload bool
	// DeleteOldPins unpins the branch's previous uploads after upload.
	DeleteOldPins bool

	// Git is the branch and commit recorded in pin metadata.
	Git git.State

	// RecordPath, when set, receives the JSON build record.
	RecordPath  string
	ToolVersion string
}

// RunState is the run-wide context a record is written with.
type RunState struct {
	Branch       string
	Commit       string
	UploadTarget string
}

// Orchestrator sequences the stages of a run.
type Orchestrator struct {
	resolver  *variants.Resolver
	validator *validation.Validator
	preparer  *release.Preparer
	creator   builder.BuilderCreatorFunc
	detector  *builder.StrategyDetector

	uploader uploader.Uploader
	target   string
	cleaners PinCleanerFunc

	now func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithUploader sets the upload backend and the target name recorded for
// its uploads.
func WithUploader(u uploader.Uploader, target string) Option {
	return func(o *Orchestrator) {
		o.uploader = u
		o.target = target
	}
}

// WithPinCleaner enables pin cleanup after upload.
func WithPinCleaner(fn PinCleanerFunc) Option {
	return func(o *Orchestrator) {
		o.cleaners = fn
	}
}

// WithDetector replaces the host build strategy detector.
func WithDetector(d *builder.StrategyDetector) Option {
	return func(o *Orchestrator) {
		o.detector = d
	}
}

// WithClock replaces time.Now for recorded upload times.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New returns an orchestrator that builds images with builders from
// creator.
func New(creator builder.BuilderCreatorFunc, opts ...Option) (*Orchestrator, error) {
	validator, err := validation.New()
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		resolver:  variants.NewResolver(),
		validator: validator,
		preparer:  release.NewPreparer(),
		creator:   creator,
		detector:  builder.NewStrategyDetector(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run is the mutable state of one Run call.
type run struct {
	o        *Orchestrator
	opts     Options
	id       string
	entries  []*release.Variant
	results  []VariantResult
	skipped  []string
	stages   []StageStatus
	uploaded bool
}

func (r *run) record(s StageStatus) {
	r.stages = append(r.stages, s)
}

// step runs fn as stage and records its outcome.
func (r *run) step(ctx context.Context, stage Stage, variant string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	s := StageStatus{Stage: stage, Variant: variant, Status: StatusCompleted, Duration: time.Since(start)}
	if err != nil {
		s.Status = StatusFailed
		s.Err = err
	}
	r.record(s)
	return err
}

func (r *run) skip(stage Stage, reason string) {
	r.record(StageStatus{Stage: stage, Status: StatusSkipped, Reason: reason})
}

func (r *run) snapshot() Results {
	return Results{runID: r.id, variants: r.results, skipped: r.skipped, stages: r.stages}
}

// Run executes every stage. On failure the returned Results hold the
// stages up to and including the failed one.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Results, error) {
	r := &run{o: o, opts: opts, id: uuid.NewString()}
	start := time.Now()
	logging.DebugContext(ctx, "Starting run %s", r.id)

	err := r.execute(ctx)
	results := r.snapshot()
	if err != nil {
		return results, err
	}

	if opts.RecordPath != "" {
		state := RunState{Branch: opts.Git.Branch, Commit: opts.Git.Commit}
		if r.uploaded {
			state.UploadTarget = o.target
		}
		rec := NewRecord(results, state, time.Since(start), opts.ToolVersion)
		if err := WriteRecord(opts.RecordPath, rec); err != nil {
			return results, err
		}
		logging.InfoContext(ctx, "Build record written to %s", opts.RecordPath)
	}
	return results, nil
}

func (r *run) execute(ctx context.Context) error {
	o, opts := r.o, r.opts

	if err := r.step(ctx, StageResolve, "", r.resolve); err != nil {
		return err
	}

	if err := r.step(ctx, StageValidate, "", func(ctx context.Context) error {
		return o.validator.Validate(ctx, r.entries)
	}); err != nil {
		return err
	}

	switch {
	case opts.SkipUpload:
		r.skip(StageVerifyConnection, "upload disabled")
	case o.uploader == nil:
		return r.step(ctx, StageVerifyConnection, "", func(context.Context) error {
			return errors.New("no upload backend configured")
		})
	default:
		if err := r.step(ctx, StageVerifyConnection, "", o.uploader.TestConnection); err != nil {
			return err
		}
	}

	for _, v := range r.entries {
		if err := r.step(ctx, StageCreateDirs, v.Name, func(ctx context.Context) error {
			return o.preparer.CreateReleaseDir(ctx, v)
		}); err != nil {
			return err
		}
	}
	for _, v := range r.entries {
		if err := r.step(ctx, StageCopyFiles, v.Name, func(ctx context.Context) error {
			return o.preparer.CopyReleaseFiles(ctx, v)
		}); err != nil {
			return err
		}
	}

	if err := r.step(ctx, StageBuild, "", r.build); err != nil {
		return err
	}

	if opts.SkipUpload {
		r.skip(StageUpload, "upload disabled")
	} else {
		for i, v := range r.entries {
			if err := r.step(ctx, StageUpload, v.Name, func(ctx context.Context) error {
				return r.upload(ctx, i, v)
			}); err != nil {
				return err
			}
		}
		r.uploaded = true
	}

	r.deleteOldPins(ctx)

	return r.step(ctx, StagePersist, "", r.persist)
}

func (r *run) resolve(ctx context.Context) error {
	res, err := r.o.resolver.Resolve(ctx, r.opts.Variants)
	if err != nil {
		return err
	}
	r.entries = res.Entries
	r.skipped = res.Skipped

	for _, v := range res.Entries {
		// A malformed version leaves NextVersion empty; validation reports it.
		next, _ := release.BumpVersion(v.Manifest.Version, "patch")
		r.results = append(r.results, VariantResult{
			Variant:         v.Name,
			Name:            v.Manifest.Name,
			Version:         v.Manifest.Version,
			NextVersion:     next,
			UpstreamVersion: v.UpstreamVersion,
			ReleaseDir:      v.ReleaseDir,
		})
	}
	return nil
}

func (r *run) build(ctx context.Context) error {
	svc := builder.NewBuildService(r.o.creator, r.opts.Build).WithDetector(r.o.detector)
	built, err := svc.Build(ctx, r.entries)
	if err != nil {
		return err
	}
	for _, b := range built {
		for i := range r.results {
			if r.results[i].Variant == b.Variant {
				r.results[i].Artifacts = append(r.results[i].Artifacts, artifactFromResult(b))
			}
		}
	}
	return nil
}

func (r *run) upload(ctx context.Context, i int, v *release.Variant) error {
	meta := uploader.PinMetadata{
		Name:            v.Manifest.Name,
		Version:         v.Manifest.Version,
		UpstreamVersion: v.UpstreamVersion,
		Commit:          r.opts.Git.Commit,
		Branch:          r.opts.Git.Branch,
	}

	lastLogged := -1
	onProgress := func(fraction float64) {
		pct := int(fraction * 100)
		if pct/10 > lastLogged/10 {
			lastLogged = pct
			logging.DebugContext(ctx, "Uploading %s: %d%%", v.Manifest.Name, pct)
		}
	}

	logging.InfoContext(ctx, "Uploading %s %s to %s", v.Manifest.Name, v.Manifest.Version, r.o.target)
	hash, err := r.o.uploader.AddFromFS(ctx, v.ReleaseDir, meta, onProgress)
	if err != nil {
		return errors.Wrap(fmt.Sprintf("upload %s", v.Manifest.Name), v.ReleaseDir, err)
	}
	r.results[i].ReleaseMultiHash = hash
	logging.InfoContext(ctx, "Uploaded %s: %s", v.Manifest.Name, hash)
	return nil
}

// deleteOldPins never fails the run; unpin failures are kept in the
// variant's report and the stage reason.
func (r *run) deleteOldPins(ctx context.Context) {
	switch {
	case !r.opts.DeleteOldPins:
		r.skip(StageDeleteOldPins, "not requested")
		return
	case !r.uploaded:
		r.skip(StageDeleteOldPins, "nothing uploaded")
		return
	case r.o.cleaners == nil:
		r.skip(StageDeleteOldPins, "upload backend does not manage pins")
		return
	case r.opts.Git.Branch == "" || r.opts.Git.Commit == "":
		r.skip(StageDeleteOldPins, "git branch and commit unknown")
		return
	}

	for i, v := range r.entries {
		start := time.Now()
		report, err := r.o.cleaners(v.Manifest.Name).CleanSuperseded(ctx, r.opts.Git.Branch, r.opts.Git.Commit)
		s := StageStatus{Stage: StageDeleteOldPins, Variant: v.Name, Status: StatusCompleted, Duration: time.Since(start)}
		if err != nil {
			logging.WarnContext(ctx, "Could not clean old pins of %s: %v", v.Manifest.Name, err)
			s.Reason = err.Error()
		} else {
			s.Reason = report.String()
			if failed := report.Err(); failed != nil {
				logging.WarnContext(ctx, "Some old pins of %s were not removed:\n%v", v.Manifest.Name, failed)
			}
			r.results[i].PinCleanup = &report
		}
		r.record(s)
	}
}

func (r *run) persist(ctx context.Context) error {
	if !r.uploaded {
		logging.DebugContext(ctx, "Nothing uploaded, releases record unchanged")
		return nil
	}
	at := r.o.now()
	for i, v := range r.entries {
		hash := r.results[i].ReleaseMultiHash
		if hash == "" {
			continue
		}
		path := releasesPath(v.ManifestPath)
		if err := RecordRelease(path, v.Manifest.Version, hash, r.o.target, at); err != nil {
			return err
		}
		logging.DebugContext(ctx, "Recorded %s %s in %s", v.Manifest.Name, v.Manifest.Version, path)
	}
	return nil
}
