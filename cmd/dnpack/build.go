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

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dnpack/builder"
	"github.com/cowdogmoo/dnpack/builder/docker"
	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/git"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/pins"
	"github.com/cowdogmoo/dnpack/pipeline"
	"github.com/cowdogmoo/dnpack/uploader"
	"github.com/cowdogmoo/dnpack/variants"
)

// buildOptions holds command-line options for the build command. Flags
// that mirror config keys are read back through the config instead.
type buildOptions struct {
	variants      string
	allVariants   bool
	skipSave      bool
	skipUpload    bool
	deleteOldPins bool
	output        string
}

var buildOpts = &buildOptions{}

var buildCmd = &cobra.Command{
	Use:   "build [dir]",
	Short: "Build a package and upload its release",
	Long: `Build the package in dir (default: the working directory).

The manifest and compose files are validated, every image is built for
each declared architecture and saved into the release directory, and the
release directory is uploaded to the configured IPFS or Swarm backend.

Variants are read from package_variants/<name>/ and merged over the root
files. Select them with --variants or build all of them with --all-variants.`,
	Example: `  # Build and upload to the local DAppNode IPFS node
  dnpack build

  # Build two variants without uploading
  dnpack build --variants mainnet,holesky --skip-upload

  # Upload to Pinata and remove pins of older commits on this branch
  dnpack build --content-provider pinata --delete-old-pins`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.String("provider", "", "Upload provider: dappnode, remote, infura, localhost, public or a URL")
	flags.String("upload-to", "", "Upload target: ipfs or swarm")
	flags.String("content-provider", "", "IPFS content provider: node or pinata")
	flags.String("upload-timeout", "", "Timeout per upload request, e.g. 10min")
	flags.StringP("timeout", "t", "", "Build timeout per process, e.g. 15min or 1h")
	flags.String("variants-dir", "", "Directory holding the package variants")
	flags.String("compose-file-name", "", "Compose file name")
	flags.String("compression", "", "Image artifact compression: xz or zstd")
	annotateConfigKey(flags, "provider", "upload.provider")
	annotateConfigKey(flags, "upload-to", "upload.target")
	annotateConfigKey(flags, "content-provider", "upload.content_provider")
	annotateConfigKey(flags, "upload-timeout", "upload.timeout")

	flags.StringVar(&buildOpts.variants, "variants", "", "Comma separated variants to build")
	flags.BoolVar(&buildOpts.allVariants, "all-variants", false, "Build every variant")
	flags.BoolVar(&buildOpts.skipSave, "skip-save", false, "Build images without saving artifacts")
	flags.BoolVar(&buildOpts.skipUpload, "skip-upload", false, "Build the release without uploading it")
	flags.BoolVar(&buildOpts.deleteOldPins, "delete-old-pins", false, "Unpin previous uploads of the current branch")
	flags.StringVarP(&buildOpts.output, "output", "o", "", "Write a JSON build record to this path")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	dir, err := packageDir(args)
	if err != nil {
		return err
	}

	runOpts, err := pipelineOptions(ctx, cfg, dir, buildOpts)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if logging.FromContext(ctx).IsQuiet() {
		out = nil
	}
	orchestrator, err := newOrchestrator(ctx, cfg, dir, buildOpts.skipUpload, out)
	if err != nil {
		return err
	}

	results, err := orchestrator.Run(ctx, runOpts)
	reportResults(ctx, results)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

// pipelineOptions maps configuration and command flags onto the options
// of one run.
func pipelineOptions(ctx context.Context, cfg *config.Config, dir string, opts *buildOptions) (pipeline.Options, error) {
	timeout, err := builder.ParseTimeout(cfg.Build.Timeout)
	if err != nil {
		return pipeline.Options{}, err
	}
	compression, err := builder.ParseCompression(cfg.Build.Compression)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		Variants: variants.Options{
			RootDir:         dir,
			Variants:        variants.ParseList(opts.variants),
			AllVariants:     opts.allVariants,
			VariantsDir:     cfg.Build.VariantsDir,
			ComposeFileName: cfg.Build.ComposeFileName,
			UpstreamVersion: cfg.Git.UpstreamVersion,
		},
		Build: builder.Options{
			Timeout:     timeout,
			SkipSave:    opts.skipSave,
			Compression: compression,
		},
		SkipUpload:    opts.skipUpload,
		DeleteOldPins: opts.deleteOldPins,
		Git:           git.ReadState(ctx, dir, cfg.Git),
		RecordPath:    opts.output,
		ToolVersion:   version,
	}, nil
}

// newOrchestrator wires the docker builder, the upload backend and, for
// Pinata uploads, pin cleanup into a pipeline.
func newOrchestrator(ctx context.Context, cfg *config.Config, dir string, skipUpload bool, out io.Writer) (*pipeline.Orchestrator, error) {
	dockerOpts := docker.OptionsFromConfig(cfg)
	dockerOpts.Output = out
	creator := func(ctx context.Context) (builder.ImageBuilder, error) {
		b, err := docker.New(ctx, dockerOpts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	var opts []pipeline.Option
	if !skipUpload {
		u, p, err := newUploader(cfg)
		if err != nil {
			return nil, err
		}
		logging.DebugContext(ctx, "Uploading with %T to %s", u, logging.RedactURL(p.Endpoint()))
		opts = append(opts, pipeline.WithUploader(u, p.Target()))

		if pinata, ok := u.(*uploader.Pinata); ok {
			opts = append(opts, pipeline.WithPinCleaner(pinCleaners(ctx, cfg, dir, pinata)))
		}
	}
	return pipeline.New(creator, opts...)
}

// newUploader selects and constructs the upload backend from cfg.
func newUploader(cfg *config.Config) (uploader.Uploader, uploader.Provider, error) {
	p, err := uploader.NewProvider(cfg.Upload.Target, cfg.Upload.Provider, cfg.Upload.ContentProvider, uploader.PinataCredentials{
		URL:          cfg.Pinata.URL,
		APIKey:       cfg.Pinata.APIKey,
		SecretAPIKey: cfg.Pinata.SecretAPIKey,
	})
	if err != nil {
		return nil, nil, err
	}
	opts, err := uploaderOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	u, err := uploader.New(p, opts...)
	if err != nil {
		return nil, nil, err
	}
	return u, p, nil
}

// uploaderOptions maps the upload settings onto client options.
func uploaderOptions(cfg *config.Config) ([]uploader.Option, error) {
	timeout, err := builder.ParseTimeout(cfg.Upload.Timeout)
	if err != nil {
		return nil, fmt.Errorf("upload timeout: %w", err)
	}
	if timeout == 0 {
		return nil, nil
	}
	return []uploader.Option{uploader.WithTimeout(timeout)}, nil
}

// pinCleaners returns pin managers scoped to each package name. Strict
// ancestry needs the package repository; without one plain commit
// comparison is used.
func pinCleaners(ctx context.Context, cfg *config.Config, dir string, backend pins.Backend) pipeline.PinCleanerFunc {
	opts := []pins.Option{pins.WithConcurrency(cfg.Pins.Concurrency)}
	if cfg.Pins.StrictAncestry {
		repo, err := git.Open(dir)
		if err != nil {
			logging.WarnContext(ctx, "Strict pin ancestry disabled: %v", err)
		} else {
			opts = append(opts, pins.WithAncestry(repo))
		}
	}
	return func(packageName string) pipeline.PinCleaner {
		return pins.NewManager(backend, packageName, opts...)
	}
}

func reportResults(ctx context.Context, results pipeline.Results) {
	for _, name := range results.Skipped() {
		logging.WarnContext(ctx, "Variant %s skipped: no variant directory", name)
	}
	for _, s := range results.Stages() {
		logging.DebugContext(ctx, "%s", s)
	}
	for _, v := range results.Variants() {
		switch {
		case v.ReleaseMultiHash != "":
			logging.InfoContext(ctx, "Released %s %s: %s", v.Name, v.Version, v.ReleaseMultiHash)
		case len(v.Artifacts) > 0:
			logging.InfoContext(ctx, "Built %s %s in %s", v.Name, v.Version, v.ReleaseDir)
		}
		if v.NextVersion != "" && v.ReleaseMultiHash != "" {
			logging.DebugContext(ctx, "Next patch version of %s is %s", v.Name, v.NextVersion)
		}
	}
}
