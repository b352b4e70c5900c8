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

// Package docker implements builder.ImageBuilder on top of the docker CLI
// (compose build, buildx bake) and the Docker Engine API (pull, tag,
// inspect, save).
//
// Local images are built from the variant's build compose file. Single-arch
// variants use `docker compose build`. Multi-arch variants use
// `docker buildx bake --load` once per platform, with a dedicated buildx
// builder instance and QEMU emulation installed for foreign platforms.
// External images are pulled for the target platform and re-tagged to
// their canonical release tag. All images of one architecture are then
// saved into a single compressed artifact in the release directory.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	cerrdefs "github.com/containerd/errdefs"
	dockerimage "github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"

	"github.com/cowdogmoo/dnpack/builder"
	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/imagecache"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/release"
)

// Options configures the docker builder.
type Options struct {
	// BuilderName is the buildx builder instance used for multi-arch builds.
	BuilderName string
	// BinfmtImage installs QEMU handlers for foreign platforms.
	BinfmtImage string
	// BuildxMinVersion is the oldest buildx release that supports bake
	// with compose files the way we use it.
	BuildxMinVersion string
	// CacheFile is the image cache; empty disables caching.
	CacheFile string
	// Output receives the live output of build processes. Nil keeps it
	// captured only.
	Output io.Writer
}

// OptionsFromConfig maps the global configuration onto builder options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BuilderName:      cfg.Build.BuilderName,
		BinfmtImage:      cfg.Build.BinfmtImage,
		BuildxMinVersion: cfg.Build.BuildxMinVersion,
		CacheFile:        cfg.Build.CacheFile,
	}
}

// Builder builds package images with docker.
type Builder struct {
	client   DockerClient
	runner   CommandRunner
	cache    *imagecache.Cache
	detector *builder.StrategyDetector
	opts     Options

	buildxReady bool
	emulated    map[string]bool
	closeOnce   sync.Once
	closeErr    error
}

// Verify that Builder implements builder.ImageBuilder at compile time
var _ builder.ImageBuilder = (*Builder)(nil)

// New connects to the local Docker daemon and returns a builder.
func New(ctx context.Context, opts Options) (*Builder, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap("create Docker client", "", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, errors.Wrap("verify Docker connection", "", err)
	}

	return NewWithClients(newDockerClientAdapter(cli), NewExecRunner(), opts), nil
}

// NewWithClients returns a builder using the given Docker API client and
// process runner.
func NewWithClients(client DockerClient, runner CommandRunner, opts Options) *Builder {
	if opts.BuilderName == "" {
		opts.BuilderName = "dnpack-builder"
	}
	if opts.BinfmtImage == "" {
		opts.BinfmtImage = "tonistiigi/binfmt"
	}
	if opts.BuildxMinVersion == "" {
		opts.BuildxMinVersion = "0.10.0"
	}

	b := &Builder{
		client:   client,
		runner:   runner,
		detector: builder.NewStrategyDetector(),
		opts:     opts,
		emulated: make(map[string]bool),
	}
	if opts.CacheFile != "" {
		b.cache = imagecache.New(opts.CacheFile)
	}
	return b
}

// WithDetector replaces the host strategy detector.
func (b *Builder) WithDetector(d *builder.StrategyDetector) *Builder {
	b.detector = d
	return b
}

// Build implements builder.ImageBuilder.
func (b *Builder) Build(ctx context.Context, req builder.Request) (*builder.Result, error) {
	v := req.Variant
	if v == nil || v.Manifest == nil {
		return nil, fmt.Errorf("build request has no variant")
	}
	start := time.Now()

	result := &builder.Result{
		Variant:      v.Name,
		Architecture: req.Architecture,
		Strategy:     req.Strategy,
	}

	if len(v.LocalImages()) > 0 {
		var err error
		switch req.Strategy {
		case builder.BuildxBake:
			err = b.bake(ctx, req)
		default:
			err = b.composeBuild(ctx, req)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, ext := range v.ExternalImages() {
		if err := b.pullExternal(ctx, ext, req.Architecture); err != nil {
			return nil, err
		}
	}

	for _, img := range v.Images {
		id, err := b.imageID(ctx, img.ImageTag())
		if err != nil {
			return nil, err
		}
		result.ImageTags = append(result.ImageTags, img.ImageTag())
		result.ImageIDs = append(result.ImageIDs, id)
	}

	if req.Strategy == builder.BuildxBake {
		for _, local := range v.LocalImages() {
			if err := b.verifyArchitecture(ctx, local.Tag, req.Architecture, req.Timeout); err != nil {
				return nil, err
			}
		}
	}

	if req.SkipSave {
		result.Notes = append(result.Notes, "image save skipped")
	} else if len(result.ImageTags) > 0 {
		path, cached, err := b.save(ctx, req, result.ImageTags, result.ImageIDs)
		if err != nil {
			return nil, err
		}
		result.ArtifactPath = path
		result.Cached = cached
	}

	result.Duration = time.Since(start).Round(time.Millisecond).String()
	return result, nil
}

// Close releases the Docker API client.
func (b *Builder) Close() error {
	b.closeOnce.Do(func() {
		if b.client != nil {
			b.closeErr = b.client.Close()
		}
	})
	return b.closeErr
}

func (b *Builder) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	return b.runner.Run(ctx, Command{
		Name:    "docker",
		Args:    args,
		Timeout: timeout,
		Stdout:  b.opts.Output,
		Stderr:  b.opts.Output,
	})
}

func (b *Builder) composeBuild(ctx context.Context, req builder.Request) error {
	v := req.Variant
	logging.InfoContext(ctx, "Building images of %s with docker compose", v.Manifest.Name)

	if _, err := b.run(ctx, req.Timeout, "compose", "-f", v.BuildComposePath, "build"); err != nil {
		return errors.Wrap("build images", v.Manifest.Name, err)
	}
	return nil
}

func (b *Builder) bake(ctx context.Context, req builder.Request) error {
	v := req.Variant

	if err := b.ensureBuildx(ctx); err != nil {
		return err
	}
	if err := b.ensureEmulation(ctx, req.Architecture, req.Timeout); err != nil {
		return err
	}

	logging.InfoContext(ctx, "Building images of %s for %s with buildx bake", v.Manifest.Name, req.Architecture)
	_, err := b.run(ctx, req.Timeout,
		"buildx", "bake",
		"--builder", b.opts.BuilderName,
		"--load",
		"--file", v.BuildComposePath,
		"--set", "*.platform="+req.Architecture,
	)
	if err != nil {
		return errors.Wrap("build images", fmt.Sprintf("%s %s", v.Manifest.Name, req.Architecture), err)
	}
	return nil
}

var buildxVersionPattern = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// ensureBuildx checks the buildx version and creates or selects the builder
// instance once per Builder.
func (b *Builder) ensureBuildx(ctx context.Context) error {
	if b.buildxReady {
		return nil
	}

	out, err := b.run(ctx, 0, "buildx", "version")
	if err != nil {
		return errors.Wrap("detect docker buildx", "", err)
	}
	match := buildxVersionPattern.FindStringSubmatch(out)
	if match == nil {
		return fmt.Errorf("cannot parse docker buildx version from %q", out)
	}
	have, err := semver.NewVersion(match[1])
	if err != nil {
		return errors.Wrap("parse buildx version", match[1], err)
	}
	minimum, err := semver.NewVersion(b.opts.BuildxMinVersion)
	if err != nil {
		return errors.Wrap("parse minimum buildx version", b.opts.BuildxMinVersion, err)
	}
	if have.LessThan(minimum) {
		return fmt.Errorf("docker buildx %s is older than the required %s, please upgrade", have, minimum)
	}
	logging.DebugContext(ctx, "Found docker buildx %s", have)

	if _, err := b.run(ctx, 0, "buildx", "inspect", b.opts.BuilderName); err != nil {
		logging.InfoContext(ctx, "Creating buildx builder %s", b.opts.BuilderName)
		if _, err := b.run(ctx, 0, "buildx", "create", "--name", b.opts.BuilderName, "--driver", "docker-container", "--use"); err != nil {
			return errors.Wrap("create buildx builder", b.opts.BuilderName, err)
		}
	} else {
		logging.DebugContext(ctx, "Reusing buildx builder %s", b.opts.BuilderName)
	}

	b.buildxReady = true
	return nil
}

// ensureEmulation installs QEMU handlers for platforms the host cannot run
// natively. Each architecture is set up at most once per Builder.
func (b *Builder) ensureEmulation(ctx context.Context, platform string, timeout time.Duration) error {
	arch := builder.ArchFromPlatform(platform)
	if b.emulated[arch] || !b.detector.NeedsEmulation(ctx, platform) {
		return nil
	}

	logging.InfoContext(ctx, "Installing QEMU emulation for %s", arch)
	if _, err := b.run(ctx, timeout, "run", "--privileged", "--rm", b.opts.BinfmtImage, "--install", arch); err != nil {
		return errors.Wrap("install emulation", arch, err)
	}
	b.emulated[arch] = true
	return nil
}

// verifyArchitecture runs `uname -m` inside a freshly built image to make
// sure bake produced the platform that was asked for.
func (b *Builder) verifyArchitecture(ctx context.Context, tag, platform string, timeout time.Duration) error {
	want, err := builder.ExpectedMachine(platform)
	if err != nil {
		return err
	}

	got, err := b.run(ctx, timeout, "run", "--rm", "--platform", platform, "--entrypoint", "uname", tag, "-m")
	if err != nil {
		return errors.Wrap("check image architecture", tag, err)
	}
	if got != want {
		return fmt.Errorf("image %s reports architecture %q, expected %q for %s", tag, got, want, platform)
	}
	return nil
}

type pullMessage struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (b *Builder) pullExternal(ctx context.Context, img release.ExternalImage, platform string) error {
	logging.InfoContext(ctx, "Pulling %s for %s", img.OriginalImage, platform)

	rc, err := b.client.ImagePull(ctx, img.OriginalImage, dockerimage.PullOptions{Platform: platform})
	if err != nil {
		return errors.Wrap("pull image", img.OriginalImage, err)
	}
	defer func() { _ = rc.Close() }()

	dec := json.NewDecoder(rc)
	for {
		var msg pullMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap("read pull progress", img.OriginalImage, err)
		}
		if msg.Error != "" {
			return fmt.Errorf("failed to pull image (%s): %s", img.OriginalImage, msg.Error)
		}
	}

	if err := b.client.ImageTag(ctx, img.OriginalImage, img.Tag); err != nil {
		return errors.Wrap("tag image", fmt.Sprintf("%s as %s", img.OriginalImage, img.Tag), err)
	}
	logging.DebugContext(ctx, "Tagged %s as %s", img.OriginalImage, img.Tag)
	return nil
}

func (b *Builder) imageID(ctx context.Context, tag string) (string, error) {
	info, err := b.client.ImageInspect(ctx, tag)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", fmt.Errorf("image %s not found after build", tag)
		}
		return "", errors.Wrap("inspect image", tag, err)
	}
	return info.ID, nil
}

// save writes the compressed artifact unless the cache says an identical
// one is already on disk.
func (b *Builder) save(ctx context.Context, req builder.Request, tags, ids []string) (string, bool, error) {
	v := req.Variant
	path := v.ArtifactPath(req.Architecture, req.Compression.Ext(v.MultiArch))

	key, err := imagecache.Key(ids)
	if err != nil {
		return "", false, errors.Wrap("compute image cache key", v.Manifest.Name, err)
	}

	if b.cache != nil {
		fresh, err := b.cache.IsFresh(key, path)
		if err != nil {
			logging.WarnContext(ctx, "Ignoring unreadable image cache %s: %v", b.cache.Path(), err)
		} else if fresh {
			logging.InfoContext(ctx, "Images unchanged, reusing %s", filepath.Base(path))
			return path, true, nil
		}
	}

	logging.InfoContext(ctx, "Saving %d image(s) to %s", len(tags), filepath.Base(path))
	rc, err := b.client.ImageSave(ctx, tags)
	if err != nil {
		return "", false, errors.Wrap("save images", v.Manifest.Name, err)
	}
	defer func() { _ = rc.Close() }()

	if err := writeCompressed(path, rc, req.Compression); err != nil {
		return "", false, err
	}

	if b.cache != nil {
		if err := b.cache.RecordFile(key, path); err != nil {
			logging.WarnContext(ctx, "Failed to update image cache: %v", err)
		}
	}
	return path, false, nil
}

// writeCompressed streams r into path through a temporary file so a failed
// save never leaves a truncated artifact behind.
func writeCompressed(path string, r io.Reader, c builder.Compression) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap("create release directory", filepath.Dir(path), err)
	}

	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap("create artifact", tmp, err)
	}

	if err := compress(f, r, c); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.Wrap("compress images", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap("close artifact", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap("move artifact into place", path, err)
	}
	return nil
}
