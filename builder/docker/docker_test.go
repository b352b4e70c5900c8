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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/cowdogmoo/dnpack/builder"
	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/release"
)

const (
	appTag = "app.app.dnp.dappnode.eth:0.1.0"
	dbTag  = "db.app.dnp.dappnode.eth:0.1.0"
)

func testVariant(t *testing.T, archs ...string) *release.Variant {
	t.Helper()
	dir := t.TempDir()
	releaseDir := filepath.Join(dir, release.ReleaseDirName("app.dnp.dappnode.eth", "0.1.0"))
	require.NoError(t, os.MkdirAll(releaseDir, 0o755))

	return &release.Variant{
		Name:          release.DefaultVariant,
		RootDir:       dir,
		Manifest:      &release.Manifest{Name: "app.dnp.dappnode.eth", Version: "0.1.0"},
		Architectures: archs,
		MultiArch:     len(archs) > 0,
		Images: []release.PackageImage{
			release.LocalImage{ServiceName: "app", Tag: appTag, Context: dir},
			release.ExternalImage{ServiceName: "db", Tag: dbTag, OriginalImage: "postgres:16"},
		},
		ReleaseDir:       releaseDir,
		BuildComposePath: releaseDir + ".compose.yml",
	}
}

func newTestBuilder(t *testing.T, client *MockDockerClient, runner *fakeRunner) *Builder {
	t.Helper()
	b := NewWithClients(client, runner, Options{
		CacheFile: filepath.Join(t.TempDir(), "image-cache.txt"),
	})
	return b.WithDetector(builder.NewStrategyDetectorForHost("amd64"))
}

func readArtifact(t *testing.T, path string, c builder.Compression) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	r, err := decompress(f, c)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// decompress reads back an artifact written with compression c.
func decompress(r io.Reader, c builder.Compression) (io.ReadCloser, error) {
	if c == builder.CompressionZstd {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(xr), nil
}

func TestBuild_ComposeSingleArch(t *testing.T) {
	client := &MockDockerClient{}
	runner := &fakeRunner{}
	b := newTestBuilder(t, client, runner)
	v := testVariant(t)

	result, err := b.Build(context.Background(), builder.Request{
		Variant:      v,
		Architecture: release.DefaultArchitecture,
		Strategy:     builder.ComposeBuild,
		Compression:  builder.CompressionXZ,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"compose -f " + v.BuildComposePath + " build"}, runner.lines())
	assert.Equal(t, []string{"postgres:16@linux/amd64"}, client.Pulled)
	assert.Equal(t, "postgres:16", client.Tagged[dbTag])

	require.Len(t, client.Saved, 1)
	assert.Equal(t, []string{appTag, dbTag}, client.Saved[0])

	wantPath := filepath.Join(v.ReleaseDir, "app.dnp.dappnode.eth_0.1.0.tar.xz")
	assert.Equal(t, wantPath, result.ArtifactPath)
	assert.False(t, result.Cached)
	assert.Equal(t, []string{appTag, dbTag}, result.ImageTags)
	assert.Equal(t, []string{fakeID(appTag), fakeID(dbTag)}, result.ImageIDs)
	assert.Equal(t, "tarball:"+appTag+","+dbTag, readArtifact(t, wantPath, builder.CompressionXZ))

	_, err = os.Stat(wantPath + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestBuild_CacheSkipsSecondSave(t *testing.T) {
	client := &MockDockerClient{}
	runner := &fakeRunner{}
	b := newTestBuilder(t, client, runner)
	v := testVariant(t)
	req := builder.Request{Variant: v, Architecture: release.DefaultArchitecture, Strategy: builder.ComposeBuild}

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ArtifactPath, second.ArtifactPath)

	assert.Len(t, client.Saved, 1, "images are compressed exactly once")
}

func TestBuild_CacheMissWhenImagesChange(t *testing.T) {
	build := 0
	client := &MockDockerClient{
		ImageInspectFunc: func(ctx context.Context, imageID string) (dockerimage.InspectResponse, error) {
			return dockerimage.InspectResponse{ID: fakeID(fmt.Sprintf("%s-%d", imageID, build))}, nil
		},
	}
	b := newTestBuilder(t, client, &fakeRunner{})
	v := testVariant(t)
	req := builder.Request{Variant: v, Architecture: release.DefaultArchitecture, Strategy: builder.ComposeBuild}

	_, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	build++
	result, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Len(t, client.Saved, 2)
}

func TestBuild_CacheMissWhenArtifactTampered(t *testing.T) {
	client := &MockDockerClient{}
	b := newTestBuilder(t, client, &fakeRunner{})
	v := testVariant(t)
	req := builder.Request{Variant: v, Architecture: release.DefaultArchitecture, Strategy: builder.ComposeBuild}

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first.ArtifactPath, []byte("corrupt"), 0o644))

	second, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Len(t, client.Saved, 2)
}

func buildxResponder(machine string) func(cmd Command) (string, error) {
	return func(cmd Command) (string, error) {
		line := strings.Join(cmd.Args, " ")
		switch {
		case line == "buildx version":
			return "github.com/docker/buildx v0.12.1 30feaa1", nil
		case strings.HasPrefix(line, "buildx inspect"):
			return "", &CommandError{Command: "docker " + line, ExitCode: 1, Stderr: "no builder found"}
		case strings.Contains(line, "--entrypoint uname"):
			return machine, nil
		}
		return "", nil
	}
}

func TestBuild_BuildxMultiArch(t *testing.T) {
	client := &MockDockerClient{}
	runner := &fakeRunner{respond: buildxResponder("aarch64")}
	b := newTestBuilder(t, client, runner)
	v := testVariant(t, "linux/amd64", "linux/arm64")

	result, err := b.Build(context.Background(), builder.Request{
		Variant:      v,
		Architecture: "linux/arm64",
		Strategy:     builder.BuildxBake,
		Compression:  builder.CompressionXZ,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"buildx version",
		"buildx inspect dnpack-builder",
		"buildx create --name dnpack-builder --driver docker-container --use",
		"run --privileged --rm tonistiigi/binfmt --install arm64",
		"buildx bake --builder dnpack-builder --load --file " + v.BuildComposePath + " --set *.platform=linux/arm64",
		"run --rm --platform linux/arm64 --entrypoint uname " + appTag + " -m",
	}, runner.lines())
	assert.Equal(t, []string{"postgres:16@linux/arm64"}, client.Pulled)
	assert.Equal(t, filepath.Join(v.ReleaseDir, "app.dnp.dappnode.eth_0.1.0_linux-arm64.txz"), result.ArtifactPath)
}

func TestBuild_BuildxSetupRunsOnce(t *testing.T) {
	runner := &fakeRunner{respond: func(cmd Command) (string, error) {
		line := strings.Join(cmd.Args, " ")
		switch {
		case line == "buildx version":
			return "github.com/docker/buildx v0.12.1 30feaa1", nil
		case strings.Contains(line, "--entrypoint uname"):
			if strings.Contains(line, "linux/arm64") {
				return "aarch64", nil
			}
			return "x86_64", nil
		}
		return "", nil
	}}
	b := newTestBuilder(t, &MockDockerClient{}, runner)
	v := testVariant(t, "linux/amd64", "linux/arm64")

	for _, arch := range []string{"linux/amd64", "linux/arm64", "linux/arm64"} {
		_, err := b.Build(context.Background(), builder.Request{
			Variant: v, Architecture: arch, Strategy: builder.BuildxBake, SkipSave: true,
		})
		require.NoError(t, err)
	}

	counts := map[string]int{}
	for _, line := range runner.lines() {
		switch {
		case line == "buildx version":
			counts["version"]++
		case strings.HasPrefix(line, "buildx inspect"):
			counts["inspect"]++
		case strings.HasPrefix(line, "buildx create"):
			counts["create"]++
		case strings.Contains(line, "binfmt"):
			counts["binfmt"]++
		case strings.HasPrefix(line, "buildx bake"):
			counts["bake"]++
		}
	}
	assert.Equal(t, map[string]int{"version": 1, "inspect": 1, "binfmt": 1, "bake": 3}, counts)
}

func TestBuild_BuildxTooOld(t *testing.T) {
	runner := &fakeRunner{respond: func(cmd Command) (string, error) {
		return "github.com/docker/buildx v0.8.2 6224def", nil
	}}
	b := newTestBuilder(t, &MockDockerClient{}, runner)

	_, err := b.Build(context.Background(), builder.Request{
		Variant: testVariant(t, "linux/amd64"), Architecture: "linux/amd64", Strategy: builder.BuildxBake,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than the required 0.10.0")
}

func TestBuild_ArchitectureMismatch(t *testing.T) {
	runner := &fakeRunner{respond: buildxResponder("x86_64")}
	b := newTestBuilder(t, &MockDockerClient{}, runner)

	_, err := b.Build(context.Background(), builder.Request{
		Variant: testVariant(t, "linux/arm64"), Architecture: "linux/arm64", Strategy: builder.BuildxBake,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `expected "aarch64"`)
}

func TestBuild_CommandFailureIsFatal(t *testing.T) {
	runner := &fakeRunner{respond: func(cmd Command) (string, error) {
		return "", &CommandError{Command: "docker compose build", ExitCode: 2, Stderr: "failed to solve"}
	}}
	client := &MockDockerClient{}
	b := newTestBuilder(t, client, runner)

	_, err := b.Build(context.Background(), builder.Request{
		Variant: testVariant(t), Architecture: release.DefaultArchitecture, Strategy: builder.ComposeBuild,
	})
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.Len(t, runner.commands, 1)
	assert.Empty(t, client.Saved)
}

func TestBuild_ImageMissingAfterBuild(t *testing.T) {
	client := &MockDockerClient{
		ImageInspectFunc: func(ctx context.Context, imageID string) (dockerimage.InspectResponse, error) {
			return dockerimage.InspectResponse{}, notFound(imageID)
		},
	}
	b := newTestBuilder(t, client, &fakeRunner{})

	_, err := b.Build(context.Background(), builder.Request{
		Variant: testVariant(t), Architecture: release.DefaultArchitecture, Strategy: builder.ComposeBuild,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image "+appTag+" not found after build")
}

func TestBuild_PullStreamError(t *testing.T) {
	client := &MockDockerClient{
		ImagePullFunc: func(ctx context.Context, ref string, options dockerimage.PullOptions) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(`{"error":"manifest unknown"}`)), nil
		},
	}
	b := newTestBuilder(t, client, &fakeRunner{})

	_, err := b.Build(context.Background(), builder.Request{
		Variant: testVariant(t), Architecture: release.DefaultArchitecture, Strategy: builder.ComposeBuild,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest unknown")
	assert.Empty(t, client.Tagged)
}

func TestBuild_SkipSave(t *testing.T) {
	client := &MockDockerClient{}
	b := newTestBuilder(t, client, &fakeRunner{})

	result, err := b.Build(context.Background(), builder.Request{
		Variant: testVariant(t), Architecture: release.DefaultArchitecture, Strategy: builder.ComposeBuild, SkipSave: true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.ArtifactPath)
	assert.Empty(t, client.Saved)
	assert.Contains(t, result.Notes, "image save skipped")
}

func TestBuild_Zstd(t *testing.T) {
	client := &MockDockerClient{}
	b := newTestBuilder(t, client, &fakeRunner{respond: buildxResponder("aarch64")})
	v := testVariant(t, "linux/arm64")

	result, err := b.Build(context.Background(), builder.Request{
		Variant: v, Architecture: "linux/arm64", Strategy: builder.BuildxBake, Compression: builder.CompressionZstd,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(v.ReleaseDir, "app.dnp.dappnode.eth_0.1.0_linux-arm64.tar.zst"), result.ArtifactPath)
	assert.Equal(t, "tarball:"+appTag+","+dbTag, readArtifact(t, result.ArtifactPath, builder.CompressionZstd))
}

func TestBuild_NoVariant(t *testing.T) {
	b := newTestBuilder(t, &MockDockerClient{}, &fakeRunner{})
	_, err := b.Build(context.Background(), builder.Request{})
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	client := &MockDockerClient{}
	b := newTestBuilder(t, client, &fakeRunner{})

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, client.Closed)
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	b := NewWithClients(&MockDockerClient{}, &fakeRunner{}, Options{})
	assert.Equal(t, "dnpack-builder", b.opts.BuilderName)
	assert.Equal(t, "tonistiigi/binfmt", b.opts.BinfmtImage)
	assert.Equal(t, "0.10.0", b.opts.BuildxMinVersion)
	assert.Nil(t, b.cache)
}
