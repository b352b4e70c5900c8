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

package release

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

func TestValidateAvatar(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		wantErr string
	}{
		{name: "valid", w: 256, h: 256},
		{name: "lower bound", w: 200, h: 200},
		{name: "upper bound", w: 300, h: 300},
		{name: "not square", w: 256, h: 250, wantErr: "square"},
		{name: "too small", w: 100, h: 100, wantErr: "between"},
		{name: "too large", w: 512, h: 512, wantErr: "between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "avatar.png")
			writePNG(t, path, tt.w, tt.h)
			err := ValidateAvatar(path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAvatar_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avatar.png")
	writeFile(t, path, "not a png")
	assert.Error(t, ValidateAvatar(path))
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	variant := filepath.Join(root, "package_variants", "mainnet")

	writePNG(t, filepath.Join(root, "avatar-default.png"), 200, 200)
	writeFile(t, filepath.Join(root, "disclaimer.md"), "root disclaimer")
	writeFile(t, filepath.Join(root, "Getting_Started.md"), "hi")
	writeFile(t, filepath.Join(root, "geth-grafana-dashboard.json"), "{}")
	writeFile(t, filepath.Join(root, "README.md"), "ignored")
	writeFile(t, filepath.Join(variant, "disclaimer.md"), "variant disclaimer")
	writeFile(t, filepath.Join(variant, "extra-grafana-dashboard.json"), "{}")

	files, err := CollectFiles([]string{variant, root})
	require.NoError(t, err)

	byTarget := map[string]string{}
	for _, f := range files {
		byTarget[f.Target] = f.Source
	}
	assert.Equal(t, map[string]string{
		"avatar.png":                   filepath.Join(root, "avatar-default.png"),
		"disclaimer.md":                filepath.Join(variant, "disclaimer.md"),
		"getting-started.md":           filepath.Join(root, "Getting_Started.md"),
		"extra-grafana-dashboard.json": filepath.Join(variant, "extra-grafana-dashboard.json"),
		"geth-grafana-dashboard.json":  filepath.Join(root, "geth-grafana-dashboard.json"),
	}, byTarget)
}

func TestCollectFiles_Errors(t *testing.T) {
	t.Run("unreadable dir", func(t *testing.T) {
		_, err := CollectFiles([]string{filepath.Join(t.TempDir(), "missing")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list release files")
	})

	t.Run("ambiguous avatar", func(t *testing.T) {
		dir := t.TempDir()
		writePNG(t, filepath.Join(dir, "avatar-a.png"), 200, 200)
		writePNG(t, filepath.Join(dir, "avatar-b.png"), 200, 200)
		_, err := CollectFiles([]string{dir})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple avatar")
	})
}

func TestRegistryIsExhaustive(t *testing.T) {
	kinds := map[FileKind]bool{}
	for _, spec := range Registry {
		assert.False(t, kinds[spec.Kind], "duplicate kind %s", spec.Kind)
		kinds[spec.Kind] = true
		if !spec.AllowMultiple {
			assert.NotEmpty(t, spec.CanonicalName, spec.Kind)
		}
	}
}

func newTestVariant(t *testing.T) *Variant {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "avatar.png"), 256, 256)
	writeFile(t, filepath.Join(root, "setup-wizard.yml"), "version: \"2\"\nfields: []\n")

	m := &Manifest{
		Name:    "stack.dnp.dappnode.eth",
		Version: "0.1.0",
		Image:   map[string]any{"ports": []any{"80:80"}},
	}
	c := &Compose{
		Version: "3.5",
		Services: map[string]*Service{
			"web": {Build: &Build{Context: "web"}},
			"db":  {Image: "postgres:16"},
		},
	}
	return &Variant{
		Name:             DefaultVariant,
		RootDir:          root,
		Manifest:         m,
		Compose:          c,
		UpstreamVersion:  "v16",
		Images:           Images(m, c),
		ReleaseDir:       filepath.Join(root, ReleaseDirName(m.Name, m.Version)),
		BuildComposePath: filepath.Join(root, ReleaseDirName(m.Name, m.Version)+".compose.yml"),
	}
}

func TestPreparer(t *testing.T) {
	ctx := context.Background()
	v := newTestVariant(t)
	p := NewPreparer()

	require.NoError(t, os.MkdirAll(v.ReleaseDir, 0o755))
	writeFile(t, filepath.Join(v.ReleaseDir, "stale.txz"), "old")

	require.NoError(t, p.CreateReleaseDir(ctx, v))
	_, err := os.Stat(filepath.Join(v.ReleaseDir, "stale.txz"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, p.CopyReleaseFiles(ctx, v))

	// Release manifest: image stripped, upstream version set.
	m, _, err := ReadManifest(v.ReleaseDir)
	require.NoError(t, err)
	assert.Nil(t, m.Image)
	assert.Equal(t, "v16", m.UpstreamVersion)
	assert.NotNil(t, v.Manifest.Image, "source manifest must not be mutated")

	// Release compose: canonical tags, no build, provenance labels.
	rc, err := ReadCompose(filepath.Join(v.ReleaseDir, ComposeFileName))
	require.NoError(t, err)
	assert.Nil(t, rc.Services["web"].Build)
	assert.Equal(t, "web.stack.dnp.dappnode.eth:0.1.0", rc.Services["web"].Image)
	assert.Equal(t, "db.stack.dnp.dappnode.eth:0.1.0", rc.Services["db"].Image)
	assert.Equal(t, "postgres:16", rc.Services["db"].Labels[ExternalImageLabel])
	assert.NotContains(t, rc.Services["web"].Labels, ExternalImageLabel)
	assert.Equal(t, "0.1.0", rc.Services["web"].Labels[DnpVersionLabel])

	// Build compose keeps build with an absolute context.
	bc, err := ReadCompose(v.BuildComposePath)
	require.NoError(t, err)
	require.NotNil(t, bc.Services["web"].Build)
	assert.Equal(t, filepath.Join(v.RootDir, "web"), bc.Services["web"].Build.Context)
	assert.Equal(t, "web.stack.dnp.dappnode.eth:0.1.0", bc.Services["web"].Image)
	assert.Equal(t, "postgres:16", bc.Services["db"].Image)

	// Copied files.
	_, err = os.Stat(filepath.Join(v.ReleaseDir, "avatar.png"))
	assert.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(v.ReleaseDir, "setup-wizard.json"))
	require.NoError(t, err)
	var wizard map[string]any
	require.NoError(t, json.Unmarshal(data, &wizard))
	assert.Equal(t, "2", wizard["version"])

	entries, err := os.ReadDir(v.ReleaseDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{ManifestFileName, ComposeFileName, "avatar.png", "setup-wizard.json"}, names)
}

func TestPreparer_WithoutAvatar(t *testing.T) {
	v := newTestVariant(t)
	require.NoError(t, os.Remove(filepath.Join(v.RootDir, "avatar.png")))

	p := NewPreparer()
	require.NoError(t, p.CreateReleaseDir(context.Background(), v))
	require.NoError(t, p.CopyReleaseFiles(context.Background(), v))

	assert.NoFileExists(t, filepath.Join(v.ReleaseDir, "avatar.png"))
	assert.FileExists(t, filepath.Join(v.ReleaseDir, ManifestFileName))
}

func TestPreparer_InvalidAvatar(t *testing.T) {
	v := newTestVariant(t)
	writePNG(t, filepath.Join(v.RootDir, "avatar.png"), 64, 64)

	p := NewPreparer()
	require.NoError(t, p.CreateReleaseDir(context.Background(), v))
	err := p.CopyReleaseFiles(context.Background(), v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between")
}

func TestCreateReleaseDir_KeepsImageArtifacts(t *testing.T) {
	const prefix = "stack.dnp.dappnode.eth_0.1.0"

	tests := []struct {
		name    string
		archs   []string
		files   []string
		wantKept []string
	}{
		{
			name: "single arch",
			files: []string{
				prefix + ".tar.xz",
				prefix + ".tar.zst",
				prefix + ".tar.xz.partial",
				prefix + "_linux-amd64.txz",
				"stack.dnp.dappnode.eth_0.0.9.tar.xz",
				ManifestFileName,
			},
			wantKept: []string{prefix + ".tar.xz", prefix + ".tar.zst"},
		},
		{
			name:  "multi arch",
			archs: []string{"linux/amd64", "linux/arm64"},
			files: []string{
				prefix + "_linux-amd64.txz",
				prefix + "_linux-arm64.txz",
				prefix + "_linux-arm64.tar.zst",
				prefix + "_linux-riscv64.txz",
				prefix + ".tar.xz",
			},
			wantKept: []string{prefix + "_linux-amd64.txz", prefix + "_linux-arm64.txz", prefix + "_linux-arm64.tar.zst"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVariant(t)
			v.Architectures = tt.archs
			v.MultiArch = len(tt.archs) > 0

			for _, f := range tt.files {
				writeFile(t, filepath.Join(v.ReleaseDir, f), "data")
			}
			require.NoError(t, os.MkdirAll(filepath.Join(v.ReleaseDir, "leftover"), 0o755))

			require.NoError(t, NewPreparer().CreateReleaseDir(context.Background(), v))

			entries, err := os.ReadDir(v.ReleaseDir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.ElementsMatch(t, tt.wantKept, names)

			data, err := os.ReadFile(filepath.Join(v.ReleaseDir, tt.wantKept[0]))
			require.NoError(t, err)
			assert.Equal(t, "data", string(data), "kept artifacts are left untouched")
		})
	}
}

func TestCreateReleaseDir_CreatesMissingDir(t *testing.T) {
	v := newTestVariant(t)
	require.NoError(t, NewPreparer().CreateReleaseDir(context.Background(), v))

	info, err := os.Stat(v.ReleaseDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
