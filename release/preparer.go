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
	"fmt"
	"image"
	_ "image/png" // avatar decoding
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
)

// Avatar size bounds, in pixels per side.
const (
	AvatarMinSize = 200
	AvatarMaxSize = 300
)

// Preparer materializes release directories.
type Preparer struct{}

// NewPreparer returns a Preparer.
func NewPreparer() *Preparer {
	return &Preparer{}
}

// CreateReleaseDir creates the variant's release directory and clears
// everything in it except image artifacts of this version, which the image
// cache checks against their recorded hashes.
func (p *Preparer) CreateReleaseDir(ctx context.Context, v *Variant) error {
	if err := os.MkdirAll(v.ReleaseDir, 0o755); err != nil {
		return errors.Wrap("create release directory", v.ReleaseDir, err)
	}
	entries, err := os.ReadDir(v.ReleaseDir)
	if err != nil {
		return errors.Wrap("read release directory", v.ReleaseDir, err)
	}

	keep := v.ArtifactNames()
	for _, e := range entries {
		if e.Type().IsRegular() && keep[e.Name()] {
			logging.DebugContext(ctx, "Keeping image artifact %s", e.Name())
			continue
		}
		path := filepath.Join(v.ReleaseDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrap("clean release directory", path, err)
		}
	}
	logging.DebugContext(ctx, "Prepared release directory %s", v.ReleaseDir)
	return nil
}

// CopyReleaseFiles writes the release manifest, the release compose and the
// build compose, then copies every other registry file present.
func (p *Preparer) CopyReleaseFiles(ctx context.Context, v *Variant) error {
	manifest, err := ReleaseManifest(v)
	if err != nil {
		return err
	}
	if err := WriteManifest(filepath.Join(v.ReleaseDir, ManifestFileName), manifest); err != nil {
		return err
	}

	releaseCompose, err := ReleaseCompose(v)
	if err != nil {
		return err
	}
	if err := WriteCompose(filepath.Join(v.ReleaseDir, ComposeFileName), releaseCompose); err != nil {
		return err
	}

	buildCompose, err := BuildCompose(v)
	if err != nil {
		return err
	}
	if err := WriteCompose(v.BuildComposePath, buildCompose); err != nil {
		return err
	}

	files, err := CollectFiles(v.SourceDirs())
	if err != nil {
		return errors.Wrap("collect release files", v.Name, err)
	}
	for _, f := range files {
		if f.Spec.Kind == KindAvatar {
			if err := ValidateAvatar(f.Source); err != nil {
				return err
			}
		}
		dst := filepath.Join(v.ReleaseDir, f.Target)
		if err := copyReleaseFile(f.Source, dst); err != nil {
			return errors.Wrap("copy release file", f.Source, err)
		}
		logging.DebugContext(ctx, "Copied %s -> %s", f.Source, dst)
	}

	logging.InfoContext(ctx, "Prepared release files for %s in %s", manifest.Name, v.ReleaseDir)
	return nil
}

// ReleaseManifest returns the manifest as it ships: the build-only image
// block removed and the upstream version filled in.
func ReleaseManifest(v *Variant) (*Manifest, error) {
	m, err := v.Manifest.Clone()
	if err != nil {
		return nil, errors.Wrap("copy manifest", v.Name, err)
	}
	m.Image = nil
	if v.UpstreamVersion != "" {
		m.UpstreamVersion = v.UpstreamVersion
	}
	return m, nil
}

// ReleaseCompose returns the compose as it ships: canonical tags, no build
// sections, provenance labels on every service.
func ReleaseCompose(v *Variant) (*Compose, error) {
	c, err := v.Compose.Clone()
	if err != nil {
		return nil, errors.Wrap("copy compose", v.Name, err)
	}
	tags := CanonicalTags(v.Manifest, c)
	for _, name := range c.ServiceNames() {
		svc := c.Services[name]
		if svc == nil {
			continue
		}
		if svc.Labels == nil {
			svc.Labels = StringMap{}
		}
		if svc.Build == nil && svc.Image != "" {
			svc.Labels[ExternalImageLabel] = svc.Image
		}
		svc.Labels[DnpNameLabel] = v.Manifest.Name
		svc.Labels[DnpVersionLabel] = v.Manifest.Version
		svc.Image = tags[name]
		svc.Build = nil
	}
	return c, nil
}

// BuildCompose returns the compose used to build local images: build
// sections kept with absolute contexts and local images set to their
// canonical tags.
func BuildCompose(v *Variant) (*Compose, error) {
	c, err := v.Compose.Clone()
	if err != nil {
		return nil, errors.Wrap("copy compose", v.Name, err)
	}
	tags := CanonicalTags(v.Manifest, c)
	for _, name := range c.ServiceNames() {
		svc := c.Services[name]
		if svc == nil || svc.Build == nil {
			continue
		}
		svc.Image = tags[name]
		if !filepath.IsAbs(svc.Build.Context) {
			svc.Build.Context = filepath.Join(v.RootDir, svc.Build.Context)
		}
	}
	return c, nil
}

// ValidateAvatar checks the avatar is a square PNG within the size bounds.
func ValidateAvatar(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap("open avatar", path, err)
	}
	defer func() { _ = f.Close() }()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return errors.Wrap("decode avatar", path, err)
	}
	if format != "png" {
		return fmt.Errorf("avatar %s must be a PNG, got %s", path, format)
	}
	if cfg.Width != cfg.Height {
		return fmt.Errorf("avatar %s must be square, got %dx%d", path, cfg.Width, cfg.Height)
	}
	if cfg.Width < AvatarMinSize || cfg.Width > AvatarMaxSize {
		return fmt.Errorf("avatar %s must be between %d and %d px per side, got %d",
			path, AvatarMinSize, AvatarMaxSize, cfg.Width)
	}
	return nil
}

// copyReleaseFile copies src to dst. YAML sources with a .json target are
// converted.
func copyReleaseFile(src, dst string) error {
	srcExt := strings.ToLower(filepath.Ext(src))
	if filepath.Ext(dst) == ".json" && (srcExt == ".yml" || srcExt == ".yaml") {
		raw, err := ReadRaw(src)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(raw, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(dst, append(data, '\n'), 0o644)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
