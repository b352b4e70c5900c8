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

// Package templates scaffolds new package directories.
package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/release"
)

// Scaffold defaults.
const (
	DefaultVersion     = "0.1.0"
	DefaultVariantsDir = "package_variants"
	// AvatarSize is the edge of the generated placeholder avatar.
	AvatarSize = 256
	nameSuffix = ".public.dappnode.eth"
)

// DefaultVariants are created when variants are requested without names.
var DefaultVariants = []string{"mainnet", "testnet"}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*(\.[a-z0-9][a-z0-9-]*)*$`)

// Options describes the package to create.
type Options struct {
	// Name is the package name. A bare name gets the .public.dappnode.eth
	// suffix.
	Name string
	// Dir is created if needed and must not already hold a manifest.
	Dir     string
	Version string
	Author  string
	// Variants, when non-empty, creates one overlay directory per name
	// under VariantsDir. The name and version then live in the overlays.
	Variants    []string
	VariantsDir string
	// Force overwrites an existing package.
	Force bool
}

// Scaffolder creates new package directories.
type Scaffolder struct{}

// NewScaffolder creates a new package scaffolder.
func NewScaffolder() *Scaffolder {
	return &Scaffolder{}
}

// PackageName returns the full package name for name.
func PackageName(name string) string {
	name = strings.TrimSpace(name)
	if strings.Contains(name, ".") {
		return name
	}
	return name + nameSuffix
}

// Create writes the manifest, compose, Dockerfile and avatar of a new
// package and returns the package name.
func (s *Scaffolder) Create(ctx context.Context, opts Options) (string, error) {
	dnpName := PackageName(opts.Name)
	if !namePattern.MatchString(dnpName) {
		return "", fmt.Errorf("invalid package name %q: use lowercase letters, digits, dashes and dots", opts.Name)
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if !release.VersionPattern.MatchString(opts.Version) {
		return "", fmt.Errorf("invalid version %q: must be major.minor.patch", opts.Version)
	}
	if opts.VariantsDir == "" {
		opts.VariantsDir = DefaultVariantsDir
	}

	if err := os.MkdirAll(opts.Dir, config.DirPermReadWriteExec); err != nil {
		return "", errors.Wrap("create package directory", opts.Dir, err)
	}
	if existing, err := release.FindManifest(opts.Dir); err == nil && !opts.Force {
		return "", fmt.Errorf("%s already exists, use --force to overwrite", existing)
	}

	serviceName, _, _ := strings.Cut(dnpName, ".")
	useVariants := len(opts.Variants) > 0

	root := packageManifest{
		Description: fmt.Sprintf("Package %s, built with dnpack", dnpName),
		Type:        release.TypeService,
		Author:      opts.Author,
		Categories:  []string{"Developer tools"},
		License:     "GPL-3.0",
		Links:       map[string]string{"homepage": "https://your-project-homepage-or-docs.io"},
	}
	if !useVariants {
		root.Name = dnpName
		root.Version = opts.Version
	}

	files := map[string][]byte{
		"docker-compose.yml": []byte(fmt.Sprintf(composeTemplate, serviceName)),
		"Dockerfile":         []byte(dockerfileTemplate),
		".gitignore":         []byte(gitignoreTemplate),
	}
	manifest, err := root.marshal()
	if err != nil {
		return "", err
	}
	files[release.ManifestFileName] = manifest

	avatar, err := placeholderAvatar()
	if err != nil {
		return "", err
	}
	files["avatar-default.png"] = avatar

	for _, name := range opts.Variants {
		if !namePattern.MatchString(name) || strings.Contains(name, ".") {
			return "", fmt.Errorf("invalid variant name %q", name)
		}
		overlay, err := packageManifest{Name: name + "." + dnpName, Version: opts.Version}.marshal()
		if err != nil {
			return "", err
		}
		dir := filepath.Join(opts.VariantsDir, name)
		files[filepath.Join(dir, release.ManifestFileName)] = overlay
		files[filepath.Join(dir, "docker-compose.yml")] = []byte(fmt.Sprintf(variantComposeTemplate, serviceName, name))
	}

	for rel, content := range files {
		path := filepath.Join(opts.Dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), config.DirPermReadWriteExec); err != nil {
			return "", errors.Wrap("create directory", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return "", errors.Wrap("write", path, err)
		}
		logging.DebugContext(ctx, "Wrote %s", path)
	}

	logging.InfoContext(ctx, "Package %s created at %s", dnpName, opts.Dir)
	if useVariants {
		logging.InfoContext(ctx, "Variants: %s (in %s)", strings.Join(opts.Variants, ", "), opts.VariantsDir)
	}
	return dnpName, nil
}

// packageManifest keeps the scaffolded manifest keys in a readable order.
type packageManifest struct {
	Name        string              `json:"name,omitempty"`
	Version     string              `json:"version,omitempty"`
	Description string              `json:"description,omitempty"`
	Type        release.PackageType `json:"type,omitempty"`
	Author      string              `json:"author,omitempty"`
	Categories  []string            `json:"categories,omitempty"`
	License     string              `json:"license,omitempty"`
	Links       map[string]string   `json:"links,omitempty"`
}

func (m packageManifest) marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap("encode manifest", m.Name, err)
	}
	return append(data, '\n'), nil
}

// placeholderAvatar draws a filled circle on a transparent square.
func placeholderAvatar() ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, AvatarSize, AvatarSize))
	fill := color.NRGBA{R: 0x2f, G: 0xbc, B: 0xb2, A: 0xff}
	c := AvatarSize / 2
	r2 := (c - 8) * (c - 8)
	for y := range AvatarSize {
		for x := range AvatarSize {
			dx, dy := x-c, y-c
			if dx*dx+dy*dy <= r2 {
				img.SetNRGBA(x, y, fill)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap("encode avatar", "", err)
	}
	return buf.Bytes(), nil
}

const composeTemplate = `version: "3.5"
services:
  %s:
    build:
      context: .
      args:
        UPSTREAM_VERSION: v0.1.0
    restart: unless-stopped
    volumes:
      - data:/data
    environment:
      LOG_LEVEL: info
volumes:
  data: {}
`

const variantComposeTemplate = `version: "3.5"
services:
  %s:
    environment:
      NETWORK: %s
`

const dockerfileTemplate = `ARG UPSTREAM_VERSION
FROM busybox:1.36

ARG UPSTREAM_VERSION
ENV UPSTREAM_VERSION=${UPSTREAM_VERSION}

CMD ["sh", "-c", "echo running $UPSTREAM_VERSION && tail -f /dev/null"]
`

const gitignoreTemplate = `build_*
*.compose.yml
`
