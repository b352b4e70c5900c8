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

// Package variants resolves which builds of a package to produce and
// materializes the merged manifest and compose of each.
package variants

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dario.cat/mergo"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/release"
)

// ErrNoValidVariants is returned when none of the requested variants exist.
var ErrNoValidVariants = errors.New("No valid variants specified")

// Options controls variant resolution.
type Options struct {
	// RootDir holds the base manifest and compose.
	RootDir string
	// Variants lists the requested variant names. Empty means no variants.
	Variants []string
	// AllVariants selects every directory under VariantsDir.
	AllVariants bool
	// VariantsDir is relative to RootDir unless absolute.
	VariantsDir string
	// ComposeFileName is the compose file name in RootDir and variant dirs.
	ComposeFileName string
	// UpstreamVersion overrides the derived upstream version.
	UpstreamVersion string
}

// Result is the outcome of a resolution.
type Result struct {
	// Entries follow the order of the requested variant names.
	Entries []*release.Variant
	// Skipped lists requested names without a variant directory.
	Skipped []string
}

// Resolver builds release.Variant entries from a package directory.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns one entry per valid requested variant, or a single
// default entry when no variants were requested.
func (r *Resolver) Resolve(ctx context.Context, opts Options) (*Result, error) {
	if opts.ComposeFileName == "" {
		opts.ComposeFileName = release.ComposeFileName
	}
	variantsDir := opts.VariantsDir
	if variantsDir != "" && !filepath.IsAbs(variantsDir) {
		variantsDir = filepath.Join(opts.RootDir, variantsDir)
	}

	requested := opts.Variants
	if opts.AllVariants {
		all, err := ListVariants(variantsDir)
		if err != nil {
			return nil, err
		}
		requested = all
	}

	if len(requested) == 0 {
		entry, err := r.resolveOne(opts, release.DefaultVariant, "")
		if err != nil {
			return nil, err
		}
		return &Result{Entries: []*release.Variant{entry}}, nil
	}

	var valid, skipped []string
	for _, name := range dedupe(requested) {
		info, err := os.Stat(filepath.Join(variantsDir, name))
		if err == nil && info.IsDir() {
			valid = append(valid, name)
		} else {
			skipped = append(skipped, name)
		}
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %s (looked in %s)", ErrNoValidVariants, strings.Join(skipped, ", "), variantsDir)
	}
	if len(skipped) > 0 {
		logging.WarnContext(ctx, "Skipping unknown variants: %s", strings.Join(skipped, ", "))
	}

	result := &Result{Skipped: skipped}
	for _, name := range valid {
		entry, err := r.resolveOne(opts, name, filepath.Join(variantsDir, name))
		if err != nil {
			return nil, errors.Wrap("resolve variant", name, err)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

func (r *Resolver) resolveOne(opts Options, name, variantDir string) (*release.Variant, error) {
	manifestPath, err := release.FindManifest(opts.RootDir)
	if err != nil {
		return nil, err
	}
	rawManifest, err := release.ReadRaw(manifestPath)
	if err != nil {
		return nil, err
	}
	rawCompose, err := release.ReadRaw(filepath.Join(opts.RootDir, opts.ComposeFileName))
	if err != nil {
		return nil, err
	}

	// The manifest that receives version bumps is the one that carries the
	// version field.
	versionPath := manifestPath
	if variantDir != "" {
		if overlayPath, err := release.FindManifest(variantDir); err == nil {
			overlay, err := release.ReadRaw(overlayPath)
			if err != nil {
				return nil, err
			}
			if err := Merge(rawManifest, overlay); err != nil {
				return nil, errors.Wrap("merge manifest", overlayPath, err)
			}
			if _, ok := overlay["version"]; ok {
				versionPath = overlayPath
			}
		}

		composeOverlay := filepath.Join(variantDir, opts.ComposeFileName)
		if _, err := os.Stat(composeOverlay); err == nil {
			overlay, err := release.ReadRaw(composeOverlay)
			if err != nil {
				return nil, err
			}
			if err := Merge(rawCompose, overlay); err != nil {
				return nil, errors.Wrap("merge compose", composeOverlay, err)
			}
		}
	}

	manifest, err := release.DecodeManifest(rawManifest)
	if err != nil {
		return nil, err
	}
	compose, err := release.DecodeCompose(rawCompose)
	if err != nil {
		return nil, err
	}

	archs := manifest.Architectures
	multiArch := len(archs) > 0
	if !multiArch {
		archs = []string{release.DefaultArchitecture}
	}

	releaseDir := filepath.Join(opts.RootDir, release.ReleaseDirName(manifest.Name, manifest.Version))
	return &release.Variant{
		Name:             name,
		RootDir:          opts.RootDir,
		VariantDir:       variantDir,
		ManifestPath:     versionPath,
		Manifest:         manifest,
		Compose:          compose,
		RawManifest:      rawManifest,
		RawCompose:       rawCompose,
		UpstreamVersion:  release.UpstreamVersion(manifest, compose, opts.UpstreamVersion),
		Architectures:    archs,
		MultiArch:        multiArch,
		Images:           release.Images(manifest, compose),
		ReleaseDir:       releaseDir,
		BuildComposePath: releaseDir + ".compose.yml",
	}, nil
}

// Merge deep-merges overlay into base: scalars and lists from overlay
// replace those in base, maps are merged key by key.
func Merge(base, overlay map[string]any) error {
	return mergo.Merge(&base, overlay, mergo.WithOverride)
}

// ListVariants returns the variant directory names under dir, sorted.
func ListVariants(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap("list variants", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ParseList splits a comma-separated variant list.
func ParseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(names []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
