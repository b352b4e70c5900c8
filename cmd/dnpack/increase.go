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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/release"
	"github.com/cowdogmoo/dnpack/variants"
)

var increaseCmd = &cobra.Command{
	Use:   "increase <major|minor|patch> [dir]",
	Short: "Increase the package version",
	Long: `Increase the version of the package in dir (default: the working
directory). When the root manifest carries no version, the version of every
variant manifest is increased instead.`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"major", "minor", "patch"},
	RunE:      runIncrease,
}

// bump is one rewritten manifest.
type bump struct {
	Path string
	From string
	To   string
}

func runIncrease(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	dir, err := packageDir(args[1:])
	if err != nil {
		return err
	}

	variantsDir := cfg.Build.VariantsDir
	if !filepath.IsAbs(variantsDir) {
		variantsDir = filepath.Join(dir, variantsDir)
	}

	bumps, err := increaseVersions(ctx, dir, variantsDir, args[0])
	if err != nil {
		return err
	}
	for _, b := range bumps {
		logging.OutputContext(ctx, fmt.Sprintf("%s: %s -> %s", b.Path, b.From, b.To))
	}
	return nil
}

// increaseVersions bumps the root manifest, or each variant manifest when
// the root has no version, and writes the results back.
func increaseVersions(ctx context.Context, dir, variantsDir, releaseType string) ([]bump, error) {
	root, rootPath, err := release.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if root.Version != "" {
		b, err := increaseManifest(root, rootPath, releaseType)
		if err != nil {
			return nil, err
		}
		return []bump{b}, nil
	}

	names, err := variants.ListVariants(variantsDir)
	if err != nil {
		return nil, fmt.Errorf("root manifest %s has no version and no variants were found: %w", rootPath, err)
	}

	var bumps []bump
	for _, name := range names {
		m, path, err := release.ReadManifest(filepath.Join(variantsDir, name))
		if errors.Is(err, os.ErrNotExist) {
			logging.DebugContext(ctx, "Variant %s has no manifest", name)
			continue
		}
		if err != nil {
			return bumps, err
		}
		if m.Version == "" {
			continue
		}
		b, err := increaseManifest(m, path, releaseType)
		if err != nil {
			return bumps, err
		}
		bumps = append(bumps, b)
	}
	if len(bumps) == 0 {
		return nil, fmt.Errorf("no manifest with a version found in %s", dir)
	}
	return bumps, nil
}

func increaseManifest(m *release.Manifest, path, releaseType string) (bump, error) {
	next, err := release.BumpVersion(m.Version, releaseType)
	if err != nil {
		return bump{}, err
	}
	b := bump{Path: path, From: m.Version, To: next}
	m.Version = next
	if err := release.WriteManifest(path, m); err != nil {
		return bump{}, err
	}
	return b, nil
}
