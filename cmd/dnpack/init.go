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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/git"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/templates"
)

var (
	initDir          string
	initVersion      string
	initAuthor       string
	initVariants     []string
	initWithVariants bool
	initForce        bool
)

var initCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Initialize a new package",
	Long: `Initialize a new DAppNode package with scaffolding:
  - dappnode_package.json: the package manifest
  - docker-compose.yml: a single service built from the Dockerfile
  - Dockerfile and a placeholder avatar

Pass --variants (or --with-variants for mainnet and testnet) to create
variant overlays under package_variants/.`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initDir, "dir", "d", "", "Directory to create the package in (default: ./<name>)")
	initCmd.Flags().StringVar(&initVersion, "package-version", templates.DefaultVersion, "Initial package version")
	initCmd.Flags().StringVar(&initAuthor, "author", "", "Package author (default: the git user)")
	initCmd.Flags().StringSliceVar(&initVariants, "variants", nil, "Variant overlays to create")
	initCmd.Flags().BoolVar(&initWithVariants, "with-variants", false, "Create the default mainnet and testnet variants")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing package")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	name := args[0]
	dir := initDir
	if dir == "" {
		dir, _, _ = strings.Cut(name, ".")
	}

	author := initAuthor
	if author == "" {
		author = git.NewAuthorReader().Author(ctx)
	}

	variantNames := initVariants
	if len(variantNames) == 0 && initWithVariants {
		variantNames = templates.DefaultVariants
	}

	dnpName, err := templates.NewScaffolder().Create(ctx, templates.Options{
		Name:        name,
		Dir:         config.ResolvePath(dir),
		Version:     initVersion,
		Author:      author,
		Variants:    variantNames,
		VariantsDir: cfg.Build.VariantsDir,
		Force:       initForce,
	})
	if err != nil {
		return err
	}

	abs, _ := filepath.Abs(dir)
	logging.InfoContext(ctx, "Created %s in %s", dnpName, abs)
	return nil
}
