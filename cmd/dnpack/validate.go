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

	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/validation"
	"github.com/cowdogmoo/dnpack/variants"
)

var (
	validateVariants    string
	validateAllVariants bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate the manifest and compose files of a package",
	Long: `Validate the package in dir (default: the working directory) without
building anything. Every violation across all selected variants is
reported at once.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateVariants, "variants", "", "Comma separated variants to validate")
	validateCmd.Flags().BoolVar(&validateAllVariants, "all-variants", false, "Validate every variant")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	dir, err := packageDir(args)
	if err != nil {
		return err
	}
	logging.InfoContext(ctx, "Validating package: %s", dir)

	res, err := variants.NewResolver().Resolve(ctx, variants.Options{
		RootDir:         dir,
		Variants:        variants.ParseList(validateVariants),
		AllVariants:     validateAllVariants,
		VariantsDir:     cfg.Build.VariantsDir,
		ComposeFileName: cfg.Build.ComposeFileName,
		UpstreamVersion: cfg.Git.UpstreamVersion,
	})
	if err != nil {
		return err
	}
	for _, name := range res.Skipped {
		logging.WarnContext(ctx, "Variant %s skipped: no variant directory", name)
	}

	validator, err := validation.New()
	if err != nil {
		return err
	}
	if err := validator.Validate(ctx, res.Entries); err != nil {
		return err
	}

	for _, v := range res.Entries {
		logging.InfoContext(ctx, "%s %s is valid", v.Manifest.Name, v.Manifest.Version)
	}
	return nil
}
