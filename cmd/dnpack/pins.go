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
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cowdogmoo/dnpack/config"
	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/git"
	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/pins"
	"github.com/cowdogmoo/dnpack/release"
	"github.com/cowdogmoo/dnpack/uploader"
	"github.com/cowdogmoo/dnpack/variants"
)

var (
	pinsName     string
	pinsVariants string
	pinsRemote   string
	pinsDryRun   bool
)

var pinsCmd = &cobra.Command{
	Use:   "pins",
	Short: "Manage the Pinata pins of a package",
	Long: `List and clean up the Pinata pins of a package. Pins are matched by
the package name, read from the manifest in dir unless --name is given.
When the root manifest carries no name, the names of the package variants
are used, all of them unless --variants narrows the selection.

Requires PINATA_API_KEY and PINATA_SECRET_API_KEY.`,
}

var pinsListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List pins grouped by branch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPinsList,
}

var pinsCleanBranchesCmd = &cobra.Command{
	Use:   "clean-branches [dir]",
	Short: "Unpin uploads of branches deleted from the remote",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPinsCleanBranches,
}

var pinsCleanOldCmd = &cobra.Command{
	Use:   "clean-old [dir]",
	Short: "Unpin uploads older than a number of days",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPinsCleanOld,
}

func init() {
	pinsCmd.PersistentFlags().StringVar(&pinsName, "name", "", "Package name (default: read from the manifest)")
	pinsCmd.PersistentFlags().StringVar(&pinsVariants, "variants", "", "Comma separated variants whose package names are used")
	pinsCmd.PersistentFlags().Int("concurrency", 0, "Maximum parallel unpin requests")
	pinsCmd.PersistentFlags().BoolVar(&pinsDryRun, "dry-run", false, "Show what would be unpinned without unpinning")
	annotateConfigKey(pinsCmd.PersistentFlags(), "concurrency", "pins.concurrency")

	pinsCleanBranchesCmd.Flags().StringVar(&pinsRemote, "remote", git.DefaultRemote, "Git remote holding the live branches")
	pinsCleanOldCmd.Flags().Int("days", 0, "Unpin uploads older than this many days")
	annotateConfigKey(pinsCleanOldCmd.Flags(), "days", "pins.max_age_days")

	pinsCmd.AddCommand(pinsListCmd)
	pinsCmd.AddCommand(pinsCleanBranchesCmd)
	pinsCmd.AddCommand(pinsCleanOldCmd)
}

// packagePins is the pin manager of one package name.
type packagePins struct {
	name    string
	manager *pins.Manager
}

// pinsManagers builds a manager per package name of the package in args.
func pinsManagers(cmd *cobra.Command, args []string) ([]packagePins, string, error) {
	cfg := configFromContext(cmd)
	if cfg == nil {
		return nil, "", fmt.Errorf("configuration not initialized")
	}
	dir, err := packageDir(args)
	if err != nil {
		return nil, "", err
	}
	names, err := pinsPackageNames(cmd.Context(), cfg, dir, pinsName, pinsVariants)
	if err != nil {
		return nil, "", err
	}
	backend, err := pinataBackend(cfg)
	if err != nil {
		return nil, "", err
	}

	out := make([]packagePins, 0, len(names))
	for _, name := range names {
		out = append(out, packagePins{
			name:    name,
			manager: pins.NewManager(backend, name, pins.WithConcurrency(cfg.Pins.Concurrency)),
		})
	}
	return out, dir, nil
}

func pinataBackend(cfg *config.Config) (*uploader.Pinata, error) {
	if !cfg.HasPinataCredentials() {
		return nil, fmt.Errorf("pin management requires PINATA_API_KEY and PINATA_SECRET_API_KEY")
	}
	opts, err := uploaderOptions(cfg)
	if err != nil {
		return nil, err
	}
	return uploader.NewPinata(uploader.PinataProvider{
		URL:          cfg.Pinata.URL,
		APIKey:       cfg.Pinata.APIKey,
		SecretAPIKey: cfg.Pinata.SecretAPIKey,
	}, opts...), nil
}

// pinsPackageNames returns override, the name of the manifest in dir, or
// the names of the package variants. Variants are resolved when requested
// or when the root manifest has no name.
func pinsPackageNames(ctx context.Context, cfg *config.Config, dir, override, variantList string) ([]string, error) {
	if override != "" {
		return []string{override}, nil
	}

	requested := variants.ParseList(variantList)
	if len(requested) == 0 {
		m, path, err := release.ReadManifest(dir)
		if err != nil {
			return nil, err
		}
		if m.Name != "" {
			return []string{m.Name}, nil
		}
		logging.DebugContext(ctx, "%s has no name, using the variant names", path)
	}

	res, err := variants.NewResolver().Resolve(ctx, variants.Options{
		RootDir:         dir,
		Variants:        requested,
		AllVariants:     len(requested) == 0,
		VariantsDir:     cfg.Build.VariantsDir,
		ComposeFileName: cfg.Build.ComposeFileName,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve package names in %s, or pass --name: %w", dir, err)
	}

	seen := make(map[string]bool, len(res.Entries))
	var names []string
	for _, v := range res.Entries {
		if v.Manifest.Name == "" || seen[v.Manifest.Name] {
			continue
		}
		seen[v.Manifest.Name] = true
		names = append(names, v.Manifest.Name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no package name found in %s, pass --name", dir)
	}
	return names, nil
}

func runPinsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pkgs, _, err := pinsManagers(cmd, args)
	if err != nil {
		return err
	}

	jsonOutput := configFromContext(cmd).Log.Format == "json"
	w := cmd.OutOrStdout()
	for _, pkg := range pkgs {
		groups, err := pkg.manager.FetchPinsGroupedByBranch(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			logging.OutputContext(ctx, groups)
			continue
		}
		if len(pkgs) > 1 {
			if _, err := color.New(color.Bold, color.Underline).Fprintln(w, pkg.name); err != nil {
				return err
			}
		}
		if err := writePinTable(w, groups); err != nil {
			return err
		}
	}
	return nil
}

// writePinTable prints one block per branch, releases (no branch) first.
func writePinTable(w io.Writer, groups []pins.BranchPins) error {
	header := color.New(color.Bold)
	for _, g := range groups {
		branch := g.Branch
		if branch == "" {
			branch = "(no branch)"
		}
		if _, err := header.Fprintf(w, "%s (%d)\n", branch, len(g.Pins)); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, p := range g.Pins {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
				p.Hash, p.Metadata.Version, shortHash(p.Metadata.Commit), p.DatePinned.UTC().Format(time.DateTime))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func runPinsCleanBranches(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pkgs, dir, err := pinsManagers(cmd, args)
	if err != nil {
		return err
	}

	repo, err := git.Open(dir)
	if err != nil {
		return err
	}
	branches, err := repo.RemoteBranches(ctx, pinsRemote)
	if err != nil {
		return err
	}
	logging.DebugContext(ctx, "Remote %s has %d branches", pinsRemote, len(branches))

	var errs errors.List
	for _, pkg := range pkgs {
		if pinsDryRun {
			errs.Add(previewDeletedBranches(ctx, pkg.manager, branches))
			continue
		}
		report, err := pkg.manager.CleanDeletedBranches(ctx, branches)
		errs.Add(finishCleanup(ctx, pkg.name, report, err))
	}
	return errs.ErrOrNil()
}

func previewDeletedBranches(ctx context.Context, m *pins.Manager, live []string) error {
	groups, err := m.FetchPinsGroupedByBranch(ctx)
	if err != nil {
		return err
	}
	alive := make(map[string]bool, len(live))
	for _, b := range live {
		alive[b] = true
	}
	for _, g := range groups {
		if g.Branch == "" || alive[g.Branch] {
			continue
		}
		for _, p := range g.Pins {
			logging.InfoContext(ctx, "Would unpin %s (%s %s)", p.Hash, g.Branch, p.Metadata.Version)
		}
	}
	return nil
}

func runPinsCleanOld(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}
	days := cfg.Pins.MaxAgeDays
	if days <= 0 {
		return fmt.Errorf("--days must be positive, got %d", days)
	}

	pkgs, _, err := pinsManagers(cmd, args)
	if err != nil {
		return err
	}

	var errs errors.List
	for _, pkg := range pkgs {
		if pinsDryRun {
			errs.Add(previewOlderThan(ctx, pkg.manager, days))
			continue
		}
		report, err := pkg.manager.CleanOlderThan(ctx, days)
		errs.Add(finishCleanup(ctx, pkg.name, report, err))
	}
	return errs.ErrOrNil()
}

func previewOlderThan(ctx context.Context, m *pins.Manager, days int) error {
	old, err := m.FetchPinsOlderThan(ctx, days)
	if err != nil {
		return err
	}
	for _, p := range old {
		logging.InfoContext(ctx, "Would unpin %s (%s, pinned %s)", p.Hash, p.Metadata.Version, p.DatePinned.UTC().Format(time.DateOnly))
	}
	return nil
}

func finishCleanup(ctx context.Context, name string, report pins.Report, err error) error {
	if err != nil {
		return err
	}
	logging.InfoContext(ctx, "Pin cleanup of %s: %s", name, report)
	return report.Err()
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
