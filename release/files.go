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
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// FileKind identifies an entry of the release file registry.
type FileKind string

// Release file kinds.
const (
	KindManifest          FileKind = "manifest"
	KindCompose           FileKind = "compose"
	KindAvatar            FileKind = "avatar"
	KindSetupWizard       FileKind = "setupWizard"
	KindSetupSchema       FileKind = "setupSchema"
	KindSetupTarget       FileKind = "setupTarget"
	KindSetupUI           FileKind = "setupUi"
	KindDisclaimer        FileKind = "disclaimer"
	KindGettingStarted    FileKind = "gettingStarted"
	KindPrometheusTargets FileKind = "prometheusTargets"
	KindGrafanaDashboards FileKind = "grafanaDashboards"
	KindNotifications     FileKind = "notifications"
)

// FileSpec describes one kind of file a release may contain.
type FileSpec struct {
	Kind    FileKind
	Matcher *regexp.Regexp
	// CanonicalName is the name inside the release directory. Empty keeps
	// the source name, which AllowMultiple entries need.
	CanonicalName string
	AllowMultiple bool
	// Generated files are written by the preparer rather than copied.
	Generated bool
}

// Registry is the fixed set of files a release is made of.
var Registry = []FileSpec{
	{Kind: KindManifest, Matcher: regexp.MustCompile(`^dappnode_package\.(json|ya?ml)$`), CanonicalName: ManifestFileName, Generated: true},
	{Kind: KindCompose, Matcher: regexp.MustCompile(`^docker-compose\.ya?ml$`), CanonicalName: ComposeFileName, Generated: true},
	{Kind: KindAvatar, Matcher: regexp.MustCompile(`^avatar.*\.png$`), CanonicalName: "avatar.png"},
	{Kind: KindSetupWizard, Matcher: regexp.MustCompile(`^setup-wizard\.(json|ya?ml)$`), CanonicalName: "setup-wizard.json"},
	{Kind: KindSetupSchema, Matcher: regexp.MustCompile(`^setup\.schema\.json$`), CanonicalName: "setup.schema.json"},
	{Kind: KindSetupTarget, Matcher: regexp.MustCompile(`^setup-target\.json$`), CanonicalName: "setup-target.json"},
	{Kind: KindSetupUI, Matcher: regexp.MustCompile(`^setup-ui\.json$`), CanonicalName: "setup-ui.json"},
	{Kind: KindDisclaimer, Matcher: regexp.MustCompile(`(?i)^disclaimer\.md$`), CanonicalName: "disclaimer.md"},
	{Kind: KindGettingStarted, Matcher: regexp.MustCompile(`(?i)^getting[-_ ]?started\.md$`), CanonicalName: "getting-started.md"},
	{Kind: KindPrometheusTargets, Matcher: regexp.MustCompile(`^prometheus-targets\.json$`), CanonicalName: "prometheus-targets.json"},
	{Kind: KindGrafanaDashboards, Matcher: regexp.MustCompile(`^.*grafana-dashboard.*\.json$`), AllowMultiple: true},
	{Kind: KindNotifications, Matcher: regexp.MustCompile(`^notifications\.ya?ml$`), CanonicalName: "notifications.yaml"},
}

// FoundFile is a source file selected for a release.
type FoundFile struct {
	Spec   FileSpec
	Source string
	Target string
}

// CollectFiles resolves every copied registry entry against dirs, earlier
// directories taking precedence. Absent entries are skipped; ambiguous
// single-file entries are errors.
func CollectFiles(dirs []string) ([]FoundFile, error) {
	listings := make([][]string, len(dirs))
	for i, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("list release files in %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				listings[i] = append(listings[i], e.Name())
			}
		}
		sort.Strings(listings[i])
	}

	var found []FoundFile
	for _, spec := range Registry {
		if spec.Generated {
			continue
		}
		files, err := collectSpec(spec, dirs, listings)
		if err != nil {
			return nil, err
		}
		found = append(found, files...)
	}
	return found, nil
}

func collectSpec(spec FileSpec, dirs []string, listings [][]string) ([]FoundFile, error) {
	var out []FoundFile
	taken := map[string]bool{}

	for i, dir := range dirs {
		var matches []string
		for _, name := range listings[i] {
			if spec.Matcher.MatchString(name) {
				matches = append(matches, name)
			}
		}
		if len(matches) == 0 {
			continue
		}

		if !spec.AllowMultiple {
			if len(matches) > 1 {
				return nil, fmt.Errorf("multiple %s files in %s: %v", spec.Kind, dir, matches)
			}
			return []FoundFile{{
				Spec:   spec,
				Source: filepath.Join(dir, matches[0]),
				Target: spec.CanonicalName,
			}}, nil
		}

		for _, name := range matches {
			if taken[name] {
				continue
			}
			taken[name] = true
			out = append(out, FoundFile{Spec: spec, Source: filepath.Join(dir, name), Target: name})
		}
	}
	return out, nil
}
