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

package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/cowdogmoo/dnpack/release"
)

// Compose policy constants.
const (
	MinComposeVersion = "3.5"
	DNSResolver       = "172.33.1.2"
)

// AllowedNetworks are the only networks a package may attach to.
var AllowedNetworks = map[string]bool{
	"dncore_network":   true,
	"dnpublic_network": true,
}

// reservedAliasSuffixes mark network aliases that only core packages may
// claim.
var reservedAliasSuffixes = []string{".dappnode", ".dappnode.private", ".dappnode.eth"}

var minComposeVersion = semver.MustParse(MinComposeVersion)

// CheckManifest applies the naming and versioning rules.
func CheckManifest(m *release.Manifest) []string {
	var msgs []string

	switch {
	case m.Name == "":
		msgs = append(msgs, "name is required")
	case strings.ToLower(m.Name) != m.Name:
		msgs = append(msgs, fmt.Sprintf("name %q must be lowercase", m.Name))
	}

	if !release.VersionPattern.MatchString(m.Version) {
		msgs = append(msgs, fmt.Sprintf("version %q must be a plain major.minor.patch semver", m.Version))
	}

	if m.Image != nil {
		for _, legacy := range []string{"path", "hash"} {
			if _, ok := m.Image[legacy]; ok {
				msgs = append(msgs, fmt.Sprintf("image.%s is a legacy field and must be removed", legacy))
			}
		}
	}

	switch m.Type {
	case "", release.TypeService, release.TypeLibrary, release.TypeDNCore:
	default:
		msgs = append(msgs, fmt.Sprintf("type %q must be one of service, library, dncore", m.Type))
	}
	return msgs
}

// CheckCompose applies the compose policy. Core packages may use elevated
// settings and undeclared volumes.
func CheckCompose(c *release.Compose, isCore bool) []string {
	var msgs []string
	addf := func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}

	if c.Version == "" {
		addf("version is required (minimum %s)", MinComposeVersion)
	} else if v, err := semver.NewVersion(c.Version); err != nil {
		addf("version %q is not a valid compose version", c.Version)
	} else if v.LessThan(minComposeVersion) {
		addf("version %s is below the minimum %s", c.Version, MinComposeVersion)
	}

	if len(c.Services) == 0 {
		addf("at least one service is required")
	}

	for _, name := range sortedKeys(c.Networks) {
		if !AllowedNetworks[name] {
			addf("network %q is not allowed, use dncore_network or dnpublic_network", name)
			continue
		}
		if !c.Networks[name].External {
			addf("network %q must be declared external", name)
		}
	}

	for _, name := range c.ServiceNames() {
		svc := c.Services[name]
		if svc == nil {
			addf("service %q is empty", name)
			continue
		}
		msgs = append(msgs, checkService(c, name, svc, isCore)...)
	}
	return msgs
}

func checkService(c *release.Compose, name string, svc *release.Service, isCore bool) []string {
	var msgs []string
	addf := func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf("service %q: "+format, append([]any{name}, args...)...))
	}

	if svc.Build == nil && svc.Image == "" {
		addf("must declare build or image")
	}

	for _, network := range svc.Networks.Names() {
		if !AllowedNetworks[network] {
			addf("network %q is not allowed", network)
		} else if _, declared := c.Networks[network]; !declared {
			addf("network %q must be declared at the top level as external", network)
		}
		if isCore {
			continue
		}
		for _, alias := range svc.Networks[network].Aliases {
			if isReservedAlias(alias) {
				addf("alias %q is reserved for core packages", alias)
			}
		}
	}

	for _, dns := range svc.DNS {
		if dns != DNSResolver {
			addf("dns %q is not allowed, only %s", dns, DNSResolver)
		}
	}

	if svc.Pid != "" && !strings.HasPrefix(svc.Pid, "service:") {
		addf("pid %q must use the service:<name> form", svc.Pid)
	}

	if !isCore {
		if svc.Privileged {
			addf("privileged is only allowed for core packages")
		}
		if svc.NetworkMode == "host" {
			addf("network_mode host is only allowed for core packages")
		}
		for _, vol := range svc.Volumes {
			switch {
			case vol.Source == "":
			case release.IsHostPath(vol.Source):
				addf("host path volume %q is only allowed for core packages", vol.Source)
			default:
				if _, declared := c.Volumes[vol.Source]; !declared {
					addf("volume %q must be declared in the top-level volumes", vol.Source)
				}
			}
		}
	}
	return msgs
}

func isReservedAlias(alias string) bool {
	for _, suffix := range reservedAliasSuffixes {
		if strings.HasSuffix(alias, suffix) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
