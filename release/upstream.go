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
	"sort"
	"strings"
)

const upstreamArgPrefix = "UPSTREAM_VERSION"

type upstreamArg struct {
	key   string
	value string
}

// UpstreamVersion derives the human-readable upstream version of a package.
// A non-empty override wins. Otherwise UPSTREAM_VERSION* build args are
// collected across services (first declaration of a key wins): a single one
// yields its value, several yield "Geth: v1.14.0, Lighthouse: v5.1.0". With
// no such args the manifest's own upstreamVersion is kept.
func UpstreamVersion(m *Manifest, c *Compose, override string) string {
	if override != "" {
		return override
	}

	args := upstreamArgs(c)
	switch len(args) {
	case 0:
		return m.UpstreamVersion
	case 1:
		return args[0].value
	}

	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, upstreamLabel(arg.key)+": "+arg.value)
	}
	return strings.Join(parts, ", ")
}

func upstreamArgs(c *Compose) []upstreamArg {
	seen := map[string]bool{}
	var args []upstreamArg
	for _, name := range c.ServiceNames() {
		svc := c.Services[name]
		if svc == nil || svc.Build == nil {
			continue
		}
		keys := make([]string, 0, len(svc.Build.Args))
		for key := range svc.Build.Args {
			if strings.HasPrefix(key, upstreamArgPrefix) {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			if seen[key] {
				continue
			}
			seen[key] = true
			args = append(args, upstreamArg{key: key, value: svc.Build.Args[key]})
		}
	}
	return args
}

// upstreamLabel turns UPSTREAM_VERSION_CONSENSUS_CLIENT into
// "Consensus Client".
func upstreamLabel(key string) string {
	suffix := strings.TrimPrefix(strings.TrimPrefix(key, upstreamArgPrefix), "_")
	if suffix == "" {
		return "Upstream"
	}
	words := strings.FieldsFunc(suffix, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		w = strings.ToLower(w)
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
