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

package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/cowdogmoo/dnpack/logging"
	"github.com/cowdogmoo/dnpack/release"
)

// A BuildStrategy represents how the local images of a variant are built.
type BuildStrategy int

const (
	// ComposeBuild runs `docker compose build` for the host architecture.
	ComposeBuild BuildStrategy = iota
	// BuildxBake runs `docker buildx bake` for an explicit platform.
	BuildxBake
)

// String returns a human-readable representation of the build strategy
func (bs BuildStrategy) String() string {
	switch bs {
	case ComposeBuild:
		return "compose"
	case BuildxBake:
		return "buildx"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the strategy by name in build records.
func (bs BuildStrategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(bs.String())
}

// StrategyDetector picks the build strategy for a variant and decides which
// target architectures need emulation on this host.
type StrategyDetector struct {
	hostArch string
}

// NewStrategyDetector creates a detector for the running host.
func NewStrategyDetector() *StrategyDetector {
	return &StrategyDetector{hostArch: runtime.GOARCH}
}

// NewStrategyDetectorForHost creates a detector for an explicit host
// architecture.
func NewStrategyDetectorForHost(hostArch string) *StrategyDetector {
	return &StrategyDetector{hostArch: hostArch}
}

// HostArch returns the normalized host architecture.
func (sd *StrategyDetector) HostArch() string {
	return normalizeArch(sd.hostArch)
}

// DetectStrategy returns BuildxBake when the manifest declares an
// architectures list and ComposeBuild otherwise.
func (sd *StrategyDetector) DetectStrategy(ctx context.Context, v *release.Variant) BuildStrategy {
	if v.MultiArch {
		logging.DebugContext(ctx, "Using buildx bake for %s (%s)", v.Manifest.Name, strings.Join(v.Architectures, ", "))
		return BuildxBake
	}
	logging.DebugContext(ctx, "Using compose build for %s", v.Manifest.Name)
	return ComposeBuild
}

// NeedsEmulation reports whether building platform on this host requires
// QEMU emulation.
func (sd *StrategyDetector) NeedsEmulation(ctx context.Context, platform string) bool {
	target := ArchFromPlatform(platform)
	if target == normalizeArch(sd.hostArch) {
		logging.DebugContext(ctx, "Using native build for %s (host arch: %s)", platform, sd.hostArch)
		return false
	}

	logging.WarnContext(ctx, "Cross-building %s on %s host - this will use QEMU emulation and may be slower", platform, sd.hostArch)
	return true
}

// ArchFromPlatform extracts the normalized architecture from a platform
// string such as "linux/arm64" or "linux/arm/v7".
func ArchFromPlatform(platform string) string {
	parts := strings.Split(platform, "/")
	if len(parts) >= 2 {
		return normalizeArch(parts[1])
	}
	return normalizeArch(platform)
}

// ExpectedMachine returns the `uname -m` value an image built for platform
// reports.
func ExpectedMachine(platform string) (string, error) {
	switch ArchFromPlatform(platform) {
	case "amd64":
		return "x86_64", nil
	case "arm64":
		return "aarch64", nil
	case "arm":
		return "armv7l", nil
	default:
		return "", fmt.Errorf("unsupported architecture %q", platform)
	}
}

// normalizeArch normalizes architecture names to a standard form
func normalizeArch(arch string) string {
	switch arch {
	case "amd64", "x86_64", "x64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	case "arm", "armv7", "armv7l":
		return "arm"
	case "386", "i386", "i686":
		return "386"
	default:
		return arch
	}
}
