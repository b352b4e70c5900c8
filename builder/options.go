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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cowdogmoo/dnpack/release"
)

// Compression selects the codec of the saved image artifact.
type Compression string

const (
	// CompressionXZ is the default and what DAppNode expects for release
	// images.
	CompressionXZ Compression = "xz"
	// CompressionZstd trades size for speed.
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates a configured compression name. An empty name
// selects xz.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "xz":
		return CompressionXZ, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unsupported compression %q (expected xz or zstd)", name)
	}
}

// Ext returns the artifact file extension. Multi-arch xz artifacts keep the
// short "txz" form, single-arch ones the legacy "tar.xz".
func (c Compression) Ext(multiArch bool) string {
	switch c {
	case CompressionZstd:
		return release.ExtZstd
	default:
		if multiArch {
			return release.ExtTxz
		}
		return release.ExtTarXz
	}
}

// Options holds the settings shared by every build of a run.
type Options struct {
	// Timeout bounds each external build process. Zero means no limit.
	Timeout time.Duration

	// SkipSave builds images without writing artifacts.
	SkipSave bool

	Compression Compression
}

var minutesSuffix = regexp.MustCompile(`(\d)(min|mins|minute|minutes)\b`)

// ParseTimeout parses human build timeouts such as "15min", "1h" or
// "1h30min". An empty string means no timeout.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	normalized := minutesSuffix.ReplaceAllString(s, "${1}m")
	d, err := time.ParseDuration(normalized)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", s)
	}
	return d, nil
}
