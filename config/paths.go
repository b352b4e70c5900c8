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

package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "dnpack"

// DirPermReadWriteExec is the permission used for directories dnpack creates.
const DirPermReadWriteExec = 0o755

// getConfigHome returns $XDG_CONFIG_HOME or ~/.config.
func getConfigHome() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return configHome
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config")
	}
	return ""
}

// getCacheHome returns $XDG_CACHE_HOME or ~/.cache.
func getCacheHome() string {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return cacheHome
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache")
	}
	return ""
}

// GetConfigDirs returns all config directories to search, in priority order.
func GetConfigDirs() []string {
	var dirs []string

	if configHome := getConfigHome(); configHome != "" {
		dirs = append(dirs, filepath.Join(configHome, appDir))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+appDir))
	}

	if runtime.GOOS == "linux" || runtime.GOOS == "freebsd" || runtime.GOOS == "openbsd" {
		if xdgConfigDirs := os.Getenv("XDG_CONFIG_DIRS"); xdgConfigDirs != "" {
			for _, dir := range filepath.SplitList(xdgConfigDirs) {
				if dir != "" {
					dirs = append(dirs, filepath.Join(dir, appDir))
				}
			}
		} else {
			dirs = append(dirs, filepath.Join("/etc", "xdg", appDir))
		}
	}
	return dirs
}

// ConfigFile returns the path for a file in the user config directory,
// creating the directory if needed.
func ConfigFile(filename string) (string, error) {
	return fileUnder(getConfigHome(), filename)
}

// CacheFile returns the path for a file in the user cache directory,
// creating the directory if needed.
func CacheFile(filename string) (string, error) {
	return fileUnder(getCacheHome(), filename)
}

func fileUnder(base, filename string) (string, error) {
	if base == "" {
		return "", os.ErrNotExist
	}
	path := filepath.Join(base, appDir, filename)
	if err := os.MkdirAll(filepath.Dir(path), DirPermReadWriteExec); err != nil {
		return "", err
	}
	return path, nil
}
