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

// Package imagecache remembers which set of image IDs produced which
// compressed image artifact, so an unchanged build can skip the expensive
// save and compress step.
//
// The cache is a line-oriented text file:
//
//	sha256:aaa...,sha256:bbb... 4f1c...e9
//
// The key is the sorted, comma-joined list of image IDs that went into the
// artifact. The value is the BLAKE3 hash of the artifact file. Entries are
// never evicted.
package imagecache

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"github.com/zeebo/blake3"

	"github.com/cowdogmoo/dnpack/errors"
)

// Cache is a handle on a cache file. The file is read and rewritten on
// every Record call, callers must not share a Cache across goroutines.
type Cache struct {
	path string
}

// New returns a cache backed by the file at path. The file is created on
// the first Record.
func New(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the backing file.
func (c *Cache) Path() string {
	return c.path
}

// Key builds the cache key for a set of image IDs. Every ID must be a
// valid content digest (for example "sha256:<hex>").
func Key(imageIDs []string) (string, error) {
	if len(imageIDs) == 0 {
		return "", errors.New("no image IDs to build a cache key from")
	}

	ids := make([]string, 0, len(imageIDs))
	for _, id := range imageIDs {
		d, err := digest.Parse(id)
		if err != nil {
			return "", errors.Wrap("parse image ID", id, err)
		}
		ids = append(ids, d.String())
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	return strings.Join(ids, ","), nil
}

// HashFile returns the hex encoded BLAKE3 hash of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap("hash file", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Lookup returns the value recorded for key.
func (c *Cache) Lookup(key string) (string, bool, error) {
	entries, err := c.load()
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.key == key {
			return e.value, true, nil
		}
	}
	return "", false, nil
}

// IsFresh reports whether key is recorded and the artifact at path still
// hashes to the recorded value. A missing artifact is simply not fresh.
func (c *Cache) IsFresh(key, artifactPath string) (bool, error) {
	value, ok, err := c.Lookup(key)
	if err != nil || !ok {
		return false, err
	}

	sum, err := HashFile(artifactPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return sum == value, nil
}

// Record stores value for key, replacing any previous value for the same
// key. The rest of the file is preserved in order.
func (c *Cache) Record(key, value string) error {
	if key == "" || strings.ContainsAny(key, " \n") {
		return fmt.Errorf("invalid cache key %q", key)
	}
	if value == "" || strings.ContainsAny(value, " \n") {
		return fmt.Errorf("invalid cache value %q", value)
	}

	entries, err := c.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range entries {
		if entries[i].key == key {
			entries[i].value = value
			replaced = true
		}
	}
	if !replaced {
		entries = append(entries, entry{key: key, value: value})
	}

	return c.write(entries)
}

// RecordFile hashes the artifact at path and records it under key.
func (c *Cache) RecordFile(key, artifactPath string) error {
	sum, err := HashFile(artifactPath)
	if err != nil {
		return errors.Wrap("hash artifact", artifactPath, err)
	}
	return c.Record(key, sum)
}

type entry struct {
	key   string
	value string
}

func (c *Cache) load() ([]entry, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap("open image cache", c.path, err)
	}
	defer func() { _ = f.Close() }()

	var entries []entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, " ")
		if !ok || key == "" {
			// Malformed lines are dropped on the next write.
			continue
		}
		entries = append(entries, entry{key: key, value: strings.TrimSpace(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap("read image cache", c.path, err)
	}
	return entries, nil
}

func (c *Cache) write(entries []entry) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap("create image cache directory", filepath.Dir(c.path), err)
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.key)
		b.WriteByte(' ')
		b.WriteString(e.value)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(c.path, []byte(b.String()), 0o644); err != nil {
		return errors.Wrap("write image cache", c.path, err)
	}
	return nil
}
