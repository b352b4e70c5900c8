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

package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cowdogmoo/dnpack/errors"
)

// ReleasesFileName is the per-package upload history, kept next to the
// manifest that owns the version.
const ReleasesFileName = "releases.json"

// ReleaseEntry is the upload history of one version.
type ReleaseEntry struct {
	Hash string `json:"hash"`
	// UploadedTo maps an upload target to when the hash was uploaded there.
	UploadedTo map[string]string `json:"uploadedTo"`
}

// ReadReleases loads a releases file. A missing file is an empty history.
func ReadReleases(path string) (map[string]ReleaseEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ReleaseEntry{}, nil
		}
		return nil, errors.Wrap("read releases", path, err)
	}
	releases := map[string]ReleaseEntry{}
	if err := json.Unmarshal(data, &releases); err != nil {
		return nil, errors.Wrap("parse releases", path, err)
	}
	return releases, nil
}

// RecordRelease stores hash as the release of version uploaded to target at
// the given time. Re-uploading the same hash adds the target; a new hash
// replaces the entry.
func RecordRelease(path, version, hash, target string, at time.Time) error {
	releases, err := ReadReleases(path)
	if err != nil {
		return err
	}

	entry, ok := releases[version]
	if !ok || entry.Hash != hash || entry.UploadedTo == nil {
		entry = ReleaseEntry{Hash: hash, UploadedTo: map[string]string{}}
	}
	entry.UploadedTo[target] = at.UTC().Format(time.RFC3339)
	releases[version] = entry

	data, err := json.MarshalIndent(releases, "", "  ")
	if err != nil {
		return errors.Wrap("encode releases", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap("write releases", path, err)
	}
	return nil
}

func releasesPath(manifestPath string) string {
	return filepath.Join(filepath.Dir(manifestPath), ReleasesFileName)
}
