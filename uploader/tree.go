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

package uploader

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/cowdogmoo/dnpack/errors"
)

// treeEntry is one file or directory of an upload, named relative to the
// parent of the uploaded root so the root directory name is the first path
// element.
type treeEntry struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// walkTree lists dir and everything under it in lexical order.
func walkTree(dir string) ([]treeEntry, int64, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, 0, errors.Wrap("read upload directory", dir, err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("upload source %s is not a directory", dir)
	}

	parent := filepath.Dir(filepath.Clean(dir))
	var entries []treeEntry
	var total int64

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(parent, p)
		if err != nil {
			return err
		}
		e := treeEntry{Name: filepath.ToSlash(rel), Path: p, IsDir: d.IsDir()}
		if !d.IsDir() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if !fi.Mode().IsRegular() {
				return nil
			}
			e.Size = fi.Size()
			total += e.Size
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrap("walk upload directory", dir, err)
	}
	return entries, total, nil
}

func rootName(dir string) string {
	return path.Base(filepath.ToSlash(filepath.Clean(dir)))
}

// ipfsPartName escapes a path for the IPFS add API, which unescapes part
// file names so nested paths survive multipart's base-name handling.
func ipfsPartName(name string) string {
	return url.QueryEscape(name)
}

// writeFilePart adds one file as a form part named field, with the file
// name passed through as filename.
func writeFilePart(mw *multipart.Writer, field, filename string, e treeEntry, progress *progressTracker) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", "application/octet-stream")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	f, err := os.Open(e.Path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = io.Copy(part, progress.reader(f))
	return err
}

// writeDirPart adds a directory marker part, as the IPFS add API expects.
func writeDirPart(mw *multipart.Writer, field string, e treeEntry) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, ipfsPartName(e.Name)))
	h.Set("Content-Type", "application/x-directory")
	_, err := mw.CreatePart(h)
	return err
}

// writeTar streams the files under the uploaded root as a tar archive with
// paths relative to the root.
func writeTar(w io.Writer, root string, entries []treeEntry, progress *progressTracker) error {
	tw := tar.NewWriter(w)
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		name := e.Name[len(root)+1:]
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     e.Size,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(e.Path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, progress.reader(f))
		_ = f.Close()
		if err != nil {
			return err
		}
	}
	return tw.Close()
}
