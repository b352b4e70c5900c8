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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
)

// IPFSNode uploads to an IPFS node through its HTTP API.
type IPFSNode struct {
	client
}

var _ Uploader = (*IPFSNode)(nil)

// NewIPFSNode returns an uploader for the node at p.URL.
func NewIPFSNode(p IPFSNodeProvider, opts ...Option) *IPFSNode {
	return &IPFSNode{client: newClient(p.URL, opts...)}
}

// TestConnection asks the node for its version.
func (n *IPFSNode) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/v0/version", nil)
	if err != nil {
		return errors.Wrap("create request", "", err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return newConnectionError(n.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return readStatusError(resp)
	}

	var version struct {
		Version string `json:"Version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err == nil && version.Version != "" {
		logging.DebugContext(ctx, "Connected to IPFS node %s (version %s)", logging.RedactURL(n.baseURL), version.Version)
	}
	return nil
}

type ipfsAddEntry struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// AddFromFS uploads dir with /api/v0/add and returns "/ipfs/<root hash>".
// The node answers with one JSON line per added entry, the root directory
// last. Metadata is not stored by a plain node.
func (n *IPFSNode) AddFromFS(ctx context.Context, dir string, _ PinMetadata, onProgress ProgressFunc) (string, error) {
	entries, total, err := walkTree(dir)
	if err != nil {
		return "", err
	}
	progress := newProgressTracker(total, onProgress)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(func() error {
			for _, e := range entries {
				var err error
				if e.IsDir {
					err = writeDirPart(mw, "file", e)
				} else {
					err = writeFilePart(mw, "file", ipfsPartName(e.Name), e, progress)
				}
				if err != nil {
					return err
				}
			}
			return mw.Close()
		}())
	}()
	defer func() { _ = pr.Close() }()

	endpoint := n.baseURL + "/api/v0/add?pin=true&progress=false&cid-version=0"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return "", errors.Wrap("create request", "", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	logging.InfoContext(ctx, "Uploading %s to IPFS node %s", rootName(dir), logging.RedactURL(n.baseURL))
	resp, err := n.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newConnectionError(n.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return "", readStatusError(resp)
	}

	var last ipfsAddEntry
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry ipfsAddEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return "", errors.Wrap("parse IPFS add response", line, err)
		}
		if entry.Hash != "" {
			last = entry
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap("read IPFS add response", "", err)
	}
	if trailer := resp.Trailer.Get("X-Stream-Error"); trailer != "" {
		return "", fmt.Errorf("IPFS node reported an error while adding: %s", trailer)
	}
	if last.Hash == "" {
		return "", fmt.Errorf("IPFS node returned no hash for %s", rootName(dir))
	}
	if last.Name != rootName(dir) {
		logging.WarnContext(ctx, "IPFS add ended with %q instead of the root %q", last.Name, rootName(dir))
	}

	return "/ipfs/" + last.Hash, nil
}

// readStatusError drains a failed response into a *StatusError, using the
// API's JSON error message when there is one.
func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(body))

	var apiErr struct {
		Message string `json:"Message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		switch {
		case apiErr.Message != "":
			msg = apiErr.Message
		case apiErr.Error != nil:
			msg = fmt.Sprint(apiErr.Error)
		}
	}

	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       msg,
	}
}
