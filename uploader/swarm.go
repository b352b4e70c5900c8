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
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
)

// SwarmNode uploads to a Swarm node as a tar collection.
type SwarmNode struct {
	client
}

var _ Uploader = (*SwarmNode)(nil)

// NewSwarmNode returns an uploader for the node at p.URL.
func NewSwarmNode(p SwarmNodeProvider, opts ...Option) *SwarmNode {
	return &SwarmNode{client: newClient(p.URL, opts...)}
}

// TestConnection checks the node answers HTTP at all.
func (s *SwarmNode) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/", nil)
	if err != nil {
		return errors.Wrap("create request", "", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return newConnectionError(s.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return readStatusError(resp)
	}
	return nil
}

// AddFromFS posts dir as a tar archive to /bzz:/ and returns
// "/bzz/<hash>".
func (s *SwarmNode) AddFromFS(ctx context.Context, dir string, _ PinMetadata, onProgress ProgressFunc) (string, error) {
	entries, total, err := walkTree(dir)
	if err != nil {
		return "", err
	}
	progress := newProgressTracker(total, onProgress)
	root := rootName(dir)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, root, entries, progress))
	}()
	defer func() { _ = pr.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/bzz:/", pr)
	if err != nil {
		return "", errors.Wrap("create request", "", err)
	}
	req.Header.Set("Content-Type", "application/x-tar")

	logging.InfoContext(ctx, "Uploading %s to Swarm node %s", root, logging.RedactURL(s.baseURL))
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newConnectionError(s.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return "", readStatusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", errors.Wrap("read Swarm response", "", err)
	}
	hash := strings.TrimSpace(string(body))
	if hash == "" {
		return "", fmt.Errorf("swarm node returned no hash for %s", root)
	}
	return "/bzz/" + hash, nil
}
