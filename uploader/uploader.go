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

// Package uploader publishes a prepared release directory to a content
// distribution backend and returns the backend's content reference.
//
// Three backends are supported:
//
//   - IPFS node: multipart upload to the node's /api/v0/add endpoint
//   - Pinata: multipart upload to the pinning service with a metadata
//     sidecar, plus the pin listing and unpinning used for pin cleanup
//   - Swarm node: tar upload to the node's /bzz: endpoint
//
// The backend is chosen once per run by NewProvider and constructed with
// New.
package uploader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PinMetadata is attached to every upload so stale pins can later be found
// by branch and commit.
type PinMetadata struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	UpstreamVersion string `json:"upstreamVersion,omitempty"`
	Commit          string `json:"commit,omitempty"`
	Branch          string `json:"branch,omitempty"`
}

// KeyValues flattens the metadata into the attribute map stored alongside
// a pin. Empty fields are omitted.
func (m PinMetadata) KeyValues() map[string]string {
	kv := map[string]string{"name": m.Name, "version": m.Version}
	if m.UpstreamVersion != "" {
		kv["upstreamVersion"] = m.UpstreamVersion
	}
	if m.Commit != "" {
		kv["commit"] = m.Commit
	}
	if m.Branch != "" {
		kv["branch"] = m.Branch
	}
	return kv
}

// MetadataFromKeyValues is the inverse of PinMetadata.KeyValues.
func MetadataFromKeyValues(kv map[string]string) PinMetadata {
	return PinMetadata{
		Name:            kv["name"],
		Version:         kv["version"],
		UpstreamVersion: kv["upstreamVersion"],
		Commit:          kv["commit"],
		Branch:          kv["branch"],
	}
}

// ProgressFunc receives the fraction of bytes uploaded, between 0 and 1.
// It is called from the goroutine that streams the request body.
type ProgressFunc func(fraction float64)

// Uploader is a release upload backend.
type Uploader interface {
	// TestConnection checks that the backend is reachable and, where
	// applicable, that the credentials are accepted. Unreachable backends
	// yield a *ConnectionError.
	TestConnection(ctx context.Context) error

	// AddFromFS uploads the directory tree rooted at dir and returns the
	// content reference of the root, e.g. "/ipfs/Qm...".
	AddFromFS(ctx context.Context, dir string, meta PinMetadata, onProgress ProgressFunc) (string, error)
}

// Option configures an uploader client.
type Option func(*client)

// WithTimeout sets the HTTP client timeout. Uploads have no timeout by
// default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *client) {
		c.httpClient.Timeout = timeout
	}
}

type client struct {
	baseURL    string
	httpClient *http.Client
}

func newClient(baseURL string, opts ...Option) client {
	c := client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// New constructs the backend for p.
func New(p Provider, opts ...Option) (Uploader, error) {
	switch p := p.(type) {
	case IPFSNodeProvider:
		return NewIPFSNode(p, opts...), nil
	case PinataProvider:
		return NewPinata(p, opts...), nil
	case SwarmNodeProvider:
		return NewSwarmNode(p, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported upload provider %T", p)
	}
}
