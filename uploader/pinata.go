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
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
)

// pinListPageLimit is the largest page the pin list endpoint serves.
const pinListPageLimit = 1000

// Pinata uploads to the Pinata pinning service and manages its pins.
type Pinata struct {
	client
	apiKey       string
	secretAPIKey string
}

var _ Uploader = (*Pinata)(nil)

// NewPinata returns a Pinata client.
func NewPinata(p PinataProvider, opts ...Option) *Pinata {
	u := p.URL
	if u == "" {
		u = DefaultPinataURL
	}
	return &Pinata{
		client:       newClient(u, opts...),
		apiKey:       p.APIKey,
		secretAPIKey: p.SecretAPIKey,
	}
}

func (p *Pinata) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("pinata_api_key", p.apiKey)
	req.Header.Set("pinata_secret_api_key", p.secretAPIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newConnectionError(p.baseURL, err)
	}
	if resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, readStatusError(resp)
	}
	return resp, nil
}

// TestConnection checks the credentials against the authentication
// endpoint.
func (p *Pinata) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/data/testAuthentication", nil)
	if err != nil {
		return errors.Wrap("create request", "", err)
	}
	resp, err := p.do(req)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("pinata rejected the API key %s: %w", logging.RedactSecret(p.apiKey), err)
		}
		return err
	}
	_ = resp.Body.Close()
	return nil
}

type pinataMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type pinataOptions struct {
	CIDVersion        int  `json:"cidVersion"`
	WrapWithDirectory bool `json:"wrapWithDirectory"`
}

// AddFromFS pins dir with pinFileToIPFS, attaching meta as the pin's
// metadata, and returns "/ipfs/<hash>".
func (p *Pinata) AddFromFS(ctx context.Context, dir string, meta PinMetadata, onProgress ProgressFunc) (string, error) {
	entries, total, err := walkTree(dir)
	if err != nil {
		return "", err
	}
	progress := newProgressTracker(total, onProgress)

	metaJSON, err := json.Marshal(pinataMetadata{Name: meta.Name, KeyValues: meta.KeyValues()})
	if err != nil {
		return "", errors.Wrap("encode pin metadata", meta.Name, err)
	}
	optsJSON, err := json.Marshal(pinataOptions{CIDVersion: 0})
	if err != nil {
		return "", errors.Wrap("encode pin options", "", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(func() error {
			for _, e := range entries {
				if e.IsDir {
					continue
				}
				if err := writeFilePart(mw, "file", e.Name, e, progress); err != nil {
					return err
				}
			}
			if err := mw.WriteField("pinataMetadata", string(metaJSON)); err != nil {
				return err
			}
			if err := mw.WriteField("pinataOptions", string(optsJSON)); err != nil {
				return err
			}
			return mw.Close()
		}())
	}()
	defer func() { _ = pr.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pinning/pinFileToIPFS", pr)
	if err != nil {
		return "", errors.Wrap("create request", "", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	logging.InfoContext(ctx, "Pinning %s to Pinata", rootName(dir))
	resp, err := p.do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap("decode Pinata response", "", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata returned no hash for %s", rootName(dir))
	}
	return "/ipfs/" + out.IpfsHash, nil
}

// Pin is one pinned upload.
type Pin struct {
	Hash       string
	Name       string
	DatePinned time.Time
	Metadata   PinMetadata
}

// PinFilter narrows a pin listing.
type PinFilter struct {
	// Name matches the pin name.
	Name string
	// PinnedBefore keeps pins older than this time when non-zero.
	PinnedBefore time.Time
}

type pinListResponse struct {
	Count int `json:"count"`
	Rows  []struct {
		IPFSPinHash string    `json:"ipfs_pin_hash"`
		DatePinned  time.Time `json:"date_pinned"`
		Metadata    struct {
			Name      string         `json:"name"`
			KeyValues map[string]any `json:"keyvalues"`
		} `json:"metadata"`
	} `json:"rows"`
}

// PinList returns every pinned upload matching filter, following pages
// until the service reports no more rows.
func (p *Pinata) PinList(ctx context.Context, filter PinFilter) ([]Pin, error) {
	var pins []Pin
	for offset := 0; ; offset += pinListPageLimit {
		q := url.Values{}
		q.Set("status", "pinned")
		q.Set("pageLimit", strconv.Itoa(pinListPageLimit))
		q.Set("pageOffset", strconv.Itoa(offset))
		if filter.Name != "" {
			q.Set("metadata[name]", filter.Name)
		}
		if !filter.PinnedBefore.IsZero() {
			q.Set("pinEnd", filter.PinnedBefore.UTC().Format(time.RFC3339))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/data/pinList?"+q.Encode(), nil)
		if err != nil {
			return nil, errors.Wrap("create request", "", err)
		}
		resp, err := p.do(req)
		if err != nil {
			return nil, errors.Wrap("list pins", filter.Name, err)
		}

		var page pinListResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		_ = resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap("decode pin list", "", err)
		}

		for _, row := range page.Rows {
			kv := make(map[string]string, len(row.Metadata.KeyValues))
			for k, v := range row.Metadata.KeyValues {
				kv[k] = fmt.Sprint(v)
			}
			pins = append(pins, Pin{
				Hash:       row.IPFSPinHash,
				Name:       row.Metadata.Name,
				DatePinned: row.DatePinned,
				Metadata:   MetadataFromKeyValues(kv),
			})
		}

		if len(page.Rows) < pinListPageLimit {
			break
		}
	}
	return pins, nil
}

// Unpin removes the pin for hash.
func (p *Pinata) Unpin(ctx context.Context, hash string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/pinning/unpin/"+url.PathEscape(hash), nil)
	if err != nil {
		return errors.Wrap("create request", "", err)
	}
	resp, err := p.do(req)
	if err != nil {
		return errors.Wrap("unpin", hash, err)
	}
	_ = resp.Body.Close()
	return nil
}
