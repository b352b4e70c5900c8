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
	"fmt"
	"net/url"
	"strings"

	"github.com/cowdogmoo/dnpack/logging"
)

// Upload targets.
const (
	TargetIPFS  = "ipfs"
	TargetSwarm = "swarm"
)

// IPFS content providers.
const (
	ContentProviderNode   = "node"
	ContentProviderPinata = "pinata"
)

// DefaultPinataURL is the public Pinata API.
const DefaultPinataURL = "https://api.pinata.cloud"

// ipfsAliases maps the short provider names accepted on the command line
// to IPFS API endpoints.
var ipfsAliases = map[string]string{
	"dappnode":  "http://api.ipfs.dappnode:5001",
	"remote":    "https://api.ipfs.dappnode.io",
	"infura":    "https://ipfs.infura.io:5001",
	"localhost": "http://localhost:5001",
}

var swarmAliases = map[string]string{
	"dappnode": "http://swarm.dappnode",
	"public":   "https://swarm-gateways.net",
}

// Provider is the closed set of upload backends: IPFSNodeProvider,
// PinataProvider and SwarmNodeProvider.
type Provider interface {
	// Target is "ipfs" or "swarm".
	Target() string
	// Endpoint is the backend base URL.
	Endpoint() string
	isProvider()
}

// IPFSNodeProvider uploads to an IPFS node API.
type IPFSNodeProvider struct {
	URL string
}

// PinataProvider uploads to the Pinata pinning service.
type PinataProvider struct {
	URL          string
	APIKey       string
	SecretAPIKey string
}

// SwarmNodeProvider uploads to a Swarm node.
type SwarmNodeProvider struct {
	URL string
}

func (IPFSNodeProvider) Target() string     { return TargetIPFS }
func (p IPFSNodeProvider) Endpoint() string { return p.URL }
func (IPFSNodeProvider) isProvider()        {}

func (PinataProvider) Target() string     { return TargetIPFS }
func (p PinataProvider) Endpoint() string { return p.URL }
func (PinataProvider) isProvider()        {}

// String keeps the credentials out of logs.
func (p PinataProvider) String() string {
	return fmt.Sprintf("pinata(%s, key %s)", p.URL, logging.RedactSecret(p.APIKey))
}

func (SwarmNodeProvider) Target() string     { return TargetSwarm }
func (p SwarmNodeProvider) Endpoint() string { return p.URL }
func (SwarmNodeProvider) isProvider()        {}

// PinataCredentials are the pinning service key pair and endpoint.
type PinataCredentials struct {
	URL          string
	APIKey       string
	SecretAPIKey string
}

// NewProvider selects the upload backend from the upload target, the
// provider (an alias or URL) and the IPFS content provider. It performs no
// I/O; unknown combinations and missing credentials are configuration
// errors.
func NewProvider(uploadTarget, provider, contentProvider string, creds PinataCredentials) (Provider, error) {
	target := strings.ToLower(strings.TrimSpace(uploadTarget))
	if target == "" {
		target = TargetIPFS
	}

	switch target {
	case TargetIPFS:
		switch strings.ToLower(strings.TrimSpace(contentProvider)) {
		case "", ContentProviderNode:
			u, err := resolveEndpoint(provider, ipfsAliases, "dappnode")
			if err != nil {
				return nil, err
			}
			return IPFSNodeProvider{URL: u}, nil
		case ContentProviderPinata:
			if creds.APIKey == "" || creds.SecretAPIKey == "" {
				return nil, fmt.Errorf("pinata uploads require PINATA_API_KEY and PINATA_SECRET_API_KEY")
			}
			u := creds.URL
			if u == "" {
				u = DefaultPinataURL
			}
			return PinataProvider{URL: strings.TrimSuffix(u, "/"), APIKey: creds.APIKey, SecretAPIKey: creds.SecretAPIKey}, nil
		default:
			return nil, fmt.Errorf("unknown content provider %q for ipfs (expected %s or %s)", contentProvider, ContentProviderNode, ContentProviderPinata)
		}

	case TargetSwarm:
		if contentProvider != "" && !strings.EqualFold(contentProvider, ContentProviderNode) {
			return nil, fmt.Errorf("content provider %q is not supported for swarm uploads", contentProvider)
		}
		u, err := resolveEndpoint(provider, swarmAliases, "dappnode")
		if err != nil {
			return nil, err
		}
		return SwarmNodeProvider{URL: u}, nil

	default:
		return nil, fmt.Errorf("unknown upload target %q (expected %s or %s)", uploadTarget, TargetIPFS, TargetSwarm)
	}
}

func resolveEndpoint(provider string, aliases map[string]string, fallback string) (string, error) {
	p := strings.TrimSpace(provider)
	if p == "" {
		p = fallback
	}
	if u, ok := aliases[strings.ToLower(p)]; ok {
		return u, nil
	}

	parsed, err := url.Parse(p)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("unknown provider %q: use a known alias or an http(s) URL", provider)
	}
	return strings.TrimSuffix(p, "/"), nil
}
