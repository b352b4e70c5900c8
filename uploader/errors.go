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
	"net"
	"net/url"
	"strings"

	"github.com/cowdogmoo/dnpack/errors"
	"github.com/cowdogmoo/dnpack/logging"
)

const vpnHint = "Make sure your computer is connected to your DAppNode, either through its WiFi or a VPN"

// dappnodeSubnet is the docker network DAppNode services live on.
var dappnodeSubnet = &net.IPNet{IP: net.IPv4(172, 33, 0, 0), Mask: net.CIDRMask(16, 32)}

// ConnectionError reports that an upload backend could not be reached.
type ConnectionError struct {
	URL string
	// DNSFailure is true when the host name did not resolve.
	DNSFailure bool
	// Hint is actionable guidance for internal-only endpoints.
	Hint string
	Err  error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	if e.DNSFailure {
		fmt.Fprintf(&b, "could not resolve %s: %v", logging.RedactURL(e.URL), e.Err)
	} else {
		fmt.Fprintf(&b, "could not connect to %s: %v", logging.RedactURL(e.URL), e.Err)
	}
	if e.Hint != "" {
		b.WriteString("\n")
		b.WriteString(e.Hint)
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// newConnectionError classifies a transport error against endpoint.
func newConnectionError(endpoint string, err error) *ConnectionError {
	ce := &ConnectionError{URL: endpoint, Err: err}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		ce.DNSFailure = true
	}
	if isInternalHost(endpoint) {
		ce.Hint = vpnHint
	}
	return ce
}

// isInternalHost reports whether endpoint can only be reached from inside
// a DAppNode network.
func isInternalHost(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "dappnode" || strings.HasSuffix(host, ".dappnode") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsPrivate() || dappnodeSubnet.Contains(ip)
	}
	return false
}

// StatusError is a non-2xx response from a backend.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned %d", e.Method, logging.RedactURL(e.URL), e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}
