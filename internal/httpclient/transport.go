// Package httpclient provides the HTTP client used for remote API calls. Every
// request carries a User-Agent identifying this client build.
package httpclient

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"hubrunner/version"
)

// UserAgent is sent on every outgoing request.
func UserAgent() string {
	return fmt.Sprintf("hubrunner/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH)
}

// ClientTransport wraps an http.RoundTripper and injects client identification headers.
type ClientTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *ClientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", UserAgent())
	}
	clone.Header.Set("X-Client-Version", version.Version)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// NewClient returns an *http.Client configured with ClientTransport and the specified timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &ClientTransport{},
		Timeout:   timeout,
	}
}
