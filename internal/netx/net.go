// Package netx holds small HTTP helpers for client code.
package netx

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// JoinURL appends path segments to base, escaping each one.
func JoinURL(base string, segments ...string) (string, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return url.JoinPath(base, escaped...)
}

// DrainClose discards a bounded amount of what is left in body and closes
// it so the connection can be reused.
func DrainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

// NewHTTPClient returns a client without an overall timeout, so large
// transfers are bounded only by their context, but with limits on connect
// and on waiting for response headers.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConnsPerHost:   4,
		},
	}
}
