// Package sharelink builds and parses share URLs.
//
// A link looks like {base}/s/{id}#{key}. The key travels only in the URL
// fragment, which browsers and the CLI never send to the server. Links for
// password-protected shares carry no fragment at all.
package sharelink

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
)

const (
	// SharePathPrefix is the path segment that precedes the share id.
	SharePathPrefix = "/s/"

	keySize   = 32
	idEntropy = 16
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,64}$`)

// Link is a parsed share link.
type Link struct {
	BaseURL string
	ShareID string
	// Key is nil for password-protected shares.
	Key []byte
}

// HasKey reports whether the link embeds the decryption key.
func (l *Link) HasKey() bool {
	return len(l.Key) > 0
}

// NewShareID returns a random, URL-safe share identifier.
func NewShareID() (string, error) {
	b := make([]byte, idEntropy)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate share id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidID reports whether id has the shape of a share identifier.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Encode builds the share link. Pass a nil key for password mode.
func Encode(baseURL, shareID string, key []byte) (string, error) {
	if !ValidID(shareID) {
		return "", fmt.Errorf("malformed share id: %w", common.ErrInvalidInput)
	}
	if key != nil && len(key) != keySize {
		return "", fmt.Errorf("key must be %d bytes: %w", keySize, common.ErrInvalidInput)
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("malformed base url %q: %w", baseURL, common.ErrInvalidInput)
	}
	if base.RawQuery != "" || base.Fragment != "" {
		return "", fmt.Errorf("base url must not carry a query or fragment: %w", common.ErrInvalidInput)
	}

	link := base.String() + SharePathPrefix + shareID
	if key != nil {
		link += "#" + base64.RawURLEncoding.EncodeToString(key)
	}
	return link, nil
}

// Decode parses a share link. Links that carry anything in the query
// string, an extra path segment after the id, or a key of the wrong length
// are rejected so key material never ends up somewhere a server can see.
func Decode(raw string) (*Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed link: %w", common.ErrInvalidInput)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("link must be absolute: %w", common.ErrInvalidInput)
	}
	if u.RawQuery != "" {
		return nil, fmt.Errorf("link must not carry a query string: %w", common.ErrInvalidInput)
	}

	idx := strings.LastIndex(u.Path, SharePathPrefix)
	if idx < 0 {
		return nil, fmt.Errorf("link has no share path: %w", common.ErrInvalidInput)
	}

	id := u.Path[idx+len(SharePathPrefix):]
	if !ValidID(id) {
		return nil, fmt.Errorf("malformed share id: %w", common.ErrInvalidInput)
	}

	link := &Link{
		BaseURL: (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path[:idx]}).String(),
		ShareID: id,
	}

	if u.Fragment != "" {
		key, err := base64.RawURLEncoding.DecodeString(u.Fragment)
		if err != nil || len(key) != keySize {
			return nil, fmt.Errorf("malformed key in link: %w", common.ErrInvalidInput)
		}
		link.Key = key
	}
	return link, nil
}

// ServerVisible strips the fragment: the part of a link an HTTP client
// actually transmits, and the only form that may be logged.
func ServerVisible(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}
