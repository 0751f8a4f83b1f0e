// Package blobstore keeps ciphertext blobs. It never looks inside them.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports a key with no blob behind it.
var ErrNotFound = errors.New("blob not found")

// Store is the object storage used for ciphertext.
type Store interface {
	// Put streams body under key and returns the number of bytes stored.
	Put(ctx context.Context, key string, body io.Reader) (int64, error)
	// Open returns ErrNotFound when the key is missing.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
}

// NewStorageKey returns a fresh, date-partitioned key that reveals nothing
// about the share it belongs to.
func NewStorageKey(now time.Time) string {
	return fmt.Sprintf("shares/%d/%02d/%02d/%v", now.Year(), now.Month(), now.Day(), uuid.New())
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
