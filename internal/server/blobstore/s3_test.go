package blobstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noSuchKeyBody = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

// newFakeS3 serves just enough of the S3 REST API for single-part uploads,
// downloads and deletes in path-style addressing.
func newFakeS3(t *testing.T, bucket string) (*httptest.Server, map[string][]byte) {
	t.Helper()
	var mu sync.Mutex
	objects := map[string][]byte{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		key := strings.TrimPrefix(r.URL.Path, "/"+bucket+"/")
		switch r.Method {
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			objects[key] = b
			w.Header().Set("ETag", `"fake"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			b, ok := objects[key]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, noSuchKeyBody)
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(b)
		case http.MethodDelete:
			delete(objects, key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, objects
}

func TestS3Store_RoundTrip(t *testing.T) {
	srv, objects := newFakeS3(t, "vault")
	ctx := context.Background()

	s, err := NewS3Store(ctx, S3Config{
		AccessKey:    "admin",
		SecretKey:    "secretpassword",
		Bucket:       "vault",
		Region:       "us-east-1",
		BaseEndpoint: srv.URL,
	})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("ct"), 1000)
	n, err := s.Put(ctx, "shares/2026/01/01/abc", io.NopCloser(bytes.NewReader(payload)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, objects["shares/2026/01/01/abc"])

	rc, err := s.Open(ctx, "shares/2026/01/01/abc")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, payload, got)

	require.NoError(t, s.Delete(ctx, "shares/2026/01/01/abc"))
	_, err = s.Open(ctx, "shares/2026/01/01/abc")
	assert.ErrorIs(t, err, ErrNotFound)
}
