package netx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinURL(t *testing.T) {
	u, err := JoinURL("https://haven.example/", "api", "files", "a b")
	require.NoError(t, err)
	assert.Equal(t, "https://haven.example/api/files/a%20b", u)

	u, err = JoinURL("http://127.0.0.1:8080", "health")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/health", u)
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestDrainClose(t *testing.T) {
	r := strings.NewReader("leftover")
	body := &trackingBody{Reader: r}
	DrainClose(body)
	assert.True(t, body.closed)
	assert.Zero(t, r.Len())
}

func TestNewHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(time.Second).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
}
