package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shareID = "AAAAAAAAAAAAAAAAAAAAAA"

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), "tok")
}

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(shared.ErrorResponse{Error: code})
}

func TestClient_Upload(t *testing.T) {
	limit := 3
	meta := shared.UploadMetadata{
		Algorithm:     "AES-256-GCM",
		IV:            []byte("0123456789abcdef"),
		ChunkSize:     65536,
		Size:          4,
		EncryptedSize: 20,
		ExpiresIn:     timex.Duration{Duration: time.Hour},
		MaxDownloads:  &limit,
	}

	var (
		gotMeta shared.UploadMetadata
		gotFile string
		gotAuth string
	)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/files", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		mr, err := r.MultipartReader()
		require.NoError(t, err)

		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "metadata", part.FormName())
		require.NoError(t, json.NewDecoder(part).Decode(&gotMeta))

		part, err = mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "file", part.FormName())
		b, _ := io.ReadAll(part)
		gotFile = string(b)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(shared.UploadResponse{ShareID: shareID, ShareURL: "https://haven.example/s/" + shareID, DeleteToken: "dt"})
	})

	res, err := c.Upload(context.Background(), meta, strings.NewReader("ciphertext"))
	require.NoError(t, err)
	assert.Equal(t, shareID, res.ShareID)
	assert.Equal(t, "dt", res.DeleteToken)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "ciphertext", gotFile)
	assert.Equal(t, meta.IV, gotMeta.IV)
	assert.Equal(t, time.Hour, gotMeta.ExpiresIn.Duration)
	require.NotNil(t, gotMeta.MaxDownloads)
	assert.Equal(t, 3, *gotMeta.MaxDownloads)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestClient_Upload_SourceError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeErr(w, http.StatusBadRequest, shared.CodeInvalidInput)
	})

	boom := errors.New("encrypt failed")
	_, err := c.Upload(context.Background(), shared.UploadMetadata{}, failingReader{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestClient_Upload_Rejected(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeErr(w, http.StatusTooManyRequests, shared.CodeRateLimitExceeded)
	})

	_, err := c.Upload(context.Background(), shared.UploadMetadata{}, strings.NewReader("x"))
	assert.ErrorIs(t, err, common.ErrRateLimitExceeded)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestClient_Info(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/"+shareID, r.URL.Path)
		_ = json.NewEncoder(w).Encode(shared.FileInfo{ShareID: shareID, Size: 10, PasswordProtected: true, KDF: "argon2id", Iterations: 3})
	})

	info, err := c.Info(context.Background(), shareID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
	assert.True(t, info.PasswordProtected)
	assert.Equal(t, "argon2id", info.KDF)
}

func TestClient_Download(t *testing.T) {
	iv := []byte("0123456789abcdef")
	salt := []byte("salt-salt-salt-salt-salt-salt-32")

	var gotVerifier string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/"+shareID+"/download", r.URL.Path)
		gotVerifier = r.Header.Get(common.HeaderSharePassword)

		h := w.Header()
		h.Set("Content-Length", "6")
		h.Set(common.HeaderAlgorithm, "AES-256-GCM")
		h.Set(common.HeaderIV, base64.StdEncoding.EncodeToString(iv))
		h.Set(common.HeaderChunkSize, "65536")
		h.Set(common.HeaderPlaintextSize, "2")
		h.Set(common.HeaderSalt, base64.StdEncoding.EncodeToString(salt))
		h.Set(common.HeaderIterations, "210000")
		h.Set(common.HeaderKDF, "pbkdf2-sha512")
		_, _ = w.Write([]byte("cipher"))
	})

	d, err := c.Download(context.Background(), shareID, "verifier")
	require.NoError(t, err)
	defer d.Body.Close()

	assert.Equal(t, "verifier", gotVerifier)
	assert.Equal(t, iv, d.Params.IV)
	assert.Equal(t, salt, d.Params.Salt)
	assert.Equal(t, 210000, d.Params.Iterations)
	assert.Equal(t, "pbkdf2-sha512", d.Params.KDF)
	assert.Equal(t, 65536, d.Params.ChunkSize)
	assert.Equal(t, int64(2), d.Params.Size)
	assert.Equal(t, int64(6), d.Params.EncryptedSize)

	b, err := io.ReadAll(d.Body)
	require.NoError(t, err)
	assert.Equal(t, "cipher", string(b))
}

func TestClient_Download_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"exhausted", http.StatusGone, shared.CodeDownloadLimitExceeded, common.ErrDownloadLimitExceeded},
		{"expired", http.StatusGone, shared.CodeExpired, common.ErrExpired},
		{"password", http.StatusUnauthorized, shared.CodePasswordRequired, common.ErrPasswordRequired},
		{"wrong password", http.StatusUnauthorized, shared.CodeInvalidPassword, common.ErrInvalidPassword},
		{"missing", http.StatusNotFound, shared.CodeNotFound, common.ErrorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeErr(w, tt.status, tt.code)
			})
			_, err := c.Download(context.Background(), shareID, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_Download_BadHeaders(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(common.HeaderIV, "%%%")
		_, _ = w.Write([]byte("x"))
	})
	_, err := c.Download(context.Background(), shareID, "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.Info(context.Background(), shareID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	c = newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err = c.Health(context.Background())
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestClient_VerifyPassword(t *testing.T) {
	var got shared.VerifyPasswordRequest
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/files/"+shareID+"/verify-password", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.Password != "good" {
			writeErr(w, http.StatusUnauthorized, shared.CodeInvalidPassword)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.VerifyPassword(context.Background(), shareID, "good"))
	assert.ErrorIs(t, c.VerifyPassword(context.Background(), shareID, "bad"), common.ErrInvalidPassword)
}

func TestClient_Delete(t *testing.T) {
	var gotToken string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		gotToken = r.Header.Get(common.HeaderDeleteToken)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Delete(context.Background(), shareID, "dt"))
	assert.Equal(t, "dt", gotToken)
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, nil, "")
	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Health(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
