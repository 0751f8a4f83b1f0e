package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/cryptox"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/audit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/auth"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/blobstore"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/ratelimit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/repomanager"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/services"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "jwt-secret"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testAPI struct {
	srv   *httptest.Server
	audit *audit.Service
	repos *repomanager.InMemoryRepositoryManager
	clock *testClock
	logs  *syncBuffer
}

func newTestAPI(t *testing.T, rpm int, maxUpload int64, proxies ...netip.Prefix) *testAPI {
	t.Helper()

	logs := &syncBuffer{}
	logger, err := logging.New(logs, "json", "debug")
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	repos := repomanager.NewInMemoryRepositoryManager()
	blobs, err := blobstore.NewFSStore(t.TempDir())
	require.NoError(t, err)

	auditSvc, err := audit.NewService(repos, audit.Config{
		IPSalt:   []byte("salt"),
		FieldKey: bytes.Repeat([]byte{5}, cryptox.KeySize),
	}, logger)
	require.NoError(t, err)
	auditSvc.WithClock(clock.now)

	shares := services.NewShareService(repos, blobs,
		ratelimit.NewMemoryLimiter(15*time.Minute).WithClock(clock.now),
		auditSvc, services.NewLogNotifier(logger), services.ShareConfig{
			BaseURL:          "https://haven.example",
			DefaultExpiry:    24 * time.Hour,
			MaxExpiry:        7 * 24 * time.Hour,
			MaxUploadSize:    maxUpload,
			PasswordAttempts: 5,
			BcryptCost:       bcrypt.MinCost,
		}, logger).WithClock(clock.now)

	api := NewHTTPServer(Options{
		SecretKey:         testSecret,
		RequestsPerMinute: rpm,
		MaxUploadSize:     maxUpload,
		TrustedProxies:    proxies,
	}, logger, shares, auditSvc, ratelimit.NewMemoryLimiter(time.Minute).WithClock(clock.now))

	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, audit: auditSvc, repos: repos, clock: clock, logs: logs}
}

type payload struct {
	meta       shared.UploadMetadata
	ciphertext []byte
	key        []byte
}

func encrypt(t *testing.T, plaintext []byte) payload {
	t.Helper()
	key, err := cryptox.GenerateKey()
	require.NoError(t, err)
	return encryptWithKey(t, plaintext, key)
}

func encryptWithKey(t *testing.T, plaintext, key []byte) payload {
	t.Helper()
	var buf bytes.Buffer
	iv, _, err := cryptox.EncryptStream(&buf, bytes.NewReader(plaintext), key)
	require.NoError(t, err)
	return payload{
		meta: shared.UploadMetadata{
			Algorithm:     cryptox.AlgorithmStream,
			IV:            iv,
			ChunkSize:     cryptox.ChunkSize,
			Size:          int64(len(plaintext)),
			EncryptedSize: int64(buf.Len()),
		},
		ciphertext: buf.Bytes(),
		key:        key,
	}
}

func encryptWithPassword(t *testing.T, plaintext []byte, password string) payload {
	t.Helper()
	salt, err := cryptox.GenerateSalt()
	require.NoError(t, err)
	key, err := cryptox.DeriveKey([]byte(password), salt, cryptox.MinIterations)
	require.NoError(t, err)

	p := encryptWithKey(t, plaintext, key)
	p.meta.Salt = salt
	p.meta.Iterations = cryptox.MinIterations
	p.meta.KDF = cryptox.KDFPBKDF2SHA512
	p.meta.PasswordVerifier = cryptox.PasswordVerifier(key)
	return p
}

func (a *testAPI) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *testAPI) upload(t *testing.T, p payload, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormField("metadata")
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(part).Encode(p.meta))

	file, err := mw.CreateFormFile("file", "blob")
	require.NoError(t, err)
	_, err = file.Write(p.ciphertext)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = mw.FormDataContentType()
	return a.do(t, http.MethodPost, "/api/files", &buf, headers)
}

func (a *testAPI) mustUpload(t *testing.T, p payload) shared.UploadResponse {
	t.Helper()
	resp := a.upload(t, p, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out shared.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e shared.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e.Error
}

func bearer(t *testing.T, userID string, role auth.Role) map[string]string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, role, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	resp := a.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadInfoDownload(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	plaintext := bytes.Repeat([]byte("ciphertext only "), 10_000)
	p := encrypt(t, plaintext)
	limit := 2
	p.meta.MaxDownloads = &limit

	up := a.mustUpload(t, p)
	assert.Equal(t, "https://haven.example/s/"+up.ShareID, up.ShareURL)
	assert.NotContains(t, up.ShareURL, "#")

	resp := a.do(t, http.MethodGet, "/api/files/"+up.ShareID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.EqualValues(t, len(plaintext), info["size"])
	assert.EqualValues(t, 2, info["remainingDownloads"])
	assert.Equal(t, false, info["passwordProtected"])
	assert.NotContains(t, info, "iv")
	assert.NotContains(t, info, "salt")

	page := a.do(t, http.MethodGet, "/s/"+up.ShareID, nil, nil)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "no-referrer", page.Header.Get("Referrer-Policy"))

	dl := a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil, nil)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, cryptox.AlgorithmStream, dl.Header.Get(common.HeaderAlgorithm))
	assert.Equal(t, strconv.Itoa(cryptox.ChunkSize), dl.Header.Get(common.HeaderChunkSize))
	assert.Equal(t, strconv.Itoa(len(plaintext)), dl.Header.Get(common.HeaderPlaintextSize))
	assert.Empty(t, dl.Header.Get(common.HeaderSalt))

	iv, err := base64.StdEncoding.DecodeString(dl.Header.Get(common.HeaderIV))
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = cryptox.DecryptStream(&out, dl.Body, p.key, iv)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out.Bytes())

	dl = a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil, nil)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	_, _ = io.Copy(io.Discard, dl.Body)

	dl = a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil, nil)
	assert.Equal(t, http.StatusGone, dl.StatusCode)
	assert.Equal(t, shared.CodeDownloadLimitExceeded, errorCode(t, dl))
}

func TestPasswordProtectedShare(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	p := encryptWithPassword(t, []byte("top secret"), "Secr3t!")
	up := a.mustUpload(t, p)

	resp := a.do(t, http.MethodGet, "/api/files/"+up.ShareID, nil, nil)
	var info shared.FileInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.True(t, info.PasswordProtected)
	assert.Equal(t, p.meta.Salt, info.Salt)
	assert.Equal(t, cryptox.MinIterations, info.Iterations)

	dl := a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, dl.StatusCode)
	assert.Equal(t, shared.CodePasswordRequired, errorCode(t, dl))

	wrong := cryptox.PasswordVerifier(bytes.Repeat([]byte{1}, 32))
	dl = a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil,
		map[string]string{common.HeaderSharePassword: wrong})
	assert.Equal(t, http.StatusUnauthorized, dl.StatusCode)
	assert.Equal(t, shared.CodeInvalidPassword, errorCode(t, dl))

	body, _ := json.Marshal(shared.VerifyPasswordRequest{Password: p.meta.PasswordVerifier})
	vr := a.do(t, http.MethodPost, "/api/files/"+up.ShareID+"/verify-password", bytes.NewReader(body), nil)
	assert.Equal(t, http.StatusNoContent, vr.StatusCode)

	dl = a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil,
		map[string]string{common.HeaderSharePassword: p.meta.PasswordVerifier})
	require.Equal(t, http.StatusOK, dl.StatusCode)
	salt, err := base64.StdEncoding.DecodeString(dl.Header.Get(common.HeaderSalt))
	require.NoError(t, err)
	assert.Equal(t, p.meta.Salt, salt)
	assert.Equal(t, cryptox.KDFPBKDF2SHA512, dl.Header.Get(common.HeaderKDF))
}

func TestPasswordThrottling(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	p := encryptWithPassword(t, []byte("guarded"), "Secr3t!")
	up := a.mustUpload(t, p)

	wrong, _ := json.Marshal(shared.VerifyPasswordRequest{Password: hex.EncodeToString(make([]byte, 32))})
	for i := 0; i < 5; i++ {
		resp := a.do(t, http.MethodPost, "/api/files/"+up.ShareID+"/verify-password", bytes.NewReader(wrong), nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	right, _ := json.Marshal(shared.VerifyPasswordRequest{Password: p.meta.PasswordVerifier})
	resp := a.do(t, http.MethodPost, "/api/files/"+up.ShareID+"/verify-password", bytes.NewReader(right), nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, shared.CodeRateLimitExceeded, errorCode(t, resp))
}

func TestPasswordThrottling_IgnoresSpoofedForwardingHeaders(t *testing.T) {
	a := newTestAPI(t, 1000, 0)
	p := encryptWithPassword(t, []byte("guarded"), "Secr3t!")
	up := a.mustUpload(t, p)
	path := "/api/files/" + up.ShareID + "/verify-password"

	wrong, _ := json.Marshal(shared.VerifyPasswordRequest{Password: hex.EncodeToString(make([]byte, 32))})
	for i := 1; i <= 5; i++ {
		resp := a.do(t, http.MethodPost, path, bytes.NewReader(wrong), map[string]string{
			"X-Real-IP":       "10.0.0." + strconv.Itoa(i),
			"X-Forwarded-For": "10.1.0." + strconv.Itoa(i),
			"True-Client-IP":  "10.2.0." + strconv.Itoa(i),
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i)
	}

	right, _ := json.Marshal(shared.VerifyPasswordRequest{Password: p.meta.PasswordVerifier})
	resp := a.do(t, http.MethodPost, path, bytes.NewReader(right), map[string]string{"X-Real-IP": "10.0.0.6"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	failed, err := a.audit.Query(context.Background(), models.AuditFilter{Action: "password_failed"})
	require.NoError(t, err)
	require.Len(t, failed, 5)
	for _, e := range failed {
		assert.Equal(t, a.audit.HashIP("127.0.0.1"), e.IPHash, "the TCP peer is recorded")
	}
}

func TestPasswordThrottling_TrustedProxy(t *testing.T) {
	a := newTestAPI(t, 1000, 0, netip.MustParsePrefix("127.0.0.0/8"))
	p := encryptWithPassword(t, []byte("guarded"), "Secr3t!")
	up := a.mustUpload(t, p)
	path := "/api/files/" + up.ShareID + "/verify-password"

	wrong, _ := json.Marshal(shared.VerifyPasswordRequest{Password: hex.EncodeToString(make([]byte, 32))})
	for i := 0; i < 5; i++ {
		resp := a.do(t, http.MethodPost, path, bytes.NewReader(wrong), map[string]string{"X-Real-IP": "203.0.113.1"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	right, _ := json.Marshal(shared.VerifyPasswordRequest{Password: p.meta.PasswordVerifier})
	resp := a.do(t, http.MethodPost, path, bytes.NewReader(right), map[string]string{"X-Real-IP": "203.0.113.1"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = a.do(t, http.MethodPost, path, bytes.NewReader(right), map[string]string{"X-Forwarded-For": "203.0.113.2"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "another client behind the proxy is not throttled")

	failed, err := a.audit.Query(context.Background(), models.AuditFilter{Action: "password_failed"})
	require.NoError(t, err)
	require.NotEmpty(t, failed)
	assert.Equal(t, a.audit.HashIP("203.0.113.1"), failed[0].IPHash)
}

func TestPreviewIsAlwaysUnavailable(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	up := a.mustUpload(t, encrypt(t, []byte("image bytes")))

	for _, id := range []string{up.ShareID, "unknownunknownunknown"} {
		resp := a.do(t, http.MethodGet, "/api/files/"+id+"/preview", nil, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, shared.CodePreviewUnavailable, errorCode(t, resp))
	}
}

func TestExpiredShare(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	p := encrypt(t, []byte("brief"))
	p.meta.ExpiresIn = timex.Duration{Duration: time.Hour}
	up := a.mustUpload(t, p)

	a.clock.advance(time.Hour + time.Second)

	resp := a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, shared.CodeExpired, errorCode(t, resp))
}

func TestDelete(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	up := a.mustUpload(t, encrypt(t, []byte("bye")))

	resp := a.do(t, http.MethodDelete, "/api/files/"+up.ShareID, nil, map[string]string{common.HeaderDeleteToken: "nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = a.do(t, http.MethodDelete, "/api/files/"+up.ShareID, nil, map[string]string{common.HeaderDeleteToken: up.DeleteToken})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/files/"+up.ShareID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, shared.CodeNotFound, errorCode(t, resp))
}

func TestDelete_ByOwner(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	resp := a.upload(t, encrypt(t, []byte("owned")), bearer(t, "alice", auth.RoleUser))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var up shared.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))

	resp = a.do(t, http.MethodDelete, "/api/files/"+up.ShareID, nil, bearer(t, "mallory", auth.RoleUser))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = a.do(t, http.MethodDelete, "/api/files/"+up.ShareID, nil, bearer(t, "alice", auth.RoleUser))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUpload_Rejections(t *testing.T) {
	a := newTestAPI(t, 100, 1024)

	resp := a.do(t, http.MethodPost, "/api/files", bytes.NewReader([]byte("{}")),
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	p := encrypt(t, []byte("x"))
	p.meta.Algorithm = "ROT13"
	resp = a.upload(t, p, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, shared.CodeInvalidInput, errorCode(t, resp))

	resp = a.upload(t, encrypt(t, make([]byte, 4096)), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestRateLimit(t *testing.T) {
	a := newTestAPI(t, 2, 0)
	up := a.mustUpload(t, encrypt(t, []byte("popular")))

	for i := 0; i < 2; i++ {
		resp := a.do(t, http.MethodGet, "/api/files/"+up.ShareID, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := a.do(t, http.MethodGet, "/api/files/"+up.ShareID, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	entries, err := a.audit.Query(context.Background(), models.AuditFilter{Category: models.CategoryRateLimit})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "info", entries[0].Details["route"])

	a.clock.advance(time.Minute + time.Second)
	resp = a.do(t, http.MethodGet, "/api/files/"+up.ShareID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	a := newTestAPI(t, 100, 0)

	resp := a.do(t, http.MethodGet, "/health", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/health", nil, map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAudit(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	ctx := context.Background()

	require.NoError(t, a.audit.Log(ctx, audit.Event{
		Category:   models.CategorySecurityEvent,
		Action:     "suspicious_upload",
		ResourceID: "share-1",
		Sensitive:  map[string]string{"filename": "payroll.xlsx"},
	}))

	resp := a.do(t, http.MethodGet, "/api/admin/audit", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/admin/audit", nil, bearer(t, "bob", auth.RoleUser))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := bearer(t, "root", auth.RoleAdmin)
	resp = a.do(t, http.MethodGet, "/api/admin/audit?action=suspicious_upload&limit=10", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []shared.AuditEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"filename"}, entries[0].EncryptedFields)

	resp = a.do(t, http.MethodGet, "/api/admin/audit?limit=abc", nil, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/admin/audit/"+entries[0].ID+"/decrypt", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fields map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fields))
	assert.Equal(t, "payroll.xlsx", fields["filename"])

	decrypts, err := a.audit.Query(ctx, models.AuditFilter{Action: "audit_decrypt"})
	require.NoError(t, err)
	require.Len(t, decrypts, 1)
	assert.Equal(t, "root", decrypts[0].UserID)
}

// The embedded key must not show up in logs, audit rows or responses,
// even when a careless client also sends it in the query string.
func TestKeyNeverReachesServerRecords(t *testing.T) {
	a := newTestAPI(t, 100, 0)
	p := encrypt(t, []byte("the key stays in the fragment"))
	up := a.mustUpload(t, p)

	keyB64 := base64.RawURLEncoding.EncodeToString(p.key)
	keyHex := hex.EncodeToString(p.key)

	resp := a.do(t, http.MethodGet, "/s/"+up.ShareID+"?k="+keyB64, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = a.do(t, http.MethodGet, "/api/files/"+up.ShareID+"/download", nil, nil)
	_, _ = io.Copy(io.Discard, resp.Body)
	a.srv.Close()

	logs := a.logs.String()
	assert.NotEmpty(t, logs)
	assert.NotContains(t, logs, keyB64)
	assert.NotContains(t, logs, keyHex)
	assert.NotContains(t, logs, "127.0.0.1", "raw client addresses stay out of logs")

	entries, err := a.audit.Query(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		raw, err := json.Marshal(e)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), keyB64)
		assert.NotContains(t, string(raw), "127.0.0.1")
	}
}
