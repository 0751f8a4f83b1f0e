// Package transport is the HTTP client for the share API. It moves
// ciphertext and public metadata only; keys never reach this package.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/netx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
)

var ErrUnavailable = errors.New("server unavailable")

const errorBodyLimit = 4 << 10

// APIError is a non-success response. It unwraps to the sentinel for its
// code, so callers match it with errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

func (e *APIError) Unwrap() error {
	return shared.ErrorForCode(e.Code)
}

// DownloadParams are the decryption parameters returned with a download.
type DownloadParams struct {
	Algorithm     string
	IV            []byte
	Salt          []byte
	Iterations    int
	KDF           string
	ChunkSize     int
	Size          int64
	EncryptedSize int64
}

// Download is an open ciphertext stream. The caller must close Body.
type Download struct {
	Body   io.ReadCloser
	Params DownloadParams
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for the server at baseURL. token is an optional
// bearer token sent with every request.
func New(baseURL string, httpClient *http.Client, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient, token: token}
}

func (c *Client) newRequest(ctx context.Context, method string, body io.Reader, segments ...string) (*http.Request, error) {
	u, err := netx.JoinURL(c.baseURL, segments...)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) transportErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// do sends req and returns the response when its status is want. Any other
// status is decoded into an *APIError and the body is released.
func (c *Client) do(req *http.Request, want int) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportErr(req.Context(), err)
	}
	if resp.StatusCode != want {
		defer netx.DrainClose(resp.Body)
		return nil, decodeError(resp)
	}
	return resp, nil
}

var statusCodes = map[int]string{
	http.StatusBadRequest:            shared.CodeInvalidInput,
	http.StatusUnauthorized:          shared.CodeUnauthorized,
	http.StatusForbidden:             shared.CodeForbidden,
	http.StatusNotFound:              shared.CodeNotFound,
	http.StatusRequestEntityTooLarge: shared.CodeInvalidInput,
	http.StatusTooManyRequests:       shared.CodeRateLimitExceeded,
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body shared.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, errorBodyLimit)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
		return apiErr
	}

	if code, ok := statusCodes[resp.StatusCode]; ok {
		apiErr.Code = code
	} else {
		apiErr.Code = shared.CodeInternal
	}
	return apiErr
}

// Upload streams the metadata part followed by the ciphertext part. The
// ciphertext is read as the request is written, so it can come straight
// from an encrypting pipe.
func (c *Client) Upload(ctx context.Context, meta shared.UploadMetadata, ciphertext io.Reader) (*shared.UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	errc := make(chan error, 1)
	go func() {
		err := writeUploadBody(mw, meta, ciphertext)
		_ = pw.CloseWithError(err)
		errc <- err
	}()

	req, err := c.newRequest(ctx, http.MethodPost, pr, "api", "files")
	if err != nil {
		_ = pr.CloseWithError(err)
		<-errc
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	// Unblocks the writer if the server answered before reading everything.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if werr := <-errc; werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		if resp != nil {
			netx.DrainClose(resp.Body)
		}
		return nil, werr
	}
	if err != nil {
		return nil, c.transportErr(ctx, err)
	}
	defer netx.DrainClose(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var out shared.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &out, nil
}

func writeUploadBody(mw *multipart.Writer, meta shared.UploadMetadata, ciphertext io.Reader) error {
	part, err := mw.CreateFormField("metadata")
	if err != nil {
		return err
	}
	if err := json.NewEncoder(part).Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	part, err = mw.CreateFormFile("file", "blob")
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, ciphertext); err != nil {
		return err
	}
	return mw.Close()
}

func (c *Client) Info(ctx context.Context, shareID string) (*shared.FileInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil, "api", "files", shareID)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer netx.DrainClose(resp.Body)

	var info shared.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode file info: %w", err)
	}
	return &info, nil
}

// Download opens the ciphertext stream. verifier is empty for shares that
// are not password protected.
func (c *Client) Download(ctx context.Context, shareID, verifier string) (*Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil, "api", "files", shareID, "download")
	if err != nil {
		return nil, err
	}
	if verifier != "" {
		req.Header.Set(common.HeaderSharePassword, verifier)
	}

	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}

	params, err := parseDownloadHeaders(resp)
	if err != nil {
		netx.DrainClose(resp.Body)
		return nil, err
	}
	return &Download{Body: resp.Body, Params: params}, nil
}

func parseDownloadHeaders(resp *http.Response) (DownloadParams, error) {
	h := resp.Header
	p := DownloadParams{
		Algorithm:     h.Get(common.HeaderAlgorithm),
		KDF:           h.Get(common.HeaderKDF),
		EncryptedSize: resp.ContentLength,
	}

	var err error
	if p.IV, err = base64.StdEncoding.DecodeString(h.Get(common.HeaderIV)); err != nil || len(p.IV) == 0 {
		return p, fmt.Errorf("malformed %s header: %w", common.HeaderIV, common.ErrInvalidInput)
	}
	if p.ChunkSize, err = strconv.Atoi(h.Get(common.HeaderChunkSize)); err != nil {
		return p, fmt.Errorf("malformed %s header: %w", common.HeaderChunkSize, common.ErrInvalidInput)
	}
	if p.Size, err = strconv.ParseInt(h.Get(common.HeaderPlaintextSize), 10, 64); err != nil {
		return p, fmt.Errorf("malformed %s header: %w", common.HeaderPlaintextSize, common.ErrInvalidInput)
	}

	if s := h.Get(common.HeaderSalt); s != "" {
		if p.Salt, err = base64.StdEncoding.DecodeString(s); err != nil {
			return p, fmt.Errorf("malformed %s header: %w", common.HeaderSalt, common.ErrInvalidInput)
		}
		if p.Iterations, err = strconv.Atoi(h.Get(common.HeaderIterations)); err != nil {
			return p, fmt.Errorf("malformed %s header: %w", common.HeaderIterations, common.ErrInvalidInput)
		}
	}
	return p, nil
}

// VerifyPassword checks a verifier without consuming a download.
func (c *Client) VerifyPassword(ctx context.Context, shareID, verifier string) error {
	body, err := json.Marshal(shared.VerifyPasswordRequest{Password: verifier})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, bytes.NewReader(body), "api", "files", shareID, "verify-password")
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, http.StatusNoContent)
	if err != nil {
		return err
	}
	netx.DrainClose(resp.Body)
	return nil
}

// Delete removes a share. deleteToken may be empty when the client
// authenticates as the owner.
func (c *Client) Delete(ctx context.Context, shareID, deleteToken string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, nil, "api", "files", shareID)
	if err != nil {
		return err
	}
	if deleteToken != "" {
		req.Header.Set(common.HeaderDeleteToken, deleteToken)
	}

	resp, err := c.do(req, http.StatusNoContent)
	if err != nil {
		return err
	}
	netx.DrainClose(resp.Body)
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, nil, "health")
	if err != nil {
		return err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return err
	}
	netx.DrainClose(resp.Body)
	return nil
}
