package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/services"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
	"github.com/go-chi/chi/v5"
)

const (
	metadataLimit = 64 << 10
	jsonBodyLimit = 4 << 10
)

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), common.ErrInvalidInput)
}

func nextPart(mr *multipart.Reader, name string) (*multipart.Part, error) {
	part, err := mr.NextPart()
	if err != nil {
		return nil, invalidf("missing %q part: %v", name, err)
	}
	if part.FormName() != name {
		return nil, invalidf("expected %q part, got %q", name, part.FormName())
	}
	return part, nil
}

// upload expects the metadata part first so the ciphertext can be streamed
// straight into the blob store.
func (s *HTTPServer) upload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize+metadataLimit)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, invalidf("multipart body required"))
		return
	}

	part, err := nextPart(mr, "metadata")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var meta shared.UploadMetadata
	if err := json.NewDecoder(io.LimitReader(part, metadataLimit)).Decode(&meta); err != nil {
		s.writeError(w, r, invalidf("metadata: %v", err))
		return
	}

	file, err := nextPart(mr, "file")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.shares.Store(r.Context(), services.UploadMeta{
		Algorithm:        meta.Algorithm,
		IV:               meta.IV,
		Salt:             meta.Salt,
		Iterations:       meta.Iterations,
		KDF:              meta.KDF,
		ChunkSize:        meta.ChunkSize,
		Size:             meta.Size,
		EncryptedSize:    meta.EncryptedSize,
		ExpiresIn:        meta.ExpiresIn.Duration,
		MaxDownloads:     meta.MaxDownloads,
		PasswordVerifier: meta.PasswordVerifier,
		OwnerID:          userIDFrom(r.Context()),
		IP:               clientIP(r),
	}, file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, shared.UploadResponse{
		ShareID:     res.ShareID,
		ShareURL:    res.ShareURL,
		ExpiresAt:   res.ExpiresAt,
		DeleteToken: res.DeleteToken,
	})
}

func toWireInfo(info *services.FileInfo) shared.FileInfo {
	return shared.FileInfo{
		ShareID:            info.ShareID,
		Size:               info.Size,
		EncryptedSize:      info.EncryptedSize,
		Algorithm:          info.Algorithm,
		CreatedAt:          info.CreatedAt,
		ExpiresAt:          info.ExpiresAt,
		MaxDownloads:       info.MaxDownloads,
		RemainingDownloads: info.RemainingDownloads,
		PasswordProtected:  info.PasswordProtected,
		Salt:               info.Salt,
		Iterations:         info.Iterations,
		KDF:                info.KDF,
	}
}

func (s *HTTPServer) info(w http.ResponseWriter, r *http.Request) {
	info, err := s.shares.Info(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireInfo(info))
}

// sharePage is what a browser hits when a link is opened. It returns the
// same metadata as info; the key in the fragment stays in the browser.
func (s *HTTPServer) sharePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Referrer-Policy", "no-referrer")
	s.info(w, r)
}

func (s *HTTPServer) download(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	d, err := s.shares.OpenDownload(r.Context(), chi.URLParam(r, "id"), ip, r.Header.Get(common.HeaderSharePassword))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer d.Body.Close()

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(d.EncryptedSize, 10))
	h.Set(common.HeaderAlgorithm, d.Algorithm)
	h.Set(common.HeaderIV, base64.StdEncoding.EncodeToString(d.IV))
	h.Set(common.HeaderChunkSize, strconv.Itoa(d.ChunkSize))
	h.Set(common.HeaderPlaintextSize, strconv.FormatInt(d.Size, 10))
	if len(d.Salt) > 0 {
		h.Set(common.HeaderSalt, base64.StdEncoding.EncodeToString(d.Salt))
		h.Set(common.HeaderIterations, strconv.Itoa(d.Iterations))
		h.Set(common.HeaderKDF, d.KDF)
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, d.Body)
	s.shares.Finalize(context.WithoutCancel(r.Context()), d, ip, n, err)
}

func (s *HTTPServer) verifyPassword(w http.ResponseWriter, r *http.Request) {
	var req shared.VerifyPasswordRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, jsonBodyLimit)).Decode(&req); err != nil {
		s.writeError(w, r, invalidf("body: %v", err))
		return
	}

	if err := s.shares.VerifyPassword(r.Context(), chi.URLParam(r, "id"), clientIP(r), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// preview is always refused: the server only holds ciphertext.
func (s *HTTPServer) preview(w http.ResponseWriter, r *http.Request) {
	writeCode(w, http.StatusUnprocessableEntity, shared.CodePreviewUnavailable)
}

func (s *HTTPServer) deleteFile(w http.ResponseWriter, r *http.Request) {
	err := s.shares.Delete(r.Context(),
		chi.URLParam(r, "id"),
		userIDFrom(r.Context()),
		r.Header.Get(common.HeaderDeleteToken),
		clientIP(r),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
