package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
	"github.com/go-chi/chi/v5/middleware"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{common.ErrInvalidInput, http.StatusBadRequest, shared.CodeInvalidInput},
	{common.ErrPasswordRequired, http.StatusUnauthorized, shared.CodePasswordRequired},
	{common.ErrInvalidPassword, http.StatusUnauthorized, shared.CodeInvalidPassword},
	{common.ErrorUnauthorized, http.StatusUnauthorized, shared.CodeUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized, shared.CodeUnauthorized},
	{common.ErrTokenExpired, http.StatusUnauthorized, shared.CodeUnauthorized},
	{common.ErrorForbidden, http.StatusForbidden, shared.CodeForbidden},
	{common.ErrorNotFound, http.StatusNotFound, shared.CodeNotFound},
	{common.ErrExpired, http.StatusGone, shared.CodeExpired},
	{common.ErrDownloadLimitExceeded, http.StatusGone, shared.CodeDownloadLimitExceeded},
	{common.ErrRateLimitExceeded, http.StatusTooManyRequests, shared.CodeRateLimitExceeded},
}

var messages = map[string]string{
	shared.CodeInvalidInput:          "the request is invalid",
	shared.CodePasswordRequired:      "this file is password protected",
	shared.CodeInvalidPassword:       "the password is incorrect",
	shared.CodeUnauthorized:          "authentication required",
	shared.CodeForbidden:             "not allowed",
	shared.CodeNotFound:              "file not found",
	shared.CodeExpired:               "this link has expired",
	shared.CodeDownloadLimitExceeded: "download limit reached",
	shared.CodeRateLimitExceeded:     "too many requests, try again later",
	shared.CodePreviewUnavailable:    "preview is not available for encrypted files",
	shared.CodeInternal:              "internal error",
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, shared.ErrorResponse{Error: code, Message: messages[code]})
}

// writeError maps err onto a status and error code. Anything unmapped,
// including crypto and storage failures, becomes a generic 500 and is
// logged with its detail.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeCode(w, http.StatusRequestEntityTooLarge, shared.CodeInvalidInput)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeCode(w, m.status, m.code)
			return
		}
	}

	s.logger.Error(r.Context(), "request failed",
		"request_id", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	writeCode(w, http.StatusInternalServerError, shared.CodeInternal)
}
