// Package common defines shared constants and sentinel errors used across
// the client and server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Validation errors.
	ErrInvalidInput = errors.New("invalid input")

	// Cryptographic errors. ErrIntegrity covers both a wrong key and
	// tampered ciphertext; the two are indistinguishable by design of AEAD.
	ErrIntegrity        = errors.New("integrity check failed")
	ErrEncryptionFailed = errors.New("encryption failed")

	// Share lifecycle errors.
	ErrExpired               = errors.New("share has expired")
	ErrDownloadLimitExceeded = errors.New("download limit exceeded")
	ErrPasswordRequired      = errors.New("password required")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")

	// ErrStorageInconsistency means metadata exists but the ciphertext is gone.
	ErrStorageInconsistency = errors.New("storage inconsistency")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
