// Package shared holds the JSON wire types spoken between the HTTP API and
// the client transport.
package shared

import (
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/timex"
)

// UploadMetadata is the "metadata" part of an upload. Binary fields travel
// as standard base64.
type UploadMetadata struct {
	Algorithm        string         `json:"algorithm"`
	IV               []byte         `json:"iv"`
	Salt             []byte         `json:"salt,omitempty"`
	Iterations       int            `json:"iterations,omitempty"`
	KDF              string         `json:"kdf,omitempty"`
	ChunkSize        int            `json:"chunkSize"`
	Size             int64          `json:"size"`
	EncryptedSize    int64          `json:"encryptedSize"`
	ExpiresIn        timex.Duration `json:"expiresIn"`
	MaxDownloads     *int           `json:"maxDownloads,omitempty"`
	PasswordVerifier string         `json:"passwordVerifier,omitempty"`
}

type UploadResponse struct {
	ShareID     string    `json:"shareId"`
	ShareURL    string    `json:"shareUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	DeleteToken string    `json:"deleteToken"`
}

// FileInfo never carries the IV. Salt, iterations and kdf are present only
// for password-protected shares.
type FileInfo struct {
	ShareID            string    `json:"shareId"`
	Size               int64     `json:"size"`
	EncryptedSize      int64     `json:"encryptedSize"`
	Algorithm          string    `json:"algorithm"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	MaxDownloads       *int      `json:"maxDownloads"`
	RemainingDownloads *int      `json:"remainingDownloads"`
	PasswordProtected  bool      `json:"passwordProtected"`
	Salt               []byte    `json:"salt,omitempty"`
	Iterations         int       `json:"iterations,omitempty"`
	KDF                string    `json:"kdf,omitempty"`
}

// VerifyPasswordRequest carries the password verifier, not the password.
type VerifyPasswordRequest struct {
	Password string `json:"password"`
}

// AuditEntry is the admin projection of an audit row. Encrypted values are
// listed by name only.
type AuditEntry struct {
	ID              string            `json:"id"`
	Category        string            `json:"category"`
	Action          string            `json:"action"`
	Severity        string            `json:"severity"`
	Status          string            `json:"status"`
	Timestamp       time.Time         `json:"timestamp"`
	IPHash          string            `json:"ipHash,omitempty"`
	UserID          string            `json:"userId,omitempty"`
	ResourceID      string            `json:"resourceId,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
	EncryptedFields []string          `json:"encryptedFields,omitempty"`
	ExpiresAt       time.Time         `json:"expiresAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
