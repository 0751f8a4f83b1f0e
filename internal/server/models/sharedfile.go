// Package models defines server-side data models persisted in the database.
package models

import "time"

// ShareState is the lifecycle state of a SharedFile. Transitions only move
// away from StateActive; nothing returns to it.
type ShareState string

const (
	StateActive    ShareState = "active"
	StateExpired   ShareState = "expired"
	StateExhausted ShareState = "exhausted"
	StateDeleted   ShareState = "deleted"
)

// SharedFile describes an uploaded ciphertext and its public parameters.
// The encrypted bytes themselves live in the blob store under StorageKey.
type SharedFile struct {
	ID         string
	StorageKey string
	// OwnerID is the authenticated uploader, empty for anonymous uploads.
	OwnerID string
	// DeleteTokenHash is the SHA-256 of the delete token handed to the uploader.
	DeleteTokenHash string

	Algorithm  string
	IV         []byte
	Salt       []byte
	Iterations int
	KDF        string
	ChunkSize  int

	Size          int64
	EncryptedSize int64

	// PasswordHash is a bcrypt hash of the client's password verifier; nil
	// when the share embeds its key in the link.
	PasswordHash []byte

	// MaxDownloads is nil for unlimited shares.
	MaxDownloads  *int
	DownloadCount int

	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastDownloadAt *time.Time
	IsDeleted      bool
	DeletedAt      *time.Time
	// PurgedAt is set once the ciphertext of an expired share was removed.
	PurgedAt       *time.Time
}

// IsPasswordProtected reports whether downloads are gated by a password.
func (f *SharedFile) IsPasswordProtected() bool {
	return len(f.PasswordHash) > 0
}

// State classifies the record at now. Deletion wins over expiry, and expiry
// wins over an exhausted counter.
func (f *SharedFile) State(now time.Time) ShareState {
	switch {
	case f.IsDeleted:
		return StateDeleted
	case !now.Before(f.ExpiresAt):
		return StateExpired
	case f.MaxDownloads != nil && f.DownloadCount >= *f.MaxDownloads:
		return StateExhausted
	default:
		return StateActive
	}
}

// RemainingDownloads returns nil for unlimited shares.
func (f *SharedFile) RemainingDownloads() *int {
	if f.MaxDownloads == nil {
		return nil
	}
	left := *f.MaxDownloads - f.DownloadCount
	if left < 0 {
		left = 0
	}
	return &left
}
