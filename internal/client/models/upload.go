// Package models holds the client's local data types.
package models

import "time"

// Upload is a share this client created. URL is the server-visible form of
// the link; the key is never stored locally.
type Upload struct {
	ShareID           string
	URL               string
	DeleteToken       string
	Size              int64
	PasswordProtected bool
	CreatedAt         time.Time
	ExpiresAt         time.Time
}
