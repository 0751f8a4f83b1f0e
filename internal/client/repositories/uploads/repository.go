// Package uploads persists the client's upload history so a share can be
// deleted later without the user keeping its delete token.
package uploads

import (
	"context"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/models"
)

type Repository interface {
	Insert(ctx context.Context, u *models.Upload) error
	// Get returns common.ErrorNotFound for unknown ids.
	Get(ctx context.Context, shareID string) (*models.Upload, error)
	// List returns uploads newest first.
	List(ctx context.Context) ([]models.Upload, error)
	Delete(ctx context.Context, shareID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
