// Package sharedfiles persists SharedFile records. Implementations must make
// IncrementDownloadCount a single atomic check-and-increment.
package sharedfiles

import (
	"context"
	"errors"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
)

// ErrNotEligible is returned by IncrementDownloadCount when no row met the
// download condition. Callers classify the reason with Get.
var ErrNotEligible = errors.New("share not eligible for download")

// PurgeQuery selects records that the sweeper may physically remove.
type PurgeQuery struct {
	Now time.Time
	// ExhaustedBefore admits exhausted shares whose last download happened
	// before this instant.
	ExhaustedBefore time.Time
	Limit           int
}

type Repository interface {
	Create(ctx context.Context, f *models.SharedFile) error
	// Get returns common.ErrorNotFound when no row exists. Deleted and
	// expired rows are returned as-is; policy belongs to the caller.
	Get(ctx context.Context, id string) (*models.SharedFile, error)
	// IncrementDownloadCount bumps the counter iff the share is not deleted,
	// not expired at now and below its cap, returning the new count.
	IncrementDownloadCount(ctx context.Context, id string, now time.Time) (int, error)
	MarkDeleted(ctx context.Context, id string, now time.Time) error
	// MarkPurged sets purged_at if it is still unset and reports whether
	// this call made the transition.
	MarkPurged(ctx context.Context, id string, now time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	ListPurgeable(ctx context.Context, q PurgeQuery) ([]*models.SharedFile, error)
}
