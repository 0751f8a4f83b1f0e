// Package auditlogs persists audit entries. Rows past their expiry are never
// returned by reads and are physically removed by PurgeExpired.
package auditlogs

import (
	"context"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, e *models.AuditLogEntry) error
	Get(ctx context.Context, id string, now time.Time) (*models.AuditLogEntry, error)
	Query(ctx context.Context, f models.AuditFilter, now time.Time) ([]*models.AuditLogEntry, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
