// Package repomanager vends repository implementations for the configured
// backend and owns the database handle, migrations and transactions.
package repomanager

import (
	"context"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/dbx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/auditlogs"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/sharedfiles"
)

// RepositoryManager hands out repositories bound to a DBTX. A nil db
// selects the manager's own connection.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	SharedFiles(db dbx.DBTX) sharedfiles.Repository
	AuditLogs(db dbx.DBTX) auditlogs.Repository
	// WithTx runs fn in a transaction; repositories obtained from tx take
	// part in it.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	Close() error
}
