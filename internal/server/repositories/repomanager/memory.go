package repomanager

import (
	"context"
	"sync"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/dbx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/auditlogs"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/sharedfiles"
)

// InMemoryRepositoryManager serves process-local repositories. The db
// argument of the factories is ignored.
type InMemoryRepositoryManager struct {
	txMu        sync.Mutex
	sharedFiles *sharedfiles.MemoryRepository
	auditLogs   *auditlogs.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		sharedFiles: sharedfiles.NewMemoryRepository(),
		auditLogs:   auditlogs.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) SharedFiles(dbx.DBTX) sharedfiles.Repository {
	return m.sharedFiles
}

func (m *InMemoryRepositoryManager) AuditLogs(dbx.DBTX) auditlogs.Repository {
	return m.auditLogs
}

// WithTx serializes transactional blocks against each other. Individual
// repository calls stay atomic on their own.
func (m *InMemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, nil)
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
