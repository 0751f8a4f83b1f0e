package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/dbx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/migrations"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/auditlogs"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/repositories/sharedfiles"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	db *sql.DB
}

var sqlOpen = sql.Open

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// NewPostgresRepositoryManager opens a pgx-backed pool for dsn and checks
// that the server answers.
func NewPostgresRepositoryManager(ctx context.Context, dsn string) (*PostgresRepositoryManager, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresRepositoryManagerWithDB(db), nil
}

// NewPostgresRepositoryManagerWithDB wraps an already opened handle.
func NewPostgresRepositoryManagerWithDB(db *sql.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{db: db}
}

func (m *PostgresRepositoryManager) conn(db dbx.DBTX) dbx.DBTX {
	if db == nil {
		return m.db
	}
	return db
}

// SharedFiles returns a sharedfiles.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) SharedFiles(db dbx.DBTX) sharedfiles.Repository {
	return sharedfiles.NewPostgresRepository(m.conn(db))
}

// AuditLogs returns an auditlogs.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) AuditLogs(db dbx.DBTX) auditlogs.Repository {
	return auditlogs.NewPostgresRepository(m.conn(db))
}

// WithTx runs fn inside a database transaction.
func (m *PostgresRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, m.db, nil, fn)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the managed connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, "."); err != nil {
		return err
	}
	return nil
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}
