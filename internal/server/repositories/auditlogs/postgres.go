package auditlogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/dbx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
)

const (
	selectColumns = `id, category, action, severity, status, created_at, ip_hash, user_id, resource_id,
	details, encrypted_fields, expires_at`

	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// PostgresRepository implements audit storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

// Insert appends an entry.
func (r *PostgresRepository) Insert(ctx context.Context, e *models.AuditLogEntry) error {
	details, err := marshalMap(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	encrypted, err := marshalMap(e.EncryptedFields)
	if err != nil {
		return fmt.Errorf("marshal encrypted fields: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, category, action, severity, status, created_at, ip_hash, user_id, resource_id,
			details, encrypted_fields, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query, e.ID, string(e.Category), e.Action, string(e.Severity), string(e.Status),
		e.Timestamp, e.IPHash, e.UserID, e.ResourceID, details, encrypted, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.AuditLogEntry, error) {
	var (
		e                  models.AuditLogEntry
		details, encrypted []byte
	)
	if err := s.Scan(&e.ID, &e.Category, &e.Action, &e.Severity, &e.Status, &e.Timestamp, &e.IPHash, &e.UserID,
		&e.ResourceID, &details, &encrypted, &e.ExpiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &e.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	if err := json.Unmarshal(encrypted, &e.EncryptedFields); err != nil {
		return nil, fmt.Errorf("unmarshal encrypted fields: %w", err)
	}
	return &e, nil
}

// Get returns a live entry or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string, now time.Time) (*models.AuditLogEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_logs WHERE id=$1 AND expires_at > $2`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select audit entry: %w", err)
	}
	return e, nil
}

// Query returns live entries matching f, newest first.
func (r *PostgresRepository) Query(ctx context.Context, f models.AuditFilter, now time.Time) ([]*models.AuditLogEntry, error) {
	conds := []string{"expires_at > $1"}
	args := []any{now}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}

	args = append(args, clampLimit(f.Limit))
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		selectColumns, strings.Join(conds, " AND "), len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PurgeExpired deletes every entry whose retention has ended.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultQueryLimit
	case limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return limit
	}
}
