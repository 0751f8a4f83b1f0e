package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
// Timestamps are stored as unix seconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, u *models.Upload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO uploads (share_id, url, delete_token, size, password_protected, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(share_id) DO UPDATE SET
			url = excluded.url,
			delete_token = excluded.delete_token,
			expires_at = excluded.expires_at
	`, u.ShareID, u.URL, u.DeleteToken, u.Size, u.PasswordProtected, u.CreatedAt.Unix(), u.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert upload %s: %w", u.ShareID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (*models.Upload, error) {
	var (
		u                  models.Upload
		created, expiresAt int64
	)
	if err := s.Scan(&u.ShareID, &u.URL, &u.DeleteToken, &u.Size, &u.PasswordProtected, &created, &expiresAt); err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	u.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &u, nil
}

const selectColumns = `SELECT share_id, url, delete_token, size, password_protected, created_at, expires_at FROM uploads`

func (r *SQLiteRepository) Get(ctx context.Context, shareID string) (*models.Upload, error) {
	u, err := scanUpload(r.db.QueryRowContext(ctx, selectColumns+` WHERE share_id = ?`, shareID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload %s: %w", shareID, err)
	}
	return u, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Upload, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, share_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var result []models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload row: %w", err)
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upload rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, shareID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE share_id = ?`, shareID); err != nil {
		return fmt.Errorf("failed to delete upload %s: %w", shareID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired uploads: %w", err)
	}
	return res.RowsAffected()
}
