package sharedfiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/dbx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
)

const selectColumns = `id, storage_key, owner_id, delete_token_hash, algorithm, iv, salt, iterations, kdf,
	chunk_size, size, encrypted_size, password_hash, max_downloads, download_count,
	created_at, expires_at, last_download_at, is_deleted, deleted_at, purged_at`

// PostgresRepository implements share storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new share. Exactly one row must be affected.
func (r *PostgresRepository) Create(ctx context.Context, f *models.SharedFile) error {
	query := `
		INSERT INTO shared_files (id, storage_key, owner_id, delete_token_hash, algorithm, iv, salt, iterations, kdf,
			chunk_size, size, encrypted_size, password_hash, max_downloads, download_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, $15, $16)
	`
	var maxDownloads sql.NullInt64
	if f.MaxDownloads != nil {
		maxDownloads = sql.NullInt64{Int64: int64(*f.MaxDownloads), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query,
		f.ID, f.StorageKey, f.OwnerID, f.DeleteTokenHash, f.Algorithm, f.IV, f.Salt, f.Iterations, f.KDF,
		f.ChunkSize, f.Size, f.EncryptedSize, f.PasswordHash, maxDownloads, f.CreatedAt, f.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSharedFile(s scanner) (*models.SharedFile, error) {
	var (
		f            models.SharedFile
		maxDownloads sql.NullInt64
		lastDownload sql.NullTime
		deletedAt    sql.NullTime
		purgedAt     sql.NullTime
	)
	if err := s.Scan(&f.ID, &f.StorageKey, &f.OwnerID, &f.DeleteTokenHash, &f.Algorithm, &f.IV, &f.Salt,
		&f.Iterations, &f.KDF, &f.ChunkSize, &f.Size, &f.EncryptedSize, &f.PasswordHash, &maxDownloads,
		&f.DownloadCount, &f.CreatedAt, &f.ExpiresAt, &lastDownload, &f.IsDeleted, &deletedAt, &purgedAt); err != nil {
		return nil, err
	}
	if maxDownloads.Valid {
		v := int(maxDownloads.Int64)
		f.MaxDownloads = &v
	}
	if lastDownload.Valid {
		f.LastDownloadAt = &lastDownload.Time
	}
	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.Time
	}
	if purgedAt.Valid {
		f.PurgedAt = &purgedAt.Time
	}
	return &f, nil
}

// Get returns the share with the given id or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.SharedFile, error) {
	query := `SELECT ` + selectColumns + ` FROM shared_files WHERE id=$1`

	f, err := scanSharedFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select share: %w", err)
	}
	return f, nil
}

// IncrementDownloadCount performs the conditional increment in one statement,
// so concurrent callers can never push download_count past max_downloads.
func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, id string, now time.Time) (int, error) {
	query := `
		UPDATE shared_files
		SET download_count = download_count + 1, last_download_at = $2
		WHERE id = $1
			AND NOT is_deleted
			AND expires_at > $2
			AND (max_downloads IS NULL OR download_count < max_downloads)
		RETURNING download_count
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, id, now).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotEligible
		}
		return 0, fmt.Errorf("failed to record download: %w", err)
	}
	return count, nil
}

// MarkDeleted soft-deletes a share. Deleting twice is not an error.
func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE shared_files SET is_deleted=TRUE, deleted_at=COALESCE(deleted_at, $2) WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark deleted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// MarkPurged records the ciphertext removal of an expired share. Only the
// first caller sees true, so concurrent readers purge and audit once.
func (r *PostgresRepository) MarkPurged(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE shared_files SET purged_at=$2 WHERE id=$1 AND purged_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark purged: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// Delete physically removes the row. Missing rows are ignored so purges
// racing each other stay idempotent.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM shared_files WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

// ListPurgeable returns deleted, expired and long-exhausted shares.
func (r *PostgresRepository) ListPurgeable(ctx context.Context, q PurgeQuery) ([]*models.SharedFile, error) {
	query := `SELECT ` + selectColumns + ` FROM shared_files
		WHERE is_deleted
			OR expires_at <= $1
			OR (max_downloads IS NOT NULL AND download_count >= max_downloads
				AND COALESCE(last_download_at, created_at) < $2)
		ORDER BY expires_at
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, q.Now, q.ExhaustedBefore, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable shares: %w", err)
	}
	defer rows.Close()

	var result []*models.SharedFile
	for rows.Next() {
		f, err := scanSharedFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
