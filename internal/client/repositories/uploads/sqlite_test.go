package uploads

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE uploads (
  share_id           TEXT PRIMARY KEY,
  url                TEXT NOT NULL,
  delete_token       TEXT NOT NULL,
  size               INTEGER NOT NULL,
  password_protected INTEGER NOT NULL DEFAULT 0,
  created_at         INTEGER NOT NULL,
  expires_at         INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func upload(id string, created time.Time, ttl time.Duration) *models.Upload {
	return &models.Upload{
		ShareID:     id,
		URL:         "https://haven.example/s/" + id,
		DeleteToken: "token-" + id,
		Size:        42,
		CreatedAt:   created,
		ExpiresAt:   created.Add(ttl),
	}
}

func TestInsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	u := upload("a", base, time.Hour)
	u.PasswordProtected = true
	require.NoError(t, r.Insert(ctx, u))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestInsert_Upsert(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, upload("a", base, time.Hour)))
	u := upload("a", base, 2*time.Hour)
	u.DeleteToken = "new"
	require.NoError(t, r.Insert(ctx, u))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.DeleteToken)
	assert.Equal(t, base.Add(2*time.Hour), got.ExpiresAt)
}

func TestList_NewestFirst(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, upload("old", base, time.Hour)))
	require.NoError(t, r.Insert(ctx, upload("new", base.Add(time.Minute), time.Hour)))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ShareID)
	assert.Equal(t, "old", list[1].ShareID)
}

func TestDeleteAndDeleteExpired(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, upload("short", base, time.Minute)))
	require.NoError(t, r.Insert(ctx, upload("long", base, 24*time.Hour)))
	require.NoError(t, r.Insert(ctx, upload("gone", base, 24*time.Hour)))

	require.NoError(t, r.Delete(ctx, "gone"))
	require.NoError(t, r.Delete(ctx, "gone"))

	n, err := r.DeleteExpired(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "long", list[0].ShareID)
}
