package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDatabase_FileIsReusable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	repos, err := InitDatabase(ctx, path)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repos.Uploads.Insert(ctx, &models.Upload{
		ShareID:     "AAAAAAAAAAAAAAAAAAAAAA",
		URL:         "https://haven.example/s/AAAAAAAAAAAAAAAAAAAAAA",
		DeleteToken: "dt",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}))
	require.NoError(t, repos.Close())

	// Reopening runs the migrations again without touching existing rows.
	repos, err = InitDatabase(ctx, path)
	require.NoError(t, err)
	defer repos.Close()

	got, err := repos.Uploads.Get(ctx, "AAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, "dt", got.DeleteToken)
}

func TestInitDatabase_Memory(t *testing.T) {
	repos, err := InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	defer repos.Close()

	list, err := repos.Uploads.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
