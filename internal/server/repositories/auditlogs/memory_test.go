package auditlogs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_QueryHidesExpired(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, ttl := range []time.Duration{time.Hour, 48 * time.Hour} {
		require.NoError(t, repo.Insert(ctx, &models.AuditLogEntry{
			ID:        fmt.Sprintf("e%d", i),
			Category:  models.CategorySystemEvent,
			Action:    "startup",
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			ExpiresAt: t0.Add(ttl),
		}))
	}

	got, err := repo.Query(ctx, models.AuditFilter{}, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)

	_, err = repo.Get(ctx, "e0", t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.Equal(t, 2, repo.Len())
	n, err := repo.PurgeExpired(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, repo.Len())
}

func TestMemoryRepository_QueryFiltersAndOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	add := func(id string, cat models.AuditCategory, action string, at time.Duration) {
		require.NoError(t, repo.Insert(ctx, &models.AuditLogEntry{
			ID: id, Category: cat, Action: action, ResourceID: "r-" + id,
			Timestamp: t0.Add(at), ExpiresAt: t0.Add(24 * time.Hour),
		}))
	}
	add("a", models.CategoryFileOperation, "file_upload", 1*time.Minute)
	add("b", models.CategoryFileOperation, "file_download", 2*time.Minute)
	add("c", models.CategorySecurityEvent, "password_failed", 3*time.Minute)

	got, err := repo.Query(ctx, models.AuditFilter{Category: models.CategoryFileOperation}, t0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	got, err = repo.Query(ctx, models.AuditFilter{Limit: 1}, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got, err = repo.Query(ctx, models.AuditFilter{ResourceID: "r-a"}, t0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.Query(ctx, models.AuditFilter{Since: t0.Add(2 * time.Minute)}, t0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.Error(t, repo.Insert(ctx, &models.AuditLogEntry{ID: "a"}))
}
