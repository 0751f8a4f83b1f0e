package auditlogs

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
)

// MemoryRepository is an in-process audit store for single-instance setups
// and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*models.AuditLogEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*models.AuditLogEntry)}
}

func clone(e *models.AuditLogEntry) *models.AuditLogEntry {
	c := *e
	c.Details = maps.Clone(e.Details)
	c.EncryptedFields = maps.Clone(e.EncryptedFields)
	return &c
}

func (r *MemoryRepository) Insert(_ context.Context, e *models.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[e.ID]; ok {
		return fmt.Errorf("audit entry %s already exists", e.ID)
	}
	r.entries[e.ID] = clone(e)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string, now time.Time) (*models.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || !now.Before(e.ExpiresAt) {
		return nil, common.ErrorNotFound
	}
	return clone(e), nil
}

func (r *MemoryRepository) Query(_ context.Context, f models.AuditFilter, now time.Time) ([]*models.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.AuditLogEntry
	for _, e := range r.entries {
		switch {
		case !now.Before(e.ExpiresAt):
		case f.Category != "" && e.Category != f.Category:
		case f.Action != "" && e.Action != f.Action:
		case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		default:
			result = append(result, clone(e))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	if limit := clampLimit(f.Limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.entries {
		if !now.Before(e.ExpiresAt) {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

// Len counts stored rows, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
