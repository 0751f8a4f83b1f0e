package sharedfiles

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
)

// MemoryRepository keeps shares in process memory. A single mutex makes
// IncrementDownloadCount atomic in the same way the SQL statement is.
type MemoryRepository struct {
	mu    sync.Mutex
	files map[string]*models.SharedFile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{files: make(map[string]*models.SharedFile)}
}

func clone(f *models.SharedFile) *models.SharedFile {
	c := *f
	c.IV = append([]byte(nil), f.IV...)
	if f.Salt != nil {
		c.Salt = append([]byte(nil), f.Salt...)
	}
	if f.PasswordHash != nil {
		c.PasswordHash = append([]byte(nil), f.PasswordHash...)
	}
	if f.MaxDownloads != nil {
		v := *f.MaxDownloads
		c.MaxDownloads = &v
	}
	if f.LastDownloadAt != nil {
		v := *f.LastDownloadAt
		c.LastDownloadAt = &v
	}
	if f.DeletedAt != nil {
		v := *f.DeletedAt
		c.DeletedAt = &v
	}
	if f.PurgedAt != nil {
		v := *f.PurgedAt
		c.PurgedAt = &v
	}
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, f *models.SharedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[f.ID]; ok {
		return fmt.Errorf("share %s already exists", f.ID)
	}
	c := clone(f)
	c.DownloadCount = 0
	r.files[f.ID] = c
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.SharedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(f), nil
}

func (r *MemoryRepository) IncrementDownloadCount(_ context.Context, id string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok || f.State(now) != models.StateActive {
		return 0, ErrNotEligible
	}
	f.DownloadCount++
	t := now
	f.LastDownloadAt = &t
	return f.DownloadCount, nil
}

func (r *MemoryRepository) MarkDeleted(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	if !f.IsDeleted {
		f.IsDeleted = true
		t := now
		f.DeletedAt = &t
	}
	return nil
}

func (r *MemoryRepository) MarkPurged(_ context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return false, common.ErrorNotFound
	}
	if f.PurgedAt != nil {
		return false, nil
	}
	t := now
	f.PurgedAt = &t
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.files, id)
	return nil
}

func (r *MemoryRepository) ListPurgeable(_ context.Context, q PurgeQuery) ([]*models.SharedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.SharedFile
	for _, f := range r.files {
		switch f.State(q.Now) {
		case models.StateDeleted, models.StateExpired:
			result = append(result, clone(f))
		case models.StateExhausted:
			last := f.CreatedAt
			if f.LastDownloadAt != nil {
				last = *f.LastDownloadAt
			}
			if last.Before(q.ExhaustedBefore) {
				result = append(result, clone(f))
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(result[j].ExpiresAt) })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}
