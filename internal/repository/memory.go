package repository

import (
	"context"
	"sync"
	"time"

	"hittracker/internal/models"
)

type MemoryProgressRepository struct {
	mu        sync.RWMutex
	progress  *models.SyncProgress
	expiresAt time.Time
	ttl       time.Duration

	// rlMu защищает rateLimits целиком: read-modify-write одной записи
	rlMu       sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryProgressRepository(ttl time.Duration) *MemoryProgressRepository {
	return &MemoryProgressRepository{
		ttl:        ttl,
		rateLimits: make(map[string]*rateLimitEntry),
	}
}

func (r *MemoryProgressRepository) GetProgress(ctx context.Context) (*models.SyncProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.progress == nil {
		return nil, nil
	}
	if r.ttl > 0 && time.Now().After(r.expiresAt) {
		return nil, nil
	}
	return cloneProgress(r.progress), nil
}

func (r *MemoryProgressRepository) SaveProgress(ctx context.Context, p *models.SyncProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = cloneProgress(p)
	r.expiresAt = time.Now().Add(r.ttl)
	return nil
}

func (r *MemoryProgressRepository) ClearProgress(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = nil
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryProgressRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.rlMu.Lock()
	defer r.rlMu.Unlock()

	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}

func cloneProgress(p *models.SyncProgress) *models.SyncProgress {
	if p == nil {
		return nil
	}
	out := *p
	if p.Days != nil {
		out.Days = make(map[string]string, len(p.Days))
		for k, v := range p.Days {
			out.Days[k] = v
		}
	}
	if p.FinishedAt != nil {
		at := *p.FinishedAt
		out.FinishedAt = &at
	}
	return &out
}
