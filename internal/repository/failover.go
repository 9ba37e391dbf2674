package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hittracker/internal/domain"
	"hittracker/internal/models"
)

// FailoverProgressRepository writes to primary until it fails, then serves
// from fallback and tries primary again after recoverAfter.
type FailoverProgressRepository struct {
	primary      domain.ProgressRepository
	fallback     domain.ProgressRepository
	logger       *zerolog.Logger
	isDown       atomic.Bool
	mu           sync.Mutex
	lastCheck    time.Time
	recoverAfter time.Duration
}

func NewFailoverProgressRepository(primary, fallback domain.ProgressRepository, logger *zerolog.Logger) *FailoverProgressRepository {
	return &FailoverProgressRepository{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
	}
}

func (r *FailoverProgressRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary progress repository failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the primary should be tried now.
func (r *FailoverProgressRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > r.recoverAfter {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverProgressRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary progress repository recovered")
	}
}

func (r *FailoverProgressRepository) GetProgress(ctx context.Context) (*models.SyncProgress, error) {
	if r.usePrimary() {
		p, err := r.primary.GetProgress(ctx)
		if err == nil {
			r.recovered()
			return p, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetProgress(ctx)
}

func (r *FailoverProgressRepository) SaveProgress(ctx context.Context, p *models.SyncProgress) error {
	// Резервная копия всегда актуальна
	_ = r.fallback.SaveProgress(ctx, p)

	if r.usePrimary() {
		err := r.primary.SaveProgress(ctx, p)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverProgressRepository) ClearProgress(ctx context.Context) error {
	_ = r.fallback.ClearProgress(ctx)

	if r.usePrimary() {
		err := r.primary.ClearProgress(ctx)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverProgressRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
