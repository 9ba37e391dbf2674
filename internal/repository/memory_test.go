package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hittracker/internal/models"
)

func TestMemoryProgressRepository(t *testing.T) {
	repo := NewMemoryProgressRepository(time.Hour)
	ctx := context.Background()

	got, err := repo.GetProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	p := &models.SyncProgress{RunID: "run", Running: true, Days: map[string]string{"20240115": "preparing sync"}}
	require.NoError(t, repo.SaveProgress(ctx, p))

	p.Days["20240115"] = "mutated"

	got, err = repo.GetProgress(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run", got.RunID)
	assert.Equal(t, "preparing sync", got.Days["20240115"], "stored copy is isolated")

	require.NoError(t, repo.ClearProgress(ctx))
	got, err = repo.GetProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryProgressRepository_Expiry(t *testing.T) {
	repo := NewMemoryProgressRepository(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, repo.SaveProgress(ctx, &models.SyncProgress{RunID: "run"}))
	time.Sleep(5 * time.Millisecond)

	got, err := repo.GetProgress(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRateLimit(t *testing.T) {
	repo := NewMemoryProgressRepository(time.Hour)
	ctx := context.Background()

	allowed, _ := repo.CheckRateLimit(ctx, "k", 2, time.Minute)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
	assert.False(t, allowed)

	allowed, _ = repo.CheckRateLimit(ctx, "other", 2, time.Minute)
	assert.True(t, allowed)

	allowed, _ = repo.CheckRateLimit(ctx, "short", 1, time.Millisecond)
	assert.True(t, allowed)
	time.Sleep(5 * time.Millisecond)
	allowed, _ = repo.CheckRateLimit(ctx, "short", 1, time.Millisecond)
	assert.True(t, allowed)
}

func TestMemoryRateLimit_Concurrent(t *testing.T) {
	repo := NewMemoryProgressRepository(time.Hour)
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CheckRateLimit(ctx, "sync:k", 5, time.Minute)
			assert.NoError(t, err)
			if ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed.Load())
}
