package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"hittracker/internal/config"
	"hittracker/internal/models"
)

const progressKey = "hittracker:sync_progress"

type RedisProgressRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisProgressRepository(client *redis.Client, ttl time.Duration) *RedisProgressRepository {
	return &RedisProgressRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisProgressRepository) GetProgress(ctx context.Context) (*models.SyncProgress, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, progressKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress from redis: %w", err)
	}

	var progress models.SyncProgress
	if err := msgpack.Unmarshal(val, &progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}

	return &progress, nil
}

func (r *RedisProgressRepository) SaveProgress(ctx context.Context, p *models.SyncProgress) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	if err := r.client.Set(ctx, progressKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set progress in redis: %w", err)
	}

	return nil
}

func (r *RedisProgressRepository) ClearProgress(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, progressKey).Err(); err != nil {
		return fmt.Errorf("failed to delete progress from redis: %w", err)
	}
	return nil
}

func (r *RedisProgressRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := "hittracker:rate_limit:" + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
