package repository

import (
	"context"
	"fmt"
	"time"

	"roomdesk/internal/config"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no schedule is cached for the key.
var ErrCacheMiss = fmt.Errorf("cache miss")

type RedisCacheRepository struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisCacheRepository(client *redis.Client) *RedisCacheRepository {
	return &RedisCacheRepository{client: client}
}

func scheduleKey(roomID int64, dateKey string) string {
	return fmt.Sprintf("schedule:%d:%s", roomID, dateKey)
}

func (r *RedisCacheRepository) GetSchedule(ctx context.Context, roomID int64, dateKey string) ([]byte, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, scheduleKey(roomID, dateKey)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule from redis: %w", err)
	}
	return val, nil
}

func (r *RedisCacheRepository) SetSchedule(ctx context.Context, roomID int64, dateKey string, payload []byte, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, scheduleKey(roomID, dateKey), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set schedule in redis: %w", err)
	}
	return nil
}

func (r *RedisCacheRepository) InvalidateSchedule(ctx context.Context, roomID int64, dateKey string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, scheduleKey(roomID, dateKey)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate schedule in redis: %w", err)
	}
	return nil
}

func (r *RedisCacheRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("rate_limit:%d", userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// PushDeadLetter appends a failed audit payload to the dead-letter list.
func (r *RedisCacheRepository) PushDeadLetter(ctx context.Context, payload []byte) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.RPush(ctx, "audit:dead_letter", payload).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
