package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"roomdesk/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverCacheRepository degrades to the in-memory cache when the primary
// (Redis) fails, and probes for recovery once a minute.
type FailoverCacheRepository struct {
	primary   domain.CacheRepository
	fallback  domain.CacheRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverCacheRepository(primary, fallback domain.CacheRepository, logger *zerolog.Logger) *FailoverCacheRepository {
	return &FailoverCacheRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverCacheRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary cache repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverCacheRepository) GetSchedule(ctx context.Context, roomID int64, dateKey string) ([]byte, error) {
	if !r.isDown.Load() {
		payload, err := r.primary.GetSchedule(ctx, roomID, dateKey)
		if err == nil || errors.Is(err, ErrCacheMiss) {
			return payload, err
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		payload, err := r.primary.GetSchedule(ctx, roomID, dateKey)
		if err == nil || errors.Is(err, ErrCacheMiss) {
			r.isDown.Store(false)
			return payload, err
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetSchedule(ctx, roomID, dateKey)
}

func (r *FailoverCacheRepository) SetSchedule(ctx context.Context, roomID int64, dateKey string, payload []byte, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.SetSchedule(ctx, roomID, dateKey, payload, ttl)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetSchedule(ctx, roomID, dateKey, payload, ttl)
}

func (r *FailoverCacheRepository) InvalidateSchedule(ctx context.Context, roomID int64, dateKey string) error {
	if !r.isDown.Load() {
		err := r.primary.InvalidateSchedule(ctx, roomID, dateKey)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.InvalidateSchedule(ctx, roomID, dateKey)
}

func (r *FailoverCacheRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
