package repository

import (
	"context"
	"sync"
	"time"
)

type MemoryCacheRepository struct {
	schedules  sync.Map
	rateLimits sync.Map
}

func NewMemoryCacheRepository() *MemoryCacheRepository {
	return &MemoryCacheRepository{}
}

type scheduleEntry struct {
	payload   []byte
	expiresAt time.Time
}

func (r *MemoryCacheRepository) GetSchedule(ctx context.Context, roomID int64, dateKey string) ([]byte, error) {
	key := scheduleKey(roomID, dateKey)
	val, ok := r.schedules.Load(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	entry := val.(*scheduleEntry)
	if time.Now().After(entry.expiresAt) {
		r.schedules.Delete(key)
		return nil, ErrCacheMiss
	}
	return entry.payload, nil
}

func (r *MemoryCacheRepository) SetSchedule(ctx context.Context, roomID int64, dateKey string, payload []byte, ttl time.Duration) error {
	r.schedules.Store(scheduleKey(roomID, dateKey), &scheduleEntry{
		payload:   payload,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (r *MemoryCacheRepository) InvalidateSchedule(ctx context.Context, roomID int64, dateKey string) error {
	r.schedules.Delete(scheduleKey(roomID, dateKey))
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryCacheRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(userID)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(userID, entry)
	return entry.count <= limit, nil
}
