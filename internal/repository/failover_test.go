package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetSchedule(ctx context.Context, roomID int64, dateKey string) ([]byte, error) {
	args := m.Called(ctx, roomID, dateKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockCache) SetSchedule(ctx context.Context, roomID int64, dateKey string, payload []byte, ttl time.Duration) error {
	args := m.Called(ctx, roomID, dateKey, payload, ttl)
	return args.Error(0)
}

func (m *mockCache) InvalidateSchedule(ctx context.Context, roomID int64, dateKey string) error {
	args := m.Called(ctx, roomID, dateKey)
	return args.Error(0)
}

func (m *mockCache) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverCacheRepository(t *testing.T) {
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverCacheRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		payload := []byte("day")
		primary.On("GetSchedule", ctx, int64(1), "2026-09-10").Return(payload, nil).Once()

		got, err := repo.GetSchedule(ctx, 1, "2026-09-10")
		assert.NoError(t, err)
		assert.Equal(t, payload, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryMissStaysPrimary", func(t *testing.T) {
		primary.On("GetSchedule", ctx, int64(2), "2026-09-10").Return(nil, ErrCacheMiss).Once()

		_, err := repo.GetSchedule(ctx, 2, "2026-09-10")
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		payload := []byte("fallback-day")
		primary.On("GetSchedule", ctx, int64(3), "2026-09-10").Return(nil, errors.New("fail")).Once()
		fallback.On("GetSchedule", ctx, int64(3), "2026-09-10").Return(payload, nil).Once()

		got, err := repo.GetSchedule(ctx, 3, "2026-09-10")
		assert.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		payload := []byte("recovered")
		primary.On("GetSchedule", ctx, int64(4), "2026-09-11").Return(payload, nil).Once()

		got, err := repo.GetSchedule(ctx, 4, "2026-09-11")
		assert.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("GetSchedule", ctx, int64(5), "2026-09-11").Return(nil, errors.New("still fail")).Once()
		fallback.On("GetSchedule", ctx, int64(5), "2026-09-11").Return(nil, ErrCacheMiss).Once()

		_, err := repo.GetSchedule(ctx, 5, "2026-09-11")
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetScheduleFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		payload := []byte("x")
		primary.On("SetSchedule", ctx, int64(6), "2026-09-12", payload, time.Minute).Return(errors.New("fail")).Once()
		fallback.On("SetSchedule", ctx, int64(6), "2026-09-12", payload, time.Minute).Return(nil).Once()

		err := repo.SetSchedule(ctx, 6, "2026-09-12", payload, time.Minute)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidateAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		fallback.On("InvalidateSchedule", ctx, int64(7), "2026-09-13").Return(nil).Once()

		err := repo.InvalidateSchedule(ctx, 7, "2026-09-13")
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, int64(8), 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, int64(8), 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, 8, 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
