package domain

import (
	"context"
	"time"

	"roomdesk/internal/models"
)

type Repository interface {
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	CreateReservationIfAvailable(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, id int64, fromStatus, toStatus string, actorID int64, comment string) error
	CheckAvailability(ctx context.Context, roomID int64, interval models.TimeInterval) (bool, error)
	FindActiveByRoomAndDate(ctx context.Context, roomID int64, date time.Time) ([]*models.Reservation, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error)
	ListPending(ctx context.Context) ([]*models.Reservation, error)
	ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)
	GetRoom(id int64) (models.Room, error)
	ListAvailableRooms() []models.Room
	GetEventType(id int64) (models.EventType, error)
	ListEventTypes() []models.EventType
}

// CacheRepository holds the day-schedule cache and per-user rate limits.
// Implementations may degrade to in-memory storage when Redis is down.
type CacheRepository interface {
	GetSchedule(ctx context.Context, roomID int64, dateKey string) ([]byte, error)
	SetSchedule(ctx context.Context, roomID int64, dateKey string, payload []byte, ttl time.Duration) error
	InvalidateSchedule(ctx context.Context, roomID int64, dateKey string) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Journal is the durable export sink for reservation history.
type Journal interface {
	AppendReservation(ctx context.Context, r *models.Reservation, action string, actor models.Actor) error
}

type AuditWorker interface {
	EnqueueTask(ctx context.Context, taskType string, r *models.Reservation, actor models.Actor) error
}
