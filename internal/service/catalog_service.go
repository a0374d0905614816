package service

import (
	"context"
	"time"

	"roomdesk/internal/database"
	"roomdesk/internal/domain"
	"roomdesk/internal/models"
)

// StatsSource produces dashboard aggregates.
type StatsSource interface {
	GetDashboardStats(ctx context.Context, now time.Time) (*database.DashboardStats, error)
}

// CatalogService serves the room and event-type reference data plus the
// dashboard numbers.
type CatalogService struct {
	repo  domain.Repository
	stats StatsSource
}

func NewCatalogService(repo domain.Repository, stats StatsSource) *CatalogService {
	return &CatalogService{repo: repo, stats: stats}
}

// ListRooms returns bookable rooms in catalog order.
func (s *CatalogService) ListRooms() []models.Room {
	return s.repo.ListAvailableRooms()
}

// ListEventTypes returns all event types in catalog order.
func (s *CatalogService) ListEventTypes() []models.EventType {
	return s.repo.ListEventTypes()
}

// GetRoom looks up one room.
func (s *CatalogService) GetRoom(id int64) (models.Room, error) {
	return s.repo.GetRoom(id)
}

// DashboardStats returns the aggregates behind the stats endpoint.
func (s *CatalogService) DashboardStats(ctx context.Context) (*database.DashboardStats, error) {
	return s.stats.GetDashboardStats(ctx, time.Now())
}
