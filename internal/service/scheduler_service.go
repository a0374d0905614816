package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"roomdesk/internal/database"
	"roomdesk/internal/domain"
	"roomdesk/internal/events"
	"roomdesk/internal/metrics"
	"roomdesk/internal/models"
	"roomdesk/internal/worker"
	"roomdesk/internal/workflow"

	"github.com/rs/zerolog"
)

// ReservationRequest carries everything needed to place a reservation.
type ReservationRequest struct {
	Actor       models.Actor
	RoomID      int64
	EventTypeID int64
	Subject     string
	Interval    models.TimeInterval
}

// SchedulerService orchestrates validation, availability, persistence and
// the approval workflow.
type SchedulerService struct {
	repo           domain.Repository
	cache          domain.CacheRepository
	eventBus       domain.EventPublisher
	auditWorker    domain.AuditWorker
	maxAdvanceDays int
	cacheTTL       time.Duration
	logger         *zerolog.Logger
}

func NewSchedulerService(
	repo domain.Repository,
	cache domain.CacheRepository,
	eventBus domain.EventPublisher,
	auditWorker domain.AuditWorker,
	maxAdvanceDays int,
	cacheTTL time.Duration,
	logger *zerolog.Logger,
) *SchedulerService {
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if cacheTTL <= 0 {
		cacheTTL = models.DefaultScheduleCacheTTL * time.Second
	}
	return &SchedulerService{
		repo:           repo,
		cache:          cache,
		eventBus:       eventBus,
		auditWorker:    auditWorker,
		maxAdvanceDays: maxAdvanceDays,
		cacheTTL:       cacheTTL,
		logger:         logger,
	}
}

// ValidateReservationDate enforces the day-granularity date policy: today is
// allowed, past days are not, and the start may not lie beyond the advance
// window.
func (s *SchedulerService) ValidateReservationDate(date time.Time) error {
	today := models.TruncateToDay(time.Now())
	day := models.TruncateToDay(date)

	if day.Before(today) {
		return fmt.Errorf("%w: date %s is in the past", ErrInvalidInput, day.Format(models.DateLayout))
	}
	if day.After(today.AddDate(0, 0, s.maxAdvanceDays)) {
		return fmt.Errorf("%w: date %s is more than %d days ahead", ErrInvalidInput, day.Format(models.DateLayout), s.maxAdvanceDays)
	}
	return nil
}

// RequestReservation validates the request and atomically claims the slot.
// The reservation starts in pending status awaiting manager review.
func (s *SchedulerService) RequestReservation(ctx context.Context, req ReservationRequest) (*models.Reservation, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}

	if err := req.Interval.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.ValidateReservationDate(req.Interval.Date); err != nil {
		return nil, err
	}

	eventType, err := s.repo.GetEventType(req.EventTypeID)
	if err != nil {
		return nil, fmt.Errorf("%w: event type %d: %v", ErrInvalidInput, req.EventTypeID, err)
	}
	if !eventType.AllowsDuration(req.Interval.Duration()) {
		return nil, fmt.Errorf("%w: duration %s not allowed for event type %q",
			ErrInvalidInput, req.Interval.Duration(), eventType.Name)
	}

	room, err := s.repo.GetRoom(req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("%w: room %d: %v", ErrInvalidInput, req.RoomID, err)
	}
	if !room.Available {
		return nil, fmt.Errorf("%w: room %q is not bookable", ErrInvalidInput, room.Name)
	}

	reservation := &models.Reservation{
		UserID:      req.Actor.ID,
		UserName:    req.Actor.Name,
		RoomID:      room.ID,
		RoomName:    room.Name,
		EventTypeID: eventType.ID,
		Subject:     subject,
		Interval:    req.Interval,
		Status:      models.StatusPending,
	}

	if err := s.repo.CreateReservationIfAvailable(ctx, reservation); err != nil {
		if errors.Is(err, database.ErrNotAvailable) {
			metrics.IncReservationConflict()
		}
		return nil, err
	}

	metrics.IncReservationCreated()
	s.publishEvent(events.EventReservationRequested, reservation, req.Actor)
	s.enqueueAudit(ctx, worker.TaskJournalRequested, reservation, req.Actor)
	s.invalidateSchedule(ctx, reservation)

	s.logger.Info().
		Int64("reservation_id", reservation.ID).
		Int64("room_id", reservation.RoomID).
		Str("date", reservation.Interval.DateKey()).
		Str("slot", reservation.Interval.StartLabel()+"-"+reservation.Interval.EndLabel()).
		Msg("reservation requested")

	return reservation, nil
}

// Transition applies approve, reject or cancel on behalf of the actor.
// Check order: role admissibility, existence, ownership, transition table,
// compare-and-set write.
func (s *SchedulerService) Transition(ctx context.Context, id int64, action string, actor models.Actor, comment string) (*models.Reservation, error) {
	if err := workflow.RoleAdmits(action, actor.Role); err != nil {
		return nil, err
	}

	reservation, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := workflow.Authorize(action, actor, reservation); err != nil {
		return nil, err
	}

	toStatus, err := workflow.Next(reservation.Status, action)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateReservationStatus(ctx, id, reservation.Status, toStatus, actor.ID, comment); err != nil {
		return nil, err
	}
	metrics.IncTransition(action)

	updated, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		// The write succeeded; reloading is best-effort.
		s.logger.Error().Err(err).Int64("reservation_id", id).Msg("reload after transition")
		reservation.Status = toStatus
		updated = reservation
	}

	s.publishEvent(eventForAction(action), updated, actor)
	s.enqueueAudit(ctx, taskForAction(action), updated, actor)
	s.invalidateSchedule(ctx, updated)

	s.logger.Info().
		Int64("reservation_id", id).
		Str("action", action).
		Str("status", updated.Status).
		Int64("actor_id", actor.ID).
		Msg("reservation transition")

	return updated, nil
}

// IsAvailable reports whether the slot is free of active reservations.
// Storage errors surface as errors, never as a false "available".
func (s *SchedulerService) IsAvailable(ctx context.Context, roomID int64, interval models.TimeInterval) (bool, error) {
	if err := interval.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := s.repo.GetRoom(roomID); err != nil {
		return false, fmt.Errorf("%w: room %d: %v", ErrInvalidInput, roomID, err)
	}
	return s.repo.CheckAvailability(ctx, roomID, interval)
}

// ListByUser returns the caller's reservations, newest first.
func (s *SchedulerService) ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListPending returns reservations awaiting review in request order.
func (s *SchedulerService) ListPending(ctx context.Context) ([]*models.Reservation, error) {
	return s.repo.ListPending(ctx)
}

// GetReservation loads a single reservation.
func (s *SchedulerService) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// GetRoomSchedule returns the active reservations of one room for one day,
// served from the cache when warm.
func (s *SchedulerService) GetRoomSchedule(ctx context.Context, roomID int64, date time.Time) ([]*models.Reservation, error) {
	if _, err := s.repo.GetRoom(roomID); err != nil {
		return nil, fmt.Errorf("%w: room %d: %v", ErrInvalidInput, roomID, err)
	}

	day := models.TruncateToDay(date)
	dateKey := day.Format(models.DateLayout)

	if s.cache != nil {
		if raw, err := s.cache.GetSchedule(ctx, roomID, dateKey); err == nil {
			var cached []*models.Reservation
			decodeErr := json.Unmarshal(raw, &cached)
			if decodeErr == nil {
				metrics.IncScheduleCache("hit")
				return cached, nil
			}
			s.logger.Warn().Err(decodeErr).Msg("decode cached schedule")
		}
		metrics.IncScheduleCache("miss")
	}

	reservations, err := s.repo.FindActiveByRoomAndDate(ctx, roomID, day)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(reservations); err == nil {
			if err := s.cache.SetSchedule(ctx, roomID, dateKey, raw, s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Msg("cache schedule")
			}
		}
	}

	return reservations, nil
}

func (s *SchedulerService) publishEvent(eventType string, r *models.Reservation, actor models.Actor) {
	if s.eventBus == nil {
		return
	}

	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		UserID:        r.UserID,
		UserName:      r.UserName,
		RoomID:        r.RoomID,
		RoomName:      r.RoomName,
		Subject:       r.Subject,
		Status:        r.Status,
		Date:          r.Interval.Date,
		StartMinute:   r.Interval.StartMinute,
		EndMinute:     r.Interval.EndMinute,
		Comment:       r.ManagerComment,
		ActorID:       actor.ID,
		ActorName:     actor.Name,
		ActorRole:     actor.Role,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *SchedulerService) enqueueAudit(ctx context.Context, taskType string, r *models.Reservation, actor models.Actor) {
	if s.auditWorker == nil {
		return
	}
	if err := s.auditWorker.EnqueueTask(ctx, taskType, r, actor); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Str("task", taskType).Msg("audit enqueue error")
	}
}

func (s *SchedulerService) invalidateSchedule(ctx context.Context, r *models.Reservation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSchedule(ctx, r.RoomID, r.Interval.DateKey()); err != nil {
		s.logger.Warn().Err(err).Int64("room_id", r.RoomID).Msg("invalidate schedule cache")
	}
}

func eventForAction(action string) string {
	switch action {
	case models.ActionApprove:
		return events.EventReservationApproved
	case models.ActionReject:
		return events.EventReservationRejected
	default:
		return events.EventReservationCancelled
	}
}

func taskForAction(action string) string {
	switch action {
	case models.ActionApprove:
		return worker.TaskJournalApproved
	case models.ActionReject:
		return worker.TaskJournalRejected
	default:
		return worker.TaskJournalCancelled
	}
}
