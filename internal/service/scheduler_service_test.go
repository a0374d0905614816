package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"roomdesk/internal/database"
	"roomdesk/internal/models"
	"roomdesk/internal/repository"
	"roomdesk/internal/workflow"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockRepo) CreateReservationIfAvailable(ctx context.Context, r *models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) UpdateReservationStatus(ctx context.Context, id int64, from, to string, actorID int64, comment string) error {
	return m.Called(ctx, id, from, to, actorID, comment).Error(0)
}
func (m *mockRepo) CheckAvailability(ctx context.Context, roomID int64, interval models.TimeInterval) (bool, error) {
	args := m.Called(ctx, roomID, interval)
	return args.Bool(0), args.Error(1)
}
func (m *mockRepo) FindActiveByRoomAndDate(ctx context.Context, roomID int64, date time.Time) ([]*models.Reservation, error) {
	args := m.Called(ctx, roomID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) ListPending(ctx context.Context) ([]*models.Reservation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetRoom(id int64) (models.Room, error) {
	args := m.Called(id)
	return args.Get(0).(models.Room), args.Error(1)
}
func (m *mockRepo) ListAvailableRooms() []models.Room {
	return m.Called().Get(0).([]models.Room)
}
func (m *mockRepo) GetEventType(id int64) (models.EventType, error) {
	args := m.Called(id)
	return args.Get(0).(models.EventType), args.Error(1)
}
func (m *mockRepo) ListEventTypes() []models.EventType {
	return m.Called().Get(0).([]models.EventType)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockAuditWorker struct {
	mock.Mock
}

func (m *mockAuditWorker) EnqueueTask(ctx context.Context, taskType string, r *models.Reservation, actor models.Actor) error {
	return m.Called(ctx, taskType, r, actor).Error(0)
}

func newTestService(t *testing.T) (*SchedulerService, *mockRepo, *mockEventBus, *mockAuditWorker) {
	t.Helper()
	repo := new(mockRepo)
	bus := new(mockEventBus)
	auditor := new(mockAuditWorker)
	logger := zerolog.New(io.Discard)
	svc := NewSchedulerService(repo, repository.NewMemoryCacheRepository(), bus, auditor, 30, time.Minute, &logger)
	return svc, repo, bus, auditor
}

func futureInterval(days, startMinute, endMinute int) models.TimeInterval {
	return models.NewTimeInterval(time.Now().AddDate(0, 0, days), startMinute, endMinute)
}

func TestValidateReservationDate(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	assert.Error(t, svc.ValidateReservationDate(time.Now().AddDate(0, 0, -1)))
	assert.Error(t, svc.ValidateReservationDate(time.Now().AddDate(0, 0, 31)))
	assert.NoError(t, svc.ValidateReservationDate(time.Now()))
	assert.NoError(t, svc.ValidateReservationDate(time.Now().AddDate(0, 0, 5)))
}

func TestRequestReservation(t *testing.T) {
	ctx := context.Background()
	meeting := models.EventType{ID: 1, Name: "Meeting", MinMinutes: 15, MaxMinutes: 240}
	room := models.Room{ID: 2, Name: "R101", Available: true}

	t.Run("Success", func(t *testing.T) {
		svc, repo, bus, auditor := newTestService(t)
		repo.On("GetEventType", int64(1)).Return(meeting, nil).Once()
		repo.On("GetRoom", int64(2)).Return(room, nil).Once()
		repo.On("CreateReservationIfAvailable", ctx, mock.AnythingOfType("*models.Reservation")).Return(nil).Once()
		bus.On("PublishJSON", "reservation_requested", mock.Anything).Return(nil).Once()
		auditor.On("EnqueueTask", ctx, "journal_requested", mock.Anything, mock.Anything).Return(nil).Once()

		got, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:       models.Actor{ID: 7, Name: "Alice", Role: models.RoleEmployee},
			RoomID:      2,
			EventTypeID: 1,
			Subject:     "  Planning  ",
			Interval:    futureInterval(3, 540, 600),
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, "Planning", got.Subject)
		assert.Equal(t, "R101", got.RoomName)
		repo.AssertExpectations(t)
		bus.AssertExpectations(t)
		auditor.AssertExpectations(t)
	})

	t.Run("EmptySubject", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:    models.Actor{ID: 7},
			Subject:  "   ",
			Interval: futureInterval(3, 540, 600),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("InvertedInterval", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:    models.Actor{ID: 7},
			Subject:  "Planning",
			Interval: futureInterval(3, 600, 540),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("PastDate", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:    models.Actor{ID: 7},
			Subject:  "Planning",
			Interval: futureInterval(-2, 540, 600),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("UnknownEventType", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetEventType", int64(99)).Return(models.EventType{}, database.ErrNotFound).Once()

		_, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:       models.Actor{ID: 7},
			RoomID:      2,
			EventTypeID: 99,
			Subject:     "Planning",
			Interval:    futureInterval(3, 540, 600),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("DurationOutOfBounds", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetEventType", int64(1)).Return(meeting, nil).Once()

		_, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:       models.Actor{ID: 7},
			RoomID:      2,
			EventTypeID: 1,
			Subject:     "Planning",
			Interval:    futureInterval(3, 540, 545), // 5 min < MinMinutes
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RoomNotBookable", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetEventType", int64(1)).Return(meeting, nil).Once()
		repo.On("GetRoom", int64(5)).Return(models.Room{ID: 5, Name: "Closed", Available: false}, nil).Once()

		_, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:       models.Actor{ID: 7},
			RoomID:      5,
			EventTypeID: 1,
			Subject:     "Planning",
			Interval:    futureInterval(3, 540, 600),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("SlotConflict", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetEventType", int64(1)).Return(meeting, nil).Once()
		repo.On("GetRoom", int64(2)).Return(room, nil).Once()
		repo.On("CreateReservationIfAvailable", ctx, mock.Anything).Return(database.ErrNotAvailable).Once()

		_, err := svc.RequestReservation(ctx, ReservationRequest{
			Actor:       models.Actor{ID: 7},
			RoomID:      2,
			EventTypeID: 1,
			Subject:     "Planning",
			Interval:    futureInterval(3, 540, 600),
		})
		assert.ErrorIs(t, err, database.ErrNotAvailable)
	})
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	manager := models.Actor{ID: 100, Name: "Boss", Role: models.RoleManager}
	employee := models.Actor{ID: 7, Name: "Alice", Role: models.RoleEmployee}

	pending := func(owner int64) *models.Reservation {
		return &models.Reservation{
			ID:       10,
			UserID:   owner,
			RoomID:   2,
			Status:   models.StatusPending,
			Interval: futureInterval(3, 540, 600),
		}
	}

	t.Run("ManagerApproves", func(t *testing.T) {
		svc, repo, bus, auditor := newTestService(t)
		approved := pending(7)
		approved.Status = models.StatusApproved

		repo.On("GetReservation", ctx, int64(10)).Return(pending(7), nil).Once()
		repo.On("UpdateReservationStatus", ctx, int64(10), models.StatusPending, models.StatusApproved, int64(100), "ok").Return(nil).Once()
		repo.On("GetReservation", ctx, int64(10)).Return(approved, nil).Once()
		bus.On("PublishJSON", "reservation_approved", mock.Anything).Return(nil).Once()
		auditor.On("EnqueueTask", ctx, "journal_approved", mock.Anything, mock.Anything).Return(nil).Once()

		got, err := svc.Transition(ctx, 10, models.ActionApprove, manager, "ok")
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, got.Status)
		repo.AssertExpectations(t)
	})

	t.Run("EmployeeCannotApprove", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)

		_, err := svc.Transition(ctx, 10, models.ActionApprove, employee, "")
		assert.ErrorIs(t, err, workflow.ErrForbidden)
		// Role gate fires before the reservation is even loaded.
		repo.AssertNotCalled(t, "GetReservation", mock.Anything, mock.Anything)
	})

	t.Run("OwnerCancels", func(t *testing.T) {
		svc, repo, bus, auditor := newTestService(t)
		cancelled := pending(7)
		cancelled.Status = models.StatusCancelled

		repo.On("GetReservation", ctx, int64(10)).Return(pending(7), nil).Once()
		repo.On("UpdateReservationStatus", ctx, int64(10), models.StatusPending, models.StatusCancelled, int64(7), "").Return(nil).Once()
		repo.On("GetReservation", ctx, int64(10)).Return(cancelled, nil).Once()
		bus.On("PublishJSON", "reservation_cancelled", mock.Anything).Return(nil).Once()
		auditor.On("EnqueueTask", ctx, "journal_cancelled", mock.Anything, mock.Anything).Return(nil).Once()

		got, err := svc.Transition(ctx, 10, models.ActionCancel, employee, "")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
	})

	t.Run("StrangerCannotCancel", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetReservation", ctx, int64(10)).Return(pending(999), nil).Once()

		_, err := svc.Transition(ctx, 10, models.ActionCancel, employee, "")
		assert.ErrorIs(t, err, workflow.ErrForbidden)
		repo.AssertNotCalled(t, "UpdateReservationStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ApproveTwiceIsIllegal", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		approved := pending(7)
		approved.Status = models.StatusApproved
		repo.On("GetReservation", ctx, int64(10)).Return(approved, nil).Once()

		_, err := svc.Transition(ctx, 10, models.ActionApprove, manager, "")
		assert.ErrorIs(t, err, workflow.ErrIllegalTransition)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetReservation", ctx, int64(404)).Return(nil, database.ErrNotFound).Once()

		_, err := svc.Transition(ctx, 404, models.ActionCancel, employee, "")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("LostRace", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetReservation", ctx, int64(10)).Return(pending(7), nil).Once()
		repo.On("UpdateReservationStatus", ctx, int64(10), models.StatusPending, models.StatusApproved, int64(100), "").
			Return(database.ErrConcurrentModification).Once()

		_, err := svc.Transition(ctx, 10, models.ActionApprove, manager, "")
		assert.ErrorIs(t, err, database.ErrConcurrentModification)
	})
}

func TestIsAvailable(t *testing.T) {
	ctx := context.Background()
	room := models.Room{ID: 2, Name: "R101", Available: true}

	t.Run("PropagatesStorageError", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetRoom", int64(2)).Return(room, nil).Once()
		repo.On("CheckAvailability", ctx, int64(2), mock.Anything).Return(false, errors.New("disk gone")).Once()

		_, err := svc.IsAvailable(ctx, 2, futureInterval(1, 540, 600))
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("InvalidInterval", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.IsAvailable(ctx, 2, futureInterval(1, 600, 540))
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Free", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("GetRoom", int64(2)).Return(room, nil).Once()
		repo.On("CheckAvailability", ctx, int64(2), mock.Anything).Return(true, nil).Once()

		ok, err := svc.IsAvailable(ctx, 2, futureInterval(1, 540, 600))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestGetRoomSchedule(t *testing.T) {
	ctx := context.Background()
	room := models.Room{ID: 2, Name: "R101", Available: true}
	day := models.TruncateToDay(time.Now().AddDate(0, 0, 1))
	stored := []*models.Reservation{{ID: 1, RoomID: 2, Status: models.StatusApproved, Interval: models.NewTimeInterval(day, 540, 600)}}

	svc, repo, _, _ := newTestService(t)
	repo.On("GetRoom", int64(2)).Return(room, nil)
	repo.On("FindActiveByRoomAndDate", ctx, int64(2), day).Return(stored, nil).Once()

	// First call hits the store and warms the cache.
	got, err := svc.GetRoomSchedule(ctx, 2, day)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Second call is served from the cache: FindActiveByRoomAndDate is Once().
	got, err = svc.GetRoomSchedule(ctx, 2, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	repo.AssertExpectations(t)
}

func TestCatalogService(t *testing.T) {
	repo := new(mockRepo)
	rooms := []models.Room{{ID: 1, Name: "R101", Available: true}}
	types := []models.EventType{{ID: 1, Name: "Meeting"}}
	repo.On("ListAvailableRooms").Return(rooms).Once()
	repo.On("ListEventTypes").Return(types).Once()

	svc := NewCatalogService(repo, nil)
	assert.Equal(t, rooms, svc.ListRooms())
	assert.Equal(t, types, svc.ListEventTypes())
	repo.AssertExpectations(t)
}
