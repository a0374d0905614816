package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"roomdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReservation(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	db.SetRooms([]models.Room{{ID: 1, Name: "R101", Available: true}})
	db.SetEventTypes([]models.EventType{{ID: 1, Name: "Meeting", MinMinutes: 15, MaxMinutes: 240}})

	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			r := &models.Reservation{
				UserID:      int64(id + 1),
				UserName:    "User",
				RoomID:      1,
				RoomName:    "R101",
				EventTypeID: 1,
				Subject:     "Race",
				Interval:    models.NewTimeInterval(date, 9*60, 10*60),
				Status:      models.StatusPending,
			}
			results <- db.CreateReservationIfAvailable(ctx, r)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ErrNotAvailable):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// The per-slot lock plus the in-transaction probe admit exactly one winner
	assert.Equal(t, 1, successCount, "only one reservation should claim the slot")
	assert.Equal(t, numGoroutines-1, conflictCount, "all other attempts should see a conflict")

	active, err := db.FindActiveByRoomAndDate(ctx, 1, date)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConcurrentDistinctSlots(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "slots.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	db.SetRooms([]models.Room{{ID: 1, Name: "R101", Available: true}})
	db.SetEventTypes([]models.EventType{{ID: 1, Name: "Meeting", MinMinutes: 15, MaxMinutes: 240}})

	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 1)

	const numGoroutines = 8
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			start := (9 + id) * 60
			r := &models.Reservation{
				UserID:      int64(id + 1),
				UserName:    "User",
				RoomID:      1,
				RoomName:    "R101",
				EventTypeID: 1,
				Subject:     "Hourly",
				Interval:    models.NewTimeInterval(date, start, start+60),
				Status:      models.StatusPending,
			}
			results <- db.CreateReservationIfAvailable(ctx, r)
		}(i)
	}

	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}

	active, err := db.FindActiveByRoomAndDate(ctx, 1, date)
	require.NoError(t, err)
	assert.Len(t, active, numGoroutines)
}
