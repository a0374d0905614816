package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"roomdesk/internal/models"
)

const reservationColumns = `id, user_id, user_name, room_id, room_name, event_type_id,
                 subject, date, start_minute, end_minute, status,
                 manager_comment, approved_by, created_at, updated_at`

// FindActiveByRoomAndDate returns pending and approved reservations for one
// room-day. Order is irrelevant to callers.
func (db *DB) FindActiveByRoomAndDate(ctx context.Context, roomID int64, date time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE room_id = ? AND date = ? AND status IN (?, ?)`
	rows, err := db.QueryContext(ctx, query, roomID, date.Format(models.DateLayout),
		models.StatusPending, models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to find active reservations: %w", err)
	}
	defer rows.Close()

	return scanReservations(rows)
}

// CheckAvailability reports whether the interval is free of active
// reservations for the room. A lookup failure is returned as an error, never
// as "available".
func (db *DB) CheckAvailability(ctx context.Context, roomID int64, interval models.TimeInterval) (bool, error) {
	active, err := db.FindActiveByRoomAndDate(ctx, roomID, interval.Date)
	if err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}
	for _, r := range active {
		if interval.Overlaps(r.Interval) {
			return false, nil
		}
	}
	return true, nil
}

// CreateReservationIfAvailable re-checks the slot and inserts as one atomic
// unit: the check and the write run inside a transaction serialized per
// (room, date), so competing calls can never both observe a free slot.
func (db *DB) CreateReservationIfAvailable(ctx context.Context, r *models.Reservation) error {
	if _, err := db.GetRoom(r.RoomID); err != nil {
		return err
	}
	if _, err := db.GetEventType(r.EventTypeID); err != nil {
		return err
	}

	lock := db.slotLock(r.RoomID, r.Interval.DateKey())
	lock.Lock()
	defer lock.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Indexed overlap probe: half-open intervals collide iff each starts
	// before the other ends.
	var clashes int
	queryCount := `SELECT COUNT(*) FROM reservations
                   WHERE room_id = ? AND date = ? AND status IN (?, ?)
                   AND start_minute < ? AND ? < end_minute`
	err = tx.QueryRowContext(ctx, queryCount,
		r.RoomID, r.Interval.DateKey(),
		models.StatusPending, models.StatusApproved,
		r.Interval.EndMinute, r.Interval.StartMinute,
	).Scan(&clashes)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if clashes > 0 {
		return fmt.Errorf("room %d on %s %s-%s: %w",
			r.RoomID, r.Interval.DateKey(), r.Interval.StartLabel(), r.Interval.EndLabel(), ErrNotAvailable)
	}

	now := time.Now()
	queryInsert := `INSERT INTO reservations (
				user_id, user_name, room_id, room_name, event_type_id,
				subject, date, start_minute, end_minute, status,
				manager_comment, approved_by, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		r.UserID,
		r.UserName,
		r.RoomID,
		r.RoomName,
		r.EventTypeID,
		r.Subject,
		r.Interval.DateKey(),
		r.Interval.StartMinute,
		r.Interval.EndMinute,
		r.Status,
		r.ManagerComment,
		r.ApprovedBy,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now

	return tx.Commit()
}

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	row := db.QueryRowContext(ctx, query, id)

	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// UpdateReservationStatus applies a guarded status write: the row must still
// carry fromStatus at commit time. A lost race yields
// ErrConcurrentModification, a missing row ErrNotFound.
func (db *DB) UpdateReservationStatus(ctx context.Context, id int64, fromStatus, toStatus string, actorID int64, comment string) error {
	query := `UPDATE reservations
              SET status = ?, manager_comment = ?, approved_by = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, toStatus, comment, actorID, time.Now(), id, fromStatus)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := db.GetReservation(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("reservation %d is no longer %s: %w", id, fromStatus, ErrConcurrentModification)
	}
	return nil
}

// ListByUser returns the user's reservations from the recent past onward,
// newest first. Old history stays in the table for audit but is not listed.
func (db *DB) ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	twoWeeksAgo := time.Now().AddDate(0, 0, -14).Format(models.DateLayout)
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE user_id = ? AND date >= ?
              ORDER BY date DESC, start_minute DESC`
	rows, err := db.QueryContext(ctx, query, userID, twoWeeksAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to list user reservations: %w", err)
	}
	defer rows.Close()

	return scanReservations(rows)
}

// ListPending returns reservations awaiting review, oldest first so managers
// work through the queue fairly.
func (db *DB) ListPending(ctx context.Context) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE status = ?
              ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reservations: %w", err)
	}
	defer rows.Close()

	return scanReservations(rows)
}

// ListByDateRange returns all reservations between two dates inclusive,
// regardless of status. Used by the audit exporter and stats.
func (db *DB) ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE date >= ? AND date <= ?
              ORDER BY date ASC, start_minute ASC`
	rows, err := db.QueryContext(ctx, query,
		start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations by date range: %w", err)
	}
	defer rows.Close()

	return scanReservations(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	r := &models.Reservation{}
	var dateStr string
	err := row.Scan(
		&r.ID, &r.UserID, &r.UserName, &r.RoomID, &r.RoomName, &r.EventTypeID,
		&r.Subject, &dateStr, &r.Interval.StartMinute, &r.Interval.EndMinute, &r.Status,
		&r.ManagerComment, &r.ApprovedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Interval.Date, err = time.ParseInLocation(models.DateLayout, dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reservation date %s: %w", dateStr, err)
	}
	return r, nil
}

func scanReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}
