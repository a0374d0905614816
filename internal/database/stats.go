package database

import (
	"context"
	"fmt"
	"time"

	"roomdesk/internal/models"
)

// DashboardStats carries the aggregate numbers the dashboard endpoint serves.
type DashboardStats struct {
	ApprovedToday    int            `json:"approved_today"`
	ApprovedThisWeek int            `json:"approved_this_week"`
	RoomsBusyNow     int            `json:"rooms_busy_now"`
	ByStatus30Days   map[string]int `json:"by_status_30_days"`
	TopRooms30Days   []RoomUsage    `json:"top_rooms_30_days"`
}

// RoomUsage counts approved reservations per room.
type RoomUsage struct {
	RoomID   int64  `json:"room_id"`
	RoomName string `json:"room_name"`
	Count    int    `json:"count"`
}

// GetDashboardStats aggregates reservation counts around the given instant.
func (db *DB) GetDashboardStats(ctx context.Context, now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{ByStatus30Days: make(map[string]int)}

	today := now.Format(models.DateLayout)
	weekEnd := now.AddDate(0, 0, 7).Format(models.DateLayout)
	monthAgo := now.AddDate(0, 0, -30).Format(models.DateLayout)
	nowMinute := now.Hour()*60 + now.Minute()

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE date = ? AND status = ?`,
		today, models.StatusApproved).Scan(&stats.ApprovedToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's reservations: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE date >= ? AND date <= ? AND status = ?`,
		today, weekEnd, models.StatusApproved).Scan(&stats.ApprovedThisWeek)
	if err != nil {
		return nil, fmt.Errorf("failed to count week's reservations: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT room_id) FROM reservations
         WHERE date = ? AND status = ? AND start_minute <= ? AND ? < end_minute`,
		today, models.StatusApproved, nowMinute, nowMinute).Scan(&stats.RoomsBusyNow)
	if err != nil {
		return nil, fmt.Errorf("failed to count busy rooms: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM reservations WHERE date >= ? GROUP BY status`,
		monthAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to get status histogram: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status histogram: %w", err)
		}
		stats.ByStatus30Days[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	topRows, err := db.QueryContext(ctx,
		`SELECT room_id, room_name, COUNT(*) AS cnt FROM reservations
         WHERE date >= ? AND status = ?
         GROUP BY room_id, room_name
         ORDER BY cnt DESC LIMIT 5`,
		monthAgo, models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to get top rooms: %w", err)
	}
	defer topRows.Close()
	for topRows.Next() {
		var usage RoomUsage
		if err := topRows.Scan(&usage.RoomID, &usage.RoomName, &usage.Count); err != nil {
			return nil, fmt.Errorf("failed to scan room usage: %w", err)
		}
		stats.TopRooms30Days = append(stats.TopRooms30Days, usage)
	}
	if err := topRows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
