package models

import "time"

type Reservation struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"user_id"`
	UserName       string       `json:"user_name"`
	RoomID         int64        `json:"room_id"`
	RoomName       string       `json:"room_name"`
	EventTypeID    int64        `json:"event_type_id"`
	Subject        string       `json:"subject"`
	Interval       TimeInterval `json:"interval"`
	Status         string       `json:"status"` // pending, approved, rejected, cancelled
	ManagerComment string       `json:"manager_comment,omitempty"`
	ApprovedBy     int64        `json:"approved_by,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IsActive reports whether the reservation still blocks its slot.
func (r *Reservation) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusApproved
}

// IsTerminal reports whether the status can never change again.
func (r *Reservation) IsTerminal() bool {
	return r.Status == StatusRejected || r.Status == StatusCancelled
}
