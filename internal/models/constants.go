package models

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// ActiveStatuses are the statuses that block a slot for overlap purposes.
var ActiveStatuses = []string{StatusPending, StatusApproved}

const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCancel  = "cancel"
)

const (
	DateLayout      = "2006-01-02"
	TimeOfDayLayout = "15:04"
)

const (
	// DefaultMaxAdvanceDays caps how far ahead a slot can be reserved.
	DefaultMaxAdvanceDays = 90

	// DefaultScheduleCacheTTL bounds staleness of cached day schedules.
	DefaultScheduleCacheTTL = 60 // seconds

	// RateLimitRequests per user within RateLimitWindow.
	RateLimitRequests = 30
	RateLimitWindow   = 60 // seconds

	// AuditQueueSize is the in-process buffer of the audit worker.
	AuditQueueSize = 1000
)

// Actor is the authenticated identity supplied by the caller. The core
// trusts the role and does not re-authenticate.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (a Actor) IsManager() bool {
	return a.Role == RoleManager || a.Role == RoleAdmin
}
