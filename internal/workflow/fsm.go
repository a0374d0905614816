// Package workflow implements the reservation approval state machine.
package workflow

import (
	"errors"
	"fmt"

	"roomdesk/internal/models"
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrForbidden         = errors.New("actor is not allowed to perform this action")
)

type rule struct {
	from   string
	action string
}

// transitions is the full table of legal moves. Rejected and cancelled are
// terminal: no rule leads out of them.
var transitions = map[rule]string{
	{models.StatusPending, models.ActionApprove}: models.StatusApproved,
	{models.StatusPending, models.ActionReject}:  models.StatusRejected,
	{models.StatusPending, models.ActionCancel}:  models.StatusCancelled,
	{models.StatusApproved, models.ActionCancel}: models.StatusCancelled,
}

// managerOnly lists actions that require the manager or admin role.
var managerOnly = map[string]bool{
	models.ActionApprove: true,
	models.ActionReject:  true,
}

// Next returns the status resulting from applying action to from.
func Next(from, action string) (string, error) {
	to, ok := transitions[rule{from: from, action: action}]
	if !ok {
		return "", fmt.Errorf("%w: %s from status %s", ErrIllegalTransition, action, from)
	}
	return to, nil
}

// CanTransition reports whether the table allows the move.
func CanTransition(from, action string) bool {
	_, ok := transitions[rule{from: from, action: action}]
	return ok
}

// RoleAdmits is the first authorization gate: it checks whether the actor's
// role may ever perform the action, before the target reservation is even
// looked up. Cancel passes here for everyone; ownership is checked later.
func RoleAdmits(action, role string) error {
	switch action {
	case models.ActionApprove, models.ActionReject, models.ActionCancel:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrIllegalTransition, action)
	}

	if managerOnly[action] && role != models.RoleManager && role != models.RoleAdmin {
		return fmt.Errorf("%w: %s requires manager role, actor has %q", ErrForbidden, action, role)
	}
	return nil
}

// Authorize is the second gate, applied once the reservation is loaded:
// cancel by a non-manager is restricted to the requester's own reservation.
func Authorize(action string, actor models.Actor, r *models.Reservation) error {
	if err := RoleAdmits(action, actor.Role); err != nil {
		return err
	}
	if action == models.ActionCancel && !actor.IsManager() && actor.ID != r.UserID {
		return fmt.Errorf("%w: reservation %d belongs to another user", ErrForbidden, r.ID)
	}
	return nil
}
