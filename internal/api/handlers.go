package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roomdesk/internal/models"
	"roomdesk/internal/service"
)

// actorFromRequest reads the caller-supplied identity headers. The UI layer
// authenticates users; this service trusts the role it forwards.
func actorFromRequest(r *http.Request) (models.Actor, error) {
	rawID := strings.TrimSpace(r.Header.Get("x-user-id"))
	if rawID == "" {
		return models.Actor{}, errMissingIdentity
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return models.Actor{}, errMissingIdentity
	}

	role := strings.TrimSpace(strings.ToLower(r.Header.Get("x-user-role")))
	switch role {
	case models.RoleEmployee, models.RoleManager, models.RoleAdmin:
	case "":
		role = models.RoleEmployee
	default:
		return models.Actor{}, errMissingIdentity
	}

	return models.Actor{
		ID:   id,
		Name: strings.TrimSpace(r.Header.Get("x-user-name")),
		Role: role,
	}, nil
}

var errMissingIdentity = &identityError{}

type identityError struct{}

func (*identityError) Error() string { return "missing or invalid identity headers" }

type createReservationRequest struct {
	RoomID      int64  `json:"room_id"`
	EventTypeID int64  `json:"event_type_id"`
	Subject     string `json:"subject"`
	Date        string `json:"date"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type transitionRequest struct {
	Comment string `json:"comment"`
}

func parseInterval(dateStr, startStr, endStr string) (models.TimeInterval, string) {
	date, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(dateStr), time.Local)
	if err != nil {
		return models.TimeInterval{}, "invalid date format; expected YYYY-MM-DD"
	}
	start, err := models.ParseTimeOfDay(strings.TrimSpace(startStr))
	if err != nil {
		return models.TimeInterval{}, "invalid start time; expected HH:MM"
	}
	end, err := models.ParseTimeOfDay(strings.TrimSpace(endStr))
	if err != nil {
		return models.TimeInterval{}, "invalid end time; expected HH:MM"
	}
	return models.NewTimeInterval(date, start, end), ""
}

// handleReservations serves POST (create) and GET (list by user).
func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createReservation(w, r)
	case http.MethodGet:
		s.listReservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) createReservation(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	if s.limiter != nil && s.cfg.RateLimit.UserRequests > 0 {
		window := time.Duration(s.cfg.RateLimit.UserWindow) * time.Second
		allowed, err := s.limiter.CheckRateLimit(r.Context(), actor.ID, s.cfg.RateLimit.UserRequests, window)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", actor.ID).Msg("user rate limit check failed")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many reservation requests")
			return
		}
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var body createReservationRequest
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	interval, msg := parseInterval(body.Date, body.Start, body.End)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	reservation, err := s.scheduler.RequestReservation(r.Context(), service.ReservationRequest{
		Actor:       actor,
		RoomID:      body.RoomID,
		EventTypeID: body.EventTypeID,
		Subject:     body.Subject,
		Interval:    interval,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reservationPayload(reservation))
}

func (s *HTTPServer) listReservations(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	userID := actor.ID
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		// Only managers may read someone else's reservations.
		if parsed != actor.ID && !actor.IsManager() {
			writeError(w, http.StatusForbidden, "cannot list another user's reservations")
			return
		}
		userID = parsed
	}

	statusFilter := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("status")))
	switch statusFilter {
	case "", models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	reservations, err := s.scheduler.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if statusFilter != "" {
		filtered := reservations[:0]
		for _, res := range reservations {
			if res.Status == statusFilter {
				filtered = append(filtered, res)
			}
		}
		reservations = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservationsPayload(reservations)})
}

// handleReservationSubpath routes /api/v1/reservations/pending and
// /api/v1/reservations/{id}/{action}.
func (s *HTTPServer) handleReservationSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reservations/")

	if rest == "pending" {
		s.listPending(w, r)
		return
	}

	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		s.getReservation(w, r, parts[0])
	case 2:
		s.transitionReservation(w, r, parts[0], parts[1])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) listPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if !actor.IsManager() {
		writeError(w, http.StatusForbidden, "manager role required")
		return
	}

	reservations, err := s.scheduler.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservationsPayload(reservations)})
}

func (s *HTTPServer) getReservation(w http.ResponseWriter, r *http.Request, rawID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if _, err := actorFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	reservation, err := s.scheduler.GetReservation(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reservationPayload(reservation))
}

func (s *HTTPServer) transitionReservation(w http.ResponseWriter, r *http.Request, rawID, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	switch action {
	case models.ActionApprove, models.ActionReject, models.ActionCancel:
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	var body transitionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	reservation, err := s.scheduler.Transition(r.Context(), id, action, actor, strings.TrimSpace(body.Comment))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reservationPayload(reservation))
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	roomID, err := strconv.ParseInt(strings.TrimSpace(q.Get("room_id")), 10, 64)
	if err != nil || roomID <= 0 {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}

	interval, msg := parseInterval(q.Get("date"), q.Get("start"), q.Get("end"))
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	available, err := s.scheduler.IsAvailable(r.Context(), roomID, interval)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":   roomID,
		"date":      interval.DateKey(),
		"start":     interval.StartLabel(),
		"end":       interval.EndLabel(),
		"available": available,
	})
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	roomID, err := strconv.ParseInt(strings.TrimSpace(q.Get("room_id")), 10, 64)
	if err != nil || roomID <= 0 {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}

	date, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(q.Get("date")), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	reservations, err := s.scheduler.GetRoomSchedule(r.Context(), roomID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":      roomID,
		"date":         date.Format(models.DateLayout),
		"reservations": reservationsPayload(reservations),
	})
}

func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.catalog.ListRooms()})
}

func (s *HTTPServer) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_types": s.catalog.ListEventTypes()})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if !actor.IsManager() {
		writeError(w, http.StatusForbidden, "manager role required")
		return
	}

	stats, err := s.catalog.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// reservationPayload renders a reservation with human-readable slot labels.
func reservationPayload(r *models.Reservation) map[string]any {
	return map[string]any{
		"id":              r.ID,
		"user_id":         r.UserID,
		"user_name":       r.UserName,
		"room_id":         r.RoomID,
		"room_name":       r.RoomName,
		"event_type_id":   r.EventTypeID,
		"subject":         r.Subject,
		"date":            r.Interval.DateKey(),
		"start":           r.Interval.StartLabel(),
		"end":             r.Interval.EndLabel(),
		"status":          r.Status,
		"manager_comment": r.ManagerComment,
		"approved_by":     r.ApprovedBy,
		"created_at":      r.CreatedAt,
		"updated_at":      r.UpdatedAt,
	}
}

func reservationsPayload(rs []*models.Reservation) []map[string]any {
	out := make([]map[string]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, reservationPayload(r))
	}
	return out
}
