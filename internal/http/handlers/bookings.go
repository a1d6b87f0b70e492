package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/internal/bookings"
	"github.com/mwestberg/physiobook/internal/identity"
	"github.com/mwestberg/physiobook/internal/schedule"
	"github.com/mwestberg/physiobook/pkg/logging"
)

// Mailer sends the transactional booking emails. May be left nil.
type Mailer interface {
	BookingConfirmed(ctx context.Context, to, toName string, b booking.Booking) error
	BookingCancelled(ctx context.Context, to, toName string, b booking.Booking) error
}

// BookingHandler serves the booking API.
type BookingHandler struct {
	svc      *bookings.Service
	schedule *schedule.Store
	watcher  *bookings.Watcher
	mailer   Mailer
	logger   *logging.Logger
	now      func() time.Time
}

// NewBookingHandler creates the booking handler. Schedule, watcher and
// mailer are optional.
func NewBookingHandler(svc *bookings.Service, sched *schedule.Store, watcher *bookings.Watcher, mailer Mailer, logger *logging.Logger) *BookingHandler {
	if svc == nil {
		panic("handlers: booking service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{
		svc:      svc,
		schedule: sched,
		watcher:  watcher,
		mailer:   mailer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// slotRequest addresses one slot: a calendar day plus a time label.
type slotRequest struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	ServiceType string `json:"service_type"`
}

func (req slotRequest) resolve() (time.Time, booking.ServiceType, error) {
	day, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid date, expected YYYY-MM-DD")
	}
	slot, err := booking.SlotTime(day, req.Time)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid time, expected HH:MM")
	}
	svc, err := booking.ParseServiceType(req.ServiceType)
	if err != nil {
		return time.Time{}, "", err
	}
	return slot, svc, nil
}

// attemptResponse is the wire form of an eligibility attempt.
type attemptResponse struct {
	State    string            `json:"state"`
	Verdict  string            `json:"verdict"`
	Message  string            `json:"message,omitempty"`
	Conflict *booking.Booking  `json:"conflict,omitempty"`
	Week     []booking.Booking `json:"week_bookings,omitempty"`
}

func toAttemptResponse(a *bookings.Attempt) attemptResponse {
	return attemptResponse{
		State:    string(a.State),
		Verdict:  string(a.Decision.Verdict),
		Message:  a.Message,
		Conflict: a.Decision.Conflict,
		Week:     a.Decision.WeekBookings,
	}
}

// List handles GET /api/bookings.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	mine, err := h.svc.List(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to list bookings", "error", err, "user_id", id.UserID)
		http.Error(w, `{"error":"failed to list bookings"}`, http.StatusInternalServerError)
		return
	}
	if mine == nil {
		mine = []booking.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": mine, "count": len(mine)})
}

// calendarDay is one day of the calendar view.
type calendarDay struct {
	booking.WeekDay
	Slots []booking.Slot `json:"slots"`
}

// Calendar handles GET /api/calendar: the remaining work week with the
// per-slot booked/past state and the admin-configured service types.
func (h *BookingHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	all, err := h.svc.AllActive(r.Context())
	if err != nil {
		h.logger.Error("failed to load bookings for calendar", "error", err)
		http.Error(w, `{"error":"failed to load calendar"}`, http.StatusInternalServerError)
		return
	}

	days := booking.WeekDays(now)
	out := make([]calendarDay, 0, len(days))
	for _, day := range days {
		slots := booking.DaySlots(day.Date, all, now)
		if h.schedule != nil {
			week, err := h.schedule.Week(r.Context(), day.Date)
			if err != nil {
				h.logger.Error("failed to load schedule overlay", "error", err)
			} else {
				for i := range slots {
					slots[i].ServiceType = week.ServiceFor(day.Date, slots[i].Time)
				}
			}
		}
		out = append(out, calendarDay{WeekDay: day, Slots: slots})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out})
}

// Select handles POST /api/bookings/select: a dry-run eligibility check
// that returns the attempt without creating anything.
func (h *BookingHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	slot, svc, err := req.resolve()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	attempt, err := h.svc.Select(r.Context(), id.UserID, slot, svc, h.now())
	if err != nil {
		h.logger.Error("slot selection failed", "error", err, "user_id", id.UserID)
		http.Error(w, `{"error":"slot selection failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

// Create handles POST /api/bookings: eligibility check plus create in one
// round trip. Prompt states come back as 409 so the client can offer the
// replace workflow; hard rejections are 422.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	slot, svc, err := req.resolve()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	attempt, err := h.svc.Select(r.Context(), id.UserID, slot, svc, h.now())
	if err != nil {
		h.logger.Error("slot selection failed", "error", err, "user_id", id.UserID)
		http.Error(w, `{"error":"slot selection failed"}`, http.StatusInternalServerError)
		return
	}

	switch attempt.State {
	case bookings.StateAllowed:
	case bookings.StateConflictPrompt, bookings.StateLimitPrompt:
		writeJSON(w, http.StatusConflict, toAttemptResponse(attempt))
		return
	default:
		writeJSON(w, http.StatusUnprocessableEntity, toAttemptResponse(attempt))
		return
	}

	created, err := h.svc.Confirm(r.Context(), attempt)
	if err != nil {
		if errors.Is(err, bookings.ErrSlotTaken) {
			http.Error(w, `{"error":"slot was just taken"}`, http.StatusConflict)
			return
		}
		h.logger.Error("booking create failed", "error", err, "user_id", id.UserID)
		http.Error(w, `{"error":"booking create failed"}`, http.StatusInternalServerError)
		return
	}

	h.sendConfirmation(r.Context(), id, *created)
	writeJSON(w, http.StatusCreated, created)
}

// replaceRequest names the booking to cancel plus the replacement slot.
type replaceRequest struct {
	slotRequest
	CancelID string `json:"cancel_id"`
}

// Replace handles POST /api/bookings/replace. The cancel and create legs
// run in order and are not atomic; a failed create leaves the user with
// neither booking and a 409 that says so.
func (h *BookingHandler) Replace(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	slot, svc, err := req.resolve()
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Replace(r.Context(), id.UserID, req.CancelID, slot, svc, h.now())
	if err != nil {
		if errors.Is(err, bookings.ErrValidation) {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}
		if errors.Is(err, bookings.ErrReplaceIncomplete) {
			h.logger.Error("replace incomplete", "error", err, "user_id", id.UserID)
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "your old booking was cancelled but the new slot could not be booked; please pick a slot again",
			})
			return
		}
		h.logger.Error("replace failed", "error", err, "user_id", id.UserID)
		http.Error(w, `{"error":"replace failed"}`, http.StatusInternalServerError)
		return
	}

	h.sendConfirmation(r.Context(), id, *created)
	writeJSON(w, http.StatusCreated, created)
}

// Cancel handles DELETE /api/bookings/{id}.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}
	bookingID := chi.URLParam(r, "id")
	if bookingID == "" {
		http.Error(w, `{"error":"booking id required"}`, http.StatusBadRequest)
		return
	}

	var cancelled *booking.Booking
	if mine, err := h.svc.List(r.Context(), id.UserID); err == nil {
		for i := range mine {
			if mine[i].ID == bookingID {
				cancelled = &mine[i]
				break
			}
		}
	}

	if err := h.svc.Cancel(r.Context(), id.UserID, bookingID); err != nil {
		h.logger.Error("cancel failed", "error", err, "user_id", id.UserID, "booking_id", bookingID)
		http.Error(w, `{"error":"cancel failed"}`, http.StatusInternalServerError)
		return
	}

	if cancelled != nil && h.mailer != nil && id.Email != "" {
		if err := h.mailer.BookingCancelled(r.Context(), id.Email, id.Name, *cancelled); err != nil {
			h.logger.Error("cancellation email failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// NextAvailable handles GET /api/bookings/next-available.
func (h *BookingHandler) NextAvailable(w http.ResponseWriter, r *http.Request) {
	next, err := h.svc.NextAvailable(r.Context(), h.now())
	if err != nil {
		h.logger.Error("next available lookup failed", "error", err)
		http.Error(w, `{"error":"next available lookup failed"}`, http.StatusInternalServerError)
		return
	}
	if next == nil {
		writeJSON(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": true, "next": next})
}

// Watch handles GET /api/bookings/watch: a server-sent event stream that
// fires whenever the user's bookings change in another session. Events
// carry no payload; clients refetch on every fire.
func (h *BookingHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}
	if h.watcher == nil {
		http.Error(w, `{"error":"change feed not available"}`, http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	fires, stop := h.watcher.Watch(r.Context(), id.UserID)
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-fires:
			fmt.Fprint(w, "event: change\ndata: {}\n\n")
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func (h *BookingHandler) sendConfirmation(ctx context.Context, id identity.Identity, b booking.Booking) {
	if h.mailer == nil || id.Email == "" {
		return
	}
	if err := h.mailer.BookingConfirmed(ctx, id.Email, id.Name, b); err != nil {
		h.logger.Error("confirmation email failed", "error", err, "booking_id", b.ID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
