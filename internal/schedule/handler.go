package schedule

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/pkg/logging"
)

// Handler exposes the admin schedule endpoints.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a new schedule handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// GetWeek handles GET /admin/schedule?week=YYYY-MM-DD. Without the week
// parameter it returns the current week.
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	at := time.Now().UTC()
	if raw := r.URL.Query().Get("week"); raw != "" {
		parsed, err := time.Parse(dayKeyLayout, raw)
		if err != nil {
			http.Error(w, "invalid week, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		at = parsed
	}

	week, err := h.store.Week(r.Context(), at)
	if err != nil {
		h.logger.Error("failed to load schedule", "error", err)
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(week)
}

// SetSlotRequest assigns a service type to one slot.
type SetSlotRequest struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	ServiceType string `json:"service_type"`
}

// SetSlot handles PUT /admin/schedule/slot.
func (h *Handler) SetSlot(w http.ResponseWriter, r *http.Request) {
	var req SetSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	day, err := time.Parse(dayKeyLayout, req.Date)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	svc, err := booking.ParseServiceType(req.ServiceType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.SetSlot(r.Context(), day, req.Time, svc); err != nil {
		h.logger.Error("failed to set schedule slot", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("schedule slot updated", "date", req.Date, "time", req.Time, "service", svc)
	w.WriteHeader(http.StatusNoContent)
}
