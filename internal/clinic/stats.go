// Package clinic aggregates booking activity into admin-facing statistics.
package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/pkg/logging"
)

// weeklySlotCapacity is the clinic's bookable capacity per work week:
// 15 slots a day across Monday-Friday.
const weeklySlotCapacity = 75

// Stats summarizes active bookings for the admin dashboard.
type Stats struct {
	TotalActive        int            `json:"total_active"`
	ByStatus           map[string]int `json:"by_status"`
	ByService          map[string]int `json:"by_service"`
	ByWeekday          map[string]int `json:"by_weekday"`
	WeekUtilizationPct float64        `json:"week_utilization_pct"`
	PeriodStart        string         `json:"period_start"`
	PeriodEnd          string         `json:"period_end"`
}

// BookingSource supplies the active booking set to aggregate.
type BookingSource interface {
	ListAllActive(ctx context.Context) ([]booking.Booking, error)
}

// StatsReporter computes clinic statistics from the booking store.
type StatsReporter struct {
	source BookingSource
}

// NewStatsReporter creates a stats reporter.
func NewStatsReporter(source BookingSource) *StatsReporter {
	if source == nil {
		panic("clinic: booking source required for stats")
	}
	return &StatsReporter{source: source}
}

// GetStats aggregates active bookings, optionally restricted to the
// [start, end) window. Week utilization is always computed for the work
// week containing now, regardless of the window.
func (r *StatsReporter) GetStats(ctx context.Context, start, end *time.Time, now time.Time) (*Stats, error) {
	all, err := r.source.ListAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("clinic stats: list bookings: %w", err)
	}

	stats := &Stats{
		ByStatus:    map[string]int{},
		ByService:   map[string]int{},
		ByWeekday:   map[string]int{},
		PeriodStart: "all-time",
		PeriodEnd:   "now",
	}
	if start != nil && end != nil {
		stats.PeriodStart = start.Format(time.RFC3339)
		stats.PeriodEnd = end.Format(time.RFC3339)
	}

	weekBooked := 0
	for _, b := range all {
		if booking.SameWeek(b.Date, now) {
			weekBooked++
		}
		if start != nil && end != nil {
			if b.Date.Before(*start) || !b.Date.Before(*end) {
				continue
			}
		}
		stats.TotalActive++
		stats.ByStatus[string(b.Status)]++
		stats.ByService[string(b.ServiceType)]++
		stats.ByWeekday[b.Date.Weekday().String()]++
	}
	stats.WeekUtilizationPct = float64(weekBooked) / weeklySlotCapacity * 100

	return stats, nil
}

// StatsHandler provides the HTTP endpoint for clinic statistics.
type StatsHandler struct {
	reporter *StatsReporter
	logger   *logging.Logger
}

// NewStatsHandler creates a new stats HTTP handler.
func NewStatsHandler(reporter *StatsReporter, logger *logging.Logger) *StatsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{reporter: reporter, logger: logger}
}

// GetStats returns aggregated booking metrics.
// GET /admin/stats
// Query params:
//   - start: RFC3339 timestamp for period start (optional)
//   - end: RFC3339 timestamp for period end (optional)
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var start, end *time.Time
	if s := r.URL.Query().Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, `{"error": "invalid start time, use RFC3339 format"}`, http.StatusBadRequest)
			return
		}
		start = &t
	}
	if e := r.URL.Query().Get("end"); e != "" {
		t, err := time.Parse(time.RFC3339, e)
		if err != nil {
			http.Error(w, `{"error": "invalid end time, use RFC3339 format"}`, http.StatusBadRequest)
			return
		}
		end = &t
	}

	// If only one is provided, require both.
	if (start == nil) != (end == nil) {
		http.Error(w, `{"error": "both start and end must be provided, or neither"}`, http.StatusBadRequest)
		return
	}

	stats, err := h.reporter.GetStats(r.Context(), start, end, time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to get clinic stats", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error("failed to encode clinic stats", "error", err)
	}
}
