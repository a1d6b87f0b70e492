// Package booking holds the clinic's booking domain: the slot calendar,
// the eligibility rules, and the next-available-slot finder. Everything in
// this package is pure; persistence lives in internal/bookings.
package booking

import (
	"fmt"
	"time"
)

// ServiceType identifies the treatment offered in a slot.
type ServiceType string

const (
	ServicePhysio  ServiceType = "physio"
	ServiceMassage ServiceType = "massage"
)

// ParseServiceType validates a raw service type string.
func ParseServiceType(raw string) (ServiceType, error) {
	switch ServiceType(raw) {
	case ServicePhysio, ServiceMassage:
		return ServiceType(raw), nil
	default:
		return "", fmt.Errorf("booking: unknown service type %q", raw)
	}
}

// Status is the storage-level lifecycle of a booking. Only non-cancelled
// bookings occupy a slot.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Booking is one reserved slot. The storage collaborator owns the record;
// the engine only ever works on transient copies.
type Booking struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Date        time.Time   `json:"date"`
	ServiceType ServiceType `json:"service_type"`
	Status      Status      `json:"status"`
}

// Active reports whether the booking still occupies its slot.
func (b Booking) Active() bool {
	return b.Status != StatusCancelled
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// WeekStart returns the Monday midnight of the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	d := StartOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// SameWeek reports whether a and b fall in the same Monday-start week.
func SameWeek(a, b time.Time) bool {
	return WeekStart(a).Equal(WeekStart(b))
}
