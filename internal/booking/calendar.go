package booking

import (
	"fmt"
	"time"
)

// SlotLabelLayout is the time-of-day format used for slot labels.
const SlotLabelLayout = "15:04"

const (
	openingHour = 10
	closingHour = 17
	slotMinutes = 30
)

// TimeSlots returns the bookable time-of-day labels for any clinic day:
// "10:00" through "17:00" in 30-minute steps. 17:30 is past the last
// bookable start and is excluded.
func TimeSlots() []string {
	var slots []string
	for hour := openingHour; hour <= closingHour; hour++ {
		for minute := 0; minute < 60; minute += slotMinutes {
			if hour == closingHour && minute == slotMinutes {
				continue
			}
			slots = append(slots, fmt.Sprintf("%02d:%02d", hour, minute))
		}
	}
	return slots
}

// WeekDay is one bookable day of the current work week.
type WeekDay struct {
	Date    time.Time `json:"date"`
	DayName string    `json:"day_name"`
	Label   string    `json:"label"`
}

// WeekDays returns the remaining weekdays of the current work week. On a
// weekday it starts from today; already-elapsed weekdays are not returned.
// On a weekend it rolls forward to the full Monday-Friday of next week.
func WeekDays(now time.Time) []WeekDay {
	today := StartOfDay(now)

	var start time.Time
	switch now.Weekday() {
	case time.Saturday:
		start = today.AddDate(0, 0, 2)
	case time.Sunday:
		start = today.AddDate(0, 0, 1)
	default:
		start = today
	}

	friday := WeekStart(start).AddDate(0, 0, 4)

	var days []WeekDay
	for d := start; !d.After(friday); d = d.AddDate(0, 0, 1) {
		days = append(days, WeekDay{
			Date:    d,
			DayName: d.Weekday().String(),
			Label:   d.Format("Jan 2"),
		})
	}
	return days
}

// SlotTime combines a calendar day with a slot label into the absolute
// instant the slot starts, in the day's location.
func SlotTime(day time.Time, label string) (time.Time, error) {
	parsed, err := time.Parse(SlotLabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking: bad slot label %q: %w", label, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}

// Slot is the per-day view of one bookable time. It is recomputed from the
// booking set on every read and never persisted.
type Slot struct {
	Time        string      `json:"time"`
	IsPast      bool        `json:"is_past"`
	IsBooked    bool        `json:"is_booked"`
	Booking     *Booking    `json:"booking,omitempty"`
	ServiceType ServiceType `json:"service_type"`
}

// DaySlots builds the slot view for one calendar day from the full booking
// set. A slot is past when it starts before now or inside the lead-time
// buffer. Service types default to physio; callers overlay the admin
// schedule when one is configured.
func DaySlots(day time.Time, bookings []Booking, now time.Time) []Slot {
	labels := TimeSlots()
	slots := make([]Slot, 0, len(labels))
	for _, label := range labels {
		slot := Slot{Time: label, ServiceType: ServicePhysio}
		at, err := SlotTime(day, label)
		if err != nil {
			continue
		}
		slot.IsPast = !at.After(now) || !at.Add(-LeadTime).After(now)
		for i := range bookings {
			b := bookings[i]
			if !b.Active() {
				continue
			}
			if SameDay(b.Date, day) && b.Date.Format(SlotLabelLayout) == label {
				slot.IsBooked = true
				slot.Booking = &bookings[i]
				break
			}
		}
		slots = append(slots, slot)
	}
	return slots
}
