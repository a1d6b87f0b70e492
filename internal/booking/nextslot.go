package booking

import (
	"math"
	"time"
)

// nextSlotHorizonDays is how many calendar days (today inclusive) the
// finder scans before giving up.
const nextSlotHorizonDays = 5

// NextSlot is the first bookable slot system-wide, plus how much of its day
// is still open.
type NextSlot struct {
	Date                time.Time `json:"date"`
	TimeLabel           string    `json:"time"`
	AvailabilityPercent int       `json:"availability_percent"`
}

// NextAvailable scans the next five calendar days starting today and
// returns the first slot that is outside the lead-time buffer and not
// occupied by any active booking. Returns nil when the horizon is fully
// booked or already elapsed. The booking set spans all users: slot
// occupancy is global even though booking caps are per user.
func NextAvailable(bookings []Booking, now time.Time) *NextSlot {
	labels := TimeSlots()

	for i := 0; i < nextSlotHorizonDays; i++ {
		day := StartOfDay(now).AddDate(0, 0, i)

		var dayBookings []Booking
		for _, b := range bookings {
			if b.Active() && SameDay(b.Date, day) {
				dayBookings = append(dayBookings, b)
			}
		}

		for _, label := range labels {
			at, err := SlotTime(day, label)
			if err != nil {
				continue
			}
			if !slotBookable(at, now) {
				continue
			}
			if slotTaken(dayBookings, label) {
				continue
			}
			return &NextSlot{
				Date:                day,
				TimeLabel:           label,
				AvailabilityPercent: dayAvailability(day, labels, dayBookings, now),
			}
		}
	}

	return nil
}

// slotBookable requires the slot to be strictly in the future and outside
// the lead-time buffer.
func slotBookable(at, now time.Time) bool {
	return at.After(now) && at.Add(-LeadTime).After(now)
}

func slotTaken(dayBookings []Booking, label string) bool {
	for _, b := range dayBookings {
		if b.Date.Format(SlotLabelLayout) == label {
			return true
		}
	}
	return false
}

// dayAvailability is the share of the day's slots that are still bookable
// and unbooked, rounded to the nearest whole percent.
func dayAvailability(day time.Time, labels []string, dayBookings []Booking, now time.Time) int {
	open := 0
	for _, label := range labels {
		at, err := SlotTime(day, label)
		if err != nil {
			continue
		}
		if slotBookable(at, now) && !slotTaken(dayBookings, label) {
			open++
		}
	}
	return int(math.Round(float64(open) / float64(len(labels)) * 100))
}
