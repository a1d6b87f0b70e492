package booking

import "time"

// LeadTime is the minimum notice required before a slot starts. A slot is
// bookable only while now is earlier than slot start minus LeadTime, which
// is strictly tighter than comparing against the raw slot time.
const LeadTime = 30 * time.Minute

// DefaultWeeklyLimit caps active bookings per user per Monday-start week.
const DefaultWeeklyLimit = 2

// Verdict is the outcome of an eligibility check.
type Verdict string

const (
	VerdictAllow         Verdict = "allow"
	VerdictTooSoon       Verdict = "too_soon"
	VerdictPast          Verdict = "past"
	VerdictDailyConflict Verdict = "daily_conflict"
	VerdictWeeklyLimit   Verdict = "weekly_limit"
)

// Decision is a first-class value, never an error. A daily conflict carries
// the booking that could be replaced; a weekly-limit hit carries the whole
// week's bookings so the caller can offer to replace one of them.
type Decision struct {
	Verdict      Verdict
	Conflict     *Booking
	WeekBookings []Booking
}

// Allowed reports whether the candidate slot may be booked outright.
func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Rules parameterizes the eligibility engine. The daily cap of one booking
// is structural: a second same-day booking is always a conflict.
type Rules struct {
	LeadTime    time.Duration
	WeeklyLimit int
}

// DefaultRules returns the clinic's standard policy.
func DefaultRules() Rules {
	return Rules{LeadTime: LeadTime, WeeklyLimit: DefaultWeeklyLimit}
}

// Evaluate decides whether a candidate slot may be booked given the user's
// existing bookings, under the default rules.
func Evaluate(candidate time.Time, existing []Booking, now time.Time) Decision {
	return DefaultRules().Evaluate(candidate, existing, now)
}

// Evaluate applies the precedence order: too-soon, past, daily conflict,
// weekly limit, allow. The first matching rule wins. Cancelled bookings are
// ignored throughout.
func (r Rules) Evaluate(candidate time.Time, existing []Booking, now time.Time) Decision {
	if candidate.Add(-r.LeadTime).Before(now) {
		return Decision{Verdict: VerdictTooSoon}
	}

	if StartOfDay(candidate).Before(StartOfDay(now)) {
		return Decision{Verdict: VerdictPast}
	}

	for i := range existing {
		b := existing[i]
		if !b.Active() {
			continue
		}
		if SameDay(b.Date, candidate) {
			conflict := existing[i]
			return Decision{Verdict: VerdictDailyConflict, Conflict: &conflict}
		}
	}

	var week []Booking
	for _, b := range existing {
		if !b.Active() {
			continue
		}
		if SameWeek(b.Date, candidate) {
			week = append(week, b)
		}
	}
	if len(week) >= r.WeeklyLimit {
		return Decision{Verdict: VerdictWeeklyLimit, WeekBookings: week}
	}

	return Decision{Verdict: VerdictAllow}
}
