// Package schedule holds the admin-configured weekly service plan: which
// service type each slot offers. This is a display/config concern, the
// eligibility engine never consults it.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mwestberg/physiobook/internal/booking"
)

const dayKeyLayout = "2006-01-02"

// Week maps (date, time label) to a service type for one Monday-start
// week. Unset slots default to physio.
type Week struct {
	WeekStart string                                    `json:"week_start"`
	Slots     map[string]map[string]booking.ServiceType `json:"slots"`
}

// ServiceFor resolves the service type for one slot, defaulting to physio.
func (w *Week) ServiceFor(day time.Time, label string) booking.ServiceType {
	if w == nil || w.Slots == nil {
		return booking.ServicePhysio
	}
	if daySlots, ok := w.Slots[day.Format(dayKeyLayout)]; ok {
		if svc, ok := daySlots[label]; ok {
			return svc
		}
	}
	return booking.ServicePhysio
}

// Store persists weekly schedules as one JSON document per week in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a schedule store.
func NewStore(client *redis.Client) *Store {
	if client == nil {
		panic("schedule: redis client cannot be nil")
	}
	return &Store{redis: client}
}

func validLabel(label string) bool {
	for _, slot := range booking.TimeSlots() {
		if slot == label {
			return true
		}
	}
	return false
}

func (s *Store) key(weekStart time.Time) string {
	return fmt.Sprintf("schedule:week:%s", weekStart.Format(dayKeyLayout))
}

// Week retrieves the schedule for the week containing t, returning an
// empty (all-physio) schedule when none has been configured.
func (s *Store) Week(ctx context.Context, t time.Time) (*Week, error) {
	weekStart := booking.WeekStart(t)
	data, err := s.redis.Get(ctx, s.key(weekStart)).Bytes()
	if err == redis.Nil {
		return &Week{
			WeekStart: weekStart.Format(dayKeyLayout),
			Slots:     map[string]map[string]booking.ServiceType{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: get week: %w", err)
	}

	var week Week
	if err := json.Unmarshal(data, &week); err != nil {
		return nil, fmt.Errorf("schedule: unmarshal week: %w", err)
	}
	if week.Slots == nil {
		week.Slots = map[string]map[string]booking.ServiceType{}
	}
	return &week, nil
}

// SetSlot assigns a service type to one slot of the week containing day.
func (s *Store) SetSlot(ctx context.Context, day time.Time, label string, svc booking.ServiceType) error {
	if !validLabel(label) {
		return fmt.Errorf("schedule: %q is not a bookable slot", label)
	}

	week, err := s.Week(ctx, day)
	if err != nil {
		return err
	}

	dayKey := day.Format(dayKeyLayout)
	if week.Slots[dayKey] == nil {
		week.Slots[dayKey] = map[string]booking.ServiceType{}
	}
	week.Slots[dayKey][label] = svc

	data, err := json.Marshal(week)
	if err != nil {
		return fmt.Errorf("schedule: marshal week: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(booking.WeekStart(day)), data, 0).Err(); err != nil {
		return fmt.Errorf("schedule: set week: %w", err)
	}
	return nil
}

// ServiceFor resolves one slot's service type straight from storage.
func (s *Store) ServiceFor(ctx context.Context, day time.Time, label string) (booking.ServiceType, error) {
	week, err := s.Week(ctx, day)
	if err != nil {
		return "", err
	}
	return week.ServiceFor(day, label), nil
}
