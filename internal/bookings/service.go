package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/internal/observability/metrics"
	"github.com/mwestberg/physiobook/pkg/logging"
)

// ErrReplaceIncomplete is returned when the replace workflow cancelled the
// old booking but could not create the new one. The two writes are
// sequential, not atomic: the user holds neither booking and must retry.
var ErrReplaceIncomplete = errors.New("bookings: replace cancelled the old booking but could not create the new one")

// ErrNotAllowed is returned when Confirm is called on an attempt the
// eligibility engine did not clear.
var ErrNotAllowed = errors.New("bookings: attempt was not allowed")

// State tracks one booking attempt through the orchestrator.
type State string

const (
	StateIdle           State = "idle"
	StateSlotSelected   State = "slot_selected"
	StateAllowed        State = "allowed"
	StateConflictPrompt State = "conflict_prompt"
	StateLimitPrompt    State = "limit_prompt"
	StateRejected       State = "rejected"
)

// Attempt is the orchestrator's view of one slot selection. Prompt states
// carry the conflicting booking(s) for the replace workflow; rejected
// states carry a user-facing message and no prompt.
type Attempt struct {
	State       State
	UserID      string
	Slot        time.Time
	ServiceType booking.ServiceType
	Decision    booking.Decision
	Message     string
}

// Store is the slice of the repository the orchestrator needs.
type Store interface {
	ListActive(ctx context.Context, userID string) ([]booking.Booking, error)
	ListAllActive(ctx context.Context) ([]booking.Booking, error)
	Create(ctx context.Context, userID string, date time.Time, serviceType booking.ServiceType) (*booking.Booking, error)
	Cancel(ctx context.Context, bookingID, userID string) error
}

// Service sequences eligibility checks and repository mutations. Every
// check runs against a fresh snapshot of the store: the cached list a
// client renders from is never trusted at the moment of mutation.
type Service struct {
	store   Store
	rules   booking.Rules
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewService creates the booking orchestrator. Metrics may be nil.
func NewService(store Store, rules booking.Rules, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if store == nil {
		panic("bookings: store cannot be nil")
	}
	if rules.LeadTime == 0 {
		rules = booking.DefaultRules()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, rules: rules, metrics: m, logger: logger}
}

// List returns the user's active bookings.
func (s *Service) List(ctx context.Context, userID string) ([]booking.Booking, error) {
	return s.store.ListActive(ctx, userID)
}

// Select runs the eligibility engine for a candidate slot and maps the
// decision onto the attempt state machine.
func (s *Service) Select(ctx context.Context, userID string, slot time.Time, serviceType booking.ServiceType, now time.Time) (*Attempt, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user required to select a slot", ErrValidation)
	}

	existing, err := s.store.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{
		State:       StateSlotSelected,
		UserID:      userID,
		Slot:        slot,
		ServiceType: serviceType,
	}
	attempt.Decision = s.rules.Evaluate(slot, existing, now)
	s.metrics.ObserveDecision(string(attempt.Decision.Verdict))

	switch attempt.Decision.Verdict {
	case booking.VerdictAllow:
		attempt.State = StateAllowed
	case booking.VerdictDailyConflict:
		attempt.State = StateConflictPrompt
		attempt.Message = "You already have a booking that day. Replace it?"
	case booking.VerdictWeeklyLimit:
		attempt.State = StateLimitPrompt
		attempt.Message = "You have reached two bookings this week. Replace one of them?"
	case booking.VerdictTooSoon:
		attempt.State = StateRejected
		attempt.Message = "Bookings need at least 30 minutes notice."
	case booking.VerdictPast:
		attempt.State = StateRejected
		attempt.Message = "That slot is in the past."
	}

	s.logger.Debug("slot selected",
		"user_id", userID,
		"slot", slot.Format(time.RFC3339),
		"verdict", attempt.Decision.Verdict,
	)
	return attempt, nil
}

// Confirm executes the direct-create path of an allowed attempt, then
// refetches so the caller returns to idle with consistent state.
func (s *Service) Confirm(ctx context.Context, attempt *Attempt) (*booking.Booking, error) {
	if attempt == nil {
		return nil, fmt.Errorf("%w: attempt required", ErrValidation)
	}
	if attempt.State != StateAllowed {
		return nil, fmt.Errorf("%w: state %s", ErrNotAllowed, attempt.State)
	}

	created, err := s.store.Create(ctx, attempt.UserID, attempt.Slot, attempt.ServiceType)
	if err != nil {
		s.metrics.ObserveMutation("create", "error")
		attempt.State = StateIdle
		return nil, err
	}
	s.metrics.ObserveMutation("create", "ok")

	s.refresh(ctx, attempt.UserID)
	attempt.State = StateIdle
	return created, nil
}

// Replace resolves a conflict or limit prompt: cancel the chosen existing
// booking, re-check eligibility against the post-cancellation set, then
// create. Cancel is awaited before create is attempted; when the create
// leg fails the user holds neither booking and the error says so.
func (s *Service) Replace(ctx context.Context, userID, cancelID string, slot time.Time, serviceType booking.ServiceType, now time.Time) (*booking.Booking, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user required to replace a booking", ErrValidation)
	}
	if cancelID == "" {
		return nil, fmt.Errorf("%w: booking to replace required", ErrValidation)
	}

	if err := s.store.Cancel(ctx, cancelID, userID); err != nil {
		s.metrics.ObserveMutation("replace", "cancel_error")
		return nil, err
	}

	existing, err := s.store.ListActive(ctx, userID)
	if err != nil {
		s.metrics.ObserveMutation("replace", "error")
		return nil, fmt.Errorf("%w: %v", ErrReplaceIncomplete, err)
	}
	decision := s.rules.Evaluate(slot, existing, now)
	s.metrics.ObserveDecision(string(decision.Verdict))
	if !decision.Allowed() {
		s.metrics.ObserveMutation("replace", "rejected")
		return nil, fmt.Errorf("%w: slot is no longer eligible (%s)", ErrReplaceIncomplete, decision.Verdict)
	}

	created, err := s.store.Create(ctx, userID, slot, serviceType)
	if err != nil {
		s.metrics.ObserveMutation("replace", "error")
		s.logger.Error("replace left user without a booking",
			"user_id", userID,
			"cancelled_id", cancelID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrReplaceIncomplete, err)
	}
	s.metrics.ObserveMutation("replace", "ok")

	s.refresh(ctx, userID)
	return created, nil
}

// Cancel removes one of the user's bookings.
func (s *Service) Cancel(ctx context.Context, userID, bookingID string) error {
	if err := s.store.Cancel(ctx, bookingID, userID); err != nil {
		s.metrics.ObserveMutation("cancel", "error")
		return err
	}
	s.metrics.ObserveMutation("cancel", "ok")
	s.refresh(ctx, userID)
	return nil
}

// NextAvailable reports the first bookable slot system-wide.
func (s *Service) NextAvailable(ctx context.Context, now time.Time) (*booking.NextSlot, error) {
	all, err := s.store.ListAllActive(ctx)
	if err != nil {
		return nil, err
	}
	return booking.NextAvailable(all, now), nil
}

// AllActive exposes the full active booking set for analytics.
func (s *Service) AllActive(ctx context.Context) ([]booking.Booking, error) {
	return s.store.ListAllActive(ctx)
}

// refresh refetches the user's bookings after a mutation so subsequent
// eligibility checks in this session see storage's latest state. The
// result is discarded; the fetch is the point.
func (s *Service) refresh(ctx context.Context, userID string) {
	if _, err := s.store.ListActive(ctx, userID); err != nil {
		s.logger.Debug("post-mutation refresh failed", "error", err, "user_id", userID)
	}
}
