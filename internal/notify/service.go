package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/internal/observability/metrics"
	"github.com/mwestberg/physiobook/pkg/logging"
)

// EmailJob is the queue payload: a template name for metrics plus the
// fully rendered message. The worker never re-renders.
type EmailJob struct {
	Template string       `json:"template"`
	Message  EmailMessage `json:"message"`
}

// Service renders booking emails and hands them to the queue. Without a
// queue it falls back to sending inline, which keeps single-process
// deployments working.
type Service struct {
	queue   Queue
	sender  EmailSender
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

// NewService creates the notification service. Either queue or sender may
// be nil, not both.
func NewService(queue Queue, sender EmailSender, m *metrics.BookingMetrics, logger *logging.Logger) *Service {
	if queue == nil && sender == nil {
		panic("notify: service needs a queue or a sender")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{queue: queue, sender: sender, metrics: m, logger: logger}
}

// BookingConfirmed notifies the user their booking was created.
func (s *Service) BookingConfirmed(ctx context.Context, to, toName string, b booking.Booking) error {
	return s.dispatch(ctx, "booking_confirmation", BookingConfirmation(to, toName, b))
}

// BookingCancelled notifies the user their booking was cancelled.
func (s *Service) BookingCancelled(ctx context.Context, to, toName string, b booking.Booking) error {
	return s.dispatch(ctx, "booking_cancellation", BookingCancellation(to, toName, b))
}

// VerifyAddress sends the signup verification link.
func (s *Service) VerifyAddress(ctx context.Context, to, toName, link string) error {
	return s.dispatch(ctx, "verification", Verification(to, toName, link))
}

// ContactMessage forwards a contact-form submission to the clinic inbox.
func (s *Service) ContactMessage(ctx context.Context, recipient, fromName, fromEmail, message string) error {
	return s.dispatch(ctx, "contact", ContactNotification(recipient, fromName, fromEmail, message))
}

func (s *Service) dispatch(ctx context.Context, template string, msg EmailMessage) error {
	if msg.To == "" {
		s.logger.Debug("skipping email without recipient", "template", template)
		return nil
	}

	if s.queue == nil {
		if err := s.sender.Send(ctx, msg); err != nil {
			s.metrics.ObserveEmail(template, "error")
			return err
		}
		s.metrics.ObserveEmail(template, "sent")
		return nil
	}

	payload, err := json.Marshal(EmailJob{Template: template, Message: msg})
	if err != nil {
		return fmt.Errorf("notify: marshal email job: %w", err)
	}
	if err := s.queue.Send(ctx, string(payload)); err != nil {
		s.metrics.ObserveEmail(template, "enqueue_error")
		return err
	}
	s.metrics.ObserveEmail(template, "enqueued")
	s.logger.Debug("email job enqueued", "template", template, "to", msg.To)
	return nil
}
