package notify

import (
	"fmt"

	"github.com/mwestberg/physiobook/internal/booking"
)

const slotDisplayLayout = "Monday, January 2 2006 at 15:04"

func serviceName(svc booking.ServiceType) string {
	switch svc {
	case booking.ServiceMassage:
		return "Massage"
	default:
		return "Physiotherapy"
	}
}

// BookingConfirmation builds the email sent when a booking is created.
func BookingConfirmation(to, toName string, b booking.Booking) EmailMessage {
	when := b.Date.Format(slotDisplayLayout)
	svc := serviceName(b.ServiceType)
	return EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: fmt.Sprintf("Booking confirmed: %s on %s", svc, b.Date.Format("Jan 2")),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour %s appointment is booked for %s.\n\nIf you need to change it, cancel in the app and pick a new slot. Bookings can be changed up to 30 minutes before the start time.\n\nPhysioBook Clinic",
			toName, svc, when,
		),
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your <strong>%s</strong> appointment is booked for <strong>%s</strong>.</p><p>If you need to change it, cancel in the app and pick a new slot. Bookings can be changed up to 30 minutes before the start time.</p><p>PhysioBook Clinic</p>",
			toName, svc, when,
		),
	}
}

// BookingCancellation builds the email sent when a booking is cancelled.
func BookingCancellation(to, toName string, b booking.Booking) EmailMessage {
	when := b.Date.Format(slotDisplayLayout)
	svc := serviceName(b.ServiceType)
	return EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: fmt.Sprintf("Booking cancelled: %s on %s", svc, b.Date.Format("Jan 2")),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour %s appointment on %s has been cancelled. The slot is available again for other clients.\n\nPhysioBook Clinic",
			toName, svc, when,
		),
	}
}

// Verification builds the address-verification email sent at signup.
func Verification(to, toName, link string) EmailMessage {
	return EmailMessage{
		To:      to,
		ToName:  toName,
		Subject: "Verify your PhysioBook email address",
		Body: fmt.Sprintf(
			"Hi %s,\n\nConfirm your email address to start booking appointments:\n\n%s\n\nIf you did not sign up, ignore this message.\n\nPhysioBook Clinic",
			toName, link,
		),
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>Confirm your email address to start booking appointments:</p><p><a href=%q>Verify email</a></p><p>If you did not sign up, ignore this message.</p><p>PhysioBook Clinic</p>",
			toName, link,
		),
	}
}

// ContactNotification builds the email that forwards a contact-form
// submission to the clinic inbox.
func ContactNotification(recipient, fromName, fromEmail, message string) EmailMessage {
	return EmailMessage{
		To:      recipient,
		ToName:  "PhysioBook Clinic",
		Subject: fmt.Sprintf("Contact form: message from %s", fromName),
		Body: fmt.Sprintf(
			"From: %s <%s>\n\n%s",
			fromName, fromEmail, message,
		),
	}
}
