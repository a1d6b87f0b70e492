package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mwestberg/physiobook/pkg/logging"
)

// ContactMailer forwards contact-form submissions to the clinic inbox.
type ContactMailer interface {
	ContactMessage(ctx context.Context, recipient, fromName, fromEmail, message string) error
}

// ContactHandler serves the public contact form endpoint.
type ContactHandler struct {
	mailer    ContactMailer
	recipient string
	logger    *logging.Logger
}

// NewContactHandler creates the contact form handler.
func NewContactHandler(mailer ContactMailer, recipient string, logger *logging.Logger) *ContactHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ContactHandler{mailer: mailer, recipient: recipient, logger: logger}
}

// ContactRequest is a contact-form submission.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Validate checks required fields.
func (req ContactRequest) Validate() string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return "name is required"
	case strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@"):
		return "a valid email is required"
	case strings.TrimSpace(req.Message) == "":
		return "message is required"
	default:
		return ""
	}
}

// Submit handles POST /api/contact.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if h.mailer == nil || h.recipient == "" {
		http.Error(w, `{"error":"contact form not configured"}`, http.StatusServiceUnavailable)
		return
	}

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if msg := req.Validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	if err := h.mailer.ContactMessage(r.Context(), h.recipient, req.Name, req.Email, req.Message); err != nil {
		h.logger.Error("contact form delivery failed", "error", err)
		http.Error(w, `{"error":"failed to send message"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("contact form submitted", "from", req.Email)
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
