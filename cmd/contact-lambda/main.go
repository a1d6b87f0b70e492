// The contact-lambda binary serves the public contact form as a
// standalone serverless function, for deployments where the main API is
// not exposed to anonymous traffic.
package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	appconfig "github.com/mwestberg/physiobook/internal/config"
	"github.com/mwestberg/physiobook/internal/http/handlers"
	"github.com/mwestberg/physiobook/internal/notify"
	"github.com/mwestberg/physiobook/pkg/logging"
)

type contactMailer interface {
	ContactMessage(ctx context.Context, recipient, fromName, fromEmail, message string) error
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
	"Content-Type":                 "application/json",
}

func respond(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    corsHeaders,
		Body:       body,
	}
}

func handle(ctx context.Context, recipient string, mailer contactMailer, logger *logging.Logger, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch req.HTTPMethod {
	case http.MethodOptions:
		return respond(http.StatusNoContent, ""), nil
	case http.MethodPost:
	default:
		return respond(http.StatusMethodNotAllowed, `{"error":"method not allowed"}`), nil
	}

	var form handlers.ContactRequest
	if err := json.Unmarshal([]byte(req.Body), &form); err != nil {
		return respond(http.StatusBadRequest, `{"error":"invalid request body"}`), nil
	}
	if msg := form.Validate(); msg != "" {
		body, _ := json.Marshal(map[string]string{"error": msg})
		return respond(http.StatusBadRequest, string(body)), nil
	}

	if err := mailer.ContactMessage(ctx, recipient, form.Name, form.Email, form.Message); err != nil {
		logger.Error("contact form delivery failed", "error", err)
		return respond(http.StatusInternalServerError, `{"error":"failed to send message"}`), nil
	}

	logger.Info("contact form submitted", "from", form.Email)
	return respond(http.StatusOK, `{"status":"sent"}`), nil
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	var sender notify.EmailSender
	if s := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); s != nil {
		sender = s
	} else {
		sender = notify.NewStubEmailSender(logger)
	}
	mailer := notify.NewService(nil, sender, nil, logger)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return handle(ctx, cfg.ContactRecipient, mailer, logger, req)
	})
}
