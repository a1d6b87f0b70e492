package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/mwestberg/physiobook/cmd/mainconfig"
	appconfig "github.com/mwestberg/physiobook/internal/config"
	"github.com/mwestberg/physiobook/internal/notify"
	"github.com/mwestberg/physiobook/internal/observability/metrics"
	"github.com/mwestberg/physiobook/pkg/logging"
)

const workerCount = 2

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting physiobook notify worker", "env", cfg.Env)

	if cfg.EmailQueueURL == "" {
		logger.Error("EMAIL_QUEUE_URL is required for the notify worker")
		os.Exit(1)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	queue := notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EmailQueueURL)
	sender := buildEmailSender(cfg, awsCfg, logger)
	bookingMetrics := metrics.NewBookingMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := notify.NewWorker(queue, sender, bookingMetrics, logger, notify.WithWorkerCount(workerCount))
	worker.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down notify worker...")

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("notify worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("notify worker shutdown timed out")
	}
}

func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("email provider not configured, using stub sender", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}
