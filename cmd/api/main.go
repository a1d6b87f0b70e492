package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mwestberg/physiobook/cmd/mainconfig"
	"github.com/mwestberg/physiobook/internal/api/router"
	"github.com/mwestberg/physiobook/internal/booking"
	"github.com/mwestberg/physiobook/internal/bookings"
	"github.com/mwestberg/physiobook/internal/clinic"
	appconfig "github.com/mwestberg/physiobook/internal/config"
	"github.com/mwestberg/physiobook/internal/http/handlers"
	"github.com/mwestberg/physiobook/internal/notify"
	"github.com/mwestberg/physiobook/internal/observability/metrics"
	"github.com/mwestberg/physiobook/internal/schedule"
	"github.com/mwestberg/physiobook/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting physiobook API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	redisClient := mainconfig.NewRedisClient(cfg)
	var (
		watcher    *bookings.Watcher
		notifier   bookings.Notifier
		schedStore *schedule.Store
	)
	if redisClient != nil {
		watcher = bookings.NewWatcher(redisClient, logger)
		notifier = watcher
		schedStore = schedule.NewStore(redisClient)
	} else {
		logger.Warn("redis not configured; change notifications and the admin schedule are disabled")
	}

	repo := bookings.NewRepository(dynamoClient, cfg.BookingsTable, notifier, logger)
	rules := booking.Rules{LeadTime: booking.LeadTime, WeeklyLimit: cfg.WeeklyBookingLimit}
	bookingSvc := bookings.NewService(repo, rules, bookingMetrics, logger)

	// Email: queue when configured, inline otherwise.
	sender := buildEmailSender(cfg, awsCfg, logger)
	var queue notify.Queue
	if cfg.EmailQueueURL != "" {
		queue = notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.EmailQueueURL)
	}
	notifySvc := notify.NewService(queue, sender, bookingMetrics, logger)

	bookingHandler := handlers.NewBookingHandler(bookingSvc, schedStore, watcher, notifySvc, logger)
	contactHandler := handlers.NewContactHandler(notifySvc, cfg.ContactRecipient, logger)
	statsHandler := clinic.NewStatsHandler(clinic.NewStatsReporter(repo), logger)

	var scheduleHandler *schedule.Handler
	if schedStore != nil {
		scheduleHandler = schedule.NewHandler(schedStore, logger)
	}

	r := router.New(&router.Config{
		Logger:          logger,
		BookingHandler:  bookingHandler,
		ContactHandler:  contactHandler,
		ScheduleHandler: scheduleHandler,
		StatsHandler:    statsHandler,
		Metrics:         bookingMetrics,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),

		AuthSecret:         cfg.AuthSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
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
