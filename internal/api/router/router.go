// Package router wires the HTTP surface: public endpoints, the
// authenticated booking API, and the admin group.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mwestberg/physiobook/internal/clinic"
	"github.com/mwestberg/physiobook/internal/http/handlers"
	httpmiddleware "github.com/mwestberg/physiobook/internal/http/middleware"
	"github.com/mwestberg/physiobook/internal/observability/metrics"
	"github.com/mwestberg/physiobook/internal/schedule"
	"github.com/mwestberg/physiobook/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	BookingHandler  *handlers.BookingHandler
	ContactHandler  *handlers.ContactHandler
	ScheduleHandler *schedule.Handler
	StatsHandler    *clinic.StatsHandler
	Metrics         *metrics.BookingMetrics
	MetricsHandler  http.Handler

	AuthSecret         string
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.Metrics))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.ContactHandler != nil {
			public.Post("/api/contact", cfg.ContactHandler.Submit)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated booking API.
	if cfg.BookingHandler != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(httpmiddleware.Auth(cfg.AuthSecret))

			api.Get("/calendar", cfg.BookingHandler.Calendar)
			api.Route("/bookings", func(b chi.Router) {
				b.Get("/", cfg.BookingHandler.List)
				b.Post("/", cfg.BookingHandler.Create)
				b.Post("/select", cfg.BookingHandler.Select)
				b.Post("/replace", cfg.BookingHandler.Replace)
				b.Get("/next-available", cfg.BookingHandler.NextAvailable)
				b.Get("/watch", cfg.BookingHandler.Watch)
				b.Delete("/{id}", cfg.BookingHandler.Cancel)
			})
		})
	}

	// Admin group: schedule management and stats.
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.Auth(cfg.AuthSecret))
		admin.Use(httpmiddleware.RequireAdmin)

		if cfg.ScheduleHandler != nil {
			admin.Get("/schedule", cfg.ScheduleHandler.GetWeek)
			admin.Put("/schedule/slot", cfg.ScheduleHandler.SetSlot)
		}
		if cfg.StatsHandler != nil {
			admin.Get("/stats", cfg.StatsHandler.GetStats)
		}
	})

	return r
}
