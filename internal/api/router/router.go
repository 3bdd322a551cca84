package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vidaplena/clinic-portal/internal/http/handlers"
	httpmiddleware "github.com/vidaplena/clinic-portal/internal/http/middleware"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *handlers.AppointmentsHandler
	BookingHandler      *handlers.BookingHandler
	StatsHandler        *handlers.StatsHandler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
}

// New creates a Chi router with all routes configured.
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
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Portal API, behind forwarded session credentials
	r.Group(func(apiGroup chi.Router) {
		apiGroup.Use(httpmiddleware.RequireCredentials)

		if cfg.AppointmentsHandler != nil {
			apiGroup.Get("/api/appointments", cfg.AppointmentsHandler.List)
			apiGroup.Post("/api/appointments/{id}/{action}", cfg.AppointmentsHandler.Action)
		}
		if cfg.BookingHandler != nil {
			apiGroup.Get("/api/booking/bootstrap", cfg.BookingHandler.Bootstrap)
			apiGroup.Get("/api/booking/therapists/{id}/slots", cfg.BookingHandler.Slots)
			apiGroup.Post("/api/booking/appointments", cfg.BookingHandler.Create)
		}
		if cfg.StatsHandler != nil {
			apiGroup.Get("/api/stats", cfg.StatsHandler.GetSnapshot)
		}
	})

	return r
}
