package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vidaplena/clinic-portal/internal/actions"
	clinicapi "github.com/vidaplena/clinic-portal/internal/api"
	"github.com/vidaplena/clinic-portal/internal/api/router"
	"github.com/vidaplena/clinic-portal/internal/appointment"
	"github.com/vidaplena/clinic-portal/internal/availability"
	appconfig "github.com/vidaplena/clinic-portal/internal/config"
	"github.com/vidaplena/clinic-portal/internal/http/handlers"
	"github.com/vidaplena/clinic-portal/internal/observability/metrics"
	"github.com/vidaplena/clinic-portal/pkg/logging"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-portal API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.ClinicAPIBaseURL == "" {
		logger.Error("CLINIC_API_BASE_URL is required")
		os.Exit(1)
	}

	portalMetrics := metrics.NewPortalMetrics(prometheus.DefaultRegisterer)

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	bootstrapCache := availability.NewBootstrapCache(redisClient, cfg.BootstrapTTL)

	clinicClient := clinicapi.New(cfg.ClinicAPIBaseURL, cfg.ClinicAPITimeout, logger)
	orchestrator := actions.NewOrchestrator(clinicClient, appointment.ChannelAdmin, logger, portalMetrics)

	appointmentsHandler := handlers.NewAppointmentsHandler(orchestrator, logger)
	bookingHandler := handlers.NewBookingHandler(clinicClient, bootstrapCache, portalMetrics, logger, cfg.DefaultPatientZone)
	statsHandler := handlers.NewStatsHandler(prometheus.DefaultGatherer, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		AppointmentsHandler: appointmentsHandler,
		BookingHandler:      bookingHandler,
		StatsHandler:        statsHandler,
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
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

	if err := redisClient.Close(); err != nil {
		logger.Warn("redis close failed", "error", err)
	}

	logger.Info("server stopped")
}
