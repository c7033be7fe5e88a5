package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jmoiron/sqlx"
	"github.com/jwalitptl/letter-api/internal/config"
	"github.com/jwalitptl/letter-api/internal/repository/postgres"
	"github.com/jwalitptl/letter-api/internal/worker"
	"github.com/jwalitptl/letter-api/pkg/logger"
	"github.com/jwalitptl/letter-api/pkg/messaging"
	"github.com/jwalitptl/letter-api/pkg/messaging/redis"
	"github.com/jwalitptl/letter-api/pkg/metrics"
)

func setupHealthCheck(port int, db *sqlx.DB, registry *prometheus.Registry, logger *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{Level: logger.ParseLevel(cfg.LogLevel)})
	appLogger.SetGlobal()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	appMetrics := metrics.NewMetrics(registry, "letter")

	var broker messaging.Broker = messaging.NoopBroker{}
	if b, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger.Zerolog()); err != nil {
		appLogger.Warn("redis unavailable, pending reminders will not be published", "error", err.Error())
	} else {
		broker = b
	}
	defer broker.Close()

	base := postgres.NewBaseRepository(db)
	reminder := worker.NewPendingReminderWorker(
		postgres.NewLetterRepository(base),
		broker,
		appMetrics,
		appLogger,
		cfg.Worker.ReminderInterval,
		cfg.Worker.PendingReminderAge,
	)
	cleanup := worker.NewNotificationCleanupWorker(
		postgres.NewNotificationRepository(base),
		cfg.Worker.NotificationRetentionDays,
		cfg.Worker.CleanupInterval,
		appMetrics,
		appLogger,
	)

	healthSrv := setupHealthCheck(cfg.Worker.HealthPort, db, registry, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reminder.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "health server shutdown failed")
	}
}
