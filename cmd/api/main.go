package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/letter-api/internal/config"
	"github.com/jwalitptl/letter-api/internal/email"
	authHandler "github.com/jwalitptl/letter-api/internal/handler/auth"
	"github.com/jwalitptl/letter-api/internal/handler/health"
	letterHandler "github.com/jwalitptl/letter-api/internal/handler/letter"
	notificationHandler "github.com/jwalitptl/letter-api/internal/handler/notification"
	promHandler "github.com/jwalitptl/letter-api/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/letter-api/internal/handler/user"
	"github.com/jwalitptl/letter-api/internal/middleware"
	"github.com/jwalitptl/letter-api/internal/repository/postgres"
	"github.com/jwalitptl/letter-api/internal/router"
	authService "github.com/jwalitptl/letter-api/internal/service/auth"
	letterService "github.com/jwalitptl/letter-api/internal/service/letter"
	notificationService "github.com/jwalitptl/letter-api/internal/service/notification"
	"github.com/jwalitptl/letter-api/internal/service/recipient"
	userService "github.com/jwalitptl/letter-api/internal/service/user"
	"github.com/jwalitptl/letter-api/pkg/auth"
	"github.com/jwalitptl/letter-api/pkg/logger"
	"github.com/jwalitptl/letter-api/pkg/messaging"
	"github.com/jwalitptl/letter-api/pkg/messaging/redis"
	"github.com/jwalitptl/letter-api/pkg/metrics"
	"github.com/jwalitptl/letter-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{Level: logger.ParseLevel(cfg.LogLevel)})
	appLogger.SetGlobal()
	if logger.ParseLevel(cfg.LogLevel) > logger.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := postgres.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry, "letter")

	// Repositories
	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	letterRepo := postgres.NewLetterRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)
	resetRepo := postgres.NewPasswordResetRepository(base)

	broker := newBroker(cfg, appLogger)
	defer broker.Close()

	var mailer email.Sender
	if cfg.SMTP.Enabled {
		mailer = email.NewSMTPSender(cfg.SMTP)
	} else {
		log.Warn().Msg("smtp disabled, outgoing letters are only logged")
		mailer = email.NewLogSender()
	}

	// Services
	resolver := recipient.NewResolver(userRepo, recipient.Config{
		CacheTTL:        cfg.Resolver.CacheTTL,
		CleanupInterval: cfg.Resolver.CleanupInterval,
		DedupeCC:        cfg.Letters.DedupeCC,
	})
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(security.DefaultCost)
	authSvc := authService.NewService(userRepo, hasher, jwtSvc)
	userSvc := userService.NewService(userRepo, resetRepo, mailer, resolver, hasher, userService.Config{
		TokenTTL: cfg.Reset.TokenTTL,
		ResetURL: cfg.Reset.URL,
		From:     email.Address{Name: cfg.Reset.FromName, Email: cfg.Reset.FromEmail},
	})
	notificationSvc := notificationService.NewService(notificationRepo, broker, appMetrics)
	letterSvc := letterService.NewService(letterRepo, resolver, notificationSvc, mailer, appMetrics, letterService.Config{
		ReplyOnReject: cfg.Letters.ReplyOnReject,
	})

	// HTTP
	authMiddleware := middleware.NewAuthMiddleware(authSvc)
	r := router.NewRouter(authMiddleware, router.Handlers{
		Health:  health.NewHandler(db),
		Metrics: promHandler.New(registry),
		Auth:    authHandler.NewHandler(authSvc),
		Users:   userHandler.NewHandler(userSvc, authMiddleware),
		Letters: letterHandler.NewHandler(letterSvc, authMiddleware, letterHandler.Config{
			AllowedContentTypes: cfg.Letters.AllowedContentTypes,
			MaxAttachmentBytes:  cfg.Letters.MaxAttachmentBytes,
		}),
		Notifications: notificationHandler.NewHandler(notificationSvc, authMiddleware),
	}, router.RouterConfig{
		RateLimit: rate.Limit(cfg.RateLimit.RPS),
		RateBurst: cfg.RateLimit.Burst,
		CORSConfig: func() middleware.CORSConfig {
			c := middleware.DefaultCORSConfig()
			c.AllowOrigins = cfg.CORS.AllowedOrigins
			return c
		}(),
		Timeout:       cfg.Server.Timeout(),
		MaxBodyBytes:  cfg.Server.MaxUploadBytes,
		MetricsPrefix: "letter_http",
		Registerer:    registry,
	})
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

// newBroker connects to redis. The API keeps running without in-app events
// when redis is unreachable.
func newBroker(cfg *config.Config, appLogger *logger.Logger) messaging.Broker {
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger.Zerolog())
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, notification events disabled")
		return messaging.NoopBroker{}
	}
	return broker
}
