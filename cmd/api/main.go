package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/repairhub/notify/internal/config"
	adminHandler "github.com/repairhub/notify/internal/handler/admin"
	healthHandler "github.com/repairhub/notify/internal/handler/health"
	notificationHandler "github.com/repairhub/notify/internal/handler/notification"
	promHandler "github.com/repairhub/notify/internal/handler/prometheus"
	"github.com/repairhub/notify/internal/middleware"
	"github.com/repairhub/notify/internal/repository/postgres"
	"github.com/repairhub/notify/internal/router"
	notificationService "github.com/repairhub/notify/internal/service/notification"
	templateService "github.com/repairhub/notify/internal/service/template"
	"github.com/repairhub/notify/pkg/auth"
	"github.com/repairhub/notify/pkg/logger"
	"github.com/repairhub/notify/pkg/metrics"
	"github.com/repairhub/notify/pkg/queue/redisq"
	"github.com/repairhub/notify/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	l := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database.ToDBConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	deliveryQ, err := redisq.New(cfg.Redis.ToQueueConfig(), &l.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer deliveryQ.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	notifRepo := postgres.NewNotificationRepository(baseRepo)
	taskRepo := postgres.NewDeliveryTaskRepository(baseRepo)
	templateRepo := postgres.NewTemplateRepository(baseRepo)
	prefRepo := postgres.NewPreferenceRepository(baseRepo)
	logRepo := postgres.NewDeliveryLogRepository(baseRepo)

	m := metrics.NewMetrics("repairhub", "notify")

	// Initialize services
	resolver := templateService.NewResolver(templateRepo)
	notifSvc := notificationService.NewService(
		notifRepo,
		taskRepo,
		prefRepo,
		logRepo,
		resolver,
		deliveryQ,
		m,
		l,
	)

	// Auth: service writes use the bcrypt-hashed API key, recipient reads
	// use short-lived JWTs.
	authMiddleware := middleware.NewAuthMiddleware(
		security.NewBcryptVerifier(0),
		cfg.Auth.APIKeyHash,
		auth.NewTokenService(cfg.Auth.TokenSecret),
	)

	// Initialize handlers
	notifH := notificationHandler.NewHandler(notifSvc, authMiddleware)
	adminH := adminHandler.NewHandler(deliveryQ, resolver, authMiddleware)
	healthH := healthHandler.NewHandler(db, deliveryQ.Client())
	promH := promHandler.New()

	r := router.NewRouter(notifH, adminH, healthH, promH, router.Config{
		RateLimit:      rate.Limit(cfg.API.RateLimit),
		RateBurst:      cfg.API.RateBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     middleware.DefaultCORSConfig(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	l.ZL.Info().Int("port", cfg.Server.Port).Msg("notification API listening")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.ZL.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	l.ZL.Info().Msg("server exited properly")
}
