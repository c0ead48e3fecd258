package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/repairhub/notify/internal/config"
	"github.com/repairhub/notify/internal/repository/postgres"
	"github.com/repairhub/notify/internal/transport"
	"github.com/repairhub/notify/internal/transport/email"
	"github.com/repairhub/notify/internal/transport/sms"
	"github.com/repairhub/notify/pkg/logger"
	"github.com/repairhub/notify/pkg/metrics"
	"github.com/repairhub/notify/pkg/queue/redisq"
	"github.com/repairhub/notify/pkg/ratelimit"
	"github.com/repairhub/notify/pkg/worker"
)

// setupHealthCheck serves liveness on a side port so orchestrators can
// check the worker without it exposing the API surface.
func setupHealthCheck(l *logger.Logger, q *redisq.RedisQueue) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := q.Client().Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			l.ZL.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

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

	baseRepo := postgres.NewBaseRepository(db)
	notifRepo := postgres.NewNotificationRepository(baseRepo)
	taskRepo := postgres.NewDeliveryTaskRepository(baseRepo)
	prefRepo := postgres.NewPreferenceRepository(baseRepo)
	logRepo := postgres.NewDeliveryLogRepository(baseRepo)

	m := metrics.NewMetrics("repairhub", "notify_worker")
	limiter := ratelimit.NewChannelLimiter(cfg.RateLimits.ToBuckets())

	adapters := []transport.Adapter{
		email.NewAdapter(cfg.SMTP.ToAdapterConfig()),
		sms.NewAdapter(cfg.SMS.ToAdapterConfig()),
	}

	deliveryWorker := worker.NewDeliveryWorker(
		deliveryQ,
		adapters,
		notifRepo,
		logRepo,
		prefRepo,
		limiter,
		cfg.Delivery.ToWorkerConfig(),
		l,
		m,
	)
	taskRelay := worker.NewTaskRelay(
		taskRepo,
		deliveryQ,
		cfg.Relay.ToRelayConfig(),
		l,
		m,
	)
	retentionWorker := worker.NewRetentionWorker(
		logRepo,
		cfg.Retention.Days,
		cfg.Retention.SweepInterval,
		l,
	)

	setupHealthCheck(l, deliveryQ)

	ctx, cancel := context.WithCancel(context.Background())
	go deliveryWorker.Start(ctx)
	go taskRelay.Start(ctx)
	go retentionWorker.Start(ctx)
	l.ZL.Info().Msg("delivery worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.ZL.Info().Msg("shutting down worker...")
	cancel()

	// Give in-flight sends a moment to record their outcome before exit.
	time.Sleep(2 * time.Second)
	l.ZL.Info().Msg("worker exited")
}
