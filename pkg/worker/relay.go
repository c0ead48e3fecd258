package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/repairhub/notify/internal/repository"
	"github.com/repairhub/notify/pkg/logger"
	"github.com/repairhub/notify/pkg/metrics"
	"github.com/repairhub/notify/pkg/queue"
)

type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// TaskRelay drains the delivery outbox into the queue. The creation path
// hands tasks off itself when Redis is up; the relay picks up whatever that
// fast path left behind, so a committed notification always gets its
// delivery attempts.
type TaskRelay struct {
	taskRepo  repository.DeliveryTaskRepository
	deliveryQ queue.Queue
	config    RelayConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewTaskRelay(
	taskRepo repository.DeliveryTaskRepository,
	deliveryQ queue.Queue,
	config RelayConfig,
	l *logger.Logger,
	m *metrics.Metrics,
) *TaskRelay {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}

	return &TaskRelay{
		taskRepo:  taskRepo,
		deliveryQ: deliveryQ,
		config:    config,
		logger:    l,
		metrics:   m,
	}
}

// Start runs the relay loop until the context is cancelled. Blocks.
func (r *TaskRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.logger.Info("starting delivery task relay",
		"batch_size", r.config.BatchSize, "poll_interval", r.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("delivery task relay stopped")
			return
		case <-ticker.C:
			if err := r.RelayBatch(ctx); err != nil {
				r.logger.Error(err, "failed to relay delivery tasks")
			}
		}
	}
}

// RelayBatch moves one batch of outbox rows into the queue, deleting each
// row only after the queue accepted it. An enqueue failure keeps the row for
// the next tick; a delete failure means one extra enqueue, which
// at-least-once delivery absorbs.
func (r *TaskRelay) RelayBatch(ctx context.Context) error {
	tasks, err := r.taskRepo.PendingBatch(ctx, r.config.BatchSize)
	if err != nil {
		r.metrics.DatabaseOperations.WithLabelValues("relay_fetch", "error").Inc()
		return fmt.Errorf("failed to fetch pending tasks: %w", err)
	}
	r.metrics.DatabaseOperations.WithLabelValues("relay_fetch", "success").Inc()

	for _, task := range tasks {
		if err := r.deliveryQ.Enqueue(ctx, task); err != nil {
			r.metrics.DeliveryFailure.WithLabelValues(string(task.Channel), "enqueue_failed").Inc()
			r.logger.Warn("failed to enqueue outbox task, will retry",
				"notification_id", task.NotificationID.String(),
				"channel", string(task.Channel), "error", err.Error())
			continue
		}

		if err := r.taskRepo.Delete(ctx, task.ID); err != nil {
			r.metrics.DatabaseOperations.WithLabelValues("relay_delete", "error").Inc()
			r.logger.Error(err, "failed to delete relayed task",
				"notification_id", task.NotificationID.String(), "channel", string(task.Channel))
			continue
		}
		r.metrics.DatabaseOperations.WithLabelValues("relay_delete", "success").Inc()
	}

	return nil
}
