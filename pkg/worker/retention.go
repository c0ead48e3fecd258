package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/repairhub/notify/internal/repository"
	"github.com/repairhub/notify/pkg/logger"
)

// RetentionWorker prunes terminal delivery-log rows past the retention
// window. Notifications themselves are never deleted here; their cleanup is
// an external batch job.
type RetentionWorker struct {
	repo          repository.DeliveryLogRepository
	retentionDays int
	sweepInterval time.Duration
	logger        *logger.Logger
}

func NewRetentionWorker(repo repository.DeliveryLogRepository, retentionDays int, sweepInterval time.Duration, l *logger.Logger) *RetentionWorker {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	// NewTicker panics on a non-positive interval.
	if sweepInterval <= 0 {
		sweepInterval = 6 * time.Hour
	}
	return &RetentionWorker{
		repo:          repo,
		retentionDays: retentionDays,
		sweepInterval: sweepInterval,
		logger:        l,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Error(err, "delivery log retention sweep failed")
			}
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune delivery logs: %w", err)
	}

	if rows > 0 {
		w.logger.Info("pruned delivery logs", "rows", rows, "cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}
