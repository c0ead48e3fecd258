package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
	"github.com/repairhub/notify/internal/transport"
	apperrors "github.com/repairhub/notify/pkg/errors"
	"github.com/repairhub/notify/pkg/logger"
	"github.com/repairhub/notify/pkg/metrics"
	"github.com/repairhub/notify/pkg/queue"
	"github.com/repairhub/notify/pkg/ratelimit"
)

type DeliveryConfig struct {
	// PoolSize is the number of concurrent workers per channel.
	PoolSize    int
	MaxAttempts int

	BackoffBase time.Duration
	BackoffCap  time.Duration

	ClaimBlock        time.Duration
	VisibilityTimeout time.Duration
	ReapInterval      time.Duration
	DepthInterval     time.Duration

	// AutoDisableAfter is the consecutive permanent-failure streak that
	// flips a recipient's channel opt-in off. Zero disables the feedback.
	AutoDisableAfter int
}

// DeliveryWorker drains the delivery queue: claim, rate-limit, send, record.
// Each task reaches a terminal state within MaxAttempts tries; transient
// failures go back to the queue with a delay instead of occupying a worker.
type DeliveryWorker struct {
	queue     queue.Queue
	adapters  map[model.Channel]transport.Adapter
	notifRepo repository.NotificationRepository
	logRepo   repository.DeliveryLogRepository
	prefRepo  repository.PreferenceRepository
	limiter   *ratelimit.ChannelLimiter
	config    DeliveryConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewDeliveryWorker(
	q queue.Queue,
	adapters []transport.Adapter,
	notifRepo repository.NotificationRepository,
	logRepo repository.DeliveryLogRepository,
	prefRepo repository.PreferenceRepository,
	limiter *ratelimit.ChannelLimiter,
	config DeliveryConfig,
	l *logger.Logger,
	m *metrics.Metrics,
) *DeliveryWorker {
	if config.PoolSize <= 0 {
		config.PoolSize = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 30 * time.Second
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = 10 * time.Minute
	}
	if config.ClaimBlock <= 0 {
		config.ClaimBlock = 5 * time.Second
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 2 * time.Minute
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = 30 * time.Second
	}
	if config.DepthInterval <= 0 {
		config.DepthInterval = 15 * time.Second
	}

	byChannel := make(map[model.Channel]transport.Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}

	return &DeliveryWorker{
		queue:     q,
		adapters:  byChannel,
		notifRepo: notifRepo,
		logRepo:   logRepo,
		prefRepo:  prefRepo,
		limiter:   limiter,
		config:    config,
		logger:    l,
		metrics:   m,
	}
}

// Start runs the worker pool until the context is cancelled. Blocks.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.logger.Info("starting delivery workers",
		"pool_size", w.config.PoolSize, "channels", len(w.adapters))

	var wg sync.WaitGroup
	for ch := range w.adapters {
		for i := 0; i < w.config.PoolSize; i++ {
			wg.Add(1)
			go func(ch model.Channel) {
				defer wg.Done()
				w.runLoop(ctx, ch)
			}(ch)
		}

		wg.Add(1)
		go func(ch model.Channel) {
			defer wg.Done()
			w.runMaintenance(ctx, ch)
		}(ch)
	}
	wg.Wait()

	w.logger.Info("delivery workers stopped")
}

func (w *DeliveryWorker) runLoop(ctx context.Context, ch model.Channel) {
	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := w.queue.Claim(ctx, ch, w.config.ClaimBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error(err, "failed to claim delivery task", "channel", string(ch))
			sleep(ctx, time.Second)
			continue
		}
		if claimed == nil {
			// Nothing due, or the channel is paused.
			sleep(ctx, 250*time.Millisecond)
			continue
		}

		w.process(ctx, ch, claimed)
	}
}

func (w *DeliveryWorker) process(ctx context.Context, ch model.Channel, claimed *queue.Claimed) {
	task := claimed.Task

	waitStart := time.Now()
	if err := w.limiter.Acquire(ctx, ch); err != nil {
		if ctx.Err() != nil {
			// Shutdown while blocked on a token; the lease reaper will
			// return the task to the queue.
			return
		}
		// The limiter rejected without a shutdown, e.g. the token is
		// further out than the request deadline. Put the task back now
		// instead of leaving it to cycle through lease reaps.
		w.logger.Warn("rate limiter rejected delivery, requeueing",
			"notification_id", task.NotificationID.String(),
			"channel", string(ch), "error", err.Error())
		task.NotBefore = time.Now().Add(time.Second)
		if rqErr := w.queue.Requeue(ctx, ch, claimed); rqErr != nil {
			w.logger.Error(rqErr, "failed to requeue delivery task",
				"notification_id", task.NotificationID.String(), "channel", string(ch))
		}
		return
	}
	w.metrics.RateLimiterWait.WithLabelValues(string(ch)).Observe(time.Since(waitStart).Seconds())

	adapter := w.adapters[ch]
	result, sendErr := adapter.Send(ctx, task.Destination, task.Subject, task.Body)
	now := time.Now()

	if sendErr == nil {
		w.recordSent(ctx, ch, task, result, now)
		w.ack(ctx, ch, claimed)
		return
	}

	if apperrors.IsTransient(sendErr) && task.Attempt < w.config.MaxAttempts {
		w.recordRetry(ctx, ch, claimed, sendErr, now)
		return
	}

	w.recordPermanent(ctx, ch, task, sendErr, now)
	w.ack(ctx, ch, claimed)
}

func (w *DeliveryWorker) recordSent(ctx context.Context, ch model.Channel, task *model.DeliveryTask, result *transport.SendResult, now time.Time) {
	entry := &model.DeliveryLog{
		NotificationID: task.NotificationID,
		Channel:        ch,
		Status:         model.DeliveryStatusSent,
		Destination:    task.Destination,
		Attempt:        task.Attempt,
		CostCents:      result.CostCents,
		CreatedAt:      now,
		SentAt:         &now,
	}
	if result.ProviderMessageID != "" {
		entry.ProviderMsgID = &result.ProviderMessageID
	}
	if err := w.logRepo.Append(ctx, entry); err != nil {
		w.logger.Error(err, "failed to append delivery log", "notification_id", task.NotificationID.String())
	}
	if err := w.notifRepo.MarkChannelSent(ctx, task.NotificationID, ch); err != nil {
		w.logger.Error(err, "failed to mark channel sent", "notification_id", task.NotificationID.String())
	}

	w.metrics.DeliverySuccess.WithLabelValues(string(ch)).Inc()
	w.metrics.DeliveryLatency.WithLabelValues(string(ch)).Observe(float64(now.Sub(task.EnqueuedAt).Milliseconds()))
	if ch == model.ChannelSMS && result.CostCents > 0 {
		w.metrics.SMSSpendCents.Add(float64(result.CostCents))
	}

	w.logger.Debug("delivery succeeded",
		"notification_id", task.NotificationID.String(),
		"channel", string(ch), "attempt", task.Attempt)
}

func (w *DeliveryWorker) recordRetry(ctx context.Context, ch model.Channel, claimed *queue.Claimed, sendErr error, now time.Time) {
	task := claimed.Task
	errText := sendErr.Error()
	entry := &model.DeliveryLog{
		NotificationID:   task.NotificationID,
		Channel:          ch,
		Status:           model.DeliveryStatusFailed,
		Destination:      task.Destination,
		ProviderResponse: &errText,
		Attempt:          task.Attempt,
		CreatedAt:        now,
		FailedAt:         &now,
	}
	if err := w.logRepo.Append(ctx, entry); err != nil {
		w.logger.Error(err, "failed to append delivery log", "notification_id", task.NotificationID.String())
	}

	delay := Backoff(task.Attempt, w.config.BackoffBase, w.config.BackoffCap)
	task.Attempt++
	task.NotBefore = now.Add(delay)

	if err := w.queue.Requeue(ctx, ch, claimed); err != nil {
		w.logger.Error(err, "failed to requeue delivery task",
			"notification_id", task.NotificationID.String(), "channel", string(ch))
		return
	}

	w.metrics.DeliveryRetries.WithLabelValues(string(ch)).Inc()
	w.metrics.DeliveryFailure.WithLabelValues(string(ch), apperrors.ProviderCode(sendErr)).Inc()

	w.logger.Warn("delivery failed, retry scheduled",
		"notification_id", task.NotificationID.String(),
		"channel", string(ch), "attempt", task.Attempt-1,
		"retry_in", delay.String(), "error", errText)
}

func (w *DeliveryWorker) recordPermanent(ctx context.Context, ch model.Channel, task *model.DeliveryTask, sendErr error, now time.Time) {
	status := model.DeliveryStatusFailedPermanent
	if apperrors.IsBounce(sendErr) {
		status = model.DeliveryStatusBounced
	}

	errText := sendErr.Error()
	entry := &model.DeliveryLog{
		NotificationID:   task.NotificationID,
		Channel:          ch,
		Status:           status,
		Destination:      task.Destination,
		ProviderResponse: &errText,
		Attempt:          task.Attempt,
		CreatedAt:        now,
		FailedAt:         &now,
	}
	if err := w.logRepo.Append(ctx, entry); err != nil {
		w.logger.Error(err, "failed to append delivery log", "notification_id", task.NotificationID.String())
	}

	w.metrics.DeliveryFailure.WithLabelValues(string(ch), apperrors.ProviderCode(sendErr)).Inc()

	w.logger.Warn("delivery failed permanently",
		"notification_id", task.NotificationID.String(),
		"channel", string(ch), "attempt", task.Attempt, "error", errText)

	w.maybeAutoDisable(ctx, task, ch)
}

// maybeAutoDisable feeds permanent failures back into preferences: a
// recipient whose channel keeps bouncing stops being attempted at all.
func (w *DeliveryWorker) maybeAutoDisable(ctx context.Context, task *model.DeliveryTask, ch model.Channel) {
	if w.config.AutoDisableAfter <= 0 {
		return
	}

	recipient := model.Recipient{Type: task.RecipientType, ID: task.RecipientID}
	streak, err := w.logRepo.ConsecutivePermanentFailures(ctx, recipient, ch)
	if err != nil {
		w.logger.Error(err, "failed to read failure streak", "channel", string(ch))
		return
	}
	if streak < w.config.AutoDisableAfter {
		return
	}

	if err := w.prefRepo.DisableChannel(ctx, recipient, ch, "repeated permanent delivery failures"); err != nil {
		w.logger.Error(err, "failed to auto-disable channel", "channel", string(ch))
		return
	}
	w.logger.Info("auto-disabled channel after repeated failures",
		"recipient_id", task.RecipientID.String(), "channel", string(ch), "streak", streak)
}

func (w *DeliveryWorker) ack(ctx context.Context, ch model.Channel, claimed *queue.Claimed) {
	if err := w.queue.Ack(ctx, ch, claimed); err != nil {
		w.logger.Error(err, "failed to ack delivery task",
			"notification_id", claimed.Task.NotificationID.String(), "channel", string(ch))
	}
}

// runMaintenance reaps expired leases and samples queue depth per channel.
func (w *DeliveryWorker) runMaintenance(ctx context.Context, ch model.Channel) {
	reap := time.NewTicker(w.config.ReapInterval)
	depth := time.NewTicker(w.config.DepthInterval)
	defer reap.Stop()
	defer depth.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reap.C:
			if _, err := w.queue.ReapExpired(ctx, ch, w.config.VisibilityTimeout); err != nil {
				w.logger.Error(err, "failed to reap expired leases", "channel", string(ch))
			}
		case <-depth.C:
			n, err := w.queue.Depth(ctx, ch)
			if err != nil {
				w.logger.Error(err, "failed to sample queue depth", "channel", string(ch))
				continue
			}
			w.metrics.QueueDepth.WithLabelValues(string(ch)).Set(float64(n))
		}
	}
}

// Backoff returns the delay before the next attempt: exponential in the
// attempt number with full jitter on the upper half, capped.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if d > cap || d <= 0 {
		d = cap
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
