package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/transport"
	apperrors "github.com/repairhub/notify/pkg/errors"
	"github.com/repairhub/notify/pkg/logger"
	"github.com/repairhub/notify/pkg/metrics"
	"github.com/repairhub/notify/pkg/queue"
	"github.com/repairhub/notify/pkg/ratelimit"
)

type fakeQueue struct {
	enqueued   []*model.DeliveryTask
	requeued   []*queue.Claimed
	acked      []*queue.Claimed
	enqueueErr error
}

func (q *fakeQueue) Enqueue(_ context.Context, task *model.DeliveryTask) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, task)
	return nil
}
func (q *fakeQueue) Claim(context.Context, model.Channel, time.Duration) (*queue.Claimed, error) {
	return nil, nil
}
func (q *fakeQueue) Ack(_ context.Context, _ model.Channel, c *queue.Claimed) error {
	q.acked = append(q.acked, c)
	return nil
}
func (q *fakeQueue) Requeue(_ context.Context, _ model.Channel, c *queue.Claimed) error {
	q.requeued = append(q.requeued, c)
	return nil
}
func (q *fakeQueue) Depth(context.Context, model.Channel) (int64, error)  { return 0, nil }
func (q *fakeQueue) Pause(context.Context, model.Channel) error           { return nil }
func (q *fakeQueue) Resume(context.Context, model.Channel) error          { return nil }
func (q *fakeQueue) Paused(context.Context, model.Channel) (bool, error)  { return false, nil }
func (q *fakeQueue) ReapExpired(context.Context, model.Channel, time.Duration) (int, error) {
	return 0, nil
}
func (q *fakeQueue) Close() error { return nil }

// fakeAdapter returns its scripted errors in order, then succeeds.
type fakeAdapter struct {
	channel model.Channel
	errs    []error
	calls   int
	result  transport.SendResult
}

func (a *fakeAdapter) Channel() model.Channel { return a.channel }

func (a *fakeAdapter) Send(context.Context, string, string, string) (*transport.SendResult, error) {
	a.calls++
	if a.calls <= len(a.errs) && a.errs[a.calls-1] != nil {
		return nil, a.errs[a.calls-1]
	}
	r := a.result
	return &r, nil
}

type fakeNotifRepo struct {
	sentChannels []model.Channel
}

func (r *fakeNotifRepo) CreateTx(context.Context, *sqlx.Tx, *model.Notification) error { return nil }
func (r *fakeNotifRepo) GetByEventID(context.Context, string, model.Recipient) (*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotifRepo) Get(context.Context, uuid.UUID) (*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotifRepo) List(context.Context, model.Recipient, model.ListFilter) ([]*model.Notification, error) {
	return nil, nil
}
func (r *fakeNotifRepo) MarkRead(context.Context, uuid.UUID, model.Recipient) error { return nil }
func (r *fakeNotifRepo) MarkAllRead(context.Context, model.Recipient) (int64, error) {
	return 0, nil
}
func (r *fakeNotifRepo) UnreadCount(context.Context, model.Recipient) (int64, error) { return 0, nil }
func (r *fakeNotifRepo) MarkChannelSent(_ context.Context, _ uuid.UUID, ch model.Channel) error {
	r.sentChannels = append(r.sentChannels, ch)
	return nil
}
func (r *fakeNotifRepo) WithTx(context.Context, func(*sqlx.Tx) error) error { return nil }

type fakeLogRepo struct {
	entries []*model.DeliveryLog
	streak  int
}

func (r *fakeLogRepo) Append(_ context.Context, e *model.DeliveryLog) error {
	r.entries = append(r.entries, e)
	return nil
}
func (r *fakeLogRepo) AppendTx(_ context.Context, _ *sqlx.Tx, e *model.DeliveryLog) error {
	r.entries = append(r.entries, e)
	return nil
}
func (r *fakeLogRepo) ListByNotification(context.Context, uuid.UUID) ([]*model.DeliveryLog, error) {
	return nil, nil
}
func (r *fakeLogRepo) ConsecutivePermanentFailures(context.Context, model.Recipient, model.Channel) (int, error) {
	return r.streak, nil
}
func (r *fakeLogRepo) DeleteTerminalBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakePrefRepo struct {
	disabled []model.Channel
}

func (r *fakePrefRepo) Get(context.Context, model.Recipient) (*model.NotificationPreference, error) {
	return &model.NotificationPreference{}, nil
}
func (r *fakePrefRepo) DisableChannel(_ context.Context, _ model.Recipient, ch model.Channel, _ string) error {
	r.disabled = append(r.disabled, ch)
	return nil
}

type workerFixture struct {
	worker  *DeliveryWorker
	queue   *fakeQueue
	adapter *fakeAdapter
	notif   *fakeNotifRepo
	logs    *fakeLogRepo
	prefs   *fakePrefRepo
}

func newFixture(t *testing.T, adapter *fakeAdapter, cfg DeliveryConfig) *workerFixture {
	t.Helper()
	q := &fakeQueue{}
	notif := &fakeNotifRepo{}
	logs := &fakeLogRepo{}
	prefs := &fakePrefRepo{}
	limiter := ratelimit.NewChannelLimiter(nil)
	l := logger.NewLogger(nil)

	w := NewDeliveryWorker(q, []transport.Adapter{adapter}, notif, logs, prefs, limiter, cfg, l, metrics.New("test"))
	return &workerFixture{worker: w, queue: q, adapter: adapter, notif: notif, logs: logs, prefs: prefs}
}

func emailClaim(attempt int) *queue.Claimed {
	return &queue.Claimed{
		Task: &model.DeliveryTask{
			ID:             uuid.New(),
			NotificationID: uuid.New(),
			Channel:        model.ChannelEmail,
			RecipientType:  model.RecipientCustomer,
			RecipientID:    uuid.New(),
			Destination:    "jo@example.com",
			Subject:        "Repair approved",
			Body:           "Your repair was approved.",
			Attempt:        attempt,
			EnqueuedAt:     time.Now().Add(-time.Second),
		},
		Payload: "payload",
	}
}

func TestProcessSuccess(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelEmail,
		result:  transport.SendResult{ProviderMessageID: "msg-1"},
	}, DeliveryConfig{})
	claimed := emailClaim(1)

	f.worker.process(context.Background(), model.ChannelEmail, claimed)

	require.Len(t, f.logs.entries, 1)
	entry := f.logs.entries[0]
	assert.Equal(t, model.DeliveryStatusSent, entry.Status)
	assert.Equal(t, 1, entry.Attempt)
	require.NotNil(t, entry.ProviderMsgID)
	assert.Equal(t, "msg-1", *entry.ProviderMsgID)

	assert.Equal(t, []model.Channel{model.ChannelEmail}, f.notif.sentChannels)
	assert.Len(t, f.queue.acked, 1)
	assert.Empty(t, f.queue.requeued)
}

func TestProcessTransientFailureSchedulesRetry(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelEmail,
		errs:    []error{apperrors.NewTransient("421", errors.New("try later"))},
	}, DeliveryConfig{})
	claimed := emailClaim(1)
	before := time.Now()

	f.worker.process(context.Background(), model.ChannelEmail, claimed)

	require.Len(t, f.queue.requeued, 1)
	assert.Empty(t, f.queue.acked)
	assert.Empty(t, f.notif.sentChannels)

	task := f.queue.requeued[0].Task
	assert.Equal(t, 2, task.Attempt)
	assert.True(t, task.NotBefore.After(before), "retry must be delayed")

	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, model.DeliveryStatusFailed, f.logs.entries[0].Status)
}

func TestProcessTransientAtMaxAttemptsGoesPermanent(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelEmail,
		errs:    []error{apperrors.NewTransient("421", errors.New("try later"))},
	}, DeliveryConfig{MaxAttempts: 3})
	claimed := emailClaim(3)

	f.worker.process(context.Background(), model.ChannelEmail, claimed)

	assert.Empty(t, f.queue.requeued)
	assert.Len(t, f.queue.acked, 1)
	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, model.DeliveryStatusFailedPermanent, f.logs.entries[0].Status)
}

func TestProcessPermanentFailureNeverRetries(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelEmail,
		errs:    []error{apperrors.NewPermanent("550", errors.New("no such user"))},
	}, DeliveryConfig{})
	claimed := emailClaim(1)

	f.worker.process(context.Background(), model.ChannelEmail, claimed)

	assert.Empty(t, f.queue.requeued)
	assert.Len(t, f.queue.acked, 1)
	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, model.DeliveryStatusFailedPermanent, f.logs.entries[0].Status)
	assert.Equal(t, 1, f.adapter.calls)
}

func TestProcessBounceRecordedAsBounced(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelEmail,
		errs:    []error{apperrors.NewBounce("551", errors.New("mailbox gone"))},
	}, DeliveryConfig{})

	f.worker.process(context.Background(), model.ChannelEmail, emailClaim(1))

	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, model.DeliveryStatusBounced, f.logs.entries[0].Status)
}

func TestAutoDisableAfterFailureStreak(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelEmail,
		errs:    []error{apperrors.NewPermanent("550", errors.New("no such user"))},
	}, DeliveryConfig{AutoDisableAfter: 3})
	f.logs.streak = 3

	f.worker.process(context.Background(), model.ChannelEmail, emailClaim(1))

	assert.Equal(t, []model.Channel{model.ChannelEmail}, f.prefs.disabled)
}

func TestAutoDisableBelowStreakLeavesChannel(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelEmail,
		errs:    []error{apperrors.NewPermanent("550", errors.New("no such user"))},
	}, DeliveryConfig{AutoDisableAfter: 3})
	f.logs.streak = 2

	f.worker.process(context.Background(), model.ChannelEmail, emailClaim(1))

	assert.Empty(t, f.prefs.disabled)
}

func TestSMSSpendRecorded(t *testing.T) {
	f := newFixture(t, &fakeAdapter{
		channel: model.ChannelSMS,
		result:  transport.SendResult{ProviderMessageID: "sm-1", CostCents: 4},
	}, DeliveryConfig{})
	claimed := emailClaim(1)
	claimed.Task.Channel = model.ChannelSMS
	claimed.Task.Destination = "+15551234567"

	f.worker.process(context.Background(), model.ChannelSMS, claimed)

	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, 4, f.logs.entries[0].CostCents)
}

func TestProcessLimiterRejectionRequeues(t *testing.T) {
	adapter := &fakeAdapter{channel: model.ChannelEmail}
	q := &fakeQueue{}
	limiter := ratelimit.NewChannelLimiter(map[model.Channel]ratelimit.BucketConfig{
		model.ChannelEmail: {PerSecond: 0.001, Burst: 1},
	})
	w := NewDeliveryWorker(q, []transport.Adapter{adapter}, &fakeNotifRepo{}, &fakeLogRepo{},
		&fakePrefRepo{}, limiter, DeliveryConfig{}, logger.NewLogger(nil), metrics.New("test"))

	// Drain the only token; the next one is ~17 minutes out, far past the
	// request deadline, so Acquire fails while the context is still live.
	require.NoError(t, limiter.Acquire(context.Background(), model.ChannelEmail))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	before := time.Now()
	w.process(ctx, model.ChannelEmail, emailClaim(1))

	require.Len(t, q.requeued, 1, "a rejected task goes back to the queue, not to the reaper")
	assert.Empty(t, q.acked)
	assert.Equal(t, 0, adapter.calls, "send must not run without a token")

	task := q.requeued[0].Task
	assert.Equal(t, 1, task.Attempt, "a limiter rejection is not a delivery attempt")
	assert.True(t, task.NotBefore.After(before))
}

func TestProcessShutdownLeavesTaskToReaper(t *testing.T) {
	adapter := &fakeAdapter{channel: model.ChannelEmail}
	q := &fakeQueue{}
	limiter := ratelimit.NewChannelLimiter(map[model.Channel]ratelimit.BucketConfig{
		model.ChannelEmail: {PerSecond: 0.001, Burst: 1},
	})
	w := NewDeliveryWorker(q, []transport.Adapter{adapter}, &fakeNotifRepo{}, &fakeLogRepo{},
		&fakePrefRepo{}, limiter, DeliveryConfig{}, logger.NewLogger(nil), metrics.New("test"))

	require.NoError(t, limiter.Acquire(context.Background(), model.ChannelEmail))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.process(ctx, model.ChannelEmail, emailClaim(1))

	assert.Empty(t, q.requeued, "shutdown hands the lease to the reaper")
	assert.Empty(t, q.acked)
	assert.Equal(t, 0, adapter.calls)
}

func TestBackoffBounds(t *testing.T) {
	base := 30 * time.Second
	limit := 10 * time.Minute

	for attempt := 1; attempt <= 6; attempt++ {
		expected := base << uint(attempt-1)
		if expected > limit || expected <= 0 {
			expected = limit
		}
		for i := 0; i < 50; i++ {
			d := Backoff(attempt, base, limit)
			assert.GreaterOrEqual(t, d, expected/2, "attempt %d", attempt)
			assert.LessOrEqual(t, d, expected, "attempt %d", attempt)
		}
	}
}

func TestBackoffGrowsWithAttempt(t *testing.T) {
	base := 30 * time.Second
	limit := 10 * time.Minute

	// Minimum possible delay doubles per attempt until the cap.
	assert.GreaterOrEqual(t, Backoff(3, base, limit), 60*time.Second)
	assert.LessOrEqual(t, Backoff(10, base, limit), limit)
}
