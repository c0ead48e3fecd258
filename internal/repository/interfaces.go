package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/repairhub/notify/internal/model"
)

// All repository interfaces in one file
type (
	// NotificationRepository is the notification store: one row per logical
	// domain event, unique on (event_id, recipient).
	NotificationRepository interface {
		// CreateTx inserts inside the caller's transaction; pairing it with
		// DeliveryTaskRepository.CreateTx makes the row and its outbox tasks
		// commit atomically.
		CreateTx(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error

		// GetByEventID looks up an existing notification by idempotency key.
		GetByEventID(ctx context.Context, eventID string, recipient model.Recipient) (*model.Notification, error)

		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		List(ctx context.Context, recipient model.Recipient, filter model.ListFilter) ([]*model.Notification, error)

		MarkRead(ctx context.Context, id uuid.UUID, recipient model.Recipient) error
		MarkAllRead(ctx context.Context, recipient model.Recipient) (int64, error)
		UnreadCount(ctx context.Context, recipient model.Recipient) (int64, error)

		// MarkChannelSent flips the per-channel sent flag; idempotent.
		MarkChannelSent(ctx context.Context, id uuid.UUID, ch model.Channel) error

		WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
	}

	// DeliveryTaskRepository is the delivery outbox. Tasks are written in the
	// same transaction as their notification and deleted once handed to the
	// queue; a crash between commit and handoff leaves the row for the relay.
	DeliveryTaskRepository interface {
		CreateTx(ctx context.Context, tx *sqlx.Tx, task *model.DeliveryTask) error

		// PendingBatch returns the oldest undelivered tasks. Concurrent
		// relays may fetch overlapping batches; duplicate enqueues are
		// absorbed by at-least-once delivery.
		PendingBatch(ctx context.Context, limit int) ([]*model.DeliveryTask, error)

		// Delete removes a task after successful queue handoff.
		Delete(ctx context.Context, id uuid.UUID) error
	}

	TemplateRepository interface {
		GetByName(ctx context.Context, name string) (*model.NotificationTemplate, error)
		List(ctx context.Context, activeOnly bool) ([]*model.NotificationTemplate, error)
	}

	// PreferenceRepository is read-only to the engine except DisableChannel,
	// the bounce-feedback write.
	PreferenceRepository interface {
		Get(ctx context.Context, recipient model.Recipient) (*model.NotificationPreference, error)
		DisableChannel(ctx context.Context, recipient model.Recipient, ch model.Channel, reason string) error
	}

	DeliveryLogRepository interface {
		Append(ctx context.Context, entry *model.DeliveryLog) error
		AppendTx(ctx context.Context, tx *sqlx.Tx, entry *model.DeliveryLog) error
		ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]*model.DeliveryLog, error)

		// ConsecutivePermanentFailures counts the trailing run of permanent
		// failures for a recipient's channel, for auto-disable feedback.
		ConsecutivePermanentFailures(ctx context.Context, recipient model.Recipient, ch model.Channel) (int, error)

		// DeleteTerminalBefore prunes terminal rows for retention; sent and
		// failed_permanent rows only, never pending.
		DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
