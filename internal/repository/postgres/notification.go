package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
	apperrors "github.com/repairhub/notify/pkg/errors"
)

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{
		BaseRepository: base,
	}
}

// ErrDuplicateEvent is returned when the (event_id, recipient) uniqueness
// constraint rejects an insert; callers resolve it to the existing row.
var ErrDuplicateEvent = fmt.Errorf("notification already exists for event")

func (r *notificationRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, n *model.Notification) error {
	query := `
		INSERT INTO notifications (
			id, event_id, recipient_type, recipient_id, title, message,
			category, priority, related_entity_type, related_entity_id,
			action_url, read, email_sent, sms_sent, created_at, updated_at
		) VALUES (
			:id, :event_id, :recipient_type, :recipient_id, :title, :message,
			:category, :priority, :related_entity_type, :related_entity_id,
			:action_url, :read, :email_sent, :sms_sent, :created_at, :updated_at
		)
	`
	_, err := tx.NamedExecContext(ctx, query, n)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetByEventID(ctx context.Context, eventID string, recipient model.Recipient) (*model.Notification, error) {
	query := `
		SELECT * FROM notifications
		WHERE event_id = $1 AND recipient_type = $2 AND recipient_id = $3
	`
	var n model.Notification
	err := r.db.GetContext(ctx, &n, query, eventID, recipient.Type, recipient.ID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification by event id: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("notification", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, recipient model.Recipient, filter model.ListFilter) ([]*model.Notification, error) {
	query := `
		SELECT * FROM notifications
		WHERE recipient_type = $1 AND recipient_id = $2
	`
	args := []interface{}{recipient.Type, recipient.ID}

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.UnreadOnly {
		query += " AND read = false"
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID, recipient model.Recipient) error {
	query := `
		UPDATE notifications
		SET read = true, read_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND recipient_type = $2 AND recipient_id = $3 AND read = false
	`
	// No-op when already read: affected rows are not checked on purpose.
	_, err := r.db.ExecContext(ctx, query, id, recipient.Type, recipient.ID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipient model.Recipient) (int64, error) {
	query := `
		UPDATE notifications
		SET read = true, read_at = NOW(), updated_at = NOW()
		WHERE recipient_type = $1 AND recipient_id = $2 AND read = false
	`
	result, err := r.db.ExecContext(ctx, query, recipient.Type, recipient.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipient model.Recipient) (int64, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_type = $1 AND recipient_id = $2 AND read = false
	`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, recipient.Type, recipient.ID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkChannelSent(ctx context.Context, id uuid.UUID, ch model.Channel) error {
	var column string
	switch ch {
	case model.ChannelEmail:
		column = "email_sent"
	case model.ChannelSMS:
		column = "sms_sent"
	default:
		return fmt.Errorf("channel %s has no sent flag", ch)
	}

	query := fmt.Sprintf(`
		UPDATE notifications
		SET %s = true, updated_at = $1
		WHERE id = $2
	`, column)
	if _, err := r.db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark %s sent: %w", ch, err)
	}
	return nil
}
