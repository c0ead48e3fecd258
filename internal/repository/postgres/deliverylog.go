package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
)

type deliveryLogRepository struct {
	*BaseRepository
}

func NewDeliveryLogRepository(base *BaseRepository) repository.DeliveryLogRepository {
	return &deliveryLogRepository{
		BaseRepository: base,
	}
}

const deliveryLogInsert = `
	INSERT INTO delivery_logs (
		id, notification_id, channel, status, destination,
		provider_msg_id, provider_response, attempt, cost_cents,
		created_at, sent_at, failed_at
	) VALUES (
		:id, :notification_id, :channel, :status, :destination,
		:provider_msg_id, :provider_response, :attempt, :cost_cents,
		:created_at, :sent_at, :failed_at
	)
`

func (r *deliveryLogRepository) Append(ctx context.Context, entry *model.DeliveryLog) error {
	prepare(entry)
	if _, err := r.db.NamedExecContext(ctx, deliveryLogInsert, entry); err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

func (r *deliveryLogRepository) AppendTx(ctx context.Context, tx *sqlx.Tx, entry *model.DeliveryLog) error {
	prepare(entry)
	if _, err := tx.NamedExecContext(ctx, deliveryLogInsert, entry); err != nil {
		return fmt.Errorf("failed to append delivery log: %w", err)
	}
	return nil
}

func prepare(entry *model.DeliveryLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
}

func (r *deliveryLogRepository) ListByNotification(ctx context.Context, notificationID uuid.UUID) ([]*model.DeliveryLog, error) {
	query := `
		SELECT * FROM delivery_logs
		WHERE notification_id = $1
		ORDER BY created_at ASC
	`
	var logs []*model.DeliveryLog
	if err := r.db.SelectContext(ctx, &logs, query, notificationID); err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	return logs, nil
}

func (r *deliveryLogRepository) ConsecutivePermanentFailures(ctx context.Context, recipient model.Recipient, ch model.Channel) (int, error) {
	// Trailing run of permanent outcomes across the recipient's recent
	// attempts on this channel; a single success resets the streak.
	query := `
		SELECT dl.status
		FROM delivery_logs dl
		JOIN notifications n ON n.id = dl.notification_id
		WHERE n.recipient_type = $1 AND n.recipient_id = $2 AND dl.channel = $3
		AND dl.status IN ('sent', 'failed_permanent', 'bounced')
		ORDER BY dl.created_at DESC
		LIMIT 10
	`
	var statuses []model.DeliveryStatus
	if err := r.db.SelectContext(ctx, &statuses, query, recipient.Type, recipient.ID, ch); err != nil {
		return 0, fmt.Errorf("failed to read failure history: %w", err)
	}

	streak := 0
	for _, s := range statuses {
		if s != model.DeliveryStatusFailedPermanent && s != model.DeliveryStatusBounced {
			break
		}
		streak++
	}
	return streak, nil
}

func (r *deliveryLogRepository) DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM delivery_logs
		WHERE status IN ('sent', 'failed_permanent', 'bounced', 'opted_out')
		AND created_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old delivery logs: %w", err)
	}
	return result.RowsAffected()
}
