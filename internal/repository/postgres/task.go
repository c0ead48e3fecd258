package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
)

type deliveryTaskRepository struct {
	*BaseRepository
}

func NewDeliveryTaskRepository(base *BaseRepository) repository.DeliveryTaskRepository {
	return &deliveryTaskRepository{
		BaseRepository: base,
	}
}

func (r *deliveryTaskRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, task *model.DeliveryTask) error {
	query := `
		INSERT INTO delivery_tasks (
			id, notification_id, channel, recipient_type, recipient_id,
			destination, subject, body, attempt, not_before, enqueued_at
		) VALUES (
			:id, :notification_id, :channel, :recipient_type, :recipient_id,
			:destination, :subject, :body, :attempt, :not_before, :enqueued_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("failed to create delivery task: %w", err)
	}
	return nil
}

func (r *deliveryTaskRepository) PendingBatch(ctx context.Context, limit int) ([]*model.DeliveryTask, error) {
	query := `
		SELECT * FROM delivery_tasks
		ORDER BY enqueued_at ASC
		LIMIT $1
	`
	var tasks []*model.DeliveryTask
	err := r.db.SelectContext(ctx, &tasks, query, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending delivery tasks: %w", err)
	}
	return tasks, nil
}

func (r *deliveryTaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM delivery_tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete delivery task: %w", err)
	}
	return nil
}
