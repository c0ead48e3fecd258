package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/repository"
)

type preferenceRepository struct {
	*BaseRepository
}

func NewPreferenceRepository(base *BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{
		BaseRepository: base,
	}
}

func (r *preferenceRepository) Get(ctx context.Context, recipient model.Recipient) (*model.NotificationPreference, error) {
	query := `
		SELECT * FROM notification_preferences
		WHERE recipient_type = $1 AND recipient_id = $2
	`
	var p model.NotificationPreference
	err := r.db.GetContext(ctx, &p, query, recipient.Type, recipient.ID)
	if err == sql.ErrNoRows {
		// Absent preferences mean in-app only: nothing is verified, nothing
		// is opted in.
		return &model.NotificationPreference{
			RecipientType: recipient.Type,
			RecipientID:   recipient.ID,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &p, nil
}

func (r *preferenceRepository) DisableChannel(ctx context.Context, recipient model.Recipient, ch model.Channel, reason string) error {
	var column string
	switch ch {
	case model.ChannelEmail:
		column = "email_enabled"
	case model.ChannelSMS:
		column = "sms_enabled"
	default:
		return fmt.Errorf("channel %s cannot be disabled", ch)
	}

	query := fmt.Sprintf(`
		UPDATE notification_preferences
		SET %s = false, disabled_reason = $1, updated_at = NOW()
		WHERE recipient_type = $2 AND recipient_id = $3
	`, column)
	if _, err := r.db.ExecContext(ctx, query, reason, recipient.Type, recipient.ID); err != nil {
		return fmt.Errorf("failed to disable %s channel: %w", ch, err)
	}
	return nil
}
