package model

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusPending         DeliveryStatus = "pending"
	DeliveryStatusSent            DeliveryStatus = "sent"
	DeliveryStatusFailed          DeliveryStatus = "failed"
	DeliveryStatusFailedPermanent DeliveryStatus = "failed_permanent"
	DeliveryStatusBounced         DeliveryStatus = "bounced"
	DeliveryStatusOptedOut        DeliveryStatus = "opted_out"
)

// Terminal reports whether no further attempt will follow this status.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliveryStatusSent, DeliveryStatusFailedPermanent, DeliveryStatusBounced, DeliveryStatusOptedOut:
		return true
	}
	return false
}

// DeliveryTask is the unit of work for one (notification, channel). It is
// born as an outbox row in the same transaction as the notification, relayed
// into the queue, and deleted from the outbox on handoff. Rendered content
// travels with the task so workers never re-render.
type DeliveryTask struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	NotificationID uuid.UUID     `db:"notification_id" json:"notification_id"`
	Channel        Channel       `db:"channel" json:"channel"`
	RecipientType  RecipientType `db:"recipient_type" json:"recipient_type"`
	RecipientID    uuid.UUID     `db:"recipient_id" json:"recipient_id"`
	Destination    string        `db:"destination" json:"destination"`
	Subject        string        `db:"subject" json:"subject,omitempty"`
	Body           string        `db:"body" json:"body"`
	Attempt        int           `db:"attempt" json:"attempt"`
	NotBefore      time.Time     `db:"not_before" json:"not_before"`
	EnqueuedAt     time.Time     `db:"enqueued_at" json:"enqueued_at"`
}

// DeliveryLog is one append-only row per delivery attempt (or suppression).
// Rows are never mutated after write.
type DeliveryLog struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	NotificationID   uuid.UUID      `db:"notification_id" json:"notification_id"`
	Channel          Channel        `db:"channel" json:"channel"`
	Status           DeliveryStatus `db:"status" json:"status"`
	Destination      string         `db:"destination" json:"destination"`
	ProviderMsgID    *string        `db:"provider_msg_id" json:"provider_msg_id,omitempty"`
	ProviderResponse *string        `db:"provider_response" json:"provider_response,omitempty"`
	Attempt          int            `db:"attempt" json:"attempt"`
	CostCents        int            `db:"cost_cents" json:"cost_cents"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	SentAt           *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	FailedAt         *time.Time     `db:"failed_at" json:"failed_at,omitempty"`
}
