package model

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// rank orders priorities for comparisons; unknown values rank lowest.
func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

func (p Priority) AtLeast(other Priority) bool {
	return p.rank() >= other.rank()
}

func (p Priority) Valid() bool {
	return p.rank() > 0
}

type Category string

const (
	CategoryApproval   Category = "approval"
	CategoryAssignment Category = "assignment"
	CategoryReward     Category = "reward"
	CategorySystem     Category = "system"
)

type RecipientType string

const (
	RecipientCustomer   RecipientType = "customer"
	RecipientTechnician RecipientType = "technician"
	RecipientStaff      RecipientType = "staff"
)

// Recipient identifies who a notification is addressed to. Destination
// addresses (email, phone) are resolved from preferences, not stored here.
type Recipient struct {
	Type RecipientType `json:"type"`
	ID   uuid.UUID     `json:"id"`
}

// Notification is the durable record of one rendered domain event. It is
// immutable after creation except for read state and per-channel sent flags.
type Notification struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	EventID           string        `db:"event_id" json:"event_id"`
	RecipientType     RecipientType `db:"recipient_type" json:"recipient_type"`
	RecipientID       uuid.UUID     `db:"recipient_id" json:"recipient_id"`
	Title             string        `db:"title" json:"title"`
	Message           string        `db:"message" json:"message"`
	Category          Category      `db:"category" json:"category"`
	Priority          Priority      `db:"priority" json:"priority"`
	RelatedEntityType *string       `db:"related_entity_type" json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID    `db:"related_entity_id" json:"related_entity_id,omitempty"`
	ActionURL         *string       `db:"action_url" json:"action_url,omitempty"`
	Read              bool          `db:"read" json:"read"`
	ReadAt            *time.Time    `db:"read_at" json:"read_at,omitempty"`
	EmailSent         bool          `db:"email_sent" json:"email_sent"`
	SMSSent           bool          `db:"sms_sent" json:"sms_sent"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// ListFilter narrows ListNotifications queries. Zero values mean "no filter".
type ListFilter struct {
	Category   Category
	UnreadOnly bool
	Limit      int
	Offset     int
}
