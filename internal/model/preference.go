package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationPreference holds a recipient's channel opt-ins, verified
// destinations and quiet hours. The engine reads preferences; the only write
// it ever performs is disabling a channel after repeated permanent failures.
type NotificationPreference struct {
	RecipientType RecipientType `db:"recipient_type" json:"recipient_type"`
	RecipientID   uuid.UUID     `db:"recipient_id" json:"recipient_id"`

	EmailEnabled  bool   `db:"email_enabled" json:"email_enabled"`
	EmailVerified bool   `db:"email_verified" json:"email_verified"`
	Email         string `db:"email" json:"email"`

	SMSEnabled    bool   `db:"sms_enabled" json:"sms_enabled"`
	PhoneVerified bool   `db:"phone_verified" json:"phone_verified"`
	Phone         string `db:"phone" json:"phone"`

	// Quiet hours are wall-clock times in the recipient's timezone, stored
	// as "HH:MM". A window may cross midnight (e.g. 22:00-07:00).
	QuietHoursEnabled bool   `db:"quiet_hours_enabled" json:"quiet_hours_enabled"`
	QuietHoursStart   string `db:"quiet_hours_start" json:"quiet_hours_start"`
	QuietHoursEnd     string `db:"quiet_hours_end" json:"quiet_hours_end"`
	Timezone          string `db:"timezone" json:"timezone"`

	// DisabledReason records why the engine turned a channel off (bounce
	// feedback); nil when the recipient made the call themselves.
	DisabledReason *string `db:"disabled_reason" json:"disabled_reason,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Destination returns the resolved send address for a channel, empty if the
// channel has no destination concept (in-app) or none is on file.
func (p *NotificationPreference) Destination(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.Phone
	}
	return ""
}
