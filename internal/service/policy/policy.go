package policy

import (
	"time"

	"github.com/repairhub/notify/internal/model"
)

// DefaultChannels maps a priority tier to its channel set. The table is
// static so delivery cost stays predictable: in-app always, email at MEDIUM
// and above, SMS only at URGENT.
func DefaultChannels(p model.Priority) []model.Channel {
	channels := []model.Channel{model.ChannelInApp}
	if p.AtLeast(model.PriorityMedium) {
		channels = append(channels, model.ChannelEmail)
	}
	if p == model.PriorityUrgent {
		channels = append(channels, model.ChannelSMS)
	}
	return channels
}

// Suppression reasons, recorded for would-have-sent observability.
const (
	ReasonOptedOut      = "opted_out"
	ReasonUnverified    = "unverified"
	ReasonQuietHours    = "quiet_hours"
	ReasonNoDestination = "no_destination"
)

type Suppression struct {
	Channel model.Channel
	Reason  string
}

// Eligible intersects the priority's default channel set with the
// recipient's preferences at the given instant. Time is an explicit input so
// quiet-hours behavior is deterministic under test. in_app is never gated;
// URGENT bypasses quiet hours for SMS.
func Eligible(pref *model.NotificationPreference, priority model.Priority, now time.Time) ([]model.Channel, []Suppression) {
	var eligible []model.Channel
	var suppressed []Suppression

	for _, ch := range DefaultChannels(priority) {
		if reason := gate(pref, ch, priority, now); reason != "" {
			suppressed = append(suppressed, Suppression{Channel: ch, Reason: reason})
			continue
		}
		eligible = append(eligible, ch)
	}
	return eligible, suppressed
}

// gate returns a suppression reason, or "" when the channel may be used.
func gate(pref *model.NotificationPreference, ch model.Channel, priority model.Priority, now time.Time) string {
	switch ch {
	case model.ChannelInApp:
		return ""
	case model.ChannelEmail:
		if !pref.EmailEnabled {
			return ReasonOptedOut
		}
		if !pref.EmailVerified {
			return ReasonUnverified
		}
		if pref.Email == "" {
			return ReasonNoDestination
		}
	case model.ChannelSMS:
		if !pref.SMSEnabled {
			return ReasonOptedOut
		}
		if !pref.PhoneVerified {
			return ReasonUnverified
		}
		if pref.Phone == "" {
			return ReasonNoDestination
		}
		if priority != model.PriorityUrgent && inQuietHours(pref, now) {
			return ReasonQuietHours
		}
	}
	return ""
}

// inQuietHours reports whether now falls inside the recipient's quiet-hours
// window. Windows are wall-clock "HH:MM" in the recipient's timezone and may
// cross midnight (22:00-07:00). Malformed configuration fails open: a broken
// window never silently suppresses.
func inQuietHours(pref *model.NotificationPreference, now time.Time) bool {
	if !pref.QuietHoursEnabled {
		return false
	}

	start, okStart := parseClock(pref.QuietHoursStart)
	end, okEnd := parseClock(pref.QuietHoursEnd)
	if !okStart || !okEnd || start == end {
		return false
	}

	local := now
	if pref.Timezone != "" {
		if loc, err := time.LoadLocation(pref.Timezone); err == nil {
			local = now.In(loc)
		}
	}
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	// Window crosses midnight.
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
