package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairhub/notify/internal/model"
)

func fullOptInPref() *model.NotificationPreference {
	return &model.NotificationPreference{
		EmailEnabled:  true,
		EmailVerified: true,
		Email:         "jo@example.com",
		SMSEnabled:    true,
		PhoneVerified: true,
		Phone:         "+15551234567",
	}
}

func TestDefaultChannels(t *testing.T) {
	tests := []struct {
		priority model.Priority
		want     []model.Channel
	}{
		{model.PriorityLow, []model.Channel{model.ChannelInApp}},
		{model.PriorityMedium, []model.Channel{model.ChannelInApp, model.ChannelEmail}},
		{model.PriorityHigh, []model.Channel{model.ChannelInApp, model.ChannelEmail}},
		{model.PriorityUrgent, []model.Channel{model.ChannelInApp, model.ChannelEmail, model.ChannelSMS}},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultChannels(tt.priority))
		})
	}
}

func TestEligibleFullOptIn(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	eligible, suppressed := Eligible(fullOptInPref(), model.PriorityUrgent, now)

	assert.Equal(t, []model.Channel{model.ChannelInApp, model.ChannelEmail, model.ChannelSMS}, eligible)
	assert.Empty(t, suppressed)
}

func TestEligibleInAppNeverGated(t *testing.T) {
	// Zero-value preference: everything off.
	pref := &model.NotificationPreference{}
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	eligible, _ := Eligible(pref, model.PriorityUrgent, now)

	assert.Contains(t, eligible, model.ChannelInApp)
}

func TestEligibleSuppressionReasons(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*model.NotificationPreference)
		ch     model.Channel
		reason string
	}{
		{
			name:   "email opted out",
			mutate: func(p *model.NotificationPreference) { p.EmailEnabled = false },
			ch:     model.ChannelEmail,
			reason: ReasonOptedOut,
		},
		{
			name:   "email unverified",
			mutate: func(p *model.NotificationPreference) { p.EmailVerified = false },
			ch:     model.ChannelEmail,
			reason: ReasonUnverified,
		},
		{
			name:   "email missing destination",
			mutate: func(p *model.NotificationPreference) { p.Email = "" },
			ch:     model.ChannelEmail,
			reason: ReasonNoDestination,
		},
		{
			name:   "sms opted out",
			mutate: func(p *model.NotificationPreference) { p.SMSEnabled = false },
			ch:     model.ChannelSMS,
			reason: ReasonOptedOut,
		},
		{
			name:   "sms unverified phone",
			mutate: func(p *model.NotificationPreference) { p.PhoneVerified = false },
			ch:     model.ChannelSMS,
			reason: ReasonUnverified,
		},
		{
			name:   "sms missing phone",
			mutate: func(p *model.NotificationPreference) { p.Phone = "" },
			ch:     model.ChannelSMS,
			reason: ReasonNoDestination,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pref := fullOptInPref()
			tt.mutate(pref)

			eligible, suppressed := Eligible(pref, model.PriorityUrgent, now)

			assert.NotContains(t, eligible, tt.ch)
			require.Len(t, suppressed, 1)
			assert.Equal(t, tt.ch, suppressed[0].Channel)
			assert.Equal(t, tt.reason, suppressed[0].Reason)
		})
	}
}

func TestQuietHoursSuppressesSMS(t *testing.T) {
	pref := fullOptInPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "07:00"
	pref.Timezone = "UTC"

	inside := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	// Non-urgent SMS inside the window is suppressed.
	assert.Equal(t, ReasonQuietHours, gate(pref, model.ChannelSMS, model.PriorityHigh, inside))

	// URGENT bypasses quiet hours.
	eligible, suppressed := Eligible(pref, model.PriorityUrgent, inside)
	assert.Contains(t, eligible, model.ChannelSMS)
	assert.Empty(t, suppressed)
}

func TestQuietHoursCrossMidnight(t *testing.T) {
	pref := fullOptInPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "07:00"
	pref.Timezone = "UTC"

	tests := []struct {
		name string
		at   time.Time
		in   bool
	}{
		{"before window", time.Date(2026, 3, 10, 21, 59, 0, 0, time.UTC), false},
		{"at start", time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC), true},
		{"after midnight", time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), true},
		{"just before end", time.Date(2026, 3, 11, 6, 59, 0, 0, time.UTC), true},
		{"at end", time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC), false},
		{"midday", time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, inQuietHours(pref, tt.at))
		})
	}
}

func TestQuietHoursRecipientTimezone(t *testing.T) {
	pref := fullOptInPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "07:00"
	pref.Timezone = "America/New_York"

	// 03:00 UTC is 22:00 or 23:00 in New York depending on DST; either way
	// inside the window.
	at := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)
	assert.True(t, inQuietHours(pref, at))

	// 18:00 UTC is early afternoon in New York.
	at = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	assert.False(t, inQuietHours(pref, at))
}

func TestQuietHoursMalformedWindowFailsOpen(t *testing.T) {
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start, end string
	}{
		{"garbage start", "25:99", "07:00"},
		{"garbage end", "22:00", "seven"},
		{"empty", "", ""},
		{"equal bounds", "22:00", "22:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pref := fullOptInPref()
			pref.QuietHoursEnabled = true
			pref.QuietHoursStart = tt.start
			pref.QuietHoursEnd = tt.end

			assert.False(t, inQuietHours(pref, at))
		})
	}
}

func TestQuietHoursUnknownTimezoneFallsBackToUTC(t *testing.T) {
	pref := fullOptInPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "07:00"
	pref.Timezone = "Not/AZone"

	at := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.True(t, inQuietHours(pref, at))
}
