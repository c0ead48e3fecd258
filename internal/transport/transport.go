package transport

import (
	"context"

	"github.com/repairhub/notify/internal/model"
)

// SendResult is a successful provider handoff. CostCents is nonzero only for
// channels with per-message spend (SMS).
type SendResult struct {
	ProviderMessageID string
	CostCents         int
}

// Adapter is the uniform per-channel sender contract. Implementations own
// provider error classification (transient vs permanent via pkg/errors
// wrapper types), medium formatting rules, and their own call timeout.
type Adapter interface {
	Channel() model.Channel
	Send(ctx context.Context, destination, subject, body string) (*SendResult, error)
}
