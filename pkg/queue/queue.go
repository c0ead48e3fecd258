package queue

import (
	"context"
	"time"

	"github.com/repairhub/notify/internal/model"
)

// Claimed is a task leased to exactly one worker. The raw payload is kept so
// Ack and Requeue can address the exact queue entry that was claimed.
type Claimed struct {
	Task    *model.DeliveryTask
	Payload string
}

// Queue is the durable at-least-once delivery queue, one logical queue per
// channel. Claim gives single-claim semantics via a lease: a claimed task is
// invisible to other workers until acked, requeued, or its lease expires.
type Queue interface {
	// Enqueue adds a task, honoring its NotBefore timestamp.
	Enqueue(ctx context.Context, task *model.DeliveryTask) error

	// Claim leases the next due task for the channel, blocking up to block
	// when none is ready. Returns (nil, nil) on timeout or paused channel.
	Claim(ctx context.Context, ch model.Channel, block time.Duration) (*Claimed, error)

	// Ack discards a claimed task after a terminal outcome.
	Ack(ctx context.Context, ch model.Channel, c *Claimed) error

	// Requeue returns a claimed task to the queue for a later attempt. The
	// task's Attempt and NotBefore must already be updated by the caller.
	Requeue(ctx context.Context, ch model.Channel, c *Claimed) error

	// Depth reports tasks waiting (scheduled plus ready) for the channel.
	Depth(ctx context.Context, ch model.Channel) (int64, error)

	// Pause stops Claim from returning tasks for the channel; in-flight
	// leases are unaffected. Resume undoes it.
	Pause(ctx context.Context, ch model.Channel) error
	Resume(ctx context.Context, ch model.Channel) error
	Paused(ctx context.Context, ch model.Channel) (bool, error)

	// ReapExpired returns tasks whose lease outlived the visibility timeout
	// to the ready queue, covering worker crashes mid-flight.
	ReapExpired(ctx context.Context, ch model.Channel, visibility time.Duration) (int, error)

	Close() error
}
