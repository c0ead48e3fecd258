package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/pkg/queue"
)

// RedisQueue implements queue.Queue on Redis. Per channel it keeps a
// scheduled sorted set (score = not-before unix ms), a ready list, a
// processing list and a lease sorted set (score = claim time). Claim is
// BRPOPLPUSH ready->processing, so an entry is held by at most one worker.
type RedisQueue struct {
	client *redis.Client
	prefix string
	logger *zerolog.Logger
}

type Config struct {
	URL          string
	KeyPrefix    string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// promoteScript atomically moves due entries from the scheduled set to the
// ready list so two workers can never promote the same entry twice.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, payload in ipairs(due) do
	redis.call('ZREM', KEYS[1], payload)
	redis.call('LPUSH', KEYS[2], payload)
end
return #due
`)

// reapScript returns leases older than the cutoff to the ready list.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, payload in ipairs(expired) do
	redis.call('ZREM', KEYS[1], payload)
	redis.call('LREM', KEYS[2], 1, payload)
	redis.call('LPUSH', KEYS[3], payload)
end
return #expired
`)

func New(config Config, logger *zerolog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "notify"
	}

	return &RedisQueue{client: client, prefix: prefix, logger: logger}, nil
}

func (q *RedisQueue) schedKey(ch model.Channel) string { return q.prefix + ":sched:" + string(ch) }
func (q *RedisQueue) readyKey(ch model.Channel) string { return q.prefix + ":ready:" + string(ch) }
func (q *RedisQueue) procKey(ch model.Channel) string  { return q.prefix + ":proc:" + string(ch) }
func (q *RedisQueue) leaseKey(ch model.Channel) string { return q.prefix + ":lease:" + string(ch) }
func (q *RedisQueue) pauseKey(ch model.Channel) string { return q.prefix + ":paused:" + string(ch) }

func (q *RedisQueue) Enqueue(ctx context.Context, task *model.DeliveryTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery task: %w", err)
	}

	if task.NotBefore.After(time.Now()) {
		score := float64(task.NotBefore.UnixMilli())
		if err := q.client.ZAdd(ctx, q.schedKey(task.Channel), redis.Z{Score: score, Member: payload}).Err(); err != nil {
			return fmt.Errorf("failed to schedule delivery task: %w", err)
		}
		return nil
	}

	if err := q.client.LPush(ctx, q.readyKey(task.Channel), payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue delivery task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Claim(ctx context.Context, ch model.Channel, block time.Duration) (*queue.Claimed, error) {
	paused, err := q.Paused(ctx, ch)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, nil
	}

	now := time.Now().UnixMilli()
	if err := promoteScript.Run(ctx, q.client,
		[]string{q.schedKey(ch), q.readyKey(ch)}, now, 100).Err(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to promote due tasks: %w", err)
	}

	payload, err := q.client.BRPopLPush(ctx, q.readyKey(ch), q.procKey(ch), block).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim delivery task: %w", err)
	}

	// Record the lease so a crashed worker's claim can be reaped.
	if err := q.client.ZAdd(ctx, q.leaseKey(ch), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: payload,
	}).Err(); err != nil {
		q.logger.Warn().Err(err).Str("channel", string(ch)).Msg("failed to record task lease")
	}

	var task model.DeliveryTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		// Poison entry: drop it rather than wedging the queue.
		q.client.LRem(ctx, q.procKey(ch), 1, payload)
		q.client.ZRem(ctx, q.leaseKey(ch), payload)
		return nil, fmt.Errorf("failed to decode delivery task: %w", err)
	}

	return &queue.Claimed{Task: &task, Payload: payload}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, ch model.Channel, c *queue.Claimed) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.procKey(ch), 1, c.Payload)
	pipe.ZRem(ctx, q.leaseKey(ch), c.Payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack delivery task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Requeue(ctx context.Context, ch model.Channel, c *queue.Claimed) error {
	payload, err := json.Marshal(c.Task)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.procKey(ch), 1, c.Payload)
	pipe.ZRem(ctx, q.leaseKey(ch), c.Payload)
	pipe.ZAdd(ctx, q.schedKey(ch), redis.Z{
		Score:  float64(c.Task.NotBefore.UnixMilli()),
		Member: payload,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue delivery task: %w", err)
	}
	return nil
}

func (q *RedisQueue) Depth(ctx context.Context, ch model.Channel) (int64, error) {
	pipe := q.client.Pipeline()
	sched := pipe.ZCard(ctx, q.schedKey(ch))
	ready := pipe.LLen(ctx, q.readyKey(ch))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return sched.Val() + ready.Val(), nil
}

func (q *RedisQueue) Pause(ctx context.Context, ch model.Channel) error {
	return q.client.Set(ctx, q.pauseKey(ch), "1", 0).Err()
}

func (q *RedisQueue) Resume(ctx context.Context, ch model.Channel) error {
	return q.client.Del(ctx, q.pauseKey(ch)).Err()
}

func (q *RedisQueue) Paused(ctx context.Context, ch model.Channel) (bool, error) {
	n, err := q.client.Exists(ctx, q.pauseKey(ch)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %w", err)
	}
	return n > 0, nil
}

func (q *RedisQueue) ReapExpired(ctx context.Context, ch model.Channel, visibility time.Duration) (int, error) {
	cutoff := time.Now().Add(-visibility).UnixMilli()
	n, err := reapScript.Run(ctx, q.client,
		[]string{q.leaseKey(ch), q.procKey(ch), q.readyKey(ch)}, cutoff).Int()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}
	if n > 0 {
		q.logger.Warn().Int("count", n).Str("channel", string(ch)).Msg("requeued tasks from expired leases")
	}
	return n, nil
}

// Client exposes the underlying connection for health checks.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
