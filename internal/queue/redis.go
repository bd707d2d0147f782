// Package queue is the Redis-backed durable queue of launch messages.
//
// Messages wait in a pending list. Reserve moves one atomically into a
// per-consumer processing list; Ack removes it, Nack returns it to the back
// of the pending list and DeadLetter parks it for inspection.
//
// Each consumer keeps a heartbeat key alive while it runs. Recover puts
// anything left in its own processing list back on pending, along with the
// processing lists of consumers whose heartbeat has lapsed, so deliveries
// held by a launcher that never came back are not stranded.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"launcher/internal/apperrors"
	"launcher/internal/workload"
)

// Options configures a RedisQueue.
type Options struct {
	Addr       string
	Password   string
	DB         int
	Name       string // queue name, e.g. "launch"
	ConsumerID string // identifies this process's processing list

	// HeartbeatTTL is how long a consumer counts as alive after its last
	// heartbeat. Defaults to DefaultHeartbeatTTL.
	HeartbeatTTL time.Duration
}

// DefaultHeartbeatTTL is the heartbeat lifetime when none is configured.
const DefaultHeartbeatTTL = 30 * time.Second

// Delivery is a reserved message. Raw is the exact stored value and is
// what Ack, Nack and DeadLetter match on.
type Delivery struct {
	Raw string
}

// Decode parses the delivery into a launch message.
func (d *Delivery) Decode() (*workload.LaunchMessage, error) {
	var msg workload.LaunchMessage
	if err := json.Unmarshal([]byte(d.Raw), &msg); err != nil {
		return nil, apperrors.Validation("message", fmt.Sprintf("malformed launch message: %v", err))
	}
	return &msg, nil
}

// RedisQueue implements the launch queue on Redis lists.
type RedisQueue struct {
	client     *redis.Client
	consumerID string
	pending    string
	processing string
	dead       string

	processingPrefix string
	heartbeatPrefix  string
	heartbeatTTL     time.Duration
}

// NewRedisQueue connects to Redis. The connection is verified by Ready, not here.
func NewRedisQueue(opts Options) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	q := NewRedisQueueFromClient(client, opts.Name, opts.ConsumerID)
	if opts.HeartbeatTTL > 0 {
		q.heartbeatTTL = opts.HeartbeatTTL
	}
	return q
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(client *redis.Client, name, consumerID string) *RedisQueue {
	if name == "" {
		name = "launch"
	}
	prefix := "launcher:" + name
	return &RedisQueue{
		client:           client,
		consumerID:       consumerID,
		pending:          prefix + ":pending",
		processing:       prefix + ":processing:" + consumerID,
		dead:             prefix + ":dead",
		processingPrefix: prefix + ":processing:",
		heartbeatPrefix:  prefix + ":heartbeat:",
		heartbeatTTL:     DefaultHeartbeatTTL,
	}
}

func (q *RedisQueue) heartbeatKey(consumerID string) string {
	return q.heartbeatPrefix + consumerID
}

// Enqueue validates msg and appends it to the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, msg *workload.LaunchMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return apperrors.Internal("queue.enqueue", err)
	}
	if err := q.client.LPush(ctx, q.pending, data).Err(); err != nil {
		return apperrors.Unavailable("queue.enqueue", err)
	}
	return nil
}

// Reserve blocks up to timeout for the next message. It returns nil, nil
// when the queue stayed empty.
func (q *RedisQueue) Reserve(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	raw, err := q.client.BRPopLPush(ctx, q.pending, q.processing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Unavailable("queue.reserve", err)
	}
	return &Delivery{Raw: raw}, nil
}

// Ack removes a finished delivery.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.Raw).Err(); err != nil {
		return apperrors.Unavailable("queue.ack", err)
	}
	return nil
}

// Nack returns a delivery to the back of the pending list.
func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) error {
	return q.move(ctx, "queue.nack", d, q.pending)
}

// DeadLetter moves a delivery that can never succeed to the dead list.
func (q *RedisQueue) DeadLetter(ctx context.Context, d *Delivery) error {
	return q.move(ctx, "queue.deadLetter", d, q.dead)
}

func (q *RedisQueue) move(ctx context.Context, op string, d *Delivery, dst string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.Raw)
		pipe.LPush(ctx, dst, d.Raw)
		return nil
	})
	if err != nil {
		return apperrors.Unavailable(op, err)
	}
	return nil
}

// Heartbeat marks this consumer alive for the heartbeat TTL.
func (q *RedisQueue) Heartbeat(ctx context.Context) error {
	if err := q.client.Set(ctx, q.heartbeatKey(q.consumerID), time.Now().UTC().Format(time.RFC3339), q.heartbeatTTL).Err(); err != nil {
		return apperrors.Unavailable("queue.heartbeat", err)
	}
	return nil
}

// KeepAlive refreshes the heartbeat at a third of its TTL until ctx is done.
func (q *RedisQueue) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(q.heartbeatTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Heartbeat(ctx); err != nil && ctx.Err() == nil {
				slog.WarnContext(ctx, "Queue heartbeat failed", "consumer", q.consumerID, "error", err)
			}
		}
	}
}

// Recover marks this consumer alive, then moves deliveries back to pending
// from its own processing list and from the processing list of every
// consumer without a live heartbeat. It returns how many were moved.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	if err := q.Heartbeat(ctx); err != nil {
		return 0, err
	}

	n, err := q.drain(ctx, q.processing)
	if err != nil {
		return n, err
	}

	stale, err := q.staleProcessingLists(ctx)
	if err != nil {
		return n, err
	}
	for _, key := range stale {
		moved, err := q.drain(ctx, key)
		n += moved
		if err != nil {
			return n, err
		}
		if moved > 0 {
			slog.InfoContext(ctx, "Reclaimed deliveries from departed consumer",
				"consumer", strings.TrimPrefix(key, q.processingPrefix), "count", moved)
		}
	}
	return n, nil
}

// staleProcessingLists returns the processing lists of other consumers
// whose heartbeat key is gone.
func (q *RedisQueue) staleProcessingLists(ctx context.Context) ([]string, error) {
	var stale []string
	iter := q.client.Scan(ctx, 0, q.processingPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == q.processing {
			continue
		}
		owner := strings.TrimPrefix(key, q.processingPrefix)
		alive, err := q.client.Exists(ctx, q.heartbeatKey(owner)).Result()
		if err != nil {
			return nil, apperrors.Unavailable("queue.recover", err)
		}
		if alive == 0 {
			stale = append(stale, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.Unavailable("queue.recover", err)
	}
	return stale, nil
}

func (q *RedisQueue) drain(ctx context.Context, from string) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, from, q.pending).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, apperrors.Unavailable("queue.recover", err)
		}
		n++
	}
}

// Depth returns the number of pending messages.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pending).Result()
	if err != nil {
		return 0, apperrors.Unavailable("queue.depth", err)
	}
	return n, nil
}

// DeadLetters returns the number of dead-lettered messages.
func (q *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.dead).Result()
	if err != nil {
		return 0, apperrors.Unavailable("queue.deadLetters", err)
	}
	return n, nil
}

// Ready implements health.ReadinessChecker.
func (q *RedisQueue) Ready(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
