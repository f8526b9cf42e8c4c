package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopcast/social-publisher/internal/domain"
)

// promoteDue moves members of the delayed set whose score is at or before
// ARGV[1] onto the ready list, at most ARGV[2] per call.
var promoteDue = redis.NewScript(`
	local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
	for _, member in ipairs(due) do
		redis.call('ZREM', KEYS[1], member)
		redis.call('LPUSH', KEYS[2], member)
	end
	return #due
`)

const promoteBatch = 100

// reclaim hands a dead consumer's leased tasks back to the ready list,
// oldest first so they are the next to be dequeued. It does nothing and
// returns -1 while the consumer's heartbeat (KEYS[1]) is still alive.
var reclaim = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return -1
	end
	local moved = 0
	while redis.call('LMOVE', KEYS[2], KEYS[3], 'LEFT', 'RIGHT') do
		moved = moved + 1
	end
	redis.call('SREM', KEYS[4], ARGV[1])
	return moved
`)

const DefaultLeaseTTL = 30 * time.Second

// RedisQueue is a durable FIFO built on a Redis list.
//
// Producers LPUSH onto <key>; consumers atomically LMOVE the oldest entry
// onto their own <key>:processing:<consumer> list. Ack removes the entry,
// Nack puts it back at the tail of the ready list.
//
// Every consumer holds a lease: a heartbeat key with a TTL, refreshed by
// KeepAlive and listed in <key>:consumers. Recover returns the entries of
// consumers whose heartbeat has expired, so a crash means redelivery
// (at-least-once) while tasks held by live consumers stay put.
type RedisQueue struct {
	client     *redis.Client
	id         string
	ttl        time.Duration
	key        string
	ready      string
	processing string
	delayed    string
	consumers  string
	registered atomic.Bool
}

// NewRedisQueue creates a consumer of the queue under key with a fresh
// consumer id. leaseTTL <= 0 selects DefaultLeaseTTL.
func NewRedisQueue(client *redis.Client, key string, leaseTTL time.Duration) *RedisQueue {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	id := uuid.NewString()
	return &RedisQueue{
		client:     client,
		id:         id,
		ttl:        leaseTTL,
		key:        key,
		ready:      key,
		processing: processingKey(key, id),
		delayed:    key + ":delayed",
		consumers:  key + ":consumers",
	}
}

func processingKey(key, id string) string { return key + ":processing:" + id }
func heartbeatKey(key, id string) string  { return key + ":consumer:" + id }

// ConsumerID identifies this consumer's lease.
func (q *RedisQueue) ConsumerID() string { return q.id }

// Register takes out the lease. Dequeue registers on first use, so calling it
// is only needed to hold the lease before any task is taken.
func (q *RedisQueue) Register(ctx context.Context) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, q.consumers, q.id)
		pipe.Set(ctx, heartbeatKey(q.key, q.id), time.Now().UTC().Format(time.RFC3339), q.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: register consumer: %v", domain.ErrQueueUnavailable, err)
	}
	q.registered.Store(true)
	return nil
}

// KeepAlive refreshes the lease until ctx is cancelled, then releases the
// heartbeat so the consumer's leftovers can be reclaimed at once. Stop the
// workers before cancelling ctx.
func (q *RedisQueue) KeepAlive(ctx context.Context, logger *zap.Logger) {
	ticker := time.NewTicker(q.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			release, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := q.client.Del(release, heartbeatKey(q.key, q.id)).Err(); err != nil {
				logger.Warn("failed to release queue lease", zap.String("consumer", q.id), zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := q.Register(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("failed to refresh queue lease", zap.String("consumer", q.id), zap.Error(err))
			}
		}
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.ready, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return nil
}

// EnqueueAt parks the task in the delayed set until at.
func (q *RedisQueue) EnqueueAt(ctx context.Context, t Task, at time.Time) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	err = q.client.ZAdd(ctx, q.delayed, redis.Z{Score: float64(at.Unix()), Member: string(payload)}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	if !q.registered.Load() {
		if err := q.Register(ctx); err != nil {
			return nil, err
		}
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := promoteDue.Run(ctx, q.client, []string{q.delayed, q.ready}, now, promoteBatch).Err(); err != nil {
		return nil, fmt.Errorf("%w: promote delayed: %v", domain.ErrQueueUnavailable, err)
	}

	payload, err := q.client.LMove(ctx, q.ready, q.processing, "RIGHT", "LEFT").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	var t Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		// An undecodable entry can never be processed; drop it.
		_ = q.client.LRem(ctx, q.processing, 1, payload).Err()
		return nil, fmt.Errorf("decode task %q: %w", payload, err)
	}

	return &Delivery{
		Task: t,
		ack: func(ctx context.Context) error {
			return q.client.LRem(ctx, q.processing, 1, payload).Err()
		},
		nack: func(ctx context.Context) error {
			_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LRem(ctx, q.processing, 1, payload)
				pipe.LPush(ctx, q.ready, payload)
				return nil
			})
			return err
		},
	}, nil
}

// Len counts ready and delayed tasks. Leased tasks are not included.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	var ready *redis.IntCmd
	var delayed *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.LLen(ctx, q.ready)
		delayed = pipe.ZCard(ctx, q.delayed)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return int(ready.Val() + delayed.Val()), nil
}

// Recover hands back the tasks leased by consumers whose heartbeat has
// expired and reports how many were moved. Leases of live consumers, this
// one included, are left alone, so it is safe to call while other
// processes are consuming.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	ids, err := q.client.SMembers(ctx, q.consumers).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: list consumers: %v", domain.ErrQueueUnavailable, err)
	}

	moved := 0
	for _, id := range ids {
		if id == q.id {
			continue
		}
		keys := []string{heartbeatKey(q.key, id), processingKey(q.key, id), q.ready, q.consumers}
		n, err := reclaim.Run(ctx, q.client, keys, id).Int()
		if err != nil {
			return moved, fmt.Errorf("%w: reclaim consumer %s: %v", domain.ErrQueueUnavailable, id, err)
		}
		if n > 0 {
			moved += n
		}
	}
	return moved, nil
}

var _ DelayedQueue = (*RedisQueue)(nil)
