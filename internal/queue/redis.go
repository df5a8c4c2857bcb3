package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/saeedzarbi/Ai-agent-worker/internal/kv"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// envelope is what the Redis backend stores for every message.
type envelope struct {
	ID        string  `json:"id"`
	Message   Message `json:"message"`
	Attempts  int     `json:"attempts"`
	LastError string  `json:"last_error,omitempty"`
}

// claimScript pops one pending message, bumps its attempt count and records
// the claim in a single round trip so a crash cannot lose it.
var claimScript = redis.NewScript(`
local raw = redis.call('RPOP', KEYS[1])
if not raw then
  return false
end
local env = cjson.decode(raw)
env['attempts'] = (env['attempts'] or 0) + 1
local updated = cjson.encode(env)
redis.call('HSET', KEYS[2], ARGV[1], updated)
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return updated
`)

// releaseScript moves an expired claim back to the head of the pending list.
var releaseScript = redis.NewScript(`
if redis.call('ZREM', KEYS[2], ARGV[1]) == 0 then
  return 0
end
local raw = redis.call('HGET', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
if raw then
  redis.call('RPUSH', KEYS[3], raw)
end
return 1
`)

// RedisQueue keeps messages in Redis:
//
//	<prefix>:queue:pending     list, LPUSH to publish, RPOP to claim
//	<prefix>:queue:claims      hash receipt -> envelope
//	<prefix>:queue:visibility  zset receipt scored by claim deadline (unix ms)
//	<prefix>:queue:delayed     zset envelope scored by next availability (unix ms)
//	<prefix>:queue:dead        list of dead-lettered envelopes
type RedisQueue struct {
	rdb  *redis.Client
	opts Options
	log  *slog.Logger

	pendingKey    string
	claimsKey     string
	visibilityKey string
	delayedKey    string
	deadKey       string
}

// NewRedisQueue creates a queue under the given key prefix.
func NewRedisQueue(rdb *redis.Client, prefix string, opts Options, log *slog.Logger) *RedisQueue {
	return &RedisQueue{
		rdb:           rdb,
		opts:          opts.withDefaults(),
		log:           log,
		pendingKey:    kv.Key(prefix, "queue", "pending"),
		claimsKey:     kv.Key(prefix, "queue", "claims"),
		visibilityKey: kv.Key(prefix, "queue", "visibility"),
		delayedKey:    kv.Key(prefix, "queue", "delayed"),
		deadKey:       kv.Key(prefix, "queue", "dead"),
	}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(envelope{ID: uuid.NewString(), Message: msg})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.pendingKey, raw).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	if err := q.promoteDelayed(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	deadline := strconv.FormatInt(now.Add(q.opts.VisibilityTimeout).UnixMilli(), 10)

	var out []Delivery
	for len(out) < max {
		receipt := uuid.NewString()
		raw, err := claimScript.Run(ctx, q.rdb,
			[]string{q.pendingKey, q.claimsKey, q.visibilityKey},
			receipt, deadline,
		).Text()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("claim message: %w", err)
		}

		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			q.log.Error("dead-lettering undecodable queue message",
				slog.String("receipt", receipt),
				logger.Error(err))
			q.moveToDead(ctx, receipt, raw)
			continue
		}
		out = append(out, Delivery{
			Message:    env.Message,
			Receipt:    receipt,
			Attempts:   env.Attempts,
			ReceivedAt: now,
		})
	}
	return out, nil
}

// promoteDelayed moves retried messages whose backoff elapsed to pending.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	due, err := q.rdb.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return fmt.Errorf("scan delayed messages: %w", err)
	}
	for _, raw := range due {
		// Only the caller that removes the member may push it.
		removed, err := q.rdb.ZRem(ctx, q.delayedKey, raw).Result()
		if err != nil {
			return fmt.Errorf("promote delayed message: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.RPush(ctx, q.pendingKey, raw).Err(); err != nil {
			return fmt.Errorf("promote delayed message: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, d Delivery) error {
	pipe := q.rdb.TxPipeline()
	hdel := pipe.HDel(ctx, q.claimsKey, d.Receipt)
	pipe.ZRem(ctx, q.visibilityKey, d.Receipt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	if hdel.Val() == 0 {
		return ErrUnknownReceipt
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, d Delivery, reason string) error {
	raw, err := q.rdb.HGet(ctx, q.claimsKey, d.Receipt).Result()
	if errors.Is(err, redis.Nil) {
		return ErrUnknownReceipt
	}
	if err != nil {
		return fmt.Errorf("load claim: %w", err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		q.moveToDead(ctx, d.Receipt, raw)
		return fmt.Errorf("decode claim: %w", err)
	}
	env.LastError = truncateError(reason)
	updated, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode claim: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, q.claimsKey, d.Receipt)
	pipe.ZRem(ctx, q.visibilityKey, d.Receipt)
	if q.opts.exhausted(env.Attempts) {
		pipe.LPush(ctx, q.deadKey, updated)
		q.log.Warn("message dead-lettered after max attempts",
			slog.String("message_id", env.Message.MessageID),
			slog.Int("attempts", env.Attempts),
			slog.String("error", reason))
	} else {
		at := time.Now().Add(q.opts.backoff(env.Attempts))
		pipe.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(at.UnixMilli()), Member: string(updated)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retry message: %w", err)
	}
	return nil
}

func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	expired, err := q.rdb.ZRangeByScore(ctx, q.visibilityKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired claims: %w", err)
	}

	n := 0
	for _, receipt := range expired {
		moved, err := releaseScript.Run(ctx, q.rdb,
			[]string{q.claimsKey, q.visibilityKey, q.pendingKey},
			receipt,
		).Int()
		if err != nil {
			return n, fmt.Errorf("requeue claim: %w", err)
		}
		n += moved
	}
	return n, nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.rdb.Pipeline()
	pending := pipe.LLen(ctx, q.pendingKey)
	delayed := pipe.ZCard(ctx, q.delayedKey)
	inflight := pipe.HLen(ctx, q.claimsKey)
	dead := pipe.LLen(ctx, q.deadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Pending:  pending.Val() + delayed.Val(),
		InFlight: inflight.Val(),
		Dead:     dead.Val(),
	}, nil
}

func (q *RedisQueue) moveToDead(ctx context.Context, receipt, raw string) {
	pipe := q.rdb.TxPipeline()
	pipe.HDel(ctx, q.claimsKey, receipt)
	pipe.ZRem(ctx, q.visibilityKey, receipt)
	pipe.LPush(ctx, q.deadKey, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("failed to dead-letter message", slog.String("receipt", receipt), logger.Error(err))
	}
}
