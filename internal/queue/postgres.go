package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// PostgresQueue stores messages in the queue_messages table and claims them
// with FOR UPDATE SKIP LOCKED so any number of consumers can poll it.
type PostgresQueue struct {
	db   bun.IDB
	opts Options
	log  *slog.Logger
}

// NewPostgresQueue creates a queue over queue_messages.
func NewPostgresQueue(db bun.IDB, opts Options, log *slog.Logger) *PostgresQueue {
	return &PostgresQueue{db: db, opts: opts.withDefaults(), log: log}
}

func (q *PostgresQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queue_messages (id, message_id, payload, status, available_at)
		VALUES (?, ?, ?, 'pending', now())`,
		uuid.NewString(), msg.MessageID, string(payload))
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

type claimedRow struct {
	ID           string          `bun:"id"`
	Payload      json.RawMessage `bun:"payload"`
	AttemptCount int             `bun:"attempt_count"`
}

// Receive atomically claims up to max due messages.
func (q *PostgresQueue) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max <= 0 {
		return nil, nil
	}

	var rows []claimedRow
	err := q.db.NewRaw(`
		WITH cte AS (
			SELECT id FROM queue_messages
			WHERE status = 'pending' AND available_at <= now()
			ORDER BY available_at ASC, created_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages m
		SET status = 'claimed', claimed_at = now(), attempt_count = m.attempt_count + 1, updated_at = now()
		FROM cte WHERE m.id = cte.id
		RETURNING m.id, m.payload, m.attempt_count`, max).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}

	now := time.Now()
	out := make([]Delivery, 0, len(rows))
	for _, r := range rows {
		var msg Message
		if err := json.Unmarshal(r.Payload, &msg); err != nil {
			// A payload that cannot be decoded will never succeed.
			q.log.Error("dead-lettering undecodable queue message",
				slog.String("id", r.ID),
				logger.Error(err))
			q.markDead(ctx, r.ID, "undecodable payload: "+err.Error())
			continue
		}
		out = append(out, Delivery{
			Message:    msg,
			Receipt:    receipt(r.ID, r.AttemptCount),
			Attempts:   r.AttemptCount,
			ReceivedAt: now,
		})
	}
	return out, nil
}

// Ack deletes the claimed row. The attempt count in the receipt guards against
// acking a message that was requeued and claimed again by someone else.
func (q *PostgresQueue) Ack(ctx context.Context, d Delivery) error {
	id, attempt, err := parseReceipt(d.Receipt)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM queue_messages
		WHERE id = ? AND status = 'claimed' AND attempt_count = ?`, id, attempt)
	if err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return checkAffected(res)
}

// Retry schedules another delivery with backoff, or dead-letters the message
// once MaxAttempts deliveries have been made.
func (q *PostgresQueue) Retry(ctx context.Context, d Delivery, reason string) error {
	id, attempt, err := parseReceipt(d.Receipt)
	if err != nil {
		return err
	}

	if q.opts.exhausted(attempt) {
		res, err := q.db.ExecContext(ctx, `
			UPDATE queue_messages
			SET status = 'dead', last_error = ?, claimed_at = NULL, updated_at = now()
			WHERE id = ? AND status = 'claimed' AND attempt_count = ?`,
			truncateError(reason), id, attempt)
		if err != nil {
			return fmt.Errorf("dead-letter message: %w", err)
		}
		q.log.Warn("message dead-lettered after max attempts",
			slog.String("message_id", d.Message.MessageID),
			slog.Int("attempts", attempt),
			slog.String("error", reason))
		return checkAffected(res)
	}

	delay := q.opts.backoff(attempt)
	res, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages
		SET status = 'pending',
			last_error = ?,
			claimed_at = NULL,
			available_at = now() + make_interval(secs => ?),
			updated_at = now()
		WHERE id = ? AND status = 'claimed' AND attempt_count = ?`,
		truncateError(reason), delay.Seconds(), id, attempt)
	if err != nil {
		return fmt.Errorf("retry message: %w", err)
	}

	q.log.Debug("message scheduled for redelivery",
		slog.String("message_id", d.Message.MessageID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	return checkAffected(res)
}

// RequeueExpired returns claims older than the visibility timeout to pending.
func (q *PostgresQueue) RequeueExpired(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages
		SET status = 'pending', claimed_at = NULL, available_at = now(), updated_at = now()
		WHERE status = 'claimed'
			AND claimed_at < now() - make_interval(secs => ?)`,
		q.opts.VisibilityTimeout.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue expired claims: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (q *PostgresQueue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'claimed'),
			COUNT(*) FILTER (WHERE status = 'dead')
		FROM queue_messages`).Scan(&s.Pending, &s.InFlight, &s.Dead)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return s, nil
}

func (q *PostgresQueue) markDead(ctx context.Context, id, reason string) {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_messages SET status = 'dead', last_error = ?, updated_at = now()
		WHERE id = ?`, truncateError(reason), id)
	if err != nil {
		q.log.Error("failed to dead-letter message", slog.String("id", id), logger.Error(err))
	}
}

func receipt(id string, attempt int) string {
	return id + "/" + strconv.Itoa(attempt)
}

func parseReceipt(r string) (string, int, error) {
	i := strings.LastIndex(r, "/")
	if i > 0 {
		if n, err := strconv.Atoi(r[i+1:]); err == nil {
			return r[:i], n, nil
		}
	}
	return "", 0, fmt.Errorf("%w: malformed receipt %q", ErrUnknownReceipt, r)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func checkAffected(res rowsAffected) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownReceipt
	}
	return nil
}
