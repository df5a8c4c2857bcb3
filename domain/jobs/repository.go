package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// Repository handles database operations for extraction jobs
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new jobs repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("jobs.repo")),
	}
}

// Replace deletes any job with the same message_id and inserts job, in one
// transaction. The last submission wins.
func (r *Repository) Replace(ctx context.Context, job *Job) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*Job)(nil)).
			Where("message_id = ?", job.MessageID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(job).Exec(ctx)
		return err
	})
	if err != nil {
		r.log.Error("failed to replace job",
			slog.String("message_id", job.MessageID),
			logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// MarkProcessing sets status to processing without touching output_data. It
// reports false when no job with that id and generation exists, which
// includes a delivery left over from an earlier submission.
func (r *Repository) MarkProcessing(ctx context.Context, messageID, generation string) (bool, error) {
	if generation == "" {
		return false, nil
	}
	res, err := r.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", StatusProcessing).
		Set("updated_at = current_timestamp").
		Where("message_id = ?", messageID).
		Where("generation = ?", generation).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to mark job processing",
			slog.String("message_id", messageID),
			logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return affected(res), nil
}

// SaveOutcome writes a terminal status, its output and the source tag. It
// only applies while the same generation is processing, so a stale delivery
// cannot overwrite a newer resubmission. A nil source keeps the stored one.
func (r *Repository) SaveOutcome(ctx context.Context, messageID, generation string, status Status, output json.RawMessage, source *string) (bool, error) {
	return r.transition(ctx, messageID, generation, StatusProcessing, status, output, source)
}

// FailQueued marks a job that never reached the queue as failed.
func (r *Repository) FailQueued(ctx context.Context, messageID, generation string, output json.RawMessage) (bool, error) {
	return r.transition(ctx, messageID, generation, StatusQueued, StatusFailed, output, nil)
}

func (r *Repository) transition(ctx context.Context, messageID, generation string, from, to Status, output json.RawMessage, source *string) (bool, error) {
	if generation == "" {
		return false, nil
	}
	res, err := r.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", to).
		Set("output_data = ?::jsonb", string(output)).
		Set("source = COALESCE(?, source)", source).
		Set("updated_at = current_timestamp").
		Where("message_id = ?", messageID).
		Where("generation = ?", generation).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to update job status",
			slog.String("message_id", messageID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return affected(res), nil
}

// Get returns a job by message_id
func (r *Repository) Get(ctx context.Context, messageID string) (*Job, error) {
	job := new(Job)
	err := r.db.NewSelect().
		Model(job).
		Where("message_id = ?", messageID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("job", messageID)
	}
	if err != nil {
		r.log.Error("failed to get job", slog.String("message_id", messageID), logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return job, nil
}

// CountByStatus returns the number of jobs in each status.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status `bun:"status"`
		Count  int64  `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*Job)(nil)).
		Column("status").
		ColumnExpr("count(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		r.log.Error("failed to count jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
