package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/saeedzarbi/Ai-agent-worker/internal/migrate"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrate.NewMigrator(sqldb, zap.NewNop()).Up(ctx))
	_, err := db.ExecContext(ctx, "DELETE FROM extraction_jobs")
	require.NoError(t, err)

	return NewRepository(db, slog.Default())
}

func queuedJob(id string, source *string) *Job {
	return &Job{
		MessageID:   id,
		Generation:  uuid.NewString(),
		RequestText: adText,
		Agent:       "gemini",
		Status:      StatusQueued,
		OutputData:  PlaceholderOutput,
		Source:      source,
	}
}

func TestRepository_ReplaceKeepsLastSubmission(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first := queuedJob("r-1", nil)
	require.NoError(t, repo.Replace(ctx, first))
	found, err := repo.MarkProcessing(ctx, "r-1", first.Generation)
	require.NoError(t, err)
	require.True(t, found)

	second := queuedJob("r-1", nil)
	second.Agent = "chatgpt"
	require.NoError(t, repo.Replace(ctx, second))

	got, err := repo.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, "chatgpt", got.Agent)
	assert.Equal(t, second.Generation, got.Generation)
	assert.JSONEq(t, `{"message":"Job queued for processing"}`, string(got.OutputData))
	assert.False(t, got.CreatedAt.IsZero())

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Status]int64{StatusQueued: 1}, counts)
}

func TestRepository_MarkProcessingMatchesGeneration(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	job := queuedJob("r-2", nil)
	require.NoError(t, repo.Replace(ctx, job))

	found, err := repo.MarkProcessing(ctx, "r-2", uuid.NewString())
	require.NoError(t, err)
	assert.False(t, found, "stale generation")

	found, err = repo.MarkProcessing(ctx, "r-2", "")
	require.NoError(t, err)
	assert.False(t, found, "missing generation")

	found, err = repo.MarkProcessing(ctx, "missing", job.Generation)
	require.NoError(t, err)
	assert.False(t, found, "missing row")

	found, err = repo.MarkProcessing(ctx, "r-2", job.Generation)
	require.NoError(t, err)
	assert.True(t, found)

	got, err := repo.Get(ctx, "r-2")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.JSONEq(t, `{"message":"Job queued for processing"}`, string(got.OutputData))
}

func TestRepository_SaveOutcome(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	web := "web"
	job := queuedJob("r-3", &web)
	require.NoError(t, repo.Replace(ctx, job))

	output := json.RawMessage(`[{"city":"تهران","description":"` + adText + `"}]`)

	applied, err := repo.SaveOutcome(ctx, "r-3", job.Generation, StatusSuccess, output, nil)
	require.NoError(t, err)
	assert.False(t, applied, "not processing yet")

	_, err = repo.MarkProcessing(ctx, "r-3", job.Generation)
	require.NoError(t, err)

	applied, err = repo.SaveOutcome(ctx, "r-3", uuid.NewString(), StatusSuccess, output, nil)
	require.NoError(t, err)
	assert.False(t, applied, "stale generation")

	applied, err = repo.SaveOutcome(ctx, "r-3", job.Generation, StatusSuccess, output, nil)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := repo.Get(ctx, "r-3")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.JSONEq(t, string(output), string(got.OutputData))
	require.NotNil(t, got.Source)
	assert.Equal(t, "web", *got.Source, "nil source keeps the stored one")

	applied, err = repo.SaveOutcome(ctx, "r-3", job.Generation, StatusReject, MessageOutput("No real estate advertisement found"), nil)
	require.NoError(t, err)
	assert.False(t, applied, "terminal rows are not rewritten")
}

func TestRepository_SaveOutcomeOverridesSource(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	job := queuedJob("r-4", nil)
	require.NoError(t, repo.Replace(ctx, job))
	_, err := repo.MarkProcessing(ctx, "r-4", job.Generation)
	require.NoError(t, err)

	tg := "telegram"
	applied, err := repo.SaveOutcome(ctx, "r-4", job.Generation, StatusFailed, MessageOutput("timeout"), &tg)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := repo.Get(ctx, "r-4")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Source)
	assert.Equal(t, "telegram", *got.Source)
}

func TestRepository_FailQueued(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	job := queuedJob("r-5", nil)
	require.NoError(t, repo.Replace(ctx, job))

	applied, err := repo.FailQueued(ctx, "r-5", job.Generation, MessageOutput("failed to enqueue job"))
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.FailQueued(ctx, "r-5", job.Generation, MessageOutput("failed to enqueue job"))
	require.NoError(t, err)
	assert.False(t, applied, "already failed")

	got, err := repo.Get(ctx, "r-5")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.JSONEq(t, `{"message":"failed to enqueue job"}`, string(got.OutputData))
}

func TestRepository_GetNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get(context.Background(), "nope")
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.HTTPStatus)
}

func TestRepository_CountByStatus(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, id := range []string{"c-1", "c-2", "c-3"} {
		require.NoError(t, repo.Replace(ctx, queuedJob(id, nil)))
	}
	got, err := repo.Get(ctx, "c-3")
	require.NoError(t, err)
	_, err = repo.MarkProcessing(ctx, "c-3", got.Generation)
	require.NoError(t, err)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Status]int64{StatusQueued: 2, StatusProcessing: 1}, counts)
}
