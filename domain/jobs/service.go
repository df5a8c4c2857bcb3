package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/saeedzarbi/Ai-agent-worker/domain/agent"
	"github.com/saeedzarbi/Ai-agent-worker/domain/counters"
	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

const maxMessageIDLength = 255

// Store is the job persistence used by the service and the consumer.
type Store interface {
	Replace(ctx context.Context, job *Job) error
	MarkProcessing(ctx context.Context, messageID, generation string) (bool, error)
	SaveOutcome(ctx context.Context, messageID, generation string, status Status, output json.RawMessage, source *string) (bool, error)
	FailQueued(ctx context.Context, messageID, generation string, output json.RawMessage) (bool, error)
	Get(ctx context.Context, messageID string) (*Job, error)
}

// Accounting is the subset of the counter accountant used at submission.
type Accounting interface {
	Enqueued(ctx context.Context) error
	Info(ctx context.Context) (counters.Info, error)
}

// Service handles job submission and status queries
type Service struct {
	store         Store
	queue         queue.Queue
	counters      Accounting
	minTextLength int
	log           *slog.Logger
}

// NewService creates a new jobs service
func NewService(store Store, q queue.Queue, acct Accounting, minTextLength int, log *slog.Logger) *Service {
	return &Service{
		store:         store,
		queue:         q,
		counters:      acct,
		minTextLength: minTextLength,
		log:           log.With(logger.Scope("jobs.svc")),
	}
}

// NewServiceFromConfig wires the service for fx.
func NewServiceFromConfig(cfg *config.Config, store Store, q queue.Queue, acct *counters.Accountant, log *slog.Logger) *Service {
	return NewService(store, q, acct, cfg.Agent.MinTextLength, log)
}

// Validate checks a submission and returns per-field messages.
func (s *Service) Validate(req SubmitRequest) map[string]string {
	fields := make(map[string]string)

	switch id := strings.TrimSpace(req.MessageID); {
	case id == "":
		fields["message_id"] = "message_id is required"
	case len(req.MessageID) > maxMessageIDLength:
		fields["message_id"] = fmt.Sprintf("message_id must be at most %d characters", maxMessageIDLength)
	}

	if n := utf8.RuneCountInString(strings.TrimSpace(req.Text)); n < s.minTextLength {
		fields["text"] = fmt.Sprintf("text must be at least %d characters", s.minTextLength)
	}

	if _, err := agent.ParseProvider(req.Agent); err != nil {
		fields["agent"] = fmt.Sprintf("agent must be one of %s", strings.Join(agent.ProviderNames(), ", "))
	}

	return fields
}

// Submit stores a queued job, replacing any previous one with the same
// message_id, and publishes it for the consumer.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if fields := s.Validate(req); len(fields) > 0 {
		return nil, apperror.NewValidation(fields)
	}

	job := &Job{
		MessageID:   req.MessageID,
		Generation:  uuid.NewString(),
		RequestText: req.Text,
		Agent:       req.Agent,
		Status:      StatusQueued,
		OutputData:  PlaceholderOutput,
		Source:      req.Source,
	}
	if err := s.store.Replace(ctx, job); err != nil {
		return nil, err
	}

	msg := queue.Message{
		MessageID:  req.MessageID,
		Generation: job.Generation,
		Text:       req.Text,
		Agent:      req.Agent,
		Source:     req.Source,
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		s.log.Error("failed to publish job",
			slog.String("message_id", req.MessageID),
			logger.Error(err))
		if _, ferr := s.store.FailQueued(ctx, req.MessageID, job.Generation, MessageOutput("failed to enqueue job")); ferr != nil {
			s.log.Error("failed to mark unpublished job failed",
				slog.String("message_id", req.MessageID),
				logger.Error(ferr))
		}
		return nil, apperror.ErrServiceUnavailable.WithMessage("failed to enqueue job").WithInternal(err)
	}

	if err := s.counters.Enqueued(ctx); err != nil {
		s.log.Warn("failed to increment queue_size", logger.Error(err))
	}

	s.log.Info("job queued",
		slog.String("message_id", req.MessageID),
		slog.String("agent", req.Agent))

	return &SubmitResponse{MessageID: req.MessageID, Status: StatusQueued}, nil
}

// Get returns the current projection of a job.
func (s *Service) Get(ctx context.Context, messageID string) (*JobResponse, error) {
	job, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return toResponse(job), nil
}

// QueueInfo reports the advisory counters and the backend's own depth.
func (s *Service) QueueInfo(ctx context.Context) (*QueueInfoResponse, error) {
	info, err := s.counters.Info(ctx)
	if err != nil {
		s.log.Error("failed to read counters", logger.Error(err))
		return nil, apperror.ErrServiceUnavailable.WithMessage("counters unavailable").WithInternal(err)
	}

	resp := &QueueInfoResponse{
		QueueSize:                info.QueueSize,
		ActiveProcessing:         info.ActiveProcessing,
		MaxConcurrency:           info.MaxConcurrency,
		AvailableProcessingSlots: info.AvailableProcessingSlots,
	}

	if stats, err := s.queue.Stats(ctx); err != nil {
		s.log.Warn("failed to read queue stats", logger.Error(err))
	} else {
		resp.QueueDepth = &stats.Pending
	}

	return resp, nil
}
