package jobs

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Status is a Job's position in the processing lifecycle.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusReject     Status = "reject"
)

// PlaceholderOutput is stored while a job is queued.
var PlaceholderOutput = MessageOutput("Job queued for processing")

// MessageOutput renders the {"message": ...} payload used by every
// non-success status.
func MessageOutput(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return b
}

// Job is one tracked submission. Generation is minted per submission and
// travels with its queue message; writes from an older generation's
// delivery never match the row.
type Job struct {
	bun.BaseModel `bun:"table:extraction_jobs,alias:j"`

	MessageID   string          `bun:"message_id,pk" json:"message_id"`
	Generation  string          `bun:"generation,type:uuid,notnull" json:"-"`
	RequestText string          `bun:"request_text,notnull" json:"-"`
	Agent       string          `bun:"agent,notnull" json:"agent"`
	Status      Status          `bun:"status,notnull" json:"status"`
	OutputData  json.RawMessage `bun:"output_data,type:jsonb,notnull" json:"output_data"`
	Source      *string         `bun:"source" json:"source"`
	CreatedAt   time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"-"`
}

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	MessageID string  `json:"message_id"`
	Text      string  `json:"text"`
	Agent     string  `json:"agent"`
	Source    *string `json:"source,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	MessageID string `json:"message_id"`
	Status    Status `json:"status"`
}

// JobResponse is the status-query projection.
type JobResponse struct {
	MessageID  string          `json:"message_id"`
	Status     Status          `json:"status"`
	Agent      string          `json:"agent"`
	OutputData json.RawMessage `json:"output_data"`
	CreatedAt  time.Time       `json:"created_at"`
	Source     *string         `json:"source"`
}

func toResponse(j *Job) *JobResponse {
	return &JobResponse{
		MessageID:  j.MessageID,
		Status:     j.Status,
		Agent:      j.Agent,
		OutputData: j.OutputData,
		CreatedAt:  j.CreatedAt,
		Source:     j.Source,
	}
}

// QueueInfoResponse is returned by GET /api/queue/info. QueueDepth comes
// from the queue backend itself and is omitted when it cannot be read.
type QueueInfoResponse struct {
	QueueSize                int64  `json:"queue_size"`
	ActiveProcessing         int64  `json:"active_processing"`
	MaxConcurrency           int64  `json:"max_concurrency"`
	AvailableProcessingSlots int64  `json:"available_processing_slots"`
	QueueDepth               *int64 `json:"queue_depth,omitempty"`
}
