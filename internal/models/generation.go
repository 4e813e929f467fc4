package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a generation job
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// GenerationJob is the per-generation log row. Cost must equal the amount
// actually debited from the account for this job. Jobs created by the proxy
// path start as processing and carry the provider request id so the
// reconciler can drive them to a terminal state.
type GenerationJob struct {
	ID                uuid.UUID `json:"id"`
	AccountID         uuid.UUID `json:"account_id"`
	Prompt            string    `json:"prompt"`
	Model             string    `json:"model"`
	ImageURL          *string   `json:"image_url,omitempty"`
	Cost              int       `json:"cost"`
	Status            JobStatus `json:"status"`
	ProviderRequestID *string   `json:"provider_request_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GenerationHistoryRequest represents a paged generation history query.
type GenerationHistoryRequest struct {
	AccountID uuid.UUID
	Limit     int
	Offset    int
}
