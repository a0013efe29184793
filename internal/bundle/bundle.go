package bundle

import (
	"github.com/hpungsan/bundler/internal/content"
)

// Bundle is a named, ordered collection of content item references processed together.
type Bundle struct {
	// ID is a ULID that uniquely identifies this bundle
	ID string `json:"id"`

	Name *string `json:"name"`

	// ContentIDs is ordered and free of duplicates; order drives prompt layout
	ContentIDs []string `json:"content_ids"`

	// ContentItems is hydrated in ContentIDs order on single-bundle reads
	ContentItems []content.Item `json:"content_items,omitempty"`

	AttemptCount int `json:"attempt_count"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// JobStatus is the lifecycle state of the job spawned by an attempt.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Attempt is the immutable snapshot of the configuration used for one processing run.
type Attempt struct {
	ID            string `json:"id"`
	BundleID      string `json:"bundle_id"`
	AttemptNumber int    `json:"attempt_number"`

	ProcessingType ProcessingType `json:"processing_type"`
	OutputLanguage Language       `json:"output_language"`

	// CustomInstructions nil and "" are distinct values
	CustomInstructions *string `json:"custom_instructions"`
	SystemPrompt       string  `json:"system_prompt"`
	UserPrompt         *string `json:"user_prompt"`

	// FinalPrompt is composed against the content preview, not extracted text
	FinalPrompt     string `json:"final_prompt,omitempty"`
	FinalPromptHash string `json:"final_prompt_hash"`

	// RequestHash fingerprints the submitted config for idempotent replays
	RequestHash    string  `json:"-"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`

	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	CreatedAt int64     `json:"created_at"`
}

// Job tracks asynchronous execution of one attempt.
type Job struct {
	ID          string    `json:"id"`
	AttemptID   string    `json:"attempt_id"`
	BundleID    string    `json:"bundle_id"`
	Status      JobStatus `json:"status"`
	Result      *string   `json:"result,omitempty"`
	Error       *string   `json:"error,omitempty"`
	Tries       int       `json:"tries"`
	CreatedAt   int64     `json:"created_at"`
	StartedAt   *int64    `json:"started_at,omitempty"`
	CompletedAt *int64    `json:"completed_at,omitempty"`
}
