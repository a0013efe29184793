package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
	"github.com/hpungsan/bundler/internal/prompt"
)

// maxProcessTries bounds retries after losing an attempt-number race.
const maxProcessTries = 3

// Enqueuer hands a job to the background runner without blocking.
type Enqueuer interface {
	Enqueue(jobID string) error
}

// ProcessBundleInput contains parameters for the ProcessBundle operation.
type ProcessBundleInput struct {
	BundleID string
	Config   bundle.ProcessConfig

	// Queue is optional; without it the job stays pending until a runner sweeps it.
	Queue Enqueuer
}

// ProcessBundleOutput contains the result of the ProcessBundle operation.
type ProcessBundleOutput struct {
	Attempt      *bundle.Attempt `json:"attempt"`
	Deduplicated bool            `json:"deduplicated"`
	Queued       bool            `json:"queued"`
}

// ProcessBundle records a new attempt for a bundle and creates its pending job.
//
// With an idempotency key, a replay of the same config returns the attempt created
// first; a replay with a different config is CONFLICT.
func ProcessBundle(ctx context.Context, database *sql.DB, lib *prompt.Library, input ProcessBundleInput) (*ProcessBundleOutput, error) {
	bundleID := strings.TrimSpace(input.BundleID)
	if bundleID == "" {
		return nil, errors.NewInvalidRequest("bundle_id is required")
	}
	cfg := input.Config
	cfg.IdempotencyKey = strings.TrimSpace(cfg.IdempotencyKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lib = library(lib)

	requestHash := cfg.RequestHash()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = lib.SystemPrompt(cfg.ProcessingType, cfg.OutputLanguage)
	}

	b, err := db.GetBundle(ctx, database, bundleID)
	if err != nil {
		return nil, err
	}
	items, err := db.GetContentByIDs(ctx, database, b.ContentIDs)
	if err != nil {
		return nil, err
	}
	finalPrompt, err := lib.Final(cfg, b.ContentIDs, items, prompt.Preview(items))
	if err != nil {
		return nil, err
	}

	var out *ProcessBundleOutput
	for try := 1; ; try++ {
		out, err = insertAttempt(ctx, database, bundleID, cfg, requestHash, finalPrompt)
		if err != db.ErrUniqueConstraint || try == maxProcessTries {
			break
		}
	}
	if err == db.ErrUniqueConstraint {
		return nil, errors.NewConflict("concurrent submissions for bundle " + bundleID + "; retry")
	}
	if err != nil {
		return nil, err
	}

	if !out.Deduplicated && input.Queue != nil {
		out.Queued = input.Queue.Enqueue(out.Attempt.JobID) == nil
	}
	return out, nil
}

// insertAttempt runs the numbering, dedupe and insert in one write transaction.
// The counter update comes first so the transaction holds the write lock before it
// reads the current maximum.
func insertAttempt(ctx context.Context, database *sql.DB, bundleID string, cfg bundle.ProcessConfig, requestHash, finalPrompt string) (*ProcessBundleOutput, error) {
	now := time.Now().Unix()

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := db.IncrementAttemptCount(ctx, tx, bundleID, now); err != nil {
		return nil, err
	}

	var key *string
	if cfg.IdempotencyKey != "" {
		key = &cfg.IdempotencyKey
		existing, err := db.GetAttemptByIdempotencyKey(ctx, tx, bundleID, cfg.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.RequestHash != requestHash {
				return nil, errors.NewIdempotencyConflict(cfg.IdempotencyKey, existing.ID)
			}
			// Rolled back: the counter bump is discarded.
			return &ProcessBundleOutput{Attempt: existing, Deduplicated: true}, nil
		}
	}

	number, err := db.NextAttemptNumber(ctx, tx, bundleID)
	if err != nil {
		return nil, err
	}

	attempt := &bundle.Attempt{
		ID:                 generateULID(),
		BundleID:           bundleID,
		AttemptNumber:      number,
		ProcessingType:     cfg.ProcessingType,
		OutputLanguage:     cfg.OutputLanguage,
		CustomInstructions: cfg.CustomInstructions,
		SystemPrompt:       cfg.SystemPrompt,
		UserPrompt:         cfg.UserPrompt,
		FinalPrompt:        finalPrompt,
		FinalPromptHash:    prompt.Hash(finalPrompt),
		RequestHash:        requestHash,
		IdempotencyKey:     key,
		Status:             bundle.JobPending,
		CreatedAt:          now,
	}
	if err := db.InsertAttempt(ctx, tx, attempt); err != nil {
		return nil, err
	}

	job := &bundle.Job{
		ID:        generateULID(),
		AttemptID: attempt.ID,
		BundleID:  bundleID,
		Status:    bundle.JobPending,
		CreatedAt: now,
	}
	if err := db.InsertJob(ctx, tx, job); err != nil {
		return nil, err
	}
	attempt.JobID = job.ID

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &ProcessBundleOutput{Attempt: attempt}, nil
}

// PreviewBundleInput contains parameters for the PreviewBundle operation.
type PreviewBundleInput struct {
	BundleID string

	// Config is optional; without a processing type only the content preview is built.
	Config bundle.ProcessConfig
}

// PreviewBundleOutput is the prompt a ProcessBundle call with the same config would record.
type PreviewBundleOutput struct {
	Preview         string  `json:"combined_content_preview"`
	SystemPrompt    *string `json:"system_prompt,omitempty"`
	FinalPrompt     *string `json:"final_prompt,omitempty"`
	FinalPromptHash *string `json:"final_prompt_hash,omitempty"`
}

// PreviewBundle composes the content preview and, given a config, the final prompt.
func PreviewBundle(ctx context.Context, database *sql.DB, lib *prompt.Library, input PreviewBundleInput) (*PreviewBundleOutput, error) {
	bundleID := strings.TrimSpace(input.BundleID)
	if bundleID == "" {
		return nil, errors.NewInvalidRequest("bundle_id is required")
	}
	lib = library(lib)

	b, err := db.GetBundle(ctx, database, bundleID)
	if err != nil {
		return nil, err
	}
	items, err := db.GetContentByIDs(ctx, database, b.ContentIDs)
	if err != nil {
		return nil, err
	}

	out := &PreviewBundleOutput{Preview: prompt.Preview(items)}
	cfg := input.Config
	if cfg.ProcessingType == "" {
		return out, nil
	}
	if cfg.OutputLanguage == "" {
		cfg.OutputLanguage = bundle.English
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = lib.SystemPrompt(cfg.ProcessingType, cfg.OutputLanguage)
	}

	finalPrompt, err := lib.Final(cfg, b.ContentIDs, items, out.Preview)
	if err != nil {
		return nil, err
	}
	hash := prompt.Hash(finalPrompt)
	out.SystemPrompt = &cfg.SystemPrompt
	out.FinalPrompt = &finalPrompt
	out.FinalPromptHash = &hash
	return out, nil
}
