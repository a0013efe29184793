package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/draft"
	"github.com/hpungsan/bundler/internal/errors"
)

// SaveDraftInput contains parameters for the SaveDraft operation.
type SaveDraftInput struct {
	Slot  string // default: bundle-form
	State draft.FormState
}

// SaveDraft overwrites the draft in a slot.
func SaveDraft(ctx context.Context, database *sql.DB, input SaveDraftInput) (*draft.Draft, error) {
	d := &draft.Draft{
		Slot:          draft.NormalizeSlot(input.Slot),
		SchemaVersion: draft.SchemaVersion,
		SavedAt:       time.Now().Unix(),
		State:         input.State,
	}
	if err := db.UpsertDraft(ctx, database, d); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDraftInput contains parameters for the LoadDraft operation.
type LoadDraftInput struct {
	Slot string

	// Current is seeded from the draft: only its blank fields are filled.
	Current draft.FormState
}

// LoadDraftOutput contains the result of the LoadDraft operation.
type LoadDraftOutput struct {
	Slot    string          `json:"slot"`
	State   draft.FormState `json:"state"`
	Stale   bool            `json:"stale"`
	Reason  string          `json:"reason,omitempty"`
	SavedAt *int64          `json:"saved_at,omitempty"`
}

// LoadDraft restores a draft. Missing, expired and version-mismatched drafts load as
// Current unchanged, with the reason reported.
func LoadDraft(ctx context.Context, database *sql.DB, cfg *config.Config, input LoadDraftInput) (*LoadDraftOutput, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	slot := draft.NormalizeSlot(input.Slot)

	d, err := db.GetDraft(ctx, database, slot)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.DraftTTLHours) * time.Hour
	if reason := d.Check(time.Now(), ttl); reason != "" {
		return &LoadDraftOutput{
			Slot:   slot,
			State:  input.Current,
			Stale:  reason != draft.ReasonMissing,
			Reason: reason,
		}, nil
	}

	return &LoadDraftOutput{
		Slot:    slot,
		State:   draft.Seed(input.Current, d.State),
		SavedAt: &d.SavedAt,
	}, nil
}

// PurgeDraftsInput contains parameters for the PurgeDrafts operation.
type PurgeDraftsInput struct {
	OlderThan time.Duration // default: draft_ttl_hours
}

// PurgeDraftsOutput contains the result of the PurgeDrafts operation.
type PurgeDraftsOutput struct {
	Purged int `json:"purged"`
}

// PurgeDrafts deletes drafts saved longer ago than OlderThan.
func PurgeDrafts(ctx context.Context, database *sql.DB, cfg *config.Config, input PurgeDraftsInput) (*PurgeDraftsOutput, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	olderThan := input.OlderThan
	if olderThan == 0 {
		olderThan = time.Duration(cfg.DraftTTLHours) * time.Hour
	}
	if olderThan <= 0 {
		return nil, errors.NewInvalidRequest("older_than must be positive")
	}

	cutoff := time.Now().Add(-olderThan).Unix()
	n, err := db.DeleteDraftsBefore(ctx, database, cutoff)
	if err != nil {
		return nil, err
	}
	return &PurgeDraftsOutput{Purged: n}, nil
}
