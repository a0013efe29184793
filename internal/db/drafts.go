package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/bundler/internal/draft"
	"github.com/hpungsan/bundler/internal/errors"
)

// UpsertDraft overwrites the draft stored in d.Slot.
func UpsertDraft(ctx context.Context, q Querier, d *draft.Draft) error {
	state, err := json.Marshal(d.State)
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO drafts (slot, schema_version, state_json, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			schema_version = excluded.schema_version,
			state_json = excluded.state_json,
			saved_at = excluded.saved_at
	`, d.Slot, d.SchemaVersion, string(state), d.SavedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetDraft returns the draft in slot, or nil if none is stored.
// A state that no longer decodes is reported with a zero SchemaVersion so Check rejects it.
func GetDraft(ctx context.Context, q Querier, slot string) (*draft.Draft, error) {
	var (
		d     draft.Draft
		state string
	)
	err := q.QueryRowContext(ctx,
		`SELECT slot, schema_version, state_json, saved_at FROM drafts WHERE slot = ?`, slot,
	).Scan(&d.Slot, &d.SchemaVersion, &state, &d.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := json.Unmarshal([]byte(state), &d.State); err != nil {
		d.SchemaVersion = 0
		d.State = draft.FormState{}
	}
	return &d, nil
}

// DeleteDraftsBefore removes drafts saved before cutoff. Returns the count removed.
func DeleteDraftsBefore(ctx context.Context, q Querier, cutoff int64) (int, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM drafts WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}
