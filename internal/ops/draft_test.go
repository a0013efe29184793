package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/draft"
	"github.com/hpungsan/bundler/internal/errors"
)

func TestDraft_SaveAndLoad(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()

	saved, err := SaveDraft(ctx, database, SaveDraftInput{State: draft.FormState{
		ProcessingType:     "mvp_plan",
		CustomInstructions: "Keep it short",
		BundleName:         "Q3",
	}})
	require.NoError(t, err)
	require.Equal(t, draft.DefaultSlot, saved.Slot)
	require.Equal(t, draft.SchemaVersion, saved.SchemaVersion)

	out, err := LoadDraft(ctx, database, cfg, LoadDraftInput{
		Current: draft.FormState{ProcessingType: "summary", OutputLanguage: "en"},
	})
	require.NoError(t, err)
	require.False(t, out.Stale)
	require.NotNil(t, out.SavedAt)
	require.Equal(t, "summary", out.State.ProcessingType, "current value wins")
	require.Equal(t, "Keep it short", out.State.CustomInstructions)
	require.Equal(t, "Q3", out.State.BundleName)
}

func TestDraft_LastWriteWins(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_, err := SaveDraft(ctx, database, SaveDraftInput{Slot: "s", State: draft.FormState{BundleName: "one"}})
	require.NoError(t, err)
	_, err = SaveDraft(ctx, database, SaveDraftInput{Slot: "s", State: draft.FormState{UserPrompt: "two"}})
	require.NoError(t, err)

	out, err := LoadDraft(ctx, database, nil, LoadDraftInput{Slot: "s"})
	require.NoError(t, err)
	require.Equal(t, draft.FormState{UserPrompt: "two"}, out.State)
}

func TestDraft_MissingExpiredAndVersionMismatch(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.DraftTTLHours = 1
	current := draft.FormState{OutputLanguage: "es"}

	out, err := LoadDraft(ctx, database, cfg, LoadDraftInput{Slot: "none", Current: current})
	require.NoError(t, err)
	require.False(t, out.Stale)
	require.Equal(t, draft.ReasonMissing, out.Reason)
	require.Equal(t, current, out.State)

	old := &draft.Draft{Slot: "old", SchemaVersion: draft.SchemaVersion,
		SavedAt: time.Now().Add(-2 * time.Hour).Unix(), State: draft.FormState{BundleName: "stale"}}
	require.NoError(t, db.UpsertDraft(ctx, database, old))
	out, err = LoadDraft(ctx, database, cfg, LoadDraftInput{Slot: "old", Current: current})
	require.NoError(t, err)
	require.True(t, out.Stale)
	require.Equal(t, draft.ReasonExpired, out.Reason)
	require.Equal(t, current, out.State, "stale fields are not merged")

	future := &draft.Draft{Slot: "v2", SchemaVersion: draft.SchemaVersion + 1,
		SavedAt: time.Now().Unix(), State: draft.FormState{BundleName: "other shape"}}
	require.NoError(t, db.UpsertDraft(ctx, database, future))
	out, err = LoadDraft(ctx, database, cfg, LoadDraftInput{Slot: "v2"})
	require.NoError(t, err)
	require.True(t, out.Stale)
	require.Equal(t, draft.ReasonVersionMismatch, out.Reason)
	require.True(t, out.State.Empty())
}

func TestPurgeDrafts(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	old := &draft.Draft{Slot: "old", SchemaVersion: draft.SchemaVersion, SavedAt: time.Now().Add(-48 * time.Hour).Unix()}
	require.NoError(t, db.UpsertDraft(ctx, database, old))
	_, err := SaveDraft(ctx, database, SaveDraftInput{Slot: "fresh"})
	require.NoError(t, err)

	out, err := PurgeDrafts(ctx, database, nil, PurgeDraftsInput{OlderThan: 24 * time.Hour})
	require.NoError(t, err)
	require.Equal(t, 1, out.Purged)

	_, err = PurgeDrafts(ctx, database, nil, PurgeDraftsInput{OlderThan: -time.Hour})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
