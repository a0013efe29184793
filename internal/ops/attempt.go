package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/diff"
	"github.com/hpungsan/bundler/internal/errors"
)

// ListAttemptsInput contains parameters for the ListAttempts operation.
type ListAttemptsInput struct {
	BundleID string
	Page     int
	PageSize int
}

// ListAttemptsOutput contains the result of the ListAttempts operation.
type ListAttemptsOutput struct {
	Items      []bundle.Attempt `json:"items"`
	Total      int              `json:"total"`
	Pagination Pagination       `json:"pagination"`
	Sort       string           `json:"sort"`
}

// ListAttempts lists a bundle's attempts by attempt number, each with its job status.
func ListAttempts(ctx context.Context, database *sql.DB, input ListAttemptsInput) (*ListAttemptsOutput, error) {
	bundleID := strings.TrimSpace(input.BundleID)
	if bundleID == "" {
		return nil, errors.NewInvalidRequest("bundle_id is required")
	}
	// An empty page must still distinguish a missing bundle.
	if _, err := db.GetBundle(ctx, database, bundleID); err != nil {
		return nil, err
	}

	page, size, offset := normalizePage(input.Page, input.PageSize)
	attempts, total, err := db.ListAttempts(ctx, database, bundleID, size, offset)
	if err != nil {
		return nil, err
	}
	return &ListAttemptsOutput{
		Items:      attempts,
		Total:      total,
		Pagination: newPagination(page, size, offset, len(attempts), total),
		Sort:       "attempt_number_asc",
	}, nil
}

// GetAttemptInput contains parameters for the GetAttempt operation.
type GetAttemptInput struct {
	ID string
}

// GetAttempt retrieves one attempt with its job status.
func GetAttempt(ctx context.Context, database *sql.DB, input GetAttemptInput) (*bundle.Attempt, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetAttempt(ctx, database, id)
}

// DiffAttemptsInput contains parameters for the DiffAttempts operation.
type DiffAttemptsInput struct {
	AttemptID1 string
	AttemptID2 string
}

// DiffAttempts compares two attempts of the same bundle in the order given.
func DiffAttempts(ctx context.Context, database *sql.DB, input DiffAttemptsInput) (*diff.AttemptDiff, error) {
	id1 := strings.TrimSpace(input.AttemptID1)
	id2 := strings.TrimSpace(input.AttemptID2)
	if id1 == "" || id2 == "" {
		return nil, errors.NewInvalidRequest("two attempt ids are required")
	}

	a1, err := db.GetAttempt(ctx, database, id1)
	if err != nil {
		return nil, err
	}
	a2, err := db.GetAttempt(ctx, database, id2)
	if err != nil {
		return nil, err
	}
	if a1.BundleID != a2.BundleID {
		return nil, errors.NewInvalidRequest("attempts belong to different bundles")
	}

	d := diff.Compare(*a1, *a2)
	return &d, nil
}
