package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
)

// CreateBundleInput contains parameters for the CreateBundle operation.
type CreateBundleInput struct {
	Name       *string
	ContentIDs []string // required, ordered, unique
}

// CreateBundle creates a bundle over existing content items.
func CreateBundle(ctx context.Context, database *sql.DB, cfg *config.Config, input CreateBundleInput) (*bundle.Bundle, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	ids, err := bundle.ValidateContentIDs(input.ContentIDs, cfg.MaxBundleItems)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	b := &bundle.Bundle{
		ID:         generateULID(),
		Name:       bundle.CleanName(input.Name),
		ContentIDs: ids,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Resolve first so a missing item reports its position.
	items, err := db.GetContentByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if err := db.InsertBundle(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}

	b.ContentItems = items
	return b, nil
}

// GetBundleInput contains parameters for the GetBundle operation.
type GetBundleInput struct {
	ID string
}

// GetBundle retrieves a bundle with its content items hydrated in bundle order.
func GetBundle(ctx context.Context, database *sql.DB, input GetBundleInput) (*bundle.Bundle, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	b, err := db.GetBundle(ctx, database, id)
	if err != nil {
		return nil, err
	}
	b.ContentItems, err = db.GetContentByIDs(ctx, database, b.ContentIDs)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBundlesInput contains parameters for the ListBundles operation.
type ListBundlesInput struct {
	Page     int
	PageSize int
}

// ListBundlesOutput contains the result of the ListBundles operation.
type ListBundlesOutput struct {
	Items      []bundle.Bundle `json:"items"`
	Total      int             `json:"total"`
	Pagination Pagination      `json:"pagination"`
}

// ListBundles lists bundles, most recently updated first.
func ListBundles(ctx context.Context, database *sql.DB, input ListBundlesInput) (*ListBundlesOutput, error) {
	page, size, offset := normalizePage(input.Page, input.PageSize)

	bundles, total, err := db.ListBundles(ctx, database, size, offset)
	if err != nil {
		return nil, err
	}
	return &ListBundlesOutput{
		Items:      bundles,
		Total:      total,
		Pagination: newPagination(page, size, offset, len(bundles), total),
	}, nil
}

// UpdateBundleInput contains parameters for the UpdateBundle operation.
// Content ids are fixed at creation; only the name can change.
type UpdateBundleInput struct {
	ID   string
	Name *string // nil or blank clears the name
}

// UpdateBundle renames a bundle.
func UpdateBundle(ctx context.Context, database *sql.DB, input UpdateBundleInput) (*bundle.Bundle, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := db.UpdateBundleName(ctx, database, id, bundle.CleanName(input.Name), time.Now().Unix()); err != nil {
		return nil, err
	}
	return db.GetBundle(ctx, database, id)
}

// DeleteBundleInput contains parameters for the DeleteBundle operation.
type DeleteBundleInput struct {
	ID string
}

// DeleteBundleOutput contains the result of the DeleteBundle operation.
type DeleteBundleOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteBundle deletes a bundle together with its attempts and jobs.
func DeleteBundle(ctx context.Context, database *sql.DB, input DeleteBundleInput) (*DeleteBundleOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := db.DeleteBundle(ctx, database, id); err != nil {
		return nil, err
	}
	return &DeleteBundleOutput{Deleted: true, ID: id}, nil
}
