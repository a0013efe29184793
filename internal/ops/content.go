package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/bundler/internal/content"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
)

// ListContentInput contains parameters for the ListContent operation.
type ListContentInput struct {
	Page       int    // default: 1
	PageSize   int    // default: 20, max: 100
	SourceType string // optional filter
}

// ListContentOutput contains the result of the ListContent operation.
type ListContentOutput struct {
	Items      []content.Item `json:"items"`
	Total      int            `json:"total"`
	Pagination Pagination     `json:"pagination"`
}

// ListContent lists content items, newest first.
func ListContent(ctx context.Context, database *sql.DB, input ListContentInput) (*ListContentOutput, error) {
	page, size, offset := normalizePage(input.Page, input.PageSize)

	items, total, err := db.ListContent(ctx, database, strings.TrimSpace(input.SourceType), size, offset)
	if err != nil {
		return nil, err
	}

	return &ListContentOutput{
		Items:      items,
		Total:      total,
		Pagination: newPagination(page, size, offset, len(items), total),
	}, nil
}

// GetContentInput contains parameters for the GetContent operation.
type GetContentInput struct {
	ID          string
	IncludeText bool
}

// GetContentOutput is a content item, optionally with its extracted text.
type GetContentOutput struct {
	content.Item
	Text *string `json:"text,omitempty"`
}

// GetContent retrieves one content item.
func GetContent(ctx context.Context, database *sql.DB, input GetContentInput) (*GetContentOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	item, err := db.GetContent(ctx, database, id)
	if err != nil {
		return nil, err
	}

	out := &GetContentOutput{Item: *item}
	if input.IncludeText && item.HasText {
		texts, err := db.GetContentTexts(ctx, database, []string{id})
		if err != nil {
			return nil, err
		}
		if text, ok := texts[id]; ok {
			out.Text = &text
		}
	}
	return out, nil
}
