package ops

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/bundler/internal/errors"
	"github.com/hpungsan/bundler/internal/prompt"
)

// Pagination limits
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination contains pagination metadata for list operations.
// Pages are 1-based.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
	Total    int  `json:"total"`
}

// normalizePage applies defaults and bounds and returns the SQL limit and offset.
func normalizePage(page, pageSize int) (p, size, offset int) {
	size = pageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	p = max(page, 1)
	return p, size, (p - 1) * size
}

func newPagination(page, size, offset, returned, total int) Pagination {
	return Pagination{
		Page:     page,
		PageSize: size,
		HasMore:  offset+returned < total,
		Total:    total,
	}
}

// generateULID generates a new ULID.
func generateULID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// checkCancelled returns CANCELLED if ctx is done.
func checkCancelled(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return errors.NewCancelled(op)
	default:
		return nil
	}
}

// library falls back to the built-in prompts when no library is wired.
func library(lib *prompt.Library) *prompt.Library {
	if lib == nil {
		return prompt.Default()
	}
	return lib
}
