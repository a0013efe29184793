package ops

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/content"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
)

// maxImportLine bounds a single JSONL record, extracted text included.
const maxImportLine = 16 << 20

// ImportInput contains parameters for the ImportContent operation.
type ImportInput struct {
	Path string // required, .jsonl directly in an allowed directory
}

// ImportOutput contains the result of the ImportContent operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents a record that could not be imported.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportContent imports content items from a JSONL file.
// Valid lines are imported; invalid lines and id collisions are reported and skipped.
func ImportContent(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	return importRecords(ctx, database, file)
}

func importRecords(ctx context.Context, database *sql.DB, r io.Reader) (*ImportOutput, error) {
	out := &ImportOutput{Errors: []ImportError{}}
	now := time.Now().Unix()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if err := checkCancelled(ctx, "import"); err != nil {
			return nil, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		record, err := content.ParseRecord(line)
		if err != nil {
			out.Errors = append(out.Errors, ImportError{
				Line:    lineNum,
				Code:    "INVALID_RECORD",
				Message: err.Error(),
			})
			out.Skipped++
			continue
		}

		item, text := record.ToItem(generateULID(), now)
		if err := db.InsertContent(ctx, database, item, text); err != nil {
			if err != db.ErrUniqueConstraint {
				return nil, err
			}
			out.Errors = append(out.Errors, ImportError{
				Line:    lineNum,
				ID:      item.ID,
				Code:    "ID_COLLISION",
				Message: fmt.Sprintf("content with id %q already exists", item.ID),
			})
			out.Skipped++
			continue
		}
		out.Imported++
	}

	if err := scanner.Err(); err != nil {
		out.Errors = append(out.Errors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return out, nil
}
