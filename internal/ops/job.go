package ops

import (
	"bytes"
	"context"
	"database/sql"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
)

// Result formats
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// GetJobInput contains parameters for the GetJob operation.
type GetJobInput struct {
	ID string
}

// GetJob retrieves a job with its status, result and error.
func GetJob(ctx context.Context, database *sql.DB, input GetJobInput) (*bundle.Job, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetJob(ctx, database, id)
}

// JobResultInput contains parameters for the JobResult operation.
type JobResultInput struct {
	ID     string
	Format string // markdown (default) or html
}

// JobResultOutput is a completed job's result in the requested format.
type JobResultOutput struct {
	JobID  string `json:"job_id"`
	Format string `json:"format"`
	Body   string `json:"body"`
}

// JobResult returns the result of a completed job. Jobs that are not completed are CONFLICT.
func JobResult(ctx context.Context, database *sql.DB, input JobResultInput) (*JobResultOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatMarkdown
	}
	if format != FormatMarkdown && format != FormatHTML {
		return nil, errors.NewInvalidRequest("format must be one of: markdown, html")
	}

	job, err := GetJob(ctx, database, GetJobInput{ID: input.ID})
	if err != nil {
		return nil, err
	}
	if job.Status != bundle.JobCompleted || job.Result == nil {
		return nil, errors.NewConflict("job " + job.ID + " is " + string(job.Status))
	}

	body := *job.Result
	if format == FormatHTML {
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(body), &buf); err != nil {
			return nil, errors.NewInternal(err)
		}
		body = buf.String()
	}
	return &JobResultOutput{JobID: job.ID, Format: format, Body: body}, nil
}
