package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/errors"
)

const jobSelect = `
	SELECT j.id, j.attempt_id, a.bundle_id, j.status, j.result, j.error, j.tries,
		j.created_at, j.started_at, j.completed_at
	FROM jobs j
	JOIN attempts a ON a.id = j.attempt_id
`

// InsertJob stores a new pending job for an attempt.
func InsertJob(ctx context.Context, q Querier, j *bundle.Job) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO jobs (id, attempt_id, status, tries, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, j.ID, j.AttemptID, string(j.Status), j.Tries, j.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetJob retrieves a job by id.
func GetJob(ctx context.Context, q Querier, id string) (*bundle.Job, error) {
	row := q.QueryRowContext(ctx, jobSelect+` WHERE j.id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("job", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return j, nil
}

// ClaimJob moves a pending job to processing and counts the try.
// Returns false if another worker claimed it first or it is no longer pending.
func ClaimJob(ctx context.Context, q Querier, id string, now int64) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE jobs SET status = 'processing', tries = tries + 1, started_at = ?
		WHERE id = ? AND status = 'pending'
	`, now, id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n == 1, nil
}

// CompleteJob records a successful result.
func CompleteJob(ctx context.Context, q Querier, id, result string, now int64) error {
	return finishJob(ctx, q, id, bundle.JobCompleted, &result, nil, now)
}

// FailJob records a terminal failure.
func FailJob(ctx context.Context, q Querier, id, message string, now int64) error {
	return finishJob(ctx, q, id, bundle.JobFailed, nil, &message, now)
}

func finishJob(ctx context.Context, q Querier, id string, status bundle.JobStatus, result, message *string, now int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = ?, error = ?, completed_at = ?
		WHERE id = ? AND status = 'processing'
	`, string(status), toNullString(result), toNullString(message), now, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewConflict("job " + id + " is not processing")
	}
	return nil
}

// ReleaseJob returns a processing job to pending so it can be retried later.
func ReleaseJob(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', started_at = NULL WHERE id = ? AND status = 'processing'`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListPendingJobIDs returns up to limit pending job ids, oldest first.
func ListPendingJobIDs(ctx context.Context, q Querier, limit int) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM jobs WHERE status = 'pending' ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// ResetProcessingJobs returns jobs left in processing by a crashed process to pending.
func ResetProcessingJobs(ctx context.Context, q Querier) (int, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', started_at = NULL WHERE status = 'processing'`)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

func scanJob(row rowScanner) (*bundle.Job, error) {
	var (
		j           bundle.Job
		status      string
		result      sql.NullString
		message     sql.NullString
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)
	err := row.Scan(&j.ID, &j.AttemptID, &j.BundleID, &status, &result, &message, &j.Tries,
		&j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	j.Status = bundle.JobStatus(status)
	j.Result = fromNullString(result)
	j.Error = fromNullString(message)
	j.StartedAt = fromNullInt64(startedAt)
	j.CompletedAt = fromNullInt64(completedAt)
	return &j, nil
}
