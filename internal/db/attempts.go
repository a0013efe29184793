package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/errors"
)

// Attempts are always read joined with their job so status is visible without a second lookup.
const attemptSelect = `
	SELECT a.id, a.bundle_id, a.attempt_number, a.processing_type, a.output_language,
		a.custom_instructions, a.system_prompt, a.user_prompt, a.final_prompt,
		a.final_prompt_hash, a.request_hash, a.idempotency_key, a.created_at,
		COALESCE(j.id, ''), COALESCE(j.status, 'pending')
	FROM attempts a
	LEFT JOIN jobs j ON j.attempt_id = a.id
`

// NextAttemptNumber returns max(attempt_number)+1 for the bundle, starting at 1.
// Must run in the same transaction as the insert.
func NextAttemptNumber(ctx context.Context, q Querier, bundleID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM attempts WHERE bundle_id = ?`,
		bundleID).Scan(&n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// InsertAttempt stores an attempt snapshot. JobID and Status are not persisted here.
func InsertAttempt(ctx context.Context, q Querier, a *bundle.Attempt) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO attempts (
			id, bundle_id, attempt_number, processing_type, output_language,
			custom_instructions, system_prompt, user_prompt, final_prompt,
			final_prompt_hash, request_hash, idempotency_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.BundleID, a.AttemptNumber, string(a.ProcessingType), string(a.OutputLanguage),
		toNullString(a.CustomInstructions), a.SystemPrompt, toNullString(a.UserPrompt), a.FinalPrompt,
		a.FinalPromptHash, a.RequestHash, toNullString(a.IdempotencyKey), a.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		if isForeignKeyError(err) {
			return errors.NewNotFound("bundle", a.BundleID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// GetAttempt retrieves an attempt with its job id and status.
func GetAttempt(ctx context.Context, q Querier, id string) (*bundle.Attempt, error) {
	row := q.QueryRowContext(ctx, attemptSelect+` WHERE a.id = ?`, id)
	a, err := ScanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("attempt", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

// GetAttemptByIdempotencyKey returns the attempt previously created with key, or nil.
func GetAttemptByIdempotencyKey(ctx context.Context, q Querier, bundleID, key string) (*bundle.Attempt, error) {
	row := q.QueryRowContext(ctx,
		attemptSelect+` WHERE a.bundle_id = ? AND a.idempotency_key = ?`, bundleID, key)
	a, err := ScanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

// ListAttempts returns a page of a bundle's attempts by attempt_number ascending, with the total.
func ListAttempts(ctx context.Context, q Querier, bundleID string, limit, offset int) ([]bundle.Attempt, int, error) {
	var total int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE bundle_id = ?`, bundleID).Scan(&total)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := q.QueryContext(ctx,
		attemptSelect+` WHERE a.bundle_id = ? ORDER BY a.attempt_number ASC LIMIT ? OFFSET ?`,
		bundleID, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	attempts := make([]bundle.Attempt, 0)
	for rows.Next() {
		a, err := ScanAttempt(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return attempts, total, nil
}

// StreamAttempts returns a cursor over every attempt of a bundle in attempt_number order.
// Caller must close the rows.
func StreamAttempts(ctx context.Context, q Querier, bundleID string) (*sql.Rows, error) {
	rows, err := q.QueryContext(ctx,
		attemptSelect+` WHERE a.bundle_id = ? ORDER BY a.attempt_number ASC`, bundleID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// ScanAttempt scans one row produced by an attempt query.
func ScanAttempt(row rowScanner) (*bundle.Attempt, error) {
	var (
		a              bundle.Attempt
		processingType string
		language       string
		custom         sql.NullString
		userPrompt     sql.NullString
		idemKey        sql.NullString
		status         string
	)

	err := row.Scan(
		&a.ID, &a.BundleID, &a.AttemptNumber, &processingType, &language,
		&custom, &a.SystemPrompt, &userPrompt, &a.FinalPrompt,
		&a.FinalPromptHash, &a.RequestHash, &idemKey, &a.CreatedAt,
		&a.JobID, &status,
	)
	if err != nil {
		return nil, err
	}

	a.ProcessingType = bundle.ProcessingType(processingType)
	a.OutputLanguage = bundle.Language(language)
	a.CustomInstructions = fromNullString(custom)
	a.UserPrompt = fromNullString(userPrompt)
	a.IdempotencyKey = fromNullString(idemKey)
	a.Status = bundle.JobStatus(status)
	return &a, nil
}
