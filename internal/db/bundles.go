package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/errors"
)

// InsertBundle stores a bundle row and its ordered content references.
// Callers should run it inside a transaction.
func InsertBundle(ctx context.Context, q Querier, b *bundle.Bundle) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO bundles (id, name, attempt_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, toNullString(b.Name), b.AttemptCount, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	for i, contentID := range b.ContentIDs {
		_, err := q.ExecContext(ctx,
			`INSERT INTO bundle_items (bundle_id, position, content_id) VALUES (?, ?, ?)`,
			b.ID, i, contentID)
		if err != nil {
			if isForeignKeyError(err) {
				return errors.NewNotFound("content", contentID)
			}
			if isUniqueConstraintError(err) {
				return errors.NewInvalidRequest("duplicate content id: " + contentID)
			}
			return errors.NewInternal(err)
		}
	}
	return nil
}

// GetBundle retrieves a bundle with its content ids in stored order.
func GetBundle(ctx context.Context, q Querier, id string) (*bundle.Bundle, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, attempt_count, created_at, updated_at
		FROM bundles WHERE id = ?
	`, id)

	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("bundle", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	b.ContentIDs, err = bundleContentIDs(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBundles returns a page of bundles, most recently updated first, with the total count.
func ListBundles(ctx context.Context, q Querier, limit, offset int) ([]bundle.Bundle, int, error) {
	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bundles`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, name, attempt_count, created_at, updated_at
		FROM bundles
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	bundles := make([]bundle.Bundle, 0)
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			rows.Close()
			return nil, 0, errors.NewInternal(err)
		}
		bundles = append(bundles, *b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, errors.NewInternal(err)
	}
	rows.Close()

	// Second pass after rows are released; a single pooled connection would deadlock otherwise.
	for i := range bundles {
		ids, err := bundleContentIDs(ctx, q, bundles[i].ID)
		if err != nil {
			return nil, 0, err
		}
		bundles[i].ContentIDs = ids
	}
	return bundles, total, nil
}

// UpdateBundleName sets or clears a bundle's name.
func UpdateBundleName(ctx context.Context, q Querier, id string, name *string, updatedAt int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE bundles SET name = ?, updated_at = ? WHERE id = ?`,
		toNullString(name), updatedAt, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireAffected(res, "bundle", id)
}

// DeleteBundle removes a bundle. Attempts, jobs and bundle items cascade.
func DeleteBundle(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM bundles WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireAffected(res, "bundle", id)
}

// IncrementAttemptCount bumps the bundle's attempt counter and touches updated_at.
func IncrementAttemptCount(ctx context.Context, q Querier, id string, updatedAt int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE bundles SET attempt_count = attempt_count + 1, updated_at = ? WHERE id = ?`,
		updatedAt, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireAffected(res, "bundle", id)
}

func bundleContentIDs(ctx context.Context, q Querier, bundleID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT content_id FROM bundle_items WHERE bundle_id = ? ORDER BY position`, bundleID)
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

func scanBundle(row rowScanner) (*bundle.Bundle, error) {
	var (
		b    bundle.Bundle
		name sql.NullString
	)
	if err := row.Scan(&b.ID, &name, &b.AttemptCount, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Name = fromNullString(name)
	return &b, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}
