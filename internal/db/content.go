package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/bundler/internal/content"
	"github.com/hpungsan/bundler/internal/errors"
)

const contentColumns = `id, source_type, title, url, char_count, page_count,
	tags_json, detected_language, extracted_text IS NOT NULL, created_at`

// InsertContent stores a content item and its optional extracted text.
func InsertContent(ctx context.Context, q Querier, item *content.Item, text *string) error {
	tagsJSON, err := marshalTags(item.Tags)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO content_items (
			id, source_type, title, url, char_count, page_count,
			tags_json, detected_language, extracted_text, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = q.ExecContext(ctx, query,
		item.ID, item.SourceType, toNullString(item.Metadata.Title), toNullString(item.Metadata.URL),
		toNullInt(item.Metadata.CharCount), toNullInt(item.Metadata.PageCount),
		tagsJSON, toNullString(item.DetectedLanguage), toNullString(text), item.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	item.HasText = text != nil
	return nil
}

// GetContent retrieves a content item by id.
func GetContent(ctx context.Context, q Querier, id string) (*content.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanContent(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("content", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return item, nil
}

// GetContentByIDs retrieves items in ids order. Fails with NOT_FOUND on the first missing id.
func GetContentByIDs(ctx context.Context, q Querier, ids []string) ([]content.Item, error) {
	if len(ids) == 0 {
		return []content.Item{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM content_items WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	byID := make(map[string]content.Item, len(ids))
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		byID[item.ID] = *item
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	items := make([]content.Item, 0, len(ids))
	for i, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("content_ids[%d]: %w", i, errors.NewNotFound("content", id))
		}
		items = append(items, item)
	}
	return items, nil
}

// GetContentTexts returns extracted text keyed by id for the items that have it.
func GetContentTexts(ctx context.Context, q Querier, ids []string) (map[string]string, error) {
	texts := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return texts, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, extracted_text FROM content_items
		 WHERE extracted_text IS NOT NULL AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, errors.NewInternal(err)
		}
		texts[id] = text
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return texts, nil
}

// ListContent returns a page of content items, newest first, with the total count.
// An empty sourceType matches every item.
func ListContent(ctx context.Context, q Querier, sourceType string, limit, offset int) ([]content.Item, int, error) {
	where := ""
	var args []any
	if sourceType != "" {
		where = " WHERE source_type = ?"
		args = append(args, sourceType)
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM content_items`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	items := make([]content.Item, 0)
	for rows.Next() {
		item, err := scanContent(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return items, total, nil
}

func scanContent(row rowScanner) (*content.Item, error) {
	var (
		item      content.Item
		title     sql.NullString
		url       sql.NullString
		charCount sql.NullInt64
		pageCount sql.NullInt64
		tagsJSON  sql.NullString
		lang      sql.NullString
	)

	err := row.Scan(
		&item.ID, &item.SourceType, &title, &url, &charCount, &pageCount,
		&tagsJSON, &lang, &item.HasText, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Metadata = content.Metadata{
		Title:     fromNullString(title),
		URL:       fromNullString(url),
		CharCount: fromNullInt(charCount),
		PageCount: fromNullInt(pageCount),
	}
	item.DetectedLanguage = fromNullString(lang)

	item.Tags, err = unmarshalTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
