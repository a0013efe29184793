package content

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed record.schema.json
var recordSchemaJSON []byte

var compileRecordSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.schema.json", bytes.NewReader(recordSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load record schema: %w", err)
	}
	schema, err := compiler.Compile("record.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %w", err)
	}
	return schema, nil
})

// ImportRecord is one line of a JSONL content import file.
type ImportRecord struct {
	ID               string   `json:"id,omitempty"`
	SourceType       string   `json:"source_type"`
	Title            *string  `json:"title,omitempty"`
	URL              *string  `json:"url,omitempty"`
	Text             *string  `json:"text,omitempty"`
	PageCount        *int     `json:"page_count,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	DetectedLanguage *string  `json:"detected_language,omitempty"`
	CreatedAt        int64    `json:"created_at,omitempty"`
}

// ParseRecord validates a raw JSON line against the record schema and decodes it.
func ParseRecord(line []byte) (*ImportRecord, error) {
	schema, err := compileRecordSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("record does not match schema: %w", err)
	}

	var record ImportRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return &record, nil
}

// ToItem converts a record to an Item and its optional extracted text.
// id and now are used when the record carries no id or created_at.
func (r *ImportRecord) ToItem(id string, now int64) (*Item, *string) {
	if r.ID != "" {
		id = r.ID
	}
	createdAt := r.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}

	text := CleanOptional(r.Text)
	item := &Item{
		ID:         id,
		SourceType: r.SourceType,
		Metadata: Metadata{
			Title:     CleanOptional(r.Title),
			URL:       CleanOptional(r.URL),
			PageCount: r.PageCount,
		},
		Tags:      r.Tags,
		HasText:   text != nil,
		CreatedAt: createdAt,
	}
	if text != nil {
		n := CountChars(*text)
		item.Metadata.CharCount = &n
	}
	if r.DetectedLanguage != nil {
		if lang := NormalizeLanguage(*r.DetectedLanguage); lang != "" {
			item.DetectedLanguage = &lang
		}
	}
	return item, text
}
