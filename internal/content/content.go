package content

// Source types produced by the ingesters. Imported records may carry other values,
// which are stored verbatim.
const (
	SourceYouTube = "youtube"
	SourcePDF     = "pdf"
	SourceWeb     = "web"
	SourceText    = "text"
	SourceFeed    = "feed"
)

// Item is a previously ingested piece of content that bundles reference by id.
type Item struct {
	// ID is a ULID that uniquely identifies this item
	ID string `json:"id"`

	// SourceType is where the content came from (youtube, pdf, web, text, feed)
	SourceType string `json:"source_type"`

	Metadata Metadata `json:"metadata"`

	Tags []string `json:"tags"`

	// DetectedLanguage is a BCP 47 base language ("en", "ru") when known
	DetectedLanguage *string `json:"detected_language"`

	// HasText reports whether extracted text is stored for this item
	HasText bool `json:"has_text"`

	// CreatedAt is the Unix timestamp when the item was ingested
	CreatedAt int64 `json:"created_at"`
}

// Metadata holds the optional descriptive fields of an item.
type Metadata struct {
	Title     *string `json:"title,omitempty"`
	URL       *string `json:"url,omitempty"`
	CharCount *int    `json:"char_count,omitempty"`
	PageCount *int    `json:"page_count,omitempty"`
}

// TitleOrEmpty returns the metadata title, or "" when absent.
func (m Metadata) TitleOrEmpty() string {
	if m.Title == nil {
		return ""
	}
	return *m.Title
}

// URLOrEmpty returns the metadata url, or "" when absent.
func (m Metadata) URLOrEmpty() string {
	if m.URL == nil {
		return ""
	}
	return *m.URL
}
