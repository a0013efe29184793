package ops

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/hpungsan/bundler/internal/content"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
)

const (
	maxFetchBytes        = 10 << 20
	defaultFetchTimeout  = 30 * time.Second
	DefaultFeedItemLimit = 20
	MaxFeedItemLimit     = 200
)

// IngestOutput lists the items created by an ingest operation.
type IngestOutput struct {
	Items []content.Item `json:"items"`
}

// IngestTextInput contains parameters for the IngestText operation.
type IngestTextInput struct {
	Title      *string
	URL        *string
	Text       string // required
	SourceType string // default: text
	Language   *string
	Tags       []string
}

// IngestText stores caller-supplied text as a content item.
func IngestText(ctx context.Context, database *sql.DB, input IngestTextInput) (*IngestOutput, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	sourceType := cmp.Or(strings.TrimSpace(input.SourceType), content.SourceText)

	item := newItem(sourceType, input.Title, input.URL, input.Tags, input.Language)
	setText(item, text)

	if err := db.InsertContent(ctx, database, item, &text); err != nil {
		return nil, err
	}
	return &IngestOutput{Items: []content.Item{*item}}, nil
}

// IngestURLInput contains parameters for the IngestURL operation.
type IngestURLInput struct {
	URL    string // required, http or https
	Tags   []string
	Client *http.Client // optional, default: 30s timeout
}

// IngestURL fetches a web page and stores its readable text.
func IngestURL(ctx context.Context, database *sql.DB, input IngestURLInput) (*IngestOutput, error) {
	pageURL, err := parseHTTPURL(input.URL)
	if err != nil {
		return nil, err
	}

	body, err := fetch(ctx, input.Client, pageURL.String())
	if err != nil {
		return nil, err
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to extract content: %v", err))
	}

	rawURL := pageURL.String()
	title := strings.TrimSpace(article.Title)
	item := newItem(sourceTypeForURL(pageURL), &title, &rawURL, input.Tags, nil)

	var textPtr *string
	if text := strings.TrimSpace(article.TextContent); text != "" {
		setText(item, text)
		textPtr = &text
	}

	if err := db.InsertContent(ctx, database, item, textPtr); err != nil {
		return nil, err
	}
	return &IngestOutput{Items: []content.Item{*item}}, nil
}

// IngestFeedInput contains parameters for the IngestFeed operation.
// Exactly one of URL or Path is required.
type IngestFeedInput struct {
	URL    string
	Path   string
	Limit  int // default: 20, max: 200
	Tags   []string
	Client *http.Client
}

// IngestFeed stores one content item per RSS/Atom/JSON feed entry.
// All entries are inserted in one transaction.
func IngestFeed(ctx context.Context, database *sql.DB, input IngestFeedInput) (*IngestOutput, error) {
	hasURL := strings.TrimSpace(input.URL) != ""
	hasPath := strings.TrimSpace(input.Path) != ""
	if hasURL == hasPath {
		return nil, errors.NewInvalidRequest("exactly one of url or path is required")
	}

	var data []byte
	if hasURL {
		feedURL, err := parseHTTPURL(input.URL)
		if err != nil {
			return nil, err
		}
		if data, err = fetch(ctx, input.Client, feedURL.String()); err != nil {
			return nil, err
		}
	} else {
		var err error
		data, err = os.ReadFile(input.Path)
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(input.Path)
		}
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to read feed file: %w", err))
		}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to parse feed: %v", err))
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultFeedItemLimit
	}
	limit = min(limit, MaxFeedItemLimit)

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	items := make([]content.Item, 0, min(limit, len(feed.Items)))
	for _, entry := range feed.Items {
		if len(items) == limit {
			break
		}
		if entry == nil {
			continue
		}
		if err := checkCancelled(ctx, "ingest feed"); err != nil {
			return nil, err
		}

		title := strings.TrimSpace(entry.Title)
		link := strings.TrimSpace(entry.Link)
		item := newItem(content.SourceFeed, &title, &link, input.Tags, &feed.Language)

		var textPtr *string
		if text := feedEntryText(entry); text != "" {
			setText(item, text)
			textPtr = &text
		}

		if err := db.InsertContent(ctx, tx, item, textPtr); err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &IngestOutput{Items: items}, nil
}

// IngestPDFInput contains parameters for the IngestPDF operation.
type IngestPDFInput struct {
	Path  string // required
	Title *string
	Tags  []string
}

// IngestPDF records a PDF's page count. Text extraction is left to external tooling,
// so the item is stored without text.
func IngestPDF(ctx context.Context, database *sql.DB, input IngestPDFInput) (*IngestOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}

	f, err := os.Open(input.Path)
	if os.IsNotExist(err) {
		return nil, errors.NewFileNotFound(input.Path)
	}
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to open PDF: %w", err))
	}
	pageCount, err := api.PageCount(f, nil)
	f.Close()
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("failed to read PDF: %v", err))
	}

	title := content.CleanOptional(input.Title)
	if title == nil {
		base := strings.TrimSuffix(filepath.Base(input.Path), filepath.Ext(input.Path))
		title = &base
	}

	item := newItem(content.SourcePDF, title, nil, input.Tags, nil)
	item.Metadata.PageCount = &pageCount

	if err := db.InsertContent(ctx, database, item, nil); err != nil {
		return nil, err
	}
	return &IngestOutput{Items: []content.Item{*item}}, nil
}

func newItem(sourceType string, title, rawURL *string, tags []string, lang *string) *content.Item {
	item := &content.Item{
		ID:         generateULID(),
		SourceType: sourceType,
		Metadata: content.Metadata{
			Title: content.CleanOptional(title),
			URL:   content.CleanOptional(rawURL),
		},
		Tags:      cleanTags(tags),
		CreatedAt: time.Now().Unix(),
	}
	if lang != nil {
		if normalized := content.NormalizeLanguage(*lang); normalized != "" {
			item.DetectedLanguage = &normalized
		}
	}
	return item
}

func setText(item *content.Item, text string) {
	n := content.CountChars(text)
	item.Metadata.CharCount = &n
	item.HasText = true
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func parseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.NewInvalidRequest("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.NewInvalidRequest("url must be an absolute http or https URL")
	}
	return u, nil
}

func sourceTypeForURL(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "youtu.be":
		return content.SourceYouTube
	}
	return content.SourceWeb
}

// fetch GETs rawURL and returns at most maxFetchBytes of the body.
// Network failures and 5xx responses are UPSTREAM_UNAVAILABLE.
func fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid url: %v", err))
	}
	req.Header.Set("User-Agent", "bundler/1.0")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("fetch")
		}
		return nil, errors.NewUpstreamUnavailable(req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, errors.NewUpstreamUnavailable(req.URL.Host, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("fetch %s: status %d", rawURL, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, errors.NewUpstreamUnavailable(req.URL.Host, err)
	}
	return body, nil
}

// feedEntryText returns the plain text of an entry's content, falling back to its description.
func feedEntryText(entry *gofeed.Item) string {
	raw := strings.TrimSpace(cmp.Or(entry.Content, entry.Description))
	if raw == "" {
		return ""
	}
	if article, err := readability.FromReader(strings.NewReader(raw), nil); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return text
		}
	}
	return raw
}
