package ops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/bundler/internal/content"
	"github.com/hpungsan/bundler/internal/errors"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Shipping small batches</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Shipping small batches</h1>
<p>Small batches reduce risk because every change is easier to review, easier to test and easier to roll back when something goes wrong in production.</p>
<p>Teams that ship in small batches tend to find problems earlier, since each deploy touches fewer moving parts and the feedback loop stays short.</p>
<p>The habit takes discipline: feature flags, trunk based development and a fast test suite all make it cheaper to merge work before it is finished.</p>
</article>
</body></html>`

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Notes</title>
<link>https://example.com</link>
<language>en-us</language>
<item><title>First</title><link>https://example.com/1</link><description>First entry body</description></item>
<item><title>Second</title><link>https://example.com/2</link><description>Second entry body</description></item>
<item><title>Third</title><link>https://example.com/3</link></item>
</channel>
</rss>`

func TestIngestText(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	out, err := IngestText(ctx, database, IngestTextInput{
		Title:    stringPtr("  Meeting notes "),
		Text:     "  Привет мир  ",
		Language: stringPtr("ru_RU"),
		Tags:     []string{"a", " a ", "", "b"},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)

	item := out.Items[0]
	require.Equal(t, content.SourceText, item.SourceType)
	require.Equal(t, "Meeting notes", *item.Metadata.Title)
	require.Equal(t, 10, *item.Metadata.CharCount, "runes, not bytes")
	require.Equal(t, "ru", *item.DetectedLanguage)
	require.Equal(t, []string{"a", "b"}, item.Tags)

	_, err = IngestText(ctx, database, IngestTextInput{Text: "   "})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestIngestURL(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(articleHTML)) //nolint:errcheck
		case "/gone":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	out, err := IngestURL(ctx, database, IngestURLInput{URL: srv.URL + "/article", Tags: []string{"eng"}})
	require.NoError(t, err)
	item := out.Items[0]
	require.Equal(t, content.SourceWeb, item.SourceType)
	require.Equal(t, "Shipping small batches", *item.Metadata.Title)
	require.Equal(t, srv.URL+"/article", *item.Metadata.URL)
	require.True(t, item.HasText)

	got, err := GetContent(ctx, database, GetContentInput{ID: item.ID, IncludeText: true})
	require.NoError(t, err)
	require.Contains(t, *got.Text, "Small batches reduce risk")

	_, err = IngestURL(ctx, database, IngestURLInput{URL: srv.URL + "/gone"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "4xx: %v", err)

	_, err = IngestURL(ctx, database, IngestURLInput{URL: srv.URL + "/down"})
	require.True(t, errors.Is(err, errors.ErrUpstreamUnavailable), "5xx: %v", err)

	_, err = IngestURL(ctx, database, IngestURLInput{URL: "ftp://example.com/x"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestIngestFeed(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFeed)) //nolint:errcheck
	}))
	defer srv.Close()

	out, err := IngestFeed(ctx, database, IngestFeedInput{URL: srv.URL, Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	require.Equal(t, "First", *out.Items[0].Metadata.Title)
	require.Equal(t, "https://example.com/2", *out.Items[1].Metadata.URL)
	require.Equal(t, content.SourceFeed, out.Items[0].SourceType)
	require.Equal(t, "en", *out.Items[0].DetectedLanguage)

	path := filepath.Join(t.TempDir(), "feed.xml")
	require.NoError(t, os.WriteFile(path, []byte(rssFeed), 0600))
	out, err = IngestFeed(ctx, database, IngestFeedInput{Path: path})
	require.NoError(t, err)
	require.Len(t, out.Items, 3)
	require.False(t, out.Items[2].HasText, "entry without body stores no text")

	_, err = IngestFeed(ctx, database, IngestFeedInput{URL: srv.URL, Path: path})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = IngestFeed(ctx, database, IngestFeedInput{Path: filepath.Join(t.TempDir(), "none.xml")})
	require.True(t, errors.Is(err, errors.ErrFileNotFound))

	bad := filepath.Join(t.TempDir(), "bad.xml")
	require.NoError(t, os.WriteFile(bad, []byte("not a feed"), 0600))
	_, err = IngestFeed(ctx, database, IngestFeedInput{Path: bad})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestIngestPDF_Errors(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_, err := IngestPDF(ctx, database, IngestPDFInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = IngestPDF(ctx, database, IngestPDFInput{Path: filepath.Join(t.TempDir(), "missing.pdf")})
	require.True(t, errors.Is(err, errors.ErrFileNotFound))

	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a pdf"), 0600))
	_, err = IngestPDF(ctx, database, IngestPDFInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	list, err := ListContent(ctx, database, ListContentInput{})
	require.NoError(t, err)
	require.Equal(t, 0, list.Total)
}

func TestSourceTypeForURL(t *testing.T) {
	for raw, want := range map[string]string{
		"https://www.youtube.com/watch?v=x": content.SourceYouTube,
		"https://youtu.be/x":                content.SourceYouTube,
		"https://example.com/youtube":       content.SourceWeb,
	} {
		u, err := parseHTTPURL(raw)
		require.NoError(t, err)
		require.Equal(t, want, sourceTypeForURL(u), raw)
	}
}
