package api

import (
	"database/sql"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/draft"
	"github.com/hpungsan/bundler/internal/errors"
	"github.com/hpungsan/bundler/internal/ops"
	"github.com/hpungsan/bundler/internal/prompt"
)

// IdempotencyKeyHeader carries the per-submit token for POST /bundles/{id}/process.
const IdempotencyKeyHeader = "Idempotency-Key"

// Handlers holds dependencies for the HTTP handlers.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	lib     *prompt.Library
	queue   ops.Enqueuer
	logger  *slog.Logger
	version string
}

// bindJSON decodes the request body into v. An empty body is accepted when optional.
func bindJSON(c *gin.Context, v any, optional bool) error {
	if err := c.ShouldBindJSON(v); err != nil {
		if optional && stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

// Health reports liveness and the schema version.
func (h *Handlers) Health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	} else {
		body["schema_version"] = db.CurrentSchemaVersion
	}
	c.JSON(status, body)
}

// ---- bundles ----

type createBundleRequest struct {
	Name       *string  `json:"name"`
	ContentIDs []string `json:"content_ids"`
}

type updateBundleRequest struct {
	Name *string `json:"name"`
}

// ListBundles handles GET /bundles.
func (h *Handlers) ListBundles(c *gin.Context) {
	page, size, err := pageParams(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out, err := ops.ListBundles(c.Request.Context(), h.db, ops.ListBundlesInput{Page: page, PageSize: size})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// CreateBundle handles POST /bundles.
func (h *Handlers) CreateBundle(c *gin.Context) {
	var req createBundleRequest
	if err := bindJSON(c, &req, false); err != nil {
		writeError(c, h.logger, err)
		return
	}
	b, err := ops.CreateBundle(c.Request.Context(), h.db, h.cfg, ops.CreateBundleInput{
		Name:       req.Name,
		ContentIDs: req.ContentIDs,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// GetBundle handles GET /bundles/{id}.
func (h *Handlers) GetBundle(c *gin.Context) {
	b, err := ops.GetBundle(c.Request.Context(), h.db, ops.GetBundleInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// UpdateBundle handles PUT /bundles/{id}.
func (h *Handlers) UpdateBundle(c *gin.Context) {
	var req updateBundleRequest
	if err := bindJSON(c, &req, true); err != nil {
		writeError(c, h.logger, err)
		return
	}
	b, err := ops.UpdateBundle(c.Request.Context(), h.db, ops.UpdateBundleInput{ID: c.Param("id"), Name: req.Name})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// DeleteBundle handles DELETE /bundles/{id}.
func (h *Handlers) DeleteBundle(c *gin.Context) {
	if _, err := ops.DeleteBundle(c.Request.Context(), h.db, ops.DeleteBundleInput{ID: c.Param("id")}); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ProcessBundle handles POST /bundles/{id}/process. A new attempt is 202 Accepted;
// an idempotent replay is 200 with the Idempotent-Replayed header set.
func (h *Handlers) ProcessBundle(c *gin.Context) {
	var cfg bundle.ProcessConfig
	if err := bindJSON(c, &cfg, false); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); key != "" {
		if body := strings.TrimSpace(cfg.IdempotencyKey); body != "" && body != key {
			writeError(c, h.logger, errors.NewInvalidRequest("Idempotency-Key header and idempotency_key field differ"))
			return
		}
		cfg.IdempotencyKey = key
	}

	out, err := ops.ProcessBundle(c.Request.Context(), h.db, h.lib, ops.ProcessBundleInput{
		BundleID: c.Param("id"),
		Config:   cfg,
		Queue:    h.queue,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if out.Deduplicated {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, out.Attempt)
		return
	}
	c.JSON(http.StatusAccepted, out.Attempt)
}

// PreviewBundle handles POST /bundles/{id}/preview. The body is an optional
// processing config; without one only the content preview is returned.
func (h *Handlers) PreviewBundle(c *gin.Context) {
	var cfg bundle.ProcessConfig
	if err := bindJSON(c, &cfg, true); err != nil {
		writeError(c, h.logger, err)
		return
	}
	out, err := ops.PreviewBundle(c.Request.Context(), h.db, h.lib, ops.PreviewBundleInput{
		BundleID: c.Param("id"),
		Config:   cfg,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ---- attempts ----

// ListAttempts handles GET /bundles/{id}/attempts.
func (h *Handlers) ListAttempts(c *gin.Context) {
	page, size, err := pageParams(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out, err := ops.ListAttempts(c.Request.Context(), h.db, ops.ListAttemptsInput{
		BundleID: c.Param("id"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetAttempt handles GET /attempts/{id}.
func (h *Handlers) GetAttempt(c *gin.Context) {
	a, err := ops.GetAttempt(c.Request.Context(), h.db, ops.GetAttemptInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// DiffAttempts handles GET /bundles/attempts/{id1}/diff/{id2}.
func (h *Handlers) DiffAttempts(c *gin.Context) {
	d, err := ops.DiffAttempts(c.Request.Context(), h.db, ops.DiffAttemptsInput{
		AttemptID1: c.Param("id1"),
		AttemptID2: c.Param("id2"),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ---- content ----

// ListContent handles GET /content.
func (h *Handlers) ListContent(c *gin.Context) {
	page, size, err := pageParams(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out, err := ops.ListContent(c.Request.Context(), h.db, ops.ListContentInput{
		Page:       page,
		PageSize:   size,
		SourceType: c.Query("source_type"),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetContent handles GET /content/{id}?include_text=true.
func (h *Handlers) GetContent(c *gin.Context) {
	out, err := ops.GetContent(c.Request.Context(), h.db, ops.GetContentInput{
		ID:          c.Param("id"),
		IncludeText: queryBool(c, "include_text"),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Ingest kinds accepted over HTTP. File-based ingestion (PDF, feed files, JSONL
// import) is CLI-only.
const (
	ingestText = "text"
	ingestURL  = "url"
	ingestFeed = "feed"
)

type ingestRequest struct {
	Kind       string   `json:"kind"`
	URL        string   `json:"url"`
	Title      *string  `json:"title"`
	Text       string   `json:"text"`
	SourceType string   `json:"source_type"`
	Language   *string  `json:"language"`
	Tags       []string `json:"tags"`
	Limit      int      `json:"limit"`
}

// IngestContent handles POST /content/ingest.
func (h *Handlers) IngestContent(c *gin.Context) {
	var req ingestRequest
	if err := bindJSON(c, &req, false); err != nil {
		writeError(c, h.logger, err)
		return
	}

	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = ingestURL
		if strings.TrimSpace(req.Text) != "" {
			kind = ingestText
		}
	}

	ctx := c.Request.Context()
	var (
		out *ops.IngestOutput
		err error
	)
	switch kind {
	case ingestText:
		var rawURL *string
		if req.URL != "" {
			rawURL = &req.URL
		}
		out, err = ops.IngestText(ctx, h.db, ops.IngestTextInput{
			Title:      req.Title,
			URL:        rawURL,
			Text:       req.Text,
			SourceType: req.SourceType,
			Language:   req.Language,
			Tags:       req.Tags,
		})
	case ingestURL:
		out, err = ops.IngestURL(ctx, h.db, ops.IngestURLInput{URL: req.URL, Tags: req.Tags})
	case ingestFeed:
		out, err = ops.IngestFeed(ctx, h.db, ops.IngestFeedInput{URL: req.URL, Limit: req.Limit, Tags: req.Tags})
	default:
		err = errors.NewInvalidRequest("kind must be one of: text, url, feed")
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ---- prompts ----

// SystemPrompts handles GET /prompts?language=xx.
func (h *Handlers) SystemPrompts(c *gin.Context) {
	out, err := ops.SystemPrompts(h.lib, ops.SystemPromptsInput{Language: c.Query("language")})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ---- drafts ----

// LoadDraft handles GET /drafts/{slot}.
func (h *Handlers) LoadDraft(c *gin.Context) {
	out, err := ops.LoadDraft(c.Request.Context(), h.db, h.cfg, ops.LoadDraftInput{Slot: c.Param("slot")})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// SaveDraft handles PUT /drafts/{slot}. The body is the form state.
func (h *Handlers) SaveDraft(c *gin.Context) {
	var state draft.FormState
	if err := bindJSON(c, &state, false); err != nil {
		writeError(c, h.logger, err)
		return
	}
	d, err := ops.SaveDraft(c.Request.Context(), h.db, ops.SaveDraftInput{Slot: c.Param("slot"), State: state})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ---- jobs ----

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := ops.GetJob(c.Request.Context(), h.db, ops.GetJobInput{ID: c.Param("id")})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// JobResult handles GET /jobs/{id}/result?format=markdown|html.
func (h *Handlers) JobResult(c *gin.Context) {
	out, err := ops.JobResult(c.Request.Context(), h.db, ops.JobResultInput{
		ID:     c.Param("id"),
		Format: c.Query("format"),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	contentType := "text/markdown; charset=utf-8"
	if out.Format == ops.FormatHTML {
		contentType = "text/html; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, []byte(out.Body))
}
