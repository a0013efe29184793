package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/draft"
	"github.com/hpungsan/bundler/internal/errors"
	"github.com/hpungsan/bundler/internal/ops"
	"github.com/hpungsan/bundler/internal/prompt"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db    *sql.DB
	cfg   *config.Config
	lib   *prompt.Library
	queue ops.Enqueuer
}

// NewHandlers creates a new Handlers instance. lib and queue may be nil.
func NewHandlers(db *sql.DB, cfg *config.Config, lib *prompt.Library, queue ops.Enqueuer) *Handlers {
	return &Handlers{db: db, cfg: cfg, lib: lib, queue: queue}
}

// IDRequest is the argument of tools addressing one entity.
type IDRequest struct {
	ID string `json:"id"`
}

// PageRequest holds pagination arguments.
type PageRequest struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// BundleCreateRequest represents the arguments for bundle_create.
type BundleCreateRequest struct {
	Name       *string  `json:"name,omitempty"`
	ContentIDs []string `json:"content_ids"`
}

// BundleUpdateRequest represents the arguments for bundle_update.
type BundleUpdateRequest struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

// ProcessRequest represents the arguments for bundle_process and bundle_preview.
type ProcessRequest struct {
	BundleID           string  `json:"bundle_id"`
	ProcessingType     string  `json:"processing_type,omitempty"`
	OutputLanguage     string  `json:"output_language,omitempty"`
	CustomInstructions *string `json:"custom_instructions,omitempty"`
	SystemPrompt       string  `json:"system_prompt,omitempty"`
	UserPrompt         *string `json:"user_prompt,omitempty"`
	IdempotencyKey     string  `json:"idempotency_key,omitempty"`
}

// config converts the request, defaulting an omitted output_language to en.
func (r ProcessRequest) config() bundle.ProcessConfig {
	lang := bundle.Language(r.OutputLanguage)
	if lang == "" {
		lang = bundle.English
	}
	return bundle.ProcessConfig{
		ProcessingType:     bundle.ProcessingType(r.ProcessingType),
		OutputLanguage:     lang,
		CustomInstructions: r.CustomInstructions,
		SystemPrompt:       r.SystemPrompt,
		UserPrompt:         r.UserPrompt,
		IdempotencyKey:     r.IdempotencyKey,
	}
}

// AttemptListRequest represents the arguments for attempt_list.
type AttemptListRequest struct {
	BundleID string `json:"bundle_id"`
	PageRequest
}

// AttemptDiffRequest represents the arguments for attempt_diff.
type AttemptDiffRequest struct {
	AttemptID1 string `json:"attempt_id_1"`
	AttemptID2 string `json:"attempt_id_2"`
}

// ContentListRequest represents the arguments for content_list.
type ContentListRequest struct {
	SourceType string `json:"source_type,omitempty"`
	PageRequest
}

// ContentGetRequest represents the arguments for content_get.
type ContentGetRequest struct {
	ID          string `json:"id"`
	IncludeText bool   `json:"include_text,omitempty"`
}

// PromptDefaultsRequest represents the arguments for prompt_defaults.
type PromptDefaultsRequest struct {
	Language string `json:"language,omitempty"`
}

// DraftSaveRequest represents the arguments for draft_save.
type DraftSaveRequest struct {
	Slot  string          `json:"slot,omitempty"`
	State draft.FormState `json:"state"`
}

// DraftLoadRequest represents the arguments for draft_load.
type DraftLoadRequest struct {
	Slot string `json:"slot,omitempty"`
}

// JobGetRequest represents the arguments for job_get.
type JobGetRequest struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"`
}

// JobGetOutput is a job plus its rendered result when completed.
type JobGetOutput struct {
	*bundle.Job
	Rendered *ops.JobResultOutput `json:"rendered,omitempty"`
}

// HandleBundleCreate handles the bundle_create tool call.
func (h *Handlers) HandleBundleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BundleCreateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.CreateBundle(ctx, h.db, h.cfg, ops.CreateBundleInput{
		Name:       input.Name,
		ContentIDs: input.ContentIDs,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBundleGet handles the bundle_get tool call.
func (h *Handlers) HandleBundleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.GetBundle(ctx, h.db, ops.GetBundleInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBundleList handles the bundle_list tool call.
func (h *Handlers) HandleBundleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PageRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListBundles(ctx, h.db, ops.ListBundlesInput{Page: input.Page, PageSize: input.PageSize})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBundleUpdate handles the bundle_update tool call.
func (h *Handlers) HandleBundleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BundleUpdateRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.UpdateBundle(ctx, h.db, ops.UpdateBundleInput{ID: input.ID, Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBundleDelete handles the bundle_delete tool call.
func (h *Handlers) HandleBundleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.DeleteBundle(ctx, h.db, ops.DeleteBundleInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBundlePreview handles the bundle_preview tool call.
func (h *Handlers) HandleBundlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProcessRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.PreviewBundle(ctx, h.db, h.lib, ops.PreviewBundleInput{
		BundleID: input.BundleID,
		Config:   input.config(),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleBundleProcess handles the bundle_process tool call. Each call without an
// idempotency_key gets a fresh one, so retries by the caller must pass it back.
func (h *Handlers) HandleBundleProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProcessRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	cfg := input.config()
	if cfg.IdempotencyKey == "" {
		cfg.IdempotencyKey = uuid.NewString()
	}
	result, err := ops.ProcessBundle(ctx, h.db, h.lib, ops.ProcessBundleInput{
		BundleID: input.BundleID,
		Config:   cfg,
		Queue:    h.queue,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAttemptList handles the attempt_list tool call.
func (h *Handlers) HandleAttemptList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AttemptListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListAttempts(ctx, h.db, ops.ListAttemptsInput{
		BundleID: input.BundleID,
		Page:     input.Page,
		PageSize: input.PageSize,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAttemptDiff handles the attempt_diff tool call.
func (h *Handlers) HandleAttemptDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AttemptDiffRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.DiffAttempts(ctx, h.db, ops.DiffAttemptsInput{
		AttemptID1: input.AttemptID1,
		AttemptID2: input.AttemptID2,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleContentList handles the content_list tool call.
func (h *Handlers) HandleContentList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContentListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.ListContent(ctx, h.db, ops.ListContentInput{
		Page:       input.Page,
		PageSize:   input.PageSize,
		SourceType: input.SourceType,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleContentGet handles the content_get tool call.
func (h *Handlers) HandleContentGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContentGetRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.GetContent(ctx, h.db, ops.GetContentInput{ID: input.ID, IncludeText: input.IncludeText})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePromptDefaults handles the prompt_defaults tool call.
func (h *Handlers) HandlePromptDefaults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptDefaultsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.SystemPrompts(h.lib, ops.SystemPromptsInput{Language: input.Language})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDraftSave handles the draft_save tool call.
func (h *Handlers) HandleDraftSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftSaveRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.SaveDraft(ctx, h.db, ops.SaveDraftInput{Slot: input.Slot, State: input.State})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDraftLoad handles the draft_load tool call.
func (h *Handlers) HandleDraftLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DraftLoadRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.LoadDraft(ctx, h.db, h.cfg, ops.LoadDraftInput{Slot: input.Slot})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJobGet handles the job_get tool call. Completed jobs also carry the result
// rendered in the requested format.
func (h *Handlers) HandleJobGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JobGetRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	job, err := ops.GetJob(ctx, h.db, ops.GetJobInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	out := JobGetOutput{Job: job}
	if job.Status == bundle.JobCompleted {
		rendered, err := ops.JobResult(ctx, h.db, ops.JobResultInput{ID: job.ID, Format: input.Format})
		if err != nil {
			return errorResult(err), nil
		}
		out.Rendered = rendered
	}
	return successResult(out)
}

// errorResult creates an MCP error result from any error, wrapped or not.
// INTERNAL errors carry neither details nor the underlying message.
func errorResult(err error) *mcp.CallToolResult {
	bErr, ok := errors.As(err)
	if !ok {
		bErr = errors.NewInternal(err)
	}

	errorObj := map[string]any{
		"code":    bErr.Code,
		"message": errors.Message(err),
		"status":  bErr.Status,
	}
	if bErr.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	} else if bErr.Details != nil {
		errorObj["details"] = bErr.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
