package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/errors"
	"github.com/hpungsan/bundler/internal/ops"
)

// testSetup creates a temporary database and config for testing.
func testSetup(t *testing.T) (*sql.DB, *config.Config, func()) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}

	cfg := config.DefaultConfig()
	cleanup := func() {
		database.Close()
	}
	return database, cfg, cleanup
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

type recordingQueue struct {
	jobs []string
}

func (q *recordingQueue) Enqueue(jobID string) error {
	q.jobs = append(q.jobs, jobID)
	return nil
}

// seedContent stores one text item per title and returns their ids.
func seedContent(t *testing.T, database *sql.DB, titles ...string) []any {
	t.Helper()
	ids := make([]any, 0, len(titles))
	for _, title := range titles {
		out, err := ops.IngestText(context.Background(), database, ops.IngestTextInput{
			Title:      &title,
			Text:       "notes on " + title,
			SourceType: "web",
		})
		if err != nil {
			t.Fatalf("IngestText failed: %v", err)
		}
		ids = append(ids, out.Items[0].ID)
	}
	return ids
}

// createBundle creates a bundle over fresh content and returns its id.
func createBundle(t *testing.T, h *Handlers, database *sql.DB, titles ...string) string {
	t.Helper()
	result, err := h.HandleBundleCreate(context.Background(), makeRequest(map[string]any{
		"name":        "Research",
		"content_ids": seedContent(t, database, titles...),
	}))
	if err != nil {
		t.Fatalf("HandleBundleCreate returned error: %v", err)
	}
	return parseOutput(t, result)["id"].(string)
}

func TestHandleBundleCreate(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ids := seedContent(t, database, "Intro", "Outro")
		result, err := h.HandleBundleCreate(ctx, makeRequest(map[string]any{
			"content_ids": []any{ids[1], ids[0]},
		}))
		if err != nil {
			t.Fatalf("HandleBundleCreate returned error: %v", err)
		}
		output := parseOutput(t, result)

		if len(output["id"].(string)) != 26 {
			t.Errorf("id = %v, want a 26-character ULID", output["id"])
		}
		got := output["content_ids"].([]any)
		if len(got) != 2 || got[0] != ids[1] || got[1] != ids[0] {
			t.Errorf("content_ids = %v, want caller order", got)
		}
		if output["attempt_count"] != float64(0) {
			t.Errorf("attempt_count = %v, want 0", output["attempt_count"])
		}
	})

	t.Run("empty content_ids", func(t *testing.T) {
		result, _ := h.HandleBundleCreate(ctx, makeRequest(map[string]any{"content_ids": []any{}}))
		if !result.IsError {
			t.Fatal("expected error for empty content_ids")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("unknown content", func(t *testing.T) {
		result, _ := h.HandleBundleCreate(ctx, makeRequest(map[string]any{"content_ids": []any{"missing"}}))
		assertErrorCode(t, result, "NOT_FOUND")
	})

	t.Run("wrong argument type", func(t *testing.T) {
		result, _ := h.HandleBundleCreate(ctx, makeRequest(map[string]any{"content_ids": "abc"}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

func TestHandleBundleGetUpdateDelete(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)
	ctx := context.Background()
	id := createBundle(t, h, database, "A", "B")

	result, _ := h.HandleBundleGet(ctx, makeRequest(map[string]any{"id": id}))
	output := parseOutput(t, result)
	items := output["content_items"].([]any)
	if len(items) != 2 {
		t.Fatalf("content_items = %d, want 2", len(items))
	}

	result, _ = h.HandleBundleUpdate(ctx, makeRequest(map[string]any{"id": id, "name": "Renamed"}))
	output = parseOutput(t, result)
	if output["name"] != "Renamed" {
		t.Errorf("name = %v, want Renamed", output["name"])
	}

	result, _ = h.HandleBundleList(ctx, makeRequest(map[string]any{"page": 1, "page_size": 10}))
	output = parseOutput(t, result)
	if output["total"] != float64(1) {
		t.Errorf("total = %v, want 1", output["total"])
	}

	result, _ = h.HandleBundleDelete(ctx, makeRequest(map[string]any{"id": id}))
	output = parseOutput(t, result)
	if output["deleted"] != true {
		t.Errorf("deleted = %v, want true", output["deleted"])
	}

	result, _ = h.HandleBundleGet(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleBundleProcess(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	queue := &recordingQueue{}
	h := NewHandlers(database, cfg, nil, queue)
	ctx := context.Background()
	id := createBundle(t, h, database, "A")

	args := map[string]any{
		"bundle_id":           id,
		"processing_type":     "summary",
		"output_language":     "en",
		"custom_instructions": "Be brief",
		"idempotency_key":     "k-1",
	}

	result, _ := h.HandleBundleProcess(ctx, makeRequest(args))
	first := parseOutput(t, result)
	attempt := first["attempt"].(map[string]any)
	if attempt["attempt_number"] != float64(1) {
		t.Errorf("attempt_number = %v, want 1", attempt["attempt_number"])
	}
	if !strings.HasSuffix(attempt["final_prompt"].(string), "Additional Instructions: Be brief") {
		t.Errorf("final_prompt missing custom instructions: %q", attempt["final_prompt"])
	}
	if len(queue.jobs) != 1 || queue.jobs[0] != attempt["job_id"] {
		t.Errorf("queued jobs = %v, want [%v]", queue.jobs, attempt["job_id"])
	}

	t.Run("replay returns the same attempt", func(t *testing.T) {
		result, _ := h.HandleBundleProcess(ctx, makeRequest(args))
		replay := parseOutput(t, result)
		if replay["deduplicated"] != true {
			t.Error("expected deduplicated=true")
		}
		if replay["attempt"].(map[string]any)["id"] != attempt["id"] {
			t.Error("replay returned a different attempt")
		}
	})

	t.Run("same key different config", func(t *testing.T) {
		changed := map[string]any{}
		for k, v := range args {
			changed[k] = v
		}
		changed["output_language"] = "ru"
		result, _ := h.HandleBundleProcess(ctx, makeRequest(changed))
		assertErrorCode(t, result, "CONFLICT")
	})

	t.Run("missing key gets a fresh one", func(t *testing.T) {
		noKey := map[string]any{"bundle_id": id, "processing_type": "summary"}
		r1, _ := h.HandleBundleProcess(ctx, makeRequest(noKey))
		r2, _ := h.HandleBundleProcess(ctx, makeRequest(noKey))
		a1 := parseOutput(t, r1)["attempt"].(map[string]any)
		a2 := parseOutput(t, r2)["attempt"].(map[string]any)
		if a1["id"] == a2["id"] {
			t.Error("calls without a key must create separate attempts")
		}
		if a1["idempotency_key"] == "" || a1["idempotency_key"] == a2["idempotency_key"] {
			t.Errorf("keys = %v, %v, want two distinct keys", a1["idempotency_key"], a2["idempotency_key"])
		}
	})

	t.Run("omitted language defaults to en", func(t *testing.T) {
		result, _ := h.HandleBundleProcess(ctx, makeRequest(map[string]any{"bundle_id": id, "processing_type": "mvp_plan"}))
		a := parseOutput(t, result)["attempt"].(map[string]any)
		if a["output_language"] != "en" {
			t.Errorf("output_language = %v, want en", a["output_language"])
		}
		if got := (ProcessRequest{OutputLanguage: "es"}).config().OutputLanguage; got != bundle.Spanish {
			t.Errorf("explicit language = %q, want es", got)
		}
	})

	t.Run("unmapped processing type", func(t *testing.T) {
		result, _ := h.HandleBundleProcess(ctx, makeRequest(map[string]any{"bundle_id": id, "processing_type": "blog_post"}))
		assertErrorCode(t, result, "UNMAPPED_PROCESSING_TYPE")
	})
}

func TestHandleBundlePreview(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)
	ctx := context.Background()
	id := createBundle(t, h, database, "Intro")

	result, _ := h.HandleBundlePreview(ctx, makeRequest(map[string]any{"bundle_id": id}))
	output := parseOutput(t, result)
	if !strings.Contains(output["combined_content_preview"].(string), "=== Intro ===") {
		t.Errorf("preview = %q", output["combined_content_preview"])
	}
	if _, ok := output["final_prompt"]; ok && output["final_prompt"] != nil {
		t.Error("preview without a processing type should not compose a final prompt")
	}

	result, _ = h.HandleBundlePreview(ctx, makeRequest(map[string]any{"bundle_id": id, "processing_type": "mvp_plan"}))
	output = parseOutput(t, result)
	if output["final_prompt"] == nil {
		t.Error("expected final_prompt for mvp_plan")
	}
}

func TestHandleAttemptListAndDiff(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)
	ctx := context.Background()
	id := createBundle(t, h, database, "A")

	var attemptIDs []any
	for _, lang := range []string{"en", "es"} {
		result, _ := h.HandleBundleProcess(ctx, makeRequest(map[string]any{
			"bundle_id": id, "processing_type": "summary", "output_language": lang,
		}))
		attemptIDs = append(attemptIDs, parseOutput(t, result)["attempt"].(map[string]any)["id"])
	}

	result, _ := h.HandleAttemptList(ctx, makeRequest(map[string]any{"bundle_id": id}))
	output := parseOutput(t, result)
	if output["total"] != float64(2) {
		t.Errorf("total = %v, want 2", output["total"])
	}

	result, _ = h.HandleAttemptDiff(ctx, makeRequest(map[string]any{
		"attempt_id_1": attemptIDs[0], "attempt_id_2": attemptIDs[1],
	}))
	output = parseOutput(t, result)
	changes := output["changes"].(map[string]any)
	if changes["language_changed"] != true {
		t.Error("expected language_changed=true")
	}
	if changes["processing_type_changed"] != false {
		t.Error("expected processing_type_changed=false")
	}

	result, _ = h.HandleAttemptDiff(ctx, makeRequest(map[string]any{"attempt_id_1": attemptIDs[0], "attempt_id_2": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleContent(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)
	ctx := context.Background()
	ids := seedContent(t, database, "A", "B")

	result, _ := h.HandleContentList(ctx, makeRequest(map[string]any{"source_type": "web"}))
	output := parseOutput(t, result)
	if output["total"] != float64(2) {
		t.Errorf("total = %v, want 2", output["total"])
	}

	result, _ = h.HandleContentGet(ctx, makeRequest(map[string]any{"id": ids[0], "include_text": true}))
	output = parseOutput(t, result)
	if output["text"] != "notes on A" {
		t.Errorf("text = %v, want %q", output["text"], "notes on A")
	}

	result, _ = h.HandleContentGet(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandlePromptDefaults(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)

	result, _ := h.HandlePromptDefaults(context.Background(), makeRequest(map[string]any{"language": "ru"}))
	output := parseOutput(t, result)
	for _, typ := range []string{"summary", "mvp_plan", "content_ideas", "blog_post"} {
		if _, ok := output[typ]; !ok {
			t.Errorf("missing default prompt for %s", typ)
		}
	}

	result, _ = h.HandlePromptDefaults(context.Background(), makeRequest(map[string]any{"language": "de"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleDraftSaveLoad(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)
	ctx := context.Background()

	result, _ := h.HandleDraftSave(ctx, makeRequest(map[string]any{
		"slot":  "mine",
		"state": map[string]any{"processingType": "summary", "bundleName": "Q3"},
	}))
	parseOutput(t, result)

	result, _ = h.HandleDraftLoad(ctx, makeRequest(map[string]any{"slot": "mine"}))
	output := parseOutput(t, result)
	if output["stale"] != false {
		t.Errorf("stale = %v, want false", output["stale"])
	}
	state := output["state"].(map[string]any)
	if state["bundleName"] != "Q3" || state["processingType"] != "summary" {
		t.Errorf("state = %v", state)
	}

	result, _ = h.HandleDraftLoad(ctx, makeRequest(map[string]any{"slot": "other"}))
	output = parseOutput(t, result)
	if output["reason"] != "missing" {
		t.Errorf("reason = %v, want missing", output["reason"])
	}
}

func TestHandleJobGet(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()
	h := NewHandlers(database, cfg, nil, nil)
	ctx := context.Background()
	id := createBundle(t, h, database, "A")

	result, _ := h.HandleBundleProcess(ctx, makeRequest(map[string]any{"bundle_id": id, "processing_type": "summary"}))
	jobID := parseOutput(t, result)["attempt"].(map[string]any)["job_id"].(string)

	result, _ = h.HandleJobGet(ctx, makeRequest(map[string]any{"id": jobID}))
	output := parseOutput(t, result)
	if output["status"] != "pending" {
		t.Errorf("status = %v, want pending", output["status"])
	}
	if _, ok := output["rendered"]; ok {
		t.Error("pending jobs have no rendered result")
	}

	now := time.Now().Unix()
	if _, err := db.ClaimJob(ctx, database, jobID, now); err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if err := db.CompleteJob(ctx, database, jobID, "# Done", now); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	result, _ = h.HandleJobGet(ctx, makeRequest(map[string]any{"id": jobID, "format": "html"}))
	output = parseOutput(t, result)
	if output["status"] != "completed" {
		t.Errorf("status = %v, want completed", output["status"])
	}
	rendered := output["rendered"].(map[string]any)
	if !strings.Contains(rendered["body"].(string), "<h1>Done</h1>") {
		t.Errorf("rendered body = %v", rendered["body"])
	}

	result, _ = h.HandleJobGet(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestServerRegistration(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	s := NewServer(database, cfg, nil, nil, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"bundle_create",
		"bundle_get",
		"bundle_list",
		"bundle_update",
		"bundle_delete",
		"bundle_preview",
		"bundle_process",
		"attempt_list",
		"attempt_diff",
		"content_list",
		"content_get",
		"prompt_defaults",
		"draft_save",
		"draft_load",
		"job_get",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = []string{"bundle_delete", "draft_save", "draft_save"}
	s := NewServer(database, cfg, nil, nil, "test")
	tools := s.ListTools()

	if len(tools) != 13 {
		t.Errorf("registered tool count = %d, want 13", len(tools))
	}
	for _, name := range []string{"bundle_delete", "draft_save"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTypes = []string{"draft", "job"}
	s := NewServer(database, cfg, nil, nil, "test")
	tools := s.ListTools()

	if len(tools) != 12 {
		t.Errorf("registered tool count = %d, want 12", len(tools))
	}
	for name := range tools {
		if typ := GetTypeForTool(name); typ == "draft" || typ == "job" {
			t.Errorf("tool %q of a disabled type should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	database, cfg, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = AllToolNames()
	s := NewServer(database, cfg, nil, nil, "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"bundle_delete", "job_get"}, wantLen: 0},
		{name: "one unknown", input: []string{"bundle_delete", "widget_store"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar", "baz"}, wantLen: 3},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes(KnownTypes); len(unknown) != 0 {
		t.Errorf("KnownTypes reported unknown: %v", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"bundle", "widget"}); len(unknown) != 1 || unknown[0] != "widget" {
		t.Errorf("ValidateDisabledTypes() = %v, want [widget]", unknown)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 15 {
		t.Errorf("AllToolNames() returned %d names, want 15", len(names))
	}

	known := make(map[string]bool, len(KnownTypes))
	for _, typ := range KnownTypes {
		known[typ] = true
	}
	for _, name := range names {
		if !known[GetTypeForTool(name)] {
			t.Errorf("tool %q has no known type", name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
	if strings.Contains(errObj["message"].(string), "secret.db") {
		t.Fatalf("INTERNAL message leaks cause: %v", errObj["message"])
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("line 4: %w", errors.NewInvalidRequest("text is required"))

	errObj := errorObject(t, errorResult(wrappedErr))
	if errObj["code"] != string(errors.ErrInvalidRequest) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInvalidRequest)
	}
	msg := errObj["message"].(string)
	if !strings.Contains(msg, "line 4") || !strings.Contains(msg, "text is required") {
		t.Errorf("message should keep wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("bundle", "abc")))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error %s, got success", expectedCode)
		return
	}
	if code := errorObject(t, result)["code"]; code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
