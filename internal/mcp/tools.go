package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var stringItems = mcp.Items(map[string]any{"type": "string"})

func pageOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Items per page (default 20, max 100)")),
	}
}

func processConfigOptions(typeRequired bool) []mcp.ToolOption {
	typeOpts := []mcp.PropertyOption{
		mcp.Description("What to produce from the bundle"),
		mcp.Enum("summary", "mvp_plan", "content_ideas", "blog_post"),
	}
	if typeRequired {
		typeOpts = append(typeOpts, mcp.Required())
	}
	return []mcp.ToolOption{
		mcp.WithString("bundle_id", mcp.Required(), mcp.Description("Bundle ID")),
		mcp.WithString("processing_type", typeOpts...),
		mcp.WithString("output_language", mcp.Description("Output language (default en)"), mcp.Enum("en", "ru", "es")),
		mcp.WithString("custom_instructions", mcp.Description("Appended as \"Additional Instructions\"")),
		mcp.WithString("system_prompt", mcp.Description("System prompt; empty uses the default for the type and language")),
		mcp.WithString("user_prompt", mcp.Description("Appended to the end of the final prompt")),
	}
}

func newTool(name, description string, groups ...[]mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, g := range groups {
		opts = append(opts, g...)
	}
	return mcp.NewTool(name, opts...)
}

var bundleCreateToolDef = newTool("bundle_create",
	"Create a bundle over existing content items. Order of content_ids is the order sources appear in prompts.",
	[]mcp.ToolOption{
		mcp.WithString("name", mcp.Description("Optional bundle name")),
		mcp.WithArray("content_ids", mcp.Required(), stringItems, mcp.Description("Ordered, unique content item IDs")),
	})

var bundleGetToolDef = newTool("bundle_get",
	"Get a bundle with its content items in bundle order.",
	[]mcp.ToolOption{mcp.WithString("id", mcp.Required(), mcp.Description("Bundle ID"))})

var bundleListToolDef = newTool("bundle_list",
	"List bundles, most recently updated first.",
	pageOptions())

var bundleUpdateToolDef = newTool("bundle_update",
	"Rename a bundle. A blank name clears it.",
	[]mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Bundle ID")),
		mcp.WithString("name", mcp.Description("New name")),
	})

var bundleDeleteToolDef = newTool("bundle_delete",
	"Delete a bundle with its attempts and jobs.",
	[]mcp.ToolOption{mcp.WithString("id", mcp.Required(), mcp.Description("Bundle ID"))})

var bundlePreviewToolDef = newTool("bundle_preview",
	"Preview the combined content and, when processing_type is given, the exact final prompt. Nothing is stored.",
	processConfigOptions(false))

var bundleProcessToolDef = newTool("bundle_process",
	"Record a processing attempt with a frozen copy of the config and queue its job. "+
		"Replaying an idempotency_key with the same config returns the original attempt.",
	processConfigOptions(true),
	[]mcp.ToolOption{
		mcp.WithString("idempotency_key", mcp.Description("Per-submit token; generated when omitted")),
	})

var attemptListToolDef = newTool("attempt_list",
	"List a bundle's attempts by attempt number, with job status.",
	[]mcp.ToolOption{mcp.WithString("bundle_id", mcp.Required(), mcp.Description("Bundle ID"))},
	pageOptions())

var attemptDiffToolDef = newTool("attempt_diff",
	"Compare the configuration of two attempts of the same bundle.",
	[]mcp.ToolOption{
		mcp.WithString("attempt_id_1", mcp.Required(), mcp.Description("First attempt ID")),
		mcp.WithString("attempt_id_2", mcp.Required(), mcp.Description("Second attempt ID")),
	})

var contentListToolDef = newTool("content_list",
	"List ingested content items, newest first.",
	[]mcp.ToolOption{mcp.WithString("source_type", mcp.Description("Filter by source type (youtube, pdf, web, text, feed)"))},
	pageOptions())

var contentGetToolDef = newTool("content_get",
	"Get one content item.",
	[]mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Content item ID")),
		mcp.WithBoolean("include_text", mcp.Description("Include the extracted text")),
	})

var promptDefaultsToolDef = newTool("prompt_defaults",
	"Default system prompt of every processing type for a language.",
	[]mcp.ToolOption{mcp.WithString("language", mcp.Description("Output language (default en)"), mcp.Enum("en", "ru", "es"))})

var draftSaveToolDef = newTool("draft_save",
	"Save the unsaved bundle form. Last write wins.",
	[]mcp.ToolOption{
		mcp.WithString("slot", mcp.Description("Draft slot (default bundle-form)")),
		mcp.WithObject("state", mcp.Required(), mcp.Description("Form fields: processingType, outputLanguage, customInstructions, systemPrompt, userPrompt, bundleName")),
	})

var draftLoadToolDef = newTool("draft_load",
	"Load a saved form draft. Expired or outdated drafts load as empty and are reported stale.",
	[]mcp.ToolOption{mcp.WithString("slot", mcp.Description("Draft slot (default bundle-form)"))})

var jobGetToolDef = newTool("job_get",
	"Get a processing job with its status, result and error.",
	[]mcp.ToolOption{
		mcp.WithString("id", mcp.Required(), mcp.Description("Job ID")),
		mcp.WithString("format", mcp.Description("Result format when completed"), mcp.Enum("markdown", "html")),
	})
