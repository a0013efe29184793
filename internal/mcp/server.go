package mcp

import (
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/ops"
	"github.com/hpungsan/bundler/internal/prompt"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"bundle", "attempt", "content", "prompt", "draft", "job"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"bundle_create": {
		def:     bundleCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundleCreate },
	},
	"bundle_get": {
		def:     bundleGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundleGet },
	},
	"bundle_list": {
		def:     bundleListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundleList },
	},
	"bundle_update": {
		def:     bundleUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundleUpdate },
	},
	"bundle_delete": {
		def:     bundleDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundleDelete },
	},
	"bundle_preview": {
		def:     bundlePreviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundlePreview },
	},
	"bundle_process": {
		def:     bundleProcessToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBundleProcess },
	},
	"attempt_list": {
		def:     attemptListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAttemptList },
	},
	"attempt_diff": {
		def:     attemptDiffToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAttemptDiff },
	},
	"content_list": {
		def:     contentListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContentList },
	},
	"content_get": {
		def:     contentGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContentGet },
	},
	"prompt_defaults": {
		def:     promptDefaultsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptDefaults },
	},
	"draft_save": {
		def:     draftSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftSave },
	},
	"draft_load": {
		def:     draftLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDraftLoad },
	},
	"job_get": {
		def:     jobGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJobGet },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "bundle_process" → "bundle").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Bundler tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration. A nil queue leaves processed jobs
// pending until a runner sweeps them.
func NewServer(db *sql.DB, cfg *config.Config, lib *prompt.Library, queue ops.Enqueuer, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"bundler",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, lib, queue)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, lib *prompt.Library, queue ops.Enqueuer, version string) error {
	return server.ServeStdio(NewServer(db, cfg, lib, queue, version))
}
