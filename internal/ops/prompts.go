package ops

import (
	"strings"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/errors"
	"github.com/hpungsan/bundler/internal/prompt"
)

// SystemPromptsInput contains parameters for the SystemPrompts operation.
type SystemPromptsInput struct {
	Language string // default: en
}

// SystemPromptEntry is the default prompt of one processing type.
type SystemPromptEntry struct {
	SystemPrompt string `json:"system_prompt"`

	// Composable is false for types with no base prompt template
	Composable bool `json:"composable"`
}

// SystemPrompts returns the default system prompt of every processing type,
// keyed by processing type.
func SystemPrompts(lib *prompt.Library, input SystemPromptsInput) (map[bundle.ProcessingType]SystemPromptEntry, error) {
	lang := bundle.Language(strings.TrimSpace(input.Language))
	if lang == "" {
		lang = bundle.English
	}
	if !lang.Valid() {
		return nil, errors.NewInvalidRequest("language must be one of: en, ru, es")
	}
	lib = library(lib)

	prompts := lib.SystemPrompts(lang)
	result := make(map[bundle.ProcessingType]SystemPromptEntry, len(prompts))
	for t, sp := range prompts {
		result[t] = SystemPromptEntry{SystemPrompt: sp, Composable: lib.HasTemplate(t)}
	}
	return result, nil
}
