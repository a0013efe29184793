package diff

import (
	"github.com/hpungsan/bundler/internal/bundle"
)

// Changes flags which configuration fields differ between two attempts.
type Changes struct {
	ProcessingTypeChanged     bool `json:"processing_type_changed"`
	LanguageChanged           bool `json:"language_changed"`
	CustomInstructionsChanged bool `json:"custom_instructions_changed"`
	SystemPromptChanged       bool `json:"system_prompt_changed"`
}

// Any reports whether at least one field changed.
func (c Changes) Any() bool {
	return c.ProcessingTypeChanged || c.LanguageChanged || c.CustomInstructionsChanged || c.SystemPromptChanged
}

// AttemptDiff is a field-level comparison of two attempts, in caller order.
type AttemptDiff struct {
	Attempt1 bundle.Attempt `json:"attempt_1"`
	Attempt2 bundle.Attempt `json:"attempt_2"`
	Changes  Changes        `json:"changes"`
}

// Compare diffs a against b using exact equality. A nil custom_instructions is not
// equal to an empty one, and whitespace differences count.
func Compare(a, b bundle.Attempt) AttemptDiff {
	return AttemptDiff{
		Attempt1: a,
		Attempt2: b,
		Changes: Changes{
			ProcessingTypeChanged:     a.ProcessingType != b.ProcessingType,
			LanguageChanged:           a.OutputLanguage != b.OutputLanguage,
			CustomInstructionsChanged: !equalOptional(a.CustomInstructions, b.CustomInstructions),
			SystemPromptChanged:       a.SystemPrompt != b.SystemPrompt,
		},
	}
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
