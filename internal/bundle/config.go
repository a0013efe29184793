package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/bundler/internal/errors"
)

// ProcessingType selects which prompt template is requested.
type ProcessingType string

const (
	Summary      ProcessingType = "summary"
	MVPPlan      ProcessingType = "mvp_plan"
	ContentIdeas ProcessingType = "content_ideas"
	BlogPost     ProcessingType = "blog_post"
)

// ProcessingTypes lists every processing type in display order.
var ProcessingTypes = []ProcessingType{Summary, MVPPlan, ContentIdeas, BlogPost}

// Valid reports whether t is a known processing type.
func (t ProcessingType) Valid() bool {
	for _, known := range ProcessingTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Language is an output language code.
type Language string

const (
	English Language = "en"
	Russian Language = "ru"
	Spanish Language = "es"
)

// Languages lists every supported output language.
var Languages = []Language{English, Russian, Spanish}

// Valid reports whether l is a supported output language.
func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

// ProcessConfig is the request to process a bundle.
type ProcessConfig struct {
	ProcessingType     ProcessingType `json:"processing_type"`
	OutputLanguage     Language       `json:"output_language"`
	CustomInstructions *string        `json:"custom_instructions,omitempty"`

	// SystemPrompt empty means the default for (ProcessingType, OutputLanguage)
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   *string `json:"user_prompt,omitempty"`

	// CombinedContentPreview is informational; the server recomposes it
	CombinedContentPreview *string `json:"combined_content_preview,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Validate checks that required fields are set and enums are known.
func (c *ProcessConfig) Validate() error {
	if c.ProcessingType == "" {
		return errors.NewInvalidRequest("processing_type is required")
	}
	if !c.ProcessingType.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("processing_type must be one of: %s", joinTypes()))
	}
	if c.OutputLanguage == "" {
		return errors.NewInvalidRequest("output_language is required")
	}
	if !c.OutputLanguage.Valid() {
		return errors.NewInvalidRequest(fmt.Sprintf("output_language must be one of: %s", joinLanguages()))
	}
	if len(c.IdempotencyKey) > 200 {
		return errors.NewInvalidRequest("idempotency_key must be at most 200 characters")
	}
	return nil
}

// RequestHash fingerprints the fields that define an attempt. Two submissions with
// the same idempotency key must agree on this hash.
func (c *ProcessConfig) RequestHash() string {
	payload := struct {
		ProcessingType     ProcessingType `json:"t"`
		OutputLanguage     Language       `json:"l"`
		CustomInstructions *string        `json:"ci"`
		SystemPrompt       string         `json:"sp"`
		UserPrompt         *string        `json:"up"`
	}{c.ProcessingType, c.OutputLanguage, c.CustomInstructions, c.SystemPrompt, c.UserPrompt}

	data, _ := json.Marshal(payload)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ValidateContentIDs checks that ids is non-empty, within max, and free of duplicates.
// Returns the trimmed ids in their original order.
func ValidateContentIDs(ids []string, max int) ([]string, error) {
	if len(ids) == 0 {
		return nil, errors.NewInvalidRequest("content_ids is required and must not be empty")
	}
	if max > 0 && len(ids) > max {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("too many content_ids: %d (max %d)", len(ids), max))
	}

	seen := make(map[string]bool, len(ids))
	result := make([]string, 0, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("content_ids[%d] must not be empty", i))
		}
		if seen[id] {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("content_ids[%d] duplicates %q", i, id))
		}
		seen[id] = true
		result = append(result, id)
	}
	return result, nil
}

// CleanName trims a bundle name; blank names become nil.
func CleanName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func joinTypes() string {
	parts := make([]string, len(ProcessingTypes))
	for i, t := range ProcessingTypes {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func joinLanguages() string {
	parts := make([]string, len(Languages))
	for i, l := range Languages {
		parts[i] = string(l)
	}
	return strings.Join(parts, ", ")
}
