package draft

import (
	"strings"
	"time"
)

// SchemaVersion is bumped whenever FormState changes shape. Drafts saved under
// another version are discarded on load.
const SchemaVersion = 1

// DefaultSlot is the slot used when a caller does not name one.
const DefaultSlot = "bundle-form"

// Reasons a stored draft is not restored.
const (
	ReasonMissing         = "missing"
	ReasonExpired         = "expired"
	ReasonVersionMismatch = "version_mismatch"
)

// FormState is the unsaved bundle-configuration form.
type FormState struct {
	ProcessingType     string `json:"processingType"`
	OutputLanguage     string `json:"outputLanguage"`
	CustomInstructions string `json:"customInstructions"`
	SystemPrompt       string `json:"systemPrompt"`
	UserPrompt         string `json:"userPrompt"`
	BundleName         string `json:"bundleName"`
}

// Empty reports whether every field is blank.
func (s FormState) Empty() bool {
	return s == FormState{}
}

// Draft is a stored FormState tagged with its schema version and save time.
type Draft struct {
	Slot          string    `json:"slot"`
	SchemaVersion int       `json:"schema_version"`
	SavedAt       int64     `json:"saved_at"`
	State         FormState `json:"state"`
}

// Check reports whether d can be restored at now. ttl <= 0 disables expiry.
// Returns "" when usable, otherwise one of the Reason constants.
func (d *Draft) Check(now time.Time, ttl time.Duration) string {
	if d == nil {
		return ReasonMissing
	}
	if d.SchemaVersion != SchemaVersion {
		return ReasonVersionMismatch
	}
	if ttl > 0 && now.Sub(time.Unix(d.SavedAt, 0)) > ttl {
		return ReasonExpired
	}
	return ""
}

// Seed fills the blank fields of current from loaded. Non-blank fields of current
// always win.
func Seed(current, loaded FormState) FormState {
	out := current
	fill(&out.ProcessingType, loaded.ProcessingType)
	fill(&out.OutputLanguage, loaded.OutputLanguage)
	fill(&out.CustomInstructions, loaded.CustomInstructions)
	fill(&out.SystemPrompt, loaded.SystemPrompt)
	fill(&out.UserPrompt, loaded.UserPrompt)
	fill(&out.BundleName, loaded.BundleName)
	return out
}

func fill(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

// NormalizeSlot trims a slot name and applies the default.
func NormalizeSlot(slot string) string {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return DefaultSlot
	}
	return slot
}
