package draft

import (
	"testing"
	"time"
)

func TestSeed_FillsOnlyBlankFields(t *testing.T) {
	current := FormState{ProcessingType: "mvp_plan", BundleName: ""}
	loaded := FormState{
		ProcessingType:     "summary",
		OutputLanguage:     "ru",
		CustomInstructions: "Focus on action items",
		BundleName:         "Old name",
	}

	got := Seed(current, loaded)
	want := FormState{
		ProcessingType:     "mvp_plan",
		OutputLanguage:     "ru",
		CustomInstructions: "Focus on action items",
		BundleName:         "Old name",
	}
	if got != want {
		t.Errorf("Seed() = %+v, want %+v", got, want)
	}
}

func TestSeed_EmptyLoaded(t *testing.T) {
	current := FormState{ProcessingType: "summary"}
	if got := Seed(current, FormState{}); got != current {
		t.Errorf("Seed() = %+v, want %+v", got, current)
	}
}

func TestDraft_Check(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ttl := 24 * time.Hour
	var missing *Draft

	tests := []struct {
		name  string
		draft *Draft
		ttl   time.Duration
		want  string
	}{
		{
			name:  "fresh",
			draft: &Draft{SchemaVersion: SchemaVersion, SavedAt: now.Add(-time.Hour).Unix()},
			ttl:   ttl,
			want:  "",
		},
		{
			name:  "expired",
			draft: &Draft{SchemaVersion: SchemaVersion, SavedAt: now.Add(-25 * time.Hour).Unix()},
			ttl:   ttl,
			want:  ReasonExpired,
		},
		{
			name:  "ttl 0 disables expiry",
			draft: &Draft{SchemaVersion: SchemaVersion, SavedAt: now.Add(-25 * time.Hour).Unix()},
			ttl:   0,
			want:  "",
		},
		{
			name:  "other schema version",
			draft: &Draft{SchemaVersion: SchemaVersion + 1, SavedAt: now.Unix()},
			ttl:   ttl,
			want:  ReasonVersionMismatch,
		},
		{
			name:  "missing",
			draft: missing,
			ttl:   ttl,
			want:  ReasonMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.draft.Check(now, tt.ttl); got != tt.want {
				t.Errorf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeSlot(t *testing.T) {
	if got := NormalizeSlot("  "); got != DefaultSlot {
		t.Errorf("NormalizeSlot(blank) = %q, want %q", got, DefaultSlot)
	}
	if got := NormalizeSlot(" bundle-42 "); got != "bundle-42" {
		t.Errorf("NormalizeSlot() = %q, want bundle-42", got)
	}
}

func TestFormState_Empty(t *testing.T) {
	if !(FormState{}).Empty() {
		t.Error("zero FormState should be empty")
	}
	if (FormState{UserPrompt: "x"}).Empty() {
		t.Error("FormState with a user prompt should not be empty")
	}
}
