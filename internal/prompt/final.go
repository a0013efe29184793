package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/hpungsan/bundler/internal/bundle"
	"github.com/hpungsan/bundler/internal/content"
	"github.com/hpungsan/bundler/internal/errors"
)

// builtinBase holds the hand-written base prompts. blog_post has none; it needs a
// registered template.
var builtinBase = map[bundle.ProcessingType]string{
	bundle.Summary:      "Please provide a comprehensive summary of the following %d sources:\n\n%s\n\n%s",
	bundle.MVPPlan:      "Create a detailed MVP plan based on the following %d sources:\n\n%s\n\n%s",
	bundle.ContentIdeas: "Generate creative content ideas based on the following %d sources:\n\n%s\n\n%s",
}

var builtin = NewLibrary()

// Default returns the shared library of built-in prompts. Callers must not Apply to it.
func Default() *Library {
	return builtin
}

// Final composes the exact prompt text using only the built-in templates.
func Final(cfg bundle.ProcessConfig, contentIDs []string, items []content.Item, preview string) (string, error) {
	return builtin.Final(cfg, contentIDs, items, preview)
}

// Final composes the exact prompt text sent to the model:
// base prompt, then "Additional Instructions", then the user prompt.
// A registered template takes precedence over the built-in base for its type.
func (l *Library) Final(cfg bundle.ProcessConfig, contentIDs []string, items []content.Item, preview string) (string, error) {
	resolved := Resolve(contentIDs, items)
	titles := make([]string, len(resolved))
	for i, item := range resolved {
		titles[i] = listTitle(item)
	}

	var base string
	if tmpl := l.lookupTemplate(cfg.ProcessingType); tmpl != nil {
		var err error
		base, err = executeTemplate(tmpl, TemplateData{
			Count:          len(contentIDs),
			Titles:         titles,
			Preview:        preview,
			ProcessingType: string(cfg.ProcessingType),
			Language:       string(cfg.OutputLanguage),
		})
		if err != nil {
			return "", errors.NewInternal(err)
		}
	} else {
		format, ok := builtinBase[cfg.ProcessingType]
		if !ok {
			return "", errors.NewUnmappedProcessingType(string(cfg.ProcessingType))
		}
		bullets := make([]string, len(titles))
		for i, t := range titles {
			bullets[i] = "- " + t
		}
		base = fmt.Sprintf(format, len(contentIDs), strings.Join(bullets, "\n"), preview)
	}

	var b strings.Builder
	b.WriteString(base)
	if cfg.CustomInstructions != nil && *cfg.CustomInstructions != "" {
		b.WriteString("\n\nAdditional Instructions: ")
		b.WriteString(*cfg.CustomInstructions)
	}
	if cfg.UserPrompt != nil && *cfg.UserPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(*cfg.UserPrompt)
	}
	return b.String(), nil
}

// HasTemplate reports whether t can be composed, built-in or registered.
func (l *Library) HasTemplate(t bundle.ProcessingType) bool {
	if _, ok := builtinBase[t]; ok {
		return true
	}
	return l.lookupTemplate(t) != nil
}

// Hash returns a SHA256 fingerprint of a composed prompt.
func Hash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
