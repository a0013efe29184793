package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/bundler/internal/bundle"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Overrides is the shape of the defaults file and of a user prompts file.
type Overrides struct {
	// SystemPrompts replaces the system prompt of a processing type
	SystemPrompts map[string]string `yaml:"system_prompts"`

	// Templates registers a text/template base prompt for a processing type.
	// Fields: .Count, .Titles, .Preview, .ProcessingType, .Language
	Templates map[string]string `yaml:"templates"`
}

// TemplateData is passed to registered base prompt templates.
type TemplateData struct {
	Count          int
	Titles         []string
	Preview        string
	ProcessingType string
	Language       string
}

// Library resolves system prompts and base prompt templates.
// Safe for concurrent use; Apply swaps the whole set atomically.
type Library struct {
	mu            sync.RWMutex
	defaults      map[bundle.ProcessingType]string
	systemPrompts map[bundle.ProcessingType]string
	templates     map[bundle.ProcessingType]*template.Template
}

// NewLibrary creates a library holding the built-in system prompts and no templates.
func NewLibrary() *Library {
	var o Overrides
	if err := yaml.Unmarshal(defaultsYAML, &o); err != nil {
		panic(fmt.Sprintf("prompt: invalid embedded defaults: %v", err))
	}
	defaults := make(map[bundle.ProcessingType]string, len(o.SystemPrompts))
	for k, v := range o.SystemPrompts {
		defaults[bundle.ProcessingType(k)] = strings.TrimSpace(v)
	}
	return &Library{
		defaults:      defaults,
		systemPrompts: defaults,
		templates:     map[bundle.ProcessingType]*template.Template{},
	}
}

// LoadOverrides reads a YAML prompts file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &o, nil
}

// Apply replaces all overrides with o. Built-in system prompts remain for types o does
// not mention. On error the library is left unchanged.
func (l *Library) Apply(o *Overrides) error {
	systemPrompts := make(map[bundle.ProcessingType]string, len(l.defaults))
	for k, v := range l.defaults {
		systemPrompts[k] = v
	}
	templates := make(map[bundle.ProcessingType]*template.Template)

	if o != nil {
		for k, v := range o.SystemPrompts {
			t := bundle.ProcessingType(k)
			if !t.Valid() {
				return fmt.Errorf("system_prompts: unknown processing type %q", k)
			}
			if strings.TrimSpace(v) != "" {
				systemPrompts[t] = strings.TrimSpace(v)
			}
		}
		for k, v := range o.Templates {
			t := bundle.ProcessingType(k)
			if !t.Valid() {
				return fmt.Errorf("templates: unknown processing type %q", k)
			}
			tmpl, err := template.New(k).Option("missingkey=error").Parse(v)
			if err != nil {
				return fmt.Errorf("templates.%s: %w", k, err)
			}
			templates[t] = tmpl
		}
	}

	l.mu.Lock()
	l.systemPrompts = systemPrompts
	l.templates = templates
	l.mu.Unlock()
	return nil
}

// Reload loads path and applies it. An empty path resets to built-ins.
func (l *Library) Reload(path string) error {
	if path == "" {
		return l.Apply(nil)
	}
	o, err := LoadOverrides(path)
	if err != nil {
		return err
	}
	return l.Apply(o)
}

// SystemPrompt returns the default system prompt for t in lang.
func (l *Library) SystemPrompt(t bundle.ProcessingType, lang bundle.Language) string {
	l.mu.RLock()
	base := l.systemPrompts[t]
	l.mu.RUnlock()
	if base == "" {
		return ""
	}
	return base + "\n\nWrite the entire response in " + LanguageName(lang) + "."
}

// SystemPrompts returns the default system prompt of every processing type for lang.
func (l *Library) SystemPrompts(lang bundle.Language) map[bundle.ProcessingType]string {
	result := make(map[bundle.ProcessingType]string, len(bundle.ProcessingTypes))
	for _, t := range bundle.ProcessingTypes {
		result[t] = l.SystemPrompt(t, lang)
	}
	return result
}

// lookupTemplate returns the registered template for t, if any.
func (l *Library) lookupTemplate(t bundle.ProcessingType) *template.Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.templates[t]
}

func executeTemplate(tmpl *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// LanguageName returns the English name of an output language ("ru" → "Russian").
func LanguageName(lang bundle.Language) string {
	tag, err := language.Parse(string(lang))
	if err != nil {
		return string(lang)
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return string(lang)
}
