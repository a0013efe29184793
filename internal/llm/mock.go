package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mock is an offline Client. It renders the prompt as Markdown unless Response or Err
// is set, and records every prompt it receives.
type Mock struct {
	Response string
	Err      error

	mu      sync.Mutex
	prompts []Prompt
}

// Complete implements Client.
func (m *Mock) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Response != "" {
		return m.Response, nil
	}

	var sb strings.Builder
	sb.WriteString("# Offline result\n\n")
	sb.WriteString("No LLM API key is configured; this is the prompt that would have been sent.\n\n")
	fmt.Fprintf(&sb, "```\n%s\n```\n", p.User)
	return sb.String(), nil
}

// Prompts returns the prompts received so far.
func (m *Mock) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}
