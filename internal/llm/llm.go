// Package llm wraps the chat-completion endpoint that turns a composed prompt into a result.
package llm

import (
	"context"

	"github.com/hpungsan/bundler/internal/config"
)

// Prompt is one chat completion request: a system message and a user message.
type Prompt struct {
	System string
	User   string
}

// Client completes prompts. Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// New returns an OpenAI-compatible client when an API key is configured,
// otherwise a Mock that echoes the prompt.
func New(cfg config.LLMConfig) Client {
	key := cfg.APIKey()
	if key == "" {
		return &Mock{}
	}
	return NewOpenAI(cfg, key)
}
