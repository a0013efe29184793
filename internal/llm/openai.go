package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/errors"
)

const defaultRetryDelay = time.Second

var errEmptyChoices = stderrors.New("completion returned no choices")

// OpenAI calls any OpenAI-compatible chat completion API (OpenRouter by default).
type OpenAI struct {
	client     openai.Client
	model      string
	host       string
	attempts   uint
	retryDelay time.Duration
}

// NewOpenAI builds a client from cfg. The SDK's own retries are disabled; transient
// failures are retried by Complete.
func NewOpenAI(cfg config.LLMConfig, apiKey string) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	host := "api.openai.com"
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		host:       host,
		attempts:   uint(max(cfg.MaxRetries, 0)) + 1,
		retryDelay: defaultRetryDelay,
	}
}

// Complete sends p as a system and a user message and returns the first choice.
// Network errors, 429 and 5xx responses are retried; after the last try they surface
// as UPSTREAM_UNAVAILABLE.
func (o *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(p.System) != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	msgs = append(msgs, openai.UserMessage(p.User))

	var out string
	err := retry.Do(
		func() error {
			resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model:    openai.ChatModel(o.model),
				Messages: msgs,
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return errEmptyChoices
			}
			out = resp.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.retryDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.NewCancelled("completion")
		}
		if IsTransient(err) {
			return "", errors.NewUpstreamUnavailable(o.host, err)
		}
		return "", fmt.Errorf("completion failed: %w", err)
	}
	return out, nil
}

// IsTransient reports whether err is worth retrying: rate limits, server errors and
// transport failures. Cancellation and other API errors are not.
func IsTransient(err error) bool {
	if err == nil || stderrors.Is(err, errEmptyChoices) ||
		stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return true
}
