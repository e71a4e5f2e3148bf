// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to
// domain.LLMProvider, grounded on the credential-per-request pattern used by
// the CV evaluator's internal/adapter/ai/real client (which swaps the API key
// on every call rather than holding one client per key).
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jobmatch/core/internal/domain"
)

// Client calls the Anthropic Messages API. It holds no credential: every
// call is given the credential to use by the dispatcher, so a single Client
// instance is shared across all credential slots.
type Client struct {
	DefaultMaxTokens int64
}

// New constructs an Anthropic provider adapter.
func New() *Client { return &Client{DefaultMaxTokens: 1024} }

func (c *Client) Generate(ctx context.Context, credential, model, prompt string, opts domain.GenerateOptions) (string, error) {
	cl := anthropic.NewClient(option.WithAPIKey(credential))

	maxTokens := int64(opts.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = c.DefaultMaxTokens
	}

	resp, err := cl.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", classify(err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("anthropic: empty response content")
	}
	return out, nil
}

// Embed is not offered by the Anthropic API; embeddings are dispatched to
// the OpenAI provider. Callers must route embedding requests elsewhere.
func (c *Client) Embed(_ context.Context, _, _ string, _ string) ([]float32, error) {
	return nil, fmt.Errorf("anthropic: embeddings not supported, use the openai provider")
}

type rateLimitErr struct{ err error }

func (e *rateLimitErr) Error() string { return e.err.Error() }
func (e *rateLimitErr) Unwrap() error { return e.err }
func (e *rateLimitErr) ProviderErrorKind() domain.ProviderErrorKind {
	return domain.ProviderErrorRateLimit
}

// classify distinguishes rate-limit responses (429) from other transport
// failures, per the anthropic-sdk-go *anthropic.Error status code. Non-rate-
// limit errors are returned unwrapped; the dispatcher wraps them as
// TransportError.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return &rateLimitErr{err: err}
	}
	return err
}

var _ domain.LLMProvider = (*Client)(nil)
