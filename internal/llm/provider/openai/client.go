// Package openai adapts github.com/openai/openai-go/v3 to domain.LLMProvider,
// used for the Embed leg of the dispatch core (the Anthropic provider does
// not expose an embeddings endpoint).
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jobmatch/core/internal/domain"
)

// Client calls the OpenAI Embeddings API. Like the Anthropic adapter it
// holds no credential: each call carries the credential chosen by the
// dispatcher for that attempt.
type Client struct{}

// New constructs an OpenAI provider adapter.
func New() *Client { return &Client{} }

// Generate is not used by this adapter; text generation goes through the
// Anthropic provider.
func (c *Client) Generate(_ context.Context, _, _, _ string, _ domain.GenerateOptions) (string, error) {
	return "", fmt.Errorf("openai: text generation not supported, use the anthropic provider")
}

func (c *Client) Embed(ctx context.Context, credential, model, text string) ([]float32, error) {
	cl := openai.NewClient(option.WithAPIKey(credential))

	resp, err := cl.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: empty embedding response")
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return vec, nil
}

type rateLimitErr struct{ err error }

func (e *rateLimitErr) Error() string { return e.err.Error() }
func (e *rateLimitErr) Unwrap() error { return e.err }
func (e *rateLimitErr) ProviderErrorKind() domain.ProviderErrorKind {
	return domain.ProviderErrorRateLimit
}

// classify distinguishes rate-limit responses (429) from other transport
// failures, per the openai-go *openai.Error status code.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return &rateLimitErr{err: err}
	}
	return err
}

var _ domain.LLMProvider = (*Client)(nil)
