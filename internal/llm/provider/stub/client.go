// Package stub implements domain.LLMProvider deterministically, for tests
// and local/dev runs without network access. Ported from the CV evaluator's
// internal/adapter/ai/stub package.
package stub

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/jobmatch/core/internal/domain"
)

// Client is a deterministic stand-in LLM provider.
type Client struct {
	// Dim is the embedding dimensionality to emit; defaults to 768.
	Dim int
	// FailRateLimit, when non-empty, makes Generate/Embed return a
	// rate-limit error for the listed credentials (test hook).
	FailRateLimit map[string]bool
}

// New constructs a stub client with the given embedding dimensionality.
func New(dim int) *Client {
	if dim <= 0 {
		dim = 768
	}
	return &Client{Dim: dim}
}

type rateLimitErr struct{ credential string }

func (e *rateLimitErr) Error() string {
	return fmt.Sprintf("stub: credential %s rate limited", e.credential)
}
func (e *rateLimitErr) ProviderErrorKind() domain.ProviderErrorKind {
	return domain.ProviderErrorRateLimit
}

var _ domain.ClassifiableError = (*rateLimitErr)(nil)

// Generate returns a canned JSON response chosen by keywords in the prompt
// (enrichment, résumé profile, gap analysis, or a generic object), enough
// for structured-output parsing to succeed without a live model.
func (c *Client) Generate(_ context.Context, credential, model, prompt string, _ domain.GenerateOptions) (string, error) {
	if c.FailRateLimit[credential] {
		return "", &rateLimitErr{credential: credential}
	}
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "skills") && strings.Contains(lower, "seniority"):
		return `{"skills":["Go","PostgreSQL"],"seniority":"Senior","summary":"stub summary"}`, nil
	case strings.Contains(lower, "experience_years"):
		return `{"skills":["Go"],"experience_years":5,"summary":"stub profile","key_strengths":["backend"],"education":"BSc","job_titles":["Engineer"]}`, nil
	case strings.Contains(lower, "missing") && strings.Contains(lower, "recommendations"):
		return `[{"missing":["Kubernetes"],"matching":["Go"],"recommendations":["Learn Kubernetes"]}]`, nil
	default:
		return fmt.Sprintf(`{"text":"stub response for model %s"}`, model), nil
	}
}

// Embed returns a deterministic hash-derived vector of c.Dim floats. This is
// explicitly a test fixture, not a heuristic fallback used by the core in
// production: spec §9 forbids the core itself from substituting hash
// pseudo-embeddings on failure.
func (c *Client) Embed(_ context.Context, credential, _ string, text string) ([]float32, error) {
	if c.FailRateLimit[credential] {
		return nil, &rateLimitErr{credential: credential}
	}
	h := sha256.Sum256([]byte(text))
	vec := make([]float32, c.Dim)
	for i := range vec {
		b := h[i%len(h)]
		vec[i] = float32(b) / 255.0
	}
	return vec, nil
}

var _ domain.LLMProvider = (*Client)(nil)
