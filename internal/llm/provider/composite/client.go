// Package composite combines a text-generation provider and an embedding
// provider behind a single domain.LLMProvider, since the dispatcher drives
// exactly one provider but Anthropic and OpenAI each cover only one of the
// two calls the dispatch core needs.
package composite

import (
	"fmt"
	"strings"

	"github.com/jobmatch/core/internal/domain"
)

// pairSep joins the two vendor credentials that make up one CredentialSlot.
// The dispatcher's pool is a single rotation of opaque strings (spec §3); to
// drive two vendor SDKs off that one pool, each slot's credential is really
// a pair "anthropicKey|openaiKey" built by PairCredentials, kept together so
// cooldown and rotation apply to one slot regardless of which leg a given
// call uses.
const pairSep = "|"

// PairCredentials zips an Anthropic key list and an OpenAI key list into the
// single credential pool the dispatcher rotates over. The two lists must be
// the same length: each pool slot needs both a generation key and an
// embedding key to stay usable for either call.
func PairCredentials(anthropic, openai []string) ([]string, error) {
	if len(anthropic) != len(openai) {
		return nil, fmt.Errorf("composite: anthropic and openai credential counts differ (%d vs %d)", len(anthropic), len(openai))
	}
	out := make([]string, len(anthropic))
	for i := range anthropic {
		out[i] = anthropic[i] + pairSep + openai[i]
	}
	return out, nil
}

func splitPair(credential string) (anthropicKey, openaiKey string) {
	before, after, found := strings.Cut(credential, pairSep)
	if !found {
		return credential, credential
	}
	return before, after
}

// Client routes Generate to Generator using the Anthropic half of a paired
// credential, and Embed to Embedder using the OpenAI half.
type Client struct {
	Generator domain.LLMProvider
	Embedder  domain.LLMProvider
}

// New builds a Client that sends GenerateText/GenerateStructured traffic to
// gen and Embed traffic to embed.
func New(gen, embed domain.LLMProvider) *Client {
	return &Client{Generator: gen, Embedder: embed}
}

func (c *Client) Generate(ctx domain.Context, credential, model, prompt string, opts domain.GenerateOptions) (string, error) {
	if c.Generator == nil {
		return "", fmt.Errorf("composite: no generation provider configured")
	}
	anthropicKey, _ := splitPair(credential)
	return c.Generator.Generate(ctx, anthropicKey, model, prompt, opts)
}

func (c *Client) Embed(ctx domain.Context, credential, model, text string) ([]float32, error) {
	if c.Embedder == nil {
		return nil, fmt.Errorf("composite: no embedding provider configured")
	}
	_, openaiKey := splitPair(credential)
	return c.Embedder.Embed(ctx, openaiKey, model, text)
}

var _ domain.LLMProvider = (*Client)(nil)
