package llm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmatch/core/internal/domain"
)

// fakeRateLimitErr lets test providers signal a 429-equivalent without
// depending on a concrete provider package.
type fakeRateLimitErr struct{ credential string }

func (e *fakeRateLimitErr) Error() string { return fmt.Sprintf("rate limited: %s", e.credential) }
func (e *fakeRateLimitErr) ProviderErrorKind() domain.ProviderErrorKind {
	return domain.ProviderErrorRateLimit
}

var _ domain.ClassifiableError = (*fakeRateLimitErr)(nil)

// fakeProvider is a scriptable domain.LLMProvider: RateLimited tracks which
// credentials currently return a rate-limit error on Generate/Embed.
type fakeProvider struct {
	mu          sync.Mutex
	RateLimited map[string]bool
	TransportFn func(credential string) error
	calls       []string
	dim         int
}

func (f *fakeProvider) Generate(_ context.Context, credential, _, _ string, _ domain.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, credential)
	f.mu.Unlock()
	if f.RateLimited[credential] {
		return "", &fakeRateLimitErr{credential: credential}
	}
	if f.TransportFn != nil {
		if err := f.TransportFn(credential); err != nil {
			return "", err
		}
	}
	return `{"text":"ok"}`, nil
}

func (f *fakeProvider) Embed(_ context.Context, credential, _ string, _ string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, credential)
	f.mu.Unlock()
	if f.RateLimited[credential] {
		return nil, &fakeRateLimitErr{credential: credential}
	}
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	return make([]float32, dim), nil
}

func newTestDispatcher(provider domain.LLMProvider, credentials []string) *Dispatcher {
	d := New(provider, Config{
		Credentials:           credentials,
		ModelGenerate:         "test-model",
		ModelEmbed:            "test-embed",
		MinGapBetweenCalls:    time.Millisecond,
		PerSlotCooldown:       20 * time.Millisecond,
		MaxRetriesOnRateLimit: len(credentials),
		EmbeddingDim:          4,
	})
	d.SetBackoffTuning(time.Millisecond, 5*time.Millisecond, 1.2)
	return d
}

func TestDispatcher_GenerateText_Success(t *testing.T) {
	p := &fakeProvider{}
	d := newTestDispatcher(p, []string{"k1", "k2"})

	out, err := d.GenerateText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"text":"ok"}`, out)
}

// TestDispatcher_RotatesOnRateLimit covers scenario S2: a rate-limited
// credential cools down and the dispatcher rotates to the next slot instead
// of retrying the same one.
func TestDispatcher_RotatesOnRateLimit(t *testing.T) {
	p := &fakeProvider{RateLimited: map[string]bool{"k1": true}}
	d := newTestDispatcher(p, []string{"k1", "k2"})

	_, err := d.GenerateText(context.Background(), "hello")
	require.NoError(t, err)

	slots := d.Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, SlotCooling, slots[0].State)
	assert.Equal(t, SlotHealthy, slots[1].State)
}

// TestDispatcher_ExhaustedWhenAllCredentialsRateLimited covers scenario S3:
// every credential rate limited yields an ExhaustedError, never a panic or
// an infinite retry.
func TestDispatcher_ExhaustedWhenAllCredentialsRateLimited(t *testing.T) {
	p := &fakeProvider{RateLimited: map[string]bool{"k1": true, "k2": true}}
	d := newTestDispatcher(p, []string{"k1", "k2"})

	_, err := d.GenerateText(context.Background(), "hello")
	require.Error(t, err)
	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.True(t, IsExhausted(err))
}

func TestDispatcher_TransportErrorIsTerminal(t *testing.T) {
	p := &fakeProvider{TransportFn: func(string) error { return fmt.Errorf("boom") }}
	d := newTestDispatcher(p, []string{"k1"})

	_, err := d.GenerateText(context.Background(), "hello")
	require.Error(t, err)
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.True(t, IsTransport(err))

	// A terminal transport error must not have retried against another slot.
	assert.Len(t, p.calls, 1)
}

func TestDispatcher_Embed_DimensionalityMismatchIsParseError(t *testing.T) {
	p := &fakeProvider{dim: 3}
	d := newTestDispatcher(p, []string{"k1"})

	_, err := d.Embed(context.Background(), "resume text")
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.True(t, IsParse(err))
}

func TestDispatcher_Embed_CorrectDimensionSucceeds(t *testing.T) {
	p := &fakeProvider{dim: 4}
	d := newTestDispatcher(p, []string{"k1"})

	vec, err := d.Embed(context.Background(), "resume text")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestDispatcher_GenerateStructured_ParsesCleanedJSON(t *testing.T) {
	p := &fenceProvider{body: "```json\n{\"skills\":[\"Go\",\"SQL\"],\"seniority\":\"Senior\"}\n```"}
	d := newTestDispatcher(p, []string{"k1"})

	s := Shape{Fields: []FieldSpec{
		{Name: "skills", Kind: FieldStringList, Required: true},
		{Name: "seniority", Kind: FieldString, Required: true},
	}}
	obj, err := d.GenerateStructured(context.Background(), "extract skills and seniority", s)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "SQL"}, StringListField(obj, "skills"))
	assert.Equal(t, "Senior", StringField(obj, "seniority"))
}

func TestDispatcher_GenerateStructured_MissingRequiredFieldIsParseError(t *testing.T) {
	p := &fenceProvider{body: `{"skills":["Go"]}`}
	d := newTestDispatcher(p, []string{"k1"})

	s := Shape{Fields: []FieldSpec{
		{Name: "skills", Kind: FieldStringList, Required: true},
		{Name: "seniority", Kind: FieldString, Required: true},
	}}
	_, err := d.GenerateStructured(context.Background(), "extract", s)
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

// fenceProvider always returns body regardless of prompt, for structured
// output tests.
type fenceProvider struct{ body string }

func (f *fenceProvider) Generate(_ context.Context, _, _, _ string, _ domain.GenerateOptions) (string, error) {
	return f.body, nil
}
func (f *fenceProvider) Embed(_ context.Context, _, _ string, _ string) ([]float32, error) {
	return nil, fmt.Errorf("not used")
}

func TestDispatcher_NoCredentialsConfigured(t *testing.T) {
	p := &fakeProvider{}
	d := newTestDispatcher(p, nil)

	_, err := d.GenerateText(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsExhausted(err))
}
