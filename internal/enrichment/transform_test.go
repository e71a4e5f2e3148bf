package enrichment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/llm"
)

type fakeDispatcher struct {
	structuredResp map[string]any
	structuredErr  error
	embedResp      []float32
	embedErr       error
	lastPrompt     string
	lastEmbedInput string
}

func (f *fakeDispatcher) GenerateStructured(_ domain.Context, prompt string, _ llm.Shape) (map[string]any, error) {
	f.lastPrompt = prompt
	return f.structuredResp, f.structuredErr
}

func (f *fakeDispatcher) Embed(_ domain.Context, text string) ([]float32, error) {
	f.lastEmbedInput = text
	return f.embedResp, f.embedErr
}

func TestTransform_HappyPath(t *testing.T) {
	d := &fakeDispatcher{
		structuredResp: map[string]any{
			"skills":    []any{"Go", "go", "PostgreSQL"},
			"seniority": string(domain.SenioritySenior),
			"summary":   "Builds backend systems.",
		},
		embedResp: make([]float32, 768),
	}
	raw := domain.RawJob{ID: "j1", Position: "Backend Engineer", Description: "Build APIs in Go."}

	job, err := Transform(context.Background(), d, raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, job.Skills)
	assert.Equal(t, domain.SenioritySenior, job.Seniority)
	assert.Equal(t, "Builds backend systems.", job.Summary)
	assert.Len(t, job.Embedding, 768)
	assert.Equal(t, raw.ID, job.ID)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Contains(t, d.lastEmbedInput, "Backend Engineer")
	assert.Contains(t, d.lastEmbedInput, "Go, PostgreSQL")
}

func TestTransform_EmptyDescriptionStillCallsLLM(t *testing.T) {
	d := &fakeDispatcher{
		structuredResp: map[string]any{
			"skills":    []any{},
			"seniority": string(domain.SeniorityMid),
			"summary":   "",
		},
		embedResp: make([]float32, 768),
	}
	raw := domain.RawJob{ID: "j2", Position: "Intern", Description: ""}

	job, err := Transform(context.Background(), d, raw)
	require.NoError(t, err)
	assert.Empty(t, job.Skills)
	assert.Contains(t, d.lastPrompt, "Intern")
}

func TestTransform_GenerateStructuredErrorPropagatesUnchanged(t *testing.T) {
	sentinel := &llm.ExhaustedError{Op: "GenerateStructured", Attempts: 3}
	d := &fakeDispatcher{structuredErr: sentinel}

	_, err := Transform(context.Background(), d, domain.RawJob{ID: "j3"})
	require.Error(t, err)
	assert.Same(t, sentinel, err)
	assert.True(t, llm.IsExhausted(err))
}

func TestTransform_EmbedErrorPropagatesUnchanged(t *testing.T) {
	sentinel := fmt.Errorf("boom")
	d := &fakeDispatcher{
		structuredResp: map[string]any{
			"skills": []any{"Go"}, "seniority": string(domain.SeniorityMid), "summary": "x",
		},
		embedErr: sentinel,
	}

	_, err := Transform(context.Background(), d, domain.RawJob{ID: "j4"})
	require.Error(t, err)
	assert.Same(t, sentinel, err)
}

func TestDedupeSkillsCI(t *testing.T) {
	in := []string{"Go", "go", " GO ", "SQL", "", "Rust"}
	got := dedupeSkillsCI(in, 0)
	assert.Equal(t, []string{"Go", "SQL", "Rust"}, got)

	capped := dedupeSkillsCI(in, 2)
	assert.Equal(t, []string{"Go", "SQL"}, capped)
}
