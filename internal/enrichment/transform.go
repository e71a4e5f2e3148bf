// Package enrichment implements the enrichment transform (C2): given a raw
// job, produce the structured fields and embedding that make it an
// EnrichedJob. Grounded on the CV evaluator's response_cleaner.go /
// response_validator.go shape-checking approach, now routed entirely through
// the dispatcher's GenerateStructured/Embed contract instead of a bespoke
// HTTP call.
package enrichment

import (
	"strings"
	"time"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/llm"
)

const maxSkills = 15

// Dispatcher is the subset of *llm.Dispatcher the transform needs.
type Dispatcher interface {
	GenerateStructured(ctx domain.Context, prompt string, s llm.Shape) (map[string]any, error)
	Embed(ctx domain.Context, text string) ([]float32, error)
}

var enrichmentShape = llm.Shape{Fields: []llm.FieldSpec{
	{Name: "skills", Kind: llm.FieldStringList, Required: true},
	{Name: "seniority", Kind: llm.FieldString, Required: true},
	{Name: "summary", Kind: llm.FieldString, Required: true},
}}

// Transform runs the two-call enrichment algorithm (spec §4.2) against raw
// and returns the composed EnrichedJob. ExhaustedError and TransportError
// from either call are returned unchanged — this layer never interprets
// them, it is C3's job to decide retry/commit policy.
func Transform(ctx domain.Context, d Dispatcher, raw domain.RawJob) (domain.EnrichedJob, error) {
	prompt := buildStructuredPrompt(raw)
	obj, err := d.GenerateStructured(ctx, prompt, enrichmentShape)
	if err != nil {
		return domain.EnrichedJob{}, err
	}

	skills := dedupeSkillsCI(llm.StringListField(obj, "skills"), maxSkills)
	seniority := domain.Seniority(llm.StringField(obj, "seniority"))
	summary := llm.StringField(obj, "summary")

	embedInput := buildEmbedInput(raw.Position, summary, skills)
	vec, err := d.Embed(ctx, embedInput)
	if err != nil {
		return domain.EnrichedJob{}, err
	}

	return domain.EnrichedJob{
		RawJob:    raw,
		Skills:    skills,
		Seniority: seniority,
		Summary:   summary,
		Embedding: vec,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func buildStructuredPrompt(raw domain.RawJob) string {
	var b strings.Builder
	b.WriteString("You are extracting structured facts from a job posting. ")
	b.WriteString("Respond with a single JSON object and nothing else: no markdown, no code fences, no commentary. ")
	b.WriteString(`The object must have exactly these fields: "skills" (a list of short skill strings), "seniority" (one word: Junior, Mid, Senior, or Lead), and "summary" (a one or two sentence summary).`)
	b.WriteString("\n\nPosition: ")
	b.WriteString(raw.Position)
	b.WriteString("\nDescription:\n")
	b.WriteString(raw.Description)
	return b.String()
}

func buildEmbedInput(position, summary string, skills []string) string {
	var b strings.Builder
	b.WriteString(position)
	if summary != "" {
		b.WriteString(". ")
		b.WriteString(summary)
	}
	if len(skills) > 0 {
		b.WriteString(". Skills: ")
		b.WriteString(strings.Join(skills, ", "))
	}
	return b.String()
}

// dedupeSkillsCI deduplicates case-insensitively while preserving first
// occurrence, then caps the result at max entries (spec §4.2 step 2).
func dedupeSkillsCI(skills []string, max int) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		t := strings.TrimSpace(s)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
