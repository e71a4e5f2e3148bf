// Package resume implements the résumé analyzer (C4): turns extracted
// résumé text into a ranked list of job matches, each optionally annotated
// with a skill gap against the candidate's profile.
package resume

import (
	"fmt"
	"strings"
	"time"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/llm"
)

// Dispatcher is the subset of llm.Dispatcher the analyzer needs.
type Dispatcher interface {
	GenerateStructured(ctx domain.Context, prompt string, s llm.Shape) (map[string]any, error)
	GenerateText(ctx domain.Context, prompt string) (string, error)
	Embed(ctx domain.Context, text string) ([]float32, error)
}

// Matcher is the subset of matcher.Matcher the analyzer needs.
type Matcher interface {
	Rank(ctx domain.Context, query []float32, limit int, minSimilarity float64, filter domain.JobFilter) ([]domain.MatchResult, error)
}

// Options carries the per-request tunables spec §4.4 defines. IncludeGap is
// a pointer because its default is true: a plain bool can't distinguish
// "caller omitted this" from "caller explicitly asked for false".
type Options struct {
	Limit         int     // default 5
	MinSimilarity float64 // default 0.3
	IncludeGap    *bool   // default true
	GapDepth      int     // default 3, g <= Limit
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 5
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = 0.3
	}
	if o.IncludeGap == nil {
		t := true
		o.IncludeGap = &t
	}
	if o.GapDepth <= 0 {
		o.GapDepth = 3
	}
	if o.GapDepth > o.Limit {
		o.GapDepth = o.Limit
	}
	return o
}

// Result is the aggregate output of Analyze.
type Result struct {
	Profile          domain.ResumeProfile
	Matches          []domain.MatchResult
	ProcessingTimeMs int64
}

// Analyzer wires a Dispatcher and Matcher to implement the C4 algorithm.
type Analyzer struct {
	Dispatcher Dispatcher
	Matcher    Matcher
}

// New constructs an Analyzer.
func New(d Dispatcher, m Matcher) *Analyzer {
	return &Analyzer{Dispatcher: d, Matcher: m}
}

var profileShape = llm.Shape{Fields: []llm.FieldSpec{
	{Name: "skills", Kind: llm.FieldStringList, Required: true},
	{Name: "summary", Kind: llm.FieldString, Required: true},
	{Name: "key_strengths", Kind: llm.FieldStringList, Required: false},
	{Name: "education", Kind: llm.FieldString, Required: false},
	{Name: "job_titles", Kind: llm.FieldStringList, Required: false},
}}

// Analyze implements spec §4.4's five-step algorithm. A dispatcher
// ExhaustedError at any step is translated to domain.ErrBusy.
func (a *Analyzer) Analyze(ctx domain.Context, resumeText string, opts Options) (Result, error) {
	start := time.Now()
	opts = opts.withDefaults()

	profile, err := a.extractProfile(ctx, resumeText)
	if err != nil {
		return Result{}, asBusy(err)
	}

	queryVec, err := a.Dispatcher.Embed(ctx, buildProfileEmbedInput(profile))
	if err != nil {
		return Result{}, asBusy(err)
	}

	matches, err := a.Matcher.Rank(ctx, queryVec, opts.Limit, opts.MinSimilarity, domain.JobFilter{})
	if err != nil {
		return Result{}, err
	}

	if *opts.IncludeGap && len(matches) > 0 {
		depth := opts.GapDepth
		if depth > len(matches) {
			depth = len(matches)
		}
		gaps, err := a.analyzeGaps(ctx, profile, matches[:depth])
		if err != nil {
			return Result{}, asBusy(err)
		}
		for i, gap := range gaps {
			if gap != nil {
				matches[i].Gap = gap
			}
		}
	}

	return Result{
		Profile:          profile,
		Matches:          matches,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *Analyzer) extractProfile(ctx domain.Context, resumeText string) (domain.ResumeProfile, error) {
	prompt := buildProfileExtractionPrompt(resumeText)
	obj, err := a.Dispatcher.GenerateStructured(ctx, prompt, profileShape)
	if err != nil {
		return domain.ResumeProfile{}, err
	}
	profile := domain.ResumeProfile{
		Skills:       llm.StringListField(obj, "skills"),
		Summary:      llm.StringField(obj, "summary"),
		KeyStrengths: llm.StringListField(obj, "key_strengths"),
		Education:    llm.StringField(obj, "education"),
		JobTitles:    llm.StringListField(obj, "job_titles"),
	}
	if years, ok := llm.IntField(obj, "experience_years"); ok {
		profile.ExperienceYears = &years
	}
	return profile, nil
}

// analyzeGaps issues exactly one GenerateStructured-style call covering all
// of matches, per spec §4.4 step 4's "one batched call, not gap_depth
// calls" requirement, and splices the results back in positional order.
func (a *Analyzer) analyzeGaps(ctx domain.Context, profile domain.ResumeProfile, matches []domain.MatchResult) ([]*domain.SkillGap, error) {
	prompt := buildGapAnalysisPrompt(profile, matches)
	raw, err := a.Dispatcher.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	arr, err := llm.ParseJSONArray("GapAnalysis", raw)
	if err != nil {
		return nil, err
	}
	gaps := make([]*domain.SkillGap, len(matches))
	for i := range matches {
		if i >= len(arr) {
			break
		}
		gaps[i] = &domain.SkillGap{
			Missing:         llm.StringListField(arr[i], "missing"),
			Matching:        llm.StringListField(arr[i], "matching"),
			Recommendations: llm.StringListField(arr[i], "recommendations"),
		}
	}
	return gaps, nil
}

func buildProfileExtractionPrompt(resumeText string) string {
	var b strings.Builder
	b.WriteString("Extract a structured profile from this resume. Respond with a single JSON object only, no markdown, with fields: skills (list of strings), summary (string), key_strengths (list of strings), education (string), job_titles (list of strings), experience_years (integer, omit if unknown).\n\n")
	b.WriteString("Resume:\n")
	b.WriteString(resumeText)
	return b.String()
}

func buildProfileEmbedInput(p domain.ResumeProfile) string {
	var b strings.Builder
	b.WriteString(p.Summary)
	if len(p.Skills) > 0 {
		b.WriteString(" Skills: ")
		b.WriteString(strings.Join(p.Skills, ", "))
	}
	if len(p.JobTitles) > 0 {
		b.WriteString(" Titles: ")
		b.WriteString(strings.Join(p.JobTitles, ", "))
	}
	return b.String()
}

func buildGapAnalysisPrompt(profile domain.ResumeProfile, matches []domain.MatchResult) string {
	var b strings.Builder
	b.WriteString("Given this candidate profile and a list of jobs, respond with a single JSON array only, no markdown, one object per job in the same order, each with fields: missing (list of strings), matching (list of strings), recommendations (list of strings).\n\n")
	fmt.Fprintf(&b, "Candidate skills: %s\n\n", strings.Join(profile.Skills, ", "))
	for i, m := range matches {
		fmt.Fprintf(&b, "Job %d: %s - required skills: %s\n", i+1, m.Job.Position, strings.Join(m.Job.Skills, ", "))
	}
	return b.String()
}

func asBusy(err error) error {
	if llm.IsExhausted(err) {
		return fmt.Errorf("%w: %v", domain.ErrBusy, err)
	}
	return err
}
