// Package domain defines the core entities, ports, and error taxonomy shared
// by every component of the dispatch core.
package domain

import (
	"context"
	"errors"
	"time"
)

// Context is a type alias to stdlib context.Context for convenience across layers.
type Context = context.Context

// Error taxonomy (sentinels). Wrap these with fmt.Errorf("%w: ...") or the
// typed errors in package llm; callers should match with errors.Is/As rather
// than string comparison.
var (
	// ErrExhausted means the dispatcher tried its retry budget against every
	// credential slot and could not obtain a result.
	ErrExhausted = errors.New("all credentials exhausted")
	// ErrTransport means the provider failed for a reason unrelated to rate
	// limiting (network error, 5xx, malformed HTTP response).
	ErrTransport = errors.New("transport error")
	// ErrParse means the LLM output failed schema, shape, or dimensionality
	// validation.
	ErrParse = errors.New("parse error")
	// ErrInput means the caller supplied malformed input.
	ErrInput = errors.New("invalid input")
	// ErrStorage means the storage collaborator failed.
	ErrStorage = errors.New("storage error")
	// ErrNotFound means a lookup by id found nothing.
	ErrNotFound = errors.New("not found")
	// ErrBusy means a dispatcher ExhaustedError surfaced during résumé
	// analysis; the caller should retry later rather than treat it as a
	// client input error.
	ErrBusy = errors.New("busy, try again later")
)

// Seniority is one of a closed set of levels.
type Seniority string

// Closed set of recognized seniority levels. Any other LLM output value
// normalizes to SeniorityMid (spec requirement).
const (
	SeniorityJunior Seniority = "Junior"
	SeniorityMid    Seniority = "Mid"
	SenioritySenior Seniority = "Senior"
	SeniorityLead   Seniority = "Lead"
)

// ValidSeniority reports whether s is a member of the closed set.
func ValidSeniority(s Seniority) bool {
	switch s {
	case SeniorityJunior, SeniorityMid, SenioritySenior, SeniorityLead:
		return true
	}
	return false
}

// RawJob is received from the durable log. Immutable once received.
type RawJob struct {
	ID          string
	Company     string
	Position    string
	Location    string
	URL         string
	Tags        []string
	Description string
	// ProducedAt is ambient metadata (lag metrics only); it never drives
	// ordering or idempotence decisions.
	ProducedAt time.Time
}

// EnrichedJob is the output of the enrichment transform and the unit of
// storage. Invariant: len(Embedding) == D; Seniority is a member of the
// closed set; ID is unique (upsert key).
type EnrichedJob struct {
	RawJob

	Skills    []string
	Seniority Seniority
	Summary   string
	Embedding []float32
	CreatedAt time.Time
}

// ResumeProfile is transient, extracted per analysis request.
type ResumeProfile struct {
	Skills          []string
	ExperienceYears *int // nil means unknown
	Summary         string
	KeyStrengths    []string
	Education       string
	JobTitles       []string
}

// SkillGap is a transient per-match comparison between a résumé profile and
// a job's required skills.
type SkillGap struct {
	Missing         []string
	Matching        []string
	Recommendations []string
}

// MatchResult is transient: a ranked job plus optional gap analysis.
type MatchResult struct {
	Job        EnrichedJob
	Similarity float64
	Gap        *SkillGap
}

// JobFilter restricts candidate rows considered by the vector matcher.
type JobFilter struct {
	Seniority    Seniority // exact-equality match; zero value means no filter
	RequireTags  []string  // subset containment: job.Tags must contain all of these
	RequireSkill []string  // subset containment over job.Skills
}

// StoredTuple is the shape the storage collaborator exposes for ranking: just
// enough to rank and render a match without re-fetching full job text.
type StoredTuple struct {
	ID        string
	Job       EnrichedJob
	Embedding []float32
}

// JobStore is the storage collaborator (consumed by C3 stream worker and C5
// vector matcher). Writes are upserts keyed by job id; last writer wins.
type JobStore interface {
	// UpsertEnrichedJob writes j, creating it if absent or replacing it if
	// present. Implementations should preserve CreatedAt across replacement
	// when the underlying store supports it (see DESIGN.md open question).
	UpsertEnrichedJob(ctx Context, j EnrichedJob) error
	// Query returns candidate tuples matching filter, capped at limit. A
	// limit <= 0 means "no cap" (return everything matching filter).
	Query(ctx Context, filter JobFilter, limit int) ([]StoredTuple, error)
	// Get returns a single job by id.
	Get(ctx Context, id string) (EnrichedJob, error)
}

// JobCache is the best-effort cache collaborator (consumed by C3). Failure
// is logged by the caller and never blocks the commit.
type JobCache interface {
	CacheJob(ctx Context, id string, j EnrichedJob, ttl time.Duration) error
}

// LogMessage is a single record read off the durable log.
type LogMessage struct {
	// Raw is the self-describing, undecoded payload bytes.
	Raw []byte
	// Partition/Offset identify the record for logging; the log collaborator
	// owns committing, the worker never seeks directly.
	Partition int32
	Offset    int64
}

// Log is the durable, partitioned message log collaborator (consumed by
// C3). Delivery is at-least-once; Commit advances the consumer-group
// position for the partition the message came from.
type Log interface {
	// Poll waits up to timeout for the next message. A nil message with a
	// nil error means no message arrived within timeout (not an error).
	Poll(ctx Context, timeout time.Duration) (*LogMessage, error)
	// Commit advances the committed position past msg.
	Commit(ctx Context, msg *LogMessage) error
}

// GenerateOptions configures a single GenerateText/GenerateStructured call.
type GenerateOptions struct {
	MaxOutputTokens int
	Temperature     float64
}

// LLMProvider is the external LLM collaborator (spec §6): a thin transport
// the dispatcher drives, never called directly by C2/C3/C4. Concrete
// implementations live under internal/llm/provider.
type LLMProvider interface {
	// Generate returns raw text for prompt using model and credential.
	Generate(ctx Context, credential, model, prompt string, opts GenerateOptions) (string, error)
	// Embed returns an embedding vector for text using model and credential.
	// The returned slice's length is whatever the provider produced; the
	// dispatcher enforces the dimensionality invariant, not the provider.
	Embed(ctx Context, credential, model, text string) ([]float32, error)
}

// ProviderErrorKind classifies a provider failure so the dispatcher can
// decide whether to cool the credential slot or surface a transport error.
type ProviderErrorKind int

const (
	// ProviderErrorOther is any failure that isn't rate-limiting.
	ProviderErrorOther ProviderErrorKind = iota
	// ProviderErrorRateLimit is a 429 / RESOURCE_EXHAUSTED / quota signal.
	ProviderErrorRateLimit
)

// ClassifiableError is implemented by provider errors that know their own
// kind (e.g. an HTTP 429 vs. a connection refused). Providers that don't
// implement this are treated as ProviderErrorOther by the dispatcher (see
// llm.classifyErr).
type ClassifiableError interface {
	error
	ProviderErrorKind() ProviderErrorKind
}
