// Package worker implements the stream worker (C3): the consumer loop that
// drives the enrichment transform from a durable, partitioned log. Grounded
// on the shape of the CV evaluator's
// internal/adapter/queue/redpanda/consumer.go main loop, generalized from
// its worker-pool/evaluation-task shape down to the single sequential
// poll/decode/enrich/upsert/cache/commit loop spec.md describes (no
// transactional session, no DLQ topic, no fan-out worker pool: those are
// scope the CV evaluator's queue needed and this one does not).
package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/llm"
	"github.com/jobmatch/core/internal/observability"
)

// Enricher is the signature of enrichment.Transform the worker needs, kept
// as a function type so tests can substitute a fake without standing up a
// dispatcher.
type Enricher func(ctx domain.Context, raw domain.RawJob) (domain.EnrichedJob, error)

// Config tunes the main loop (spec §4.3 / ambient worker tuning).
type Config struct {
	PollTimeout      time.Duration
	MaxCommitRetries int
	CacheTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Second
	}
	if c.MaxCommitRetries <= 0 {
		c.MaxCommitRetries = 3
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	return c
}

// Worker drives Enricher from Log into Store, with a best-effort write to
// Cache.
type Worker struct {
	Log     domain.Log
	Store   domain.JobStore
	Cache   domain.JobCache // may be nil: cache write is best-effort, not required
	Enrich  Enricher
	cfg     Config
	logger  *slog.Logger
	retries map[string]int // per-message-identity retry counters, keyed by partition:offset
}

// New constructs a Worker. logger may be nil, in which case slog.Default is
// used.
func New(log domain.Log, store domain.JobStore, cache domain.JobCache, enrich Enricher, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		Log:     log,
		Store:   store,
		Cache:   cache,
		Enrich:  enrich,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		retries: make(map[string]int),
	}
}

// Run drives the main loop (spec §4.3) until ctx is canceled.
func (w *Worker) Run(ctx domain.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := w.step(ctx); err != nil {
			return err
		}
	}
}

// step runs exactly one poll/decode/enrich/upsert/cache/commit cycle. It
// returns an error only when the log collaborator (poll or commit) or the
// storage upsert fails; enrichment and decode failures are handled
// internally per the poison-message and bounded-retry policies.
func (w *Worker) step(ctx domain.Context) error {
	msg, err := w.Log.Poll(ctx, w.cfg.PollTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Error("log poll failed", slog.Any("error", err))
		return err
	}
	if msg == nil {
		return nil
	}

	key := messageKey(msg)

	raw, decodeErr := decodeRawJob(msg.Raw)
	if decodeErr != nil {
		// Poison-message policy: discard rather than block the partition.
		w.logger.Warn("poison message: decode failed, committing and skipping",
			slog.Any("error", decodeErr), slog.Int64("offset", msg.Offset), slog.Int("partition", int(msg.Partition)))
		observability.RecordWorkerMessage("poison_skipped")
		delete(w.retries, key)
		return w.Log.Commit(ctx, msg)
	}

	job, enrichErr := w.Enrich(ctx, raw)
	if enrichErr != nil {
		return w.handleEnrichError(ctx, msg, raw, enrichErr)
	}
	delete(w.retries, key)

	if err := w.Store.UpsertEnrichedJob(ctx, job); err != nil {
		w.logger.Error("upsert enriched job failed", slog.String("job_id", job.ID), slog.Any("error", err))
		return err
	}

	if w.Cache != nil {
		if err := w.Cache.CacheJob(ctx, job.ID, job, w.cfg.CacheTTL); err != nil {
			// Best-effort: logged, never blocks commit (spec §4.3 step 5).
			w.logger.Warn("cache write failed", slog.String("job_id", job.ID), slog.Any("error", err))
		}
	}

	observability.RecordWorkerMessage("committed")
	return w.Log.Commit(ctx, msg)
}

// handleEnrichError implements spec §4.3 step 3: on ExhaustedError, do not
// commit, sleep, and retry the same message. On transport error, same
// policy, bounded by MaxCommitRetries, after which the message is committed
// with a logged failure.
func (w *Worker) handleEnrichError(ctx domain.Context, msg *domain.LogMessage, raw domain.RawJob, enrichErr error) error {
	key := messageKey(msg)

	if llm.IsExhausted(enrichErr) {
		w.logger.Warn("enrichment exhausted, will retry without commit",
			slog.String("job_id", raw.ID), slog.Any("error", enrichErr))
		return w.sleepBeforeRetry(ctx)
	}

	w.retries[key]++
	attempts := w.retries[key]
	if attempts < w.cfg.MaxCommitRetries {
		w.logger.Warn("enrichment transport error, will retry without commit",
			slog.String("job_id", raw.ID), slog.Int("attempt", attempts), slog.Any("error", enrichErr))
		return w.sleepBeforeRetry(ctx)
	}

	w.logger.Error("enrichment failed after max retries, committing with logged failure",
		slog.String("job_id", raw.ID), slog.Int("attempts", attempts), slog.Any("error", enrichErr))
	observability.RecordWorkerMessage("poison_failed")
	delete(w.retries, key)
	return w.Log.Commit(ctx, msg)
}

func (w *Worker) sleepBeforeRetry(ctx domain.Context) error {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func messageKey(msg *domain.LogMessage) string {
	return fmt.Sprintf("%d:%d", msg.Partition, msg.Offset)
}

// rawJobWire is the self-describing JSON envelope read off the log (spec §3
// RawJob, plus a produced_at field used only for lag metrics).
type rawJobWire struct {
	ID          string    `json:"id"`
	Company     string    `json:"company"`
	Position    string    `json:"position"`
	Location    string    `json:"location"`
	URL         string    `json:"url"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description"`
	ProducedAt  time.Time `json:"produced_at"`
}

func decodeRawJob(raw []byte) (domain.RawJob, error) {
	var w rawJobWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.RawJob{}, err
	}
	if w.ID == "" {
		return domain.RawJob{}, fmt.Errorf("raw job message missing id")
	}
	return domain.RawJob{
		ID:          w.ID,
		Company:     w.Company,
		Position:    w.Position,
		Location:    w.Location,
		URL:         w.URL,
		Tags:        w.Tags,
		Description: w.Description,
		ProducedAt:  w.ProducedAt,
	}, nil
}

