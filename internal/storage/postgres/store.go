// Package postgres adapts github.com/jackc/pgx/v5 and
// github.com/pgvector/pgvector-go to domain.JobStore: the durable storage
// collaborator for enriched jobs, upserted by the stream worker (C3) and
// queried by the vector matcher (C5). Grounded on the CV evaluator's
// internal/adapter/repo/postgres (PgxPool minimal interface, span-per-query
// style) and on scrypster-memento's internal/storage/postgres VectorSearch
// (pgvector.NewVector + the <=> cosine-distance operator over an ivfflat
// index). Unlike that reference, the ANN query here is only ever an
// optional pre-filter: final ranking and dimensionality-mismatch counting
// stay in package matcher, never in SQL, so a missing or stale index can
// never silently change which jobs are considered.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jobmatch/core/internal/domain"
)

// PgxPool is the minimal subset of pgxpool.Pool the store needs, kept as an
// interface so tests can substitute a fake instead of a live database.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPool opens a connection pool against dsn with tracing and pool-size
// defaults suited to this workload.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record pgx stats", slog.Any("error", err))
	}
	return pool, nil
}

// Store persists EnrichedJob rows keyed by id.
type Store struct{ Pool PgxPool }

// New constructs a Store over the given pool.
func New(p PgxPool) *Store { return &Store{Pool: p} }

// UpsertEnrichedJob writes j, creating it if absent or replacing it if
// present. created_at is preserved across replacement (see DESIGN.md open
// question: a re-enriched job keeps the timestamp of its first arrival).
func (s *Store) UpsertEnrichedJob(ctx domain.Context, j domain.EnrichedJob) error {
	tracer := otel.Tracer("storage.postgres")
	ctx, span := tracer.Start(ctx, "jobs.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "jobs"),
	)

	tags, err := json.Marshal(j.Tags)
	if err != nil {
		return fmt.Errorf("op=jobs.upsert: marshal tags: %w", err)
	}
	skills, err := json.Marshal(j.Skills)
	if err != nil {
		return fmt.Errorf("op=jobs.upsert: marshal skills: %w", err)
	}
	vec := pgvector.NewVector(j.Embedding)
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const q = `
INSERT INTO jobs (id, company, position, location, url, tags, description, skills, seniority, summary, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
	company = EXCLUDED.company,
	position = EXCLUDED.position,
	location = EXCLUDED.location,
	url = EXCLUDED.url,
	tags = EXCLUDED.tags,
	description = EXCLUDED.description,
	skills = EXCLUDED.skills,
	seniority = EXCLUDED.seniority,
	summary = EXCLUDED.summary,
	embedding = EXCLUDED.embedding`
	_, err = s.Pool.Exec(ctx, q,
		j.ID, j.Company, j.Position, j.Location, j.URL, tags, j.Description, skills,
		string(j.Seniority), j.Summary, vec, createdAt)
	if err != nil {
		return fmt.Errorf("op=jobs.upsert: %w", err)
	}
	return nil
}

// Get returns a single job by id.
func (s *Store) Get(ctx domain.Context, id string) (domain.EnrichedJob, error) {
	tracer := otel.Tracer("storage.postgres")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()

	const q = `SELECT ` + selectColumns + ` FROM jobs WHERE id = $1`
	row := s.Pool.QueryRow(ctx, q, id)
	j, err := scanJobRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.EnrichedJob{}, domain.ErrNotFound
		}
		return domain.EnrichedJob{}, fmt.Errorf("op=jobs.get: %w", err)
	}
	return j, nil
}

// Query returns candidate tuples matching filter, capped at limit. When
// filter carries no constraints it is a plain recency-ordered scan; when the
// caller also has a query embedding available it should prefer
// QueryByEmbedding's ANN pre-filter instead, then still re-rank in package
// matcher.
func (s *Store) Query(ctx domain.Context, filter domain.JobFilter, limit int) ([]domain.StoredTuple, error) {
	tracer := otel.Tracer("storage.postgres")
	ctx, span := tracer.Start(ctx, "jobs.Query")
	defer span.End()

	where, args := filterWhereClause(filter)
	q := fmt.Sprintf(`SELECT %s FROM jobs %s ORDER BY created_at DESC`, selectColumns, where)
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=jobs.query: %w", err)
	}
	defer rows.Close()
	return scanTuples(rows)
}

// QueryByEmbedding returns the rows matching filter ordered by pgvector
// cosine distance to query, accelerated by the idx_jobs_embedding_cosine
// ivfflat index. preFilterLimit should be comfortably
// larger than the caller's final top-N, since exact ranking and
// dimensionality-mismatch accounting happen afterward in package matcher,
// not here.
func (s *Store) QueryByEmbedding(ctx domain.Context, query []float32, filter domain.JobFilter, preFilterLimit int) ([]domain.StoredTuple, error) {
	tracer := otel.Tracer("storage.postgres")
	ctx, span := tracer.Start(ctx, "jobs.QueryByEmbedding")
	defer span.End()

	if len(query) == 0 {
		return s.Query(ctx, filter, preFilterLimit)
	}
	where, args := filterWhereClause(filter)
	args = append(args, pgvector.NewVector(query))
	vecParam := len(args)
	q := fmt.Sprintf(`SELECT %s FROM jobs %s ORDER BY embedding <=> $%d`, selectColumns, where, vecParam)
	if preFilterLimit > 0 {
		args = append(args, preFilterLimit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		// Falls back to the unaccelerated scan rather than failing the
		// request outright: a missing index degrades latency, not
		// correctness, since matcher re-ranks exactly regardless.
		return s.Query(ctx, filter, preFilterLimit)
	}
	defer rows.Close()
	return scanTuples(rows)
}

const selectColumns = `id, company, position, location, url, tags, description, skills, seniority, summary, embedding, created_at`

// row is the minimal pgx.Row/pgx.Rows surface scanJobRow needs.
type row interface {
	Scan(dest ...any) error
}

func scanJobRow(r row) (domain.EnrichedJob, error) {
	var (
		j           domain.EnrichedJob
		tagsRaw     []byte
		skillsRaw   []byte
		seniority   string
		vec         pgvector.Vector
	)
	if err := r.Scan(
		&j.ID, &j.Company, &j.Position, &j.Location, &j.URL,
		&tagsRaw, &j.Description, &skillsRaw, &seniority, &j.Summary, &vec, &j.CreatedAt,
	); err != nil {
		return domain.EnrichedJob{}, err
	}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &j.Tags); err != nil {
			return domain.EnrichedJob{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(skillsRaw) > 0 {
		if err := json.Unmarshal(skillsRaw, &j.Skills); err != nil {
			return domain.EnrichedJob{}, fmt.Errorf("unmarshal skills: %w", err)
		}
	}
	j.Seniority = domain.Seniority(seniority)
	j.Embedding = vec.Slice()
	return j, nil
}

func scanTuples(rows pgx.Rows) ([]domain.StoredTuple, error) {
	var out []domain.StoredTuple
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, domain.StoredTuple{ID: j.ID, Job: j, Embedding: j.Embedding})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// filterWhereClause builds a parameterized WHERE clause from f. Returns ""
// (no clause) and a nil arg slice when f carries no constraints.
func filterWhereClause(f domain.JobFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Seniority != "" {
		args = append(args, string(f.Seniority))
		clauses = append(clauses, fmt.Sprintf("seniority = $%d", len(args)))
	}
	for _, tag := range f.RequireTags {
		args = append(args, mustMarshalSingleton(tag))
		clauses = append(clauses, fmt.Sprintf("tags @> $%d::jsonb", len(args)))
	}
	for _, skill := range f.RequireSkill {
		args = append(args, mustMarshalSingleton(skill))
		clauses = append(clauses, fmt.Sprintf("skills @> $%d::jsonb", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func mustMarshalSingleton(s string) []byte {
	b, _ := json.Marshal([]string{s})
	return b
}

var _ domain.JobStore = (*Store)(nil)
