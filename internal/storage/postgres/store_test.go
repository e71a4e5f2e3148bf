package postgres

import (
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmatch/core/internal/domain"
)

// fakeRow stands in for pgx.Row/pgx.Rows in scanJobRow tests without pulling
// in a full pgx mock driver.
type fakeRow struct {
	id, company, position, location, url, description, seniority, summary string
	tags, skills                                                          []byte
	embedding                                                             []float32
	createdAt                                                             time.Time
}

func (r *fakeRow) Scan(dest ...any) error {
	*dest[0].(*string) = r.id
	*dest[1].(*string) = r.company
	*dest[2].(*string) = r.position
	*dest[3].(*string) = r.location
	*dest[4].(*string) = r.url
	*dest[5].(*[]byte) = r.tags
	*dest[6].(*string) = r.description
	*dest[7].(*[]byte) = r.skills
	*dest[8].(*string) = r.seniority
	*dest[9].(*string) = r.summary
	*dest[10].(*pgvector.Vector) = pgvector.NewVector(r.embedding)
	*dest[11].(*time.Time) = r.createdAt
	return nil
}

func TestScanJobRow(t *testing.T) {
	now := time.Now().UTC()
	r := &fakeRow{
		id: "job-1", company: "Acme", position: "Engineer", seniority: "Senior",
		summary: "builds things", tags: []byte(`["remote","go"]`), skills: []byte(`["Go","SQL"]`),
		embedding: []float32{0.1, 0.2, 0.3}, createdAt: now,
	}

	j, err := scanJobRow(r)
	require.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, domain.SenioritySenior, j.Seniority)
	assert.Equal(t, []string{"remote", "go"}, j.Tags)
	assert.Equal(t, []string{"Go", "SQL"}, j.Skills)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, j.Embedding)
	assert.Equal(t, now, j.CreatedAt)
}

func TestScanJobRow_EmptyJSONColumns(t *testing.T) {
	r := &fakeRow{id: "job-2"}
	j, err := scanJobRow(r)
	require.NoError(t, err)
	assert.Nil(t, j.Tags)
	assert.Nil(t, j.Skills)
}

func TestJobFilter_WhereClause(t *testing.T) {
	t.Run("empty filter has no clause", func(t *testing.T) {
		where, args := filterWhereClause(domain.JobFilter{})
		assert.Empty(t, where)
		assert.Nil(t, args)
	})

	t.Run("seniority only", func(t *testing.T) {
		where, args := filterWhereClause(domain.JobFilter{Seniority: domain.SeniorityLead})
		assert.Equal(t, "WHERE seniority = $1", where)
		assert.Equal(t, []any{"Lead"}, args)
	})

	t.Run("combines seniority tags and skills", func(t *testing.T) {
		where, args := filterWhereClause(domain.JobFilter{
			Seniority:    domain.SeniorityMid,
			RequireTags:  []string{"remote"},
			RequireSkill: []string{"Go", "Kubernetes"},
		})
		assert.Equal(t, "WHERE seniority = $1 AND tags @> $2::jsonb AND skills @> $3::jsonb AND skills @> $4::jsonb", where)
		require.Len(t, args, 4)
		assert.Equal(t, "Mid", args[0])
	})
}
