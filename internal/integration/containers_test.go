//go:build integration

// Package integration holds tests that stand up real Postgres, Redis, and
// Redpanda containers via testcontainers-go. Disabled by default (the
// "integration" build tag); run with `go test -tags integration ./...`
// against a machine with a working Docker daemon.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	storageredis "github.com/jobmatch/core/internal/cache/redis"
	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/storage/postgres"
	"github.com/jobmatch/core/internal/worker/kafka"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "jobmatch"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithStartupTimeout(90 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/jobmatch?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

// startRedpanda binds the broker to a fixed host port via HostConfigModifier,
// grounded on the teacher's container_pool.go port-binding approach, since
// franz-go's advertised-address negotiation needs a stable host-visible port.
func startRedpanda(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	const hostPort = 19092
	req := tc.ContainerRequest{
		Image:        "redpandadata/redpanda:v24.3.7",
		ExposedPorts: []string{"9092/tcp"},
		Cmd: []string{
			"redpanda", "start", "--overprovisioned", "--smp", "1",
			"--memory", "256M", "--reserve-memory", "0M", "--node-id", "0", "--check=false",
			"--kafka-addr", "PLAINTEXT://0.0.0.0:9092",
			"--advertise-kafka-addr", fmt.Sprintf("PLAINTEXT://127.0.0.1:%d", hostPort),
			"--default-log-level=error", "--mode", "dev-container",
		},
		HostConfigModifier: func(hc *containerTypes.HostConfig) {
			if hc.PortBindings == nil {
				hc.PortBindings = nat.PortMap{}
			}
			hc.PortBindings[nat.Port("9092/tcp")] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", hostPort)}}
		},
		WaitingFor: wait.ForListeningPort("9092/tcp").WithStartupTimeout(30 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	return fmt.Sprintf("localhost:%d", hostPort)
}

func TestPostgresStore_UpsertAndGetRoundTrip(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `CREATE TABLE jobs (
		id TEXT PRIMARY KEY, company TEXT, position TEXT, location TEXT, url TEXT,
		tags JSONB, description TEXT, skills JSONB, seniority TEXT, summary TEXT,
		embedding VECTOR(3), created_at TIMESTAMPTZ NOT NULL)`)
	require.NoError(t, err)

	store := postgres.New(pool)
	job := domain.EnrichedJob{
		RawJob:    domain.RawJob{ID: "job-1", Company: "Acme", Position: "Engineer"},
		Skills:    []string{"Go"},
		Seniority: domain.SenioritySenior,
		Summary:   "builds things",
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, store.UpsertEnrichedJob(ctx, job))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Company)
	require.Equal(t, domain.SenioritySenior, got.Seniority)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	url := startRedis(t)
	cache, err := storageredis.New(url)
	require.NoError(t, err)

	job := domain.EnrichedJob{RawJob: domain.RawJob{ID: "job-2"}, Summary: "cached job"}
	require.NoError(t, cache.CacheJob(context.Background(), job.ID, job, time.Minute))

	got, ok, err := cache.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cached job", got.Summary)
}

func TestKafkaLog_PollTimesOutWithoutMessages(t *testing.T) {
	brokers := startRedpanda(t)
	log, err := kafka.New([]string{brokers}, "jobmatch-it", "raw-jobs")
	require.NoError(t, err)
	defer log.Close()

	ctx := context.Background()
	msg, err := log.Poll(ctx, 2*time.Second)
	require.NoError(t, err)
	require.Nil(t, msg)
}
