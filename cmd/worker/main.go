// Command worker runs the stream worker (C3): it consumes raw job postings
// off the log, enriches each with the LLM dispatch core, and persists the
// result to storage and cache.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobmatch/core/internal/cache/redis"
	"github.com/jobmatch/core/internal/config"
	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/enrichment"
	"github.com/jobmatch/core/internal/llm"
	"github.com/jobmatch/core/internal/llm/provider/anthropic"
	"github.com/jobmatch/core/internal/llm/provider/composite"
	"github.com/jobmatch/core/internal/llm/provider/openai"
	"github.com/jobmatch/core/internal/observability"
	"github.com/jobmatch/core/internal/storage/postgres"
	"github.com/jobmatch/core/internal/worker"
	"github.com/jobmatch/core/internal/worker/kafka"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	store := postgres.New(pool)

	cache, err := redis.New(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connection failed", slog.Any("error", err))
		os.Exit(1)
	}

	log, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic)
	if err != nil {
		slog.Error("kafka connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer log.Close()

	credentials, err := composite.PairCredentials(cfg.AnthropicCredentials, cfg.OpenAICredentials)
	if err != nil {
		slog.Error("credential pool misconfigured", slog.Any("error", err))
		os.Exit(1)
	}
	provider := composite.New(anthropic.New(), openai.New())
	dispatcher := llm.New(provider, llm.Config{
		Credentials:           credentials,
		ModelGenerate:         cfg.ModelGenerate,
		ModelEmbed:            cfg.ModelEmbed,
		MinGapBetweenCalls:    cfg.MinGapBetweenCalls,
		PerSlotCooldown:       cfg.PerSlotCooldown,
		MaxRetriesOnRateLimit: cfg.MaxRetriesOnRateLimit,
		EmbeddingDim:          cfg.EmbeddingDim,
		MaxOutputTokens:       cfg.MaxOutputTokens,
		GenerationTemperature: cfg.GenerationTemperature,
	})
	initial, maxInterval, mult := cfg.GetAIBackoffConfig()
	dispatcher.SetBackoffTuning(initial, maxInterval, mult)

	enrich := func(ctx domain.Context, raw domain.RawJob) (domain.EnrichedJob, error) {
		return enrichment.Transform(ctx, dispatcher, raw)
	}

	w := worker.New(log, store, cache, enrich, worker.Config{
		PollTimeout:      cfg.PollTimeout,
		MaxCommitRetries: cfg.MaxCommitRetries,
		CacheTTL:         cfg.CacheTTL,
	}, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("worker stopped with error", slog.Any("error", err))
		}
	}

	slog.Info("worker stopped")
}
