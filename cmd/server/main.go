// Command server starts the résumé-analysis HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobmatch/core/internal/config"
	"github.com/jobmatch/core/internal/httpserver"
	"github.com/jobmatch/core/internal/llm"
	"github.com/jobmatch/core/internal/llm/provider/anthropic"
	"github.com/jobmatch/core/internal/llm/provider/composite"
	"github.com/jobmatch/core/internal/llm/provider/openai"
	"github.com/jobmatch/core/internal/matcher"
	"github.com/jobmatch/core/internal/observability"
	"github.com/jobmatch/core/internal/resume"
	"github.com/jobmatch/core/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	store := postgres.New(pool)

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

	jobMatcher := matcher.New(store, cfg.EmbeddingDim)
	analyzer := resume.New(dispatcher, jobMatcher)

	srv := httpserver.New(cfg, analyzer, httpserver.NewPlainTextExtractor())
	handler := srv.Router()

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: ":9090", Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
