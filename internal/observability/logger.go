// Package observability provides logging, metrics, and tracing shared by
// every component, configured the way the CV evaluator's
// internal/adapter/observability package does it.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/jobmatch/core/internal/config"
)

type ctxKey int

const requestIDKey ctxKey = iota

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}

// WithRequestID returns a context carrying requestID for later retrieval by
// LoggerFromContext / RequestIDFromContext.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stashed by WithRequestID, or
// "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// LoggerFromContext returns base annotated with the request id found in ctx,
// if any.
func LoggerFromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		return base.With(slog.String("request_id", rid))
	}
	return base
}
