package observability

import (
	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	// Offline BPE loader avoids downloading encoding tables at runtime,
	// matching the CV evaluator's real/client.go init().
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	dispatchCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_dispatch_calls_total",
		Help: "Dispatcher calls by operation and outcome.",
	}, []string{"op", "outcome"})

	dispatchExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_dispatch_exhausted_total",
		Help: "Dispatcher calls that failed with ExhaustedError, by operation.",
	}, []string{"op"})

	embeddingDimMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matcher_embedding_dim_mismatch_total",
		Help: "Stored embeddings excluded from ranking due to dimensionality mismatch.",
	})

	aiTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_tokens_total",
		Help: "Estimated prompt/completion tokens processed, by kind.",
	}, []string{"kind"})

	workerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_total",
		Help: "Stream worker messages processed, by outcome.",
	}, []string{"outcome"})
)

// RecordDispatchSuccess records a successful dispatcher call.
func RecordDispatchSuccess(op string) { dispatchCallsTotal.WithLabelValues(op, "success").Inc() }

// RecordDispatchRateLimited records a single rate-limited attempt (not
// necessarily a terminal failure — the dispatcher may still retry).
func RecordDispatchRateLimited(op string) {
	dispatchCallsTotal.WithLabelValues(op, "rate_limited").Inc()
}

// RecordDispatchTransportError records a terminal transport failure.
func RecordDispatchTransportError(op string) {
	dispatchCallsTotal.WithLabelValues(op, "transport_error").Inc()
}

// RecordDispatchExhausted records a terminal exhaustion failure.
func RecordDispatchExhausted(op string) {
	dispatchCallsTotal.WithLabelValues(op, "exhausted").Inc()
	dispatchExhaustedTotal.WithLabelValues(op).Inc()
}

// RecordEmbeddingDimMismatch increments the counter spec §4.5/§8 invariant 5
// requires: a mismatched stored vector must be "reported in a counter."
func RecordEmbeddingDimMismatch() { embeddingDimMismatchTotal.Inc() }

// RecordWorkerMessage records a processed stream-worker message outcome:
// "committed", "poison_skipped", or "poison_failed".
func RecordWorkerMessage(outcome string) { workerMessagesTotal.WithLabelValues(outcome).Inc() }

// EstimateTokens estimates the token count of text using cl100k_base
// encoding, for metrics only — never part of dispatch control flow. Ported
// from the CV evaluator's real/client.go estimateTokenCount.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Error("failed to get tiktoken encoding", slog.Any("error", err))
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

// RecordTokenUsage records prompt/completion token estimates under kind
// "prompt" or "completion".
func RecordTokenUsage(kind string, count int) {
	if count <= 0 {
		return
	}
	aiTokensTotal.WithLabelValues(kind).Add(float64(count))
}
