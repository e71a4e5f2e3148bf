package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/jobmatch/core/internal/domain"
	"github.com/jobmatch/core/internal/observability"
)

// SlotState is the lifecycle state of one CredentialSlot.
type SlotState int

const (
	SlotHealthy SlotState = iota
	SlotCooling
)

// CredentialSlot is one entry in the dispatcher's pool (spec §3). It is
// mutated only by Dispatcher under its own mutex — never concurrently.
type CredentialSlot struct {
	Credential    string
	State         SlotState
	CooldownUntil time.Time
	Calls         uint64
	LastCallAt    time.Time
}

// Config configures a Dispatcher (spec §4.1 "Configuration").
type Config struct {
	Credentials           []string
	ModelGenerate         string
	ModelEmbed            string
	MinGapBetweenCalls    time.Duration
	PerSlotCooldown       time.Duration
	MaxRetriesOnRateLimit int
	EmbeddingDim          int
	MaxOutputTokens       int
	GenerationTemperature float64
}

func (c Config) withDefaults() Config {
	if c.MinGapBetweenCalls <= 0 {
		c.MinGapBetweenCalls = 2 * time.Second
	}
	if c.PerSlotCooldown <= 0 {
		c.PerSlotCooldown = 60 * time.Second
	}
	if c.MaxRetriesOnRateLimit <= 0 {
		c.MaxRetriesOnRateLimit = len(c.Credentials)
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = 768
	}
	return c
}

// Dispatcher is the multi-credential pool (C1). All calls through it take a
// single mutex for the duration of throttle -> select-slot -> invoke ->
// classify, which is the intentional single critical section spec §5
// describes: the throttle and rotation cursor are one unit, never split
// across goroutines.
type Dispatcher struct {
	cfg      Config
	provider domain.LLMProvider

	mu      sync.Mutex
	slots   []*CredentialSlot
	cursor  int
	limiter *rate.Limiter

	// breaker is a pool-wide fast-fail backstop (spec §9 rationale:
	// cooling is per-slot, not global — this does not replace that, it only
	// prevents a dispatch call from re-scanning an all-cooling pool on every
	// single request once that pattern has repeated). Grounded on
	// scrypster-memento's gobreaker-backed CircuitBreaker.
	breaker *gobreaker.CircuitBreaker

	backoffInitial time.Duration
	backoffMax     time.Duration
	backoffMult    float64
}

// New constructs a Dispatcher over the given provider and credential pool.
func New(provider domain.LLMProvider, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	slots := make([]*CredentialSlot, len(cfg.Credentials))
	for i, cred := range cfg.Credentials {
		slots[i] = &CredentialSlot{Credential: cred, State: SlotHealthy}
	}

	settings := gobreaker.Settings{
		Name:        "llm-dispatch-pool",
		MaxRequests: 1,
		Timeout:     cfg.PerSlotCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip after 2*len(slots) consecutive failed dispatch calls; a
			// call that recovers by rotating past a cooling slot counts as a
			// success, so a single slot's cooldown never trips the breaker.
			return counts.ConsecutiveFailures >= uint32(2*len(slots))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("llm dispatch pool breaker state change",
				slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}

	return &Dispatcher{
		cfg:            cfg,
		provider:       provider,
		slots:          slots,
		limiter:        rate.NewLimiter(rate.Every(cfg.MinGapBetweenCalls), 1),
		breaker:        gobreaker.NewCircuitBreaker(settings),
		backoffInitial: 250 * time.Millisecond,
		backoffMax:     5 * time.Second,
		backoffMult:    1.5,
	}
}

// SetBackoffTuning overrides the cenkalti/backoff/v4 interval tuning used
// between rate-limited retries (distinct from the per-slot cooldown wait).
func (d *Dispatcher) SetBackoffTuning(initial, max time.Duration, mult float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backoffInitial = initial
	d.backoffMax = max
	d.backoffMult = mult
}

// GenerateText returns raw text for prompt (spec §4.1 operation 2).
func (d *Dispatcher) GenerateText(ctx context.Context, prompt string) (string, error) {
	out, err := d.dispatch(ctx, "GenerateText", prompt, func(ctx context.Context, credential string) (string, error) {
		return d.provider.Generate(ctx, credential, d.cfg.ModelGenerate, prompt, domain.GenerateOptions{
			MaxOutputTokens: d.cfg.MaxOutputTokens,
			Temperature:     d.cfg.GenerationTemperature,
		})
	})
	if err == nil {
		observability.RecordTokenUsage("completion", observability.EstimateTokens(out))
	}
	return out, err
}

// GenerateStructured asks the LLM for a single JSON object matching s and
// returns the validated, decoded fields (spec §4.1 operation 1).
func (d *Dispatcher) GenerateStructured(ctx context.Context, prompt string, s Shape) (map[string]any, error) {
	raw, err := d.dispatch(ctx, "GenerateStructured", prompt, func(ctx context.Context, credential string) (string, error) {
		return d.provider.Generate(ctx, credential, d.cfg.ModelGenerate, prompt, domain.GenerateOptions{
			MaxOutputTokens: d.cfg.MaxOutputTokens,
			Temperature:     d.cfg.GenerationTemperature,
		})
	})
	if err != nil {
		return nil, err
	}
	observability.RecordTokenUsage("completion", observability.EstimateTokens(raw))
	return parseStructured("GenerateStructured", raw, s)
}

// Embed returns a vector of exactly Config.EmbeddingDim elements (spec §4.1
// operation 3 / "Embedding contract"). A provider that returns a different
// dimensionality fails with ParseError — never padded, truncated, or
// substituted.
func (d *Dispatcher) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := d.dispatchVec(ctx, "Embed", text, func(ctx context.Context, credential string) ([]float32, error) {
		return d.provider.Embed(ctx, credential, d.cfg.ModelEmbed, text)
	})
	if err != nil {
		return nil, err
	}
	if len(raw) != d.cfg.EmbeddingDim {
		return nil, &ParseError{Op: "Embed", Reason: fmt.Sprintf("expected dim %d, got %d", d.cfg.EmbeddingDim, len(raw))}
	}
	return raw, nil
}

// invokeFunc calls the provider with a chosen credential.
type invokeFunc func(ctx context.Context, credential string) (string, error)
type invokeVecFunc func(ctx context.Context, credential string) ([]float32, error)

// dispatch implements the five-step protocol of spec §4.1 for text-returning
// calls. dispatchVec is its embedding-returning twin; both share
// dispatchCore via a generic-free duplication (pre-generics-era style,
// matching the teacher's non-generic call sites). promptText backs the
// ai_tokens_total "prompt" counter, ported from the CV evaluator's
// recordTokenUsage call sites around its own provider invocations.
func (d *Dispatcher) dispatch(ctx context.Context, op, promptText string, invoke invokeFunc) (string, error) {
	observability.RecordTokenUsage("prompt", observability.EstimateTokens(promptText))
	var out string
	_, err := d.breaker.Execute(func() (any, error) {
		v, err := d.dispatchCore(ctx, op, func(ctx context.Context, cred string) (any, error) {
			return invoke(ctx, cred)
		})
		if err != nil {
			return nil, err
		}
		out = v.(string)
		return v, nil
	})
	if err != nil {
		return "", translateBreakerErr(op, err)
	}
	return out, nil
}

func (d *Dispatcher) dispatchVec(ctx context.Context, op, promptText string, invoke invokeVecFunc) ([]float32, error) {
	observability.RecordTokenUsage("prompt", observability.EstimateTokens(promptText))
	var out []float32
	_, err := d.breaker.Execute(func() (any, error) {
		v, err := d.dispatchCore(ctx, op, func(ctx context.Context, cred string) (any, error) {
			return invoke(ctx, cred)
		})
		if err != nil {
			return nil, err
		}
		out = v.([]float32)
		return v, nil
	})
	if err != nil {
		return nil, translateBreakerErr(op, err)
	}
	return out, nil
}

func translateBreakerErr(op string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &ExhaustedError{Op: op, Attempts: 0, LastSlotErr: err}
	}
	return err
}

// dispatchCore runs the actual select-slot/throttle/invoke/classify loop
// under the dispatcher mutex, retrying on rate-limit signals up to
// MaxRetriesOnRateLimit.
func (d *Dispatcher) dispatchCore(ctx context.Context, op string, invoke func(ctx context.Context, cred string) (any, error)) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	retries := 0
	for {
		// Step 1: throttle. rate.Limiter.Wait blocks until the floor has
		// elapsed or ctx is done, which covers "if a caller-provided
		// deadline exists and is exceeded during this wait, fail with
		// ExhaustedError".
		if err := d.limiter.Wait(ctx); err != nil {
			observability.RecordDispatchExhausted(op)
			return nil, &ExhaustedError{Op: op, Attempts: retries, LastSlotErr: err}
		}

		// Step 2: select slot.
		slot, err := d.selectSlot(ctx)
		if err != nil {
			observability.RecordDispatchExhausted(op)
			return nil, &ExhaustedError{Op: op, Attempts: retries, LastSlotErr: err}
		}

		// Step 3: invoke.
		slot.Calls++
		slot.LastCallAt = time.Now()
		res, callErr := invoke(ctx, slot.Credential)

		// Step 4: classify outcome.
		if callErr == nil {
			observability.RecordDispatchSuccess(op)
			d.advanceCursor()
			return res, nil
		}

		kind := classifyErr(callErr)
		if kind == domain.ProviderErrorRateLimit {
			observability.RecordDispatchRateLimited(op)
			d.coolSlot(slot)
			d.advanceCursor()
			retries++
			if retries < d.cfg.MaxRetriesOnRateLimit {
				if err := d.waitBackoff(ctx, retries); err != nil {
					observability.RecordDispatchExhausted(op)
					return nil, &ExhaustedError{Op: op, Attempts: retries, LastSlotErr: callErr}
				}
				continue
			}
			observability.RecordDispatchExhausted(op)
			return nil, &ExhaustedError{Op: op, Attempts: retries, LastSlotErr: callErr}
		}

		observability.RecordDispatchTransportError(op)
		return nil, &TransportError{Op: op, Err: callErr}
	}
}

// selectSlot scans the pool starting from the cursor for the first slot
// that is Healthy, or Cooling with an elapsed cooldown (reset to Healthy in
// that case). If none qualifies it waits until the nearest CooldownUntil
// elapses and retries the scan — it never busy-loops.
func (d *Dispatcher) selectSlot(ctx context.Context) (*CredentialSlot, error) {
	if len(d.slots) == 0 {
		return nil, fmt.Errorf("no credentials configured")
	}
	for {
		now := time.Now()
		n := len(d.slots)
		var nearest time.Time
		for i := 0; i < n; i++ {
			idx := (d.cursor + i) % n
			s := d.slots[idx]
			if s.State == SlotHealthy {
				return s, nil
			}
			if !s.CooldownUntil.After(now) {
				s.State = SlotHealthy
				return s, nil
			}
			if nearest.IsZero() || s.CooldownUntil.Before(nearest) {
				nearest = s.CooldownUntil
			}
		}
		wait := time.Until(nearest)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) coolSlot(s *CredentialSlot) {
	s.State = SlotCooling
	s.CooldownUntil = time.Now().Add(d.cfg.PerSlotCooldown)
}

func (d *Dispatcher) advanceCursor() {
	if len(d.slots) == 0 {
		return
	}
	d.cursor = (d.cursor + 1) % len(d.slots)
}

func (d *Dispatcher) waitBackoff(ctx context.Context, attempt int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.backoffInitial
	b.MaxInterval = d.backoffMax
	b.Multiplier = d.backoffMult
	b.MaxElapsedTime = 0 // bounded externally by MaxRetriesOnRateLimit
	var wait time.Duration
	for i := 0; i < attempt; i++ {
		wait = b.NextBackOff()
	}
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyErr determines whether err is a rate-limit signal. Providers that
// implement domain.ClassifiableError are trusted directly; any other error
// is classified as ProviderErrorOther (no message or sentinel matching is
// attempted).
func classifyErr(err error) domain.ProviderErrorKind {
	if ce, ok := err.(domain.ClassifiableError); ok {
		return ce.ProviderErrorKind()
	}
	return domain.ProviderErrorOther
}

// Slots returns a defensive copy of the current slot states, for tests and
// diagnostics only; never exposes credential material beyond slot index.
func (d *Dispatcher) Slots() []CredentialSlot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]CredentialSlot, len(d.slots))
	for i, s := range d.slots {
		out[i] = *s
		out[i].Credential = fmt.Sprintf("slot-%d", i)
	}
	return out
}
