package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/dansestudio/internal/obs"
)

// ErrOpenCircuit is returned when the breaker refuses a request.
var ErrOpenCircuit = errors.New("payment: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single trial request through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a failure-ratio circuit breaker.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	trialAt      time.Time
	name         string
	now          func() time.Time
	logger       zerolog.Logger
}

// NewBreaker constructs a breaker that opens once at least minRequests have
// been observed and the failure ratio reaches failureRatio.
func NewBreaker(name string, minRequests int, failureRatio float64, openFor time.Duration, logger zerolog.Logger) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	if failureRatio > 1 {
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	if strings.TrimSpace(name) == "" {
		name = "default"
	}
	b := &Breaker{
		state:        Closed,
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		name:         name,
		now:          time.Now,
		logger:       logger,
	}
	b.recordStateLocked()
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. After the cool-off period an
// open breaker admits one trial request; everyone else is refused until that
// trial reports, or until another cool-off passes without a report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.openFor {
			return false
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.trialAt = now
		return true
	case HalfOpen:
		if !b.trialAt.IsZero() && now.Sub(b.trialAt) < b.openFor {
			return false
		}
		b.trialAt = now
		return true
	default:
		return true
	}
}

// Report records the outcome of a request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureRatio {
		b.changeStateLocked(ctx, Open)
	} else if total > b.minRequests*2 {
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.trialAt = time.Time{}
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0
	b.recordStateLocked()
	if obs.GatewayBreakerTransitions != nil {
		obs.GatewayBreakerTransitions.WithLabelValues(b.name, prev.String(), next.String()).Inc()
	}
	evt := b.logger.Info().Str("gateway", b.name).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) recordStateLocked() {
	if obs.GatewayBreakerState == nil {
		return
	}
	obs.GatewayBreakerState.WithLabelValues(b.name).Set(float64(b.state))
}

// Backoff returns an exponential delay for attempt with jitterPct applied
// symmetrically (0.2 == ±20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*jitter)
}

// BreakerGateway guards a Gateway with a Breaker. Rejections by the gateway
// count as successful calls; only transport failures trip the breaker.
type BreakerGateway struct {
	Gateway Gateway
	Breaker *Breaker
}

// Name implements Gateway.
func (g BreakerGateway) Name() string { return g.Gateway.Name() }

// CreateIntent implements Gateway.
func (g BreakerGateway) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if g.Breaker == nil {
		return g.Gateway.CreateIntent(ctx, req)
	}
	if !g.Breaker.Allow(ctx) {
		return IntentResponse{}, fmt.Errorf("%s: %w: %w", g.Gateway.Name(), ErrGatewayUnavailable, ErrOpenCircuit)
	}
	resp, err := g.Gateway.CreateIntent(ctx, req)
	g.Breaker.Report(ctx, err == nil || errors.Is(err, ErrRejected))
	return resp, err
}
