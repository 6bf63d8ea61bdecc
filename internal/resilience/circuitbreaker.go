// Package resilience protects the LLM transport from cascading failures.
//
// It provides a classic three-state circuit breaker (closed → open →
// half-open) and a GuardedTransport that composes the breaker with a
// bounded retry policy for timed-out completion calls. The breaker state is
// exposed so the readiness probe can report a tripped endpoint.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is open and the cool-down has
// not yet elapsed; the protected call is not attempted at all.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// BreakerState represents the current operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed is the normal operating state; calls pass through.
	BreakerClosed BreakerState = iota

	// BreakerOpen means the breaker tripped after consecutive failures.
	// Calls are rejected with [ErrCircuitOpen] until the cool-down elapses.
	BreakerOpen

	// BreakerHalfOpen is the probe state after the cool-down: one call is
	// let through; its outcome decides whether the breaker closes or re-opens.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name is a label used in log messages (e.g. the endpoint name).
	Name string

	// Threshold is the number of consecutive failures before the breaker
	// opens. Default: 5.
	Threshold int

	// CoolDown is how long the breaker stays open before allowing a probe
	// call. Default: 30s.
	CoolDown time.Duration
}

// Breaker implements the three-state circuit breaker pattern with a single
// probe call in the half-open state.
type Breaker struct {
	name      string
	threshold int
	coolDown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker]; zero-value config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		coolDown:  cfg.CoolDown,
	}
}

// Allow reports whether a call may proceed. When it returns true the caller
// must follow up with exactly one Record call for the outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) < b.coolDown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = false
		slog.Info("circuit breaker half-open", "name", b.name)
		fallthrough
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == BreakerHalfOpen {
			slog.Info("circuit breaker closed after successful probe", "name", b.name)
		}
		b.state = BreakerClosed
		b.failures = 0
		b.probing = false
		return
	}

	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.probing = false
		slog.Warn("circuit breaker re-opened after failed probe", "name", b.name)
	case BreakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = time.Now()
			slog.Warn("circuit breaker opened",
				"name", b.name,
				"consecutive_failures", b.failures)
		}
	}
}

// State returns the current [BreakerState]. An open breaker whose cool-down
// has elapsed reports half-open; the actual transition happens on the next
// Allow call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.coolDown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed, clearing all failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probing = false
}
