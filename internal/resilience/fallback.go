package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/parley/pkg/llm"
)

// ErrAllFailed is returned when every transport in a [FallbackTransport]
// fails or has an open circuit breaker.
var ErrAllFailed = errors.New("resilience: all transports failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// transport in a [FallbackTransport].
type FallbackConfig struct {
	// Threshold and CoolDown are applied to every entry's breaker.
	Threshold int
	CoolDown  time.Duration
}

// fallbackEntry pairs a transport with its dedicated circuit breaker.
type fallbackEntry struct {
	name      string
	transport llm.Transport
	breaker   *Breaker
}

// FallbackTransport chains a primary endpoint with zero or more fallback
// endpoints. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order. Each entry carries
// its own breaker, so a flapping primary stops being dialled while a healthy
// fallback keeps serving.
//
// The entry list is fixed after construction; Complete may be called
// concurrently.
type FallbackTransport struct {
	entries []fallbackEntry
	cfg     FallbackConfig
}

var _ llm.Transport = (*FallbackTransport)(nil)

// NewFallback creates a [FallbackTransport] with primary as the first entry.
// Additional fallbacks are registered via [FallbackTransport.AddFallback].
func NewFallback(primaryName string, primary llm.Transport, cfg FallbackConfig) *FallbackTransport {
	f := &FallbackTransport{cfg: cfg}
	f.add(primaryName, primary)
	return f
}

// AddFallback appends a fallback transport. Fallbacks are tried in the order
// they are added, after the primary. Not safe to call once Complete is in use.
func (f *FallbackTransport) AddFallback(name string, t llm.Transport) {
	f.add(name, t)
}

func (f *FallbackTransport) add(name string, t llm.Transport) {
	f.entries = append(f.entries, fallbackEntry{
		name:      name,
		transport: t,
		breaker: NewBreaker(BreakerConfig{
			Name:      name,
			Threshold: f.cfg.Threshold,
			CoolDown:  f.cfg.CoolDown,
		}),
	})
}

// Complete implements llm.Transport. It walks the chain until one entry
// succeeds. Entries with an open breaker are skipped without being dialled.
func (f *FallbackTransport) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	var lastErr error

	for _, e := range f.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.breaker.Allow() {
			slog.Debug("skipping transport with open breaker", "transport", e.name)
			continue
		}

		res, err := e.transport.Complete(ctx, req)
		e.breaker.Record(err)
		if err == nil {
			return res, nil
		}
		lastErr = err
		slog.Warn("transport failed, trying next", "transport", e.name, "err", err)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %v", ErrAllFailed, lastErr)
	}
	return nil, fmt.Errorf("%w: all circuit breakers open", ErrAllFailed)
}

// Breakers returns the breaker of every entry in chain order, for readiness
// checks.
func (f *FallbackTransport) Breakers() []*Breaker {
	bs := make([]*Breaker, len(f.entries))
	for i, e := range f.entries {
		bs[i] = e.breaker
	}
	return bs
}

// Close implements llm.Transport. It closes every entry and joins the errors.
func (f *FallbackTransport) Close() error {
	var errs []error
	for _, e := range f.entries {
		if err := e.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}
