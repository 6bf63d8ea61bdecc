package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/parley/pkg/llm"
)

// GuardedTransportConfig tunes a [GuardedTransport].
type GuardedTransportConfig struct {
	// MaxAttempts is the total number of tries per Complete call, including
	// the first. Only timeouts are retried. Default: 2.
	MaxAttempts int

	// Backoff is the pause between attempts. Default: 500ms.
	Backoff time.Duration

	// Breaker guards the endpoint. When nil a default breaker is created.
	Breaker *Breaker
}

// GuardedTransport wraps an [llm.Transport] with a circuit breaker and a
// bounded retry policy for timed-out calls.
//
// Timeouts (llm.ErrTimeout) are retried up to MaxAttempts because they are
// usually transient on local inference endpoints; every other transport
// failure is surfaced immediately. All outcomes feed the breaker.
type GuardedTransport struct {
	next        llm.Transport
	breaker     *Breaker
	maxAttempts int
	backoff     time.Duration
}

var _ llm.Transport = (*GuardedTransport)(nil)

// Guard wraps next with the given config.
func Guard(next llm.Transport, cfg GuardedTransportConfig) *GuardedTransport {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewBreaker(BreakerConfig{Name: "llm"})
	}
	return &GuardedTransport{
		next:        next,
		breaker:     cfg.Breaker,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Breaker returns the breaker guarding this transport, for readiness checks.
func (g *GuardedTransport) Breaker() *Breaker { return g.breaker }

// Complete implements llm.Transport.
func (g *GuardedTransport) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("%w", ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		res, err := g.next.Complete(ctx, req)
		if err == nil {
			g.breaker.Record(nil)
			return res, nil
		}
		lastErr = err

		if !errors.Is(err, llm.ErrTimeout) || attempt == g.maxAttempts {
			break
		}
		slog.Warn("completion timed out, retrying",
			"attempt", attempt,
			"max_attempts", g.maxAttempts)

		select {
		case <-ctx.Done():
			g.breaker.Record(lastErr)
			return nil, fmt.Errorf("%w: %v", llm.ErrTimeout, ctx.Err())
		case <-time.After(g.backoff):
		}
	}

	g.breaker.Record(lastErr)
	return nil, lastErr
}

// Close implements llm.Transport.
func (g *GuardedTransport) Close() error {
	return g.next.Close()
}
