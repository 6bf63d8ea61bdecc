package health

import (
	"context"
	"fmt"

	"github.com/MrWong99/parley/internal/resilience"
)

// BreakerChecker reports the LLM endpoint as unhealthy while its circuit
// breaker is open. A half-open breaker counts as healthy so probes do not keep
// the service out of rotation during recovery.
func BreakerChecker(name string, b *resilience.Breaker) Checker {
	return Checker{
		Name: name,
		Check: func(_ context.Context) error {
			if b == nil {
				return nil
			}
			if state := b.State(); state == resilience.BreakerOpen {
				return fmt.Errorf("circuit breaker is open")
			}
			return nil
		},
	}
}
