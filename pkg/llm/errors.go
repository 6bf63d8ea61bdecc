package llm

import (
	"errors"
	"fmt"
)

// ErrTimeout marks a completion call that was abandoned because its deadline
// expired. Callers distinguish it from other transport failures because the
// generation loop's retry policy treats timeouts as retryable.
var ErrTimeout = errors.New("llm: request timed out")

// TransportError describes an endpoint-level failure: unreachable endpoint,
// non-2xx status, malformed response payload, or a response that claims tool
// calls but supplies none.
type TransportError struct {
	// Endpoint names the transport implementation ("openai", "anyllm", …).
	Endpoint string

	// Status is the HTTP status code when one was received, zero otherwise.
	Status int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm: %s endpoint returned status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("llm: %s endpoint: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }
