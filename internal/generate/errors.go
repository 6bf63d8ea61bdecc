package generate

import "errors"

var (
	// ErrMaxRounds means the model kept requesting tools past the configured
	// round limit. Pending tool calls from the final round are still answered
	// before the failure surfaces, so the thread history stays valid and
	// inspectable.
	ErrMaxRounds = errors.New("generate: maximum tool rounds exceeded")

	// ErrSchemaViolation means the endpoint produced a final value that does
	// not conform to the caller-supplied response schema. Distinct from
	// transport failures: the endpoint answered, but broke the structured
	// output contract.
	ErrSchemaViolation = errors.New("generate: response violates the supplied schema")

	// ErrInvalidSchema means the caller-supplied response schema itself is
	// not a well-formed JSON Schema.
	ErrInvalidSchema = errors.New("generate: invalid response schema")

	// ErrEmptyPrompt means Generate was called with an empty user message.
	ErrEmptyPrompt = errors.New("generate: prompt must not be empty")
)
