package tools

import "errors"

var (
	// ErrValidation marks a rejected registration: empty name, nil handler,
	// or a parameters schema that is not a well-formed JSON Schema object.
	ErrValidation = errors.New("tools: invalid tool registration")

	// ErrUnknownTool marks an invocation of a name that is not registered.
	ErrUnknownTool = errors.New("tools: unknown tool")

	// ErrBadArguments marks arguments that are not valid JSON or do not
	// satisfy the tool's declared schema.
	ErrBadArguments = errors.New("tools: arguments rejected by schema")

	// ErrToolExecution wraps a failure raised by the handler itself.
	ErrToolExecution = errors.New("tools: tool execution failed")
)
