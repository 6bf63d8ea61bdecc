// Package llm defines the Transport interface for OpenAI-compatible chat
// completion endpoints, together with the message and tool types shared by
// the conversation store, the tool registry, and the generation loop.
//
// A Transport wraps one remote endpoint (OpenAI itself, or any server that
// speaks the chat-completions wire format: vLLM, llama.cpp, Ollama, …) and
// exposes a single typed Complete call. Implementors must be safe for
// concurrent use and must propagate context cancellation promptly.
package llm

import "context"

// ResultKind discriminates the three possible outcomes of a completion call.
type ResultKind int

const (
	// KindFinal means the model returned a plain text assistant reply.
	KindFinal ResultKind = iota

	// KindToolCalls means the model requested one or more tool invocations
	// that must be executed and answered before it can finish.
	KindToolCalls

	// KindStructured means the model returned a value conforming to the
	// response schema supplied in the request. Only reachable when
	// Request.ResponseSchema was set and the endpoint honours it.
	KindStructured
)

// String returns the human-readable name of the result kind.
func (k ResultKind) String() string {
	switch k {
	case KindFinal:
		return "final"
	case KindToolCalls:
		return "tool_calls"
	case KindStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Request carries everything the endpoint needs to produce a response.
// Messages must be non-empty; all other fields are optional.
type Request struct {
	// Messages is the ordered conversation history, already including the
	// system prompt when one is configured.
	Messages []Message

	// Tools is the manifest of tools offered to the model. The model may
	// answer with tool calls naming any entry.
	Tools []ToolDefinition

	// ResponseSchema, when non-nil, asks the endpoint for a final answer
	// conforming to this JSON Schema instead of free text.
	ResponseSchema map[string]any

	// Temperature controls output randomness. Zero means endpoint default.
	Temperature float64

	// MaxTokens caps completion length. Zero means endpoint default.
	MaxTokens int
}

// Result is the typed outcome of a completion call. Exactly one of Content,
// ToolCalls, or Structured is meaningful, selected by Kind.
type Result struct {
	// Kind selects which payload field is populated.
	Kind ResultKind

	// Content is the assistant's text reply. Set when Kind is KindFinal.
	Content string

	// ToolCalls lists the requested invocations. Set when Kind is
	// KindToolCalls and guaranteed non-empty.
	ToolCalls []ToolCall

	// Structured is the decoded schema-conforming value. Set when Kind is
	// KindStructured.
	Structured any

	// Raw is the assistant message exactly as it must be appended to the
	// thread history before resubmission.
	Raw Message

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Transport is the abstraction over one chat-completion endpoint.
//
// Implementations must be safe for concurrent use. Complete must return a
// *TransportError for endpoint-level failures (non-2xx status, malformed
// payload, a tool_calls response with zero entries) and an error matching
// ErrTimeout when the context deadline expires mid-call.
type Transport interface {
	// Complete sends req to the endpoint and waits for the full response.
	Complete(ctx context.Context, req Request) (*Result, error)

	// Close releases the transport's underlying connection resources.
	// After Close returns the Transport must not be used again.
	Close() error
}
