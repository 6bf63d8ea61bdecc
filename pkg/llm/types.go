package llm

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single turn in a conversation history.
// Messages are treated as immutable once appended to a store.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role Role `json:"role"`

	// Content is the text content of the message. Empty for assistant
	// messages that carry only tool calls.
	Content string `json:"content,omitempty"`

	// Name is an optional tool name, set on tool-result messages.
	Name string `json:"name,omitempty"`

	// ToolCalls contains any tool invocations requested by the assistant.
	// Only present on assistant messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set when Role is "tool", identifying which tool call
	// this message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
// Tool calls are produced by the endpoint, never by this client.
type ToolCall struct {
	// ID is the unique identifier for this call within a generation round
	// (endpoint-assigned).
	ID string `json:"id"`

	// Name is the tool name the model wants to invoke.
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument payload.
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool offered to the model in the manifest
// attached to every completion request.
type ToolDefinition struct {
	// Name is the tool's unique identifier within a registry.
	Name string `json:"name"`

	// Description explains what the tool does. Included verbatim in the
	// model-facing manifest.
	Description string `json:"description"`

	// Parameters is the JSON Schema describing accepted arguments.
	Parameters map[string]any `json:"parameters"`
}

// Usage holds token accounting returned by the endpoint.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}
