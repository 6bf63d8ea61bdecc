// Package tools provides the registry that maps tool names to executable
// handlers and their parameter schemas.
//
// Tools are usually registered once at startup (locally defined helpers, or
// wrappers around remote MCP tools), but registration is dynamic: a tool may
// be added or replaced at any time without racing in-flight invocations.
// Arguments are validated against the declared JSON Schema before the
// handler runs, so handlers can trust their input shape.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/parley/pkg/llm"
)

// Handler executes one tool call using decoded JSON arguments and returns a
// JSON-serialisable result. Handlers that need to do asynchronous work run it
// themselves and block until done; the registry imposes no other execution
// model. Handlers must respect ctx for cancellation.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// entry holds everything registered for a single tool.
type entry struct {
	def      llm.ToolDefinition
	handler  Handler
	resolved *jsonschema.Resolved
	seq      int
}

// Registry stores tool definitions and executes tool calls.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	nextSeq int
}

// NewRegistry returns an initialised empty [Registry].
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool under name. The params schema must be a well-formed
// JSON Schema object and handler must be non-nil, otherwise ErrValidation is
// returned.
//
// Registering a name that already exists atomically replaces the prior
// definition and logs a warning; the tool keeps its original position in
// DescribeAll so manifests stay reproducible.
func (r *Registry) Register(name, description string, params map[string]any, handler Handler) error {
	if name == "" {
		return fmt.Errorf("%w: tool name is empty", ErrValidation)
	}
	if handler == nil {
		return fmt.Errorf("%w: tool %q has a nil handler", ErrValidation, name)
	}

	resolved, err := compileSchema(params)
	if err != nil {
		return fmt.Errorf("%w: tool %q parameters schema: %v", ErrValidation, name, err)
	}

	def := llm.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  params,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.nextSeq
	if prev, ok := r.entries[name]; ok {
		slog.Warn("replacing registered tool", "tool", name)
		seq = prev.seq
	} else {
		r.nextSeq++
	}
	r.entries[name] = entry{def: def, handler: handler, resolved: resolved, seq: seq}
	return nil
}

// DescribeAll returns the metadata of every registered tool in registration
// order, ready to attach to a completion request as the tool manifest.
func (r *Registry) DescribeAll() []llm.ToolDefinition {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	defs := make([]llm.ToolDefinition, len(entries))
	for i, e := range entries {
		defs[i] = e.def
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Invoke executes the named tool with the JSON-encoded args and returns the
// serialised result content.
//
// Failure modes: ErrUnknownTool when name is not registered, ErrBadArguments
// when args are not valid JSON or do not satisfy the tool's schema, and
// ErrToolExecution wrapping whatever the handler returned (or panicked with).
// Validation always happens here, before the handler runs.
func (r *Registry) Invoke(ctx context.Context, name string, args string) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	decoded := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &decoded); err != nil {
			return "", fmt.Errorf("%w: tool %q: invalid JSON arguments: %v", ErrBadArguments, name, err)
		}
	}

	if err := e.resolved.Validate(decoded); err != nil {
		return "", fmt.Errorf("%w: tool %q: %v", ErrBadArguments, name, err)
	}

	result, err := safeCall(ctx, e.handler, decoded)
	if err != nil {
		return "", fmt.Errorf("%w: tool %q: %v", ErrToolExecution, name, err)
	}

	return stringifyResult(result), nil
}

// safeCall runs the handler, converting a panic into an error so a
// misbehaving tool cannot take down the generation loop.
func safeCall(ctx context.Context, h Handler, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return h(ctx, args)
}

// compileSchema parses and resolves a caller-supplied schema document.
// A nil schema is accepted and treated as an unconstrained object.
func compileSchema(params map[string]any) (*jsonschema.Resolved, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	schema := new(jsonschema.Schema)
	if err := json.Unmarshal(data, schema); err != nil {
		return nil, err
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// stringifyResult converts a handler result to the string content form the
// chat-completions API expects for tool-result messages.
func stringifyResult(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
