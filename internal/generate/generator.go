// Package generate implements the conversation orchestrator. It owns the
// request loop between the chat surface, the thread store, the tool registry
// and the LLM transport: append the user turn, call the model, dispatch any
// requested tools concurrently, feed the results back, and repeat until the
// model produces a final answer or the round limit is hit.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/internal/tools"
	"github.com/MrWong99/parley/pkg/llm"
)

// ToolInvoker is the registry surface the orchestrator needs: a tool manifest
// for the model and an invocation entry point. *tools.Registry implements it.
type ToolInvoker interface {
	DescribeAll() []llm.ToolDefinition
	Invoke(ctx context.Context, name, arguments string) (string, error)
}

var _ ToolInvoker = (*tools.Registry)(nil)

const (
	defaultMaxRounds   = 5
	defaultCallTimeout = 60 * time.Second
)

// Generator drives multi-round generation against a single llm.Transport.
// It is safe for concurrent use; per-thread ordering is delegated to the
// store's locking.
type Generator struct {
	transport llm.Transport
	registry  ToolInvoker
	store     store.Store
	metrics   *observe.Metrics

	instructions string
	maxRounds    int
	callTimeout  time.Duration
	temperature  float64
	maxTokens    int
	historyLimit int
}

// Option customizes a Generator.
type Option func(*Generator)

// WithInstructions sets the system prompt prepended to every new thread.
func WithInstructions(s string) Option {
	return func(g *Generator) { g.instructions = s }
}

// WithMaxRounds caps the number of model calls per Generate. Values below 1
// fall back to the default.
func WithMaxRounds(n int) Option {
	return func(g *Generator) {
		if n >= 1 {
			g.maxRounds = n
		}
	}
}

// WithCallTimeout bounds each individual model call and tool invocation.
func WithCallTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

// WithTemperature sets the sampling temperature passed to the transport.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens caps the completion length requested from the endpoint.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithHistoryLimit caps the number of stored messages per thread. After each
// exchange, messages beyond the cap are dropped oldest-first. Zero disables
// truncation.
func WithHistoryLimit(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.historyLimit = n
		}
	}
}

// WithMetrics overrides the metrics sink, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) {
		if m != nil {
			g.metrics = m
		}
	}
}

// New creates a Generator. Transport, registry and store are required.
func New(transport llm.Transport, registry ToolInvoker, st store.Store, opts ...Option) (*Generator, error) {
	if transport == nil {
		return nil, fmt.Errorf("generate: transport must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("generate: registry must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("generate: store must not be nil")
	}
	g := &Generator{
		transport:   transport,
		registry:    registry,
		store:       st,
		metrics:     observe.DefaultMetrics(),
		maxRounds:   defaultMaxRounds,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Request is a single generation call.
type Request struct {
	// ThreadID selects the conversation. Empty mints a fresh thread.
	ThreadID string
	// Prompt is the user's message for this turn. Required.
	Prompt string
	// ResponseSchema, when non-nil, constrains the final answer to a JSON
	// value conforming to this JSON Schema.
	ResponseSchema map[string]any
	// Tools restricts the manifest offered to the model to these registered
	// tool names, in registry order. Empty offers every registered tool.
	Tools []string
}

// Result is the outcome of a successful generation.
type Result struct {
	// ThreadID identifies the thread the exchange was recorded under. Equal
	// to the request's ThreadID unless that was empty.
	ThreadID string
	// Content is the final assistant text. For structured responses it holds
	// the raw JSON the endpoint produced.
	Content string
	// Structured is the decoded JSON value when a ResponseSchema was
	// supplied, nil otherwise.
	Structured any
	// Rounds is the number of model calls the exchange took.
	Rounds int
	// Usage aggregates token usage across all rounds.
	Usage llm.Usage
}

// Generate runs one user turn to completion. The full exchange, including any
// intermediate tool-call and tool-result messages, is appended to the thread
// before Generate returns, on failure as well as success.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	var resolved *jsonschema.Resolved
	if req.ResponseSchema != nil {
		r, err := compileSchema(req.ResponseSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		resolved = r
	}

	ctx, span := observe.StartSpan(ctx, "generate")
	defer span.End()
	log := observe.Logger(ctx).With("thread_id", threadID)

	g.metrics.ActiveGenerations.Add(ctx, 1)
	start := time.Now()
	res, err := g.run(ctx, log, threadID, req, resolved)
	g.metrics.ActiveGenerations.Add(ctx, -1)

	if g.historyLimit > 0 {
		if terr := g.store.Truncate(ctx, threadID, g.historyLimit); terr != nil {
			log.Error("history truncation failed", "error", terr)
		}
	}

	status := "ok"
	if err != nil {
		status = errorKind(err)
		g.metrics.GenerationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", status)))
		log.Error("generation failed", "error", err, "kind", status)
	}
	g.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
	if res != nil {
		g.metrics.GenerationRounds.Record(ctx, int64(res.Rounds))
	}
	return res, err
}

func (g *Generator) run(ctx context.Context, log *slog.Logger, threadID string, req Request, resolved *jsonschema.Resolved) (*Result, error) {
	if err := g.ensureInstructions(ctx, threadID); err != nil {
		return nil, err
	}
	if err := g.store.Append(ctx, threadID, llm.Message{Role: llm.RoleUser, Content: req.Prompt}); err != nil {
		return nil, fmt.Errorf("generate: record user message: %w", err)
	}

	manifest := g.registry.DescribeAll()
	if len(req.Tools) > 0 {
		manifest = filterManifest(manifest, req.Tools)
	}
	out := &Result{ThreadID: threadID}

	for round := 1; round <= g.maxRounds; round++ {
		out.Rounds = round

		history, err := g.store.History(ctx, threadID)
		if err != nil {
			return out, fmt.Errorf("generate: read thread history: %w", err)
		}

		res, err := g.complete(ctx, llm.Request{
			Messages:       history,
			Tools:          manifest,
			ResponseSchema: req.ResponseSchema,
			Temperature:    g.temperature,
			MaxTokens:      g.maxTokens,
		})
		if err != nil {
			return out, err
		}
		out.Usage.PromptTokens += res.Usage.PromptTokens
		out.Usage.CompletionTokens += res.Usage.CompletionTokens
		out.Usage.TotalTokens += res.Usage.TotalTokens

		if err := g.store.Append(ctx, threadID, res.Raw); err != nil {
			return out, fmt.Errorf("generate: record assistant message: %w", err)
		}

		if res.Kind != llm.KindToolCalls {
			return g.finish(out, res, resolved, req.ResponseSchema != nil)
		}

		log.Debug("model requested tools", "round", round, "count", len(res.ToolCalls))
		if err := g.dispatchTools(ctx, threadID, res.ToolCalls); err != nil {
			return out, err
		}
	}

	// Every requested tool has been answered, but the model never settled on
	// a final answer within the round budget.
	return out, fmt.Errorf("%w after %d rounds", ErrMaxRounds, g.maxRounds)
}

// complete performs a single bounded transport call.
func (g *Generator) complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	start := time.Now()
	res, err := g.transport.Complete(callCtx, req)
	status := "ok"
	switch {
	case errors.Is(err, llm.ErrTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	g.metrics.RecordCompletion(ctx, "chat", status, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return res, nil
}

// finish maps a non-tool-call transport result onto the caller's contract,
// enforcing the response schema when one was supplied.
func (g *Generator) finish(out *Result, res *llm.Result, resolved *jsonschema.Resolved, wantStructured bool) (*Result, error) {
	out.Content = res.Content
	if !wantStructured {
		return out, nil
	}

	structured := res.Structured
	if res.Kind != llm.KindStructured {
		// The endpoint ignored the schema constraint and answered as plain
		// text. Decode it ourselves so validation still applies.
		var v any
		if err := json.Unmarshal([]byte(res.Content), &v); err != nil {
			return out, fmt.Errorf("%w: response is not valid JSON: %v", ErrSchemaViolation, err)
		}
		structured = v
	}
	if err := resolved.Validate(structured); err != nil {
		return out, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	out.Structured = structured
	return out, nil
}

// dispatchTools executes the round's tool calls concurrently and appends one
// tool-result message per call, in the order the model requested them. Tool
// failures never abort the round; they come back to the model as error
// payloads so it can recover or explain.
func (g *Generator) dispatchTools(ctx context.Context, threadID string, calls []llm.ToolCall) error {
	payloads := make([]string, len(calls))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		eg.Go(func() error {
			payloads[i] = g.invokeOne(egCtx, call)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("generate: tool dispatch: %w", err)
	}

	// Every payload is settled at this point, even under cancellation
	// (cancelled handlers produce error payloads). Record them all before
	// surfacing ctx.Err so the thread never carries an assistant tool-call
	// message without its tool-result counterparts.
	for i, call := range calls {
		msg := llm.Message{
			Role:       llm.RoleTool,
			Content:    payloads[i],
			Name:       call.Name,
			ToolCallID: call.ID,
		}
		if err := g.store.Append(ctx, threadID, msg); err != nil {
			return fmt.Errorf("generate: record tool result: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("generate: tool dispatch: %w", err)
	}
	return nil
}

// invokeOne runs a single tool call under the per-call timeout and reduces
// every failure mode to a payload string for the model.
func (g *Generator) invokeOne(ctx context.Context, call llm.ToolCall) string {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	start := time.Now()
	payload, err := g.registry.Invoke(callCtx, call.Name, call.Arguments)
	g.metrics.RecordToolCall(ctx, call.Name, toolStatus(err), time.Since(start).Seconds())
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return payload
}

// ensureInstructions prepends the system prompt to threads that do not carry
// one yet. Existing threads that already open with a system message are left
// alone, so restarted conversations keep their original instructions.
func (g *Generator) ensureInstructions(ctx context.Context, threadID string) error {
	if g.instructions == "" {
		return nil
	}
	history, err := g.store.History(ctx, threadID)
	if err != nil {
		return fmt.Errorf("generate: read thread history: %w", err)
	}
	if len(history) > 0 && history[0].Role == llm.RoleSystem {
		return nil
	}
	msg := llm.Message{Role: llm.RoleSystem, Content: g.instructions}
	if err := g.store.Prepend(ctx, threadID, msg); err != nil {
		return fmt.Errorf("generate: record system message: %w", err)
	}
	return nil
}

// Close releases the underlying transport.
func (g *Generator) Close() error {
	return g.transport.Close()
}

// filterManifest keeps only the named tools, preserving registry order.
// Names that match no registered tool are ignored.
func filterManifest(defs []llm.ToolDefinition, names []string) []llm.ToolDefinition {
	enabled := make(map[string]bool, len(names))
	for _, n := range names {
		enabled[n] = true
	}
	out := make([]llm.ToolDefinition, 0, len(names))
	for _, d := range defs {
		if enabled[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

func compileSchema(schema map[string]any) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}

func toolStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tools.ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, tools.ErrBadArguments):
		return "bad_arguments"
	case errors.Is(err, tools.ErrToolExecution):
		return "execution_error"
	default:
		return "error"
	}
}

func errorKind(err error) string {
	var terr *llm.TransportError
	switch {
	case errors.Is(err, ErrMaxRounds):
		return "max_rounds"
	case errors.Is(err, ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, ErrInvalidSchema):
		return "invalid_schema"
	case errors.Is(err, llm.ErrTimeout):
		return "timeout"
	case errors.As(err, &terr):
		return "transport"
	default:
		return "error"
	}
}
