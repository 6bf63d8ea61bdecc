// Package anyllm provides an llm.Transport backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// The any-llm wire surface has no structured-output directive, so when a
// response schema is requested the transport injects it as a trailing system
// instruction; conformance is enforced client-side by the generation loop.
//
// Usage:
//
//	tr, err := anyllm.New("ollama", "llama3.1", anyllmlib.WithBaseURL("http://localhost:11434"))
//	tr, err := anyllm.New("groq", "llama-3.1-70b-versatile", anyllmlib.WithAPIKey("gsk_..."))
package anyllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/parley/pkg/llm"
)

// endpointName identifies this transport in TransportError values.
const endpointName = "anyllm"

// Transport implements llm.Transport by wrapping github.com/mozilla-ai/any-llm-go.
type Transport struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a Transport backed by the given provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// opts are any-llm-go configuration options (anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL, …). Without an API key option the provider falls
// back to its usual environment variable (OPENAI_API_KEY, GROQ_API_KEY, …).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Transport, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Transport{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Complete implements llm.Transport.
func (t *Transport) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	params := t.buildParams(req)

	resp, err := t.backend.Completion(ctx, params)
	if err != nil {
		return nil, wrapRequestError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.TransportError{Endpoint: endpointName, Err: errors.New("empty choices in response")}
	}

	choice := resp.Choices[0]
	content := choice.Message.ContentString()

	var usage llm.Usage
	if resp.Usage != nil {
		usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	raw := llm.Message{Role: llm.RoleAssistant, Content: content}
	var calls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	raw.ToolCalls = calls

	if choice.FinishReason == anyllmlib.FinishReasonToolCalls && len(calls) == 0 {
		return nil, &llm.TransportError{Endpoint: endpointName, Err: errors.New("response claims tool_calls but supplies none")}
	}

	if len(calls) > 0 {
		return &llm.Result{Kind: llm.KindToolCalls, ToolCalls: calls, Raw: raw, Usage: usage}, nil
	}

	if req.ResponseSchema != nil {
		var value any
		if err := json.Unmarshal([]byte(content), &value); err != nil {
			return nil, &llm.TransportError{Endpoint: endpointName, Err: fmt.Errorf("structured response is not valid JSON: %w", err)}
		}
		return &llm.Result{Kind: llm.KindStructured, Structured: value, Content: content, Raw: raw, Usage: usage}, nil
	}

	return &llm.Result{Kind: llm.KindFinal, Content: content, Raw: raw, Usage: usage}, nil
}

// Close implements llm.Transport. The any-llm backends hold no per-instance
// connection state beyond Go's shared HTTP transport, so Close is a no-op.
func (t *Transport) Close() error { return nil }

// buildParams converts an llm.Request into anyllm CompletionParams.
func (t *Transport) buildParams(req llm.Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	for _, m := range req.Messages {
		messages = append(messages, convertMessage(m))
	}

	if req.ResponseSchema != nil {
		// No response_format on this wire surface: steer via instruction.
		schemaJSON, err := json.Marshal(req.ResponseSchema)
		if err == nil {
			messages = append(messages, anyllmlib.Message{
				Role: anyllmlib.RoleSystem,
				Content: "Respond with a single JSON value conforming to this JSON Schema, with no surrounding text:\n" +
					string(schemaJSON),
			})
		}
	}

	params := anyllmlib.CompletionParams{
		Model:    t.model,
		Messages: messages,
	}

	if req.Temperature != 0 {
		temp := req.Temperature
		params.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, anyllmlib.Tool{
			Type: "function",
			Function: anyllmlib.Function{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}

	return params
}

// convertMessage converts an llm.Message to an anyllm.Message.
func convertMessage(m llm.Message) anyllmlib.Message {
	msg := anyllmlib.Message{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}

	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, anyllmlib.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: anyllmlib.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}

	return msg
}

// wrapRequestError maps backend errors to the llm error taxonomy.
func wrapRequestError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", llm.ErrTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", llm.ErrTimeout, err)
	}
	return &llm.TransportError{Endpoint: endpointName, Err: err}
}
