// Package openai provides an llm.Transport backed by the OpenAI API or any
// OpenAI-compatible chat-completions endpoint (vLLM, llama.cpp server,
// LM Studio, …) selected via WithBaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/parley/pkg/llm"
)

// endpointName identifies this transport in TransportError values.
const endpointName = "openai"

// Transport implements llm.Transport using the official OpenAI Go SDK.
type Transport struct {
	client     oai.Client
	model      string
	httpClient *http.Client
}

// config holds optional configuration for the transport.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Transport.
type Option func(*config)

// WithBaseURL points the transport at an OpenAI-compatible endpoint instead
// of the default OpenAI API.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Transport for the given model.
//
// apiKey may be any non-empty string for local endpoints that ignore
// authentication, but must not be empty.
func New(apiKey string, model string, opts ...Option) (*Transport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}

	return &Transport{
		client:     oai.NewClient(reqOpts...),
		model:      model,
		httpClient: httpClient,
	}, nil
}

// Complete implements llm.Transport.
func (t *Transport) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	params, err := t.buildParams(req)
	if err != nil {
		return nil, &llm.TransportError{Endpoint: endpointName, Err: fmt.Errorf("build params: %w", err)}
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapRequestError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.TransportError{Endpoint: endpointName, Err: errors.New("empty choices in response")}
	}

	choice := resp.Choices[0]
	usage := llm.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	raw := llm.Message{Role: llm.RoleAssistant, Content: choice.Message.Content}
	var calls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	raw.ToolCalls = calls

	if choice.FinishReason == "tool_calls" && len(calls) == 0 {
		return nil, &llm.TransportError{Endpoint: endpointName, Err: errors.New("response claims tool_calls but supplies none")}
	}

	if len(calls) > 0 {
		return &llm.Result{Kind: llm.KindToolCalls, ToolCalls: calls, Raw: raw, Usage: usage}, nil
	}

	if req.ResponseSchema != nil {
		var value any
		if err := json.Unmarshal([]byte(choice.Message.Content), &value); err != nil {
			return nil, &llm.TransportError{Endpoint: endpointName, Err: fmt.Errorf("structured response is not valid JSON: %w", err)}
		}
		return &llm.Result{Kind: llm.KindStructured, Structured: value, Content: choice.Message.Content, Raw: raw, Usage: usage}, nil
	}

	return &llm.Result{Kind: llm.KindFinal, Content: choice.Message.Content, Raw: raw, Usage: usage}, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (t *Transport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// buildParams converts an llm.Request into OpenAI SDK params.
func (t *Transport) buildParams(req llm.Request) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(t.model),
		Messages: messages,
	}

	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	for _, td := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        td.Name,
				Description: param.NewOpt(td.Description),
				Parameters:  shared.FunctionParameters(td.Parameters),
			},
		})
	}

	if req.ResponseSchema != nil {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: req.ResponseSchema,
					Strict: param.NewOpt(true),
				},
			},
		}
	}

	return params, nil
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil

	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil

	case llm.RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil

	case llm.RoleTool:
		return oai.ToolMessage(m.Content, m.ToolCallID), nil

	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
	}
}

// wrapRequestError maps SDK errors to the llm error taxonomy.
func wrapRequestError(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", llm.ErrTimeout, err)
	}
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return &llm.TransportError{Endpoint: endpointName, Status: apierr.StatusCode, Err: err}
	}
	return &llm.TransportError{Endpoint: endpointName, Err: err}
}

// isTimeout reports whether err stems from an expired deadline, either the
// request context's or the HTTP client's.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
