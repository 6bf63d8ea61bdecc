package anyllm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/pkg/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "llama3.1")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	_, err := New("ollama", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "fakecloud") {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestNew_SupportedProviders(t *testing.T) {
	tests := []struct {
		provider string
		opts     []anyllmlib.Option
	}{
		{"openai", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"anthropic", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"groq", []anyllmlib.Option{anyllmlib.WithAPIKey("gsk-test")}},
		{"ollama", nil},
		{"llamacpp", nil},
		{"llamafile", nil},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			tr, err := New(tt.provider, "test-model", tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr == nil {
				t.Fatal("expected non-nil transport")
			}
			if tr.model != "test-model" {
				t.Errorf("model = %q, want test-model", tr.model)
			}
		})
	}
}

func TestNew_CaseInsensitiveProviderName(t *testing.T) {
	tr, err := New("Ollama", "llama3.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr == nil {
		t.Fatal("expected non-nil transport")
	}
}

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_Text(t *testing.T) {
	for _, role := range []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		m := llm.Message{Role: role, Content: "some text"}
		got := convertMessage(m)
		if got.Role != string(role) {
			t.Errorf("role = %q, want %q", got.Role, role)
		}
		if got.ContentString() != "some text" {
			t.Errorf("content = %q", got.ContentString())
		}
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	m := llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Berlin"}`},
		},
	}
	got := convertMessage(m)
	if len(got.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "call_1" || tc.Type != "function" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Name != "get_weather" || tc.Function.Arguments != `{"city":"Berlin"}` {
		t.Errorf("function = %+v", tc.Function)
	}
}

func TestConvertMessage_ToolResult(t *testing.T) {
	m := llm.Message{Role: llm.RoleTool, Content: "sunny", ToolCallID: "call_1", Name: "get_weather"}
	got := convertMessage(m)
	if got.Role != "tool" || got.ToolCallID != "call_1" || got.Name != "get_weather" {
		t.Errorf("converted = %+v", got)
	}
	if got.ContentString() != "sunny" {
		t.Errorf("content = %q", got.ContentString())
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func newBuildParamsTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := New("ollama", "llama3.1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestBuildParams_Basics(t *testing.T) {
	tr := newBuildParamsTransport(t)

	params := tr.buildParams(llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   256,
	})

	if params.Model != "llama3.1" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(params.Messages))
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesLeftUnset(t *testing.T) {
	tr := newBuildParamsTransport(t)

	params := tr.buildParams(llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})

	if params.Temperature != nil {
		t.Errorf("temperature should be unset, got %v", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("max tokens should be unset, got %v", *params.MaxTokens)
	}
}

func TestBuildParams_Tools(t *testing.T) {
	tr := newBuildParamsTransport(t)

	params := tr.buildParams(llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Tools: []llm.ToolDefinition{{
			Name:        "search",
			Description: "Web search",
			Parameters:  map[string]any{"type": "object"},
		}},
	})

	if len(params.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(params.Tools))
	}
	tool := params.Tools[0]
	if tool.Type != "function" || tool.Function.Name != "search" {
		t.Errorf("tool = %+v", tool)
	}
}

func TestBuildParams_SchemaBecomesInstruction(t *testing.T) {
	tr := newBuildParamsTransport(t)

	params := tr.buildParams(llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "answer?"}},
		ResponseSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{"type": "string"},
			},
		},
	})

	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want user + schema instruction", len(params.Messages))
	}
	last := params.Messages[len(params.Messages)-1]
	if last.Role != anyllmlib.RoleSystem {
		t.Errorf("instruction role = %q, want system", last.Role)
	}
	if !strings.Contains(last.ContentString(), `"answer"`) {
		t.Errorf("instruction does not embed the schema: %q", last.ContentString())
	}
}

// ── wrapRequestError ──────────────────────────────────────────────────────────

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

var _ net.Error = timeoutNetError{}

func TestWrapRequestError(t *testing.T) {
	tests := []struct {
		name        string
		in          error
		wantTimeout bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), true},
		{"net timeout", timeoutNetError{}, true},
		{"other error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapRequestError(tt.in)
			if tt.wantTimeout {
				if !errors.Is(got, llm.ErrTimeout) {
					t.Errorf("err = %v, want ErrTimeout", got)
				}
				return
			}
			var terr *llm.TransportError
			if !errors.As(got, &terr) {
				t.Fatalf("err = %v, want TransportError", got)
			}
			if terr.Endpoint != "anyllm" {
				t.Errorf("endpoint = %q", terr.Endpoint)
			}
		})
	}
}
