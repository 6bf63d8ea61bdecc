// Package config provides the configuration schema, loader, file watcher and
// transport registry for the parley server.
package config

import "github.com/MrWong99/parley/internal/mcp"

// LogLevel controls log verbosity for the parley server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for parley.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// ServerConfig holds network and logging settings for the parley server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// LLMConfig selects and configures the chat-completion endpoint.
type LLMConfig struct {
	// Provider selects the registered transport implementation
	// (e.g., "openai", "anthropic", "ollama"). Looked up in the [Registry].
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Any endpoint
	// speaking the OpenAI chat-completions dialect works here.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Resilience tunes retries and the circuit breaker around the endpoint.
	Resilience ResilienceConfig `yaml:"resilience"`

	// Fallbacks lists alternative endpoints tried in order when the primary
	// fails or its circuit breaker is open.
	Fallbacks []LLMFallbackConfig `yaml:"fallbacks"`
}

// LLMFallbackConfig describes one fallback endpoint in the chain.
type LLMFallbackConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// ResilienceConfig tunes the retry and circuit-breaker wrapper around the
// LLM transport. Zero values select the built-in defaults.
type ResilienceConfig struct {
	// MaxAttempts is the number of tries per model call, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffMs is the delay in milliseconds between retry attempts.
	BackoffMs int `yaml:"backoff_ms"`

	// BreakerThreshold is the number of consecutive failures that trips the
	// circuit breaker.
	BreakerThreshold int `yaml:"breaker_threshold"`

	// BreakerCooldownSeconds is how long an open breaker waits before
	// letting a probe call through.
	BreakerCooldownSeconds int `yaml:"breaker_cooldown_seconds"`
}

// GenerationConfig tunes the conversation orchestrator.
type GenerationConfig struct {
	// Instructions is the system prompt prepended to every new thread.
	Instructions string `yaml:"instructions"`

	// MaxToolRounds caps the number of model calls one user turn may take.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// CallTimeoutSeconds bounds each individual model call and tool invocation.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`

	// Temperature is the sampling temperature passed to the endpoint.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the completion length requested from the endpoint.
	// Zero leaves the endpoint's default in place.
	MaxTokens int `yaml:"max_tokens"`

	// HistoryLimit caps the number of stored messages per thread. Older
	// messages are dropped once a thread exceeds the limit. Zero disables
	// truncation.
	HistoryLimit int `yaml:"history_limit"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http"
	// (e.g., "https://mcp.example.com/mcp"). Ignored for stdio transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}
