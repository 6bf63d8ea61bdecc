package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/parley/internal/mcp"
)

// ValidProviderNames lists the LLM provider names parley ships transports for.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
		}
	}

	// LLM
	if cfg.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}
	if name := cfg.LLM.Provider; name != "" && !slices.Contains(ValidProviderNames, name) {
		slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
			"name", name,
			"known", ValidProviderNames,
		)
	}
	if r := cfg.LLM.Resilience; r.MaxAttempts < 0 || r.BackoffMs < 0 || r.BreakerThreshold < 0 || r.BreakerCooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("llm.resilience values must not be negative"))
	}
	for i, fb := range cfg.LLM.Fallbacks {
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("llm.fallbacks[%d].model is required", i))
		}
		if fb.Provider != "" && !slices.Contains(ValidProviderNames, fb.Provider) {
			slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
				"name", fb.Provider,
				"known", ValidProviderNames,
			)
		}
	}

	// Generation
	if cfg.Generation.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("generation.max_tool_rounds %d must not be negative", cfg.Generation.MaxToolRounds))
	}
	if cfg.Generation.CallTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("generation.call_timeout_seconds %d must not be negative", cfg.Generation.CallTimeoutSeconds))
	}
	if t := cfg.Generation.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature %.2f is out of range [0, 2]", t))
	}
	if cfg.Generation.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("generation.history_limit %d must not be negative", cfg.Generation.HistoryLimit))
	}

	// MCP servers
	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
