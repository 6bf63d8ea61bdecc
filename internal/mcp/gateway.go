// Package mcp connects parley to Model Context Protocol (MCP) servers.
//
// The Gateway dials one or more configured servers at startup, discovers
// their tool catalogues, and registers every remote tool into the local tool
// registry behind a proxy handler. From the generation loop's point of view a
// remote MCP tool is indistinguishable from a locally implemented one.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/parley/internal/tools"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the human-readable identifier for this server.
	// Must be unique within a single [Gateway]. Used in log messages and errors.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path (and optional arguments) used when
	// Transport is "stdio". Example: "/usr/local/bin/mcp-server --config /etc/mcp.json"
	Command string

	// URL is the endpoint address used when Transport is "streamable-http".
	URL string

	// Env holds additional environment variables injected into the server
	// process when Transport is "stdio". May be nil.
	Env map[string]string
}

// session is the subset of *mcpsdk.ClientSession the gateway uses, extracted
// so tests can substitute a fake without a live server process.
type session interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// Gateway manages MCP server connections and mirrors their tools into a
// [tools.Registry]. All methods are safe for concurrent use.
type Gateway struct {
	mu       sync.Mutex
	registry *tools.Registry
	client   *mcpsdk.Client
	sessions map[string]session
}

// NewGateway creates a Gateway that registers discovered tools into registry.
func NewGateway(registry *tools.Registry) *Gateway {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "parley", Version: "1.0.0"},
		nil,
	)
	return &Gateway{
		registry: registry,
		client:   client,
		sessions: make(map[string]session),
	}
}

// Connect dials the MCP server described by cfg, lists its tools and
// registers each one as a proxy into the gateway's registry. Connecting a
// server name that is already connected closes the old session first; its
// refreshed catalogue then replaces the previous registrations.
func (g *Gateway) Connect(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	sess, err := g.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp: failed to connect to server %q: %w", cfg.Name, err)
	}

	var discovered []*mcpsdk.Tool
	for tool, err := range sess.Tools(ctx, nil) {
		if err != nil {
			_ = sess.Close()
			return fmt.Errorf("mcp: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, tool)
	}

	g.mu.Lock()
	if old, ok := g.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	g.sessions[cfg.Name] = sess
	g.mu.Unlock()

	for _, tool := range discovered {
		if err := g.registerProxy(cfg.Name, tool.Name, tool.Description, schemaToMap(tool.InputSchema)); err != nil {
			return err
		}
	}

	slog.Info("connected MCP server", "server", cfg.Name, "transport", cfg.Transport, "tools", len(discovered))
	return nil
}

// registerProxy installs a registry handler that forwards calls to the named
// server. The handler resolves the session at call time, so a reconnected
// server transparently serves tools registered before the reconnect.
func (g *Gateway) registerProxy(serverName, toolName, description string, params map[string]any) error {
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		g.mu.Lock()
		sess, ok := g.sessions[serverName]
		g.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("server %q is not connected", serverName)
		}

		result, err := sess.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      toolName,
			Arguments: args,
		})
		if err != nil {
			return nil, fmt.Errorf("call to server %q failed: %w", serverName, err)
		}

		text := textContent(result)
		if result.IsError {
			return nil, fmt.Errorf("remote tool failed: %s", text)
		}
		return text, nil
	}

	if err := g.registry.Register(toolName, description, params, handler); err != nil {
		return fmt.Errorf("mcp: register tool %q from server %q: %w", toolName, serverName, err)
	}
	return nil
}

// Close shuts down all server connections. Registered proxy tools remain in
// the registry but fail with a not-connected error when invoked.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var firstErr error
	for name, sess := range g.sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp: error closing server %q: %w", name, err)
		}
		delete(g.sessions, name)
	}
	return firstErr
}

// textContent concatenates all text blocks of a tool call result.
func textContent(result *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
