// Command parley is the main entry point for the parley chat backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/api"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/generate"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/mcp"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/internal/tools"
	"github.com/MrWong99/parley/pkg/llm"
	"github.com/MrWong99/parley/pkg/llm/anyllm"
	"github.com/MrWong99/parley/pkg/llm/openai"
)

// logLevel is shared between the initial logger and the config watcher so log
// verbosity can be changed without a restart.
var logLevel slog.LevelVar

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── LLM transport ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinTransports(reg)

	transport, err := reg.CreateTransport(cfg.LLM)
	if err != nil {
		slog.Error("failed to create LLM transport", "provider", cfg.LLM.Provider, "err", err)
		return 1
	}
	slog.Info("transport created", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	endpoint := transport
	if len(cfg.LLM.Fallbacks) > 0 {
		chain := resilience.NewFallback(cfg.LLM.Provider, transport, resilience.FallbackConfig{
			Threshold: cfg.LLM.Resilience.BreakerThreshold,
			CoolDown:  time.Duration(cfg.LLM.Resilience.BreakerCooldownSeconds) * time.Second,
		})
		for _, fb := range cfg.LLM.Fallbacks {
			ft, err := reg.CreateTransport(config.LLMConfig{
				Provider: fb.Provider,
				APIKey:   fb.APIKey,
				BaseURL:  fb.BaseURL,
				Model:    fb.Model,
			})
			if err != nil {
				slog.Error("failed to create fallback transport", "provider", fb.Provider, "err", err)
				return 1
			}
			chain.AddFallback(fb.Provider, ft)
			slog.Info("fallback transport created", "provider", fb.Provider, "model", fb.Model)
		}
		endpoint = chain
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:      cfg.LLM.Provider,
		Threshold: cfg.LLM.Resilience.BreakerThreshold,
		CoolDown:  time.Duration(cfg.LLM.Resilience.BreakerCooldownSeconds) * time.Second,
	})
	guarded := resilience.Guard(endpoint, resilience.GuardedTransportConfig{
		MaxAttempts: cfg.LLM.Resilience.MaxAttempts,
		Backoff:     time.Duration(cfg.LLM.Resilience.BackoffMs) * time.Millisecond,
		Breaker:     breaker,
	})

	// ── Tool registry + MCP servers ───────────────────────────────────────────
	registry := tools.NewRegistry()
	gateway := mcp.NewGateway(registry)
	defer func() {
		if err := gateway.Close(); err != nil {
			slog.Warn("mcp gateway close error", "err", err)
		}
	}()

	for _, srv := range cfg.MCP.Servers {
		err := gateway.Connect(ctx, mcp.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		})
		if err != nil {
			slog.Error("failed to connect MCP server", "server", srv.Name, "err", err)
			return 1
		}
	}
	slog.Info("tool registry ready", "tools", registry.Len())

	// ── Orchestrator + HTTP server ────────────────────────────────────────────
	threads := store.NewMemStore()

	generator, err := buildGenerator(guarded, registry, threads, cfg.Generation)
	if err != nil {
		slog.Error("failed to build generator", "err", err)
		return 1
	}

	checks := health.New(health.BreakerChecker("llm", breaker))
	server := api.NewServer(generator, threads, checks, observe.DefaultMetrics())

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if httpSrv.Addr == "" {
		httpSrv.Addr = ":8080"
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.GenerationChanged {
			g, err := buildGenerator(guarded, registry, threads, d.NewGeneration)
			if err != nil {
				slog.Warn("cannot apply new generation settings", "err", err)
				return
			}
			server.SetGenerator(g)
			slog.Info("generation settings reloaded")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Serve ─────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", httpSrv.Addr)
		if cfg.Server.TLS != nil {
			errCh <- httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- httpSrv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
		return 1
	}
	if err := generator.Close(); err != nil {
		slog.Warn("transport close error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// ── Transport wiring ──────────────────────────────────────────────────────────

// registerBuiltinTransports wires all built-in transport factories into reg.
func registerBuiltinTransports(reg *config.Registry) {
	// The native openai transport speaks the chat-completions wire format
	// directly, including server-side structured outputs.
	reg.RegisterTransport("openai", func(cfg config.LLMConfig) (llm.Transport, error) {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Model, opts...)
	})

	// The remaining providers go through any-llm's provider adapters.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterTransport(providerName, func(cfg config.LLMConfig) (llm.Transport, error) {
			var opts []anyllmlib.Option
			if cfg.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
			}
			if cfg.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
			}
			return anyllm.New(providerName, cfg.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterTransport("ollama", func(cfg config.LLMConfig) (llm.Transport, error) {
		var opts []anyllmlib.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.New("ollama", cfg.Model, opts...)
	})
}

// buildGenerator assembles an orchestrator from the generation config block.
func buildGenerator(transport llm.Transport, registry *tools.Registry, threads store.Store, gen config.GenerationConfig) (*generate.Generator, error) {
	opts := []generate.Option{
		generate.WithInstructions(gen.Instructions),
		generate.WithTemperature(gen.Temperature),
		generate.WithMaxTokens(gen.MaxTokens),
	}
	if gen.MaxToolRounds > 0 {
		opts = append(opts, generate.WithMaxRounds(gen.MaxToolRounds))
	}
	if gen.CallTimeoutSeconds > 0 {
		opts = append(opts, generate.WithCallTimeout(time.Duration(gen.CallTimeoutSeconds)*time.Second))
	}
	if gen.HistoryLimit > 0 {
		opts = append(opts, generate.WithHistoryLimit(gen.HistoryLimit))
	}
	return generate.New(transport, registry, threads, opts...)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
