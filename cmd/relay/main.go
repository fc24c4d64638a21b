// Package main provides the CLI entry point for the relay MCP gateway.
//
// Relay is a JSON-RPC 2.0 MCP server exposing echo, read_file, chat,
// and (optionally) think tools. The chat tool drives a bounded
// iterative loop against an OpenAI Responses-style provider, with
// think calls delegated to an upstream MCP server.
//
// # Basic Usage
//
// Start the server:
//
//	relay serve --config relay.yaml
//
// # Environment Variables
//
//   - OPENAI_API_KEY: provider API key (required for the chat tool)
//   - OPENAI_BASE_URL: provider API root
//   - MCP_REQUIRE_SESSION: strict session mode (default true)
//   - THINK_TOOL_ENABLED / THINK_TOOL_URL: upstream think server
//   - LANGSMITH_TRACING / LANGSMITH_API_KEY: LangSmith run tracking
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/chat"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/gateway"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/provider"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/think"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/internal/trace"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "relay",
		Short:        "Relay - MCP gateway with chat orchestration",
		Long:         "Relay exposes MCP tools over JSON-RPC/HTTP and orchestrates\nmulti-turn chat against a Responses-style LLM provider.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return runServe(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML or JSON5 config file")
	return cmd
}

func runServe(ctx context.Context, settings *config.Settings) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
	})

	metrics := observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    config.ServerName,
		ServiceVersion: config.ServerVersion,
		Endpoint:       settings.OTelEndpoint,
		EnableInsecure: true,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn(ctx, "tracer shutdown error", "error", err)
		}
	}()

	providerClient := provider.NewClient(provider.Config{
		APIKey:  settings.OpenAIAPIKey,
		BaseURL: settings.OpenAIBaseURL,
	})

	poller := provider.NewPoller(provider.PollerConfig{
		MaxConcurrency: settings.PollMaxConcurrency,
		Delay:          settings.PollDelay,
		MaxPolls:       settings.MaxPolls,
		Logger:         logger,
		Metrics:        metrics,
	})

	var thinkClient *think.Client
	if settings.ThinkEnabled {
		thinkClient = think.NewClient(think.ClientConfig{
			URL:        settings.ThinkURL,
			Timeout:    settings.ThinkTimeout,
			RetryLimit: settings.ThinkRetryLimit,
			Logger:     logger,
			Metrics:    metrics,
		})
	}

	traceAdapter := trace.NewAdapter(trace.AdapterConfig{
		Enabled:  settings.LangSmithEnabled,
		Project:  settings.LangSmithProject,
		APIKey:   settings.LangSmithAPIKey,
		Endpoint: settings.LangSmithEndpoint,
		Logger:   logger,
	})

	var thinkCaller think.Caller
	if thinkClient != nil {
		thinkCaller = thinkClient
	}
	orchestrator := chat.NewOrchestrator(chat.OrchestratorConfig{
		Provider:     providerClient,
		Poller:       poller,
		Think:        think.NewProcessor(thinkCaller, logger),
		Trace:        traceAdapter,
		DefaultModel: settings.DefaultModel,
		MaxTurns:     settings.MaxTurns,
		ThinkEnabled: settings.ThinkEnabled,
		Logger:       logger,
		Metrics:      metrics,
	})

	registry := tools.NewRegistry(metrics)
	registry.MustRegister(tools.EchoSpec(), tools.EchoHandler)
	registry.MustRegister(tools.ReadFileSpec(), tools.NewReadFileHandler(settings.FilesDir))
	registry.MustRegister(chat.ToolSpec(), chat.NewToolHandler(orchestrator))
	if thinkClient != nil {
		registry.MustRegister(think.ToolSpec(), think.NewToolHandler(thinkClient))
	}

	server := gateway.NewServer(gateway.ServerConfig{
		Host:          settings.Host,
		Port:          settings.Port,
		Sessions:      sessions.NewRegistry(settings.RequireSession),
		Tools:         registry,
		ProviderReady: providerClient.CanRetrieve,
		ThinkEnabled:  settings.ThinkEnabled,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})

	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "relay started",
		"version", version,
		"port", settings.Port,
		"strict_sessions", settings.RequireSession,
		"think_enabled", settings.ThinkEnabled)

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-signalCtx.Done()

	logger.Info(ctx, "shutting down")
	server.Stop(context.Background())
	return nil
}
