package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/mcpconc/config"
	"github.com/vinodismyname/mcpconc/internal/datasets"
	"github.com/vinodismyname/mcpconc/internal/registry"
	"github.com/vinodismyname/mcpconc/internal/runtime"
	"github.com/vinodismyname/mcpconc/internal/security"
	"github.com/vinodismyname/mcpconc/internal/telemetry"
	"github.com/vinodismyname/mcpconc/pkg/version"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		useStdio        bool
		showVersion     bool
		configPath      string
		shutdownTimeout time.Duration
	)

	flag.BoolVar(&useStdio, "stdio", false, "Run server over stdio transport")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&configPath, "config", os.Getenv(config.FileEnv), "YAML settings file (env "+config.FileEnv+")")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	settings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(telemetry.LogConfig{
		Level:   settings.LogLevel,
		Pretty:  settings.LogPretty,
		Output:  os.Stderr,
		Service: version.Name + "-server",
	})
	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Security: validate allow-list directories on startup (fail-safe on error)
	secMgr, err := security.NewManager(settings.AllowedDirs, nil)
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager")
		fmt.Fprintf(os.Stderr, "invalid security configuration; set %s_ALLOWED_DIRS\n", config.EnvPrefix)
		os.Exit(1)
	}
	if err := secMgr.ValidateConfig(); err != nil {
		logger.Error().Err(err).Msg("security: invalid allow-list configuration")
		fmt.Fprintf(os.Stderr, "no allowed directories configured; set %s_ALLOWED_DIRS\n", config.EnvPrefix)
		os.Exit(1)
	}
	logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")

	limits := runtime.LimitsFromSettings(settings.Limits)
	runtimeController := runtime.NewController(limits)
	runtimeMW := runtime.NewMiddleware(runtimeController, logger)

	dsMgr := datasets.NewManager(settings.Limits.DatasetIdleTTL, 0, runtimeController, nil)
	dsMgr.SetPathValidator(secMgr)
	dsMgr.SetMaxRows(limits.MaxRowsPerOp)
	dsMgr.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dsMgr.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("dataset cache shutdown incomplete")
		}
	}()

	svc := &registry.Service{
		Limits:      limits,
		Datasets:    dsMgr,
		Output:      secMgr,
		Defaults:    settings.Options(),
		AllowWrites: settings.EnableWrites,
	}
	toolRegistry := registry.New()
	writeFilter := registry.NewWriteToolFilter(settings.EnableWrites)

	srv := server.NewMCPServer(
		"MCP Market Concentration Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(telemetry.ServerHooks(logger)),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return writeFilter.FilterTools(ctx, tools) }),
	)

	registry.RegisterTools(srv, toolRegistry, svc)

	logger.Info().
		Ctx(ctx).
		Str("version", version.Version()).
		Str("profile", svc.Defaults.Profile).
		Ints("windows", svc.Defaults.Windows).
		Strs("tools", toolRegistry.Names()).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_open_datasets", limits.MaxOpenDatasets).
		Bool("writes_enabled", writeFilter.AllowsWrites()).
		Int("model_context_size", toolRegistry.ModelContextSize("gpt-4o")).
		Bool("stdio", useStdio).
		Msg("server bootstrap configured")

	if !useStdio {
		// If no transport flags provided, print usage and exit non-zero
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio to run over stdio")
		os.Exit(2)
	}

	stdio := server.NewStdioServer(srv)
	stdio.SetErrorLogger(log.New(logger, "", 0))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		// Use stderr for transport errors so clients don't misinterpret output
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
