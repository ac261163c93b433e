package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/shakram02/go-mcp-sql-tools/internal/config"
	"github.com/shakram02/go-mcp-sql-tools/internal/telemetry"
	"github.com/shakram02/go-mcp-sql-tools/internal/tools"
)

// ShutdownTimeout bounds how long HTTP transports wait for in-flight calls.
const ShutdownTimeout = 10 * time.Second

var serveFlags struct {
	transport string
	addr      string
	dsn       string
	readOnly  bool
	logLevel  string
	trace     bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the database tools over stdio, streamable HTTP or SSE",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)

		logger, err := newLogger(cfg.Server.LogLevel)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.Setup(cfg.Tracing.Enabled, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		}()

		srv := tools.NewServer(cfg, logger, serverName, Version,
			server.WithToolHandlerMiddleware(telemetry.ToolSpans()),
			server.WithResourceCapabilities(false, false),
			server.WithRecovery(),
		)

		logger.Info("MCP SQL tools server starting",
			"version", Version,
			"transport", cfg.Server.Transport,
			"read_only", cfg.Database.ReadOnly,
		)
		err = run(ctx, srv, cfg.Server, logger)
		if err == nil || errors.Is(err, context.Canceled) {
			logger.Info("Server shutdown gracefully")
			return nil
		}
		return err
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.transport, "transport", "", "transport to serve on: stdio, http or sse")
	f.StringVar(&serveFlags.addr, "addr", "", "listen address for the http and sse transports")
	f.StringVar(&serveFlags.dsn, "dsn", "", "default connection string")
	f.BoolVar(&serveFlags.readOnly, "read-only", false, "open read-only sessions and reject non-query statements")
	f.StringVar(&serveFlags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.BoolVar(&serveFlags.trace, "trace", false, "write OpenTelemetry spans for tool calls to stderr")
}

// applyServeFlags overrides cfg with the flags the user set explicitly.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("transport") {
		cfg.Server.Transport = serveFlags.transport
	}
	if f.Changed("addr") {
		cfg.Server.Addr = serveFlags.addr
	}
	if f.Changed("dsn") {
		cfg.Database.DSN = serveFlags.dsn
	}
	if f.Changed("read-only") {
		cfg.Database.ReadOnly = serveFlags.readOnly
	}
	if f.Changed("log-level") {
		cfg.Server.LogLevel = serveFlags.logLevel
	}
	if f.Changed("trace") {
		cfg.Tracing.Enabled = serveFlags.trace
	}
}

// newLogger writes text logs to stderr; stdout carries the stdio transport.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}

func run(ctx context.Context, srv *server.MCPServer, cfg config.ServerConfig, logger *slog.Logger) error {
	switch strings.ToLower(cfg.Transport) {
	case "", "stdio":
		stdio := server.NewStdioServer(srv)
		stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
		return stdio.Listen(ctx, os.Stdin, os.Stdout)
	case "http":
		return serveHTTP(ctx, server.NewStreamableHTTPServer(srv), cfg.Addr, logger)
	case "sse":
		return serveHTTP(ctx, server.NewSSEServer(srv), cfg.Addr, logger)
	default:
		return fmt.Errorf("unknown transport %q: expected stdio, http or sse", cfg.Transport)
	}
}

type httpTransport interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

func serveHTTP(ctx context.Context, t httpTransport, addr string, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- t.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return t.Shutdown(shutdownCtx)
	}
}
