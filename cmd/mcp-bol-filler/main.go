package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/a3tai/mcp-bol-filler/internal/bol"
	"github.com/a3tai/mcp-bol-filler/internal/config"
	"github.com/a3tai/mcp-bol-filler/internal/logging"
	"github.com/a3tai/mcp-bol-filler/internal/mcp"
	"github.com/a3tai/mcp-bol-filler/internal/web"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

const shutdownTimeout = 15 * time.Second

// setupLogging configures slog for the mode. In stdio mode stdout carries the
// MCP protocol, so logs go to stderr and only warnings are shown unless debug
// logging was asked for.
func setupLogging(cfg *config.Config, stdout, stderr io.Writer) *slog.Logger {
	if cfg.IsStdioMode() {
		level := cfg.LogLevel
		if !cfg.IsDebug() && level == config.DefaultLogLevel {
			level = "warn"
		}
		return logging.Setup(stderr, level, cfg.LogFormat)
	}
	return logging.Setup(stdout, cfg.LogLevel, cfg.LogFormat)
}

func newService(cfg *config.Config, logger *slog.Logger) (*bol.Service, error) {
	return bol.NewService(bol.Options{
		Directory:   cfg.Directory,
		MaxFileSize: cfg.MaxFileSize,
		Workers:     cfg.Workers,
		Policy:      cfg.Policy(),
		ArchiveName: cfg.ArchiveName,
	}, logger)
}

// runServerMode serves the HTTP API until ctx is cancelled, then shuts down
// gracefully.
func runServerMode(ctx context.Context, cfg *config.Config, svc *bol.Service) error {
	server := web.NewServer(cfg, svc)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Start(cfg.Address())
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server stopped")
		return nil

	case err := <-serverErrCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// runStdioMode serves MCP until the client closes stdin.
func runStdioMode(ctx context.Context, cfg *config.Config, svc *bol.Service) error {
	server, err := mcp.NewServer(cfg, svc)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func main() {
	cfg, err := config.LoadFromFlags()
	switch {
	case errors.Is(err, config.ErrVersionRequested):
		printVersion(os.Stdout)
		return
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	logger := setupLogging(cfg, os.Stdout, os.Stderr)
	logger.Debug("configuration loaded", "config", cfg.String())

	svc, err := newService(cfg, logger)
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsServerMode() {
		err = runServerMode(ctx, cfg, svc)
	} else {
		err = runStdioMode(ctx, cfg, svc)
	}
	if err != nil {
		logger.Error("exiting", "error", err)
		stop()
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP BOL Filler\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
