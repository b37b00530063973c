package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/menu-scan/internal/config"
	"github.com/zombor/menu-scan/internal/menu"
	"github.com/zombor/menu-scan/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrVersionRequested) {
		fmt.Println(version)
		os.Exit(0)
	}
	var usageErr *config.UsageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(usageErr.Flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", usageErr.Err)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Initializing store...", "driver", cfg.Store.Driver)
	store, err := menu.OpenStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer store.Close()

	scanner, err := newScanner(ctx, cfg.Scanner)
	if err != nil {
		return fmt.Errorf("initializing scanner: %w", err)
	}
	defer scanner.Close()

	archive, err := menu.OpenArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("initializing archive: %w", err)
	}
	if archive != nil {
		slog.Info("Archiving uploads", "kind", cfg.Archive.Kind)
	}

	service := menu.NewService(store, menu.NewExtractor(scanner, cfg.Scanner), archive)
	server := menu.NewServer(service, menu.BasicAuth{
		Username: cfg.HTTP.AuthUser,
		Password: cfg.HTTP.AuthPass,
	}, cfg.HTTP.MaxUploadBytes)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if cfg.HTTP.AuthUser != "" || cfg.HTTP.AuthPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.HTTP.AuthUser)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Scanner.Timeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newScanner(ctx context.Context, cfg config.Scanner) (scanning.Scanner, error) {
	switch cfg.Kind {
	case config.ScannerGemini:
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		return scanning.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case config.ScannerOllama:
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q (valid: gemini or ollama)", cfg.Kind)
	}
}
