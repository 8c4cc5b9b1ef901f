// Command simple-card-server serves the card API and browser client on top
// of a file-persisted document store.
//
// Configuration is read from defaults, an optional YAML file (-config), the
// environment, and finally explicitly set flags. The store snapshot is written
// when the server shuts down, both on a normal exit and on SIGINT/SIGTERM. A
// SIGKILL loses changes made since start.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/stevemurr/simple-card-server/config"
	"github.com/stevemurr/simple-card-server/handler"
	"github.com/stevemurr/simple-card-server/store"
)

func main() {
	err := mainImpl()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "simple-card-server: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], nil)
}

// run serves until ctx is done or the listener fails, then writes the store
// snapshot. listening, if set, is called with the bound address.
func run(ctx context.Context, args []string, listening func(addr net.Addr)) error {
	fs := flag.NewFlagSet("simple-card-server", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file (optional)")
	host := fs.String("host", "", "Host to listen on")
	port := fs.String("port", "", "Port to listen on")
	dataDir := fs.String("data-dir", "", "Directory holding the database snapshot")
	dbName := fs.String("db", "", "Database name; the snapshot is .db_dump-<name>.json")
	backend := fs.String("backend", "", "Store backend (json, sqlite, memory)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	exposeStack := fs.Bool("expose-stack", false, "Include stack traces in error responses (debug only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unknown arguments: %v", fs.Args())
	}

	ll := &slog.LevelVar{}
	slog.SetDefault(newLogger(ll))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Explicitly set flags win over the file and the environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "data-dir":
			cfg.DataDir = *dataDir
		case "db":
			cfg.DBName = *dbName
		case "backend":
			cfg.Backend = *backend
		case "log-level":
			cfg.LogLevel = *logLevel
		case "expose-stack":
			cfg.ExposeStack = *exposeStack
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ll.Set(level)

	s, err := store.New(cfg.Backend, cfg.DataDir, cfg.DBName)
	if err != nil {
		return fmt.Errorf("failed to create store (backend=%s): %w", cfg.Backend, err)
	}
	slog.InfoContext(ctx, "Loaded store", "db", cfg.DBName, "backend", cfg.Backend, "documents", s.Count())
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("Failed to save store", "db", cfg.DBName, "err", err)
			return
		}
		slog.Info("Saved store", "db", cfg.DBName, "documents", s.Count())
	}()

	h := handler.New(s, handler.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		ExposeStack:    cfg.ExposeStack,
	})
	defer h.Close()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	httpServer := &http.Server{
		Handler:           h,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Server listening", "addr", ln.Addr().String(), "data", cfg.DataDir)
		serverErr <- httpServer.Serve(ln)
	}()
	if listening != nil {
		listening(ln.Addr())
	}

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}
