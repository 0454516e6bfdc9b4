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

	"github.com/kolapsis/vigil/internal/api"
	"github.com/kolapsis/vigil/internal/archive"
	"github.com/kolapsis/vigil/internal/config"
	"github.com/kolapsis/vigil/internal/notify"
	"github.com/kolapsis/vigil/internal/store"
	"github.com/kolapsis/vigil/internal/supervisor"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "version":
		fmt.Printf("vigil %s\n", version)
	case "check":
		cmdCheck(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: vigil <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the Vigil server\n")
	fmt.Fprintf(os.Stderr, "  check     Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  version   Print version\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting vigil",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	logger := slog.New(slog.NewMultiHandler(handlers...))
	slog.SetDefault(logger)
}

// recordRuns translates producer lifecycle events into the run audit trail.
func recordRuns(db store.Store) supervisor.NotifyFunc {
	return func(e supervisor.Event) {
		switch e.Type {
		case "producer.started":
			err := db.StartRun(&store.RunRecord{
				PID:                 e.PID,
				ModelPath:           e.Launch.ModelPath,
				Resolution:          e.Launch.Resolution,
				ConfidenceThreshold: e.Launch.ConfidenceThreshold,
				AnalysisInterval:    e.Launch.AnalysisInterval,
				WebhookURL:          e.Launch.WebhookURL,
				Outcome:             store.OutcomeRunning,
				StartedAt:           time.Now(),
			})
			if err != nil {
				slog.Error("recording run start", "pid", e.PID, "error", err)
			}
		case "producer.stopped", "producer.crashed":
			if err := db.FinishRun(e.PID, e.Outcome, time.Now()); err != nil {
				slog.Error("recording run end", "pid", e.PID, "error", err)
			}
		}
		slog.Info("producer lifecycle", "event", e.Type, "pid", e.PID, "message", e.Message)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	dbPath := config.ExpandHome(cfg.Database.Path)
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", dbPath)

	// --- Event Archive ---
	var ar api.ArchiveReader
	if cfg.Archive.Dir != "" {
		ar = archive.NewReader(config.ExpandHome(cfg.Archive.Dir))
	}

	// --- Notification Broker ---
	broker := notify.NewBroker(cfg.Broker.Capacity)

	// --- Producer Supervisor ---
	sup := supervisor.New(cfg.Producer.Bin, cfg.Producer.WorkDir, cfg.Producer.Env)
	sup.SetNotifyFunc(recordRuns(db))

	// --- HTTP Router ---
	srvAPI := api.NewServer(cfg, broker, sup, db, ar)
	r := srvAPI.Routes()

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: the notification streams hold their response
		// open for the lifetime of a browser tab.
		IdleTimeout: 2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vigil is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	// Closing the broker ends every open stream, which lets Shutdown
	// drain the connections instead of waiting the full timeout.
	broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	// The producer outlives operator sessions but not the server.
	if _, err := sup.Stop(cfg.Producer.StopTimeout); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		slog.Warn("stopping producer on shutdown", "error", err)
	}

	return shutdownErr
}
