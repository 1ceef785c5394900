package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/weighbridge/internal/api"
	"github.com/hyperengineering/weighbridge/internal/archive"
	"github.com/hyperengineering/weighbridge/internal/capture"
	"github.com/hyperengineering/weighbridge/internal/config"
	"github.com/hyperengineering/weighbridge/internal/queue"
	"github.com/hyperengineering/weighbridge/internal/remote"
	weighsync "github.com/hyperengineering/weighbridge/internal/sync"
	"github.com/hyperengineering/weighbridge/internal/telemetry"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "weighbridge",
	Short: "Weighbridge - Scale Telemetry and Offline Sync Service",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(recordsCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	initLogger(cfg.Log)
	slog.Info("configuration loaded")

	// 4. Initialize the local durable queue (migrations, WAL mode)
	q, err := queue.NewSQLiteQueue(cfg.Queue.Path)
	if err != nil {
		return err
	}
	slog.Info("queue initialized", "path", cfg.Queue.Path)

	// 5. Telemetry pipeline: classifier + single-consumer ingestor
	classifier := telemetry.NewClassifier(cfg.Scale)
	ingestor := telemetry.NewIngestor(classifier, cfg.Scale)
	slog.Info("classifier initialized",
		"window_size", cfg.Scale.WindowSize,
		"spread_tolerance", cfg.Scale.SpreadTolerance,
	)

	// 6. Remote store client and sync engine
	store := remote.NewClient(cfg.Remote)
	probe := &weighsync.PingProbe{Store: store, Timeout: time.Duration(cfg.Remote.PingTimeout)}

	archiver, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		return err
	}

	engine := weighsync.NewEngine(q, store, probe, archiver, time.Duration(cfg.Remote.UploadTimeout))
	slog.Info("sync engine initialized", "remote", cfg.Remote.BaseURL)

	// 7. Capture session and HTTP router
	session := capture.NewSession()
	handler := api.NewHandler(classifier, ingestor, session, q, engine, probe,
		cfg.Auth.APIKey, Version, cfg.Sync.SyncOnSave)
	router := api.NewRouter(handler)

	// 8. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Background workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "telemetry-ingestor", ingestor.Run)
	if interval := time.Duration(cfg.Sync.AutoInterval); interval > 0 {
		coordinator := weighsync.NewCoordinator(engine, interval)
		startWorker(ctx, &wg, "sync-coordinator", coordinator.Run)
	}

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Any other error indicates an actual server failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 12a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 12b. Wait for workers to complete
	wg.Wait()

	// 12c. Close the queue
	if err := q.Close(); err != nil {
		slog.Error("queue close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func initLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
