package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/weighbridge/internal/archive"
	"github.com/hyperengineering/weighbridge/internal/config"
	"github.com/hyperengineering/weighbridge/internal/queue"
	"github.com/hyperengineering/weighbridge/internal/remote"
	weighsync "github.com/hyperengineering/weighbridge/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation batch against the remote store",
	Long:  "Push all pending records to the remote store without running the server, then report aggregate outcome.",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg.Log)

	q, err := queue.NewSQLiteQueue(cfg.Queue.Path)
	if err != nil {
		return err
	}
	defer q.Close()

	store := remote.NewClient(cfg.Remote)
	probe := &weighsync.PingProbe{Store: store, Timeout: time.Duration(cfg.Remote.PingTimeout)}

	archiver, err := archive.NewUploader(cfg.Archive)
	if err != nil {
		return err
	}

	engine := weighsync.NewEngine(q, store, probe, archiver, time.Duration(cfg.Remote.UploadTimeout))

	report, err := engine.SyncAll(ctx)
	if err != nil {
		if errors.Is(err, weighsync.ErrUnreachable) {
			return fmt.Errorf("remote store unreachable, records left queued")
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "synced %d/%d records (%d failed)\n",
		report.Succeeded, report.Total, report.Failed)
	return nil
}
