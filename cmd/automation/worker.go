package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowcore/automation-engine/internal/engine"
	"github.com/flowcore/automation-engine/internal/queue"
	"github.com/flowcore/automation-engine/internal/storage"
	"github.com/flowcore/automation-engine/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	var concurrency int
	var pollInterval time.Duration
	var cronReload time.Duration

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start a background worker that processes queued jobs and cron triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), concurrency, pollInterval, cronReload)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of queue pollers")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "queue poll interval when idle")
	cmd.Flags().DurationVar(&cronReload, "cron-reload-interval", time.Minute, "how often to rescan workflows for cron triggers")
	return cmd
}

func runWorker(ctx context.Context, concurrency int, pollInterval, cronReload time.Duration) error {
	pool, err := connectDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := storage.New(pool)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	q, err := queue.New(pool)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}

	eng := engine.New(store, buildRegistry())
	w := worker.NewWithConfig(store, q, eng, worker.Config{Concurrency: concurrency, PollInterval: pollInterval})

	cron := worker.NewCronDispatcher(store, q)
	if err := cron.Reload(ctx); err != nil {
		return fmt.Errorf("initial cron reload: %w", err)
	}
	cron.Start()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerDone := make(chan struct{})
	go func() {
		w.Run(runCtx)
		close(workerDone)
	}()

	go func() {
		ticker := time.NewTicker(cronReload)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := cron.Reload(runCtx); err != nil {
					slog.Error("failed to reload cron schedule", "error", err)
				}
			}
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	slog.Info("shutdown signal received", "signal", sig)

	cancel()
	<-cron.Stop().Done()
	<-workerDone

	return nil
}
