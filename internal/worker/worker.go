// Package worker runs the background processes that turn queued jobs
// and cron-triggered workflows into engine runs: a pool of queue
// pollers and a cron dispatcher.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flowcore/automation-engine/internal/engine"
	"github.com/flowcore/automation-engine/internal/queue"
	"github.com/flowcore/automation-engine/internal/storage"
)

// Config controls a Worker's polling behaviour.
type Config struct {
	// Concurrency is the number of goroutines independently polling
	// the queue.
	Concurrency int
	// PollInterval is how long a poller sleeps after finding no
	// pending job before trying again.
	PollInterval time.Duration
}

// DefaultConfig returns a single poller checking the queue every
// second.
func DefaultConfig() Config {
	return Config{Concurrency: 1, PollInterval: time.Second}
}

// Worker claims jobs from the queue and runs their workflow through
// the engine, completing or failing the job based on the outcome.
type Worker struct {
	store  storage.Store
	queue  queue.Queue
	engine *engine.Engine
	config Config
}

// New builds a Worker with the default config.
func New(store storage.Store, q queue.Queue, eng *engine.Engine) *Worker {
	return &Worker{store: store, queue: q, engine: eng, config: DefaultConfig()}
}

// NewWithConfig builds a Worker with an explicit config.
func NewWithConfig(store storage.Store, q queue.Queue, eng *engine.Engine, config Config) *Worker {
	return &Worker{store: store, queue: q, engine: eng, config: config}
}

// Run starts config.Concurrency poller goroutines and blocks until ctx
// is cancelled, then waits for in-flight jobs to finish.
func (w *Worker) Run(ctx context.Context) {
	concurrency := w.config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.pollLoop(ctx)
		}()
	}
	wg.Wait()
}

// pollLoop repeatedly claims and processes jobs until ctx is done,
// sleeping PollInterval between empty claims.
func (w *Worker) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			slog.Error("failed to claim job", "error", err)
			if !sleepOrDone(ctx, w.config.PollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepOrDone(ctx, w.config.PollInterval) {
				return
			}
			continue
		}

		w.process(ctx, job)
	}
}

// process loads job's workflow, runs it through the engine against the
// job's existing execution row, and completes or fails the job.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	logger := slog.With("job_id", job.ID, "execution_id", job.ExecutionID, "workflow_id", job.WorkflowID)

	wf, err := w.store.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		logger.Error("failed to load workflow for job", "error", err)
		w.fail(ctx, job, logger)
		return
	}

	payload := job.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	if _, err := w.engine.RunExisting(ctx, wf, job.ExecutionID, payload); err != nil {
		var fatal *engine.NodeFatalError
		var exhausted *engine.NodeRetryExhaustedError
		var cancelled *engine.ExecutionCancelledError
		var dbErr *engine.DatabaseError
		switch {
		case errors.As(err, &fatal) || errors.As(err, &exhausted):
			// The engine has already marked the execution failed;
			// the job itself still needs a terminal or retry state.
			logger.Warn("workflow run failed", "error", err)
		case errors.As(err, &cancelled):
			// No NodeExecution row was persisted for the pending
			// attempt; the execution row is left running for the
			// caller (e.g. a shutdown) to reconcile.
			logger.Warn("workflow run cancelled", "error", err)
		case errors.As(err, &dbErr):
			logger.Error("workflow run failed due to a persistence error", "error", err)
		default:
			logger.Error("workflow run errored", "error", err)
		}
		w.fail(ctx, job, logger)
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		logger.Error("failed to mark job completed", "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, job *queue.Job, logger *slog.Logger) {
	if err := w.queue.Fail(ctx, job.ID, job.MaxAttempts); err != nil {
		logger.Error("failed to mark job failed", "error", err)
	}
}

// sleepOrDone sleeps for d, returning false early if ctx is cancelled
// first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
