package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/flowcore/automation-engine/internal/queue"
	"github.com/flowcore/automation-engine/internal/storage"
)

// CronDispatcher polls workflow definitions carrying a Cron trigger
// and enqueues one job per tick per workflow. It does not guard
// against overlapping runs of the same workflow: every tick creates a
// new execution and job whether or not an earlier run is still in
// progress.
type CronDispatcher struct {
	store storage.Store
	queue queue.Queue
	cron  *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewCronDispatcher builds a dispatcher over store and queue.
func NewCronDispatcher(store storage.Store, q queue.Queue) *CronDispatcher {
	return &CronDispatcher{
		store:   store,
		queue:   q,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Reload lists every workflow with a Cron trigger and schedules any
// that are not already scheduled, then drops schedules for workflows
// that no longer declare a Cron trigger (e.g. were deleted).
func (d *CronDispatcher) Reload(ctx context.Context) error {
	workflows, err := d.store.ListWorkflows(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool, len(workflows))
	for _, wf := range workflows {
		if wf.Definition.Trigger.Type != storage.TriggerCron {
			continue
		}
		key := wf.ID.String()
		seen[key] = true
		if _, scheduled := d.entries[key]; scheduled {
			continue
		}

		workflowID := wf.ID
		expr := wf.Definition.Trigger.Expression
		entryID, err := d.cron.AddFunc(expr, func() { d.dispatch(context.Background(), workflowID) })
		if err != nil {
			slog.Error("failed to schedule cron workflow", "workflow_id", workflowID, "expression", expr, "error", err)
			continue
		}
		d.entries[key] = entryID
	}

	for key, entryID := range d.entries {
		if !seen[key] {
			d.cron.Remove(entryID)
			delete(d.entries, key)
		}
	}

	return nil
}

// dispatch creates a pending execution and enqueues a job for
// workflowID with an empty initial input, logging rather than
// returning an error since it runs off the cron library's own
// goroutine.
func (d *CronDispatcher) dispatch(ctx context.Context, workflowID uuid.UUID) {
	exec, err := d.store.CreateExecution(ctx, workflowID)
	if err != nil {
		slog.Error("cron dispatch: failed to create execution", "workflow_id", workflowID, "error", err)
		return
	}
	if _, err := d.queue.Enqueue(ctx, exec.ID, workflowID, json.RawMessage(`{}`)); err != nil {
		slog.Error("cron dispatch: failed to enqueue job", "workflow_id", workflowID, "execution_id", exec.ID, "error", err)
	}
}

// Start begins the underlying cron scheduler. Call Reload before Start
// to load the initial schedule.
func (d *CronDispatcher) Start() { d.cron.Start() }

// Stop halts the scheduler and returns a context that is done once any
// running job has completed.
func (d *CronDispatcher) Stop() context.Context { return d.cron.Stop() }
