package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/automation-engine/internal/storage"
	"github.com/flowcore/automation-engine/internal/storage/storagemock"
	"github.com/flowcore/automation-engine/internal/worker"
)

func cronWorkflow(id uuid.UUID, expr string) *storage.Workflow {
	return &storage.Workflow{
		ID:   id,
		Name: "ticker",
		Definition: storage.Definition{
			Trigger: storage.Trigger{Type: storage.TriggerCron, Expression: expr},
			Nodes:   []storage.NodeDefinition{{ID: "a", NodeType: "passthrough"}},
		},
	}
}

func TestCronDispatcher_ReloadSchedulesCronWorkflowsOnly(t *testing.T) {
	cronWf := cronWorkflow(uuid.New(), "* * * * *")
	manualWf := &storage.Workflow{ID: uuid.New(), Definition: storage.Definition{Trigger: storage.Trigger{Type: storage.TriggerManual}}}

	store := &storagemock.Store{
		ListWorkflowsMock: func(ctx context.Context) ([]*storage.Workflow, error) {
			return []*storage.Workflow{cronWf, manualWf}, nil
		},
	}
	q := &fakeQueue{}
	d := worker.NewCronDispatcher(store, q)

	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCronDispatcher_ReloadIsIdempotent(t *testing.T) {
	cronWf := cronWorkflow(uuid.New(), "*/5 * * * *")
	store := &storagemock.Store{
		ListWorkflowsMock: func(ctx context.Context) ([]*storage.Workflow, error) {
			return []*storage.Workflow{cronWf}, nil
		},
	}
	q := &fakeQueue{}
	d := worker.NewCronDispatcher(store, q)

	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error on first reload: %v", err)
	}
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error on second reload: %v", err)
	}
}

func TestCronDispatcher_ReloadDropsRemovedWorkflow(t *testing.T) {
	cronWf := cronWorkflow(uuid.New(), "* * * * *")
	var list []*storage.Workflow
	list = []*storage.Workflow{cronWf}

	store := &storagemock.Store{
		ListWorkflowsMock: func(ctx context.Context) ([]*storage.Workflow, error) {
			return list, nil
		},
	}
	q := &fakeQueue{}
	d := worker.NewCronDispatcher(store, q)

	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list = nil
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error after workflow removal: %v", err)
	}
}

func TestCronDispatcher_ReloadPropagatesListError(t *testing.T) {
	store := &storagemock.Store{
		ListWorkflowsMock: func(ctx context.Context) ([]*storage.Workflow, error) {
			return nil, context.DeadlineExceeded
		},
	}
	q := &fakeQueue{}
	d := worker.NewCronDispatcher(store, q)

	if err := d.Reload(context.Background()); err == nil {
		t.Fatal("expected error to propagate from ListWorkflows")
	}
}

func TestCronDispatcher_StartStop(t *testing.T) {
	store := &storagemock.Store{
		ListWorkflowsMock: func(ctx context.Context) ([]*storage.Workflow, error) {
			return nil, nil
		},
	}
	q := &fakeQueue{}
	d := worker.NewCronDispatcher(store, q)

	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Start()

	select {
	case <-d.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("expected stop context to become done promptly with no running jobs")
	}
}
