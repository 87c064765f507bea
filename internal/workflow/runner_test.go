package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *log.Logger {
	return log.New(sinkWriter{}, "", 0)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestNewDefinitionRejectsUnknownParent(t *testing.T) {
	_, err := NewDefinition("bad",
		Stage{Name: "child", Parents: []string{"missing"}},
	)
	if err == nil {
		t.Fatalf("expected error for unknown parent")
	}
}

func TestNewDefinitionRejectsDuplicateStage(t *testing.T) {
	_, err := NewDefinition("bad",
		Stage{Name: "a"},
		Stage{Name: "a"},
	)
	if err == nil {
		t.Fatalf("expected error for duplicate stage")
	}
}

func TestRunnerExecutesStagesInDependencyOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context, *Run) (json.RawMessage, error) {
		return func(context.Context, *Run) (json.RawMessage, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return json.RawMessage(`{"stage":"` + name + `"}`), nil
		}
	}

	definition, err := NewDefinition("pipeline",
		Stage{Name: "first", Run: record("first")},
		Stage{Name: "second", Parents: []string{"first"}, Run: record("second")},
		Stage{Name: "third", Parents: []string{"second"}, Run: record("third")},
	)
	if err != nil {
		t.Fatalf("definition: %v", err)
	}

	queue := NewLocalQueue(16, 3, quietLogger())
	store := NewRunStore()
	runner := NewRunner(definition, queue, queue, store, 2, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	runID, err := runner.Trigger(ctx, "report-1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return store.Get(runID).Status("third") == StatusSucceeded
	})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("unexpected execution order %v", order)
	}

	run := store.Get(runID)
	if got := run.Output("second"); string(got) != `{"stage":"second"}` {
		t.Fatalf("unexpected stage output %s", got)
	}
}

func TestRunnerRetriesWithinBudget(t *testing.T) {
	var attempts int32
	definition, err := NewDefinition("pipeline",
		Stage{
			Name:        "flaky",
			MaxAttempts: 3,
			Run: func(context.Context, *Run) (json.RawMessage, error) {
				if atomic.AddInt32(&attempts, 1) < 3 {
					return nil, fmt.Errorf("transient")
				}
				return nil, nil
			},
		},
	)
	if err != nil {
		t.Fatalf("definition: %v", err)
	}

	queue := NewLocalQueue(16, 3, quietLogger())
	store := NewRunStore()
	runner := NewRunner(definition, queue, queue, store, 1, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	runID, err := runner.Trigger(ctx, "report-1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return store.Get(runID).Status("flaky") == StatusSucceeded
	})
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRunnerExhaustedStageIsTerminalAndDeadLettered(t *testing.T) {
	definition, err := NewDefinition("pipeline",
		Stage{
			Name:        "doomed",
			MaxAttempts: 2,
			Run: func(context.Context, *Run) (json.RawMessage, error) {
				return nil, fmt.Errorf("permanent")
			},
		},
		Stage{
			Name:    "never",
			Parents: []string{"doomed"},
			Run: func(context.Context, *Run) (json.RawMessage, error) {
				t.Errorf("downstream stage must not run")
				return nil, nil
			},
		},
	)
	if err != nil {
		t.Fatalf("definition: %v", err)
	}

	queue := NewLocalQueue(16, 2, quietLogger())
	store := NewRunStore()
	runner := NewRunner(definition, queue, queue, store, 1, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)

	runID, err := runner.Trigger(ctx, "report-1")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return store.Get(runID).Status("doomed") == StatusFailedTerminal && queue.DLQSize() == 1
	})
	if got := store.Get(runID).Status("never"); got != StatusPending {
		t.Fatalf("expected downstream stage to stay pending, got %s", got)
	}
}

func TestRunStoreAdoptsForeignStageMessage(t *testing.T) {
	definition, err := NewDefinition("pipeline",
		Stage{Name: "first", Run: func(context.Context, *Run) (json.RawMessage, error) { return nil, nil }},
		Stage{Name: "second", Parents: []string{"first"}, Run: func(context.Context, *Run) (json.RawMessage, error) { return nil, nil }},
	)
	if err != nil {
		t.Fatalf("definition: %v", err)
	}

	store := NewRunStore()
	run := store.adopt(definition, StageMessage{
		RunID:    "run-from-elsewhere",
		Workflow: "pipeline",
		Stage:    "second",
		ReportID: "report-1",
	})

	// The message itself proves the parent finished in another process.
	if got := run.Status("first"); got != StatusSucceeded {
		t.Fatalf("expected adopted ancestor succeeded, got %s", got)
	}
	if got := run.Status("second"); got != StatusPending {
		t.Fatalf("expected adopted stage pending, got %s", got)
	}
}
