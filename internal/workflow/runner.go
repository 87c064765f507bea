// Package workflow is a minimal directed-acyclic task runner. A workflow is
// a fixed set of named stages with declared parent edges; one run executes
// the graph for a single input. Stage executions travel through a queue
// (Redis Streams or a local channel), which also provides the per-stage
// retry mechanics: a failed handler is redelivered with an incremented
// attempt counter until the budget is spent, then dead-lettered.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/deviceops/reports-back/internal/domain"
)

const defaultStageAttempts = 3

type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusSucceeded      Status = "succeeded"
	StatusFailedRetrying Status = "failed_retrying"
	StatusFailedTerminal Status = "failed_terminal"
)

// Stage is one node of the graph. Run receives the owning workflow run and
// may return an output document for downstream stages.
type Stage struct {
	Name        string
	Parents     []string
	MaxAttempts int
	Run         func(ctx context.Context, run *Run) (json.RawMessage, error)
}

// Definition is a validated stage graph.
type Definition struct {
	Name     string
	stages   []Stage
	byName   map[string]Stage
	children map[string][]string
}

// NewDefinition builds a definition. Stages must be listed in dependency
// order: every parent must appear before its children, which also rules out
// cycles.
func NewDefinition(name string, stages ...Stage) (Definition, error) {
	definition := Definition{
		Name:     name,
		stages:   stages,
		byName:   make(map[string]Stage, len(stages)),
		children: make(map[string][]string, len(stages)),
	}

	for _, stage := range stages {
		if stage.Name == "" {
			return Definition{}, fmt.Errorf("workflow %s: stage without a name", name)
		}
		if _, exists := definition.byName[stage.Name]; exists {
			return Definition{}, fmt.Errorf("workflow %s: duplicate stage %s", name, stage.Name)
		}
		if stage.MaxAttempts <= 0 {
			stage.MaxAttempts = defaultStageAttempts
		}
		for _, parent := range stage.Parents {
			if _, known := definition.byName[parent]; !known {
				return Definition{}, fmt.Errorf(
					"workflow %s: stage %s depends on unknown or later stage %s",
					name, stage.Name, parent,
				)
			}
			definition.children[parent] = append(definition.children[parent], stage.Name)
		}
		definition.byName[stage.Name] = stage
	}
	return definition, nil
}

func (d Definition) roots() []Stage {
	roots := make([]Stage, 0, 1)
	for _, stage := range d.stages {
		if len(stage.Parents) == 0 {
			roots = append(roots, stage)
		}
	}
	return roots
}

// Run tracks the stage state machine and outputs for one workflow instance.
type Run struct {
	ID       string
	ReportID string

	mu       sync.Mutex
	statuses map[string]Status
	outputs  map[string]json.RawMessage
}

func newRun(definition Definition, id, reportID string) *Run {
	run := &Run{
		ID:       id,
		ReportID: reportID,
		statuses: make(map[string]Status, len(definition.stages)),
		outputs:  make(map[string]json.RawMessage),
	}
	for _, stage := range definition.stages {
		run.statuses[stage.Name] = StatusPending
	}
	return run
}

func (r *Run) Status(stage string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[stage]
}

func (r *Run) setStatus(stage string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[stage] = status
}

// Output returns the document a succeeded stage produced, if any.
func (r *Run) Output(stage string) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[stage]
}

func (r *Run) setOutput(stage string, output json.RawMessage) {
	if output == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[stage] = output
}

func (r *Run) parentsSucceeded(stage Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, parent := range stage.Parents {
		if r.statuses[parent] != StatusSucceeded {
			return false
		}
	}
	return true
}

// RunStore holds the in-process state of active workflow runs.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

func (s *RunStore) Get(runID string) *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[runID]
}

func (s *RunStore) put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

// adopt reconstructs run state for a stage message this process has no run
// for (the trigger happened in another process sharing the queue). A stage
// message is proof that every ancestor of its stage succeeded.
func (s *RunStore) adopt(definition Definition, message StageMessage) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[message.RunID]; ok {
		return run
	}

	run := newRun(definition, message.RunID, message.ReportID)
	markAncestors(definition, run, message.Stage)
	s.runs[message.RunID] = run
	return run
}

func markAncestors(definition Definition, run *Run, stageName string) {
	stage, ok := definition.byName[stageName]
	if !ok {
		return
	}
	for _, parent := range stage.Parents {
		run.statuses[parent] = StatusSucceeded
		markAncestors(definition, run, parent)
	}
}

// Runner consumes stage messages with a bounded pool of worker slots.
type Runner struct {
	definition Definition
	producer   Producer
	consumer   Consumer
	store      *RunStore
	slots      int
	logger     *log.Logger
}

func NewRunner(
	definition Definition,
	producer Producer,
	consumer Consumer,
	store *RunStore,
	slots int,
	logger *log.Logger,
) *Runner {
	if slots <= 0 {
		slots = 4
	}
	return &Runner{
		definition: definition,
		producer:   producer,
		consumer:   consumer,
		store:      store,
		slots:      slots,
		logger:     logger,
	}
}

// Trigger starts one workflow run, fire and forget: it enqueues the root
// stages and returns before any of them begins executing. An enqueue
// failure is the trigger's own failure mode, never the triggering command's.
func (r *Runner) Trigger(ctx context.Context, reportID string) (string, error) {
	run := newRun(r.definition, domain.NewID(), reportID)
	r.store.put(run)

	for _, root := range r.definition.roots() {
		message := StageMessage{
			RunID:       run.ID,
			Workflow:    r.definition.Name,
			Stage:       root.Name,
			ReportID:    reportID,
			Attempt:     0,
			RequestedAt: time.Now().UTC(),
		}
		if err := r.producer.Enqueue(ctx, message); err != nil {
			run.setStatus(root.Name, StatusFailedTerminal)
			return "", fmt.Errorf("enqueue stage %s: %w", root.Name, err)
		}
	}
	return run.ID, nil
}

// Start runs the worker slots until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.slots; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.consumeLoop(ctx)
		}()
	}
	wg.Wait()
}

func (r *Runner) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := r.consumer.Consume(ctx, r.handleMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if r.logger != nil {
			r.logger.Printf("workflow consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Runner) handleMessage(ctx context.Context, message StageMessage) error {
	if message.Workflow != r.definition.Name {
		return fmt.Errorf("unknown workflow %s", message.Workflow)
	}
	stage, ok := r.definition.byName[message.Stage]
	if !ok {
		return fmt.Errorf("unknown stage %s", message.Stage)
	}

	run := r.store.Get(message.RunID)
	if run == nil {
		run = r.store.adopt(r.definition, message)
	}
	if !run.parentsSucceeded(stage) {
		return fmt.Errorf("stage %s parents not yet succeeded", stage.Name)
	}

	run.setStatus(stage.Name, StatusRunning)
	output, err := stage.Run(ctx, run)
	if err != nil {
		if message.Attempt+1 >= stage.MaxAttempts {
			run.setStatus(stage.Name, StatusFailedTerminal)
			if r.logger != nil {
				r.logger.Printf(
					"stage failed terminally run_id=%s stage=%s attempts=%d err=%v",
					run.ID, stage.Name, message.Attempt+1, err,
				)
			}
		} else {
			run.setStatus(stage.Name, StatusFailedRetrying)
		}
		return err
	}

	run.setOutput(stage.Name, output)
	run.setStatus(stage.Name, StatusSucceeded)
	if r.logger != nil {
		r.logger.Printf("stage succeeded run_id=%s stage=%s", run.ID, stage.Name)
	}

	// A child becomes runnable only once every declared parent succeeded.
	for _, childName := range r.definition.children[stage.Name] {
		child := r.definition.byName[childName]
		if !run.parentsSucceeded(child) {
			continue
		}
		next := StageMessage{
			RunID:       run.ID,
			Workflow:    r.definition.Name,
			Stage:       child.Name,
			ReportID:    run.ReportID,
			Attempt:     0,
			RequestedAt: time.Now().UTC(),
		}
		if err := r.producer.Enqueue(ctx, next); err != nil {
			// The finished stage must not be redelivered over a
			// scheduling failure; the child chain ends here instead.
			run.setStatus(child.Name, StatusFailedTerminal)
			if r.logger != nil {
				r.logger.Printf(
					"stage enqueue failed run_id=%s stage=%s err=%v",
					run.ID, child.Name, err,
				)
			}
		}
	}
	return nil
}
