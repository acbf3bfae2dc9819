// Package pipeline drives one Unit Learning Plan run: outline, sequential
// section generation with accumulated context, and final assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/metrics"
	"github.com/jonathan/unit-planner/internal/outline"
	"github.com/jonathan/unit-planner/internal/rendering"
	"github.com/jonathan/unit-planner/internal/types"
)

// ProgressEvent is emitted once per completed task, in completion order
type ProgressEvent struct {
	RunID     string            `json:"run_id"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
	Section   types.SectionType `json:"section"`
	Task      string            `json:"task"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// PlanCallback is called once the outline has produced the task queue
type PlanCallback func(state *types.PipelineState)

// Decomposer turns raw competency text into coded competencies
type Decomposer interface {
	Decompose(ctx context.Context, competenciesRaw string) ([]types.CompetencyItem, error)
}

// Checkpointer persists run state. Failures are logged, never fatal.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, state *types.PipelineState) error
}

// Options configures an Orchestrator
type Options struct {
	OnProgress   ProgressCallback
	OnPlanned    PlanCallback
	Checkpointer Checkpointer
	// ContextMaxBytes bounds the prior-sections block; 0 means unlimited
	ContextMaxBytes int
	Logger          *zap.Logger
	Recorder        metrics.Recorder
}

// Orchestrator owns one run's PipelineState and drives its queue one task at a time
type Orchestrator struct {
	generator  generation.SectionGenerator
	decomposer Decomposer
	opts       Options
	log        *zap.Logger

	mu      sync.Mutex
	running bool
	state   *types.PipelineState
	acc     *Accumulator
}

// New creates an idle orchestrator for input with a fresh run ID
func New(generator generation.SectionGenerator, decomposer Decomposer, input types.GenerationInput, opts Options) *Orchestrator {
	state := &types.PipelineState{
		RunID:  uuid.New().String(),
		Input:  input,
		Status: types.RunIdle,
	}
	return newOrchestrator(generator, decomposer, state, opts)
}

// FromState recreates an orchestrator from a persisted state so that the run
// can be resumed. A state saved as running (the process died mid-run) is
// treated as paused.
func FromState(generator generation.SectionGenerator, decomposer Decomposer, state *types.PipelineState, opts Options) (*Orchestrator, error) {
	if state == nil {
		return nil, errors.New("pipeline state is nil")
	}
	if state.Status == types.RunCompleted {
		return nil, &StatusError{Op: "resume", Status: state.Status}
	}
	s := state.Clone()
	if s.RunID == "" {
		s.RunID = uuid.New().String()
	}
	if s.Status == types.RunRunning {
		s.Status = types.RunPaused
	}
	return newOrchestrator(generator, decomposer, s, opts), nil
}

func newOrchestrator(generator generation.SectionGenerator, decomposer Decomposer, state *types.PipelineState, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Recorder = metrics.OrNoop(opts.Recorder)
	return &Orchestrator{
		generator:  generator,
		decomposer: decomposer,
		opts:       opts,
		log:        opts.Logger.With(zap.String("run_id", state.RunID)),
		state:      state,
		acc:        RestoreAccumulator(state.ContextLog, opts.ContextMaxBytes),
	}
}

// RunID returns the run's identifier
func (o *Orchestrator) RunID() string {
	return o.state.RunID
}

// State returns a snapshot of the run state
func (o *Orchestrator) State() *types.PipelineState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Run starts an idle run. It returns the assembled document on completion,
// a *PausedError when a task exhausted its attempts, or an *AbortedError on
// cancellation or classification failure.
func (o *Orchestrator) Run(ctx context.Context) (*types.OutputDocument, error) {
	return o.start(ctx, "run", func(s types.RunStatus) bool { return s == types.RunIdle })
}

// Resume continues a paused or aborted run from its first remaining task.
// Completed sections are never regenerated.
func (o *Orchestrator) Resume(ctx context.Context) (*types.OutputDocument, error) {
	return o.start(ctx, "resume", types.RunStatus.Resumable)
}

func (o *Orchestrator) start(ctx context.Context, op string, allowed func(types.RunStatus) bool) (*types.OutputDocument, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	if !allowed(o.state.Status) {
		status := o.state.Status
		o.mu.Unlock()
		return nil, &StatusError{Op: op, Status: status}
	}
	o.running = true
	o.state.Status = types.RunRunning
	o.state.LastError = ""
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.log.Info("run started", zap.String("op", op), zap.Int("completed", len(o.state.Completed)))
	o.checkpoint(ctx)

	started := time.Now()
	doc, err := o.loop(ctx)
	o.opts.Recorder.ObserveRunDuration(time.Since(started))
	o.opts.Recorder.IncRunOutcome(string(o.State().Status))
	return doc, err
}

func (o *Orchestrator) loop(ctx context.Context) (*types.OutputDocument, error) {
	if !o.state.Planned() {
		if err := o.plan(ctx); err != nil {
			return nil, o.abort(ctx, err)
		}
	}

	for {
		task, ok := o.state.NextTask()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, o.abort(ctx, err)
		}

		result, err := o.generator.Generate(ctx, task, o.acc.Snapshot())
		if err == nil && result.SectionType() != task.Type {
			err = fmt.Errorf("generator returned %s for %s", result.SectionType(), task)
		}
		if err != nil {
			return nil, o.pause(ctx, task, err)
		}
		o.commit(ctx, task, result)
	}

	o.mu.Lock()
	o.state.Status = types.RunCompleted
	doc := rendering.Assemble(o.state.Input.DocumentTitle(), o.state.Completed)
	o.mu.Unlock()

	o.checkpoint(ctx)
	o.log.Info("run completed", zap.Int("sections", len(o.state.Completed)), zap.Int("blocks", len(doc.Blocks)))
	return doc, nil
}

func (o *Orchestrator) plan(ctx context.Context) error {
	items, err := o.decomposer.Decompose(ctx, o.state.Input.CompetenciesRaw)
	if err != nil {
		return err
	}
	queue := outline.BuildQueue(items)

	o.mu.Lock()
	o.state.Competencies = items
	o.state.Remaining = queue
	o.state.TotalTasks = len(queue)
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.log.Info("outline planned", zap.Int("competencies", len(items)), zap.Int("tasks", len(queue)))
	o.checkpoint(ctx)
	if o.opts.OnPlanned != nil {
		o.opts.OnPlanned(snapshot)
	}
	return nil
}

// commit records a successful task: completed grows, remaining shrinks
func (o *Orchestrator) commit(ctx context.Context, task types.SectionTask, result types.SectionResult) {
	o.mu.Lock()
	o.state.Completed = append(o.state.Completed, result)
	o.state.Remaining = append([]types.SectionTask(nil), o.state.Remaining[1:]...)
	o.acc.Append(result)
	o.state.ContextLog = o.acc.Entries()
	event := ProgressEvent{
		RunID:     o.state.RunID,
		Completed: len(o.state.Completed),
		Total:     o.state.TotalTasks,
		Section:   task.Type,
		Task:      task.String(),
	}
	o.mu.Unlock()

	o.checkpoint(ctx)
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(event)
	}
}

func (o *Orchestrator) pause(ctx context.Context, task types.SectionTask, cause error) error {
	o.mu.Lock()
	o.state.Status = types.RunPaused
	o.state.LastError = cause.Error()
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.log.Warn("run paused", zap.String("task", task.String()), zap.Int("at_task", snapshot.AtTask()), zap.Error(cause))
	o.checkpoint(ctx)
	return &PausedError{State: snapshot, AtTask: snapshot.AtTask(), Task: task, Cause: cause}
}

func (o *Orchestrator) abort(ctx context.Context, cause error) error {
	o.mu.Lock()
	o.state.Status = types.RunAborted
	o.state.LastError = cause.Error()
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.log.Warn("run aborted", zap.Int("completed", len(snapshot.Completed)), zap.Error(cause))
	o.checkpoint(ctx)
	return &AbortedError{State: snapshot, Cause: cause}
}

func (o *Orchestrator) checkpoint(ctx context.Context) {
	if o.opts.Checkpointer == nil {
		return
	}
	state := o.State()
	if err := o.opts.Checkpointer.SaveCheckpoint(context.WithoutCancel(ctx), state); err != nil {
		o.log.Warn("failed to save checkpoint", zap.String("status", string(state.Status)), zap.Error(err))
	}
}
