package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/llm/llmtest"
	"github.com/jonathan/unit-planner/internal/outline"
	"github.com/jonathan/unit-planner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullQueue = []string{"explore", "firmUp(A1)", "deepen(M1)", "transfer(T1)", "synthesis", "performanceTask", "values"}

func TestRun_Completes(t *testing.T) {
	gen := &fakeGenerator{}
	var events []ProgressEvent
	var planned *types.PipelineState
	store := &memoryCheckpointer{}
	o := New(gen, &fakeDecomposer{items: cellItems}, cellInput(), Options{
		OnProgress:   func(e ProgressEvent) { events = append(events, e) },
		OnPlanned:    func(s *types.PipelineState) { planned = s },
		Checkpointer: store,
	})

	doc, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "ULP: Cells", doc.Title)
	assert.NotEmpty(t, doc.Blocks)

	assert.Equal(t, fullQueue, taskLabels(gen.Calls()))
	require.Len(t, events, 7)
	for i, e := range events {
		assert.Equal(t, i+1, e.Completed)
		assert.Equal(t, 7, e.Total)
		assert.Equal(t, fullQueue[i], e.Task)
		assert.Equal(t, o.RunID(), e.RunID)
	}

	require.NotNil(t, planned)
	assert.Equal(t, 7, planned.TotalTasks)
	assert.Len(t, planned.Competencies, 3)

	state := o.State()
	assert.Equal(t, types.RunCompleted, state.Status)
	assert.Len(t, state.Completed, 7)
	assert.Empty(t, state.Remaining)
	assert.Len(t, state.ContextLog, 7)
	assert.Equal(t, types.RunCompleted, store.Last().Status)
}

func TestRun_ThreadsContext(t *testing.T) {
	gen := &fakeGenerator{}
	o := New(gen, &fakeDecomposer{items: cellItems}, cellInput(), Options{})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	calls := gen.Calls()
	assert.Empty(t, calls[0].Prior)
	assert.Contains(t, calls[1].Prior, "[explore] ")
	assert.Contains(t, calls[2].Prior, "[firmUp A1] ")
	assert.NotContains(t, calls[2].Prior, "[deepen")
	assert.Contains(t, calls[6].Prior, "[performanceTask] ")
}

func TestRun_PausesAndResumes(t *testing.T) {
	gen := &fakeGenerator{failures: map[string]int{"deepen(M1)": 1}}
	store := &memoryCheckpointer{}
	var events []ProgressEvent
	o := New(gen, &fakeDecomposer{items: cellItems}, cellInput(), Options{
		Checkpointer: store,
		OnProgress:   func(e ProgressEvent) { events = append(events, e) },
	})

	_, err := o.Run(context.Background())
	var paused *PausedError
	require.ErrorAs(t, err, &paused)
	assert.Equal(t, 2, paused.AtTask)
	assert.Equal(t, "deepen(M1)", paused.Task.String())
	assert.Len(t, paused.State.Completed, 2)
	assert.Equal(t, types.RunPaused, paused.State.Status)
	assert.Contains(t, paused.State.LastError, "missing required keys")

	var exhausted *generation.GenerationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, types.RunPaused, store.Last().Status)
	assert.Len(t, events, 2, "no progress for the failed task")

	doc, err := o.Resume(context.Background())
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, append(append([]string{}, fullQueue[:3]...), fullQueue[2:]...), taskLabels(gen.Calls()),
		"completed tasks are not regenerated")
	assert.Len(t, events, 7)
	assert.Empty(t, o.State().LastError)
}

func TestResume_MatchesUninterruptedRun(t *testing.T) {
	straight := New(&fakeGenerator{}, &fakeDecomposer{items: cellItems}, cellInput(), Options{})
	want, err := straight.Run(context.Background())
	require.NoError(t, err)

	interrupted := New(&fakeGenerator{failures: map[string]int{"synthesis": 1}}, &fakeDecomposer{items: cellItems}, cellInput(), Options{})
	_, err = interrupted.Run(context.Background())
	require.Error(t, err)
	got, err := interrupted.Resume(context.Background())
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, straight.State().Completed, interrupted.State().Completed)
}

func TestRun_CancelledBetweenTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &fakeGenerator{}
	o := New(gen, &fakeDecomposer{items: cellItems}, cellInput(), Options{
		OnProgress: func(e ProgressEvent) {
			if e.Completed == 2 {
				cancel()
			}
		},
	})

	_, err := o.Run(ctx)
	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, aborted.State.Completed, 2)
	assert.Equal(t, types.RunAborted, o.State().Status)
	assert.Len(t, gen.Calls(), 2)

	doc, err := o.Resume(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Len(t, gen.Calls(), 7)
}

func TestRun_CancelledAfterLastTaskCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &memoryCheckpointer{}
	o := New(&fakeGenerator{}, &fakeDecomposer{items: cellItems}, cellInput(), Options{
		Checkpointer: store,
		OnProgress: func(e ProgressEvent) {
			if e.Completed == e.Total {
				cancel()
			}
		},
	})

	doc, err := o.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, types.RunCompleted, o.State().Status)
	assert.Empty(t, o.State().Remaining)
	assert.Equal(t, types.RunCompleted, store.Last().Status)
}

func TestRun_ClassificationFailure(t *testing.T) {
	gen := &fakeGenerator{}
	failure := &outline.ClassificationFailedError{Message: "outline generation failed"}
	o := New(gen, &fakeDecomposer{err: failure}, cellInput(), Options{})

	_, err := o.Run(context.Background())
	var aborted *AbortedError
	require.ErrorAs(t, err, &aborted)
	var classification *outline.ClassificationFailedError
	require.ErrorAs(t, err, &classification)
	assert.Empty(t, gen.Calls())
	assert.False(t, aborted.State.Planned())
}

func TestRun_StatusErrors(t *testing.T) {
	o := New(&fakeGenerator{}, &fakeDecomposer{items: cellItems}, cellInput(), Options{})

	_, err := o.Resume(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, types.RunIdle, statusErr.Status)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.ErrorAs(t, err, &statusErr)
	_, err = o.Resume(context.Background())
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "cannot resume a completed run", statusErr.Error())
}

func TestRun_AlreadyRunning(t *testing.T) {
	gen := &fakeGenerator{block: make(chan struct{})}
	o := New(gen, &fakeDecomposer{items: cellItems}, cellInput(), Options{})

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return len(gen.Calls()) == 1 }, time.Second, time.Millisecond)
	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, types.RunRunning, o.State().Status)

	close(gen.block)
	require.NoError(t, <-done)
}

func TestRun_CheckpointFailureIsNotFatal(t *testing.T) {
	o := New(&fakeGenerator{}, &fakeDecomposer{items: cellItems}, cellInput(), Options{
		Checkpointer: &memoryCheckpointer{failed: true},
	})
	_, err := o.Run(context.Background())
	require.NoError(t, err)
}

func TestFromState(t *testing.T) {
	gen := &fakeGenerator{failures: map[string]int{"values": 1}}
	first := New(gen, &fakeDecomposer{items: cellItems}, cellInput(), Options{})
	_, err := first.Run(context.Background())
	require.Error(t, err)

	// Round trip through JSON as a persisted checkpoint would.
	data, err := json.Marshal(first.State())
	require.NoError(t, err)
	var saved types.PipelineState
	require.NoError(t, json.Unmarshal(data, &saved))
	saved.Status = types.RunRunning

	decomposer := &fakeDecomposer{items: cellItems}
	resumed, err := FromState(gen, decomposer, &saved, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.RunID(), resumed.RunID())
	assert.Equal(t, types.RunPaused, resumed.State().Status)

	doc, err := resumed.Resume(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Zero(t, decomposer.calls, "outline is not rebuilt")
	assert.Len(t, resumed.State().ContextLog, 7)

	completed := resumed.State()
	_, err = FromState(gen, decomposer, completed, Options{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)

	_, err = FromState(gen, decomposer, nil, Options{})
	assert.Error(t, err)
}

func TestRun_EndToEndWithScriptedService(t *testing.T) {
	client := llmtest.New()
	client.Respond = llmtest.SectionResponder(llmtest.OutlineJSON(
		[]string{"Identify parts of a cell"},
		[]string{"Explain cell function"},
		[]string{"Design a model cell"},
	))
	input := cellInput()
	gen := generation.New(client, &input, generation.Options{
		Sleep: func(context.Context, time.Duration) error { return nil },
	})
	o := New(gen, outline.NewDecomposer(gen), input, Options{})

	doc, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, client.Calls(), 8, "one outline call and one call per section")

	var sections []types.SectionType
	for _, r := range o.State().Completed {
		sections = append(sections, r.SectionType())
	}
	assert.Equal(t, types.SectionTypes, sections)
	assert.Equal(t, "Acquisition - A1", doc.Blocks[1].Heading)
}
