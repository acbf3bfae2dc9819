package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/llm/llmtest"
	"github.com/jonathan/unit-planner/internal/types"
)

var cellItems = []types.CompetencyItem{
	{Code: "A1", Text: "Identify parts of a cell", Category: types.CategoryAcquisition},
	{Code: "M1", Text: "Explain cell function", Category: types.CategoryMeaningMaking},
	{Code: "T1", Text: "Design a model cell", Category: types.CategoryTransfer},
}

func cellInput() types.GenerationInput {
	return types.GenerationInput{
		ContentStandard:     "Cells",
		PerformanceStandard: "Model a cell",
		CompetenciesRaw:     "Identify parts of a cell\nExplain cell function\nDesign a model cell",
		SourceTitles:        []string{"Unit: Cells"},
		Language:            types.LanguagePrimary,
		UnitTitle:           "Cells",
	}
}

type fakeDecomposer struct {
	items []types.CompetencyItem
	err   error
	calls int
}

func (d *fakeDecomposer) Decompose(context.Context, string) ([]types.CompetencyItem, error) {
	d.calls++
	return d.items, d.err
}

type genCall struct {
	Task  string
	Prior string
}

// fakeGenerator returns a deterministic section per task. failures holds the
// number of times a task label fails before succeeding.
type fakeGenerator struct {
	mu       sync.Mutex
	calls    []genCall
	failures map[string]int
	onCall   func(n int)
	block    chan struct{}
}

func (f *fakeGenerator) Generate(_ context.Context, task types.SectionTask, prior string) (types.SectionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, genCall{Task: task.String(), Prior: prior})
	n := len(f.calls)
	fail := f.failures[task.String()] > 0
	if fail {
		f.failures[task.String()]--
	}
	onCall, block := f.onCall, f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if onCall != nil {
		onCall(n)
	}
	if fail {
		t := task
		return nil, &generation.GenerationExhaustedError{
			Label:     task.String(),
			Task:      &t,
			Attempts:  3,
			LastStage: generation.StageValidating,
			LastError: errors.New("missing required keys: templates"),
		}
	}

	code := ""
	if task.Competency != nil {
		code = task.Competency.Code
	}
	obj := llmtest.SectionObject(task.Type, code)
	if task.Competency != nil {
		obj["competency"] = task.Competency.Text
	}
	return types.DecodeSectionObject(task.Type, obj)
}

func (f *fakeGenerator) Calls() []genCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]genCall(nil), f.calls...)
}

type memoryCheckpointer struct {
	mu     sync.Mutex
	saves  []*types.PipelineState
	failed bool
}

func (m *memoryCheckpointer) SaveCheckpoint(_ context.Context, state *types.PipelineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return errors.New("disk full")
	}
	m.saves = append(m.saves, state)
	return nil
}

func (m *memoryCheckpointer) Last() *types.PipelineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func taskLabels(calls []genCall) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Task
	}
	return out
}
