package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/unit-planner/internal/db"
	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/llm"
	"github.com/jonathan/unit-planner/internal/llm/llmtest"
	"github.com/jonathan/unit-planner/internal/pipeline"
	"github.com/jonathan/unit-planner/internal/schemas"
	"github.com/jonathan/unit-planner/internal/server/ratelimit"
	"github.com/jonathan/unit-planner/internal/types"
)

// memStore is an in-memory Store
type memStore struct {
	mu      sync.Mutex
	states  map[uuid.UUID]*types.PipelineState
	docs    map[uuid.UUID]*types.OutputDocument
	created map[uuid.UUID]time.Time
	saves   int
}

func newMemStore() *memStore {
	return &memStore{
		states:  make(map[uuid.UUID]*types.PipelineState),
		docs:    make(map[uuid.UUID]*types.OutputDocument),
		created: make(map[uuid.UUID]time.Time),
	}
}

func (m *memStore) SaveCheckpoint(_ context.Context, state *types.PipelineState) error {
	id, err := uuid.Parse(state.RunID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.states[id] = state.Clone()
	if _, ok := m.created[id]; !ok {
		m.created[id] = time.Now()
	}
	return nil
}

func (m *memStore) LoadCheckpoint(_ context.Context, runID uuid.UUID) (*types.PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[runID].Clone(), nil
}

func (m *memStore) SaveDocument(_ context.Context, runID uuid.UUID, doc *types.OutputDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[runID]; !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	m.docs[runID] = doc
	return nil
}

func (m *memStore) GetDocument(_ context.Context, runID uuid.UUID) (*types.OutputDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[runID], nil
}

func (m *memStore) run(id uuid.UUID) *db.Run {
	s := m.states[id]
	return &db.Run{
		ID:             id,
		UnitTitle:      s.Input.UnitTitle,
		Language:       string(s.Input.Language),
		Status:         string(s.Status),
		TotalTasks:     s.TotalTasks,
		CompletedTasks: len(s.Completed),
		LastError:      s.LastError,
		CreatedAt:      m.created[id],
		UpdatedAt:      m.created[id],
	}
}

func (m *memStore) GetRun(_ context.Context, runID uuid.UUID) (*db.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[runID]; !ok {
		return nil, nil
	}
	return m.run(runID), nil
}

func (m *memStore) ListRuns(_ context.Context, filters db.RunFilters) ([]db.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []db.Run
	for id, s := range m.states {
		if filters.Status != "" && string(s.Status) != filters.Status {
			continue
		}
		runs = append(runs, *m.run(id))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if filters.Limit > 0 && len(runs) > filters.Limit {
		runs = runs[:filters.Limit]
	}
	return runs, nil
}

func (m *memStore) DeleteRun(_ context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, runID)
	delete(m.docs, runID)
	return nil
}

func (m *memStore) state(t *testing.T, runID string) *types.PipelineState {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[uuid.MustParse(runID)]
	require.True(t, ok, "no state for %s", runID)
	return s.Clone()
}

const cellsInput = `{
	"content_standard": "The learners demonstrate understanding of cell structure.",
	"performance_standard": "The learners design a model cell.",
	"competencies_raw": "Identify parts of a cell\nExplain osmosis\nDesign a model cell",
	"source_titles": ["Unit: Cells", "- Lesson 1: Cell Parts"],
	"language": "primary",
	"unit_title": "Cells"
}`

// failingSection makes every prompt for one section type fail while set
type failingSection struct {
	section types.SectionType
	on      atomic.Bool
}

type testServer struct {
	*Server
	store  *memStore
	client *llmtest.Client
	fail   *failingSection
}

func newTestServer(t *testing.T, rl *ratelimit.Config) *testServer {
	t.Helper()
	if rl == nil {
		rl = &ratelimit.Config{Enabled: false}
	}
	store := newMemStore()
	fail := &failingSection{section: types.SectionTransfer}
	respond := llmtest.SectionResponder(llmtest.OutlineJSON(
		[]string{"Identify parts of a cell"},
		[]string{"Explain osmosis"},
		[]string{"Design a model cell"},
	))
	client := llmtest.New()
	client.Respond = func(prompt string, opts llm.Options) (string, error) {
		if sec, _ := llmtest.SectionTypeOf(prompt); fail.on.Load() && sec == fail.section && !strings.Contains(prompt, "curriculum mapper") {
			return "", &llm.GenerationError{Message: "service unavailable"}
		}
		return respond(prompt, opts)
	}

	s, err := New(Config{
		Store:  store,
		Client: client,
		Generation: generation.Options{
			Sleep: func(context.Context, time.Duration) error { return nil },
		},
		RateLimit: rl,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &testServer{Server: s, store: store, client: client, fail: fail}
}

func (ts *testServer) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:1234"
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

type sseEvent struct {
	Name string
	Data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, chunk := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(chunk, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.Name != "" {
			events = append(events, ev)
		}
	}
	return events
}

func eventNames(events []sseEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func decodeEvent[T any](t *testing.T, ev sseEvent) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &out))
	return out
}

func countPrompts(client *llmtest.Client, section types.SectionType) int {
	n := 0
	for _, p := range client.Prompts() {
		if sec, _ := llmtest.SectionTypeOf(p); sec == section && !strings.Contains(p, "curriculum mapper") {
			n++
		}
	}
	return n
}

func TestNew_RequiresStoreAndClient(t *testing.T) {
	_, err := New(Config{Client: llmtest.New()})
	assert.Error(t, err)
	_, err = New(Config{Store: newMemStore()})
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRunStream_Completes(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/runs/stream", cellsInput, "Content-Type", "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	names := eventNames(events)
	require.Len(t, names, 10)
	assert.Equal(t, "started", names[0])
	assert.Equal(t, "planned", names[1])
	for _, n := range names[2:9] {
		assert.Equal(t, "progress", n)
	}
	assert.Equal(t, "complete", names[9])

	plan := decodeEvent[PlanEvent](t, events[1])
	assert.Equal(t, 7, plan.TotalTasks)
	require.Len(t, plan.Competencies, 3)
	assert.Equal(t, "A1", plan.Competencies[0].Code)

	first := decodeEvent[pipeline.ProgressEvent](t, events[2])
	assert.Equal(t, 1, first.Completed)
	assert.Equal(t, 7, first.Total)
	assert.Equal(t, types.SectionExplore, first.Section)

	done := decodeEvent[OutcomeEvent](t, events[9])
	assert.Equal(t, "completed", done.Status)
	require.NotNil(t, done.Document)
	assert.Equal(t, "ULP: Cells", done.Document.Title)

	state := ts.store.state(t, done.RunID)
	assert.Equal(t, types.RunCompleted, state.Status)
	assert.Len(t, state.Completed, 7)

	// The stored document is served in every format
	w = ts.do(http.MethodGet, "/runs/"+done.RunID+"/document", "")
	require.Equal(t, http.StatusOK, w.Code)
	var doc types.OutputDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, done.Document.Blocks, doc.Blocks)

	w = ts.do(http.MethodGet, "/runs/"+done.RunID+"/document?format=html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Learning Focus")

	w = ts.do(http.MethodGet, "/runs/"+done.RunID+"/document?format=markdown", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "# ULP: Cells"))

	w = ts.do(http.MethodGet, "/runs/"+done.RunID+"/document?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRun_Background(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/runs", cellsInput)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
	_, err := uuid.Parse(resp.RunID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		doc, _ := ts.store.GetDocument(context.Background(), uuid.MustParse(resp.RunID))
		return doc != nil
	}, 5*time.Second, 10*time.Millisecond)

	w = ts.do(http.MethodGet, "/runs/"+resp.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, 7, status.CompletedTasks)
	assert.Equal(t, "Cells", status.UnitTitle)
}

func TestRunStream_PausesThenResumes(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.fail.on.Store(true)

	w := ts.do(http.MethodPost, "/runs/stream", cellsInput)
	events := parseSSE(t, w.Body.String())
	last := events[len(events)-1]
	require.Equal(t, "paused", last.Name)

	paused := decodeEvent[OutcomeEvent](t, last)
	assert.Equal(t, "paused", paused.Status)
	assert.Equal(t, 3, paused.AtTask)
	assert.Equal(t, "transfer(T1)", paused.Task)
	assert.Contains(t, paused.Error, "service unavailable")
	assert.Equal(t, generation.DefaultMaxAttempts, countPrompts(ts.client, types.SectionTransfer))

	state := ts.store.state(t, paused.RunID)
	assert.Equal(t, types.RunPaused, state.Status)
	assert.Len(t, state.Completed, 3)

	w = ts.do(http.MethodGet, "/runs/"+paused.RunID+"/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var persisted types.PipelineState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &persisted))
	assert.Len(t, persisted.Remaining, 4)

	firmUpCalls := countPrompts(ts.client, types.SectionFirmUp)
	ts.fail.on.Store(false)

	w = ts.do(http.MethodPost, "/runs/"+paused.RunID+"/resume", "", "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, w.Code)
	events = parseSSE(t, w.Body.String())
	names := eventNames(events)
	assert.Equal(t, []string{"started", "progress", "progress", "progress", "progress", "complete"}, names)

	resumed := decodeEvent[pipeline.ProgressEvent](t, events[1])
	assert.Equal(t, 4, resumed.Completed)
	assert.Equal(t, "transfer(T1)", resumed.Task)

	// Completed sections were not regenerated
	assert.Equal(t, firmUpCalls, countPrompts(ts.client, types.SectionFirmUp))

	done := decodeEvent[OutcomeEvent](t, events[len(events)-1])
	assert.Equal(t, paused.RunID, done.RunID)
	assert.Equal(t, types.RunCompleted, ts.store.state(t, done.RunID).Status)

	// A completed run cannot be resumed
	w = ts.do(http.MethodPost, "/runs/"+paused.RunID+"/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResume_Background(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.fail.on.Store(true)

	w := ts.do(http.MethodPost, "/runs/stream", cellsInput)
	events := parseSSE(t, w.Body.String())
	paused := decodeEvent[OutcomeEvent](t, events[len(events)-1])
	require.Equal(t, "paused", paused.Status)
	ts.fail.on.Store(false)

	w = ts.do(http.MethodPost, "/runs/"+paused.RunID+"/resume", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		doc, _ := ts.store.GetDocument(context.Background(), uuid.MustParse(paused.RunID))
		return doc != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestResume_ActiveRunConflicts(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.fail.on.Store(true)

	w := ts.do(http.MethodPost, "/runs/stream", cellsInput)
	events := parseSSE(t, w.Body.String())
	paused := decodeEvent[OutcomeEvent](t, events[len(events)-1])

	require.True(t, ts.active.acquire(paused.RunID))
	defer ts.active.release(paused.RunID)

	w = ts.do(http.MethodPost, "/runs/"+paused.RunID+"/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodDelete, "/runs/"+paused.RunID, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRun_InvalidInput(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{ invalid json }`},
		{name: "missing keys", body: `{"content_standard": "cs", "language": "primary"}`},
		{name: "bad language", body: `{"content_standard": "cs", "performance_standard": "ps", "competencies_raw": "x", "language": "latin"}`},
		{name: "blank competencies", body: `{"content_standard": "cs", "performance_standard": "ps", "competencies_raw": " - ", "language": "primary"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
	assert.Empty(t, ts.client.Calls())
}

func TestRun_YAMLInput(t *testing.T) {
	ts := newTestServer(t, nil)

	body := "content_standard: cs\nperformance_standard: ps\ncompetencies_raw: Identify parts of a cell\nlanguage: primary\n"
	w := ts.do(http.MethodPost, "/runs", body, "Content-Type", "application/yaml")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRunEndpoints_InvalidID(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/runs/not-a-uuid", "/runs/not-a-uuid/state", "/runs/not-a-uuid/document"} {
		w := ts.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
	w := ts.do(http.MethodPost, "/runs/not-a-uuid/resume", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodDelete, "/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunEndpoints_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	id := uuid.New().String()

	for _, path := range []string{"/runs/" + id, "/runs/" + id + "/state", "/runs/" + id + "/document"} {
		w := ts.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := ts.do(http.MethodPost, "/runs/"+id+"/resume", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodDelete, "/runs/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAndDeleteRuns(t *testing.T) {
	ts := newTestServer(t, nil)

	var ids []string
	for i := 0; i < 2; i++ {
		w := ts.do(http.MethodPost, "/runs/stream", cellsInput)
		events := parseSSE(t, w.Body.String())
		ids = append(ids, decodeEvent[OutcomeEvent](t, events[len(events)-1]).RunID)
	}

	w := ts.do(http.MethodGet, "/runs?status=completed", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs  []StatusResponse `json:"runs"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	w = ts.do(http.MethodGet, "/runs?limit=1", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = ts.do(http.MethodGet, "/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodDelete, "/runs/"+ids[0], "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(http.MethodGet, "/runs/"+ids[0], "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenderEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	doc := types.OutputDocument{
		Title: "ULP: Cells",
		Blocks: []types.Block{
			{Section: types.SectionExplore, Column: types.ColumnFull, Heading: "Explore", Body: "**Hook** the class"},
		},
	}
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	w := ts.do(http.MethodPost, "/render", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>Hook</strong>")

	w = ts.do(http.MethodPost, "/render?format=markdown", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "### Explore")

	w = ts.do(http.MethodPost, "/render", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/runs/stream", cellsInput)

	w := ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ulp_sections_completed_total")
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(),
	})

	for i := 0; i < 2; i++ {
		w := ts.do(http.MethodPost, "/runs", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(http.MethodPost, "/runs", `{}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp["error"])

	// Health checks are never limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "").Code)
	}
}

func TestCORSMiddleware_OPTIONS(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodOptions, "/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()

	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.WriteEvent("progress", map[string]int{"completed": 1}))
	sse.WriteError("boom")

	body := w.Body.Bytes()
	assert.True(t, bytes.Contains(body, []byte("id: 1\nevent: progress\ndata: {\"completed\":1}\n\n")))
	assert.True(t, bytes.Contains(body, []byte("id: 2\nevent: error\n")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ErrRunNotFound{RunID: "x"}, http.StatusNotFound},
		{&ErrRunActive{RunID: "x"}, http.StatusConflict},
		{&pipeline.StatusError{Op: "resume", Status: types.RunCompleted}, http.StatusConflict},
		{pipeline.ErrAlreadyRunning, http.StatusConflict},
		{&ErrValidation{Field: "id", Message: "bad"}, http.StatusBadRequest},
		{&schemas.SchemaViolationError{Schema: "generation_input", MissingKeys: []string{"language"}}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", &ErrRunNotFound{RunID: "x"}), http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
