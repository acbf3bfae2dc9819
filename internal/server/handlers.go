package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/unit-planner/internal/db"
	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/ingestion"
	"github.com/jonathan/unit-planner/internal/outline"
	"github.com/jonathan/unit-planner/internal/pipeline"
	"github.com/jonathan/unit-planner/internal/rendering"
	"github.com/jonathan/unit-planner/internal/types"
)

// maxBodyBytes bounds request bodies (inputs and documents)
const maxBodyBytes = 1 << 20

// RunResponse represents the response for starting or resuming a run
type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// StatusResponse represents the response for GET /runs/{id}
type StatusResponse struct {
	RunID          string `json:"run_id"`
	UnitTitle      string `json:"unit_title"`
	Language       string `json:"language"`
	Status         string `json:"status"`
	CompletedTasks int    `json:"completed_tasks"`
	TotalTasks     int    `json:"total_tasks"`
	LastError      string `json:"last_error,omitempty"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// PlanEvent is streamed once the outline has produced the task queue
type PlanEvent struct {
	RunID        string                 `json:"run_id"`
	TotalTasks   int                    `json:"total_tasks"`
	Competencies []types.CompetencyItem `json:"competencies"`
}

// OutcomeEvent is the final event of a streamed run
type OutcomeEvent struct {
	RunID      string                `json:"run_id"`
	Status     string                `json:"status"`
	AtTask     int                   `json:"at_task"`
	TotalTasks int                   `json:"total_tasks,omitempty"`
	Task       string                `json:"task,omitempty"`
	Error      string                `json:"error,omitempty"`
	Document   *types.OutputDocument `json:"document,omitempty"`
}

func toStatusResponse(run *db.Run, active bool) StatusResponse {
	resp := StatusResponse{
		RunID:          run.ID.String(),
		UnitTitle:      run.UnitTitle,
		Language:       run.Language,
		Status:         run.Status,
		CompletedTasks: run.CompletedTasks,
		TotalTasks:     run.TotalTasks,
		LastError:      run.LastError,
		Active:         active,
		CreatedAt:      run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      run.UpdatedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// decodeInput reads a GenerationInput body; it is schema-checked, normalized and validated
func decodeInput(r *http.Request) (*types.GenerationInput, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, &ErrValidation{Field: "body", Message: err.Error()}
	}
	ext := ".json"
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
		ext = ".yaml"
	}
	in, err := ingestion.DecodeInput(ext, body)
	if err != nil {
		return nil, &ingestion.InputError{Path: "request body", Message: "invalid input", Cause: err}
	}
	return in, nil
}

// parseRunID reads the {id} path value
func parseRunID(r *http.Request) (uuid.UUID, error) {
	idStr := r.PathValue("id")
	if idStr == "" {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "run ID is required"}
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "invalid run ID format"}
	}
	return id, nil
}

// wantsStream reports whether the client asked for Server-Sent Events
func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") || r.URL.Query().Get("stream") == "true"
}

// streamOptions wires orchestrator callbacks to an SSE stream
func (s *Server) streamOptions(sse *SSEWriter, runID *string) pipeline.Options {
	opts := s.pipelineOptions()
	opts.OnPlanned = func(state *types.PipelineState) {
		if err := sse.WriteEvent("planned", PlanEvent{
			RunID:        state.RunID,
			TotalTasks:   state.TotalTasks,
			Competencies: state.Competencies,
		}); err != nil {
			s.logger.Debug("SSE write failed", zap.String("run_id", *runID), zap.Error(err))
		}
	}
	opts.OnProgress = func(event pipeline.ProgressEvent) {
		if err := sse.WriteEvent("progress", event); err != nil {
			s.logger.Debug("SSE write failed", zap.String("run_id", *runID), zap.Error(err))
		}
	}
	return opts
}

func (s *Server) pipelineOptions() pipeline.Options {
	return pipeline.Options{
		Checkpointer:    s.store,
		ContextMaxBytes: s.contextMax,
		Logger:          s.logger,
		Recorder:        s.recorder,
	}
}

// components builds the generator and decomposer for one run's input
func (s *Server) components(input types.GenerationInput) (*generation.Generator, *outline.Decomposer) {
	in := input
	gen := generation.New(s.client, &in, s.genOpts)
	return gen, outline.NewDecomposer(gen)
}

// execute drives orch to a terminal status and stores the document on completion
func (s *Server) execute(ctx context.Context, orch *pipeline.Orchestrator) (*types.OutputDocument, error) {
	var (
		doc *types.OutputDocument
		err error
	)
	if orch.State().Status == types.RunIdle {
		doc, err = orch.Run(ctx)
	} else {
		doc, err = orch.Resume(ctx)
	}
	if err != nil {
		s.logger.Warn("run stopped", zap.String("run_id", orch.RunID()), zap.Error(err))
		return nil, err
	}

	id, perr := uuid.Parse(orch.RunID())
	if perr != nil {
		return doc, perr
	}
	if serr := s.store.SaveDocument(context.WithoutCancel(ctx), id, doc); serr != nil {
		s.logger.Error("failed to save document", zap.String("run_id", orch.RunID()), zap.Error(serr))
	}
	return doc, nil
}

// outcome converts the result of execute into the final stream event
func outcome(runID string, doc *types.OutputDocument, err error) (string, OutcomeEvent) {
	event := OutcomeEvent{RunID: runID}
	var (
		paused  *pipeline.PausedError
		aborted *pipeline.AbortedError
	)
	switch {
	case err == nil:
		event.Status = string(types.RunCompleted)
		event.Document = doc
		return "complete", event
	case errors.As(err, &paused):
		event.Status = string(types.RunPaused)
		event.AtTask = paused.AtTask
		event.TotalTasks = paused.State.TotalTasks
		event.Task = paused.Task.String()
		event.Error = paused.Cause.Error()
		return "paused", event
	case errors.As(err, &aborted):
		event.Status = string(types.RunAborted)
		event.TotalTasks = aborted.State.TotalTasks
		event.Error = aborted.Cause.Error()
		return "aborted", event
	default:
		event.Status = "error"
		event.Error = err.Error()
		return "error", event
	}
}

// start launches orch in the background (202) or streams it (SSE) depending on the request
func (s *Server) start(w http.ResponseWriter, r *http.Request, build func(opts pipeline.Options) (*pipeline.Orchestrator, error), stream bool) {
	if !stream {
		orch, err := build(s.pipelineOptions())
		if err != nil {
			s.errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
		runID := orch.RunID()
		if !s.active.acquire(runID) {
			s.errorResponse(w, http.StatusConflict, (&ErrRunActive{RunID: runID}).Error())
			return
		}
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			defer s.active.release(runID)
			_, _ = s.execute(s.baseCtx, orch)
		}()
		s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: runID, Status: string(types.RunRunning)})
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	var runID string
	orch, err := build(s.streamOptions(sse, &runID))
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	runID = orch.RunID()
	if !s.active.acquire(runID) {
		sse.WriteError((&ErrRunActive{RunID: runID}).Error())
		return
	}
	defer s.active.release(runID)

	if err := sse.WriteEvent("started", RunResponse{RunID: runID, Status: string(types.RunRunning)}); err != nil {
		s.logger.Debug("SSE write failed", zap.String("run_id", runID), zap.Error(err))
	}

	// A client disconnect cancels the request context; the run aborts with its
	// progress checkpointed and can be resumed.
	doc, err := s.execute(r.Context(), orch)
	name, event := outcome(runID, doc, err)
	if werr := sse.WriteEvent(name, event); werr != nil {
		s.logger.Debug("SSE write failed", zap.String("run_id", runID), zap.Error(werr))
	}
}

// newRun returns a builder for a fresh run whose initial state is saved first
func (s *Server) newRun(ctx context.Context, in *types.GenerationInput) func(pipeline.Options) (*pipeline.Orchestrator, error) {
	return func(opts pipeline.Options) (*pipeline.Orchestrator, error) {
		gen, dec := s.components(*in)
		orch := pipeline.New(gen, dec, *in, opts)
		if err := s.store.SaveCheckpoint(ctx, orch.State()); err != nil {
			return nil, err
		}
		return orch, nil
	}
}

// handleRun starts a new run in the background
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.start(w, r, s.newRun(r.Context(), in), wantsStream(r))
}

// handleRunStream starts a run and streams progress via SSE
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.start(w, r, s.newRun(r.Context(), in), true)
}

// handleResume continues a paused or aborted run from its checkpoint
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if s.active.has(runID.String()) {
		s.errorResponse(w, http.StatusConflict, (&ErrRunActive{RunID: runID.String()}).Error())
		return
	}
	state, err := s.store.LoadCheckpoint(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if state == nil {
		s.errorResponse(w, http.StatusNotFound, (&ErrRunNotFound{RunID: runID.String()}).Error())
		return
	}
	if state.Status == types.RunCompleted {
		s.errorResponse(w, http.StatusConflict, (&pipeline.StatusError{Op: "resume", Status: state.Status}).Error())
		return
	}

	s.start(w, r, func(opts pipeline.Options) (*pipeline.Orchestrator, error) {
		gen, dec := s.components(state.Input)
		return pipeline.FromState(gen, dec, state, opts)
	}, wantsStream(r))
}

// handleStatus returns the status of a run
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, toStatusResponse(run, s.active.has(run.ID.String())))
}

// handleState returns the full persisted PipelineState of a run
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	state, err := s.store.LoadCheckpoint(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if state == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleListRuns lists runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := db.RunFilters{
		Status:    q.Get("status"),
		UnitTitle: q.Get("unit_title"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			s.errorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filters.Limit = limit
	}

	runs, err := s.store.ListRuns(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	out := make([]StatusResponse, 0, len(runs))
	for i := range runs {
		out = append(out, toStatusResponse(&runs[i], s.active.has(runs[i].ID.String())))
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": out, "count": len(out)})
}

// handleDocument returns a completed run's document as JSON, HTML or Markdown
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	doc, err := s.store.GetDocument(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if doc == nil {
		s.errorResponse(w, http.StatusNotFound, "Document not found")
		return
	}
	s.writeDocument(w, r.URL.Query().Get("format"), doc)
}

// handleRender renders a posted OutputDocument
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var doc types.OutputDocument
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&doc); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}
	s.writeDocument(w, format, &doc)
}

func (s *Server) writeDocument(w http.ResponseWriter, format string, doc *types.OutputDocument) {
	switch format {
	case "", "json":
		s.jsonResponse(w, http.StatusOK, doc)
	case "html":
		page, err := rendering.RenderHTML(doc)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, rendering.RenderMarkdown(doc))
	default:
		s.errorResponse(w, http.StatusBadRequest, "Unknown format: "+format)
	}
}

// handleDeleteRun deletes a run that is not executing
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if s.active.has(runID.String()) {
		s.errorResponse(w, http.StatusConflict, (&ErrRunActive{RunID: runID.String()}).Error())
		return
	}

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}
	if err := s.store.DeleteRun(r.Context(), runID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
