// Package checkpoint stores pipeline states, documents and usage counts in a
// local SQLite file so the CLI can resume paused runs.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonathan/unit-planner/internal/types"
)

// Summary is a listing entry for one stored run
type Summary struct {
	RunID      string          `json:"run_id"`
	UnitTitle  string          `json:"unit_title"`
	Status     types.RunStatus `json:"status"`
	Completed  int             `json:"completed"`
	TotalTasks int             `json:"total_tasks"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Store implements pipeline checkpointing on SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the checkpoint database at path.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT PRIMARY KEY,
		unit_title TEXT NOT NULL,
		status TEXT NOT NULL,
		completed INTEGER NOT NULL,
		total_tasks INTEGER NOT NULL,
		state BLOB NOT NULL,
		document BLOB,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(updated_at);
	CREATE TABLE IF NOT EXISTS usage (
		period TEXT PRIMARY KEY,
		count INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCheckpoint upserts the state of a run
func (s *Store) SaveCheckpoint(ctx context.Context, state *types.PipelineState) error {
	if state.RunID == "" {
		return errors.New("state has no run id")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, unit_title, status, completed, total_tasks, state, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		     status = excluded.status, completed = excluded.completed, total_tasks = excluded.total_tasks,
		     state = excluded.state, updated_at = excluded.updated_at`,
		state.RunID, state.Input.UnitTitle, string(state.Status), len(state.Completed), state.TotalTasks,
		payload, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", state.RunID, err)
	}
	return nil
}

// LoadCheckpoint returns the saved state of runID, or nil if there is none
func (s *Store) LoadCheckpoint(ctx context.Context, runID string) (*types.PipelineState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT state FROM checkpoints WHERE run_id = ?", runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", runID, err)
	}
	return decodeState(runID, payload)
}

// LatestResumable returns the most recently updated paused or aborted run, or nil
func (s *Store) LatestResumable(ctx context.Context) (*types.PipelineState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runID string
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, state FROM checkpoints WHERE status IN (?, ?, ?)
		 ORDER BY updated_at DESC LIMIT 1`,
		string(types.RunPaused), string(types.RunAborted), string(types.RunRunning),
	).Scan(&runID, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	return decodeState(runID, payload)
}

func decodeState(runID string, payload []byte) (*types.PipelineState, error) {
	var state types.PipelineState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", runID, err)
	}
	return &state, nil
}

// SaveDocument stores the assembled document of a run
func (s *Store) SaveDocument(ctx context.Context, runID string, doc *types.OutputDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, "UPDATE checkpoints SET document = ? WHERE run_id = ?", payload, runID)
	if err != nil {
		return fmt.Errorf("save document %s: %w", runID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetDocument returns the document of runID, or nil if it has none
func (s *Store) GetDocument(ctx context.Context, runID string) (*types.OutputDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT document FROM checkpoints WHERE run_id = ?", runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document %s: %w", runID, err)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var doc types.OutputDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", runID, err)
	}
	return &doc, nil
}

// List returns stored runs, most recently updated first
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, unit_title, status, completed, total_tasks, updated_at FROM checkpoints ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var status string
		var updated int64
		if err := rows.Scan(&sum.RunID, &sum.UnitTitle, &status, &sum.Completed, &sum.TotalTasks, &updated); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		sum.Status = types.RunStatus(status)
		sum.UpdatedAt = time.Unix(0, updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// AddUsage adds delta to the call counter of period and returns the new
// total, never below zero
func (s *Store) AddUsage(ctx context.Context, period string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage (period, count) VALUES (?, max(?, 0))
		 ON CONFLICT(period) DO UPDATE SET count = max(usage.count + ?, 0)
		 RETURNING count`,
		period, delta, delta,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("update usage %s: %w", period, err)
	}
	return count, nil
}
