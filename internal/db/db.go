// Package db provides PostgreSQL persistence for ULP runs: checkpoints of the
// pipeline state, assembled documents, and the monthly usage counter.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/unit-planner/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveCheckpoint upserts the run row for state. It is called after every
// completed section and on every status change.
func (db *DB) SaveCheckpoint(ctx context.Context, state *types.PipelineState) error {
	runID, err := uuid.Parse(state.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", state.RunID, err)
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO ulp_runs (id, unit_title, language, status, total_tasks, completed_tasks, last_error, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     status = $4, total_tasks = $5, completed_tasks = $6, last_error = $7, state = $8,
		     updated_at = NOW(),
		     completed_at = CASE WHEN $4 = 'completed' THEN NOW() ELSE NULL END`,
		runID, state.Input.UnitTitle, string(state.Input.Language), string(state.Status),
		state.TotalTasks, len(state.Completed), state.LastError, stateJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for run %s: %w", runID, err)
	}
	return nil
}

// LoadCheckpoint returns the last saved state of a run, or nil if the run does not exist
func (db *DB) LoadCheckpoint(ctx context.Context, runID uuid.UUID) (*types.PipelineState, error) {
	var stateJSON []byte
	err := db.pool.QueryRow(ctx, `SELECT state FROM ulp_runs WHERE id = $1`, runID).Scan(&stateJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var state types.PipelineState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint for run %s: %w", runID, err)
	}
	return &state, nil
}

// SaveDocument stores the assembled document of a completed run
func (db *DB) SaveDocument(ctx context.Context, runID uuid.UUID, doc *types.OutputDocument) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE ulp_runs SET document = $1, updated_at = NOW() WHERE id = $2`,
		docJSON, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetDocument retrieves the document of a run, or nil if it has none yet
func (db *DB) GetDocument(ctx context.Context, runID uuid.UUID) (*types.OutputDocument, error) {
	var docJSON []byte
	err := db.pool.QueryRow(ctx, `SELECT document FROM ulp_runs WHERE id = $1`, runID).Scan(&docJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(docJSON) == 0 {
		return nil, nil
	}

	var doc types.OutputDocument
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document for run %s: %w", runID, err)
	}
	return &doc, nil
}

const runColumns = `id, unit_title, language, status, total_tasks, completed_tasks, last_error, created_at, updated_at, completed_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.UnitTitle, &run.Language, &run.Status, &run.TotalTasks,
		&run.CompletedTasks, &run.LastError, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run by ID, or nil if it does not exist
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM ulp_runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// buildListRunsQuery builds the filtered run listing query
func buildListRunsQuery(filters RunFilters) (string, []any) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM ulp_runs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}
	if filters.UnitTitle != "" {
		query += fmt.Sprintf(" AND unit_title ILIKE $%d", argNum)
		args = append(args, "%"+filters.UnitTitle+"%")
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)
	return query, args
}

// ListRuns retrieves runs with optional filters, newest first
func (db *DB) ListRuns(ctx context.Context, filters RunFilters) ([]Run, error) {
	query, args := buildListRunsQuery(filters)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run with its checkpoint and document
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM ulp_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}
