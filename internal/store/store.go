package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/textmask/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store records mask runs and their per-folder outcomes in PostgreSQL.
type Store struct {
	conn *pgx.Conn
}

// Run is one row of the run history.
type Run struct {
	ID           uuid.UUID
	ParentInput  string
	ParentOutput string
	Mode         string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Folders      int
	Masks        int
	Failures     int
	FailedTasks  int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the ledger tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS mask_runs (
			id UUID PRIMARY KEY,
			parent_input TEXT NOT NULL,
			parent_output TEXT NOT NULL,
			mode TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS folder_results (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES mask_runs(id) ON DELETE CASCADE,
			input_dir TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			device INT NOT NULL,
			images INT NOT NULL,
			masks INT NOT NULL,
			failures INT NOT NULL,
			text_lines INT NOT NULL,
			duration_ms BIGINT NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS folder_results_run_id_idx ON folder_results (run_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// BeginRun registers a new run and returns its ID.
func (s *Store) BeginRun(ctx context.Context, parentInput, parentOutput, mode string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO mask_runs (id, parent_input, parent_output, mode, started_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, id, parentInput, parentOutput, mode)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// RecordFolder saves the outcome of one folder task.
func (s *Store) RecordFolder(ctx context.Context, runID uuid.UUID, r types.FolderReport) error {
	var errText *string
	if r.Err != nil {
		msg := r.Err.Error()
		errText = &msg
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO folder_results (run_id, input_dir, output_dir, device, images, masks, failures, text_lines, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, runID, r.Task.InputDir, r.Task.OutputDir, r.Task.Device, r.Images, r.Masks, r.Failures, r.TextLines, r.Duration.Milliseconds(), errText)
	return err
}

// FinishRun stamps the run's completion time.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID) error {
	tag, err := s.conn.Exec(ctx, "UPDATE mask_runs SET finished_at = NOW() WHERE id = $1", runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// ListRuns returns the most recent runs with their folder totals, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT r.id, r.parent_input, r.parent_output, r.mode, r.started_at, r.finished_at,
		       COUNT(f.id),
		       COALESCE(SUM(f.masks), 0),
		       COALESCE(SUM(f.failures), 0),
		       COUNT(f.error)
		FROM mask_runs r
		LEFT JOIN folder_results f ON f.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ParentInput, &r.ParentOutput, &r.Mode, &r.StartedAt, &r.FinishedAt,
			&r.Folders, &r.Masks, &r.Failures, &r.FailedTasks); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS folder_results CASCADE;
		DROP TABLE IF EXISTS mask_runs CASCADE;
	`)
	return err
}
