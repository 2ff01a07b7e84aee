package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/probelabs/deepscout/internal/models"
)

// RunRecord mirrors one row of research_runs.
type RunRecord struct {
	RunID               string     `db:"run_id"`
	Query               string     `db:"query"`
	Clarification       string     `db:"clarification"`
	Status              string     `db:"status"`
	ClarificationPrompt string     `db:"clarification_prompt"`
	Report              string     `db:"report"`
	Iterations          int        `db:"iterations"`
	SourceCount         int        `db:"source_count"`
	ErrorMessage        string     `db:"error_message"`
	CreatedAt           time.Time  `db:"created_at"`
	CompletedAt         *time.Time `db:"completed_at"`
}

// CycleRecord mirrors one row of research_cycles.
type CycleRecord struct {
	RunID     string         `db:"run_id"`
	Iteration int            `db:"iteration"`
	Focus     string         `db:"focus"`
	Questions pq.StringArray `db:"questions"`
	Queries   pq.StringArray `db:"queries"`
	Summary   string         `db:"summary"`
	Satisfied bool           `db:"satisfied"`
	CreatedAt time.Time      `db:"created_at"`
}

// UpsertRun records the current lifecycle state of a run. The workflow calls
// this on every status transition, so the write must be idempotent per run_id.
func (c *Client) UpsertRun(ctx context.Context, rec RunRecord) error {
	const q = `
		INSERT INTO research_runs
			(run_id, query, clarification, status, clarification_prompt,
			 report, iterations, source_count, error_message, created_at, completed_at)
		VALUES (:run_id, :query, :clarification, :status, :clarification_prompt,
			 :report, :iterations, :source_count, :error_message, :created_at, :completed_at)
		ON CONFLICT (run_id) DO UPDATE SET
			clarification = EXCLUDED.clarification,
			status = EXCLUDED.status,
			clarification_prompt = EXCLUDED.clarification_prompt,
			report = EXCLUDED.report,
			iterations = EXCLUDED.iterations,
			source_count = EXCLUDED.source_count,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := c.db.NamedExecContext(ctx, q, rec); err != nil {
		return fmt.Errorf("upsert run %s: %w", rec.RunID, err)
	}
	return nil
}

// InsertCycle records one completed research cycle.
func (c *Client) InsertCycle(ctx context.Context, rec CycleRecord) error {
	const q = `
		INSERT INTO research_cycles
			(run_id, iteration, focus, questions, queries, summary, satisfied, created_at)
		VALUES (:run_id, :iteration, :focus, :questions, :queries, :summary, :satisfied, :created_at)
		ON CONFLICT (run_id, iteration) DO NOTHING`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := c.db.NamedExecContext(ctx, q, rec); err != nil {
		return fmt.Errorf("insert cycle %s/%d: %w", rec.RunID, rec.Iteration, err)
	}
	return nil
}

// InsertSources records retrieved sources for a run, skipping URLs the run
// already stored.
func (c *Client) InsertSources(ctx context.Context, runID string, iteration int, sources []models.Source) error {
	if len(sources) == 0 {
		return nil
	}
	const q = `
		INSERT INTO research_sources (run_id, iteration, url, title, snippet, retrieved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, url) DO NOTHING`
	for _, s := range sources {
		if _, err := c.db.ExecContext(ctx, q, runID, iteration, s.URL, s.Title, s.Snippet, s.RetrievedAt); err != nil {
			return fmt.Errorf("insert source %s: %w", s.URL, err)
		}
	}
	return nil
}

// GetRun loads a run row for the status API.
func (c *Client) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	const q = `SELECT run_id, query, clarification, status, clarification_prompt,
		report, iterations, source_count, error_message, created_at, completed_at
		FROM research_runs WHERE run_id = $1`
	if err := c.db.GetContext(ctx, &rec, q, runID); err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &rec, nil
}
