package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/probelabs/deepscout/internal/models"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })
	return NewClientWithDB(sqlx.NewDb(rawDB, "postgres"), zaptest.NewLogger(t)), mock
}

func TestUpsertRun(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO research_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := client.UpsertRun(context.Background(), RunRecord{
		RunID:  "run-1",
		Query:  "impact of the ukraine conflict",
		Status: "running",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCycle(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO research_cycles").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := client.InsertCycle(context.Background(), CycleRecord{
		RunID:     "run-1",
		Iteration: 1,
		Focus:     "economic impact",
		Questions: []string{"q1", "q2", "q3"},
		Queries:   []string{"kw1", "kw2"},
		Summary:   "cycle summary",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSourcesSkipsEmptyBatch(t *testing.T) {
	client, mock := newMockClient(t)
	require.NoError(t, client.InsertSources(context.Background(), "run-1", 1, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSourcesWritesEachRow(t *testing.T) {
	client, mock := newMockClient(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO research_sources").
		WithArgs("run-1", 1, "https://example.com/a", "A", "snippet", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO research_sources").
		WithArgs("run-1", 1, "https://example.com/b", "B", "", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := client.InsertSources(context.Background(), "run-1", 1, []models.Source{
		{URL: "https://example.com/a", Title: "A", Snippet: "snippet", RetrievedAt: now},
		{URL: "https://example.com/b", Title: "B", RetrievedAt: now},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	client, mock := newMockClient(t)
	created := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"run_id", "query", "clarification", "status", "clarification_prompt",
		"report", "iterations", "source_count", "error_message", "created_at", "completed_at",
	}).AddRow("run-1", "q", "", "completed", "", "# Report", 2, 9, "", created, nil)

	mock.ExpectQuery("FROM research_runs").
		WithArgs("run-1").
		WillReturnRows(rows)

	rec, err := client.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, 2, rec.Iterations)
	assert.Equal(t, "# Report", rec.Report)
	assert.Nil(t, rec.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
