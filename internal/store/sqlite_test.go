package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/silverfin-export/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ListRunsNewestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateRun(ctx, "firm-1")
	require.NoError(t, err)
	second, err := st.CreateRun(ctx, "firm-1")
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)
}

func TestSQLite_ListRunsOffset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := st.CreateRun(ctx, "firm-1")
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_AbortMissingRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.AbortRun(context.Background(), "missing", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestSQLite_SummaryRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "firm-1")
	require.NoError(t, err)

	in := &model.Summary{
		ProcessedCompanies: 1,
		TotalCompanies:     1,
		Failures: []model.Failure{{
			Company:   "Acme",
			CompanyID: 1,
			Period:    "2023-12-31",
			Label:     "most-recent-last-closed-fiscal-year",
			Kind:      model.FailureTimeout,
			Category:  "transient",
			Error:     "still pending after 200 polls (10.0 minutes)",
		}},
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, in))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Failures, got.Summary.Failures)
}
