package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openMemory(t))
	require.NoError(t, repo.EnsureSchema(ctx))

	run, err := repo.CreateRun(ctx, &Run{
		ID: "run-1", Table: domain.TableAncillary, Report: domain.ReportDAAS,
		StartDate: domain.Date(2025, 3, 1), EndDate: domain.Date(2025, 3, 9),
	})
	require.NoError(t, err)
	assert.Equal(t, RunCreated, run.Status)
	assert.Equal(t, domain.Date(2025, 3, 9), run.EndDate)
	assert.Nil(t, run.StartedAt)

	again, err := repo.CreateRun(ctx, &Run{ID: "run-1", Table: "other", Report: "other"})
	require.NoError(t, err)
	assert.Equal(t, domain.TableAncillary, again.Table, "existing run is kept")

	started := time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateStatus(ctx, "run-1", RunRunning, "", nil, &started, nil))
	finished := started.Add(time.Minute)
	require.NoError(t, repo.UpdateStatus(ctx, "run-1", RunSucceeded, "", []byte(`{"written":3}`), nil, &finished))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, got.Status)
	assert.JSONEq(t, `{"written":3}`, string(got.Summary))
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(finished))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = repo.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunRepository_Rebind(t *testing.T) {
	repo := &RunRepository{dialect: Postgres{}}
	assert.Equal(t, "a = $1 AND b = $2", repo.rebind("a = ? AND b = ?"))
}
