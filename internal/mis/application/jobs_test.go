package application

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/sqlstore"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/notify"
)

type stubNotifier struct {
	mu   sync.Mutex
	msgs []notify.AlertMessage
}

func (n *stubNotifier) Notify(_ context.Context, msg notify.AlertMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func newJobRunner(t *testing.T, fetcher Fetcher, notifier notify.Notifier, reportDir string) (*JobRunner, *sqlstore.Store) {
	t.Helper()
	store := newStore(t)
	runs := sqlstore.NewRunRepository(store)
	require.NoError(t, runs.EnsureSchema(context.Background()))
	cfg := Config{
		DatabaseURL: ":memory:",
		Timezone:    DefaultTimezone,
		Workers:     2,
		ReportDir:   reportDir,
		Pharos:      PharosConfig{BaseURL: "https://pharos.test/downloads.csv", Organization: "ho-fl"},
	}
	deps := Dependencies{Fetcher: fetcher, Store: store, Mapping: cabotMapping(), Logger: testLogger(), Now: fixedNow}
	runner := NewJobRunner(cfg, runs, deps, notifier)
	t.Cleanup(runner.Shutdown)
	return runner, store
}

func TestJobRunner_RecordsSuccessAndReports(t *testing.T) {
	day := domain.Date(2025, time.June, 1)
	fetcher := &stubFetcher{responses: map[string]domain.RawTable{"2025-06-01": daasDay("06/01/2025", "CABOT", "4")}}
	notifier := &stubNotifier{}
	dir := t.TempDir()
	runner, _ := newJobRunner(t, fetcher, notifier, dir)

	run, summary, err := runner.Run(context.Background(), RunRequest{Table: domain.TableAncillary, Start: &day, End: &day})
	require.NoError(t, err)
	assert.Equal(t, sqlstore.RunSucceeded, run.Status)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 96, summary.RowsWritten)

	var stored Summary
	require.NoError(t, json.Unmarshal(run.Summary, &stored))
	assert.Equal(t, run.ID, stored.RunID)
	assert.Equal(t, 96, stored.RowsWritten)

	for _, name := range []string{SummaryFile, RecordsFile, WorkbookFile, PDFFile} {
		_, err := os.Stat(filepath.Join(dir, run.ID, name))
		assert.NoError(t, err, name)
	}
	assert.Empty(t, notifier.msgs, "healthy runs do not alert")
}

func TestJobRunner_FailedRunAlerts(t *testing.T) {
	day := domain.Date(2025, time.June, 1)
	fetcher := &stubFetcher{errs: map[string]error{"2025-06-01": errStubUnavailable}}
	notifier := &stubNotifier{}
	runner, _ := newJobRunner(t, fetcher, notifier, "")

	run, summary, err := runner.Run(context.Background(), RunRequest{Table: domain.TableAncillary, Start: &day, End: &day})
	require.ErrorIs(t, err, domain.ErrNoData)
	assert.Equal(t, sqlstore.RunFailed, run.Status)
	assert.Contains(t, run.Error, "all 1 batches failed")
	assert.Equal(t, StatusFailed, summary.Status)

	require.Len(t, notifier.msgs, 1)
	msg := notifier.msgs[0]
	assert.Equal(t, run.ID, msg.RunID)
	assert.Equal(t, "failed", msg.Status)
	assert.Equal(t, []string{"2025-06-01..2025-06-02"}, msg.FailedBatches)
}

func TestJobRunner_SubmitRunsInBackground(t *testing.T) {
	day := domain.Date(2025, time.June, 1)
	fetcher := &stubFetcher{responses: map[string]domain.RawTable{"2025-06-01": daasDay("06/01/2025", "CABOT", "1")}}
	runner, _ := newJobRunner(t, fetcher, nil, "")

	run, err := runner.Submit(context.Background(), RunRequest{Table: domain.TableAncillary, Start: &day, End: &day})
	require.NoError(t, err)
	assert.Equal(t, sqlstore.RunCreated, run.Status)
	runner.Wait()

	got, err := runner.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, sqlstore.RunSucceeded, got.Status)
}

type blockingFetcher struct {
	entered chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ string) (domain.RawTable, error) {
	f.once.Do(func() { close(f.entered) })
	<-ctx.Done()
	return domain.RawTable{}, ctx.Err()
}

func TestJobRunner_ShutdownCancelsBackgroundRun(t *testing.T) {
	day := domain.Date(2025, time.June, 1)
	fetcher := &blockingFetcher{entered: make(chan struct{})}
	runner, _ := newJobRunner(t, fetcher, nil, "")

	run, err := runner.Submit(context.Background(), RunRequest{Table: domain.TableAncillary, Start: &day, End: &day})
	require.NoError(t, err)
	select {
	case <-fetcher.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never started")
	}

	done := make(chan struct{})
	go func() {
		runner.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not cancel the in-flight run")
	}

	got, err := runner.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, sqlstore.RunFailed, got.Status)
	assert.Contains(t, got.Error, "cancelled during FETCH")
	assert.Contains(t, got.Error, context.Canceled.Error())
	require.NotNil(t, got.FinishedAt)
}

type failingRunStore struct {
	RunStore
	failStatus string
}

func (s failingRunStore) UpdateStatus(ctx context.Context, id, status, errMsg string, summary []byte, startedAt, finishedAt *time.Time) error {
	if status == s.failStatus {
		return assert.AnError
	}
	return s.RunStore.UpdateStatus(ctx, id, status, errMsg, summary, startedAt, finishedAt)
}

func TestJobRunner_LogsRunningStatusFailure(t *testing.T) {
	day := domain.Date(2025, time.June, 1)
	fetcher := &stubFetcher{responses: map[string]domain.RawTable{"2025-06-01": daasDay("06/01/2025", "CABOT", "1")}}
	runner, _ := newJobRunner(t, fetcher, nil, "")
	logger, hook := test.NewNullLogger()
	runner.logger = logger
	runner.runs = failingRunStore{RunStore: runner.runs, failStatus: sqlstore.RunRunning}

	run, _, err := runner.Run(context.Background(), RunRequest{Table: domain.TableAncillary, Start: &day, End: &day})
	require.NoError(t, err)
	assert.Equal(t, sqlstore.RunSucceeded, run.Status)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "mis_job_update_failed" {
			found = true
			assert.Equal(t, logrus.WarnLevel, entry.Level)
			assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), assert.AnError)
		}
	}
	assert.True(t, found, "running status failure is logged")
}

func TestJobRunner_RejectsConcurrentSameTarget(t *testing.T) {
	runner, _ := newJobRunner(t, &stubFetcher{}, nil, "")
	runner.inflight[domain.TableAncillary+"|"+domain.ReportDAAS] = true

	_, err := runner.Submit(context.Background(), RunRequest{Table: domain.TableAncillary})
	require.ErrorIs(t, err, ErrRunInProgress)
}

func TestJobRunner_UnsupportedTarget(t *testing.T) {
	runner, _ := newJobRunner(t, &stubFetcher{}, nil, "")
	_, _, err := runner.Run(context.Background(), RunRequest{Table: "ops.unknown"})
	require.ErrorIs(t, err, domain.ErrUnsupportedTarget)
}

func TestSchedulerShouldRun(t *testing.T) {
	loc := newYork(t)
	s := NewScheduler(nil, nil, "06:30", loc, testLogger())
	assert.True(t, s.shouldRun(time.Date(2025, 6, 1, 6, 30, 0, 0, loc)))
	assert.False(t, s.shouldRun(time.Date(2025, 6, 1, 6, 31, 0, 0, loc)))

	s.dailyAt = "bad"
	assert.False(t, s.shouldRun(time.Date(2025, 6, 1, 6, 30, 0, 0, loc)))

	// Start returns immediately without jobs.
	s.Start(context.Background())
}
