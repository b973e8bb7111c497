package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/sqlstore"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/notify"
)

// ErrRunInProgress is returned when the same table/report is already running.
var ErrRunInProgress = errors.New("mis: run already in progress for target")

// RunStore persists run history.
type RunStore interface {
	CreateRun(ctx context.Context, run *sqlstore.Run) (*sqlstore.Run, error)
	UpdateStatus(ctx context.Context, id, status, errMsg string, summary []byte, startedAt, finishedAt *time.Time) error
	GetRun(ctx context.Context, id string) (*sqlstore.Run, error)
	ListRuns(ctx context.Context, limit int) ([]sqlstore.Run, error)
}

// JobRunner wraps reconciliation passes with run history, reports and alerts.
type JobRunner struct {
	cfg      Config
	runs     RunStore
	deps     Dependencies
	notifier notify.Notifier
	logger   logrus.FieldLogger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup

	// ctx outlives the submitting request and ends at Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJobRunner constructs a JobRunner.
func NewJobRunner(cfg Config, runs RunStore, deps Dependencies, notifier notify.Notifier) *JobRunner {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		runs:     runs,
		deps:     deps,
		notifier: notifier,
		logger:   deps.Logger,
		inflight: make(map[string]bool),
	}
}

// Run executes a request synchronously.
func (j *JobRunner) Run(ctx context.Context, req RunRequest) (*sqlstore.Run, *Summary, error) {
	run, rc, release, err := j.prepare(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	summary, err := j.execute(ctx, run, rc)
	stored, getErr := j.runs.GetRun(ctx, run.ID)
	if getErr != nil {
		stored = run
	}
	return stored, summary, err
}

// Submit records a run and executes it in the background.
func (j *JobRunner) Submit(ctx context.Context, req RunRequest) (*sqlstore.Run, error) {
	run, rc, release, err := j.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer release()
		_, _ = j.execute(j.ctx, run, rc)
	}()
	return run, nil
}

// Wait blocks until background runs finish.
func (j *JobRunner) Wait() {
	j.wg.Wait()
}

// Shutdown cancels background runs and waits for them to record their
// final status.
func (j *JobRunner) Shutdown() {
	j.cancel()
	j.wg.Wait()
}

// Get returns a stored run.
func (j *JobRunner) Get(ctx context.Context, id string) (*sqlstore.Run, error) {
	return j.runs.GetRun(ctx, id)
}

// List returns the most recent runs first.
func (j *JobRunner) List(ctx context.Context, limit int) ([]sqlstore.Run, error) {
	return j.runs.ListRuns(ctx, limit)
}

func (j *JobRunner) prepare(ctx context.Context, req RunRequest) (*sqlstore.Run, RunConfig, func(), error) {
	if j == nil || j.runs == nil {
		return nil, RunConfig{}, nil, errors.New("mis job runner: nil")
	}
	id := uuid.NewString()
	rc, err := j.cfg.NewRunConfig(id, req, j.deps.Now())
	if err != nil {
		return nil, RunConfig{}, nil, err
	}
	key := rc.Target.Table + "|" + rc.Target.Report
	j.mu.Lock()
	if j.inflight[key] {
		j.mu.Unlock()
		return nil, RunConfig{}, nil, ErrRunInProgress
	}
	j.inflight[key] = true
	j.mu.Unlock()
	release := func() {
		j.mu.Lock()
		delete(j.inflight, key)
		j.mu.Unlock()
	}

	run, err := j.runs.CreateRun(ctx, &sqlstore.Run{
		ID:        id,
		Table:     rc.Target.Table,
		Report:    rc.Target.Report,
		StartDate: rc.Start,
		EndDate:   rc.End,
		Status:    sqlstore.RunCreated,
	})
	if err != nil {
		release()
		return nil, RunConfig{}, nil, err
	}
	return run, rc, release, nil
}

func (j *JobRunner) execute(ctx context.Context, run *sqlstore.Run, rc RunConfig) (*Summary, error) {
	log := j.logger.WithFields(logrus.Fields{"run_id": run.ID, "table": run.Table, "report": run.Report})
	// Bookkeeping still lands after ctx is cancelled.
	persistCtx := context.WithoutCancel(ctx)
	started := j.deps.Now().UTC()
	if err := j.runs.UpdateStatus(persistCtx, run.ID, sqlstore.RunRunning, "", nil, &started, nil); err != nil {
		log.WithError(err).WithField("event", "mis_job_update_failed").Warn("run status update failed")
	}
	log.WithField("event", "mis_job_start").Info("run started")

	var summary *Summary
	rec, err := NewReconciler(rc, j.deps)
	if err == nil {
		summary, err = rec.Run(ctx)
	} else {
		j.deps.Metrics.ObserveRun(StatusFailed, 0)
	}
	if summary == nil {
		summary = &Summary{RunID: run.ID, Table: run.Table, Report: run.Report, Status: StatusFailed, StartedAt: started}
		if err != nil {
			summary.Error = err.Error()
		}
	}

	if dir := j.cfg.ReportDir; dir != "" {
		if exportErr := WriteReports(filepath.Join(dir, run.ID), summary, rc.Location); exportErr != nil {
			log.WithError(exportErr).WithField("event", "mis_export_failed").Warn("report export failed")
			j.deps.Metrics.IncExport("bundle", "failed")
		} else {
			j.deps.Metrics.IncExport("bundle", "succeeded")
		}
	}

	payload, _ := json.Marshal(summary)
	ended := j.deps.Now().UTC()
	status, errMsg := sqlstore.RunSucceeded, ""
	if err != nil {
		status, errMsg = sqlstore.RunFailed, err.Error()
	}
	if updateErr := j.runs.UpdateStatus(persistCtx, run.ID, status, errMsg, payload, &started, &ended); updateErr != nil {
		log.WithError(updateErr).WithField("event", "mis_job_update_failed").Error("run status update failed")
	}

	if summary.NeedsAttention() {
		j.alert(persistCtx, run, summary, err, log)
	}
	if err != nil {
		log.WithError(err).WithField("event", "mis_job_failed").Error("run failed")
		return summary, err
	}
	log.WithField("event", "mis_job_success").Info("run succeeded")
	return summary, nil
}

func (j *JobRunner) alert(ctx context.Context, run *sqlstore.Run, s *Summary, runErr error, log logrus.FieldLogger) {
	msg := notify.AlertMessage{
		RunID:   run.ID,
		Table:   run.Table,
		Report:  run.Report,
		Status:  s.Status,
		State:   s.State(),
		Message: s.Error,
		Counts:  s.Counts(),
	}
	for _, fb := range s.FailedBatches {
		msg.FailedBatches = append(msg.FailedBatches, fb.Range)
	}
	if msg.Message == "" && s.ZeroOverwrites > 0 {
		msg.Message = fmt.Sprintf("%d stored zero values overwritten: %s", s.ZeroOverwrites, strings.Join(s.ZeroOverwriteSamples, "; "))
	}
	if errors.Is(runErr, domain.ErrDuplicateKeys) {
		msg.Meta = map[string]string{"guard": "duplicate keys"}
	}
	if err := j.notifier.Notify(ctx, msg); err != nil {
		log.WithError(err).WithField("event", "mis_alert_failed").Warn("alert delivery failed")
		j.deps.Metrics.IncNotificationError()
	}
}

// RunJobs runs each scheduled job in order. A failed job does not stop the rest.
func (j *JobRunner) RunJobs(ctx context.Context, jobs []JobSpec) {
	for _, job := range jobs {
		if _, _, err := j.Run(ctx, RunRequest{Table: job.Table, Report: job.Report}); err != nil {
			j.logger.WithError(err).WithFields(logrus.Fields{
				"event":  "mis_schedule_error",
				"table":  job.Table,
				"report": job.Report,
			}).Error("scheduled run failed")
		}
	}
}
