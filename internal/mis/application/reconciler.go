// Package application runs MIS reconciliation passes and the jobs around them.
package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/batch"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/calendar"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain/gaps"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/pharos"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/sqlstore"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/metrics"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/parsers"
)

// Fetcher downloads one report URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (domain.RawTable, error)
}

// Storage reads and writes hourly record tables.
type Storage interface {
	TableExists(ctx context.Context, table string) (bool, error)
	Read(ctx context.Context, table string, since time.Time, loc *time.Location) (domain.Snapshot, error)
	Upsert(ctx context.Context, table string, records []domain.Record, opts sqlstore.UpsertOptions) (int, error)
}

// Dependencies are the collaborators of a Reconciler.
type Dependencies struct {
	Fetcher Fetcher
	Store   Storage
	Mapping *domain.MappingTable
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// BatchResult is the outcome of fetching one planned batch.
type BatchResult struct {
	Range batch.Range
	URL   string
	Rows  domain.RawTable
	Err   error
}

// Reconciler executes one reconciliation pass.
type Reconciler struct {
	cfg    RunConfig
	deps   Dependencies
	parser parsers.Parser
	log    logrus.FieldLogger
}

// NewReconciler validates the run configuration before any I/O.
func NewReconciler(cfg RunConfig, deps Dependencies) (*Reconciler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil || deps.Store == nil {
		return nil, eris.New("reconciler: fetcher and store are required")
	}
	parser, err := parsers.ForReport(cfg.Target.Report)
	if err != nil {
		return nil, err
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Reconciler{
		cfg:    cfg,
		deps:   deps,
		parser: parser,
		log: logger.WithFields(logrus.Fields{
			"run_id": cfg.RunID,
			"table":  cfg.Target.Table,
			"report": cfg.Target.Report,
		}),
	}, nil
}

// Run executes the state machine. The summary is returned even on failure.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	s := &Summary{
		RunID:     r.cfg.RunID,
		Table:     r.cfg.Target.Table,
		Report:    r.cfg.Target.Report,
		StartDate: r.cfg.Start.Format("2006-01-02"),
		EndDate:   r.cfg.End.Format("2006-01-02"),
		StartedAt: r.deps.Now().UTC(),
	}
	err := r.run(ctx, s)
	s.FinishedAt = r.deps.Now().UTC()
	if err != nil {
		s.Status = StatusFailed
		s.Error = err.Error()
		r.enter(s, StateFailed)
		r.log.WithError(err).WithField("event", "mis_run_failed").Error("reconciliation failed")
		r.deps.Metrics.ObserveRun(StatusFailed, s.FinishedAt.Sub(s.StartedAt))
		return s, err
	}
	s.Status = StatusSucceeded
	r.enter(s, StateDone)
	r.log.WithFields(logrus.Fields{
		"event":          "mis_run_done",
		"missing_slots":  s.MissingSlots,
		"batches":        s.Batches,
		"failed_batches": len(s.FailedBatches),
		"rows_written":   s.RowsWritten,
	}).Info("reconciliation finished")
	r.deps.Metrics.ObserveRun(StatusSucceeded, s.FinishedAt.Sub(s.StartedAt))
	return s, nil
}

func (r *Reconciler) run(ctx context.Context, s *Summary) error {
	target := r.cfg.Target
	loc := r.cfg.Location

	if err := r.advance(ctx, s, StateLoadExisting); err != nil {
		return err
	}
	exists, err := r.deps.Store.TableExists(ctx, target.Table)
	if err != nil {
		return err
	}
	s.TableExisted = exists
	var stored domain.Snapshot
	if exists {
		stored, err = r.deps.Store.Read(ctx, target.Table, r.cfg.Start, loc)
		if err != nil {
			return err
		}
	}
	s.StoredRecords = len(stored.Records)

	if err := r.advance(ctx, s, StateDetectGaps); err != nil {
		return err
	}
	expected, err := calendar.Generate(r.cfg.Start, r.cfg.End, loc, target.Combos())
	if err != nil {
		return err
	}
	missing := gaps.Detect(expected, stored, target.GapColumn)
	s.ExpectedSlots = len(expected)
	s.MissingSlots = len(missing)
	if len(missing) == 0 {
		r.log.WithField("event", "mis_no_gaps").Info("no missing slots; nothing to do")
		return nil
	}

	if err := r.advance(ctx, s, StatePlanBatches); err != nil {
		return err
	}
	dates := gaps.MissingDates(missing, loc)
	ranges := batch.Plan(dates, target.ChunkDays)
	s.MissingDates = len(dates)
	s.Batches = len(ranges)
	r.log.WithFields(logrus.Fields{
		"event":         "mis_batches_planned",
		"missing_slots": len(missing),
		"missing_dates": len(dates),
		"batches":       len(ranges),
	}).Info("planned batches")

	if err := r.advance(ctx, s, StateFetch); err != nil {
		return err
	}
	results := r.fetch(ctx, ranges)
	var tables []domain.RawTable
	for _, res := range results {
		if res.Err != nil {
			s.FailedBatches = append(s.FailedBatches, BatchFailure{Range: res.Range.String(), URL: res.URL, Error: res.Err.Error()})
			continue
		}
		s.RowsFetched += res.Rows.Len()
		tables = append(tables, res.Rows)
	}
	r.deps.Metrics.AddRows("fetched", s.RowsFetched)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reconciler: cancelled during %s: %w", StateFetch, err)
	}
	if len(tables) == 0 {
		return fmt.Errorf("%w: all %d batches failed", domain.ErrNoData, len(ranges))
	}

	if err := r.advance(ctx, s, StateParse); err != nil {
		return err
	}
	parsed, err := r.parser.Parse(tables, r.deps.Mapping, parsers.Options{Location: loc, Unmapped: r.cfg.Unmapped})
	if err != nil {
		return err
	}
	s.RowsParsed = len(parsed.Records)
	s.RowsUnmapped = parsed.RowsDropped
	s.VersionDuplicates = parsed.DuplicatesRemoved
	s.Warnings = append(s.Warnings, parsed.Warnings...)
	for _, w := range parsed.Warnings {
		r.log.WithField("event", "mis_parse_warning").Warn(w)
	}
	r.deps.Metrics.AddRows("parsed", s.RowsParsed)

	if err := r.advance(ctx, s, StateDeduplicate); err != nil {
		return err
	}
	deduped := deduplicate(parsed.Records, stored, target.GapColumn)
	records := deduped.kept
	s.RowsDeduplicated = deduped.dropped
	s.RowsAfterDedup = len(records)
	s.ZeroOverwrites = len(deduped.zeroOverwrites)
	if n := len(deduped.zeroOverwrites); n > 0 {
		s.ZeroOverwriteSamples = keySamples(deduped.zeroOverwrites)
		msg := fmt.Sprintf("%d stored zero values will be overwritten by nonzero data. Examples: %s", n, strings.Join(s.ZeroOverwriteSamples, "; "))
		s.Warnings = append(s.Warnings, msg)
		r.log.WithFields(logrus.Fields{"event": "mis_zero_overwrite", "count": n}).Warn(msg)
		r.deps.Metrics.AddZeroOverwrites(n)
	}
	r.deps.Metrics.AddRows("deduplicated", s.RowsAfterDedup)

	if r.cfg.GapFill {
		if err := r.advance(ctx, s, StateGapFill); err != nil {
			return err
		}
		filled := gapFill(target, missing, records, r.deps.Mapping, r.cfg.Unmapped)
		s.GapFilled = len(filled)
		records = append(records, filled...)
		domain.SortRecords(records)
		r.deps.Metrics.AddRows("gap_filled", s.GapFilled)
	}

	if err := r.advance(ctx, s, StateGuard); err != nil {
		return err
	}
	if err := guard(records); err != nil {
		return err
	}

	if err := r.advance(ctx, s, StateUpsert); err != nil {
		return err
	}
	if len(records) == 0 {
		r.log.WithField("event", "mis_nothing_to_write").Info("no new records after deduplication")
		return nil
	}
	opts := sqlstore.UpsertOptions{Mode: sqlstore.ModeUpdate, UpdateColumns: target.UpdateColumns, Location: loc}
	if !exists {
		opts.Mode = sqlstore.ModeCreate
	}
	written, err := r.deps.Store.Upsert(ctx, target.Table, records, opts)
	if err != nil {
		return err
	}
	s.RowsWritten = written
	s.Records = records
	r.deps.Metrics.AddRows("written", written)
	return nil
}

// fetch downloads every batch on a bounded pool. A failed batch never cancels
// its siblings; results keep plan order.
func (r *Reconciler) fetch(ctx context.Context, ranges []batch.Range) []BatchResult {
	results := make([]BatchResult, len(ranges))
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, rng := range ranges {
		i, rng := i, rng
		url := pharos.BuildURL(r.cfg.BaseURL, r.cfg.Organization, rng.Start, rng.End, r.cfg.Target.MostRecentVersion, r.cfg.Target.Report)
		g.Go(func() error {
			res := BatchResult{Range: rng, URL: url}
			res.Rows, res.Err = r.deps.Fetcher.Fetch(ctx, url)
			entry := r.log.WithFields(logrus.Fields{"batch": rng.String(), "days": rng.Days()})
			if res.Err != nil {
				entry.WithError(res.Err).WithField("event", "mis_batch_failed").Warn("batch fetch failed; skipping")
				r.deps.Metrics.IncBatch("failed")
			} else {
				entry.WithFields(logrus.Fields{"event": "mis_batch_fetched", "rows": res.Rows.Len()}).Info("batch fetched")
				r.deps.Metrics.IncBatch("succeeded")
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// advance enters the next state unless the run was cancelled.
func (r *Reconciler) advance(ctx context.Context, s *Summary, state string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reconciler: cancelled before %s: %w", state, err)
	}
	r.enter(s, state)
	return nil
}

func (r *Reconciler) enter(s *Summary, state string) {
	s.States = append(s.States, Transition{State: state, At: r.deps.Now().UTC()})
	r.deps.Metrics.IncState(state)
	r.log.WithFields(logrus.Fields{"event": "mis_state", "state": state}).Debug("state transition")
}
