package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Run statuses.
const (
	RunCreated   = "created"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

const runsTable = "mis_reconcile_runs"

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("sqlstore: run not found")

// Run is one persisted reconciliation run.
type Run struct {
	ID         string
	Table      string
	Report     string
	StartDate  time.Time
	EndDate    time.Time
	Status     string
	Error      string
	Summary    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// RunRepository stores run history next to the record tables.
type RunRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewRunRepository constructs a repository on the store's database.
func NewRunRepository(store *Store) *RunRepository {
	if store == nil {
		return &RunRepository{}
	}
	return &RunRepository{db: store.db, dialect: store.dialect}
}

func (r *RunRepository) ready() error {
	if r == nil || r.db == nil {
		return errors.New("runs repo: nil db")
	}
	return nil
}

// EnsureSchema creates the run history table.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ts := "TIMESTAMPTZ"
	if r.dialect.Name() == "sqlite" {
		ts = "TEXT"
	}
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	table_name TEXT NOT NULL,
	report TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	summary TEXT,
	created_at %[2]s NOT NULL,
	updated_at %[2]s NOT NULL,
	started_at %[2]s,
	finished_at %[2]s
)`, runsTable, ts)
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return eris.Wrap(err, "runs repo: create table")
	}
	return nil
}

// CreateRun inserts a run if its id is new, then returns the stored run.
func (r *RunRepository) CreateRun(ctx context.Context, run *Run) (*Run, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if run == nil || run.ID == "" {
		return nil, errors.New("runs repo: nil run or empty id")
	}
	status := run.Status
	if status == "" {
		status = RunCreated
	}
	now := r.dialect.TimeArg(time.Now().UTC())
	_, err := r.db.ExecContext(ctx, r.rebind(`
INSERT INTO mis_reconcile_runs (
	id, table_name, report, start_date, end_date, status, error, created_at, updated_at
) VALUES (?,?,?,?,?,?,'',?,?)
ON CONFLICT (id) DO NOTHING`),
		run.ID, run.Table, run.Report, run.StartDate.Format("2006-01-02"), run.EndDate.Format("2006-01-02"), status, now, now)
	if err != nil {
		return nil, eris.Wrapf(err, "runs repo: insert %s", run.ID)
	}
	return r.GetRun(ctx, run.ID)
}

// UpdateStatus records a status transition with optional summary and timestamps.
func (r *RunRepository) UpdateStatus(ctx context.Context, id, status, errMsg string, summary []byte, startedAt, finishedAt *time.Time) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == "" {
		return errors.New("runs repo: empty run id")
	}
	var summaryArg any
	if summary != nil {
		summaryArg = string(summary)
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`
UPDATE mis_reconcile_runs
SET status = ?, error = ?, summary = COALESCE(?, summary),
	started_at = COALESCE(?, started_at), finished_at = COALESCE(?, finished_at), updated_at = ?
WHERE id = ?`),
		status, errMsg, summaryArg, r.optionalTime(startedAt), r.optionalTime(finishedAt), r.dialect.TimeArg(time.Now().UTC()), id)
	if err != nil {
		return eris.Wrapf(err, "runs repo: update %s", id)
	}
	return nil
}

// GetRun returns a run by id.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, r.rebind(`
SELECT id, table_name, report, start_date, end_date, status, error, summary, created_at, updated_at, started_at, finished_at
FROM mis_reconcile_runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`
SELECT id, table_name, report, start_date, end_date, status, error, summary, created_at, updated_at, started_at, finished_at
FROM mis_reconcile_runs ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, eris.Wrap(err, "runs repo: list")
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runs repo: list")
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                   Run
		start, end            string
		summary               sql.NullString
		created, updated      any
		startedAt, finishedAt any
	)
	if err := row.Scan(&run.ID, &run.Table, &run.Report, &start, &end, &run.Status, &run.Error, &summary,
		&created, &updated, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.StartDate, _ = time.Parse("2006-01-02", start)
	run.EndDate, _ = time.Parse("2006-01-02", end)
	if summary.Valid {
		run.Summary = []byte(summary.String)
	}
	if t, ok := toTime(created); ok {
		run.CreatedAt = t.UTC()
	}
	if t, ok := toTime(updated); ok {
		run.UpdatedAt = t.UTC()
	}
	if t, ok := toTime(startedAt); ok {
		t = t.UTC()
		run.StartedAt = &t
	}
	if t, ok := toTime(finishedAt); ok {
		t = t.UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

func (r *RunRepository) optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return r.dialect.TimeArg(*t)
}

// rebind rewrites ? placeholders for the dialect.
func (r *RunRepository) rebind(query string) string {
	if r.dialect.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString(r.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
