// Package sqlstore persists hourly records and run history with database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
)

// Mode selects how Upsert writes.
type Mode string

const (
	ModeAppend Mode = "append"
	ModeUpdate Mode = "update"
	ModeCreate Mode = "create"
)

// Columns in write order.
var recordColumns = []string{
	"datetime_he", "date", "asset", "name", "ops_type", "service",
	domain.ColumnDA, domain.ColumnRT, "unit", "interval_width_s",
}

var primaryKey = []string{"datetime_he", "asset", "name", "ops_type", "service"}

var updatable = map[string]bool{
	domain.ColumnDA: true, domain.ColumnRT: true, "unit": true, "interval_width_s": true,
}

// UpsertOptions controls one write.
//
// ModeCreate creates the table in the write transaction. With UpdateColumns
// set it also resolves key conflicts like ModeUpdate, so a concurrent writer
// that created the table first does not fail the insert.
type UpsertOptions struct {
	Mode          Mode
	UpdateColumns []string
	Location      *time.Location
}

// Store reads and writes hourly record tables.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects using the URL scheme to pick the engine: postgres:// and
// postgresql:// use pgx, sqlite:// or a bare path use SQLite.
func Open(ctx context.Context, rawURL string) (*Store, error) {
	var (
		driver  string
		dsn     string
		dialect Dialect
	)
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		driver, dsn, dialect = "pgx", rawURL, Postgres{}
	case rawURL == "":
		return nil, errors.New("sqlstore: empty database url")
	default:
		driver, dsn, dialect = "sqlite", strings.TrimPrefix(rawURL, "sqlite://"), SQLite{}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlstore: open %s", driver)
	}
	if dialect.Name() == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "sqlstore: ping %s", driver)
	}
	return New(db, dialect), nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// TableExists reports whether the table exists.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("sqlstore: nil db")
	}
	query, args := s.dialect.TableExistsQuery(table)
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "sqlstore: table exists %s", table)
	}
	return exists, nil
}

// CreateTable creates the table, and its schema where supported.
func (s *Store) CreateTable(ctx context.Context, table string) error {
	for _, stmt := range s.dialect.CreateTableStatements(table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlstore: create %s", table)
		}
	}
	return nil
}

// Read loads every stored record whose operating date is on or after since.
// Columns come from the result set so callers can see which value columns
// the table actually has.
func (s *Store) Read(ctx context.Context, table string, since time.Time, loc *time.Location) (domain.Snapshot, error) {
	if loc == nil {
		loc = time.UTC
	}
	query := fmt.Sprintf(`SELECT * FROM %s WHERE "date" >= %s`, s.dialect.QuoteTable(table), s.dialect.Placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, s.dialect.DateArg(since))
	if err != nil {
		return domain.Snapshot{}, eris.Wrapf(err, "sqlstore: read %s", table)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return domain.Snapshot{}, eris.Wrap(err, "sqlstore: columns")
	}
	snap := domain.Snapshot{Columns: make(map[string]bool, len(names))}
	for i, n := range names {
		names[i] = strings.ToLower(n)
		snap.Columns[names[i]] = true
	}

	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Snapshot{}, eris.Wrapf(err, "sqlstore: scan %s", table)
		}
		rec := domain.Record{DAVolume: domain.Blank(), RTVolume: domain.Blank()}
		for i, name := range names {
			v := values[i]
			switch name {
			case "datetime_he":
				t, ok := toTime(v)
				if !ok {
					return domain.Snapshot{}, fmt.Errorf("sqlstore: %s: invalid datetime_he %v", table, v)
				}
				rec.HourEnding = t.In(loc).Round(time.Second)
			case "asset":
				rec.Asset = toString(v)
			case "name":
				rec.Name = toString(v)
			case "ops_type":
				rec.OpsType = toString(v)
			case "service":
				rec.Service = toString(v)
			case domain.ColumnDA:
				rec.DAVolume = domain.ValueFromDB(v)
			case domain.ColumnRT:
				rec.RTVolume = domain.ValueFromDB(v)
			case "unit":
				rec.Unit = toString(v)
			case "interval_width_s":
				rec.IntervalSeconds = toInt(v)
			}
		}
		snap.Records = append(snap.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, eris.Wrapf(err, "sqlstore: read %s", table)
	}
	return snap, nil
}

// Upsert writes records in a single transaction and returns the number of
// rows written.
func (s *Store) Upsert(ctx context.Context, table string, records []domain.Record, opts UpsertOptions) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	for _, col := range opts.UpdateColumns {
		if !updatable[col] {
			return 0, fmt.Errorf("sqlstore: column %q cannot be updated", col)
		}
	}
	stmtSQL := s.insertSQL(table, opts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlstore: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if opts.Mode == ModeCreate {
		for _, ddl := range s.dialect.CreateTableStatements(table) {
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return 0, eris.Wrapf(err, "sqlstore: create %s", table)
			}
		}
	}

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlstore: prepare upsert %s", table)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, s.args(rec, opts.Location)...); err != nil {
			return 0, eris.Wrapf(err, "sqlstore: write %s", rec.Key())
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlstore: commit")
	}
	return len(records), nil
}

func (s *Store) insertSQL(table string, opts UpsertOptions) string {
	placeholders := make([]string, len(recordColumns))
	for i := range recordColumns {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	var b strings.Builder
	columns := make([]string, len(recordColumns))
	for i, col := range recordColumns {
		columns[i] = quoteIdent(col)
	}
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.QuoteTable(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if opts.Mode == ModeUpdate || (opts.Mode == ModeCreate && len(opts.UpdateColumns) > 0) {
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO ", strings.Join(primaryKey, ", "))
		if len(opts.UpdateColumns) == 0 {
			b.WriteString("NOTHING")
		} else {
			sets := make([]string, len(opts.UpdateColumns))
			for i, col := range opts.UpdateColumns {
				sets[i] = fmt.Sprintf("%s = excluded.%s", col, col)
			}
			b.WriteString("UPDATE SET " + strings.Join(sets, ", "))
		}
	}
	return b.String()
}

func (s *Store) args(rec domain.Record, loc *time.Location) []any {
	interval := rec.IntervalSeconds
	if interval == 0 {
		interval = domain.IntervalSeconds
	}
	return []any{
		s.dialect.TimeArg(rec.HourEnding.Round(time.Second)),
		s.dialect.DateArg(domain.OperatingDate(rec.HourEnding, loc)),
		rec.Asset,
		rec.Name,
		rec.OpsType,
		rec.Service,
		rec.DAVolume.SQL(),
		rec.RTVolume.SQL(),
		rec.Unit,
		interval,
	}
}
