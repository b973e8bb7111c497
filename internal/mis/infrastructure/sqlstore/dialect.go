package sqlstore

import (
	"fmt"
	"strings"
	"time"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	QuoteTable(name string) string
	TableExistsQuery(name string) (string, []any)
	CreateTableStatements(name string) []string
	TimeArg(t time.Time) any
	DateArg(d time.Time) any
}

// Postgres is the production dialect, used through the pgx stdlib driver.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// QuoteTable quotes a schema-qualified name part by part.
func (Postgres) QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func (Postgres) TableExistsQuery(name string) (string, []any) {
	return `SELECT to_regclass($1) IS NOT NULL`, []any{name}
}

func (p Postgres) CreateTableStatements(name string) []string {
	var stmts []string
	if schema, _, ok := strings.Cut(name, "."); ok {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(schema))
	}
	return append(stmts, `CREATE TABLE IF NOT EXISTS `+p.QuoteTable(name)+` (
	datetime_he TIMESTAMPTZ NOT NULL,
	"date" DATE NOT NULL,
	asset TEXT NOT NULL,
	name TEXT NOT NULL,
	ops_type TEXT NOT NULL,
	service TEXT NOT NULL,
	da_volume DOUBLE PRECISION,
	rt_volume DOUBLE PRECISION,
	unit TEXT,
	interval_width_s INTEGER,
	PRIMARY KEY (datetime_he, asset, name, ops_type, service)
)`)
}

func (Postgres) TimeArg(t time.Time) any { return t.UTC() }

func (Postgres) DateArg(d time.Time) any {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// SQLite is the local dialect, used through modernc.org/sqlite. Schema
// qualified names are kept whole as a single identifier.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) QuoteTable(name string) string { return quoteIdent(name) }

func (SQLite) TableExistsQuery(name string) (string, []any) {
	return `SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = ?`, []any{name}
}

func (s SQLite) CreateTableStatements(name string) []string {
	return []string{`CREATE TABLE IF NOT EXISTS ` + s.QuoteTable(name) + ` (
	datetime_he TEXT NOT NULL,
	"date" TEXT NOT NULL,
	asset TEXT NOT NULL,
	name TEXT NOT NULL,
	ops_type TEXT NOT NULL,
	service TEXT NOT NULL,
	da_volume REAL,
	rt_volume REAL,
	unit TEXT,
	interval_width_s INTEGER,
	PRIMARY KEY (datetime_he, asset, name, ops_type, service)
)`}
}

func (SQLite) TimeArg(t time.Time) any { return t.UTC().Format(time.RFC3339) }

func (SQLite) DateArg(d time.Time) any { return d.Format("2006-01-02") }

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// toTime converts a scanned timestamp. Text without an offset is UTC.
func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case []byte:
		return toTime(string(x))
	case string:
		x = strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return fmt.Sprint(x)
	}
}

func toInt(v any) int {
	switch x := v.(type) {
	case int64:
		return int(x)
	case int32:
		return int(x)
	case int:
		return x
	case float64:
		return int(x)
	default:
		var n int
		_, _ = fmt.Sscan(toString(v), &n)
		return n
	}
}
