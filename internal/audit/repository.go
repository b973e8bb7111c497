package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/sqlstore"
)

// Repository writes audit logs next to the run history.
type Repository struct {
	db      *sql.DB
	dialect sqlstore.Dialect
}

// NewRepository constructs an audit repository.
func NewRepository(store *sqlstore.Store) *Repository {
	if store == nil {
		return nil
	}
	return &Repository{db: store.DB(), dialect: store.Dialect()}
}

// EnsureSchema creates the audit table.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	ts := "TIMESTAMPTZ"
	if r.dialect.Name() == "sqlite" {
		ts = "TEXT"
	}
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS mis_audit_logs (
	id TEXT PRIMARY KEY,
	actor TEXT NOT NULL,
	scope TEXT NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	metadata TEXT,
	payload_digest TEXT NOT NULL DEFAULT '',
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at `+ts+` NOT NULL
)`)
	if err != nil {
		return eris.Wrap(err, "audit repo: create table")
	}
	return nil
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	var meta any
	if len(entry.Metadata) > 0 {
		meta = string(entry.Metadata)
	}

	query := `
INSERT INTO mis_audit_logs (
	id, actor, scope, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`
	if r.dialect.Placeholder(1) == "?" {
		query = `
INSERT INTO mis_audit_logs (
	id, actor, scope, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	}
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.Actor, entry.Scope, entry.Action, entry.ResourceType, entry.ResourceID,
		meta, entry.PayloadDigest, entry.IP, entry.UserAgent, r.dialect.TimeArg(entry.CreatedAt))
	if err != nil {
		return eris.Wrapf(err, "audit repo: insert %s", entry.ID)
	}
	return nil
}

// Count returns the number of entries for an action.
func (r *Repository) Count(ctx context.Context, action string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("audit repo: nil db")
	}
	query := "SELECT COUNT(*) FROM mis_audit_logs WHERE action = $1"
	if r.dialect.Placeholder(1) == "?" {
		query = "SELECT COUNT(*) FROM mis_audit_logs WHERE action = ?"
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, action).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "audit repo: count")
	}
	return n, nil
}
