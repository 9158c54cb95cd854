package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement without returning rows. *pgxpool.Pool and pgx.Tx
// both satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var errNoExecer = errors.New("shared: store has no database")

// AuditLog is one row of the audit trail. A zero At lets postgres stamp
// the row.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends AuditLog rows to audit_logs.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger writes through db.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

const insertAuditSQL = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`

// Record appends entry. Action, Entity and EntityID are mandatory.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return errNoExecer
	}
	switch {
	case entry.Action == "":
		return fmt.Errorf("%w: audit action missing", ErrValidation)
	case entry.Entity == "", entry.EntityID == "":
		return fmt.Errorf("%w: audit %s has no entity", ErrValidation, entry.Action)
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("shared: encode audit meta: %w", err)
	}
	var occurredAt any
	if !entry.At.IsZero() {
		occurredAt = entry.At
	}
	if _, err := l.db.Exec(ctx, insertAuditSQL,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, occurredAt); err != nil {
		return fmt.Errorf("shared: insert audit %s: %w", entry.Action, err)
	}
	return nil
}
