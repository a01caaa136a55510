package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/dexguard/dexguard/internal/event"
	"github.com/dexguard/dexguard/internal/notify"
)

const schema = `
CREATE TABLE IF NOT EXISTS emergency_events (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    severity    TEXT NOT NULL,
    breaker_id  TEXT,
    threat_type TEXT,
    reason      TEXT,
    ts          TIMESTAMPTZ NOT NULL,
    responses   JSONB NOT NULL DEFAULT '[]',
    resolved    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS alerts (
    id        TEXT PRIMARY KEY,
    type      TEXT NOT NULL,
    severity  TEXT NOT NULL,
    payload   JSONB,
    ts        TIMESTAMPTZ NOT NULL
);`

// Archive stores emergency events and alerts durably. It is an optional
// sink: the engine runs fully in-memory when no database is configured.
type Archive struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres and prepares the archive schema.
func Open(dsn string, timeout time.Duration) (*Archive, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a := &Archive{db: db, timeout: timeout}
	if err := a.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// NewArchive wraps an existing connection; used by tests.
func NewArchive(db *sqlx.DB, timeout time.Duration) *Archive {
	return &Archive{db: db, timeout: timeout}
}

func (a *Archive) ensureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// ArchiveEvent implements event.Archiver. Events are upserted so response
// appends re-archive the same id with its latest state.
func (a *Archive) ArchiveEvent(ev event.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	responses, err := json.Marshal(ev.Responses)
	if err != nil {
		return fmt.Errorf("marshal event responses: %w", err)
	}

	query := `
		INSERT INTO emergency_events (id, kind, severity, breaker_id, threat_type, reason, ts, responses, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			responses = EXCLUDED.responses,
			resolved  = EXCLUDED.resolved`

	if _, err := a.db.ExecContext(ctx, query,
		ev.ID, string(ev.Kind), string(ev.Severity), ev.BreakerID, ev.ThreatType,
		ev.Reason, ev.Timestamp, responses, ev.Resolved); err != nil {
		return fmt.Errorf("archive event %s: %w", ev.ID, err)
	}
	return nil
}

// ArchiveAlert implements notify.Archiver.
func (a *Archive) ArchiveAlert(alert notify.Alert) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	payload, err := json.Marshal(alert.Payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	query := `
		INSERT INTO alerts (id, type, severity, payload, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`

	if _, err := a.db.ExecContext(ctx, query,
		alert.ID, alert.Type, string(alert.Severity), payload, alert.Timestamp); err != nil {
		return fmt.Errorf("archive alert %s: %w", alert.ID, err)
	}
	return nil
}

// EventCount returns the number of archived events; used by ops tooling.
func (a *Archive) EventCount(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var count int64
	if err := a.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM emergency_events`); err != nil {
		return 0, fmt.Errorf("count archived events: %w", err)
	}
	return count, nil
}

// Close releases the database connection.
func (a *Archive) Close() error { return a.db.Close() }
