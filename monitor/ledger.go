package monitor

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EventKind distinguishes why a monitored component stopped.
type EventKind string

const (
	EventCrash       EventKind = "crash"
	EventPlannedExit EventKind = "planned_exit"
)

// Ledger persists a small history of component restart events to sqlite
// (a supplement beyond the original's in-memory-only monitor, see
// DESIGN.md): a long-running experiment gets an auditable trail of which
// components crashed versus exited on purpose, surviving a Monitor
// restart itself.
type Ledger struct {
	db *sql.DB
}

// NewLedger opens (or creates) the sqlite database at path.
func NewLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("monitor: open restart ledger: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS component_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at_unix_nanos INTEGER NOT NULL,
	name TEXT NOT NULL,
	event TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("monitor: create restart ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record appends one row noting that name stopped for the given reason.
func (l *Ledger) Record(name string, kind EventKind) error {
	_, err := l.db.Exec(
		`INSERT INTO component_events (recorded_at_unix_nanos, name, event) VALUES (?, ?, ?)`,
		time.Now().UnixNano(), name, string(kind))
	if err != nil {
		return fmt.Errorf("monitor: record restart event: %w", err)
	}
	return nil
}

// CrashCount returns how many times name has been recorded as crashed.
func (l *Ledger) CrashCount(name string) (int, error) {
	var count int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM component_events WHERE name = ? AND event = ?`,
		name, string(EventCrash)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("monitor: query crash count: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }
