package drift

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/afspm-go/afspm/spatial"
)

// CSVFields is the drift correction CSV header, written exactly once per
// file (spec §6).
var CSVFields = []string{
	"datetime", "filename",
	"corr_offset_x", "corr_offset_y", "corr_offset_units",
	"corr_rate_x", "corr_rate_y", "corr_rate_units",
	"scan_matched",
}

// Ledger is the Drift Scheduler's persisted correction history: the
// mandated append-only CSV (spec §6) plus a sqlite table that survives a
// Drift Scheduler restart, so a freshly spawned process can resume its
// cumulative CorrectionInfo instead of restarting at zero offset (a
// supplement beyond the original, see DESIGN.md).
type Ledger struct {
	mu sync.Mutex

	csvPath    string
	csvWritten bool

	db *sql.DB
}

// NewLedger opens (or creates) the CSV file at csvPath and the sqlite
// database at sqlitePath.
func NewLedger(csvPath, sqlitePath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("drift: open sqlite ledger: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS drift_correction (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at_unix_nanos INTEGER NOT NULL,
	filename TEXT NOT NULL,
	corr_offset_x REAL,
	corr_offset_y REAL,
	corr_offset_units TEXT,
	corr_rate_x REAL,
	corr_rate_y REAL,
	scan_matched INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("drift: create sqlite schema: %w", err)
	}

	written := false
	if info, err := os.Stat(csvPath); err == nil && info.Size() > 0 {
		written = true
	}

	return &Ledger{csvPath: csvPath, csvWritten: written, db: db}, nil
}

// LatestCorrection returns the most recently recorded CorrectionInfo from
// the sqlite ledger, or nil if none has been recorded yet. Used on startup
// to resume a cumulative offset rather than begin at zero.
func (l *Ledger) LatestCorrection() (*CorrectionInfo, error) {
	row := l.db.QueryRow(`
SELECT recorded_at_unix_nanos, corr_offset_x, corr_offset_y, corr_offset_units, corr_rate_x, corr_rate_y
FROM drift_correction ORDER BY id DESC LIMIT 1`)

	var nanos int64
	var vx, vy, rx, ry sql.NullFloat64
	var unit sql.NullString
	if err := row.Scan(&nanos, &vx, &vy, &unit, &rx, &ry); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("drift: query latest correction: %w", err)
	}
	if !vx.Valid {
		return nil, nil
	}
	return &CorrectionInfo{
		Timestamp: time.Unix(0, nanos).UTC(),
		VX:        vx.Float64,
		VY:        vy.Float64,
		RX:        rx.Float64,
		RY:        ry.Float64,
		Unit:      lengthUnitOrEmpty(unit),
	}, nil
}

func lengthUnitOrEmpty(s sql.NullString) spatial.LengthUnit {
	if s.Valid {
		return spatial.LengthUnit(s.String)
	}
	return ""
}

// Record appends one row to both the CSV and the sqlite table for an
// arriving qualifying scan. corr nil means no correction was available yet
// (empty CSV cells per spec §6).
func (l *Ledger) Record(filename string, corr *CorrectionInfo, scanMatched bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.appendCSVRow(filename, corr, scanMatched); err != nil {
		return err
	}
	return l.insertSQLiteRow(filename, corr, scanMatched)
}

func (l *Ledger) appendCSVRow(filename string, corr *CorrectionInfo, scanMatched bool) error {
	f, err := os.OpenFile(l.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("drift: open csv ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !l.csvWritten {
		if err := w.Write(CSVFields); err != nil {
			return fmt.Errorf("drift: write csv header: %w", err)
		}
		l.csvWritten = true
	}

	row := make([]string, len(CSVFields))
	row[0] = time.Now().UTC().Format(time.RFC3339Nano)
	row[1] = filename
	if corr != nil {
		row[2] = fmt.Sprintf("%g", corr.VX)
		row[3] = fmt.Sprintf("%g", corr.VY)
		row[4] = string(corr.Unit)
		row[5] = fmt.Sprintf("%g", corr.RX)
		row[6] = fmt.Sprintf("%g", corr.RY)
		row[7] = string(corr.Unit) + "/s"
	}
	row[8] = fmt.Sprintf("%t", scanMatched)

	if err := w.Write(row); err != nil {
		return fmt.Errorf("drift: write csv row: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (l *Ledger) insertSQLiteRow(filename string, corr *CorrectionInfo, scanMatched bool) error {
	var vx, vy, rx, ry interface{}
	var unit interface{}
	nanos := time.Now().UnixNano()
	if corr != nil {
		vx, vy, rx, ry = corr.VX, corr.VY, corr.RX, corr.RY
		unit = string(corr.Unit)
		nanos = corr.Timestamp.UnixNano()
	}
	_, err := l.db.Exec(`
INSERT INTO drift_correction
(recorded_at_unix_nanos, filename, corr_offset_x, corr_offset_y, corr_offset_units, corr_rate_x, corr_rate_y, scan_matched)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nanos, filename, vx, vy, unit, rx, ry, scanMatched)
	if err != nil {
		return fmt.Errorf("drift: insert sqlite row: %w", err)
	}
	return nil
}

// Close closes the sqlite database.
func (l *Ledger) Close() error { return l.db.Close() }
