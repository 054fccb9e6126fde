package drift

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bradleyjkemp/cupaloy"
	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/spatial"
)

// TestCSVHeaderMatchesGoldenSnapshot guards the written-once CSV header
// against accidental column reordering or renaming; the per-row datetime
// column is excluded since it's stamped from time.Now() and can't be
// snapshotted deterministically.
func TestCSVHeaderMatchesGoldenSnapshot(t *testing.T) {
	cupaloy.SnapshotT(t, CSVFields)
}

func TestLedgerWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "drift.csv")
	sqlitePath := filepath.Join(dir, "drift.db")

	l, err := NewLedger(csvPath, sqlitePath)
	require.NoError(t, err)
	defer l.Close()

	corr := &CorrectionInfo{Timestamp: time.Now().UTC(), VX: 1, VY: 2, RX: 0, RY: 0, Unit: spatial.LengthNanometers}
	require.NoError(t, l.Record("scan1.dat", corr, true))
	require.NoError(t, l.Record("scan2.dat", nil, false))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 rows
	require.Equal(t, CSVFields, rows[0])
	require.Equal(t, "scan1.dat", rows[1][1])
	require.Equal(t, "scan2.dat", rows[2][1])
	require.Empty(t, rows[2][2], "missing correction should leave empty cells")
}

func TestLedgerLatestCorrectionResumesAfterRestart(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "drift.csv")
	sqlitePath := filepath.Join(dir, "drift.db")

	l, err := NewLedger(csvPath, sqlitePath)
	require.NoError(t, err)

	corr := &CorrectionInfo{Timestamp: time.Now().UTC(), VX: 3, VY: 4, RX: 0.1, RY: 0.2, Unit: spatial.LengthNanometers}
	require.NoError(t, l.Record("scan1.dat", corr, true))
	require.NoError(t, l.Close())

	reopened, err := NewLedger(csvPath, sqlitePath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LatestCorrection()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.InDelta(t, corr.VX, got.VX, 1e-9)
	require.InDelta(t, corr.VY, got.VY, 1e-9)
	require.Equal(t, corr.Unit, got.Unit)
}

func TestLedgerLatestCorrectionNoRowsReturnsNil(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLedger(filepath.Join(dir, "drift.csv"), filepath.Join(dir, "drift.db"))
	require.NoError(t, err)
	defer l.Close()

	got, err := l.LatestCorrection()
	require.NoError(t, err)
	require.Nil(t, got)
}
