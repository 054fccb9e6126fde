package drift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/spatial"
)

func TestDriftRateZeroIntervalIsZero(t *testing.T) {
	now := time.Now().UTC()
	rx, ry := DriftRate(5, 10, now, now)
	require.Zero(t, rx)
	require.Zero(t, ry)
}

func TestDriftRateAndEstimateCorrectionVecRoundTrip(t *testing.T) {
	t1 := time.Now().UTC()
	t2 := t1.Add(10 * time.Second)
	rx, ry := DriftRate(5, 10, t1, t2)
	require.InDelta(t, 0.5, rx, 1e-9)
	require.InDelta(t, 1.0, ry, 1e-9)

	vx, vy := EstimateCorrectionVec(rx, ry, t1, t2)
	require.InDelta(t, 5, vx, 1e-9)
	require.InDelta(t, 10, vy, 1e-9)
}

func TestEstimateCorrectionNoSnapshotExtrapolatesRate(t *testing.T) {
	t0 := time.Now().UTC()
	total := &CorrectionInfo{Timestamp: t0, VX: 1, VY: 2, RX: 0.1, RY: 0.2, Unit: spatial.LengthNanometers}

	curr := t0.Add(5 * time.Second)
	got := EstimateCorrectionNoSnapshot(total, curr)

	require.Equal(t, curr, got.Timestamp)
	require.InDelta(t, 0.5, got.VX, 1e-9)
	require.InDelta(t, 1.0, got.VY, 1e-9)
	require.Equal(t, total.RX, got.RX)
	require.Equal(t, total.RY, got.RY)
	require.Equal(t, total.Unit, got.Unit)
}

func TestEstimateCorrectionNoSnapshotNilTotal(t *testing.T) {
	curr := time.Now().UTC()
	got := EstimateCorrectionNoSnapshot(nil, curr)
	require.Equal(t, curr, got.Timestamp)
	require.Zero(t, got.VX)
	require.Zero(t, got.VY)
}

func TestEstimateCorrectionFromSnapshotNoPriorTotal(t *testing.T) {
	t1 := time.Now().UTC()
	t2 := t1.Add(10 * time.Second)
	snap := DriftSnapshot{T1: t1, T2: t2, VX: 2, VY: 4, Unit: spatial.LengthNanometers}

	got := EstimateCorrectionFromSnapshot(snap, nil)
	require.Equal(t, t2, got.Timestamp)
	require.InDelta(t, 2, got.VX, 1e-9)
	require.InDelta(t, 4, got.VY, 1e-9)
	require.Zero(t, got.RX)
	require.Zero(t, got.RY)
}

func TestEstimateCorrectionFromSnapshotSubtractsOverlap(t *testing.T) {
	t0 := time.Now().UTC()
	t1 := t0.Add(5 * time.Second)
	t2 := t0.Add(10 * time.Second)
	// total already extends past the snapshot's t2, drifting at 1 unit/s.
	total := &CorrectionInfo{Timestamp: t2.Add(2 * time.Second), VX: 0, VY: 0, RX: 1, RY: 0, Unit: spatial.LengthNanometers}

	snap := DriftSnapshot{T1: t1, T2: t2, VX: 5, VY: 0, Unit: spatial.LengthNanometers}
	got := EstimateCorrectionFromSnapshot(snap, total)

	// The snapshot's raw 5 should have the 2s*1unit/s overlap subtracted
	// before being folded back in, i.e. 5 - 2 = 3.
	require.InDelta(t, 3, got.VX, 1e-9)
}

func TestUpdateTotalCorrectionFullWeightTrustsLatest(t *testing.T) {
	t0 := time.Now().UTC()
	total := CorrectionInfo{Timestamp: t0, VX: 1, VY: 1, RX: 0, RY: 0, Unit: spatial.LengthNanometers}
	latest := CorrectionInfo{Timestamp: t0.Add(time.Second), VX: 10, VY: 10, RX: 2, RY: 2, Unit: spatial.LengthNanometers}

	got := UpdateTotalCorrection(&total, latest, 1.0)
	require.InDelta(t, total.VX+10, got.VX, 1e-9)
	require.InDelta(t, total.VY+10, got.VY, 1e-9)
	require.Equal(t, latest.RX, got.RX)
	require.Equal(t, latest.RY, got.RY)
}

func TestUpdateTotalCorrectionNilTotalReturnsLatest(t *testing.T) {
	latest := CorrectionInfo{VX: 3, VY: 4}
	got := UpdateTotalCorrection(nil, latest, 0.5)
	require.Equal(t, latest, got)
}

func TestUpdateTotalCorrectionBlendsPartialWeight(t *testing.T) {
	t0 := time.Now().UTC()
	total := CorrectionInfo{Timestamp: t0, VX: 0, VY: 0, RX: 0, RY: 0, Unit: spatial.LengthNanometers}
	latest := CorrectionInfo{Timestamp: t0.Add(time.Second), VX: 10, VY: 0, RX: 0, RY: 0, Unit: spatial.LengthNanometers}

	got := UpdateTotalCorrection(&total, latest, 0.25)
	// assumed (rate-extrapolated) delta is 0, so the update is purely
	// 0.25 * latest.VX.
	require.InDelta(t, 2.5, got.VX, 1e-9)
}
