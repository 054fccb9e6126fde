// Package drift implements the Drift-Corrected Scheduler (spec §2 C10,
// §4.10): a Microscope Scheduler wrapper that estimates the translation
// between the tip coordinate system the instrument is driven in and the
// sample coordinate system every other component reasons in, and rewrites
// spatial fields on in-flight messages accordingly.
package drift

import (
	"time"

	"github.com/afspm-go/afspm/internal/wire"
	"github.com/afspm-go/afspm/spatial"
)

// CorrectionInfo is the cumulative tip-to-sample offset estimate: a
// translation vector v (tip - sample: a sample-frame point plus v is the
// tip-frame point) as of Timestamp, plus the rate at
// which it is currently believed to be changing, both in Unit/s.
type CorrectionInfo struct {
	Timestamp  time.Time
	VX, VY     float64
	RX, RY     float64
	Unit       spatial.LengthUnit
}

// DriftSnapshot is a single drift estimate between two scans taken at T1
// and T2: the translation observed at T2, relative to the frame of the
// scan taken at T1.
type DriftSnapshot struct {
	T1, T2 time.Time
	VX, VY float64
	Unit   spatial.LengthUnit
}

// ToMsg encodes c as its wire form.
func (c CorrectionInfo) ToMsg() *wire.CorrectionInfoMsg {
	return &wire.CorrectionInfoMsg{
		TimestampUnixNanos: c.Timestamp.UnixNano(),
		VX:                 c.VX,
		VY:                 c.VY,
		RX:                 c.RX,
		RY:                 c.RY,
		LengthUnit:         string(c.Unit),
	}
}

// CorrectionInfoFromMsg decodes a wire CorrectionInfoMsg.
func CorrectionInfoFromMsg(m *wire.CorrectionInfoMsg) CorrectionInfo {
	return CorrectionInfo{
		Timestamp: time.Unix(0, m.TimestampUnixNanos).UTC(),
		VX:        m.VX,
		VY:        m.VY,
		RX:        m.RX,
		RY:        m.RY,
		Unit:      spatial.LengthUnit(m.LengthUnit),
	}
}

// ToMsg encodes s as its wire form.
func (s DriftSnapshot) ToMsg() *wire.DriftSnapshotMsg {
	return &wire.DriftSnapshotMsg{
		T1UnixNanos: s.T1.UnixNano(),
		T2UnixNanos: s.T2.UnixNano(),
		VX:          s.VX,
		VY:          s.VY,
		LengthUnit:  string(s.Unit),
	}
}

// DriftRate returns the rate implied by vec having accumulated between dt1
// and dt2. A zero time delta (which would otherwise divide by zero) returns
// a zero rate rather than erroring: an instantaneous "drift" carries no
// usable rate information.
func DriftRate(vx, vy float64, dt1, dt2 time.Time) (rx, ry float64) {
	seconds := dt2.Sub(dt1).Seconds()
	if seconds == 0 {
		return 0, 0
	}
	return vx / seconds, vy / seconds
}

// EstimateCorrectionVec extrapolates rate forward (or backward, if dt1 is
// after dt2) across the given interval.
func EstimateCorrectionVec(rx, ry float64, dt1, dt2 time.Time) (vx, vy float64) {
	seconds := dt2.Sub(dt1).Seconds()
	return rx * seconds, ry * seconds
}

// EstimateCorrectionNoSnapshot estimates the drift accumulated since total's
// timestamp by extrapolating its rate forward to currDT, used when no
// candidate scan could be matched this tick. The unit of the returned
// CorrectionInfo matches total's.
func EstimateCorrectionNoSnapshot(total *CorrectionInfo, currDT time.Time) CorrectionInfo {
	if total == nil {
		return CorrectionInfo{Timestamp: currDT}
	}
	vx, vy := EstimateCorrectionVec(total.RX, total.RY, total.Timestamp, currDT)
	return CorrectionInfo{Timestamp: currDT, VX: vx, VY: vy, RX: total.RX, RY: total.RY, Unit: total.Unit}
}

// EstimateCorrectionFromSnapshot folds a freshly matched DriftSnapshot into
// an estimate of drift accumulated since total's timestamp. If total is
// already ahead of the snapshot's second scan (total.Timestamp after
// snapshot.T2), the rate-extrapolated drift that occurred in that overlap
// is subtracted out of the raw snapshot vector first, since that portion is
// already accounted for by total's own history.
func EstimateCorrectionFromSnapshot(snapshot DriftSnapshot, total *CorrectionInfo) CorrectionInfo {
	snapVX, snapVY := snapshot.VX, snapshot.VY

	var assumedVX, assumedVY float64
	baseline := snapshot.T2
	if total != nil {
		if total.Timestamp.After(snapshot.T2) {
			overlapVX, overlapVY := EstimateCorrectionVec(total.RX, total.RY, snapshot.T2, total.Timestamp)
			snapVX -= overlapVX
			snapVY -= overlapVY
		}
		assumedVX, assumedVY = EstimateCorrectionVec(total.RX, total.RY, total.Timestamp, baseline)
	}

	actualVX := assumedVX + snapVX
	actualVY := assumedVY + snapVY

	var actualRX, actualRY float64
	if total != nil {
		actualRX, actualRY = DriftRate(actualVX, actualVY, total.Timestamp, baseline)
	}

	unit := snapshot.Unit
	if unit == "" && total != nil {
		unit = total.Unit
	}
	return CorrectionInfo{Timestamp: baseline, VX: actualVX, VY: actualVY, RX: actualRX, RY: actualRY, Unit: unit}
}

// UpdateTotalCorrection blends latest (a delta computed relative to total's
// timestamp by EstimateCorrectionFromSnapshot or EstimateCorrectionNoSnapshot)
// into total, weighting the observed delta against what total's own rate
// would have predicted over the same interval. updateWeight of 1.0 discards
// the prediction entirely and trusts latest; lower values smooth noisy
// estimates across ticks.
func UpdateTotalCorrection(total *CorrectionInfo, latest CorrectionInfo, updateWeight float64) CorrectionInfo {
	if total == nil {
		return latest
	}

	assumedVX, assumedVY := EstimateCorrectionVec(total.RX, total.RY, total.Timestamp, latest.Timestamp)
	updateVX := (1-updateWeight)*assumedVX + updateWeight*latest.VX
	updateVY := (1-updateWeight)*assumedVY + updateWeight*latest.VY

	unit := latest.Unit
	if unit == "" {
		unit = total.Unit
	}

	return CorrectionInfo{
		Timestamp: latest.Timestamp,
		VX:        total.VX + updateVX,
		VY:        total.VY + updateVY,
		RX:        (1-updateWeight)*total.RX + updateWeight*latest.RX,
		RY:        (1-updateWeight)*total.RY + updateWeight*latest.RY,
		Unit:      unit,
	}
}
