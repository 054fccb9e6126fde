package drift

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/internal/wire"
)

func scanAt(filename string, tsNanos int64, topLeftX, topLeftY, size float64, nx, ny int32) *wire.Scan2DMsg {
	return &wire.Scan2DMsg{
		TimestampUnixNanos: tsNanos,
		Filename:           filename,
		Roi: &wire.ScanParamsMsg{
			TopLeftX:   topLeftX,
			TopLeftY:   topLeftY,
			LengthUnit: "nm",
			SizeWidth:  size,
			SizeHeight: size,
			NX:         nx,
			NY:         ny,
			DataUnit:   "V",
		},
	}
}

func TestFindCandidateNoOverlapReturnsNil(t *testing.T) {
	newScan := scanAt("new.dat", 2, 1000, 1000, 10, 64, 64)
	history := []*wire.Scan2DMsg{scanAt("old.dat", 1, 0, 0, 10, 64, 64)}

	got, err := FindCandidate(history, newScan, 0.5, 0.25, true)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindCandidateSelectsOldestOrYoungest(t *testing.T) {
	newScan := scanAt("new.dat", 30, 0, 0, 10, 64, 64)
	oldest := scanAt("oldest.dat", 10, 0, 0, 10, 64, 64)
	youngest := scanAt("youngest.dat", 20, 0, 0, 10, 64, 64)
	history := []*wire.Scan2DMsg{oldest, youngest}

	got, err := FindCandidate(history, newScan, 0.5, 0.25, true)
	require.NoError(t, err)
	require.Same(t, oldest, got)

	got, err = FindCandidate(history, newScan, 0.5, 0.25, false)
	require.NoError(t, err)
	require.Same(t, youngest, got)
}

func TestFindCandidateSkipsMismatchedResolution(t *testing.T) {
	newScan := scanAt("new.dat", 2, 0, 0, 10, 64, 64)
	// Same ROI, but sampled at far coarser resolution.
	history := []*wire.Scan2DMsg{scanAt("old.dat", 1, 0, 0, 10, 4, 4)}

	got, err := FindCandidate(history, newScan, 0.5, 0.9, true)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFindCandidateIgnoresSelf(t *testing.T) {
	newScan := scanAt("new.dat", 2, 0, 0, 10, 64, 64)
	history := []*wire.Scan2DMsg{newScan}

	got, err := FindCandidate(history, newScan, 0.5, 0.25, true)
	require.NoError(t, err)
	require.Nil(t, got)
}
