package drift

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/internal/wire"
	"github.com/afspm-go/afspm/spatial"
)

func discardLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// TestCorrectionRoundTrip exercises spec §8's "correction round-trip"
// property: for the same CorrectionInfo and instant, applying +T(now) then
// -T(now) to the same point returns the original value.
func TestCorrectionRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	corr := CorrectionInfo{Timestamp: now.Add(-time.Minute), VX: 1, VY: -2, RX: 0.1, RY: 0.2, Unit: spatial.LengthNanometers}

	msg := &wire.ScanParamsMsg{TopLeftX: 10, TopLeftY: 20, LengthUnit: "nm"}
	original := *msg

	require.NoError(t, applyToScanParams(msg, corr, now, +1))
	require.NotEqual(t, original.TopLeftX, msg.TopLeftX)

	require.NoError(t, applyToScanParams(msg, corr, now, -1))
	require.InDelta(t, original.TopLeftX, msg.TopLeftX, 1e-9)
	require.InDelta(t, original.TopLeftY, msg.TopLeftY, 1e-9)
}

// TestDriftRoundTripScenario is spec §8 scenario 6, literally: CorrectionInfo
// = (t0, v=(1,0) nm, r=(0,0), unit=nm). A request with top-left (0,0) nm
// is transformed to (1,0) nm on the outbound path; the Cache, correcting a
// publication carrying that same top-left, must restore (0,0) nm.
func TestDriftRoundTripScenario(t *testing.T) {
	t0 := time.Now().UTC()
	corr := CorrectionInfo{Timestamp: t0, VX: 1, VY: 0, RX: 0, RY: 0, Unit: spatial.LengthNanometers}

	reqMsg := &wire.ScanParamsMsg{TopLeftX: 0, TopLeftY: 0, LengthUnit: "nm"}
	reqPayload, err := wire.Marshal(reqMsg)
	require.NoError(t, err)

	outbound := transformRequestPayload(wire.ReqSetScanParams, reqPayload, corr, t0, discardLog())
	var tipFrame wire.ScanParamsMsg
	require.NoError(t, wire.Unmarshal(outbound, &tipFrame))
	require.InDelta(t, 1, tipFrame.TopLeftX, 1e-9)
	require.InDelta(t, 0, tipFrame.TopLeftY, 1e-9)

	scan := &wire.Scan2DMsg{
		TimestampUnixNanos: t0.UnixNano(),
		Roi:                &wire.ScanParamsMsg{TopLeftX: tipFrame.TopLeftX, TopLeftY: tipFrame.TopLeftY, LengthUnit: "nm"},
	}
	scanPayload, err := wire.Marshal(scan)
	require.NoError(t, err)

	published := transformPublishedPayload(wire.TypeTopic(&wire.Scan2DMsg{}), scanPayload, corr, discardLog())
	var sampleFrame wire.Scan2DMsg
	require.NoError(t, wire.Unmarshal(published, &sampleFrame))
	require.InDelta(t, 0, sampleFrame.Roi.TopLeftX, 1e-9)
	require.InDelta(t, 0, sampleFrame.Roi.TopLeftY, 1e-9)
}

func TestTransformRequestPayloadPassesThroughUnknownCodes(t *testing.T) {
	corr := CorrectionInfo{Timestamp: time.Now().UTC(), VX: 1, Unit: spatial.LengthNanometers}
	payload := []byte("opaque")
	got := transformRequestPayload(wire.ReqRequestControl, payload, corr, time.Now().UTC(), discardLog())
	require.Equal(t, payload, got)
}

func TestTransformPublishedPayloadPassesThroughUnknownTopics(t *testing.T) {
	corr := CorrectionInfo{Timestamp: time.Now().UTC(), VX: 1, Unit: spatial.LengthNanometers}
	payload := []byte("opaque")
	got := transformPublishedPayload("some/other/topic", payload, corr, discardLog())
	require.Equal(t, payload, got)
}
