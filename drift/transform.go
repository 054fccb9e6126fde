package drift

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/internal/wire"
	"github.com/afspm-go/afspm/spatial"
)

// evaluateAt computes T(now) = c.v + c.r*(now - c.t) in toUnit (spec §4.10),
// converting from c's own unit if they differ.
func evaluateAt(c CorrectionInfo, now time.Time, toUnit spatial.LengthUnit) (x, y float64, err error) {
	seconds := now.Sub(c.Timestamp).Seconds()
	vx := c.VX + c.RX*seconds
	vy := c.VY + c.RY*seconds
	if toUnit == "" || c.Unit == "" || toUnit == c.Unit {
		return vx, vy, nil
	}
	x, err = spatial.ConvertLength(vx, c.Unit, toUnit)
	if err != nil {
		return 0, 0, err
	}
	y, err = spatial.ConvertLength(vy, c.Unit, toUnit)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// applyToScanParams adds sign*T(now) to m's top-left, in m's declared unit.
func applyToScanParams(m *wire.ScanParamsMsg, corr CorrectionInfo, now time.Time, sign float64) error {
	unit, err := spatial.ParseLengthUnit(m.LengthUnit)
	if err != nil {
		return err
	}
	tx, ty, err := evaluateAt(corr, now, unit)
	if err != nil {
		return err
	}
	m.TopLeftX += sign * tx
	m.TopLeftY += sign * ty
	return nil
}

// applyToProbePosition adds sign*T(now) to m's point, in m's declared unit.
func applyToProbePosition(m *wire.ProbePositionMsg, corr CorrectionInfo, now time.Time, sign float64) error {
	unit, err := spatial.ParseLengthUnit(m.Unit)
	if err != nil {
		return err
	}
	tx, ty, err := evaluateAt(corr, now, unit)
	if err != nil {
		return err
	}
	m.X += sign * tx
	m.Y += sign * ty
	return nil
}

// transformRequestPayload rewrites the spatial fields of a forwarded
// request's payload, sample-frame -> tip-frame (sign +1, Router side). Only
// ReqSetScanParams and ReqSetProbePosition carry spatial fields; every
// other request code (and any payload this can't decode) passes through
// unchanged, per spec §4.10 "unknown fields are passed through unchanged".
func transformRequestPayload(code wire.RequestCode, payload []byte, corr CorrectionInfo, now time.Time, log *logrus.Entry) []byte {
	switch code {
	case wire.ReqSetScanParams:
		msg := new(wire.ScanParamsMsg)
		if err := wire.Unmarshal(payload, msg); err != nil {
			log.WithError(err).Warn("drift: decode scan params for correction failed, forwarding unmodified")
			return payload
		}
		if err := applyToScanParams(msg, corr, now, +1); err != nil {
			log.WithError(err).Warn("drift: apply scan params correction failed, forwarding unmodified")
			return payload
		}
		buf, err := wire.Marshal(msg)
		if err != nil {
			log.WithError(err).Warn("drift: re-encode corrected scan params failed, forwarding unmodified")
			return payload
		}
		return buf
	case wire.ReqSetProbePosition:
		msg := new(wire.ProbePositionMsg)
		if err := wire.Unmarshal(payload, msg); err != nil {
			log.WithError(err).Warn("drift: decode probe position for correction failed, forwarding unmodified")
			return payload
		}
		if err := applyToProbePosition(msg, corr, now, +1); err != nil {
			log.WithError(err).Warn("drift: apply probe position correction failed, forwarding unmodified")
			return payload
		}
		buf, err := wire.Marshal(msg)
		if err != nil {
			log.WithError(err).Warn("drift: re-encode corrected probe position failed, forwarding unmodified")
			return payload
		}
		return buf
	default:
		return payload
	}
}

// transformPublishedPayload rewrites the spatial fields of a message being
// published downstream, tip-frame -> sample-frame (sign -1, Cache side).
// Scan2DMsg carries its ROI and Spec1DMsg its ProbePos; every other topic
// (ControlState, ScopeState, ...) passes through unchanged.
func transformPublishedPayload(topic string, payload []byte, corr CorrectionInfo, log *logrus.Entry) []byte {
	switch {
	case strings.HasPrefix(topic, wire.TypeTopic(&wire.Scan2DMsg{})):
		msg := new(wire.Scan2DMsg)
		if err := wire.Unmarshal(payload, msg); err != nil {
			log.WithError(err).Warn("drift: decode scan for correction failed, forwarding unmodified")
			return payload
		}
		if msg.Roi != nil {
			at := time.Unix(0, msg.TimestampUnixNanos).UTC()
			if msg.TimestampUnixNanos == 0 {
				at = time.Now().UTC()
			}
			if err := applyToScanParams(msg.Roi, corr, at, -1); err != nil {
				log.WithError(err).Warn("drift: apply scan correction failed, forwarding unmodified")
				return payload
			}
		}
		buf, err := wire.Marshal(msg)
		if err != nil {
			log.WithError(err).Warn("drift: re-encode corrected scan failed, forwarding unmodified")
			return payload
		}
		return buf
	case strings.HasPrefix(topic, wire.TypeTopic(&wire.Spec1DMsg{})):
		msg := new(wire.Spec1DMsg)
		if err := wire.Unmarshal(payload, msg); err != nil {
			log.WithError(err).Warn("drift: decode spec for correction failed, forwarding unmodified")
			return payload
		}
		if msg.ProbePos != nil {
			at := time.Unix(0, msg.TimestampUnixNanos).UTC()
			if msg.TimestampUnixNanos == 0 {
				at = time.Now().UTC()
			}
			if err := applyToProbePosition(msg.ProbePos, corr, at, -1); err != nil {
				log.WithError(err).Warn("drift: apply spec correction failed, forwarding unmodified")
				return payload
			}
		}
		buf, err := wire.Marshal(msg)
		if err != nil {
			log.WithError(err).Warn("drift: re-encode corrected spec failed, forwarding unmodified")
			return payload
		}
		return buf
	default:
		return payload
	}
}
