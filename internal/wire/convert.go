package wire

import (
	"time"

	"github.com/afspm-go/afspm/spatial"
)

// ScanParamsToWire converts a domain ScanParameters2D into its wire form.
func ScanParamsToWire(p spatial.ScanParameters2D) *ScanParamsMsg {
	return &ScanParamsMsg{
		TopLeftX:   p.ROI.TopLeft.X,
		TopLeftY:   p.ROI.TopLeft.Y,
		LengthUnit: string(p.ROI.TopLeft.Unit),
		SizeWidth:  p.ROI.Size.Width,
		SizeHeight: p.ROI.Size.Height,
		Angle:      p.ROI.Angle,
		AngleUnit:  string(p.ROI.AngleUnit),
		NX:         int32(p.Shape.NX),
		NY:         int32(p.Shape.NY),
		DataUnit:   string(p.Shape.DataUnit),
	}
}

// ScanParamsFromWire is the inverse of ScanParamsToWire.
func ScanParamsFromWire(m *ScanParamsMsg) spatial.ScanParameters2D {
	return spatial.ScanParameters2D{
		ROI: spatial.ROI{
			TopLeft:   spatial.Point{X: m.TopLeftX, Y: m.TopLeftY, Unit: spatial.LengthUnit(m.LengthUnit)},
			Size:      spatial.Size{Width: m.SizeWidth, Height: m.SizeHeight, Unit: spatial.LengthUnit(m.LengthUnit)},
			Angle:     m.Angle,
			AngleUnit: spatial.AngleUnit(m.AngleUnit),
		},
		Shape: spatial.DigitalShape{NX: int(m.NX), NY: int(m.NY), DataUnit: spatial.DataUnit(m.DataUnit)},
	}
}

// ProbePositionToWire converts a domain ProbePosition into its wire form.
func ProbePositionToWire(p spatial.ProbePosition) *ProbePositionMsg {
	return &ProbePositionMsg{X: p.Position.X, Y: p.Position.Y, Unit: string(p.Position.Unit)}
}

// ProbePositionFromWire is the inverse of ProbePositionToWire.
func ProbePositionFromWire(m *ProbePositionMsg) spatial.ProbePosition {
	return spatial.ProbePosition{Position: spatial.Point{X: m.X, Y: m.Y, Unit: spatial.LengthUnit(m.Unit)}}
}

// ZCtrlParamsToWire converts a domain ZCtrlParameters into its wire form.
func ZCtrlParamsToWire(z spatial.ZCtrlParameters) *ZCtrlParamsMsg {
	return &ZCtrlParamsMsg{
		FeedbackOn:   z.FeedbackOn,
		PGain:        z.PGain,
		IGain:        z.IGain,
		SetPoint:     z.SetPoint,
		SetPointUnit: z.SetPointUnit,
	}
}

// ZCtrlParamsFromWire is the inverse of ZCtrlParamsToWire.
func ZCtrlParamsFromWire(m *ZCtrlParamsMsg) spatial.ZCtrlParameters {
	return spatial.ZCtrlParameters{
		FeedbackOn:   m.FeedbackOn,
		PGain:        m.PGain,
		IGain:        m.IGain,
		SetPoint:     m.SetPoint,
		SetPointUnit: m.SetPointUnit,
	}
}

// Scan2DToWire converts a domain Scan2D into its wire form.
func Scan2DToWire(s spatial.Scan2D) *Scan2DMsg {
	return &Scan2DMsg{
		TimestampUnixNanos: s.Timestamp.UnixNano(),
		Filename:           s.Filename,
		Channel:            s.Channel,
		Roi: ScanParamsToWire(spatial.ScanParameters2D{
			ROI:   s.ROI,
			Shape: s.Shape,
		}),
		Values: s.Values,
	}
}

// Scan2DFromWire is the inverse of Scan2DToWire.
func Scan2DFromWire(m *Scan2DMsg) spatial.Scan2D {
	params := ScanParamsFromWire(m.Roi)
	return spatial.Scan2D{
		Timestamp: time.Unix(0, m.TimestampUnixNanos).UTC(),
		Filename:  m.Filename,
		Channel:   m.Channel,
		ROI:       params.ROI,
		Shape:     params.Shape,
		Values:    m.Values,
	}
}

// Spec1DToWire converts a domain Spec1D into its wire form.
func Spec1DToWire(s spatial.Spec1D) *Spec1DMsg {
	return &Spec1DMsg{
		TimestampUnixNanos: s.Timestamp.UnixNano(),
		Filename:           s.Filename,
		Type:               s.Type,
		ProbePos:           ProbePositionToWire(spatial.ProbePosition{Position: s.ProbePos}),
		NumVariables:       int32(s.Data.NumVariables),
		DataPerVariable:    int32(s.Data.DataPerVariable),
		Names:              s.Data.Names,
		Units:              s.Data.Units,
		Values:             s.Data.Values,
	}
}

// Spec1DFromWire is the inverse of Spec1DToWire.
func Spec1DFromWire(m *Spec1DMsg) spatial.Spec1D {
	return spatial.Spec1D{
		Timestamp: time.Unix(0, m.TimestampUnixNanos).UTC(),
		Filename:  m.Filename,
		Type:      m.Type,
		ProbePos:  ProbePositionFromWire(m.ProbePos).Position,
		Data: spatial.SpecData{
			NumVariables:    int(m.NumVariables),
			DataPerVariable: int(m.DataPerVariable),
			Names:           m.Names,
			Units:           m.Units,
			Values:          m.Values,
		},
	}
}
