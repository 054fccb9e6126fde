package spatial

import (
	"fmt"
	"time"
)

// Scan2D is a completed 2D image: spatial ROI, digital shape, and the raster
// of values. Invariant: len(Values) == Shape.NX*Shape.NY.
type Scan2D struct {
	Timestamp time.Time
	Filename  string
	Channel   string
	ROI       ROI
	Shape     DigitalShape
	Values    []float64
}

// Validate checks the len(values) = nx*ny invariant from spec §3.
func (s Scan2D) Validate() error {
	want := s.Shape.NX * s.Shape.NY
	if len(s.Values) != want {
		return fmt.Errorf("spatial: Scan2D %q channel %q: len(values)=%d, want nx*ny=%d",
			s.Filename, s.Channel, len(s.Values), want)
	}
	return nil
}

// SpecData is the multi-variable payload of a Spec1D point spectrum.
// Invariant: len(Values) == NumVariables*DataPerVariable.
type SpecData struct {
	NumVariables    int
	DataPerVariable int
	Names           []string
	Units           []string
	Values          []float64
}

// Validate checks the len(values) = num_variables*data_per_variable
// invariant from spec §3.
func (d SpecData) Validate() error {
	want := d.NumVariables * d.DataPerVariable
	if len(d.Values) != want {
		return fmt.Errorf("spatial: SpecData: len(values)=%d, want num_variables*data_per_variable=%d",
			len(d.Values), want)
	}
	return nil
}

// Spec1D is a completed point spectrum (e.g. an I-V curve).
type Spec1D struct {
	Timestamp time.Time
	Filename  string
	Type      string
	ProbePos  Point
	Data      SpecData
}

// Validate checks the nested SpecData invariant.
func (s Spec1D) Validate() error {
	return s.Data.Validate()
}

// ScanParameters2D is the write-side request payload describing the ROI and
// digital shape a scan should be taken with. It is one of the spatial-bearing
// message types the Drift-Corrected Scheduler transforms (spec §9): walk it
// exhaustively rather than reflectively.
type ScanParameters2D struct {
	ROI   ROI
	Shape DigitalShape
}

// ZCtrlParameters is the write-side request payload for the Z-feedback loop.
type ZCtrlParameters struct {
	FeedbackOn bool
	PGain      float64
	IGain      float64
	SetPoint   float64
	SetPointUnit string
}

// ProbePosition is the write-side request payload moving the probe to a
// single point (as opposed to scanning a ROI). It is the other spatial-
// bearing message type the Drift-Corrected Scheduler transforms.
type ProbePosition struct {
	Position Point
}
