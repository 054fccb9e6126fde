// Package spatial holds the portable spatial/physical data model shared by
// every component: ROIs, scan/spectrum payloads, and the unit algebra the
// Parameter Handler uses to convert between portable and device-native units.
package spatial

import (
	"fmt"
	"math"
	"strings"
)

// LengthUnit is a physical length unit understood by the unit algebra.
type LengthUnit string

// Supported length units, smallest to largest.
const (
	LengthPicometers  LengthUnit = "pm"
	LengthNanometers  LengthUnit = "nm"
	LengthMicrometers LengthUnit = "um"
	LengthMillimeters LengthUnit = "mm"
	LengthMeters      LengthUnit = "m"
)

var lengthToMeters = map[LengthUnit]float64{
	LengthPicometers:  1e-12,
	LengthNanometers:  1e-9,
	LengthMicrometers: 1e-6,
	LengthMillimeters: 1e-3,
	LengthMeters:      1,
}

// AngleUnit is a unit of rotation.
type AngleUnit string

const (
	AngleDegrees AngleUnit = "deg"
	AngleRadians AngleUnit = "rad"
)

// DataUnit is the unit attached to scan/spectrum channel values (volts,
// amperes, degrees-of-phase, ...); the set is open, so it is not validated
// against a closed table the way LengthUnit and AngleUnit are.
type DataUnit string

// ConvertLength converts a value from one length unit to another.
func ConvertLength(value float64, from, to LengthUnit) (float64, error) {
	fromFactor, ok := lengthToMeters[from]
	if !ok {
		return 0, fmt.Errorf("spatial: unknown length unit %q", from)
	}
	toFactor, ok := lengthToMeters[to]
	if !ok {
		return 0, fmt.Errorf("spatial: unknown length unit %q", to)
	}
	// Every factor is a power of ten: scale by the exact power of ten between
	// the units, so 1 um converts to exactly 1000 nm.
	exp := int(math.Round(math.Log10(fromFactor) - math.Log10(toFactor)))
	if exp >= 0 {
		return value * math.Pow10(exp), nil
	}
	return value / math.Pow10(-exp), nil
}

// ConvertAngle converts a value between degrees and radians.
func ConvertAngle(value float64, from, to AngleUnit) (float64, error) {
	if from == to {
		return value, nil
	}
	switch {
	case from == AngleDegrees && to == AngleRadians:
		return value * 3.14159265358979323846 / 180.0, nil
	case from == AngleRadians && to == AngleDegrees:
		return value * 180.0 / 3.14159265358979323846, nil
	default:
		return 0, fmt.Errorf("spatial: unknown angle unit conversion %q -> %q", from, to)
	}
}

// ParseLengthUnit normalizes common spellings (case, "nanometer(s)", "µm")
// into a canonical LengthUnit. An empty string is an error: callers that
// treat "no unit" as "native unit" must check for that case themselves.
func ParseLengthUnit(text string) (LengthUnit, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "pm", "picometer", "picometers":
		return LengthPicometers, nil
	case "nm", "nanometer", "nanometers":
		return LengthNanometers, nil
	case "um", "µm", "micrometer", "micrometers":
		return LengthMicrometers, nil
	case "mm", "millimeter", "millimeters":
		return LengthMillimeters, nil
	case "m", "meter", "meters":
		return LengthMeters, nil
	default:
		return "", fmt.Errorf("spatial: unrecognized length unit %q", text)
	}
}
