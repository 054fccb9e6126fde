package drift

import (
	"fmt"
	"sort"

	"github.com/afspm-go/afspm/internal/wire"
	"github.com/afspm-go/afspm/spatial"
)

// FindCandidate selects a prior scan from history to compare newScan
// against, per spec §4.10: a candidate must sufficiently intersect
// newScan's ROI (minIntersectionRatio) and have a sufficiently similar
// spatial resolution (minResRatio), guarding against comparing scans taken
// at very different zoom levels. If multiple scans qualify, grabOldest
// selects the earliest by timestamp, otherwise the most recent.
func FindCandidate(history []*wire.Scan2DMsg, newScan *wire.Scan2DMsg, minIntersectionRatio, minResRatio float64, grabOldest bool) (*wire.Scan2DMsg, error) {
	newROI, newShape, err := roiAndShapeFromScan(newScan)
	if err != nil {
		return nil, fmt.Errorf("drift: candidate scan: %w", err)
	}

	var candidates []*wire.Scan2DMsg
	for _, prior := range history {
		if prior == newScan {
			continue
		}
		priorROI, priorShape, err := roiAndShapeFromScan(prior)
		if err != nil {
			continue
		}
		ratio, err := symmetricIntersectionRatio(priorROI, newROI)
		if err != nil || ratio < minIntersectionRatio {
			continue
		}
		resRatio, err := symmetricResolutionRatio(newROI, newShape, priorROI, priorShape)
		if err != nil || resRatio < minResRatio {
			continue
		}
		candidates = append(candidates, prior)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].TimestampUnixNanos < candidates[j].TimestampUnixNanos
	})
	if grabOldest {
		return candidates[0], nil
	}
	return candidates[len(candidates)-1], nil
}

// symmetricIntersectionRatio reports the overlap between a and b as a
// fraction of the *smaller* of the two areas (spec §4.10, ported from the
// original's intersection_ratio: "divide the area of this intersection by
// the smaller of the two rectangles"). spatial.ROI.IntersectionRatio
// divides by its second argument's area, so calling it both ways and
// keeping the larger result always selects the smaller-area denominator.
func symmetricIntersectionRatio(a, b spatial.ROI) (float64, error) {
	ab, err := a.IntersectionRatio(b)
	if err != nil {
		return 0, err
	}
	ba, err := b.IntersectionRatio(a)
	if err != nil {
		return 0, err
	}
	if ab > ba {
		return ab, nil
	}
	return ba, nil
}

// symmetricResolutionRatio reports the spatial resolution ratio between a
// and b as smaller-density/larger-density, so it always falls in [0, 1]
// (ported from the original's spatial_resolution_ratio_min_max).
func symmetricResolutionRatio(aROI spatial.ROI, aShape spatial.DigitalShape, bROI spatial.ROI, bShape spatial.DigitalShape) (float64, error) {
	ratio, err := spatial.ResolutionRatio(aROI, aShape, bROI, bShape)
	if err != nil {
		return 0, err
	}
	if ratio > 1 {
		return 1 / ratio, nil
	}
	return ratio, nil
}

func roiAndShapeFromScan(scan *wire.Scan2DMsg) (spatial.ROI, spatial.DigitalShape, error) {
	if scan.Roi == nil {
		return spatial.ROI{}, spatial.DigitalShape{}, fmt.Errorf("drift: scan %q has no ROI", scan.Filename)
	}
	unit, err := spatial.ParseLengthUnit(scan.Roi.LengthUnit)
	if err != nil {
		return spatial.ROI{}, spatial.DigitalShape{}, err
	}
	angleUnit := spatial.AngleDegrees
	if scan.Roi.AngleUnit != "" {
		angleUnit = spatial.AngleUnit(scan.Roi.AngleUnit)
	}
	roi := spatial.ROI{
		TopLeft: spatial.Point{X: scan.Roi.TopLeftX, Y: scan.Roi.TopLeftY, Unit: unit},
		Size:    spatial.Size{Width: scan.Roi.SizeWidth, Height: scan.Roi.SizeHeight, Unit: unit},
		Angle:   scan.Roi.Angle,
		AngleUnit: angleUnit,
	}
	shape := spatial.DigitalShape{
		NX:       int(scan.Roi.NX),
		NY:       int(scan.Roi.NY),
		DataUnit: spatial.DataUnit(scan.Roi.DataUnit),
	}
	return roi, shape, nil
}
