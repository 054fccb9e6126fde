package spatial

import "fmt"

// Point is a 2D coordinate in a declared length unit. It appears both in the
// tip frame (as driven to the instrument) and the sample frame (as seen by
// every other component once a Drift-Corrected Scheduler is in the path).
type Point struct {
	X, Y float64
	Unit LengthUnit
}

// Add returns p translated by d, after converting d into p's unit.
func (p Point) Add(d Vector) (Point, error) {
	dx, err := ConvertLength(d.X, d.Unit, p.Unit)
	if err != nil {
		return Point{}, err
	}
	dy, err := ConvertLength(d.Y, d.Unit, p.Unit)
	if err != nil {
		return Point{}, err
	}
	return Point{X: p.X + dx, Y: p.Y + dy, Unit: p.Unit}, nil
}

// Sub returns p translated by the negation of d (the inverse of Add).
func (p Point) Sub(d Vector) (Point, error) {
	return p.Add(Vector{X: -d.X, Y: -d.Y, Unit: d.Unit})
}

// Vector is a displacement, distinct from Point only by name: it carries no
// origin. Kept as a separate type so transform code reads as "point plus
// displacement" rather than "point plus point".
type Vector struct {
	X, Y float64
	Unit LengthUnit
}

// Size is a width/height pair in a declared length unit.
type Size struct {
	Width, Height float64
	Unit          LengthUnit
}

// ROI is a rectangular region of interest: a top-left origin, a size, and an
// optional rotation. AngleUnit and Angle are the zero value when the ROI is
// axis-aligned (spec §3 invariant: "if angle absent, ROI is axis-aligned").
type ROI struct {
	TopLeft   Point
	Size      Size
	Angle     float64
	AngleUnit AngleUnit
}

// IsAxisAligned reports whether the ROI carries no rotation.
func (r ROI) IsAxisAligned() bool {
	return r.Angle == 0
}

// IntersectionRatio returns the fraction of b's area that overlaps a's area,
// ignoring rotation (used by the drift scheduler's rescan trigger and
// candidate-scan matching, both of which only need a coarse overlap
// estimate, not an exact rotated-rectangle intersection).
func (a ROI) IntersectionRatio(b ROI) (float64, error) {
	ax0, ay0, err := toMeters(a.TopLeft)
	if err != nil {
		return 0, err
	}
	aw, ah, err := sizeToMeters(a.Size)
	if err != nil {
		return 0, err
	}
	bx0, by0, err := toMeters(b.TopLeft)
	if err != nil {
		return 0, err
	}
	bw, bh, err := sizeToMeters(b.Size)
	if err != nil {
		return 0, err
	}

	ax1, ay1 := ax0+aw, ay0+ah
	bx1, by1 := bx0+bw, by0+bh

	ix0, iy0 := max(ax0, bx0), max(ay0, by0)
	ix1, iy1 := min(ax1, bx1), min(ay1, by1)

	iw, ih := ix1-ix0, iy1-iy0
	if iw <= 0 || ih <= 0 {
		return 0, nil
	}

	bArea := bw * bh
	if bArea <= 0 {
		return 0, fmt.Errorf("spatial: ROI b has non-positive area")
	}
	return (iw * ih) / bArea, nil
}

// ResolutionRatio compares the (pixels / physical-length) density of two
// ROIs given their associated digital shapes, used by the drift candidate
// matcher to reject scans taken at a very different zoom level.
func ResolutionRatio(aROI ROI, aShape DigitalShape, bROI ROI, bShape DigitalShape) (float64, error) {
	aw, _, err := sizeToMeters(aROI.Size)
	if err != nil {
		return 0, err
	}
	bw, _, err := sizeToMeters(bROI.Size)
	if err != nil {
		return 0, err
	}
	if aw <= 0 || bw <= 0 || aShape.NX <= 0 || bShape.NX <= 0 {
		return 0, fmt.Errorf("spatial: cannot compute resolution ratio from degenerate ROI/shape")
	}
	aDensity := float64(aShape.NX) / aw
	bDensity := float64(bShape.NX) / bw
	if bDensity == 0 {
		return 0, fmt.Errorf("spatial: zero resolution density")
	}
	return aDensity / bDensity, nil
}

func toMeters(p Point) (float64, float64, error) {
	x, err := ConvertLength(p.X, p.Unit, LengthMeters)
	if err != nil {
		return 0, 0, err
	}
	y, err := ConvertLength(p.Y, p.Unit, LengthMeters)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func sizeToMeters(s Size) (float64, float64, error) {
	w, err := ConvertLength(s.Width, s.Unit, LengthMeters)
	if err != nil {
		return 0, 0, err
	}
	h, err := ConvertLength(s.Height, s.Unit, LengthMeters)
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// DigitalShape describes the pixel/sample grid backing a Scan2D.
type DigitalShape struct {
	NX, NY   int
	DataUnit DataUnit
}
