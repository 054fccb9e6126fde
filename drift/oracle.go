package drift

import "github.com/afspm-go/afspm/internal/wire"

// Oracle is the external boundary between C10 and an image-registration
// routine (spec §6: `estimate_drift(scan_a, scan_b, max_fit_score) ->
// DriftSnapshot?`). older and newer are two scans believed to overlap in
// the tip coordinate system; maxFitScore bounds how poor a fit is still
// accepted (lower is better, mirroring a RANSAC residual threshold). A nil
// snapshot with a nil error means no sufficiently confident fit was found,
// not a failure.
//
// This repository does not implement image registration: callers supply an
// Oracle backed by whatever fitting routine they have (feature matching,
// phase correlation, ...). The blending arithmetic in correction.go and the
// candidate selection in match.go are all that consume its output.
type Oracle func(older, newer *wire.Scan2DMsg, maxFitScore float64) (*DriftSnapshot, error)
