package translator

import "github.com/afspm-go/afspm/internal/wire"

// Device is the instrument-translator contract (spec §6): the boundary
// between the core Translator state machine and a device-specific adapter.
// Poll methods return the device's current understanding of state; they
// should wrap a device error in ErrDevice rather than panic, so a transient
// instrument hiccup never brings the Translator down.
type Device interface {
	// StartScan, StopScan, StartSpec, StopSpec perform the four built-in
	// actions (spec §4.7) the Translator registers on its Action Handler.
	StartScan() error
	StopScan() error
	StartSpec() error
	StopSpec() error

	// SetScanParams, SetZCtrlParams, and SetProbePosition are the
	// "dedicated on_set_*" handlers spec §4.8 distinguishes from the
	// generic Parameter Handler pipeline. Return ErrNotSupported if the
	// device has no such capability (e.g. no Z-controller feedback, or
	// no probe positioning stage).
	SetScanParams(*wire.ScanParamsMsg) error
	SetZCtrlParams(*wire.ZCtrlParamsMsg) error
	SetProbePosition(*wire.ProbePositionMsg) error

	// PollScopeState, PollScanParams, PollZCtrlParams, PollScans,
	// PollSpec, PollProbePos report the device's current state. A nil
	// return (for PollSpec/PollProbePos) or empty slice (for PollScans)
	// means "nothing to report" and is not an error.
	PollScopeState() (wire.ScopeState, error)
	PollScanParams() (*wire.ScanParamsMsg, error)
	PollZCtrlParams() (*wire.ZCtrlParamsMsg, error)
	PollScans() ([]*wire.Scan2DMsg, error)
	PollSpec() (*wire.Spec1DMsg, error)
	PollProbePos() (*wire.ProbePositionMsg, error)
}
