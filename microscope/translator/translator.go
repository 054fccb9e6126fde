package translator

import (
	"context"
	"errors"
	"os"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/control"
	"github.com/afspm-go/afspm/heartbeat"
	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
	"github.com/afspm-go/afspm/microscope/action"
	"github.com/afspm-go/afspm/microscope/param"
)

// DefaultPollTimeout bounds how long a single loop iteration waits for a
// pending control request before moving on to polling the device.
const DefaultPollTimeout = 100 * time.Millisecond

// DefaultLoopSleep is the pause between main loop iterations (spec §5).
const DefaultLoopSleep = 200 * time.Millisecond

// allowedWhileNotFree is the whitelist of requests served regardless of
// scope_state (spec §4.8 step 1): everything else gets NOT_FREE.
func allowedWhileNotFree(code wire.RequestCode) bool {
	return code == wire.ReqStopScan
}

// Translator owns a Publisher, a Control Server, a cached view of device
// state, a Parameter Handler, and an Action Handler (spec §4.8). It runs a
// single-threaded loop: serve one request, poll the device, emit whatever
// changed in the mandated order.
type Translator struct {
	publisher *transport.Publisher
	server    *control.Server
	device    Device
	params    *param.Handler
	actions   *action.Handler
	log       *logrus.Entry

	scopeState  wire.ScopeState
	scanParams  *wire.ScanParamsMsg
	zctrlParams *wire.ZCtrlParamsMsg
	scans       []*wire.Scan2DMsg
	spec        *wire.Spec1DMsg
	probePos    *wire.ProbePositionMsg

	// Spatial enrichment snapshots (spec §4.8 step 5): the scan/spec
	// parameters in force at the moment the corresponding action started.
	scanROIAtStart      *wire.ScanParamsMsg
	specProbePosAtStart *wire.ProbePositionMsg
}

// NewTranslator builds a Translator around a device adapter, wiring its
// four built-in actions (START_SCAN, STOP_SCAN, START_SPEC, STOP_SPEC) onto
// the supplied Action Handler alongside whatever device-specific actions
// the caller has already registered there.
func NewTranslator(pub *transport.Publisher, server *control.Server, device Device,
	params *param.Handler, actions *action.Handler) *Translator {
	t := &Translator{
		publisher:  pub,
		server:     server,
		device:     device,
		params:     params,
		actions:    actions,
		scopeState: wire.ScopeUndefined,
		log:        logrus.WithField("component", "translator"),
	}
	actions.RegisterAction("START_SCAN", t.handleStartScan)
	actions.RegisterAction("STOP_SCAN", device.StopScan)
	actions.RegisterAction("START_SPEC", t.handleStartSpec)
	actions.RegisterAction("STOP_SPEC", device.StopSpec)
	return t
}

func (t *Translator) handleStartScan() error {
	if t.scanParams != nil {
		snapshot := *t.scanParams
		t.scanROIAtStart = &snapshot
	}
	return t.device.StartScan()
}

func (t *Translator) handleStartSpec() error {
	if t.probePos != nil {
		snapshot := *t.probePos
		t.specProbePosAtStart = &snapshot
	}
	return t.device.StartSpec()
}

// Run executes the main loop until ctx is cancelled or a KILL signal is
// observed on killSub (may be nil if this Translator has no subscriber).
// On either exit path it sends a closing heartbeat, matching the Monitor's
// expectation of a clean planned exit (spec §4.11).
func (t *Translator) Run(ctx context.Context, hb *heartbeat.Heartbeater, killSub *transport.Subscriber, loopSleep, pollTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			if hb != nil {
				hb.HandleClosing()
			}
			return
		default:
		}

		if killSub != nil {
			killSub.Poll(0)
			if killSub.Killed() {
				t.log.Info("kill signal received, stopping")
				if hb != nil {
					hb.HandleClosing()
				}
				return
			}
		}

		t.handleIncomingRequests(pollTimeout)
		t.handlePollingDevice()

		if hb != nil {
			hb.HandleBeat()
		}
		time.Sleep(loopSleep)
	}
}

// handleIncomingRequests implements spec §4.8 step 1.
func (t *Translator) handleIncomingRequests(pollTimeout time.Duration) {
	req, ok := t.server.Poll(pollTimeout)
	if !ok {
		return
	}

	if t.scopeState != wire.ScopeFree && !allowedWhileNotFree(req.Code) {
		if err := t.server.Reply(req.Identity, wire.RepNotFree, nil); err != nil {
			t.log.WithError(err).Warn("reply failed")
		}
		return
	}

	code, payload := t.dispatch(req)

	// Special case: a cancelled scan emits one INTERRUPTED event before
	// the next normal state publication, so clients can distinguish it
	// from a completed scan (spec §4.8 step 1).
	if req.Code == wire.ReqStopScan && code == wire.RepSuccess {
		t.scopeState = wire.ScopeInterrupted
		if err := t.publish(&wire.ScopeStateMsg{State: int32(wire.ScopeInterrupted)}); err != nil {
			t.log.WithError(err).Warn("publish interrupted state failed")
		}
	}

	if err := t.server.Reply(req.Identity, code, payload); err != nil {
		t.log.WithError(err).Warn("reply failed")
	}
}

func (t *Translator) dispatch(req control.Request) (wire.ReplyCode, wire.Message) {
	switch req.Code {
	case wire.ReqStartScan:
		return t.onAction("START_SCAN")
	case wire.ReqStopScan:
		return t.onAction("STOP_SCAN")
	case wire.ReqStartSpec:
		return t.onAction("START_SPEC")
	case wire.ReqStopSpec:
		return t.onAction("STOP_SPEC")
	case wire.ReqSetScanParams:
		return t.onSetScanParams(req.Payload.(*wire.ScanParamsMsg))
	case wire.ReqSetZCtrlParams:
		return t.onSetZCtrlParams(req.Payload.(*wire.ZCtrlParamsMsg))
	case wire.ReqGetParameter:
		return t.onGetParameter(req.Payload.(*wire.ParameterMsg))
	case wire.ReqSetParameter:
		return t.onSetParameter(req.Payload.(*wire.ParameterMsg))
	case wire.ReqRequestAction:
		return t.onActionRequest(req.Payload.(*wire.ActionMsg))
	case wire.ReqSetProbePosition:
		return t.onSetProbePosition(req.Payload.(*wire.ProbePositionMsg))
	default:
		return wire.RepFailure, nil
	}
}

func (t *Translator) onAction(name string) (wire.ReplyCode, wire.Message) {
	if err := t.actions.RequestAction(name); err != nil {
		if errors.Is(err, action.ErrNotSupported) {
			return wire.RepActionNotSupported, nil
		}
		return wire.RepActionError, nil
	}
	return wire.RepSuccess, nil
}

func (t *Translator) onActionRequest(req *wire.ActionMsg) (wire.ReplyCode, wire.Message) {
	return t.onAction(req.Name)
}

func (t *Translator) onSetScanParams(req *wire.ScanParamsMsg) (wire.ReplyCode, wire.Message) {
	if err := t.device.SetScanParams(req); err != nil {
		if errors.Is(err, ErrNotSupported) {
			return wire.RepParameterNotSupported, nil
		}
		t.log.WithError(err).Warn("set scan params failed")
		return wire.RepParameterError, nil
	}
	return wire.RepSuccess, nil
}

func (t *Translator) onSetZCtrlParams(req *wire.ZCtrlParamsMsg) (wire.ReplyCode, wire.Message) {
	if err := t.device.SetZCtrlParams(req); err != nil {
		if errors.Is(err, ErrNotSupported) {
			return wire.RepParameterNotSupported, nil
		}
		t.log.WithError(err).Warn("set zctrl params failed")
		return wire.RepParameterError, nil
	}
	return wire.RepSuccess, nil
}

func (t *Translator) onSetProbePosition(req *wire.ProbePositionMsg) (wire.ReplyCode, wire.Message) {
	if err := t.device.SetProbePosition(req); err != nil {
		if errors.Is(err, ErrNotSupported) {
			return wire.RepParameterNotSupported, nil
		}
		t.log.WithError(err).Warn("set probe position failed")
		return wire.RepParameterError, nil
	}
	return wire.RepSuccess, nil
}

func (t *Translator) onGetParameter(req *wire.ParameterMsg) (wire.ReplyCode, wire.Message) {
	value, unit, err := t.params.GetParam(req.Name)
	if err != nil {
		if errors.Is(err, param.ErrNotSupported) {
			return wire.RepParameterNotSupported, nil
		}
		return wire.RepParameterError, nil
	}
	return wire.RepSuccess, &wire.ParameterMsg{Name: req.Name, ValueText: &value, ValueUnit: &unit}
}

func (t *Translator) onSetParameter(req *wire.ParameterMsg) (wire.ReplyCode, wire.Message) {
	if req.ValueText == nil {
		return wire.RepParameterError, nil
	}
	unit := ""
	if req.ValueUnit != nil {
		unit = *req.ValueUnit
	}
	if err := t.params.SetParam(req.Name, *req.ValueText, unit); err != nil {
		if errors.Is(err, param.ErrNotSupported) {
			return wire.RepParameterNotSupported, nil
		}
		return wire.RepParameterError, nil
	}
	return wire.RepSuccess, nil
}

// handlePollingDevice implements spec §4.8 steps 2-5: poll scope_state,
// scans, scan_params, zctrl_params (in that order), and emit whatever
// changed in the order scans -> scan_params -> zctrl_params -> scope_state,
// with scope_state always last.
func (t *Translator) handlePollingDevice() {
	oldScopeState := t.scopeState
	if newState, err := t.device.PollScopeState(); err != nil {
		pollErrors.WithLabelValues("scope_state").Inc()
		t.log.WithError(err).Warn("poll scope state failed, keeping last known state")
	} else {
		t.scopeState = newState
	}

	if oldScopeState == wire.ScopeScanning && t.scopeState != wire.ScopeScanning {
		t.pollAndEmitScans()
	}

	t.pollAndEmitScanParams()
	t.pollAndEmitZCtrlParams()
	t.pollSpecAndProbePos()

	if oldScopeState != t.scopeState {
		if err := t.publish(&wire.ScopeStateMsg{State: int32(t.scopeState)}); err != nil {
			t.log.WithError(err).Warn("publish scope state failed")
		}
	}
}

func (t *Translator) pollAndEmitScans() {
	oldScans := t.scans
	newScans, err := t.device.PollScans()
	if err != nil {
		pollErrors.WithLabelValues("scans").Inc()
		t.log.WithError(err).Warn("poll scans failed")
		return
	}
	t.scans = newScans

	if !scansChanged(oldScans, newScans) {
		return
	}
	for _, scan := range newScans {
		t.enrichScan(scan)
		if err := t.publish(scan); err != nil {
			t.log.WithError(err).Warn("publish scan failed")
		}
	}
}

func (t *Translator) pollAndEmitScanParams() {
	old := t.scanParams
	next, err := t.device.PollScanParams()
	if err != nil {
		pollErrors.WithLabelValues("scan_params").Inc()
		t.log.WithError(err).Warn("poll scan params failed")
		return
	}
	t.scanParams = next
	if old == nil || !reflect.DeepEqual(*old, *next) {
		if err := t.publish(next); err != nil {
			t.log.WithError(err).Warn("publish scan params failed")
		}
	}
}

func (t *Translator) pollAndEmitZCtrlParams() {
	old := t.zctrlParams
	next, err := t.device.PollZCtrlParams()
	if err != nil {
		pollErrors.WithLabelValues("zctrl_params").Inc()
		t.log.WithError(err).Warn("poll zctrl params failed")
		return
	}
	t.zctrlParams = next
	if old == nil || !reflect.DeepEqual(*old, *next) {
		if err := t.publish(next); err != nil {
			t.log.WithError(err).Warn("publish zctrl params failed")
		}
	}
}

// pollSpecAndProbePos polls the (supplemental) 1D-spectroscopy and probe
// position state; spec §6 lists these in the instrument contract but §5's
// ordering guarantee only binds scans/scan_params/zctrl_params/scope_state,
// so they are emitted before the scope_state publication without being
// part of that contract.
func (t *Translator) pollSpecAndProbePos() {
	if pos, err := t.device.PollProbePos(); err != nil {
		pollErrors.WithLabelValues("probe_position").Inc()
		t.log.WithError(err).Warn("poll probe position failed")
	} else if pos != nil {
		t.probePos = pos
	}

	old := t.spec
	next, err := t.device.PollSpec()
	if err != nil {
		pollErrors.WithLabelValues("spec").Inc()
		t.log.WithError(err).Warn("poll spec failed")
		return
	}
	if next == nil {
		return
	}
	t.spec = next

	changed := old == nil
	if !changed {
		if next.TimestampUnixNanos != 0 && old.TimestampUnixNanos != 0 {
			changed = next.TimestampUnixNanos != old.TimestampUnixNanos
		} else {
			changed = !reflect.DeepEqual(next.Values, old.Values)
		}
	}
	if !changed {
		return
	}

	if t.specProbePosAtStart != nil {
		snapshot := *t.specProbePosAtStart
		next.ProbePos = &snapshot
	}
	if next.Filename != "" {
		stampFromFile(next.Filename, &next.TimestampUnixNanos, t.log)
	}
	if err := t.publish(next); err != nil {
		t.log.WithError(err).Warn("publish spec failed")
	}
}

// scansChanged implements spec §4.8 step 4: new iff the prior set was
// empty and the new one isn't, or both are non-empty and the first
// channel's timestamps (or, absent those, value vectors) differ.
func scansChanged(old, new []*wire.Scan2DMsg) bool {
	onlyNewHasScans := len(new) > 0 && len(old) == 0
	bothHaveScans := len(new) > 0 && len(old) > 0
	if onlyNewHasScans {
		return true
	}
	if !bothHaveScans {
		return false
	}
	if new[0].TimestampUnixNanos != 0 && old[0].TimestampUnixNanos != 0 {
		return new[0].TimestampUnixNanos != old[0].TimestampUnixNanos
	}
	return !reflect.DeepEqual(new[0].Values, old[0].Values)
}

// enrichScan implements spec §4.8 step 5: the device is trusted for
// resolution and values, not for ROI origin, so the spatial field is
// always overwritten with the params captured at START_SCAN time, and the
// timestamp is always the file's modification time.
func (t *Translator) enrichScan(scan *wire.Scan2DMsg) {
	if t.scanROIAtStart != nil {
		snapshot := *t.scanROIAtStart
		scan.Roi = &snapshot
	}
	if scan.Filename != "" {
		stampFromFile(scan.Filename, &scan.TimestampUnixNanos, t.log)
	}
}

func stampFromFile(filename string, ts *int64, log *logrus.Entry) {
	info, err := os.Stat(filename)
	if err != nil {
		log.WithError(err).WithField("filename", filename).Warn("could not stat file for timestamp")
		return
	}
	*ts = info.ModTime().UnixNano()
}

// publish marshals msg and publishes it under its type-derived topic.
func (t *Translator) publish(msg wire.Message) error {
	buf, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	t.publisher.Publish(wire.TypeTopic(msg), buf)
	return nil
}
