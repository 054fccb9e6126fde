// Package router implements the Control Router (spec §2 C5, §4.5): it sits
// between many Control Clients and a single Control Server, deciding who
// is allowed to drive the instrument and forwarding only the requests of
// whoever currently holds control.
package router

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/control"
	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
)

// DefaultServerTimeout bounds how long the Router waits for the backend
// Control Server to answer a forwarded request before restarting that
// connection and replying wire.RepNoResponse (spec §4.5 rule 7).
const DefaultServerTimeout = 1 * time.Second

// Router is the control-mode/problem-set state machine described in spec
// §4.5: exactly one client may hold control at a time, any client may
// raise or clear experiment problems, and problems in the set forbid
// AUTOMATED mode.
type Router struct {
	frontend *transport.ControlServer
	backend  *control.Client

	backendAddr    string
	backendIdentity string
	dialTimeout    time.Duration

	log *logrus.Entry

	mu                 sync.Mutex
	problemsSet        map[wire.Problem]struct{}
	controlMode        wire.ControlMode
	clientInControl    string
	lastScanParams     *wire.ScanParamsMsg
	shutdownRequested  bool
	serverTimeout      time.Duration
	requestTransform   func(wire.RequestCode, []byte) []byte
}

// NewRouter binds routerAddr for Control Clients and dials serverAddr, the
// Translator's Control Server, as its backend.
func NewRouter(routerAddr, serverAddr string, dialTimeout time.Duration) (*Router, error) {
	frontend, err := transport.NewControlServer(routerAddr)
	if err != nil {
		return nil, err
	}
	backend, err := control.NewClient(serverAddr, "router-backend", dialTimeout, 0)
	if err != nil {
		frontend.Close()
		return nil, err
	}
	return &Router{
		frontend:       frontend,
		backend:        backend,
		backendAddr:    serverAddr,
		backendIdentity: "router-backend",
		dialTimeout:    dialTimeout,
		log:            logrus.WithField("component", "control_router"),
		problemsSet:    make(map[wire.Problem]struct{}),
		controlMode:    wire.ControlAutomated,
		serverTimeout:  DefaultServerTimeout,
	}, nil
}

// Addr returns the frontend's bound address.
func (r *Router) Addr() string { return r.frontend.Addr().String() }

// SetRequestTransform installs a hook applied to a forwarded request's
// payload immediately before it reaches the backend Control Server,
// letting a composed component (the Drift-Corrected Scheduler, spec §4.10)
// rewrite spatial fields sample-frame -> tip-frame. A nil fn (the default)
// forwards payloads unmodified.
func (r *Router) SetRequestTransform(fn func(wire.RequestCode, []byte) []byte) {
	r.mu.Lock()
	r.requestTransform = fn
	r.mu.Unlock()
}

// PollAndHandle waits up to timeout for the next Control Client request
// and handles it, replying before returning.
func (r *Router) PollAndHandle(timeout time.Duration) {
	identity, rawCode, rawPayload, ok := r.frontend.Poll(timeout)
	if !ok {
		return
	}
	code := wire.RequestCode(rawCode)
	rep, replyPayload := r.onRequest(identity, code, rawPayload)
	if err := r.frontend.Reply(identity, byte(rep), replyPayload); err != nil {
		r.log.WithError(err).WithField("client", identity).Warn("reply failed")
	}
}

func (r *Router) onRequest(identity string, code wire.RequestCode, payload []byte) (wire.ReplyCode, []byte) {
	r.log.WithField("client", identity).WithField("code", code).Debug("handling request")

	switch code {
	case wire.ReqRequestControl:
		return r.handleControlRequest(identity, control.DecodeControlMode(payload)), nil
	case wire.ReqReleaseControl:
		return r.handleControlRelease(identity), nil
	case wire.ReqAddProblem:
		return r.handleExperimentProblem(true, control.DecodeProblem(payload)), nil
	case wire.ReqRemoveProblem:
		return r.handleExperimentProblem(false, control.DecodeProblem(payload)), nil
	case wire.ReqSetControlMode:
		return r.handleSetControlMode(control.DecodeControlMode(payload)), nil
	case wire.ReqEndExperiment:
		return r.handleEndExperiment(), nil
	default:
		r.mu.Lock()
		inControl := r.clientInControl != "" && r.clientInControl == identity
		r.mu.Unlock()
		if !inControl {
			return wire.RepNotInControl, nil
		}
		return r.handleSendReq(code, payload)
	}
}

// handleControlRequest places client in control if the Router is not
// already under control and the requested mode matches the current one
// (spec §4.5 rule 1).
func (r *Router) handleControlRequest(client string, mode wire.ControlMode) wire.ReplyCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientInControl != "" {
		return wire.RepAlreadyUnderControl
	}
	if r.controlMode == mode {
		r.clientInControl = client
		return wire.RepSuccess
	}
	return wire.RepWrongControlMode
}

// handleControlRelease releases control, only if client currently holds it.
func (r *Router) handleControlRelease(client string) wire.ReplyCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientInControl != "" && r.clientInControl == client {
		r.clientInControl = ""
		return wire.RepSuccess
	}
	return wire.RepFailure
}

// handleExperimentProblem adds or removes a problem tag. Entering or
// exiting an empty problem set flips control_mode between PROBLEM and
// AUTOMATED and, per spec §9 OQ1, unconditionally clears whoever held
// control (the conservative reading: any control_mode transition nulls
// the controller, even when chained from ADD_PROBLEM while already in
// PROBLEM mode).
func (r *Router) handleExperimentProblem(add bool, problem wire.Problem) wire.ReplyCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	hadProblems := len(r.problemsSet) > 0
	if add {
		r.problemsSet[problem] = struct{}{}
	} else {
		delete(r.problemsSet, problem)
	}
	hasProblems := len(r.problemsSet) > 0

	if !hadProblems && hasProblems {
		r.log.Info("entering problem mode")
		r.controlMode = wire.ControlProblem
		r.clientInControl = ""
	} else if add && hadProblems {
		r.log.Info("problem added while in problem mode, clearing controller")
		r.clientInControl = ""
	} else if hadProblems && !hasProblems {
		r.log.Info("exiting problem mode, switching to automated")
		r.controlMode = wire.ControlAutomated
		r.clientInControl = ""
	}
	return wire.RepSuccess
}

// handleSetControlMode forces the control mode, always clearing the
// current controller (spec §4.5 rule 2).
func (r *Router) handleSetControlMode(mode wire.ControlMode) wire.ReplyCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.WithField("mode", mode).Info("control mode changed")
	r.controlMode = mode
	r.clientInControl = ""
	return wire.RepSuccess
}

func (r *Router) handleEndExperiment() wire.ReplyCode {
	r.mu.Lock()
	r.shutdownRequested = true
	r.mu.Unlock()
	r.log.Info("end of experiment requested")
	return wire.RepSuccess
}

// handleSendReq forwards a request from the controlling client to the
// backend Control Server. A timeout restarts the backend connection and
// returns RepNoResponse, leaving retry policy to the caller (spec §4.5
// rule 7); no response is treated as the caller's problem to handle, not
// the Router's, mirroring the original's documented behavior.
func (r *Router) handleSendReq(code wire.RequestCode, payload []byte) (wire.ReplyCode, []byte) {
	if code == wire.ReqSetScanParams {
		// Track the last-set ScanParameters2D for the Drift-Corrected
		// Scheduler's ROI bookkeeping. Per spec §9 OQ2, this value is
		// intentionally never cleared by other forwarded commands even
		// though it may go stale (e.g. after a STOP_SCAN); staleness is
		// accepted rather than guessed at.
		msg := new(wire.ScanParamsMsg)
		if err := wire.Unmarshal(payload, msg); err == nil {
			r.mu.Lock()
			r.lastScanParams = msg
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	transform := r.requestTransform
	r.mu.Unlock()
	if transform != nil {
		payload = transform(code, payload)
	}

	start := time.Now()
	rawCode, rawPayload, err := r.backend.RawRequest(code, payload, r.serverTimeout)
	requestLatency.WithLabelValues(code.String()).Observe(time.Since(start).Seconds())
	if err != nil || rawCode == wire.RepNoResponse {
		if err != nil {
			r.log.WithError(err).Warn("backend connection failed, reconnecting")
		} else {
			r.log.Warn("backend did not respond in time, reconnecting")
		}
		r.backend.Close()
		backend, berr := control.NewClient(r.backendAddr, r.backendIdentity, r.dialTimeout, 0)
		if berr == nil {
			r.backend = backend
		}
		return wire.RepNoResponse, nil
	}
	return rawCode, rawPayload
}

// GetControlState snapshots the Router's current control state for
// publication (spec §3 ControlState, consumed by C9's scheduler).
func (r *Router) GetControlState() wire.ControlStateMsg {
	r.mu.Lock()
	defer r.mu.Unlock()

	var problems []string
	for p := range r.problemsSet {
		problems = append(problems, string(p))
	}
	sort.Strings(problems) // deterministic so callers can diff by value
	return wire.ControlStateMsg{
		ControlMode:       int32(r.controlMode),
		ClientInControlID: r.clientInControl,
		Problems:          problems,
	}
}

// LastScanParams returns the last ScanParameters2D forwarded through
// ReqSetScanParams, or nil if none has been set yet.
func (r *Router) LastScanParams() *wire.ScanParamsMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScanParams
}

// WasShutdownRequested reports whether ReqEndExperiment has been received.
func (r *Router) WasShutdownRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdownRequested
}

// Close shuts down the frontend and backend connections.
func (r *Router) Close() error {
	r.backend.Close()
	return r.frontend.Close()
}
