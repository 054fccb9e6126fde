package control

import (
	"time"

	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
)

// DefaultRetries is how many times a Client resends a timed-out request
// before surfacing wire.RepNoResponse (spec §4.4).
const DefaultRetries = 2

// Client is the experiment-facing side of the control channel: UIs and
// automated controllers drive the Router through it (spec §4.4, §4.5).
type Client struct {
	inner *transport.ControlClient
}

// NewClient dials addr with a stable identity, so a reconnecting Client is
// recognized as the same peer by the Router (spec §4.5).
func NewClient(addr, identity string, dialTimeout time.Duration, retries int) (*Client, error) {
	if retries <= 0 {
		retries = DefaultRetries
	}
	inner, err := transport.NewControlClient(addr, identity, dialTimeout, retries)
	if err != nil {
		return nil, err
	}
	return &Client{inner: inner}, nil
}

// RawRequest sends a request code and raw payload bytes through without
// any wire-message interpretation, and returns the raw reply the same way.
// Used by control/router to forward requests it does not need to decode.
func (c *Client) RawRequest(code wire.RequestCode, payload []byte, timeout time.Duration) (wire.ReplyCode, []byte, error) {
	return c.request(code, payload, timeout)
}

func (c *Client) request(code wire.RequestCode, payload []byte, timeout time.Duration) (wire.ReplyCode, []byte, error) {
	rc, rp, err := c.inner.Request(byte(code), payload, timeout)
	if err == transport.ErrNoResponse {
		return wire.RepNoResponse, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return wire.ReplyCode(rc), rp, nil
}

// RequestControl asks to become the client in control under mode (spec
// §4.5 rule 1): it only succeeds if the Router is currently in mode and no
// other client already holds control.
func (c *Client) RequestControl(mode wire.ControlMode, timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqRequestControl, EncodeControlMode(mode), timeout)
	return rc, err
}

// ReleaseControl gives up control, if this Client currently holds it.
func (c *Client) ReleaseControl(timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqReleaseControl, nil, timeout)
	return rc, err
}

// AddProblem flags p as an active experiment problem (spec §4.5 rule 3).
func (c *Client) AddProblem(p wire.Problem, timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqAddProblem, EncodeProblem(p), timeout)
	return rc, err
}

// RemoveProblem clears p from the active problem set.
func (c *Client) RemoveProblem(p wire.Problem, timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqRemoveProblem, EncodeProblem(p), timeout)
	return rc, err
}

// SetControlMode forces the Router's control mode (spec §4.5 rule 2),
// unconditionally clearing whoever currently holds control.
func (c *Client) SetControlMode(mode wire.ControlMode, timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqSetControlMode, EncodeControlMode(mode), timeout)
	return rc, err
}

// EndExperiment requests a graceful shutdown of the experiment.
func (c *Client) EndExperiment(timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqEndExperiment, nil, timeout)
	return rc, err
}

// StartScan requests the Translator begin a 2D scan. Only honored if this
// Client currently holds control (spec §4.5 rule 7).
func (c *Client) StartScan(timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqStartScan, nil, timeout)
	return rc, err
}

// StopScan requests the Translator interrupt an in-progress scan.
func (c *Client) StopScan(timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqStopScan, nil, timeout)
	return rc, err
}

// StartSpec requests the Translator begin a 1D spectroscopy collection.
func (c *Client) StartSpec(timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqStartSpec, nil, timeout)
	return rc, err
}

// StopSpec requests the Translator interrupt an in-progress spec collection.
func (c *Client) StopSpec(timeout time.Duration) (wire.ReplyCode, error) {
	rc, _, err := c.request(wire.ReqStopSpec, nil, timeout)
	return rc, err
}

// SetScanParams requests the Translator adopt new 2D scan parameters.
func (c *Client) SetScanParams(msg *wire.ScanParamsMsg, timeout time.Duration) (wire.ReplyCode, error) {
	buf, err := wire.Marshal(msg)
	if err != nil {
		return 0, err
	}
	rc, _, err := c.request(wire.ReqSetScanParams, buf, timeout)
	return rc, err
}

// SetZCtrlParams requests the Translator adopt new Z-controller parameters.
func (c *Client) SetZCtrlParams(msg *wire.ZCtrlParamsMsg, timeout time.Duration) (wire.ReplyCode, error) {
	buf, err := wire.Marshal(msg)
	if err != nil {
		return 0, err
	}
	rc, _, err := c.request(wire.ReqSetZCtrlParams, buf, timeout)
	return rc, err
}

// SetProbePosition requests the Translator move the probe to a new position.
func (c *Client) SetProbePosition(msg *wire.ProbePositionMsg, timeout time.Duration) (wire.ReplyCode, error) {
	buf, err := wire.Marshal(msg)
	if err != nil {
		return 0, err
	}
	rc, _, err := c.request(wire.ReqSetProbePosition, buf, timeout)
	return rc, err
}

// GetParameter requests the current value of a named device parameter.
func (c *Client) GetParameter(req *wire.ParameterMsg, timeout time.Duration) (wire.ReplyCode, *wire.ParameterMsg, error) {
	buf, err := wire.Marshal(req)
	if err != nil {
		return 0, nil, err
	}
	rc, rp, err := c.request(wire.ReqGetParameter, buf, timeout)
	if err != nil || rc != wire.RepSuccess {
		return rc, nil, err
	}
	out := new(wire.ParameterMsg)
	if err := wire.Unmarshal(rp, out); err != nil {
		return rc, nil, err
	}
	return rc, out, nil
}

// SetParameter requests the Translator set a named device parameter.
func (c *Client) SetParameter(req *wire.ParameterMsg, timeout time.Duration) (wire.ReplyCode, error) {
	buf, err := wire.Marshal(req)
	if err != nil {
		return 0, err
	}
	rc, _, err := c.request(wire.ReqSetParameter, buf, timeout)
	return rc, err
}

// RequestAction requests the Translator perform a named device action.
func (c *Client) RequestAction(req *wire.ActionMsg, timeout time.Duration) (wire.ReplyCode, error) {
	buf, err := wire.Marshal(req)
	if err != nil {
		return 0, err
	}
	rc, _, err := c.request(wire.ReqRequestAction, buf, timeout)
	return rc, err
}

// Close disconnects the Client.
func (c *Client) Close() error { return c.inner.Close() }
