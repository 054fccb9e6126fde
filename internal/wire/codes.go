package wire

import "fmt"

// RequestCode is the one-byte request code of the control envelope (spec §4.4, §6).
type RequestCode byte

const (
	ReqRequestControl RequestCode = iota + 1
	ReqReleaseControl
	ReqAddProblem
	ReqRemoveProblem
	ReqSetControlMode
	ReqEndExperiment

	// Requests forwarded verbatim to the Translator's Control Server when the
	// caller holds control (spec §4.5 rule 7).
	ReqStartScan
	ReqStopScan
	ReqStartSpec
	ReqStopSpec
	ReqSetScanParams
	ReqSetZCtrlParams
	ReqSetProbePosition
	ReqGetParameter
	ReqSetParameter
	ReqRequestAction
)

func (c RequestCode) String() string {
	switch c {
	case ReqRequestControl:
		return "REQUEST_CONTROL"
	case ReqReleaseControl:
		return "RELEASE_CONTROL"
	case ReqAddProblem:
		return "ADD_PROBLEM"
	case ReqRemoveProblem:
		return "REMOVE_PROBLEM"
	case ReqSetControlMode:
		return "SET_CONTROL_MODE"
	case ReqEndExperiment:
		return "END_EXPERIMENT"
	case ReqStartScan:
		return "START_SCAN"
	case ReqStopScan:
		return "STOP_SCAN"
	case ReqStartSpec:
		return "START_SPEC"
	case ReqStopSpec:
		return "STOP_SPEC"
	case ReqSetScanParams:
		return "SET_SCAN_PARAMS"
	case ReqSetZCtrlParams:
		return "SET_ZCTRL_PARAMS"
	case ReqSetProbePosition:
		return "SET_PROBE_POSITION"
	case ReqGetParameter:
		return "GET_PARAMETER"
	case ReqSetParameter:
		return "SET_PARAMETER"
	case ReqRequestAction:
		return "REQUEST_ACTION"
	default:
		return "UNKNOWN"
	}
}

// ReplyCode is the one-byte reply/result code (spec §4.4, §7).
type ReplyCode byte

const (
	RepSuccess ReplyCode = iota + 1
	RepFailure
	RepAlreadyUnderControl
	RepWrongControlMode
	RepNotInControl
	RepNotFree
	RepNoResponse
	RepParameterNotSupported
	RepActionNotSupported
	RepParameterError
	RepActionError
)

func (c ReplyCode) String() string {
	switch c {
	case RepSuccess:
		return "SUCCESS"
	case RepFailure:
		return "FAILURE"
	case RepAlreadyUnderControl:
		return "ALREADY_UNDER_CONTROL"
	case RepWrongControlMode:
		return "WRONG_CONTROL_MODE"
	case RepNotInControl:
		return "NOT_IN_CONTROL"
	case RepNotFree:
		return "NOT_FREE"
	case RepNoResponse:
		return "NO_RESPONSE"
	case RepParameterNotSupported:
		return "PARAMETER_NOT_SUPPORTED"
	case RepActionNotSupported:
		return "ACTION_NOT_SUPPORTED"
	case RepParameterError:
		return "PARAMETER_ERROR"
	case RepActionError:
		return "ACTION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// payloadTypes is the frozen request_code -> payload_type table spec §4.4
// requires both sides to agree on. A request code with no entry carries no
// Message payload: REQUEST_CONTROL, ADD_PROBLEM, REMOVE_PROBLEM and
// SET_CONTROL_MODE carry a scalar encoded by the control package, and
// STOP_SCAN carries nothing.
var payloadTypes = map[RequestCode]func() Message{
	ReqSetScanParams:    func() Message { return new(ScanParamsMsg) },
	ReqSetZCtrlParams:   func() Message { return new(ZCtrlParamsMsg) },
	ReqSetProbePosition: func() Message { return new(ProbePositionMsg) },
	ReqGetParameter:     func() Message { return new(ParameterMsg) },
	ReqSetParameter:     func() Message { return new(ParameterMsg) },
	ReqRequestAction:    func() Message { return new(ActionMsg) },
}

// NewPayload constructs the zero-value payload message for a request code,
// or (nil, false) if that code carries no Message payload.
func NewPayload(code RequestCode) (Message, bool) {
	ctor, ok := payloadTypes[code]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// ValidatePayloadType returns an error if the given code is not known to
// carry msg's concrete type, enforcing the frozen table.
func ValidatePayloadType(code RequestCode, msg Message) error {
	ctor, ok := payloadTypes[code]
	if !ok {
		return fmt.Errorf("wire: request code %d carries no payload", code)
	}
	want := ctor()
	if fmt.Sprintf("%T", want) != fmt.Sprintf("%T", msg) {
		return fmt.Errorf("wire: request code %d expects payload %T, got %T", code, want, msg)
	}
	return nil
}
