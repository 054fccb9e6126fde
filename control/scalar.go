// Package control implements the Control Client/Server pair (spec §2 C4):
// a request/reply channel carrying the fixed set of control requests and
// replies defined by spec §4.4/§4.5/§7.
package control

import "github.com/afspm-go/afspm/internal/wire"

// Four request codes carry a scalar rather than a protobuf-shaped payload
// (control mode or problem tag); they're encoded directly rather than via
// internal/wire's Message table, which is reserved for the codes forwarded
// verbatim to the Translator. Exported so control/router can decode the
// same encoding without re-deriving it.

// EncodeControlMode encodes a ControlMode as its single-byte request payload.
func EncodeControlMode(m wire.ControlMode) []byte {
	return []byte{byte(m)}
}

// DecodeControlMode is the inverse of EncodeControlMode.
func DecodeControlMode(b []byte) wire.ControlMode {
	if len(b) == 0 {
		return wire.ControlAutomated
	}
	return wire.ControlMode(b[0])
}

// EncodeProblem encodes a Problem as its request payload.
func EncodeProblem(p wire.Problem) []byte {
	return []byte(p)
}

// DecodeProblem is the inverse of EncodeProblem.
func DecodeProblem(b []byte) wire.Problem {
	return wire.Problem(b)
}
