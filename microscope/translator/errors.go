// Package translator implements the Microscope Translator (spec §2 C8): the
// device-facing state machine that turns an opaque instrument into a
// request/reply plus event-emitting component.
package translator

import "errors"

var (
	// ErrNotSupported means the device does not implement a dedicated
	// on_set_* operation (scan params or Z-controller params).
	ErrNotSupported = errors.New("translator: operation not supported by device")
	// ErrDevice wraps an instrument error raised while polling; the
	// Translator logs it and keeps its last-known state rather than crashing.
	ErrDevice = errors.New("translator: instrument error")
)
