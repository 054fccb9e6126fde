// Package param implements the Parameter Handler (spec §2 C6): a
// generic-parameter-name-to-microscope-specific-call translation layer, so
// a Translator's device glue can be written once per microscope instead of
// once per (microscope, generic parameter) pair.
package param

import "fmt"

// Kind identifies the Go type a parameter's text value should convert to
// before being range-checked and handed to the device accessor.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindString
	KindBool
)

// Range is an inclusive [Min, Max] bound applied after unit conversion;
// nil means unbounded.
type Range struct {
	Min, Max float64
}

// Descriptor maps a generic parameter name onto microscope-specific
// metadata: its device UUID, native unit, value kind, and optional range.
// A Descriptor with an empty UUID is only valid if a Getter and/or Setter
// override has been registered for the same name (spec §4.6's "custom
// getter/setter" escape hatch).
type Descriptor struct {
	UUID  string
	Unit  string
	Kind  Kind
	Range *Range
}

// Accessor is the microscope-specific half a Translator implements: the
// uniform get/set primitives every descriptor-driven parameter funnels
// through, unless overridden by a Getter/Setter.
type Accessor interface {
	GetParamSPM(uuid string) (string, error)
	SetParamSPM(uuid, value string) error
}

// GetterFunc overrides the default descriptor-driven get for one
// parameter name.
type GetterFunc func(h *Handler) (string, string, error) // value, unit, error

// SetterFunc overrides the default descriptor-driven set for one
// parameter name.
type SetterFunc func(h *Handler, value, unit string) error

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
