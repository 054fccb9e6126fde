package param

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/spatial"
)

// Handler dispatches generic parameter names to a microscope-specific
// Accessor via registered Descriptors, typifying, converting, and
// clamping values along the way (spec §4.6).
type Handler struct {
	accessor Accessor
	log      *logrus.Entry

	mu          sync.RWMutex
	descriptors map[string]Descriptor
	getters     map[string]GetterFunc
	setters     map[string]SetterFunc
}

// NewHandler builds a Handler around the given microscope-specific Accessor.
func NewHandler(accessor Accessor) *Handler {
	return &Handler{
		accessor:    accessor,
		log:         logrus.WithField("component", "param_handler"),
		descriptors: make(map[string]Descriptor),
		getters:     make(map[string]GetterFunc),
		setters:     make(map[string]SetterFunc),
	}
}

// RegisterDescriptor adds (or replaces) the descriptor for a generic
// parameter name.
func (h *Handler) RegisterDescriptor(name string, d Descriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.descriptors[name] = d
}

// RegisterGetter overrides the default get behavior for name.
func (h *Handler) RegisterGetter(name string, fn GetterFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getters[name] = fn
}

// RegisterSetter overrides the default set behavior for name.
func (h *Handler) RegisterSetter(name string, fn SetterFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setters[name] = fn
}

func (h *Handler) descriptor(name string) (Descriptor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.descriptors[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotSupported, name)
	}
	return d, nil
}

// GetParam returns the current value (as text) and its microscope-native
// unit for a generic parameter name.
func (h *Handler) GetParam(name string) (value, unit string, err error) {
	h.mu.RLock()
	getter, hasGetter := h.getters[name]
	h.mu.RUnlock()
	if hasGetter {
		return getter(h)
	}

	d, err := h.descriptor(name)
	if err != nil {
		return "", "", err
	}
	raw, err := h.accessor.GetParamSPM(d.UUID)
	if err != nil {
		return "", "", fmt.Errorf("%w: get %s: %v", ErrParameter, name, err)
	}
	return raw, d.Unit, nil
}

// SetParam converts value (given in currUnit, or the descriptor's native
// unit if currUnit is empty), clamps it to the descriptor's Range, and
// sets it on the device (spec §4.6 steps 0-4).
func (h *Handler) SetParam(name, value, currUnit string) error {
	h.mu.RLock()
	setter, hasSetter := h.setters[name]
	h.mu.RUnlock()
	if hasSetter {
		return setter(h, value, currUnit)
	}

	d, err := h.descriptor(name)
	if err != nil {
		return err
	}
	spmVal, err := h.prepareValue(name, d, value, currUnit)
	if err != nil {
		return err
	}

	before := auditSnapshot{Name: name, Value: value, Unit: currUnit}
	if err := h.accessor.SetParamSPM(d.UUID, spmVal); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrParameter, name, err)
	}
	h.logAudit(before, auditSnapshot{Name: name, Value: spmVal, Unit: d.Unit})
	return nil
}

// SetParams validates and converts every (name, value, unit) triple before
// committing any of them to the device, so a single bad entry in the batch
// never leaves the instrument half-updated (spec §4.6's set_many
// all-or-nothing semantics).
func (h *Handler) SetParams(names, values, currUnits []string) error {
	if len(names) != len(values) || len(names) != len(currUnits) {
		return fmt.Errorf("%w: mismatched names/values/units lengths", ErrConfiguration)
	}

	type pending struct {
		uuid, spmVal string
	}
	plan := make([]pending, 0, len(names))
	for i, name := range names {
		d, err := h.descriptor(name)
		if err != nil {
			return err
		}
		spmVal, err := h.prepareValue(name, d, values[i], currUnits[i])
		if err != nil {
			return err
		}
		plan = append(plan, pending{uuid: d.UUID, spmVal: spmVal})
	}

	for _, p := range plan {
		if err := h.accessor.SetParamSPM(p.uuid, p.spmVal); err != nil {
			return fmt.Errorf("%w: set %s: %v", ErrParameter, p.uuid, err)
		}
	}
	return nil
}

// prepareValue runs the typify -> unit-convert -> clamp pipeline.
func (h *Handler) prepareValue(name string, d Descriptor, value, currUnit string) (string, error) {
	typed, err := typifyVal(value, d.Kind)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrConversion, name, err)
	}

	converted := typed
	if currUnit != "" && currUnit != d.Unit {
		f, ok := typed.(float64)
		if !ok {
			return "", fmt.Errorf("%w: %s: cannot unit-convert a non-numeric value", ErrConversion, name)
		}
		from, err1 := spatial.ParseLengthUnit(currUnit)
		to, err2 := spatial.ParseLengthUnit(d.Unit)
		if err1 != nil || err2 != nil {
			return "", fmt.Errorf("%w: %s: no conversion known from %q to %q", ErrConversion, name, currUnit, d.Unit)
		}
		cf, err := spatial.ConvertLength(f, from, to)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrConversion, name, err)
		}
		converted = cf
	}

	clamped := clampVal(converted, d.Range, name, h.log)
	return formatVal(clamped), nil
}

type auditSnapshot struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// logAudit diffs before/after snapshots with a JSON merge patch and logs
// the result, giving each descriptor-driven SetParam write an auditable
// trail (spec §4.6). SetParams and custom setters do not call it.
func (h *Handler) logAudit(before, after auditSnapshot) {
	patch, err := buildAuditPatch(before, after)
	if err != nil {
		return
	}
	h.log.WithField("param", after.Name).WithField("patch", string(patch)).Info("parameter set")
}

// buildAuditPatch computes the JSON merge patch taking before to after.
func buildAuditPatch(before, after auditSnapshot) ([]byte, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
}

func typifyVal(val string, kind Kind) (interface{}, error) {
	switch kind {
	case KindFloat:
		return strconv.ParseFloat(val, 64)
	case KindInt:
		return strconv.Atoi(val)
	case KindString:
		return val, nil
	case KindBool:
		return strconv.ParseBool(val)
	default:
		return nil, fmt.Errorf("unsupported kind %v", kind)
	}
}

func clampVal(val interface{}, r *Range, name string, log *logrus.Entry) interface{} {
	if r == nil {
		return val
	}
	f, ok := toFloat(val)
	if !ok {
		return val
	}
	if f < r.Min {
		log.WithField("param", name).Infof("value %v below range [%v, %v], capping to min", f, r.Min, r.Max)
		return applyFloat(val, r.Min)
	}
	if f > r.Max {
		log.WithField("param", name).Infof("value %v above range [%v, %v], capping to max", f, r.Min, r.Max)
		return applyFloat(val, r.Max)
	}
	return val
}

func toFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func applyFloat(orig interface{}, f float64) interface{} {
	switch orig.(type) {
	case int:
		return int(f)
	default:
		return f
	}
}

func formatVal(val interface{}) string {
	switch v := val.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
