// Package action implements the Action Handler (spec §2 C7): a generic
// action-name-to-microscope-specific-call dispatch layer, the action-side
// counterpart of microscope/param's Parameter Handler.
package action

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sentinel errors a Translator maps onto wire.RepActionNotSupported /
// wire.RepActionError (spec §4.7, §7).
var (
	// ErrNotSupported means the action name has no registered handler.
	ErrNotSupported = errors.New("action: action not supported")
	// ErrAction means the underlying instrument rejected the action.
	ErrAction = errors.New("action: microscope action failed")
)

// Func performs a named action against the microscope; a non-nil error is
// reported back as wire.RepActionError.
type Func func() error

// Handler dispatches generic action names to registered Funcs (spec
// §4.7's action_method_map).
type Handler struct {
	log *logrus.Entry

	mu      sync.RWMutex
	actions map[string]Func
}

// NewHandler builds an empty Handler; call RegisterAction for each
// supported action name.
func NewHandler() *Handler {
	return &Handler{
		log:     logrus.WithField("component", "action_handler"),
		actions: make(map[string]Func),
	}
}

// RegisterAction maps a generic action name onto a Func.
func (h *Handler) RegisterAction(name string, fn Func) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions[name] = fn
}

// RequestAction runs the action registered under name.
func (h *Handler) RequestAction(name string) error {
	h.mu.RLock()
	fn, ok := h.actions[name]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSupported, name)
	}

	h.log.WithField("action", name).Debug("requesting action")
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAction, name, err)
	}
	return nil
}
