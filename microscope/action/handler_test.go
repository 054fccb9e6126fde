package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerDispatch(t *testing.T) {
	h := NewHandler()
	called := false
	h.RegisterAction("tip-shape", func() error {
		called = true
		return nil
	})

	require.NoError(t, h.RequestAction("tip-shape"))
	require.True(t, called)
}

func TestHandlerNotSupported(t *testing.T) {
	h := NewHandler()
	err := h.RequestAction("no-such-action")
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestHandlerWrapsActionError(t *testing.T) {
	h := NewHandler()
	h.RegisterAction("fail", func() error { return errors.New("boom") })

	err := h.RequestAction("fail")
	require.ErrorIs(t, err, ErrAction)
}
