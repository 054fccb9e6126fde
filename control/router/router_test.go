package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/control"
	"github.com/afspm-go/afspm/internal/wire"
)

func startBackend(t *testing.T) (*control.Server, string) {
	srv, err := control.NewServer("tcp://127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, "tcp://" + srv.Addr()
}

func TestRouterControlHandoff(t *testing.T) {
	_, backendAddr := startBackend(t)
	r, err := NewRouter("tcp://127.0.0.1:0", backendAddr, time.Second)
	require.NoError(t, err)
	defer r.Close()
	go func() {
		for i := 0; i < 10; i++ {
			r.PollAndHandle(50 * time.Millisecond)
		}
	}()

	addr := "tcp://" + r.Addr()
	alice, err := control.NewClient(addr, "alice", time.Second, 1)
	require.NoError(t, err)
	defer alice.Close()
	bob, err := control.NewClient(addr, "bob", time.Second, 1)
	require.NoError(t, err)
	defer bob.Close()

	rc, err := alice.RequestControl(wire.ControlAutomated, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)

	rc, err = bob.RequestControl(wire.ControlAutomated, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepAlreadyUnderControl, rc)

	rc, err = bob.ReleaseControl(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepFailure, rc)

	rc, err = alice.ReleaseControl(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)
}

func TestRouterWrongControlMode(t *testing.T) {
	_, backendAddr := startBackend(t)
	r, err := NewRouter("tcp://127.0.0.1:0", backendAddr, time.Second)
	require.NoError(t, err)
	defer r.Close()
	go func() {
		for i := 0; i < 5; i++ {
			r.PollAndHandle(50 * time.Millisecond)
		}
	}()

	addr := "tcp://" + r.Addr()
	alice, err := control.NewClient(addr, "alice", time.Second, 1)
	require.NoError(t, err)
	defer alice.Close()

	rc, err := alice.RequestControl(wire.ControlManual, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepWrongControlMode, rc)
}

func TestRouterProblemModeNullsController(t *testing.T) {
	_, backendAddr := startBackend(t)
	r, err := NewRouter("tcp://127.0.0.1:0", backendAddr, time.Second)
	require.NoError(t, err)
	defer r.Close()
	go func() {
		for i := 0; i < 10; i++ {
			r.PollAndHandle(50 * time.Millisecond)
		}
	}()

	addr := "tcp://" + r.Addr()
	alice, err := control.NewClient(addr, "alice", time.Second, 1)
	require.NoError(t, err)
	defer alice.Close()

	rc, err := alice.RequestControl(wire.ControlAutomated, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)

	rc, err = alice.AddProblem(wire.ProblemTipChange, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)

	state := r.GetControlState()
	require.Equal(t, int32(wire.ControlProblem), state.ControlMode)
	require.Empty(t, state.ClientInControlID)

	rc, err = alice.RemoveProblem(wire.ProblemTipChange, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)

	state = r.GetControlState()
	require.Equal(t, int32(wire.ControlAutomated), state.ControlMode)
	require.Empty(t, state.ClientInControlID)
}

func TestRouterForwardsOnlyForControllingClient(t *testing.T) {
	backend, backendAddr := startBackend(t)
	r, err := NewRouter("tcp://127.0.0.1:0", backendAddr, time.Second)
	require.NoError(t, err)
	defer r.Close()
	go func() {
		for i := 0; i < 20; i++ {
			r.PollAndHandle(50 * time.Millisecond)
		}
	}()
	go func() {
		for i := 0; i < 5; i++ {
			req, ok := backend.Poll(300 * time.Millisecond)
			if !ok {
				continue
			}
			backend.Reply(req.Identity, wire.RepSuccess, nil)
		}
	}()

	addr := "tcp://" + r.Addr()
	alice, err := control.NewClient(addr, "alice", time.Second, 1)
	require.NoError(t, err)
	defer alice.Close()
	bob, err := control.NewClient(addr, "bob", time.Second, 1)
	require.NoError(t, err)
	defer bob.Close()

	rc, err := bob.StartScan(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepNotInControl, rc)

	rc, err = alice.RequestControl(wire.ControlAutomated, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)

	rc, err = alice.StartScan(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)
}
