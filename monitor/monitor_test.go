package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/heartbeat"
)

// TestMain intercepts invocations that ask to run as a helper component
// rather than as the test binary proper, following the standard library's
// os/exec re-exec convention: a child spawned by Monitor.Start is just
// this same test binary, told (via environment variables) to behave like a
// tiny heartbeating component instead of running go test.
func TestMain(m *testing.M) {
	if name := os.Getenv("AFSPM_MONITOR_TEST_HELPER"); name != "" {
		runHelperComponent(name)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runHelperComponent emits heartbeats for name until told to stop.
// AFSPM_MONITOR_TEST_HELPER_EXIT selects how it stops:
//
//	"kill"  -- calls HandleClosing (planned exit, sends a KILL)
//	"crash" -- beats once, then exits without any closing handshake
//	""      -- (unset) beats forever, for tests that kill the process themselves
func runHelperComponent(name string) {
	period, _ := time.ParseDuration(os.Getenv("AFSPM_MONITOR_TEST_HELPER_PERIOD"))
	if period <= 0 {
		period = 10 * time.Millisecond
	}

	hb, err := heartbeat.NewHeartbeater(heartbeat.AddrForComponent(name), period, name)
	if err != nil {
		os.Exit(1)
	}

	switch os.Getenv("AFSPM_MONITOR_TEST_HELPER_EXIT") {
	case "crash":
		hb.HandleBeat()
		os.Exit(1)
	case "kill":
		hb.HandleBeat()
		time.Sleep(3 * period)
		hb.HandleClosing()
		hb.Close()
		os.Exit(0)
	default:
		for {
			hb.HandleBeat()
			time.Sleep(period)
		}
	}
}

func helperDescriptor(t *testing.T, name, exitMode string) Descriptor {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)
	return Descriptor{
		Name:    name,
		Command: self,
		Args:    []string{"-test.run=^TestMain$"},
		Env: append(os.Environ(),
			"AFSPM_MONITOR_TEST_HELPER="+name,
			"AFSPM_MONITOR_TEST_HELPER_EXIT="+exitMode,
			"AFSPM_MONITOR_TEST_HELPER_PERIOD=10ms",
		),
		BeatPeriod:            10 * time.Millisecond,
		MissedBeatsBeforeDead: 3,
	}
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	dir := t.TempDir()
	mon, err := NewMonitor(filepath.Join(dir, "monitor.db"), 50*time.Millisecond, 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { mon.Close() })
	return mon
}

func TestStartWaitsForFirstBeatThenSucceeds(t *testing.T) {
	mon := newTestMonitor(t)
	err := mon.Start([]Descriptor{helperDescriptor(t, "comp-a", "")})
	require.NoError(t, err)
	require.Contains(t, mon.children, "comp-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mon.Run(ctx)
}

func TestStartFailureAbortsAndTerminatesAlreadyStarted(t *testing.T) {
	mon := newTestMonitor(t)
	bad := helperDescriptor(t, "comp-bad", "")
	bad.Command = "/nonexistent/afspm-helper-binary"

	err := mon.Start([]Descriptor{
		helperDescriptor(t, "comp-good", ""),
		bad,
	})
	require.Error(t, err)
	require.Empty(t, mon.children, "a failed startup should terminate components already started")
}

func TestCrashedComponentIsRestarted(t *testing.T) {
	mon := newTestMonitor(t)
	err := mon.Start([]Descriptor{helperDescriptor(t, "comp-crash", "crash")})
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		count, err := mon.ledger.CrashCount("comp-crash")
		require.NoError(t, err)
		if count > 0 {
			break
		}
		mon.runPerLoop()
		time.Sleep(20 * time.Millisecond)
	}

	count, err := mon.ledger.CrashCount("comp-crash")
	require.NoError(t, err)
	require.Greater(t, count, 0, "crash should have been recorded")
	require.Contains(t, mon.children, "comp-crash", "a crashed component should be restarted, not forgotten")

	mon.terminateAll()
}

func TestPlannedExitComponentIsForgotten(t *testing.T) {
	mon := newTestMonitor(t)
	err := mon.Start([]Descriptor{helperDescriptor(t, "comp-kill", "kill")})
	require.NoError(t, err)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := mon.children["comp-kill"]; !ok {
			break
		}
		mon.runPerLoop()
		time.Sleep(20 * time.Millisecond)
	}

	require.NotContains(t, mon.children, "comp-kill", "a planned exit should be forgotten, not restarted")
}

func TestRunStopsWhenAllChildrenAreGone(t *testing.T) {
	mon := newTestMonitor(t)
	err := mon.Start([]Descriptor{helperDescriptor(t, "comp-kill2", "kill")})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		mon.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after its only child exited on purpose")
	}
}

func TestRunTerminatesAllOnContextCancellation(t *testing.T) {
	mon := newTestMonitor(t)
	err := mon.Start([]Descriptor{helperDescriptor(t, "comp-long", "")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.Empty(t, mon.children)
}
