package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/cache"
	"github.com/afspm-go/afspm/control"
	"github.com/afspm-go/afspm/control/router"
	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
)

func testAddr(t *testing.T) string {
	t.Helper()
	return "ipc://" + t.TempDir() + "/sched.sock"
}

func startBackend(t *testing.T) (*control.Server, string) {
	t.Helper()
	addr := testAddr(t)
	srv, err := control.NewServer(addr)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, addr
}

func TestSchedulerPublishesControlStateChanges(t *testing.T) {
	backend, backendAddr := startBackend(t)
	go func() {
		for {
			req, ok := backend.Poll(2 * time.Second)
			if !ok {
				return
			}
			backend.Reply(req.Identity, wire.RepSuccess, nil)
		}
	}()

	routerAddr := testAddr(t)
	r, err := router.NewRouter(routerAddr, backendAddr, time.Second)
	require.NoError(t, err)
	defer r.Close()

	pubAddr := testAddr(t)
	pub, err := transport.NewPublisher(pubAddr)
	require.NoError(t, err)
	defer pub.Close()

	cacheBackendAddr := testAddr(t)
	c, err := cache.NewCache(pubAddr, cacheBackendAddr, 1, 16, wire.ScanTopicByType)
	require.NoError(t, err)
	defer c.Close()

	sub, err := transport.NewSubscriber(cacheBackendAddr, nil, time.Second)
	require.NoError(t, err)
	defer sub.Close()

	sched := NewScheduler(c, r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx, nil, 10*time.Millisecond, 50*time.Millisecond)

	client, err := control.NewClient(routerAddr, "alice", time.Second, 1)
	require.NoError(t, err)
	defer client.Close()

	code, err := client.RequestControl(wire.ControlAutomated, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, code)

	topic := wire.TypeTopic(&wire.ControlStateMsg{})
	deadline := time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		for _, f := range sub.Poll(100 * time.Millisecond) {
			if f.Topic != topic {
				continue
			}
			var state wire.ControlStateMsg
			require.NoError(t, wire.Unmarshal(f.Payload, &state))
			if state.ClientInControlID == "alice" {
				found = true
			}
		}
		if found {
			break
		}
	}
	require.True(t, found, "expected a ControlState publication reflecting the new controller")
}

func TestSchedulerShutdownPublishesKill(t *testing.T) {
	backend, backendAddr := startBackend(t)
	go func() {
		for {
			req, ok := backend.Poll(2 * time.Second)
			if !ok {
				return
			}
			backend.Reply(req.Identity, wire.RepSuccess, nil)
		}
	}()

	routerAddr := testAddr(t)
	r, err := router.NewRouter(routerAddr, backendAddr, time.Second)
	require.NoError(t, err)
	defer r.Close()

	pubAddr := testAddr(t)
	pub, err := transport.NewPublisher(pubAddr)
	require.NoError(t, err)
	defer pub.Close()

	cacheBackendAddr := testAddr(t)
	c, err := cache.NewCache(pubAddr, cacheBackendAddr, 1, 16, wire.ScanTopicByType)
	require.NoError(t, err)
	defer c.Close()

	sub, err := transport.NewSubscriber(cacheBackendAddr, nil, time.Second)
	require.NoError(t, err)
	defer sub.Close()

	sched := NewScheduler(c, r)

	ctx := context.Background()
	runDone := make(chan struct{})
	go func() {
		sched.Run(ctx, nil, 10*time.Millisecond, 50*time.Millisecond)
		close(runDone)
	}()

	client, err := control.NewClient(routerAddr, "alice", time.Second, 1)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.EndExperiment(time.Second)
	require.NoError(t, err)

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after shutdown request")
	}

	frames := sub.Poll(time.Second)
	var sawKill bool
	for _, f := range frames {
		if f.Topic == transport.KillTopic {
			sawKill = true
		}
	}
	require.True(t, sawKill, "expected a KILL frame after shutdown")
}
