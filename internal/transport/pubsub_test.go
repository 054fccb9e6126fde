package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublisherFiltersByPrefix(t *testing.T) {
	pub, err := NewPublisher("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()

	addr := "tcp://" + pub.Addr().String()

	subAll, err := NewSubscriber(addr, nil, time.Second)
	require.NoError(t, err)
	defer subAll.Close()

	subPrefix, err := NewSubscriber(addr, []string{"scan."}, time.Second)
	require.NoError(t, err)
	defer subPrefix.Close()

	// give both handshakes time to register before publishing.
	time.Sleep(50 * time.Millisecond)

	pub.Publish("scan.Scan2D", []byte("payload"))
	pub.Publish("param.Update", []byte("other"))

	all := subAll.Poll(time.Second)
	require.Len(t, all, 2)

	only := subPrefix.Poll(time.Second)
	require.Len(t, only, 1)
	require.Equal(t, "scan.Scan2D", only[0].Topic)
}

func TestPublisherKillReachesAllSubscribers(t *testing.T) {
	pub, err := NewPublisher("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()

	addr := "tcp://" + pub.Addr().String()
	sub, err := NewSubscriber(addr, []string{"irrelevant."}, time.Second)
	require.NoError(t, err)
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)
	pub.PublishKill()

	frames := sub.Poll(time.Second)
	require.Len(t, frames, 1)
	require.Equal(t, KillTopic, frames[0].Topic)
	require.True(t, sub.Killed())
}

func TestControlClientServerRoundTrip(t *testing.T) {
	srv, err := NewControlServer("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	addr := "tcp://" + srv.Addr().String()
	cli, err := NewControlClient(addr, "client-1", time.Second, 2)
	require.NoError(t, err)
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		identity, code, payload, ok := srv.Poll(time.Second)
		require.True(t, ok)
		require.Equal(t, "client-1", identity)
		require.Equal(t, byte(7), code)
		require.Equal(t, []byte("req"), payload)
		require.NoError(t, srv.Reply(identity, 1, []byte("ack")))
	}()

	replyCode, replyPayload, err := cli.Request(7, []byte("req"), time.Second)
	require.NoError(t, err)
	require.Equal(t, byte(1), replyCode)
	require.Equal(t, []byte("ack"), replyPayload)
	<-done
}

func TestControlClientNoResponse(t *testing.T) {
	srv, err := NewControlServer("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	addr := "tcp://" + srv.Addr().String()
	cli, err := NewControlClient(addr, "client-2", time.Second, 1)
	require.NoError(t, err)
	defer cli.Close()

	_, _, err = cli.Request(1, nil, 100*time.Millisecond)
	require.ErrorIs(t, err, ErrNoResponse)
}
