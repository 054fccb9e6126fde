package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/internal/wire"
)

func TestClientServerForwardedRequestRoundTrip(t *testing.T) {
	srv, err := NewServer("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	cli, err := NewClient("tcp://"+srv.Addr(), "client-1", time.Second, 1)
	require.NoError(t, err)
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, ok := srv.Poll(time.Second)
		require.True(t, ok)
		require.Equal(t, wire.ReqSetScanParams, req.Code)
		msg, ok := req.Payload.(*wire.ScanParamsMsg)
		require.True(t, ok)
		require.Equal(t, 256, int(msg.NX))
		require.NoError(t, srv.Reply(req.Identity, wire.RepSuccess, nil))
	}()

	rc, err := cli.SetScanParams(&wire.ScanParamsMsg{NX: 256, NY: 256, SizeWidth: 5, SizeHeight: 5}, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)
	<-done
}

func TestClientGetParameter(t *testing.T) {
	srv, err := NewServer("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	cli, err := NewClient("tcp://"+srv.Addr(), "client-2", time.Second, 1)
	require.NoError(t, err)
	defer cli.Close()

	value := "0.5"
	go func() {
		req, ok := srv.Poll(time.Second)
		require.True(t, ok)
		require.Equal(t, wire.ReqGetParameter, req.Code)
		srv.Reply(req.Identity, wire.RepSuccess, &wire.ParameterMsg{Name: "bias", ValueText: &value})
	}()

	rc, param, err := cli.GetParameter(&wire.ParameterMsg{Name: "bias"}, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, rc)
	require.Equal(t, "bias", param.Name)
	require.Equal(t, value, *param.ValueText)
}
