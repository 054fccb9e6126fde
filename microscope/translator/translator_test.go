package translator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afspm-go/afspm/control"
	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
	"github.com/afspm-go/afspm/microscope/action"
	"github.com/afspm-go/afspm/microscope/param"
)

type fakeDevice struct {
	scopeState  wire.ScopeState
	scanParams  *wire.ScanParamsMsg
	zctrlParams *wire.ZCtrlParamsMsg
	scans       []*wire.Scan2DMsg
	spec        *wire.Spec1DMsg
	probePos    *wire.ProbePositionMsg

	startScanCalls int
	setScanErr     error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		scopeState:  wire.ScopeFree,
		scanParams:  &wire.ScanParamsMsg{},
		zctrlParams: &wire.ZCtrlParamsMsg{},
	}
}

func (d *fakeDevice) StartScan() error { d.startScanCalls++; d.scopeState = wire.ScopeScanning; return nil }
func (d *fakeDevice) StopScan() error  { d.scopeState = wire.ScopeFree; return nil }
func (d *fakeDevice) StartSpec() error { return nil }
func (d *fakeDevice) StopSpec() error  { return nil }

func (d *fakeDevice) SetScanParams(m *wire.ScanParamsMsg) error {
	if d.setScanErr != nil {
		return d.setScanErr
	}
	d.scanParams = m
	return nil
}
func (d *fakeDevice) SetZCtrlParams(m *wire.ZCtrlParamsMsg) error { d.zctrlParams = m; return nil }
func (d *fakeDevice) SetProbePosition(m *wire.ProbePositionMsg) error {
	d.probePos = m
	return nil
}

func (d *fakeDevice) PollScopeState() (wire.ScopeState, error)      { return d.scopeState, nil }
func (d *fakeDevice) PollScanParams() (*wire.ScanParamsMsg, error)  { return d.scanParams, nil }
func (d *fakeDevice) PollZCtrlParams() (*wire.ZCtrlParamsMsg, error) { return d.zctrlParams, nil }
func (d *fakeDevice) PollScans() ([]*wire.Scan2DMsg, error)         { return d.scans, nil }
func (d *fakeDevice) PollSpec() (*wire.Spec1DMsg, error)            { return d.spec, nil }
func (d *fakeDevice) PollProbePos() (*wire.ProbePositionMsg, error) { return d.probePos, nil }

func testAddr(t *testing.T) string {
	t.Helper()
	return "ipc://" + t.TempDir() + "/translator.sock"
}

func newTestTranslator(t *testing.T) (*Translator, *fakeDevice, *control.Client, string, func()) {
	t.Helper()
	pubAddr := testAddr(t)
	srvAddr := testAddr(t)

	pub, err := transport.NewPublisher(pubAddr)
	require.NoError(t, err)
	srv, err := control.NewServer(srvAddr)
	require.NoError(t, err)

	device := newFakeDevice()
	paramsH := param.NewHandler(noopAccessor{})
	actionsH := action.NewHandler()
	tr := NewTranslator(pub, srv, device, paramsH, actionsH)

	client, err := control.NewClient(srvAddr, "client-1", time.Second, 1)
	require.NoError(t, err)

	cleanup := func() {
		client.Close()
		srv.Close()
		pub.Close()
	}
	return tr, device, client, pubAddr, cleanup
}

type noopAccessor struct{}

func (noopAccessor) GetParamSPM(string) (string, error) { return "", errors.New("unused") }
func (noopAccessor) SetParamSPM(string, string) error   { return nil }

func TestTranslatorStartScanDispatchesAction(t *testing.T) {
	tr, device, client, _, cleanup := newTestTranslator(t)
	defer cleanup()

	done := make(chan struct{})
	go func() {
		tr.handleIncomingRequests(time.Second)
		close(done)
	}()

	code, err := client.StartScan(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, code)
	<-done
	require.Equal(t, 1, device.startScanCalls)
}

func TestTranslatorNotFreeRejectsNonWhitelisted(t *testing.T) {
	tr, device, client, _, cleanup := newTestTranslator(t)
	defer cleanup()
	device.scopeState = wire.ScopeScanning
	tr.scopeState = wire.ScopeScanning

	done := make(chan struct{})
	go func() {
		tr.handleIncomingRequests(time.Second)
		close(done)
	}()

	code, err := client.StartScan(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepNotFree, code)
	<-done
	require.Equal(t, 0, device.startScanCalls)
}

func TestTranslatorStopScanWhileNotFreeIsAllowed(t *testing.T) {
	tr, _, client, _, cleanup := newTestTranslator(t)
	defer cleanup()
	tr.scopeState = wire.ScopeScanning

	done := make(chan struct{})
	go func() {
		tr.handleIncomingRequests(time.Second)
		close(done)
	}()

	code, err := client.StopScan(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepSuccess, code)
	<-done
}

func TestTranslatorSetScanParamsNotSupported(t *testing.T) {
	tr, device, client, _, cleanup := newTestTranslator(t)
	defer cleanup()
	device.setScanErr = ErrNotSupported

	done := make(chan struct{})
	go func() {
		tr.handleIncomingRequests(time.Second)
		close(done)
	}()

	code, err := client.SetScanParams(&wire.ScanParamsMsg{NX: 10, NY: 10}, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.RepParameterNotSupported, code)
	<-done
}

func TestScansChangedDetection(t *testing.T) {
	require.True(t, scansChanged(nil, []*wire.Scan2DMsg{{}}))
	require.False(t, scansChanged(nil, nil))

	a := []*wire.Scan2DMsg{{TimestampUnixNanos: 1}}
	b := []*wire.Scan2DMsg{{TimestampUnixNanos: 2}}
	require.True(t, scansChanged(a, b))
	require.False(t, scansChanged(a, a))

	c := []*wire.Scan2DMsg{{Values: []float64{1, 2}}}
	d := []*wire.Scan2DMsg{{Values: []float64{1, 3}}}
	require.True(t, scansChanged(c, d))
}

func TestHandlePollingDeviceEmitsScopeStateLast(t *testing.T) {
	tr, device, _, pubAddr, cleanup := newTestTranslator(t)
	defer cleanup()

	sub, err := transport.NewSubscriber(pubAddr, nil, time.Second)
	require.NoError(t, err)
	defer sub.Close()
	time.Sleep(20 * time.Millisecond) // let the handshake land before publishing

	device.scopeState = wire.ScopeScanning
	tr.handlePollingDevice() // FREE -> SCANNING, no scans to report

	device.scans = []*wire.Scan2DMsg{{Filename: "", Values: []float64{1, 2, 3}}}
	device.scopeState = wire.ScopeFree
	tr.handlePollingDevice() // SCANNING -> FREE, scan becomes available

	frames := sub.Poll(time.Second)
	require.GreaterOrEqual(t, len(frames), 2)

	scanTopic := wire.TypeTopic(&wire.Scan2DMsg{})
	scopeTopic := wire.TypeTopic(&wire.ScopeStateMsg{})
	var scanIdx, scopeIdx = -1, -1
	for i, f := range frames {
		switch f.Topic {
		case scanTopic:
			if scanIdx == -1 {
				scanIdx = i
			}
		case scopeTopic:
			scopeIdx = i
		}
	}
	require.NotEqual(t, -1, scanIdx, "expected a scan publication")
	require.NotEqual(t, -1, scopeIdx, "expected a scope_state publication")
	require.Less(t, scanIdx, scopeIdx, "scope_state must be emitted last")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tr, _, _, _, cleanup := newTestTranslator(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runDone := make(chan struct{})
	go func() {
		tr.Run(ctx, nil, nil, time.Millisecond, time.Millisecond)
		close(runDone)
	}()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
