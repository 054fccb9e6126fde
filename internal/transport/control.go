package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoResponse is returned by a Control Client request that exhausted its
// retries without a reply (spec §4.4's distinguished NO_RESPONSE outcome).
var ErrNoResponse = errors.New("transport: no response from control server")

// ControlServer is the bind side of a request/reply control channel
// (spec §4.4). Each accepted connection is served one request at a time:
// Poll blocks for the next request on any connection, and the caller must
// Reply before polling again on that connection.
type ControlServer struct {
	listener net.Listener
	log      *logrus.Entry

	mu    sync.Mutex
	conns map[string]*controlServerConn

	incoming chan controlRequest
	closed   chan struct{}
}

type controlServerConn struct {
	conn     net.Conn
	r        *bufio.Reader
	identity string
}

// controlRequest bundles an inbound request with the connection it arrived
// on, so Reply can be routed back to the right peer.
type controlRequest struct {
	identity string
	code     byte
	payload  []byte
}

// NewControlServer binds addr and begins accepting Control Client
// connections in the background.
func NewControlServer(addr string) (*ControlServer, error) {
	network, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	s := &ControlServer{
		listener: ln,
		log:      logrus.WithField("component", "control_server").WithField("addr", addr),
		conns:    make(map[string]*controlServerConn),
		incoming: make(chan controlRequest, 16),
		closed:   make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound address.
func (s *ControlServer) Addr() net.Addr { return s.listener.Addr() }

func (s *ControlServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.log.WithError(err).Warn("accept failed")
				return
			}
		}
		go s.handshake(conn)
	}
}

func (s *ControlServer) handshake(conn net.Conn) {
	r := bufio.NewReader(conn)
	// Every connection opens with a single identity frame (spec §4.5's
	// ROUTER-identity semantics, collapsed here onto a per-connection
	// handshake since a net.Conn is already a stable per-client channel).
	parts, err := ReadFrame(r, conn, 10*time.Second)
	if err != nil || len(parts) != 1 {
		s.log.WithError(err).Warn("control client handshake failed")
		conn.Close()
		return
	}
	identity := string(parts[0])

	sc := &controlServerConn{conn: conn, r: r, identity: identity}
	s.mu.Lock()
	s.conns[identity] = sc
	s.mu.Unlock()

	for {
		parts, err := ReadFrame(r, conn, 0)
		if err != nil {
			s.mu.Lock()
			delete(s.conns, identity)
			s.mu.Unlock()
			return
		}
		if len(parts) != 2 {
			continue
		}
		s.incoming <- controlRequest{identity: identity, code: parts[0][0], payload: parts[1]}
	}
}

// Poll waits up to timeout for the next request from any client. ok is
// false on timeout. The returned identity must be passed to Reply.
func (s *ControlServer) Poll(timeout time.Duration) (identity string, code byte, payload []byte, ok bool) {
	select {
	case req := <-s.incoming:
		return req.identity, req.code, req.payload, true
	case <-time.After(timeout):
		return "", 0, nil, false
	case <-s.closed:
		return "", 0, nil, false
	}
}

// Reply sends a reply to the client identified by identity, as returned by
// a prior Poll.
func (s *ControlServer) Reply(identity string, code byte, payload []byte) error {
	s.mu.Lock()
	sc, ok := s.conns[identity]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no connected client with identity %q", identity)
	}
	return WriteFrame(sc.conn, [][]byte{{code}, payload}, 2*time.Second)
}

// Close stops accepting connections and disconnects every client.
func (s *ControlServer) Close() error {
	close(s.closed)
	err := s.listener.Close()
	s.mu.Lock()
	for _, sc := range s.conns {
		sc.conn.Close()
	}
	s.mu.Unlock()
	return err
}

// ControlClient is the dial side of a request/reply control channel. It
// keeps a persistent identity across reconnects (spec §4.4: a Router must
// recognize a reconnecting client as the same peer) and resends up to R
// times before surfacing ErrNoResponse.
type ControlClient struct {
	addr        string
	identity    string
	dialTimeout time.Duration
	retries     int

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// NewControlClient dials addr with the given stable identity (typically a
// JWT or UUID minted once per logical client, spec §4.5).
func NewControlClient(addr, identity string, dialTimeout time.Duration, retries int) (*ControlClient, error) {
	c := &ControlClient{
		addr:        addr,
		identity:    identity,
		dialTimeout: dialTimeout,
		retries:     retries,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ControlClient) connect() error {
	network, address, err := parseAddr(c.addr)
	if err != nil {
		return err
	}
	conn, err := net.DialTimeout(network, address, c.dialTimeout)
	if err != nil {
		return err
	}
	if err := WriteFrame(conn, [][]byte{[]byte(c.identity)}, c.dialTimeout); err != nil {
		conn.Close()
		return err
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.r = bufio.NewReader(conn)
	c.mu.Unlock()
	return nil
}

// Request sends (code, payload) and waits up to timeout for a reply,
// reconnecting and resending up to c.retries times on timeout. Returns
// ErrNoResponse once retries are exhausted (spec §4.4).
func (c *ControlClient) Request(code byte, payload []byte, timeout time.Duration) (replyCode byte, replyPayload []byte, err error) {
	for attempt := 0; attempt <= c.retries; attempt++ {
		c.mu.Lock()
		conn := c.conn
		r := c.r
		c.mu.Unlock()

		if err := WriteFrame(conn, [][]byte{{code}, payload}, timeout); err != nil {
			if reconnErr := c.connect(); reconnErr != nil {
				return 0, nil, reconnErr
			}
			continue
		}
		parts, err := ReadFrame(r, conn, timeout)
		if err != nil {
			if reconnErr := c.connect(); reconnErr != nil {
				return 0, nil, reconnErr
			}
			continue
		}
		if len(parts) != 2 || len(parts[0]) != 1 {
			continue
		}
		return parts[0][0], parts[1], nil
	}
	return 0, nil, ErrNoResponse
}

// Close disconnects the client.
func (c *ControlClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
