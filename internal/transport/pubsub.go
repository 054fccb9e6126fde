package transport

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// KillTopic is the reserved topic that terminates every subscriber that
// observes it (spec §4.2).
const KillTopic = "KILL"

// Frame is a single (topic, payload) pair delivered to a Subscriber.
type Frame struct {
	Topic   string
	Payload []byte
}

var pubsubDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "afspm",
	Subsystem: "pubsub",
	Name:      "frames_dropped_total",
	Help:      "Frames dropped because a subscriber's outgoing queue was full.",
}, []string{"address"})

func init() {
	prometheus.MustRegister(pubsubDropped)
}

type pubsubSubscriberConn struct {
	conn     net.Conn
	prefixes []string
	out      chan [][]byte
	done     chan struct{}
}

// Publisher is the upstream (bind) side of a topic-keyed fan-out socket
// (spec §4.2). It never blocks on a slow subscriber: each subscriber has a
// bounded outgoing queue and a dedicated writer goroutine, so one stalled
// peer cannot hold up Publish for the rest.
type Publisher struct {
	addr     string
	listener net.Listener
	log      *logrus.Entry

	mu   sync.Mutex
	subs map[*pubsubSubscriberConn]struct{}

	queueDepth int
	writeTimeout time.Duration

	closed chan struct{}
}

// PublisherOption configures a Publisher at construction.
type PublisherOption func(*Publisher)

// WithQueueDepth sets the per-subscriber outgoing queue depth (default 64).
func WithQueueDepth(n int) PublisherOption {
	return func(p *Publisher) { p.queueDepth = n }
}

// NewPublisher binds addr (e.g. "tcp://127.0.0.1:0" or "ipc:///tmp/x.sock")
// and begins accepting Subscriber connections in the background.
func NewPublisher(addr string, opts ...PublisherOption) (*Publisher, error) {
	network, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		addr:         addr,
		listener:     ln,
		log:          logrus.WithField("component", "publisher").WithField("addr", addr),
		subs:         make(map[*pubsubSubscriberConn]struct{}),
		queueDepth:   64,
		writeTimeout: 2 * time.Second,
		closed:       make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	go p.acceptLoop()
	return p, nil
}

// Addr returns the bound address, useful when addr was requested as ":0".
func (p *Publisher) Addr() net.Addr { return p.listener.Addr() }

func (p *Publisher) acceptLoop() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.closed:
				return
			default:
				p.log.WithError(err).Warn("accept failed")
				return
			}
		}
		go p.handshake(conn)
	}
}

func (p *Publisher) handshake(conn net.Conn) {
	r := bufio.NewReader(conn)
	parts, err := ReadFrame(r, conn, 10*time.Second)
	if err != nil {
		p.log.WithError(err).Warn("subscriber handshake failed")
		conn.Close()
		return
	}
	prefixes := make([]string, len(parts))
	for i, part := range parts {
		prefixes[i] = string(part)
	}

	sc := &pubsubSubscriberConn{
		conn:     conn,
		prefixes: prefixes,
		out:      make(chan [][]byte, p.queueDepth),
		done:     make(chan struct{}),
	}
	p.mu.Lock()
	p.subs[sc] = struct{}{}
	p.mu.Unlock()

	go p.writerLoop(sc)
}

func (p *Publisher) writerLoop(sc *pubsubSubscriberConn) {
	defer func() {
		p.mu.Lock()
		delete(p.subs, sc)
		p.mu.Unlock()
		sc.conn.Close()
	}()
	for {
		select {
		case parts := <-sc.out:
			if err := WriteFrame(sc.conn, parts, p.writeTimeout); err != nil {
				p.log.WithError(err).Debug("subscriber write failed, dropping")
				return
			}
		case <-sc.done:
			return
		case <-p.closed:
			return
		}
	}
}

func matchesPrefix(prefixes []string, topic string) bool {
	for _, prefix := range prefixes {
		if prefix == "" || strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

// Publish fans payload out, under topic, to every subscriber whose prefix
// list matches. It never blocks: a full subscriber queue drops the frame
// and increments a metric rather than stalling the publisher (spec §4.3
// "the cache never blocks the publisher" generalizes to the Publisher
// itself).
func (p *Publisher) Publish(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sc := range p.subs {
		if !matchesPrefix(sc.prefixes, topic) {
			continue
		}
		select {
		case sc.out <- [][]byte{[]byte(topic), payload}:
		default:
			pubsubDropped.WithLabelValues(p.addr).Inc()
		}
	}
}

// PublishKill sends the reserved KILL frame to every connected subscriber,
// regardless of prefix (spec §4.2).
func (p *Publisher) PublishKill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sc := range p.subs {
		select {
		case sc.out <- [][]byte{[]byte(KillTopic)}:
		default:
			pubsubDropped.WithLabelValues(p.addr).Inc()
		}
	}
}

// Close stops accepting connections and disconnects every subscriber.
func (p *Publisher) Close() error {
	close(p.closed)
	err := p.listener.Close()
	p.mu.Lock()
	for sc := range p.subs {
		close(sc.done)
	}
	p.mu.Unlock()
	return err
}

// Subscriber is the downstream (dial) side: it registers a set of topic
// prefixes (empty = all topics) and exposes Poll for pulling received
// frames (spec §4.2).
type Subscriber struct {
	conn net.Conn
	r    *bufio.Reader
	log  *logrus.Entry

	mu       sync.Mutex
	buffered []Frame
	killed   bool
	readErr  error
}

// NewSubscriber dials addr and registers prefixes (an empty slice or a
// single empty-string entry subscribes to every topic).
func NewSubscriber(addr string, prefixes []string, dialTimeout time.Duration) (*Subscriber, error) {
	network, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout(network, address, dialTimeout)
	if err != nil {
		return nil, err
	}
	parts := make([][]byte, len(prefixes))
	for i, pre := range prefixes {
		parts[i] = []byte(pre)
	}
	if len(parts) == 0 {
		parts = [][]byte{[]byte("")}
	}
	if err := WriteFrame(conn, parts, dialTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	s := &Subscriber{
		conn: conn,
		r:    bufio.NewReader(conn),
		log:  logrus.WithField("component", "subscriber").WithField("addr", addr),
	}
	go s.readLoop()
	return s, nil
}

func (s *Subscriber) readLoop() {
	for {
		parts, err := ReadFrame(s.r, s.conn, 0)
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		topic := string(parts[0])
		var payload []byte
		if len(parts) > 1 {
			payload = parts[1]
		}

		s.mu.Lock()
		s.buffered = append(s.buffered, Frame{Topic: topic, Payload: payload})
		if topic == KillTopic {
			s.killed = true
		}
		s.mu.Unlock()
	}
}

// Poll returns every frame received since the last Poll, waiting up to
// timeout for at least one if none is yet buffered.
func (s *Subscriber) Poll(timeout time.Duration) []Frame {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if len(s.buffered) > 0 || s.killed || s.readErr != nil {
			out := s.buffered
			s.buffered = nil
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()

		if timeout <= 0 || time.Now().After(deadline) {
			return nil
		}
		time.Sleep(minDuration(5*time.Millisecond, time.Until(deadline)))
	}
}

// Killed reports whether a KILL frame has been observed.
func (s *Subscriber) Killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

// Close disconnects the subscriber.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
