// Package cache implements the Pub/Sub Cache (spec §2 C3, §4.3): a node
// that sits between a Publisher and its Subscribers, caching the last K
// messages per topic so a newly connecting Subscriber can be replayed
// history before it sees anything newer.
package cache

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
)

// DefaultDepth is the default per-topic history depth (spec §4.3: a
// "slightly more open variant of Last Value Caching" where only the last
// value is kept per topic by default).
const DefaultDepth = 1

// DefaultMaxTopics bounds the number of distinct topics tracked, evicting
// the least-recently-touched topic's history once exceeded.
const DefaultMaxTopics = 1024

type cacheSub struct {
	conn     net.Conn
	prefixes []string
	out      chan [][]byte
	done     chan struct{}
}

// Cache connects upstream to a Publisher and rebroadcasts every message to
// its own Subscribers, caching up to Depth entries per topic so each newly
// connected Subscriber is replayed history before anything new arrives.
type Cache struct {
	upstream        *transport.Subscriber
	listener        net.Listener
	depth           int
	scanTopicPolicy wire.ScanTopicPolicy
	log             *logrus.Entry

	mu      sync.Mutex
	history *lru.Cache[string, [][]byte]
	subs    map[*cacheSub]struct{}

	publishTransform func(topic string, payload []byte) []byte
	onMessage        func(topic string, payload []byte)

	closed chan struct{}
}

// NewCache dials upstreamAddr (a Publisher) and binds backendAddr for its
// own Subscribers. depth <= 0 uses DefaultDepth; maxTopics <= 0 uses
// DefaultMaxTopics. scanTopicPolicy selects how Scan2D publications are
// keyed (spec §4.3): ScanTopicByType caches one history slot (well, depth
// slots) per message type regardless of ROI size; ScanTopicByTypeAndROISize
// keys Scan2D separately per (type, ROI size) pair, so scans taken at
// different zoom levels don't evict each other.
func NewCache(upstreamAddr, backendAddr string, depth, maxTopics int, scanTopicPolicy wire.ScanTopicPolicy) (*Cache, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	if maxTopics <= 0 {
		maxTopics = DefaultMaxTopics
	}

	upstream, err := transport.NewSubscriber(upstreamAddr, nil, 5*time.Second)
	if err != nil {
		return nil, err
	}

	network, address, err := parseBackendAddr(backendAddr)
	if err != nil {
		upstream.Close()
		return nil, err
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		upstream.Close()
		return nil, err
	}

	history, err := lru.New[string, [][]byte](maxTopics)
	if err != nil {
		upstream.Close()
		ln.Close()
		return nil, err
	}

	c := &Cache{
		upstream:        upstream,
		listener:        ln,
		depth:           depth,
		scanTopicPolicy: scanTopicPolicy,
		log:             logrus.WithField("component", "pubsub_cache").WithField("addr", backendAddr),
		history:         history,
		subs:            make(map[*cacheSub]struct{}),
		closed:          make(chan struct{}),
	}
	go c.acceptLoop()
	go c.pumpLoop()
	return c, nil
}

// Addr returns the bound backend address.
func (c *Cache) Addr() net.Addr { return c.listener.Addr() }

func (c *Cache) pumpLoop() {
	for {
		select {
		case <-c.closed:
			return
		default:
		}
		frames := c.upstream.Poll(500 * time.Millisecond)
		for _, f := range frames {
			if f.Topic == transport.KillTopic {
				c.broadcastKill()
				continue
			}
			c.Ingest(f.Topic, f.Payload)
		}
		if c.upstream.Killed() {
			c.broadcastKill()
		}
	}
}

// SetPublishTransform installs a hook applied to every payload before it is
// cached or forwarded, letting a composed component (the Drift-Corrected
// Scheduler, spec §4.10) rewrite spatial fields tip-frame -> sample-frame.
// A nil fn (the default) leaves payloads unmodified.
func (c *Cache) SetPublishTransform(fn func(topic string, payload []byte) []byte) {
	c.mu.Lock()
	c.publishTransform = fn
	c.mu.Unlock()
}

// SetOnMessage installs a callback invoked after every Ingest with the
// (possibly transformed) topic/payload. This is how the Drift-Corrected
// Scheduler "subscribes to Scan2D events from its own downstream cache"
// (spec §4.10): in-process, a direct callback is the zero-overhead
// equivalent of dialing itself as a Subscriber.
func (c *Cache) SetOnMessage(fn func(topic string, payload []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// Ingest caches payload under topic (pushing out the oldest entry once
// Depth is exceeded) and forwards it live to every matching Subscriber.
// A Scan2D publication is re-keyed first per the cache's configured
// ScanTopicPolicy (spec §4.3), so the same cache topic that's used for
// history bookkeeping is also what's forwarded to Subscribers.
func (c *Cache) Ingest(topic string, payload []byte) {
	c.mu.Lock()
	transform := c.publishTransform
	policy := c.scanTopicPolicy
	c.mu.Unlock()
	if transform != nil {
		payload = transform(topic, payload)
	}
	topic = c.scanKeyedTopic(topic, payload, policy)

	c.mu.Lock()
	hist, _ := c.history.Get(topic)
	hist = append(hist, payload)
	if len(hist) > c.depth {
		hist = hist[len(hist)-c.depth:]
	}
	c.history.Add(topic, hist)

	for sc := range c.subs {
		if !matchesPrefix(sc.prefixes, topic) {
			continue
		}
		select {
		case sc.out <- [][]byte{[]byte(topic), payload}:
		default:
			cacheDropped.WithLabelValues("live").Inc()
			c.log.WithField("topic", topic).Debug("backend subscriber queue full, dropping")
		}
	}
	onMsg := c.onMessage
	c.mu.Unlock()

	if onMsg != nil {
		onMsg(topic, payload)
	}
}

// scanKeyedTopic re-derives topic for a Scan2D publication under policy,
// decoding payload to reach its ROI size; every other topic passes
// through unchanged. A decode failure logs and falls back to the
// type-derived topic rather than dropping the publication.
func (c *Cache) scanKeyedTopic(topic string, payload []byte, policy wire.ScanTopicPolicy) string {
	if policy != wire.ScanTopicByTypeAndROISize || topic != wire.TypeTopic(&wire.Scan2DMsg{}) {
		return topic
	}
	msg := new(wire.Scan2DMsg)
	if err := wire.Unmarshal(payload, msg); err != nil {
		c.log.WithError(err).Warn("cache: could not decode scan for topic policy, caching under type topic")
		return topic
	}
	return wire.ScanTopic(policy, msg)
}

// Kill broadcasts the reserved KILL frame to every connected Subscriber,
// used by the Scheduler (spec §4.9 step 4) to advertise a requested
// shutdown without routing it through the upstream Publisher.
func (c *Cache) Kill() { c.broadcastKill() }

func (c *Cache) broadcastKill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sc := range c.subs {
		select {
		case sc.out <- [][]byte{[]byte(transport.KillTopic)}:
		default:
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

func (c *Cache) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
				c.log.WithError(err).Warn("accept failed")
				return
			}
		}
		go c.handshake(conn)
	}
}

// handshake reads the subscriber's topic-prefix frame, replays any cached
// history matching those prefixes, and only then registers the connection
// for live delivery -- guaranteeing replay happens strictly before any
// newer publication the subscriber observes (spec §4.3).
func (c *Cache) handshake(conn net.Conn) {
	r := bufio.NewReader(conn)
	parts, err := transport.ReadFrame(r, conn, 10*time.Second)
	if err != nil {
		c.log.WithError(err).Warn("subscriber handshake failed")
		conn.Close()
		return
	}
	prefixes := make([]string, len(parts))
	for i, p := range parts {
		prefixes[i] = string(p)
	}

	// Snapshot the matching history and register the subscriber under one
	// lock acquisition, but never write to the socket while holding it: a
	// slow or wedged subscriber must only stall its own writerLoop, not the
	// upstream pump (spec §4.3 -- the cache never blocks the publisher).
	// The replay frames are enqueued onto the sub's own channel, sized to
	// fit them plus live-delivery headroom, so the enqueue itself can't
	// block; writerLoop drains them (and anything live, queued after) with
	// the actual socket I/O happening entirely outside c.mu.
	c.mu.Lock()
	var replay [][][]byte
	for _, topic := range c.history.Keys() {
		if !matchesPrefix(prefixes, topic) {
			continue
		}
		hist, ok := c.history.Peek(topic)
		if !ok {
			continue
		}
		for _, payload := range hist {
			replay = append(replay, [][]byte{[]byte(topic), payload})
		}
	}

	sc := &cacheSub{
		conn:     conn,
		prefixes: prefixes,
		out:      make(chan [][]byte, len(replay)+64),
		done:     make(chan struct{}),
	}
	for _, frame := range replay {
		sc.out <- frame
	}
	c.subs[sc] = struct{}{}
	c.mu.Unlock()
	cacheReplayed.Add(float64(len(replay)))

	go c.writerLoop(sc)
}

func (c *Cache) writerLoop(sc *cacheSub) {
	defer func() {
		c.mu.Lock()
		delete(c.subs, sc)
		c.mu.Unlock()
		sc.conn.Close()
	}()
	for {
		select {
		case parts := <-sc.out:
			if err := transport.WriteFrame(sc.conn, parts, 2*time.Second); err != nil {
				return
			}
		case <-sc.done:
			return
		case <-c.closed:
			return
		}
	}
}

// Close shuts the cache down, disconnecting upstream and every subscriber.
func (c *Cache) Close() error {
	close(c.closed)
	c.upstream.Close()
	err := c.listener.Close()
	c.mu.Lock()
	for sc := range c.subs {
		close(sc.done)
	}
	c.mu.Unlock()
	return err
}
