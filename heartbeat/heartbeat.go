// Package heartbeat detects frozen or crashed components (spec §2, C1).
// A Heartbeater publishes a periodic beat; a HeartbeatListener declares its
// peer dead once too many beats are missed, distinguishing that from a
// planned shutdown via an explicit KILL signal.
package heartbeat

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/internal/transport"
)

// DefaultPeriod is how often a Heartbeater beats absent an override.
const DefaultPeriod = 5 * time.Second

// DefaultMissedBeatsBeforeDead is how many consecutive missed periods a
// HeartbeatListener tolerates before declaring its peer dead.
const DefaultMissedBeatsBeforeDead = 3

// DefaultPollTimeout bounds how long a single CheckIsAlive call waits.
const DefaultPollTimeout = 500 * time.Millisecond

const (
	beatTopic = "beat"
	killTopic = transport.KillTopic
)

// Heartbeater publishes a beat at most once per period, driven by calls to
// HandleBeat. The caller is responsible for invoking HandleBeat at roughly
// twice the beat frequency so drift doesn't silently extend the period.
type Heartbeater struct {
	pub      *transport.Publisher
	period   time.Duration
	last     time.Time
	beaterID string
	log      *logrus.Entry
}

// NewHeartbeater binds addr and immediately sends a startup beat, signaling
// initialization is complete. It also mints a random beaterID, distinct from
// name: name identifies the logical component, while beaterID distinguishes
// this particular process instance across restarts (a component restarted
// by the monitor keeps its name but gets a fresh beaterID).
func NewHeartbeater(addr string, period time.Duration, name string) (*Heartbeater, error) {
	pub, err := transport.NewPublisher(addr)
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	beaterID := uuid.NewString()
	h := &Heartbeater{
		pub:      pub,
		period:   period,
		last:     time.Now(),
		beaterID: beaterID,
		log:      logrus.WithField("component", "heartbeater").WithField("name", name).WithField("beater_id", beaterID),
	}
	pub.Publish(beatTopic, nil)
	return h, nil
}

// BeaterID returns the random identifier minted for this Heartbeater
// instance, usable by a listener or log aggregator to tell apart successive
// restarts of a component that share the same logical name.
func (h *Heartbeater) BeaterID() string { return h.beaterID }

// HandleBeat sends a beat if the period has elapsed since the last one.
// Call this regularly (spec suggests roughly 2x the beat frequency).
func (h *Heartbeater) HandleBeat() {
	now := time.Now()
	if now.Sub(h.last) >= h.period {
		h.pub.Publish(beatTopic, nil)
		h.last = now
	}
}

// HandleClosing sends the reserved KILL signal, telling listeners this
// shutdown is planned rather than a crash.
func (h *Heartbeater) HandleClosing() {
	h.pub.PublishKill()
}

// Close releases the underlying socket.
func (h *Heartbeater) Close() error {
	return h.pub.Close()
}

// HeartbeatListener watches a Heartbeater's beats and declares it dead once
// TimeBeforeDead elapses without one, unless a KILL signal explains the
// silence as planned.
type HeartbeatListener struct {
	sub            *transport.Subscriber
	name           string
	timeBeforeDead time.Duration
	pollTimeout    time.Duration
	lastBeat       time.Time
	receivedKill   bool
	receivedFirst  bool
	declaredDead   bool
	log            *logrus.Entry
}

// NewHeartbeatListener dials addr and begins listening for beats.
func NewHeartbeatListener(addr string, period time.Duration, missedBeatsBeforeDead int, pollTimeout time.Duration, name string) (*HeartbeatListener, error) {
	if period <= 0 {
		period = DefaultPeriod
	}
	if missedBeatsBeforeDead <= 0 {
		missedBeatsBeforeDead = DefaultMissedBeatsBeforeDead
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	sub, err := transport.NewSubscriber(addr, nil, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &HeartbeatListener{
		sub:            sub,
		name:           name,
		timeBeforeDead: time.Duration(missedBeatsBeforeDead) * period,
		pollTimeout:    pollTimeout,
		lastBeat:       time.Now(),
		log:            logrus.WithField("component", "heartbeat_listener").WithField("name", name),
	}, nil
}

// CheckIsAlive polls for pending beats/KILL signals and reports whether the
// Heartbeater is still considered alive.
func (l *HeartbeatListener) CheckIsAlive() bool {
	now := time.Now()
	frames := l.sub.Poll(l.pollTimeout)
	for _, f := range frames {
		switch f.Topic {
		case beatTopic:
			l.receivedFirst = true
			l.lastBeat = now
		case killTopic:
			l.receivedKill = true
			l.log.Debug("received kill signal")
		}
	}

	missed := now.Sub(l.lastBeat) >= l.timeBeforeDead
	if missed && l.receivedFirst && !l.receivedKill && !l.declaredDead {
		l.declaredDead = true
		heartbeatMissed.WithLabelValues(l.name).Inc()
	}
	if missed || l.receivedKill {
		return false
	}
	return true
}

// ReceivedKillSignal reports whether the peer signaled a planned shutdown.
func (l *HeartbeatListener) ReceivedKillSignal() bool { return l.receivedKill }

// ReceivedFirstBeat reports whether any beat has ever been observed.
func (l *HeartbeatListener) ReceivedFirstBeat() bool { return l.receivedFirst }

// Reset clears dead-reckoning state after a restart of the watched
// Heartbeater.
func (l *HeartbeatListener) Reset() {
	l.lastBeat = time.Now()
	l.receivedKill = false
	l.declaredDead = false
}

// Close releases the underlying socket.
func (l *HeartbeatListener) Close() error {
	return l.sub.Close()
}

// AddrForComponent builds the conventional heartbeat endpoint for a named
// component, mirroring the afspm convention of deriving IPC addresses from
// a component name under the OS temp directory.
func AddrForComponent(name string) string {
	return "ipc://" + os.TempDir() + "/" + name + ".heartbeat"
}
