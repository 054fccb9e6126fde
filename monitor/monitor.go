// Package monitor implements the Component Monitor (spec §4.11): it spawns
// a set of components as isolated child processes, waits for each to prove
// itself alive over its heartbeat channel, and then supervises them for the
// lifetime of the experiment -- restarting anything that crashes, and
// forgetting anything that exits on purpose.
package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/heartbeat"
)

// Default tuning values (spec §5). These differ from the heartbeat
// package's own zero-value defaults because the Monitor supervises
// external processes rather than library-internal callers, and the
// reference implementation gives the supervisory loop its own, coarser
// cadence; see DESIGN.md.
const (
	DefaultPollTimeout           = 100 * time.Millisecond
	DefaultLoopSleep             = 1 * time.Second
	DefaultBeatPeriod            = 1 * time.Second
	DefaultMissedBeatsBeforeDead = 5
)

// Descriptor is a recipe sufficient to (re)construct one component as a
// child process. Go has no equivalent of reflectively re-invoking a
// constructor with captured kwargs in a fresh interpreter, so the
// Descriptor carries an exec.Command-shaped recipe instead: the Monitor
// execs Command with Args and Env, and it is up to that process (commonly
// the same afspmd binary, re-exec'd with a component-selecting flag) to
// build and run the named component. How a Descriptor is put together is
// a concern of cmd/afspmd, not of this package.
type Descriptor struct {
	Name    string
	Command string
	Args    []string
	Env     []string

	BeatPeriod            time.Duration
	MissedBeatsBeforeDead int
}

func (d Descriptor) withDefaults() Descriptor {
	if d.BeatPeriod <= 0 {
		d.BeatPeriod = DefaultBeatPeriod
	}
	if d.MissedBeatsBeforeDead <= 0 {
		d.MissedBeatsBeforeDead = DefaultMissedBeatsBeforeDead
	}
	return d
}

type child struct {
	descriptor Descriptor
	cmd        *exec.Cmd
	listener   *heartbeat.HeartbeatListener
}

// Monitor supervises a set of named components, restarting any that crash
// and forgetting any that exit on purpose (spec §4.11).
type Monitor struct {
	pollTimeout time.Duration
	loopSleep   time.Duration
	ledger      *Ledger
	log         *logrus.Entry

	// order preserves startup order for deterministic iteration; Go maps,
	// unlike the reference implementation's Python dicts, make no
	// ordering guarantee.
	order    []string
	children map[string]*child
}

// NewMonitor opens the restart ledger at sqlitePath and returns an empty
// Monitor ready for Start.
func NewMonitor(sqlitePath string, pollTimeout, loopSleep time.Duration) (*Monitor, error) {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if loopSleep <= 0 {
		loopSleep = DefaultLoopSleep
	}
	ledger, err := NewLedger(sqlitePath)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		pollTimeout: pollTimeout,
		loopSleep:   loopSleep,
		ledger:      ledger,
		log:         logrus.WithField("component", "monitor"),
		children:    make(map[string]*child),
	}, nil
}

// Start spawns every descriptor in order, waiting in turn for each to send
// its first heartbeat. If any component fails to come alive, Start
// terminates every component already started and returns an error (spec
// §4.11's startup-failure invariant).
func (m *Monitor) Start(descriptors []Descriptor) error {
	for _, d := range descriptors {
		d = d.withDefaults()
		c, err := m.spawn(d)
		if err != nil {
			m.terminateAll()
			return fmt.Errorf("monitor: starting %q: %w", d.Name, err)
		}
		m.order = append(m.order, d.Name)
		m.children[d.Name] = c

		alive := m.awaitFirstBeat(c)
		if !alive {
			m.log.WithField("name", d.Name).Error("monitor: component never came alive, aborting startup")
			m.terminateAll()
			return fmt.Errorf("monitor: %q never came alive", d.Name)
		}
		m.log.WithField("name", d.Name).Info("monitor: component started")
	}
	return nil
}

func (m *Monitor) awaitFirstBeat(c *child) bool {
	alive := true
	for !c.listener.ReceivedFirstBeat() && alive {
		alive = c.listener.CheckIsAlive()
	}
	return alive
}

func (m *Monitor) spawn(d Descriptor) (*child, error) {
	cmd := exec.Command(d.Command, d.Args...)
	cmd.Env = d.Env
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting process: %w", err)
	}

	listener, err := heartbeat.NewHeartbeatListener(
		heartbeat.AddrForComponent(d.Name), d.BeatPeriod, d.MissedBeatsBeforeDead, m.pollTimeout, d.Name)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("starting heartbeat listener: %w", err)
	}

	return &child{descriptor: d, cmd: cmd, listener: listener}, nil
}

// Run executes the supervisory loop until ctx is cancelled or every
// component has been terminated or forgotten (spec §4.11). Start must be
// called first.
func (m *Monitor) Run(ctx context.Context) {
	for {
		if len(m.children) == 0 {
			m.log.Info("monitor: no components remain, stopping")
			return
		}

		select {
		case <-ctx.Done():
			m.log.Info("monitor: context cancelled, terminating all components")
			m.terminateAll()
			return
		default:
		}

		m.runPerLoop()

		select {
		case <-ctx.Done():
			m.log.Info("monitor: context cancelled, terminating all components")
			m.terminateAll()
			return
		case <-time.After(m.loopSleep):
		}
	}
}

// runPerLoop checks every live child once. A crashed child is restarted in
// place (and forgotten at once if the restart fails); a child that exited
// on purpose is marked for removal after the pass completes. The pass
// ranges over a copy of m.order, so a removal never disturbs the iteration.
func (m *Monitor) runPerLoop() {
	var toRemove []string

	for _, name := range append([]string(nil), m.order...) {
		c, ok := m.children[name]
		if !ok {
			continue
		}
		if c.listener.CheckIsAlive() {
			continue
		}

		if c.listener.ReceivedKillSignal() {
			m.log.WithField("name", name).Info("monitor: component finished")
			if err := m.ledger.Record(name, EventPlannedExit); err != nil {
				m.log.WithError(err).Warn("monitor: recording planned exit failed")
			}
			_ = c.cmd.Process.Kill()
			_ = c.cmd.Wait()
			toRemove = append(toRemove, name)
			continue
		}

		m.log.WithField("name", name).Warn("monitor: component crashed or froze, restarting")
		restarts.WithLabelValues(name).Inc()
		if err := m.ledger.Record(name, EventCrash); err != nil {
			m.log.WithError(err).Warn("monitor: recording crash failed")
		}
		m.restart(name, c)
	}

	for _, name := range toRemove {
		m.remove(name)
	}
}

func (m *Monitor) restart(name string, c *child) {
	_ = c.cmd.Process.Kill()
	_ = c.cmd.Wait()
	c.listener.Reset()

	fresh, err := m.spawn(c.descriptor)
	if err != nil {
		m.log.WithError(err).WithField("name", name).Error("monitor: restart failed, forgetting component")
		m.remove(name)
		return
	}
	_ = c.listener.Close()
	m.children[name] = fresh
}

// remove terminates and forgets the named child. The caller is responsible
// for having already recorded the reason in the ledger.
func (m *Monitor) remove(name string) {
	c, ok := m.children[name]
	if !ok {
		return
	}
	_ = c.cmd.Process.Kill()
	_ = c.cmd.Wait()
	_ = c.listener.Close()
	delete(m.children, name)

	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// terminateAll kills and forgets every remaining child, used both on
// startup failure and on a requested shutdown.
func (m *Monitor) terminateAll() {
	for _, name := range append([]string(nil), m.order...) {
		m.remove(name)
	}
}

// Close releases the restart ledger. Any remaining children should be
// terminated via Run's context cancellation before calling Close.
func (m *Monitor) Close() error {
	return m.ledger.Close()
}
