// Package scheduler implements the Microscope Scheduler (spec §2 C9, §4.9):
// the intermediary between a Microscope Translator and many clients,
// composing a Pub/Sub Cache and a Control Router.
package scheduler

import (
	"context"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/cache"
	"github.com/afspm-go/afspm/control/router"
	"github.com/afspm-go/afspm/heartbeat"
	"github.com/afspm-go/afspm/internal/wire"
)

// DefaultRouterPollTimeout bounds how long a loop iteration waits for a
// pending client request before moving on.
const DefaultRouterPollTimeout = 100 * time.Millisecond

// DefaultLoopSleep is the pause between main loop iterations (spec §5).
const DefaultLoopSleep = 200 * time.Millisecond

// Scheduler owns a Pub/Sub Cache and a Control Router and mirrors the
// Router's computed ControlState, republishing it through the cache
// whenever it changes (spec §4.9).
type Scheduler struct {
	Cache  *cache.Cache
	Router *router.Router

	log          *logrus.Entry
	controlState wire.ControlStateMsg
}

// NewScheduler composes an already-constructed Cache and Router.
func NewScheduler(c *cache.Cache, r *router.Router) *Scheduler {
	return &Scheduler{
		Cache:  c,
		Router: r,
		log:    logrus.WithField("component", "scheduler"),
	}
}

// Run executes the main loop until ctx is cancelled or the Router reports
// a requested shutdown, in which case a KILL is published through the
// Cache before returning (spec §4.9 step 4).
func (s *Scheduler) Run(ctx context.Context, hb *heartbeat.Heartbeater, loopSleep, routerPollTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			if hb != nil {
				hb.HandleClosing()
			}
			return
		default:
		}

		s.Router.PollAndHandle(routerPollTimeout)
		s.handleSendControlState()

		if s.Router.WasShutdownRequested() {
			s.log.Info("shutdown requested, sending kill signal")
			s.Cache.Kill()
			if hb != nil {
				hb.HandleClosing()
			}
			return
		}

		if hb != nil {
			hb.HandleBeat()
		}
		time.Sleep(loopSleep)
	}
}

// handleSendControlState implements spec §4.9 step 3: publish the Router's
// current ControlState through the Cache whenever it differs from the
// last-sent mirror.
func (s *Scheduler) handleSendControlState() {
	next := s.Router.GetControlState()
	if reflect.DeepEqual(next, s.controlState) {
		return
	}
	s.log.WithField("control_state", next).Debug("sending new control state")

	buf, err := wire.Marshal(&next)
	if err != nil {
		s.log.WithError(err).Warn("marshal control state failed")
		return
	}
	s.Cache.Ingest(wire.TypeTopic(&next), buf)
	s.controlState = next
}
