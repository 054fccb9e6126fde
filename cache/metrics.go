package cache

import "github.com/prometheus/client_golang/prometheus"

// cacheReplayed counts history frames replayed to a newly connected
// subscriber during handshake. cacheDropped counts live frames discarded
// because a subscriber's queue was full; replay frames are never dropped,
// since each subscriber's queue is sized to hold its whole replay.
var (
	cacheReplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "afspm",
		Subsystem: "cache",
		Name:      "replayed_frames_total",
		Help:      "History frames replayed to newly connected subscribers.",
	})
	cacheDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "afspm",
		Subsystem: "cache",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped because a subscriber's queue was full.",
	}, []string{"path"})
)

func init() {
	prometheus.MustRegister(cacheReplayed, cacheDropped)
}
