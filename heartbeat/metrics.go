package heartbeat

import "github.com/prometheus/client_golang/prometheus"

// heartbeatMissed counts the transitions where a HeartbeatListener declares
// its peer dead from silence rather than an explicit KILL signal.
var heartbeatMissed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "afspm",
	Subsystem: "heartbeat",
	Name:      "missed_total",
	Help:      "Times a HeartbeatListener declared its peer dead from missed beats.",
}, []string{"name"})

func init() {
	prometheus.MustRegister(heartbeatMissed)
}
