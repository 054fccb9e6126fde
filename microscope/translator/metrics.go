package translator

import "github.com/prometheus/client_golang/prometheus"

// pollErrors counts device polls that returned an error, broken down by
// which poll failed, mirroring internal/transport's pubsubDropped counter
// shape (a CounterVec registered once at package init).
var pollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "afspm",
	Subsystem: "translator",
	Name:      "poll_errors_total",
	Help:      "Device polls that returned an error, by poll kind.",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(pollErrors)
}
