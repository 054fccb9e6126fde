package monitor

import "github.com/prometheus/client_golang/prometheus"

// restarts counts components restarted after a crash or freeze, by name.
var restarts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "afspm",
	Subsystem: "monitor",
	Name:      "restarts_total",
	Help:      "Components restarted after a crash or freeze, by name.",
}, []string{"name"})

func init() {
	prometheus.MustRegister(restarts)
}
