package router

import "github.com/prometheus/client_golang/prometheus"

// requestLatency tracks how long the backend Control Server takes to answer
// a forwarded request, broken down by request code.
var requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "afspm",
	Subsystem: "router",
	Name:      "request_latency_seconds",
	Help:      "Backend Control Server round-trip latency for forwarded requests.",
	Buckets:   prometheus.DefBuckets,
}, []string{"code"})

func init() {
	prometheus.MustRegister(requestLatency)
}
