// Package stats exposes the prometheus collectors of the signaling server.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	createBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "signal",
		Name:      "sessions",
	})

	Transports = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "signal",
		Name:      "transports",
	})

	Producers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "signal",
		Name:      "producers",
	}, []string{"kind"})

	Consumers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "signal",
		Name:      "consumers",
	}, []string{"kind"})

	requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "signal",
		Name:      "requests_total",
	}, []string{"method", "reason"})

	engineCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "engine",
		Name:      "call_seconds",
		Buckets:   createBuckets,
	}, []string{"call"})

	mediaContextReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "engine",
		Name:      "ready",
	})
)

func init() {
	prometheus.MustRegister(Sessions)
	prometheus.MustRegister(Transports)
	prometheus.MustRegister(Producers)
	prometheus.MustRegister(Consumers)
	prometheus.MustRegister(requests)
	prometheus.MustRegister(engineCalls)
	prometheus.MustRegister(mediaContextReady)
}

// Request counts a handled request. reason is empty on success.
func Request(method, reason string) {
	if reason == "" {
		reason = "ok"
	}
	requests.WithLabelValues(method, reason).Inc()
}

// ObserveEngineCall records how long an engine call took.
func ObserveEngineCall(call string, start time.Time) {
	engineCalls.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

// SetReady records whether the media context can serve requests.
func SetReady(ready bool) {
	if ready {
		mediaContextReady.Set(1)
		return
	}
	mediaContextReady.Set(0)
}
