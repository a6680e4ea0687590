package dispatcher

import (
	metrics "github.com/docker/go-metrics"
)

var (
	activeSessions metrics.Gauge
	castsTotal     metrics.LabeledCounter
)

func init() {
	ns := metrics.NewNamespace("tapkit", "dispatcher", nil)
	activeSessions = ns.NewGauge("sessions", "The number of agent sessions", metrics.Total)
	castsTotal = ns.NewLabeledCounter("casts", "The number of casts published to agents", "method")
	metrics.Register(ns)
}
