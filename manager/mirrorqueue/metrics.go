package mirrorqueue

import (
	metrics "github.com/docker/go-metrics"
)

var (
	commandsTotal  metrics.LabeledCounter
	commandLatency metrics.LabeledTimer
	commandsQueued metrics.Gauge
)

func init() {
	ns := metrics.NewNamespace("tapkit", "mirrorqueue", nil)
	commandsTotal = ns.NewLabeledCounter("commands", "The number of executed southbound commands", "kind", "result")
	commandLatency = ns.NewLabeledTimer("command_latency", "The time taken by a southbound command", "kind")
	commandsQueued = ns.NewGauge("queued_commands", "The number of commands waiting for the worker", metrics.Total)
	metrics.Register(ns)
}
