package coordinator

import (
	metrics "github.com/docker/go-metrics"
)

var (
	operationLatency metrics.LabeledTimer
	statusReports    metrics.LabeledCounter
)

func init() {
	ns := metrics.NewNamespace("tapkit", "coordinator", nil)
	operationLatency = ns.NewLabeledTimer("operation_latency", "Latency of session lifecycle operations", "operation")
	statusReports = ns.NewLabeledCounter("status_reports", "The number of status reports received from agents", "kind", "status")
	metrics.Register(ns)
}

func timeOperation(name string) func() {
	return metrics.StartTimer(operationLatency.WithValues(name))
}
