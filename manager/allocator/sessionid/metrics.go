package sessionid

import (
	metrics "github.com/docker/go-metrics"
)

var idsGauge metrics.LabeledGauge

func init() {
	ns := metrics.NewNamespace("tapkit", "sessionid", nil)
	idsGauge = ns.NewLabeledGauge("identifiers", "The number of session identifiers by state", metrics.Total, "state")
	metrics.Register(ns)
}
