package agent

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/log"
	"github.com/sirupsen/logrus"
)

// castHandler describes how a cast is executed and reported.
type castHandler struct {
	kind    string
	run     func(d *driver, ctx context.Context, msg *api.CastMessage) error
	success api.Status
	failure api.Status
	// fanout handlers run on every host, whatever the message host.
	fanout bool
}

var castHandlers = map[string]castHandler{
	api.MethodCreateTapService: {
		kind:    api.KindTapService,
		run:     (*driver).createTapService,
		success: api.StatusActive,
		failure: api.StatusError,
	},
	api.MethodDeleteTapService: {
		kind:    api.KindTapService,
		run:     (*driver).deleteTapService,
		success: api.StatusInactive,
		failure: api.StatusPendingDelete,
		fanout:  true,
	},
	api.MethodCreateTapFlow: {
		kind:    api.KindTapFlow,
		run:     (*driver).createTapFlow,
		success: api.StatusActive,
		failure: api.StatusError,
	},
	api.MethodDeleteTapFlow: {
		kind:    api.KindTapFlow,
		run:     (*driver).deleteTapFlow,
		success: api.StatusInactive,
		failure: api.StatusPendingDelete,
	},
}

// worker executes the casts received from the manager, one at a time, and
// reports the outcome.
type worker struct {
	host     string
	driver   *driver
	reporter *statusReporter
}

func newWorker(host string, d *driver, reporter *statusReporter) *worker {
	return &worker{
		host:     host,
		driver:   d,
		reporter: reporter,
	}
}

// accepts reports whether this host must act on msg. Casts for another host,
// casts for unbound ports and casts about SR-IOV ports are ignored.
func (w *worker) accepts(h castHandler, msg *api.CastMessage) bool {
	if !h.fanout && msg.Host != w.host {
		return false
	}
	if msg.Port != nil && msg.Port.VNICType == api.VNICDirect {
		return false
	}
	return true
}

func (w *worker) handle(ctx context.Context, msg *api.CastMessage) {
	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(logrus.Fields{
		"method":  msg.Method,
		"id":      msg.ObjectID(),
		"taas_id": msg.TaasID,
	}))

	h, ok := castHandlers[msg.Method]
	if !ok {
		log.G(ctx).Warn("ignoring unknown cast")
		return
	}
	if !w.accepts(h, msg) {
		log.G(ctx).WithField("cast.host", msg.Host).Debug("ignoring cast for another host or driver")
		return
	}
	id := msg.ObjectID()
	if id == "" {
		log.G(ctx).Warn("ignoring cast without payload")
		return
	}

	status := h.success
	if err := h.run(w.driver, ctx, msg); err != nil {
		log.G(ctx).WithError(err).Error("failed to invoke the driver")
		status = h.failure
	}
	w.reporter.report(ctx, h.kind, id, status)
}
