// Package metrics exports gauges describing the mirror sessions held by the
// manager store.
package metrics

import (
	"context"
	"strings"
	"sync"

	"github.com/docker/go-events"
	metrics "github.com/docker/go-metrics"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/manager/state/store"
)

var (
	ns = metrics.NewNamespace("tapkit", "manager", nil)

	sessionsGauge metrics.LabeledGauge
	mirrorsGauge  metrics.Gauge
	portsGauge    metrics.Gauge
)

func init() {
	sessionsGauge = ns.NewLabeledGauge("sessions", "The number of mirror sessions by kind and status", metrics.Total, "kind", "status")
	mirrorsGauge = ns.NewGauge("tap_mirrors", "The number of tunnel mirrors", metrics.Total)
	portsGauge = ns.NewGauge("ports", "The number of registered ports", metrics.Total)
	metrics.Register(ns)
}

var allStatuses = []api.Status{api.StatusDown, api.StatusActive, api.StatusPendingDelete, api.StatusError}

// Collector keeps the session gauges in sync with the store.
type Collector struct {
	store *store.MemoryStore

	mu sync.Mutex
	// statuses of tap services and tap flows, by kind then id.
	statuses map[string]map[string]api.Status
	mirrors  map[string]struct{}
	ports    map[string]struct{}

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(store *store.MemoryStore) *Collector {
	return &Collector{
		store: store,
		statuses: map[string]map[string]api.Status{
			api.KindTapService: {},
			api.KindTapFlow:    {},
		},
		mirrors:  make(map[string]struct{}),
		ports:    make(map[string]struct{}),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run contains the collector event loop.
func (c *Collector) Run(ctx context.Context) error {
	defer close(c.doneChan)

	watcher, cancel, err := c.store.ViewAndWatch(func(tx store.ReadTx) error {
		services, err := store.FindTapServices(tx, store.All)
		if err != nil {
			return err
		}
		flows, err := store.FindTapFlows(tx, store.All)
		if err != nil {
			return err
		}
		mirrors, err := store.FindTapMirrors(tx, store.All)
		if err != nil {
			return err
		}
		ports, err := store.FindPorts(tx, store.All)
		if err != nil {
			return err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, s := range services {
			c.statuses[api.KindTapService][s.ID] = s.Status
		}
		for _, f := range flows {
			c.statuses[api.KindTapFlow][f.ID] = f.Status
		}
		for _, m := range mirrors {
			c.mirrors[m.ID] = struct{}{}
		}
		for _, p := range ports {
			c.ports[p.ID] = struct{}{}
		}
		c.publishLocked()
		return nil
	}, store.MatchTables(store.TableTapService, store.TableTapFlow, store.TableTapMirror, store.TablePort))
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case event := <-watcher:
			c.handleEvent(event)
		case <-c.stopChan:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop stops the collector and waits for Run to return.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.doneChan
}

func (c *Collector) handleEvent(event events.Event) {
	var (
		obj     api.StoreObject
		deleted bool
	)
	switch v := event.(type) {
	case store.EventCreate:
		obj = v.Object
	case store.EventUpdate:
		obj = v.Object
	case store.EventDelete:
		obj, deleted = v.Object, true
	case store.EventCommit:
		c.mu.Lock()
		c.publishLocked()
		c.mu.Unlock()
		return
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch o := obj.(type) {
	case *api.TapService:
		c.setStatusLocked(api.KindTapService, o.ID, o.Status, deleted)
	case *api.TapFlow:
		c.setStatusLocked(api.KindTapFlow, o.ID, o.Status, deleted)
	case *api.TapMirror:
		setMember(c.mirrors, o.ID, deleted)
	case *api.Port:
		setMember(c.ports, o.ID, deleted)
	}
}

func (c *Collector) setStatusLocked(kind, id string, status api.Status, deleted bool) {
	if deleted {
		delete(c.statuses[kind], id)
		return
	}
	c.statuses[kind][id] = status
}

func setMember(set map[string]struct{}, id string, deleted bool) {
	if deleted {
		delete(set, id)
		return
	}
	set[id] = struct{}{}
}

// Counts returns the number of sessions of a kind in each status.
func (c *Collector) Counts(kind string) map[api.Status]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countsLocked(kind)
}

func (c *Collector) countsLocked(kind string) map[api.Status]int {
	counts := make(map[api.Status]int)
	for _, s := range c.statuses[kind] {
		counts[s]++
	}
	return counts
}

func (c *Collector) publishLocked() {
	for kind := range c.statuses {
		counts := c.countsLocked(kind)
		for _, s := range allStatuses {
			sessionsGauge.WithValues(kind, strings.ToLower(string(s))).Set(float64(counts[s]))
		}
	}
	mirrorsGauge.Set(float64(len(c.mirrors)))
	portsGauge.Set(float64(len(c.ports)))
}
