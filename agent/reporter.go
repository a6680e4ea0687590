package agent

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/log"
)

const reportRetryDelay = time.Second

// statusKey names a reported object.
type statusKey struct {
	Kind string
	ID   string
}

// StatusReporter receives status updates of tap services and tap flows.
// Methods may be called concurrently, so implementations should be
// goroutine-safe.
type StatusReporter interface {
	UpdateStatus(ctx context.Context, statuses map[statusKey]api.Status) error
}

type statusReporterFunc func(ctx context.Context, key statusKey, status api.Status) error

func (fn statusReporterFunc) UpdateStatus(ctx context.Context, statuses map[statusKey]api.Status) error {
	for key, status := range statuses {
		if err := fn(ctx, key, status); err != nil {
			return err
		}
		// delete statuses from the map as we process them so the random failures
		// can't sink every batch forever
		delete(statuses, key)
	}
	return nil
}

// statusReporter creates a reliable StatusReporter that will always succeed.
// It handles several objects at once, ensuring all statuses are reported.
//
// The reporter will continue reporting the latest status of an object until
// it succeeds.
type statusReporter struct {
	reporter StatusReporter
	clock    clock.Clock
	statuses map[statusKey]api.Status
	mu       sync.Mutex
	cond     sync.Cond
	closed   bool
	stop     chan struct{}
	done     chan struct{}
}

func newStatusReporter(ctx context.Context, upstream StatusReporter, clk clock.Clock) *statusReporter {
	r := &statusReporter{
		reporter: upstream,
		clock:    clk,
		statuses: make(map[statusKey]api.Status),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	r.cond.L = &r.mu

	go r.run(ctx)
	return r
}

// UpdateStatus queues the provided statuses. A newer status of an object
// replaces one not yet sent.
func (sr *statusReporter) UpdateStatus(ctx context.Context, statuses map[statusKey]api.Status) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	for key, status := range statuses {
		sr.statuses[key] = status
	}

	// the useful thing about this function is this: it doesn't wake the
	// waiting loop in run until everything has been added.
	sr.cond.Signal()

	return nil
}

// report queues a single status.
func (sr *statusReporter) report(ctx context.Context, kind, id string, status api.Status) {
	_ = sr.UpdateStatus(ctx, map[statusKey]api.Status{{Kind: kind, ID: id}: status})
}

// Close stops the reporter and waits for its loop to exit. Statuses not yet
// sent are dropped; the manager learns them again through the next sync.
func (sr *statusReporter) Close() error {
	sr.mu.Lock()
	if !sr.closed {
		sr.closed = true
		close(sr.stop)
	}
	sr.cond.Signal()
	sr.mu.Unlock()

	<-sr.done
	return nil
}

func (sr *statusReporter) run(ctx context.Context) {
	ctx = log.WithModule(ctx, "reporter")
	defer close(sr.done)

	sr.mu.Lock() // released during wait, below.
	defer sr.mu.Unlock()

	for {
		for len(sr.statuses) == 0 && !sr.closed {
			sr.cond.Wait()
		}

		if sr.closed {
			return
		}

		// swap out the statuses map, so we can release the lock while we
		// do the batch
		statuses := sr.statuses
		sr.statuses = map[statusKey]api.Status{}
		// unlock the map so new statuses can be added while we process the
		// current ones
		sr.mu.Unlock()
		err := sr.reporter.UpdateStatus(ctx, statuses)
		if err != nil {
			// this is probably just a hiccup in the dispatcher, or no session
			// is up yet. Wait a little before trying again.
			log.G(ctx).WithError(err).Warn("status reporter failed to batch-update statuses")
			select {
			case <-sr.clock.After(reportRetryDelay):
			case <-sr.stop:
			case <-ctx.Done():
			}
		}
		// re-lock the map so we can add statuses back if we need to.
		sr.mu.Lock()
		if err != nil {
			// statuses queued while the lock was released are newer.
			for key, status := range statuses {
				if _, ok := sr.statuses[key]; !ok {
					sr.statuses[key] = status
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}
