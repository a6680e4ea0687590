// Package heartbeat tracks the liveness of agent sessions.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
)

// Heartbeat calls its expiry function when no Beat arrives within the
// timeout. A Beat after expiry arms it again.
type Heartbeat struct {
	timeout int64
	timer   clock.Timer
	stop    chan struct{}
	once    sync.Once
}

// New creates a Heartbeat with the given timeout. timeoutFunc runs on the
// Heartbeat goroutine; it may call Stop.
func New(clk clock.Clock, timeout time.Duration, timeoutFunc func()) *Heartbeat {
	hb := &Heartbeat{
		timeout: int64(timeout),
		timer:   clk.NewTimer(timeout),
		stop:    make(chan struct{}),
	}
	go hb.run(timeoutFunc)
	return hb
}

func (hb *Heartbeat) run(timeoutFunc func()) {
	for {
		select {
		case <-hb.timer.C():
			timeoutFunc()
		case <-hb.stop:
			return
		}
	}
}

// Beat resets the internal timer.
func (hb *Heartbeat) Beat() {
	hb.timer.Reset(time.Duration(atomic.LoadInt64(&hb.timeout)))
}

// Update changes the timeout to d. It does not Beat.
func (hb *Heartbeat) Update(d time.Duration) {
	atomic.StoreInt64(&hb.timeout, int64(d))
}

// Stop stops the Heartbeat. It is safe to call more than once.
func (hb *Heartbeat) Stop() {
	hb.once.Do(func() {
		hb.timer.Stop()
		close(hb.stop)
	})
}
