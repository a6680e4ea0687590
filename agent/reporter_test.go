package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/moby/tapkit/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter(t *testing.T) {
	const nobjects = 100
	ctx := context.Background()
	stub := &stubReporter{
		statuses: make(map[statusKey]api.Status),
		random:   true,
	}
	reporter := newStatusReporter(ctx, stub, clock.NewClock())
	defer reporter.Close()

	expected := make(map[statusKey]api.Status)
	var wg sync.WaitGroup
	for _, status := range []api.Status{
		api.StatusActive,
		api.StatusError,
		api.StatusInactive,
	} {
		for i := 0; i < nobjects; i++ {
			key := statusKey{Kind: api.KindTapFlow, ID: fmt.Sprint(i)}
			expected[key] = status

			// simulate pounding this with a bunch of goroutines
			wg.Add(1)
			go func(key statusKey, status api.Status) {
				defer wg.Done()
				reporter.report(ctx, key.Kind, key.ID, status)
			}(key, status)
		}
		wg.Wait()
	}

	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		for key, status := range expected {
			if stub.statuses[key] != status {
				return false
			}
		}
		return true
	}, 30*time.Second, 10*time.Millisecond)
}

func TestReporterRetry(t *testing.T) {
	ctx := context.Background()
	clk := fakeclock.NewFakeClock(time.Now())
	stub := &stubReporter{
		statuses: make(map[statusKey]api.Status),
		failures: 1,
	}
	reporter := newStatusReporter(ctx, stub, clk)
	defer reporter.Close()

	reporter.report(ctx, api.KindTapService, "svc", api.StatusActive)
	clk.WaitForWatcherAndIncrement(reportRetryDelay)

	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return stub.statuses[statusKey{api.KindTapService, "svc"}] == api.StatusActive
	}, 10*time.Second, 10*time.Millisecond)
}

func TestReporterNewestStatusWins(t *testing.T) {
	ctx := context.Background()
	clk := fakeclock.NewFakeClock(time.Now())
	stub := &stubReporter{
		statuses: make(map[statusKey]api.Status),
		failures: 1,
	}
	reporter := newStatusReporter(ctx, stub, clk)
	defer reporter.Close()

	key := statusKey{api.KindTapFlow, "flow"}
	reporter.report(ctx, key.Kind, key.ID, api.StatusError)
	// the failed batch is waiting for the retry delay
	waitForWatcher(t, clk)
	reporter.report(ctx, key.Kind, key.ID, api.StatusInactive)
	clk.Increment(reportRetryDelay)

	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return stub.statuses[key] == api.StatusInactive
	}, 10*time.Second, 10*time.Millisecond)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.NotContains(t, stub.sent, api.StatusError)
}

func TestReporterClose(t *testing.T) {
	ctx := context.Background()
	stub := &stubReporter{
		statuses: make(map[statusKey]api.Status),
		failures: 1,
	}
	clk := fakeclock.NewFakeClock(time.Now())
	reporter := newStatusReporter(ctx, stub, clk)
	reporter.report(ctx, api.KindTapFlow, "flow", api.StatusActive)
	waitForWatcher(t, clk)

	// Close must not wait for the retry delay.
	assert.NoError(t, reporter.Close())
	assert.NoError(t, reporter.Close())
}

func waitForWatcher(t *testing.T, clk *fakeclock.FakeClock) {
	require.Eventually(t, func() bool {
		return clk.WatcherCount() > 0
	}, 10*time.Second, time.Millisecond)
}

type stubReporter struct {
	mu       sync.Mutex
	statuses map[statusKey]api.Status
	sent     []api.Status
	// failures is the number of calls failing before calls succeed.
	failures int
	// random fails about one call in ten.
	random bool
}

func (sr *stubReporter) UpdateStatus(ctx context.Context, statuses map[statusKey]api.Status) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.failures > 0 {
		sr.failures--
		return errors.New("status send failed")
	}
	if sr.random && rand.Float64() > 0.9 {
		return errors.New("status send failed")
	}

	for key, status := range statuses {
		sr.statuses[key] = status
		sr.sent = append(sr.sent, status)
	}
	return nil
}
