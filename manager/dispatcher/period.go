package dispatcher

import (
	"math/rand"
	"sync"
	"time"
)

// periodChooser spreads heartbeat periods within epsilon of period so
// agents do not beat in lockstep.
type periodChooser struct {
	period  time.Duration
	epsilon time.Duration
	rand    *rand.Rand
	mu      sync.Mutex
}

func newPeriodChooser(period, eps time.Duration) *periodChooser {
	return &periodChooser{
		period:  period,
		epsilon: eps,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (pc *periodChooser) Choose() time.Duration {
	var adj int64
	if pc.epsilon > 0 {
		pc.mu.Lock()
		adj = pc.rand.Int63n(int64(2*pc.epsilon)) - int64(pc.epsilon)
		pc.mu.Unlock()
	}
	return pc.period + time.Duration(adj)
}
