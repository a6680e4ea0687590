package dispatcher

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/moby/tapkit/manager/dispatcher/heartbeat"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// registeredNode is an agent session. Agents are keyed by host: at most one
// session per host is valid at a time.
type registeredNode struct {
	Host       string
	SessionID  string
	DriverType string
	Heartbeat  *heartbeat.Heartbeat
	// Disconnect is closed when the session is replaced or expires.
	Disconnect chan struct{}
	// syncLimiter bounds the SyncTapResources requests of the session.
	syncLimiter *rate.Limiter

	mu sync.Mutex
}

// checkSessionID determines if the SessionID has changed and returns the
// appropriate gRPC error code.
func (rn *registeredNode) checkSessionID(sessionID string) error {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	// The agent must re-register when its session has been replaced.
	if rn.SessionID != sessionID {
		return status.Errorf(codes.InvalidArgument, ErrSessionInvalid.Error())
	}
	return nil
}

type nodeStore struct {
	clock                 clock.Clock
	periodChooser         *periodChooser
	gracePeriodMultiplier time.Duration
	nodes                 map[string]*registeredNode
	mu                    sync.RWMutex
}

func newNodeStore(clk clock.Clock, hbPeriod, hbEpsilon time.Duration, graceMultiplier int) *nodeStore {
	return &nodeStore{
		clock:                 clk,
		nodes:                 make(map[string]*registeredNode),
		periodChooser:         newPeriodChooser(hbPeriod, hbEpsilon),
		gracePeriodMultiplier: time.Duration(graceMultiplier),
	}
}

// Add adds a new session for rn.Host, replacing the existing one. The
// replaced session is disconnected.
func (s *nodeStore) Add(rn *registeredNode, expireFunc func()) *registeredNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[rn.Host]; ok {
		existing.Heartbeat.Stop()
		close(existing.Disconnect)
		delete(s.nodes, rn.Host)
	}
	rn.Disconnect = make(chan struct{})
	rn.Heartbeat = heartbeat.New(s.clock, s.periodChooser.Choose()*s.gracePeriodMultiplier, expireFunc)
	s.nodes[rn.Host] = rn
	return rn
}

func (s *nodeStore) Get(host string) (*registeredNode, error) {
	s.mu.RLock()
	rn, ok := s.nodes[host]
	s.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, ErrNodeNotRegistered.Error())
	}
	return rn, nil
}

func (s *nodeStore) GetWithSession(host, sid string) (*registeredNode, error) {
	rn, err := s.Get(host)
	if err != nil {
		return nil, err
	}
	return rn, rn.checkSessionID(sid)
}

// Heartbeat renews the session and returns the period of the next
// heartbeat.
func (s *nodeStore) Heartbeat(host, sid string) (time.Duration, error) {
	rn, err := s.GetWithSession(host, sid)
	if err != nil {
		return 0, err
	}
	period := s.periodChooser.Choose()
	rn.Heartbeat.Update(period * s.gracePeriodMultiplier)
	rn.Heartbeat.Beat()
	return period, nil
}

// Delete removes the session of host if it is still sid.
func (s *nodeStore) Delete(host, sid string) *registeredNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	rn, ok := s.nodes[host]
	if !ok || rn.SessionID != sid {
		return nil
	}
	delete(s.nodes, host)
	rn.Heartbeat.Stop()
	close(rn.Disconnect)
	return rn
}

func (s *nodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Clean removes every session.
func (s *nodeStore) Clean() {
	s.mu.Lock()
	for host, rn := range s.nodes {
		rn.Heartbeat.Stop()
		close(rn.Disconnect)
		delete(s.nodes, host)
	}
	s.mu.Unlock()
}
