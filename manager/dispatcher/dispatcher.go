// Package dispatcher implements the agent protocol: agents register for
// their host, receive the casts addressed to it over a session stream, and
// report the outcome back.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/docker/go-events"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/identity"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/watch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DefaultHeartBeatPeriod is used for setting default value in cluster config
	// and in case if cluster config is missing.
	DefaultHeartBeatPeriod       = 5 * time.Second
	defaultHeartBeatEpsilon      = 500 * time.Millisecond
	defaultGracePeriodMultiplier = 3
	defaultSyncRate              = rate.Limit(1)
	defaultSyncBurst             = 3
)

var (
	// ErrNodeNotRegistered returned if no agent of the host is registered
	// with this dispatcher.
	ErrNodeNotRegistered = errors.New("node not registered")
	// ErrSessionInvalid returned when the session in use is no longer valid.
	// The agent should re-register and start a new session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrDispatcherStopped returned when the dispatcher is not running.
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
)

// Config is configuration for Dispatcher. For default you should use
// DefaultConfig.
type Config struct {
	HeartbeatPeriod       time.Duration
	HeartbeatEpsilon      time.Duration
	GracePeriodMultiplier int
	// SyncRate and SyncBurst bound the SyncTapResources requests of each
	// agent session.
	SyncRate  rate.Limit
	SyncBurst int
	// Clock drives session expiry.
	Clock clock.Clock
}

// DefaultConfig returns default config for Dispatcher.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatPeriod:       DefaultHeartBeatPeriod,
		HeartbeatEpsilon:      defaultHeartBeatEpsilon,
		GracePeriodMultiplier: defaultGracePeriodMultiplier,
		SyncRate:              defaultSyncRate,
		SyncBurst:             defaultSyncBurst,
		Clock:                 clock.NewClock(),
	}
}

// StatusHandler applies agent reports to the session records.
type StatusHandler interface {
	SetTapServiceStatus(ctx context.Context, id string, status api.Status, host string) error
	SetTapFlowStatus(ctx context.Context, id string, status api.Status, host string) error
	SyncTapResources(ctx context.Context, host string) (int, error)
}

// Dispatcher is responsible for delivering casts to agents and receiving
// their status reports.
type Dispatcher struct {
	// mu protects the running state and ctx.
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	nodes   *nodeStore
	casts   *watch.Queue
	handler StatusHandler
	config  *Config
}

var _ api.DispatcherServer = &Dispatcher{}

// New returns a Dispatcher. Init must be called before Run.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Init sets the status handler and the configuration. The handler is set
// apart from New because the session drivers that cast through the
// dispatcher are built before the coordinator that handles reports.
func (d *Dispatcher) Init(handler StatusHandler, c *Config) {
	if c == nil {
		c = DefaultConfig()
	}
	if c.Clock == nil {
		c.Clock = clock.NewClock()
	}
	d.handler = handler
	d.config = c
	d.nodes = newNodeStore(c.Clock, c.HeartbeatPeriod, c.HeartbeatEpsilon, c.GracePeriodMultiplier)
}

// Run runs the dispatcher until Stop is called or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("dispatcher is already running")
	}
	if d.nodes == nil {
		d.mu.Unlock()
		return errors.New("dispatcher is not initialized")
	}
	ctx = log.WithModule(ctx, "dispatcher")
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.casts = watch.NewQueue()
	d.running = true
	runCtx := d.ctx
	d.mu.Unlock()

	log.G(ctx).Info("dispatcher started")
	<-runCtx.Done()
	return d.stop()
}

// Stop stops the dispatcher and closes every agent session.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return errors.New("dispatcher is already stopped")
	}
	d.cancel()
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false
	d.nodes.Clean()
	activeSessions.Set(0)
	return d.casts.Close()
}

// isRunning returns the running context or an error when the
// dispatcher is stopped.
func (d *Dispatcher) isRunning() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil, status.Errorf(codes.Unavailable, ErrDispatcherStopped.Error())
	}
	return d.ctx, nil
}

// Cast publishes msg to the sessions of its host, or of every host when
// msg.Host is empty. Delivery is not confirmed: agents report the outcome
// through UpdateStatus.
func (d *Dispatcher) Cast(ctx context.Context, msg *api.CastMessage) error {
	if _, err := d.isRunning(); err != nil {
		return ErrDispatcherStopped
	}
	castsTotal.WithValues(msg.Method).Inc(1)
	d.casts.Publish(msg)
	return nil
}

// NodeCount returns the number of agents with a session on this dispatcher.
func (d *Dispatcher) NodeCount() int {
	if d.nodes == nil {
		return 0
	}
	return d.nodes.Len()
}

// Register opens a session for the agent of r.Host. A previous session of
// the same host is replaced.
func (d *Dispatcher) Register(ctx context.Context, r *api.RegisterRequest) (*api.RegisterResponse, error) {
	dctx, err := d.isRunning()
	if err != nil {
		return nil, err
	}
	if r.Host == "" {
		return nil, status.Errorf(codes.InvalidArgument, "host is required")
	}

	sessionID := identity.NewID()
	logger := log.G(dctx).WithFields(logrus.Fields{
		"host":       r.Host,
		"session.id": sessionID,
	})
	expireFunc := func() {
		if rn := d.nodes.Delete(r.Host, sessionID); rn != nil {
			logger.Warn("agent heartbeat expired")
			activeSessions.Set(float64(d.nodes.Len()))
		}
	}
	d.nodes.Add(&registeredNode{
		Host:        r.Host,
		SessionID:   sessionID,
		DriverType:  r.DriverType,
		syncLimiter: rate.NewLimiter(d.config.SyncRate, d.config.SyncBurst),
	}, expireFunc)
	activeSessions.Set(float64(d.nodes.Len()))

	logger.WithField("driver", r.DriverType).Info("agent registered")
	return &api.RegisterResponse{SessionID: sessionID}, nil
}

// Heartbeat renews an agent session. The agent must beat again within the
// returned period or its session expires.
func (d *Dispatcher) Heartbeat(ctx context.Context, r *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	if _, err := d.isRunning(); err != nil {
		return nil, err
	}
	period, err := d.nodes.Heartbeat(r.Host, r.SessionID)
	if err != nil {
		return nil, err
	}
	return &api.HeartbeatResponse{Period: period}, nil
}

// Session streams the casts addressed to the agent of r.Host. The first
// message is a session-ready marker; casts published after it are
// delivered in order.
func (d *Dispatcher) Session(r *api.SessionRequest, stream api.Dispatcher_SessionServer) error {
	dctx, err := d.isRunning()
	if err != nil {
		return err
	}
	rn, err := d.nodes.GetWithSession(r.Host, r.SessionID)
	if err != nil {
		return err
	}
	logger := log.G(dctx).WithFields(logrus.Fields{
		"host":       r.Host,
		"session.id": r.SessionID,
	})

	host := r.Host
	casts, cancel := d.casts.CallbackWatch(events.MatcherFunc(func(ev events.Event) bool {
		msg, ok := ev.(*api.CastMessage)
		return ok && (msg.Host == "" || msg.Host == host)
	}))
	defer cancel()

	if err := stream.Send(&api.CastMessage{Method: api.MethodSessionReady, Host: host}); err != nil {
		return err
	}
	logger.Debug("session started")

	for {
		select {
		case ev := <-casts:
			msg := ev.(*api.CastMessage)
			if err := stream.Send(msg); err != nil {
				logger.WithError(err).Error("failed to send cast")
				return err
			}
			logger.WithFields(logrus.Fields{
				"method":  msg.Method,
				"taas_id": msg.TaasID,
			}).Debug("cast sent")
		case <-rn.Disconnect:
			// Replaced by a newer registration, expired, or stopped.
			return status.Errorf(codes.Aborted, ErrSessionInvalid.Error())
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-dctx.Done():
			return status.Errorf(codes.Unavailable, ErrDispatcherStopped.Error())
		}
	}
}

// UpdateStatus applies an agent report about a tap service or tap flow.
func (d *Dispatcher) UpdateStatus(ctx context.Context, r *api.UpdateStatusRequest) (*api.UpdateStatusResponse, error) {
	dctx, err := d.isRunning()
	if err != nil {
		return nil, err
	}
	if _, err := d.nodes.GetWithSession(r.Host, r.SessionID); err != nil {
		return nil, err
	}
	ctx = log.WithLogger(ctx, log.G(dctx))

	switch r.Kind {
	case api.KindTapService:
		err = d.handler.SetTapServiceStatus(ctx, r.ID, r.Status, r.Host)
	case api.KindTapFlow:
		err = d.handler.SetTapFlowStatus(ctx, r.ID, r.Status, r.Host)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown kind %q", r.Kind)
	}
	if err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.UpdateStatusResponse{}, nil
}

// SyncTapResources casts every session of the agent's host again.
func (d *Dispatcher) SyncTapResources(ctx context.Context, r *api.SyncRequest) (*api.SyncResponse, error) {
	dctx, err := d.isRunning()
	if err != nil {
		return nil, err
	}
	rn, err := d.nodes.GetWithSession(r.Host, r.SessionID)
	if err != nil {
		return nil, err
	}
	if !rn.syncLimiter.Allow() {
		return nil, status.Errorf(codes.ResourceExhausted, "too many sync requests from %s", r.Host)
	}
	n, err := d.handler.SyncTapResources(log.WithLogger(ctx, log.G(dctx)), r.Host)
	if err != nil {
		return nil, errdefs.ToGRPC(err)
	}
	return &api.SyncResponse{Casts: n}, nil
}
