package agent

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

const (
	initialSessionFailureBackoff = 100 * time.Millisecond
	maxSessionFailureBackoff     = 8 * time.Second
)

// Agent programs the mirror sessions placed on a host. It keeps a session
// with the manager, executes the casts it receives and reports their status.
type Agent struct {
	config *Config
	conn   *grpc.ClientConn
	driver *driver

	// current session, guarded by mu.
	mu      sync.Mutex
	session *session

	started   chan struct{}
	startOnce sync.Once
	ready     chan struct{}
	readyOnce sync.Once
}

// New returns a new agent, ready to be run.
func New(config *Config) (*Agent, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Agent{
		config:  config,
		driver:  newDriver(config.Host, config.Switch, config.DB, config.EnableBCMC),
		started: make(chan struct{}),
		ready:   make(chan struct{}),
	}, nil
}

// Ready returns a channel that is closed once the first session has been
// established and synchronized.
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

// Run blocks until ctx is cancelled, executing casts from the manager. The
// agent can only be run once.
func (a *Agent) Run(ctx context.Context) error {
	var first bool
	a.startOnce.Do(func() {
		close(a.started)
		first = true
	})
	if !first {
		return errAgentStarted
	}
	return a.run(ctx)
}

func (a *Agent) run(ctx context.Context) error {
	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(logrus.Fields{
		"module":     "agent",
		"agent.host": a.config.Host,
	}))
	log.G(ctx).Debug("(*Agent).run")

	if err := InitDB(a.config.DB); err != nil {
		return errors.Wrap(err, "failed to initialize agent database")
	}
	if err := a.driver.init(ctx); err != nil {
		return errors.Wrap(err, "failed to set up tap bridge")
	}

	conn, err := grpc.DialContext(ctx, a.config.Addr, a.config.DialOptions...)
	if err != nil {
		return errors.Wrap(err, "failed to dial manager")
	}
	a.conn = conn
	defer a.conn.Close()

	reporter := newStatusReporter(ctx, statusReporterFunc(a.sendStatus), a.config.Clock)
	defer reporter.Close()
	w := newWorker(a.config.Host, a.driver, reporter)

	flood := a.config.Clock.NewTicker(a.config.PeriodicInterval)
	defer flood.Stop()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = initialSessionFailureBackoff
	expBackoff.MaxInterval = maxSessionFailureBackoff
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	session := a.newSession(ctx)
	defer func() {
		session.close()
	}()

	var (
		sessionReady = session.ready
		sessionErrs  = session.errs
		retry        <-chan time.Time
	)
	for {
		select {
		case msg := <-session.messages:
			w.handle(ctx, msg)
		case <-sessionReady:
			sessionReady = nil
			expBackoff.Reset()
			a.readyOnce.Do(func() { close(a.ready) })
		case <-flood.C():
			if err := a.driver.refreshFlood(ctx); err != nil {
				log.G(ctx).WithError(err).Warn("failed to refresh flood flow")
			}
		case err := <-sessionErrs:
			// only the first error of a session counts
			sessionErrs, sessionReady = nil, nil
			session.close()
			delay := expBackoff.NextBackOff()
			log.G(ctx).WithError(err).WithField("backoff", delay).Error("agent: session failed")
			retry = a.config.Clock.After(delay)
		case <-retry:
			retry = nil
			session = a.newSession(ctx)
			sessionReady, sessionErrs = session.ready, session.errs
		case <-ctx.Done():
			return nil
		}
	}
}

func (a *Agent) newSession(ctx context.Context) *session {
	s := newSession(ctx, a)
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return s
}

// sendStatus reports through the current session.
func (a *Agent) sendStatus(ctx context.Context, key statusKey, status api.Status) error {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s == nil {
		return errSessionClosed
	}
	return s.sendStatus(ctx, key.Kind, key.ID, status)
}
