package agent

import (
	"context"
	"errors"
	"time"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/log"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// session encapsulates one round of registration with the manager. session
// starts the registration and heartbeat control cycle. Any failure will result
// in a complete shutdown of the session and it must be reestablished.
//
// All communication with the manager is done through session. Casts that
// flow into the agent are handed back through messages; ready is closed once
// the manager has been asked to replay the sessions of this host.
type session struct {
	agent     *Agent
	sessionID string
	errs      chan error
	messages  chan *api.CastMessage

	registered chan struct{} // closed registration
	ready      chan struct{}
	closed     chan struct{}
	cancel     context.CancelFunc
}

func newSession(ctx context.Context, agent *Agent) *session {
	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		agent:      agent,
		errs:       make(chan error, 1),
		messages:   make(chan *api.CastMessage),
		registered: make(chan struct{}),
		ready:      make(chan struct{}),
		closed:     make(chan struct{}),
		cancel:     cancel,
	}

	go s.run(ctx)
	return s
}

func (s *session) run(ctx context.Context) {
	sessionID, err := s.register(ctx)
	if err != nil {
		select {
		case s.errs <- err:
		case <-s.closed:
		case <-ctx.Done():
		}
		return
	}

	ctx = log.WithLogger(ctx, log.G(ctx).WithField("session.id", sessionID))
	s.sessionID = sessionID
	close(s.registered)

	go runctx(ctx, s.heartbeat, s.closed, s.errs)
	go runctx(ctx, s.listen, s.closed, s.errs)
}

func (s *session) client() api.DispatcherClient {
	return api.NewDispatcherClient(s.agent.conn)
}

func (s *session) register(ctx context.Context) (string, error) {
	log.G(ctx).Debugf("(*session).register")
	resp, err := s.client().Register(ctx, &api.RegisterRequest{
		Host:       s.agent.config.Host,
		DriverType: driverType,
	})
	if err != nil {
		return "", err
	}

	return resp.SessionID, nil
}

func (s *session) heartbeat(ctx context.Context) error {
	log.G(ctx).Debugf("(*session).heartbeat")
	heartbeat := s.agent.config.Clock.NewTimer(time.Nanosecond) // send out a heartbeat right away
	defer heartbeat.Stop()

	for {
		select {
		case <-heartbeat.C():
			start := s.agent.config.Clock.Now()
			resp, err := s.client().Heartbeat(ctx, &api.HeartbeatRequest{
				Host:      s.agent.config.Host,
				SessionID: s.sessionID,
			})
			if err != nil {
				if status.Code(err) == codes.NotFound {
					err = errNodeNotRegistered
				}

				return err
			}

			heartbeat.Reset(resp.Period)
			log.G(ctx).WithFields(
				logrus.Fields{
					"period":        resp.Period,
					"grpc.duration": s.agent.config.Clock.Since(start),
				}).Debugf("heartbeat")
		case <-s.closed:
			return errSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *session) listen(ctx context.Context) error {
	log.G(ctx).Debugf("(*session).listen")
	stream, err := s.client().Session(ctx, &api.SessionRequest{
		Host:      s.agent.config.Host,
		SessionID: s.sessionID,
	})
	if err != nil {
		return err
	}

	msg, err := stream.Recv()
	if err != nil {
		return err
	}
	if msg.Method != api.MethodSessionReady {
		return errors.New("agent: session did not start with a ready marker")
	}

	// Casts from the replay are delivered after the marker, through the
	// stream that is now open.
	resp, err := s.client().SyncTapResources(ctx, &api.SyncRequest{
		Host:      s.agent.config.Host,
		SessionID: s.sessionID,
	})
	if err != nil {
		return err
	}
	log.G(ctx).WithField("casts", resp.Casts).Info("requested sync of tap resources")
	close(s.ready)

	for {
		msg, err := stream.Recv()
		if err != nil {
			return err
		}

		select {
		case s.messages <- msg:
		case <-s.closed:
			return errSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sendStatus uses the current session to send the status of a single object.
func (s *session) sendStatus(ctx context.Context, kind, id string, st api.Status) error {
	select {
	case <-s.registered:
		select {
		case <-s.closed:
			return errSessionClosed
		default:
		}
	case <-s.closed:
		return errSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err := s.client().UpdateStatus(ctx, &api.UpdateStatusRequest{
		Host:      s.agent.config.Host,
		SessionID: s.sessionID,
		Kind:      kind,
		ID:        id,
		Status:    st,
	})
	return err
}

func (s *session) close() error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
		close(s.closed)
		s.cancel()
		return nil
	}
}

// runctx blocks until the function exits, closed is closed, or the context is
// cancelled. Call as part os go statement.
func runctx(ctx context.Context, fn func(ctx context.Context) error, closed chan struct{}, errs chan error) {
	select {
	case errs <- fn(ctx):
	case <-closed:
	case <-ctx.Done():
	}
}
