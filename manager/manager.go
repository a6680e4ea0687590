// Package manager assembles the tapd manager: the session store and its
// persistence, the session identifier allocator, the session driver, the
// lifecycle coordinator and the two gRPC services (control and dispatcher).
package manager

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	metrics "github.com/docker/go-metrics"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/config"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager/allocator/sessionid"
	"github.com/moby/tapkit/manager/controlapi"
	"github.com/moby/tapkit/manager/coordinator"
	"github.com/moby/tapkit/manager/dispatcher"
	"github.com/moby/tapkit/manager/drivers"
	managermetrics "github.com/moby/tapkit/manager/metrics"
	"github.com/moby/tapkit/manager/mirrorqueue"
	"github.com/moby/tapkit/manager/ovnnb"
	"github.com/moby/tapkit/manager/state/boltstore"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const stateFile = "state.db"

// Config is used to tune the Manager.
type Config struct {
	*config.Manager

	// ConfigPath is the YAML file the configuration was loaded from. When
	// set, the file is watched and a changed VLAN range is applied to the
	// allocator.
	ConfigPath string

	// Listener will be used for grpc serving if it's not nil, ListenAddr
	// will be used otherwise.
	Listener net.Listener

	// MetricsListener serves /metrics if set, MetricsListenAddr is used
	// otherwise. Metrics are not served when both are empty.
	MetricsListener net.Listener

	// Dispatcher overrides the dispatcher defaults.
	Dispatcher *dispatcher.Config
}

// Manager is the high-level object holding and initializing all the manager
// subsystems.
type Manager struct {
	config *Config

	store       *store.MemoryStore
	boltStore   *boltstore.Store
	allocator   *sessionid.Allocator
	dispatcher  *dispatcher.Dispatcher
	coordinator *coordinator.Coordinator
	collector   *managermetrics.Collector
	queue       *mirrorqueue.Queue
	ovn         *ovnnb.Client
	server      *grpc.Server

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Manager which has not started to accept requests yet. The
// persisted state is loaded and, for the tunnel driver, the OVN northbound
// database is connected.
func New(ctx context.Context, c *Config) (m *Manager, err error) {
	if err := c.Manager.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.StateDir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}

	m = &Manager{
		config: c,
		store:  store.NewMemoryStore(),
	}
	defer func() {
		if err != nil {
			m.close()
		}
	}()

	m.boltStore, err = boltstore.Open(filepath.Join(c.StateDir, stateFile), m.store)
	if err != nil {
		return nil, err
	}
	if err := m.boltStore.Restore(); err != nil {
		return nil, errors.Wrap(err, "failed to restore state")
	}

	m.allocator, err = sessionid.New(m.store, c.VLANRangeStart, c.VLANRangeEnd)
	if err != nil {
		return nil, err
	}

	if c.Driver == drivers.TunnelDriver {
		ovnTLS, err := c.OVN.TLS.ClientConfig()
		if err != nil {
			return nil, err
		}
		m.ovn, err = ovnnb.Dial(ctx, ovnnb.Config{Endpoint: c.OVN.Endpoint, TLS: ovnTLS})
		if err != nil {
			return nil, err
		}
		m.queue = mirrorqueue.New(ctx, m.ovn)
	}

	m.dispatcher = dispatcher.New()
	driver, err := drivers.New(m.allocator, m.dispatcher, m.queue).NewSessionDriver(c.Driver)
	if err != nil {
		return nil, err
	}
	m.coordinator = coordinator.New(m.store, m.allocator, driver)
	m.dispatcher.Init(m.coordinator, c.Dispatcher)
	m.collector = managermetrics.NewCollector(m.store)

	controlAPI, err := controlapi.New(
		controlapi.WithMemoryStore(m.store),
		controlapi.WithCoordinator(m.coordinator),
		controlapi.WithAllocator(m.allocator),
	)
	if err != nil {
		return nil, err
	}

	grpc_prometheus.EnableHandlingTimeHistogram(
		grpc_prometheus.WithHistogramBuckets(prometheus.ExponentialBuckets(0.0005, 4, 8)),
	)
	opts := []grpc.ServerOption{
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	}
	serverTLS, err := c.TLS.ServerConfig()
	if err != nil {
		return nil, err
	}
	if serverTLS != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(serverTLS)))
	}
	m.server = grpc.NewServer(opts...)
	api.RegisterControlServer(m.server, controlAPI)
	api.RegisterDispatcherServer(m.server, m.dispatcher)
	grpc_prometheus.Register(m.server)

	return m, nil
}

// Run starts all manager sub-systems and the gRPC server at the configured
// address. The call never returns unless an error occurs or Stop is called.
func (m *Manager) Run(parent context.Context) error {
	lis := m.config.Listener
	if lis == nil {
		l, err := net.Listen("tcp", m.config.ListenAddr)
		if err != nil {
			return errors.Wrap(err, "failed to listen")
		}
		lis = l
	}
	metricsLis := m.config.MetricsListener
	if metricsLis == nil && m.config.MetricsListenAddr != "" {
		l, err := net.Listen("tcp", m.config.MetricsListenAddr)
		if err != nil {
			lis.Close()
			return errors.Wrap(err, "failed to listen for metrics")
		}
		metricsLis = l
	}

	ctx, cancel := context.WithCancel(log.WithModule(parent, "manager"))
	defer cancel()
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return ignoreCanceled(m.collector.Run(ctx))
	})
	g.Go(func() error {
		return ignoreCanceled(m.boltStore.Run(ctx))
	})
	if m.config.ConfigPath != "" {
		g.Go(func() error {
			return config.WatchManager(ctx, m.config.ConfigPath, *m.config.Manager, m.applyConfig)
		})
	}
	if metricsLis != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.Serve(metricsLis); err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics server failed")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		log.G(ctx).WithFields(logrus.Fields{
			"proto": lis.Addr().Network(),
			"addr":  lis.Addr().String(),
		}).Info("listening")
		if err := m.server.Serve(lis); err != grpc.ErrServerStopped {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		m.server.GracefulStop()
		return nil
	})

	err := g.Wait()
	if syncErr := m.boltStore.Sync(); syncErr != nil {
		log.G(parent).WithError(syncErr).Error("failed to persist state")
	}
	m.close()
	return err
}

// Stop stops the manager and waits for Run to release its resources.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) applyConfig(c *config.Manager) {
	start, end := m.allocator.Range()
	if c.VLANRangeStart == start && c.VLANRangeEnd == end {
		return
	}
	logger := log.L.WithField("module", "manager")
	if err := m.allocator.SetRange(c.VLANRangeStart, c.VLANRangeEnd); err != nil {
		logger.WithError(err).Error("failed to apply vlan range")
		return
	}
	logger.Infof("vlan range changed to [%d, %d)", c.VLANRangeStart, c.VLANRangeEnd)
}

// close releases what New acquired. Queued mirror commands run before the
// OVN connection closes.
func (m *Manager) close() {
	if m.queue != nil {
		m.queue.Close()
	}
	if m.ovn != nil {
		m.ovn.Close()
	}
	if m.boltStore != nil {
		if err := m.boltStore.Close(); err != nil {
			log.L.WithError(err).Error("failed to close state database")
		}
	}
	m.store.Close()
}

func ignoreCanceled(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}
