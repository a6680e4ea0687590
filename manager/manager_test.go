package manager

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/akutz/memconn"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func dial(t *testing.T, name string) *grpc.ClientConn {
	conn, err := grpc.Dial(name,
		grpc.WithInsecure(),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return memconn.Dial("memu", name)
		}))
	require.NoError(t, err)
	return conn
}

func newTestManager(t *testing.T, name, stateDir string) (*Manager, chan error) {
	l, err := memconn.Listen("memu", name)
	require.NoError(t, err)

	c := config.DefaultManager()
	c.StateDir = stateDir
	c.VLANRangeStart, c.VLANRangeEnd = 10, 12

	m, err := New(context.Background(), &Config{Manager: c, Listener: l})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- m.Run(context.Background())
	}()
	return m, done
}

func TestManager(t *testing.T) {
	stateDir := t.TempDir()
	m, done := newTestManager(t, "manager-test-1", stateDir)

	conn := dial(t, "manager-test-1")
	control := api.NewControlClient(conn)
	dispatch := api.NewDispatcherClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := control.RegisterPort(ctx, &api.RegisterPortRequest{Port: &api.Port{
		ID: "dst", Tenant: "t1", Host: "host-a", MACAddress: "fa:16:3e:00:00:01",
	}})
	require.NoError(t, err)

	reg, err := dispatch.Register(ctx, &api.RegisterRequest{Host: "host-a", DriverType: "ovs"})
	require.NoError(t, err)
	stream, err := dispatch.Session(ctx, &api.SessionRequest{Host: "host-a", SessionID: reg.SessionID})
	require.NoError(t, err)
	msg, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, api.MethodSessionReady, msg.Method)

	svc, err := control.CreateTapService(ctx, &api.CreateTapServiceRequest{
		TapService: &api.TapService{Tenant: "t1", PortID: "dst"},
	})
	require.NoError(t, err)

	msg, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, api.MethodCreateTapService, msg.Method)

	_, err = dispatch.UpdateStatus(ctx, &api.UpdateStatusRequest{
		Host: "host-a", SessionID: reg.SessionID,
		Kind: api.KindTapService, ID: svc.TapService.ID, Status: api.StatusActive,
	})
	require.NoError(t, err)

	get, err := control.GetTapService(ctx, &api.GetTapServiceRequest{TapServiceID: svc.TapService.ID})
	require.NoError(t, err)
	assert.Equal(t, api.StatusActive, get.TapService.Status)
	assert.Equal(t, uint32(10), get.TaasID)

	conn.Close()
	m.Stop()
	require.NoError(t, <-done)

	// The state survives a restart.
	m, done = newTestManager(t, "manager-test-2", stateDir)
	conn = dial(t, "manager-test-2")
	defer conn.Close()
	get, err = api.NewControlClient(conn).GetTapService(ctx, &api.GetTapServiceRequest{TapServiceID: svc.TapService.ID})
	require.NoError(t, err)
	assert.Equal(t, api.StatusActive, get.TapService.Status)
	assert.Equal(t, uint32(10), get.TaasID)

	m.Stop()
	require.NoError(t, <-done)
}

func TestApplyConfig(t *testing.T) {
	m, done := newTestManager(t, "manager-test-3", t.TempDir())
	defer func() {
		m.Stop()
		<-done
	}()

	c := config.DefaultManager()
	c.VLANRangeStart, c.VLANRangeEnd = 20, 40
	m.applyConfig(c)
	start, end := m.allocator.Range()
	assert.Equal(t, uint32(20), start)
	assert.Equal(t, uint32(40), end)

	// Invalid ranges leave the allocator alone.
	c.VLANRangeStart, c.VLANRangeEnd = 40, 20
	m.applyConfig(c)
	start, end = m.allocator.Range()
	assert.Equal(t, uint32(20), start)
	assert.Equal(t, uint32(40), end)
}

func TestMetrics(t *testing.T) {
	m, done := newTestManager(t, "manager-test-4", t.TempDir())
	defer func() {
		m.Stop()
		<-done
	}()

	conn := dial(t, "manager-test-4")
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := api.NewControlClient(conn).ListPorts(ctx, &api.ListPortsRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		families, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return false
		}
		seen := map[string]bool{}
		for _, f := range families {
			seen[f.GetName()] = true
		}
		return seen["tapkit_manager_ports_total"] &&
			seen["tapkit_dispatcher_sessions_total"] &&
			seen["grpc_server_handling_seconds"]
	}, 5*time.Second, 10*time.Millisecond)
}
