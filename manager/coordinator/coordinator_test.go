package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/allocator/sessionid"
	"github.com/moby/tapkit/manager/drivers"
	"github.com/moby/tapkit/manager/mirrorqueue"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver records the callbacks it receives and fails the ones listed in
// fail.
type fakeDriver struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	// after runs once a callback has been recorded, outside of mu.
	after func(op, id string)
}

func (d *fakeDriver) call(op, id string) error {
	d.mu.Lock()
	d.calls = append(d.calls, op+":"+id)
	err := d.fail[op]
	after := d.after
	d.mu.Unlock()
	if after != nil {
		after(op, id)
	}
	return err
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) CreateTapServicePrecommit(_ context.Context, _ store.Tx, c *drivers.TapServiceContext) error {
	return d.call("create_tap_service_precommit", c.TapService.ID)
}

func (d *fakeDriver) CreateTapServicePostcommit(_ context.Context, c *drivers.TapServiceContext) error {
	return d.call("create_tap_service_postcommit", c.TapService.ID)
}

func (d *fakeDriver) DeleteTapServicePrecommit(_ context.Context, _ store.Tx, c *drivers.TapServiceContext) error {
	return d.call("delete_tap_service_precommit", c.TapService.ID)
}

func (d *fakeDriver) DeleteTapServicePostcommit(_ context.Context, c *drivers.TapServiceContext) error {
	return d.call("delete_tap_service_postcommit", c.TapService.ID)
}

func (d *fakeDriver) CreateTapFlowPrecommit(_ context.Context, _ store.Tx, c *drivers.TapFlowContext) error {
	return d.call("create_tap_flow_precommit", c.TapFlow.ID)
}

func (d *fakeDriver) CreateTapFlowPostcommit(_ context.Context, c *drivers.TapFlowContext) error {
	return d.call("create_tap_flow_postcommit", c.TapFlow.ID)
}

func (d *fakeDriver) DeleteTapFlowPrecommit(_ context.Context, _ store.Tx, c *drivers.TapFlowContext) error {
	return d.call("delete_tap_flow_precommit", c.TapFlow.ID)
}

func (d *fakeDriver) DeleteTapFlowPostcommit(_ context.Context, c *drivers.TapFlowContext) error {
	return d.call("delete_tap_flow_postcommit", c.TapFlow.ID)
}

func (d *fakeDriver) CreateTapMirrorPrecommit(_ context.Context, _ store.Tx, c *drivers.TapMirrorContext) error {
	return d.call("create_tap_mirror_precommit", c.TapMirror.ID)
}

func (d *fakeDriver) CreateTapMirrorPostcommit(_ context.Context, c *drivers.TapMirrorContext) error {
	return d.call("create_tap_mirror_postcommit", c.TapMirror.ID)
}

func (d *fakeDriver) DeleteTapMirrorPrecommit(_ context.Context, _ store.Tx, c *drivers.TapMirrorContext) error {
	return d.call("delete_tap_mirror_precommit", c.TapMirror.ID)
}

func (d *fakeDriver) DeleteTapMirrorPostcommit(_ context.Context, c *drivers.TapMirrorContext) error {
	return d.call("delete_tap_mirror_postcommit", c.TapMirror.ID)
}

type recordingCaster struct {
	mu   sync.Mutex
	msgs []*api.CastMessage
}

func (c *recordingCaster) Cast(_ context.Context, msg *api.CastMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingCaster) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		out = append(out, m.Method+":"+m.ObjectID())
	}
	return out
}

type recordingExecutor struct {
	mu   sync.Mutex
	cmds []mirrorqueue.Command
}

func (e *recordingExecutor) MirrorAdd(_ context.Context, cmd mirrorqueue.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd)
	return nil
}

func (e *recordingExecutor) MirrorDel(ctx context.Context, cmd mirrorqueue.Command) error {
	return e.MirrorAdd(ctx, cmd)
}

var testPorts = []*api.Port{
	{ID: "dst", Tenant: "t1", Host: "host-a", MACAddress: "fa:16:3e:00:00:01", NetworkType: api.NetworkTypeVXLAN},
	{ID: "src", Tenant: "t1", Host: "host-b", MACAddress: "fa:16:3e:00:00:02", NetworkType: api.NetworkTypeVXLAN},
	{ID: "other", Tenant: "t2", Host: "host-b", MACAddress: "fa:16:3e:00:00:03"},
}

func newStore(t *testing.T) (*store.MemoryStore, *sessionid.Allocator) {
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Update(func(tx store.Tx) error {
		for _, p := range testPorts {
			if err := store.CreatePort(tx, p); err != nil {
				return err
			}
		}
		return nil
	}))
	a, err := sessionid.New(s, 1, 3)
	require.NoError(t, err)
	return s, a
}

func newFakeCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore, *fakeDriver) {
	s, a := newStore(t)
	d := &fakeDriver{fail: map[string]error{}}
	return New(s, a, d), s, d
}

func newPipelineCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore, *sessionid.Allocator, *recordingCaster) {
	s, a := newStore(t)
	caster := &recordingCaster{}
	return New(s, a, drivers.NewPipeline(a, caster)), s, a, caster
}

func getService(s *store.MemoryStore, id string) (svc *api.TapService) {
	s.View(func(tx store.ReadTx) {
		svc = store.GetTapService(tx, id)
	})
	return svc
}

func getFlow(s *store.MemoryStore, id string) (flow *api.TapFlow) {
	s.View(func(tx store.ReadTx) {
		flow = store.GetTapFlow(tx, id)
	})
	return flow
}

func getMirror(s *store.MemoryStore, id string) (m *api.TapMirror) {
	s.View(func(tx store.ReadTx) {
		m = store.GetTapMirror(tx, id)
	})
	return m
}

func TestCreateTapServiceOwnership(t *testing.T) {
	c, s, d := newFakeCoordinator(t)

	_, err := c.CreateTapService(context.Background(), &api.TapService{ID: "svc", Tenant: "t1", PortID: "other"})
	assert.True(t, errdefs.IsOwnership(err))
	assert.Nil(t, getService(s, "svc"))
	assert.Empty(t, d.calls)

	_, err = c.CreateTapService(context.Background(), &api.TapService{ID: "svc", Tenant: "t1", PortID: "missing"})
	assert.True(t, errdefs.IsNotFound(err))
}

func TestCreateTapServiceStartsDown(t *testing.T) {
	c, s, d := newFakeCoordinator(t)

	svc, err := c.CreateTapService(context.Background(), &api.TapService{Tenant: "t1", PortID: "dst", Status: api.StatusActive})
	require.NoError(t, err)
	assert.NotEmpty(t, svc.ID)
	assert.Equal(t, api.StatusDown, svc.Status)
	assert.Equal(t, api.StatusDown, getService(s, svc.ID).Status)
	assert.Equal(t, []string{
		"create_tap_service_precommit:" + svc.ID,
		"create_tap_service_postcommit:" + svc.ID,
	}, d.calls)

	_, err = c.CreateTapService(context.Background(), &api.TapService{ID: svc.ID, Tenant: "t1", PortID: "dst"})
	assert.True(t, errdefs.IsConflict(err))
}

func TestCreateTapServicePrecommitFailureAborts(t *testing.T) {
	c, s, d := newFakeCoordinator(t)
	d.fail["create_tap_service_precommit"] = errdefs.ErrResourceExhausted("session identifier", "tap service limit reached")

	_, err := c.CreateTapService(context.Background(), &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	assert.True(t, errdefs.IsResourceExhausted(err))
	assert.Nil(t, getService(s, "svc"))
}

func TestCreateTapServicePostcommitFailureReleasesIdentifier(t *testing.T) {
	s, a := newStore(t)
	failing := &failingCaster{err: errors.New("no agents")}
	c := New(s, a, drivers.NewPipeline(a, failing))

	_, err := c.CreateTapService(context.Background(), &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.Error(t, err)
	assert.True(t, errdefs.IsDriverFailure(err))
	assert.Nil(t, getService(s, "svc"))

	s.View(func(tx store.ReadTx) {
		_, ok := a.Lookup(tx, "svc")
		assert.False(t, ok)
	})
}

type failingCaster struct {
	err error
}

func (c *failingCaster) Cast(context.Context, *api.CastMessage) error {
	return c.err
}

func TestCreateTapFlowPostcommitFailureRollsBack(t *testing.T) {
	c, s, d := newFakeCoordinator(t)
	_, err := c.CreateTapService(context.Background(), &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)

	driverErr := errors.New("agent unreachable")
	d.fail["create_tap_flow_postcommit"] = driverErr

	_, err = c.CreateTapFlow(context.Background(), &api.TapFlow{ID: "flow", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionBoth})
	assert.Equal(t, driverErr, err)
	assert.Nil(t, getFlow(s, "flow"))
}

func TestCreateTapFlowChecks(t *testing.T) {
	c, _, _ := newFakeCoordinator(t)
	ctx := context.Background()
	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)

	_, err = c.CreateTapFlow(ctx, &api.TapFlow{Tenant: "t1", TapServiceID: "missing", SourcePort: "src", Direction: api.DirectionIn})
	assert.True(t, errdefs.IsNotFound(err))

	_, err = c.CreateTapFlow(ctx, &api.TapFlow{Tenant: "t2", TapServiceID: "svc", SourcePort: "other", Direction: api.DirectionIn})
	assert.True(t, errdefs.IsOwnership(err))

	_, err = c.CreateTapFlow(ctx, &api.TapFlow{Tenant: "t1", TapServiceID: "svc", SourcePort: "other", Direction: api.DirectionIn})
	assert.True(t, errdefs.IsOwnership(err))

	_, err = c.CreateTapFlow(ctx, &api.TapFlow{Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionIn, VLANFilter: "9,27-18"})
	assert.True(t, errdefs.IsInvalidArgument(err))

	_, err = c.CreateTapFlow(ctx, &api.TapFlow{Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: "SIDEWAYS"})
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestDeleteTapServiceCascadesFlowsFirst(t *testing.T) {
	c, s, d := newFakeCoordinator(t)
	ctx := context.Background()
	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	for _, id := range []string{"f1", "f2"} {
		_, err := c.CreateTapFlow(ctx, &api.TapFlow{ID: id, Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionIn})
		require.NoError(t, err)
	}
	d.calls = nil

	require.NoError(t, c.DeleteTapService(ctx, "svc"))
	require.Len(t, d.calls, 3)
	assert.ElementsMatch(t, []string{"delete_tap_flow_postcommit:f1", "delete_tap_flow_postcommit:f2"}, d.calls[:2])
	assert.Equal(t, "delete_tap_service_postcommit:svc", d.calls[2])

	assert.Nil(t, getService(s, "svc"))
	assert.Nil(t, getFlow(s, "f1"))
	assert.Nil(t, getFlow(s, "f2"))

	assert.True(t, errdefs.IsNotFound(c.DeleteTapService(ctx, "svc")))
}

func TestDeleteTapServiceRejectsFlowsCreatedDuringCascade(t *testing.T) {
	c, s, d := newFakeCoordinator(t)
	ctx := context.Background()
	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	_, err = c.CreateTapFlow(ctx, &api.TapFlow{ID: "f1", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionIn})
	require.NoError(t, err)

	var once sync.Once
	d.after = func(op, id string) {
		if op != "delete_tap_flow_postcommit" {
			return
		}
		once.Do(func() {
			_, err := c.CreateTapFlow(ctx, &api.TapFlow{ID: "late", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionOut})
			require.NoError(t, err)
		})
	}

	err = c.DeleteTapService(ctx, "svc")
	assert.True(t, errdefs.IsConflict(err), "unexpected error: %v", err)
	assert.NotNil(t, getService(s, "svc"))
	assert.Nil(t, getFlow(s, "f1"))
	assert.NotNil(t, getFlow(s, "late"))

	// a retry cleans up the late flow as well
	d.after = nil
	require.NoError(t, c.DeleteTapService(ctx, "svc"))
	assert.Nil(t, getService(s, "svc"))
	assert.Nil(t, getFlow(s, "late"))
}

func TestCreateTapFlowOnPendingDeleteService(t *testing.T) {
	c, s, _, _ := newPipelineCoordinator(t)
	ctx := context.Background()
	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	require.NoError(t, c.SetTapServiceStatus(ctx, "svc", api.StatusActive, "host-a"))
	require.NoError(t, c.DeleteTapService(ctx, "svc"))

	_, err = c.CreateTapFlow(ctx, &api.TapFlow{ID: "f1", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionIn})
	assert.True(t, errdefs.IsInvalidArgument(err), "unexpected error: %v", err)
	assert.Nil(t, getFlow(s, "f1"))
}

func TestDeleteActiveTapServiceWaitsForAgents(t *testing.T) {
	c, s, a, caster := newPipelineCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	require.NoError(t, c.SetTapServiceStatus(ctx, "svc", api.StatusActive, "host-a"))
	assert.Equal(t, api.StatusActive, getService(s, "svc").Status)

	require.NoError(t, c.DeleteTapService(ctx, "svc"))
	assert.Equal(t, api.StatusPendingDelete, getService(s, "svc").Status)
	assert.Equal(t, []string{
		api.MethodCreateTapService + ":svc",
		api.MethodDeleteTapService + ":svc",
	}, caster.methods())

	// A late create report does not resurrect the service.
	require.NoError(t, c.SetTapServiceStatus(ctx, "svc", api.StatusActive, "host-a"))
	assert.Equal(t, api.StatusPendingDelete, getService(s, "svc").Status)

	require.NoError(t, c.SetTapServiceStatus(ctx, "svc", api.StatusPendingDelete, "host-b"))
	assert.Equal(t, api.StatusPendingDelete, getService(s, "svc").Status)

	require.NoError(t, c.SetTapServiceStatus(ctx, "svc", api.StatusInactive, "host-a"))
	assert.Nil(t, getService(s, "svc"))
	s.View(func(tx store.ReadTx) {
		_, ok := a.Lookup(tx, "svc")
		assert.False(t, ok)
	})

	// Other hosts of the fanout report after the record is gone.
	require.NoError(t, c.SetTapServiceStatus(ctx, "svc", api.StatusInactive, "host-b"))
}

func TestDeletePrecommitFailureKeepsRecordChange(t *testing.T) {
	c, s, d := newFakeCoordinator(t)
	ctx := context.Background()
	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	require.NoError(t, c.SetTapServiceStatus(ctx, "svc", api.StatusActive, "host-a"))

	driverErr := errors.New("dispatcher stopped")
	d.fail["delete_tap_service_precommit"] = driverErr
	assert.Equal(t, driverErr, c.DeleteTapService(ctx, "svc"))
	assert.Equal(t, api.StatusPendingDelete, getService(s, "svc").Status)
}

func TestTapFlowStatus(t *testing.T) {
	c, s, _, caster := newPipelineCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	_, err = c.CreateTapFlow(ctx, &api.TapFlow{ID: "flow", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionOut})
	require.NoError(t, err)

	require.NoError(t, c.SetTapFlowStatus(ctx, "flow", api.StatusError, "host-b"))
	assert.Equal(t, api.StatusError, getFlow(s, "flow").Status)
	require.NoError(t, c.SetTapFlowStatus(ctx, "flow", api.StatusActive, "host-b"))

	require.NoError(t, c.DeleteTapFlow(ctx, "flow"))
	assert.Equal(t, api.StatusPendingDelete, getFlow(s, "flow").Status)
	assert.Contains(t, caster.methods(), api.MethodDeleteTapFlow+":flow")

	require.NoError(t, c.SetTapFlowStatus(ctx, "flow", api.StatusInactive, "host-b"))
	assert.Nil(t, getFlow(s, "flow"))

	assert.True(t, errdefs.IsInvalidArgument(c.SetTapFlowStatus(ctx, "flow", "BROKEN", "host-b")))
	assert.NoError(t, c.SetTapFlowStatus(ctx, "unknown", api.StatusActive, "host-b"))
}

func newTunnelCoordinator(t *testing.T) (*Coordinator, *store.MemoryStore, *mirrorqueue.Queue, *recordingExecutor) {
	s, _ := newStore(t)
	exec := &recordingExecutor{}
	q := mirrorqueue.New(context.Background(), exec)
	t.Cleanup(func() { q.Close() })
	return New(s, nil, drivers.NewTunnel(q)), s, q, exec
}

func mirror(id string, dirs map[api.Direction]uint32) *api.TapMirror {
	return &api.TapMirror{
		ID:         id,
		Project:    "t1",
		PortID:     "src",
		Directions: dirs,
		RemoteIP:   "100.109.0.48",
		MirrorType: api.MirrorTypeGRE,
	}
}

func TestTunnelKeyExclusivity(t *testing.T) {
	c, s, q, exec := newTunnelCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateTapMirror(ctx, mirror("a", map[api.Direction]uint32{api.DirectionIn: 101}))
	require.NoError(t, err)

	_, err = c.CreateTapMirror(ctx, mirror("b", map[api.Direction]uint32{api.DirectionIn: 101}))
	assert.True(t, errdefs.IsConflict(err))
	assert.Nil(t, getMirror(s, "b"))

	_, err = c.CreateTapMirror(ctx, mirror("b", map[api.Direction]uint32{api.DirectionOut: 102}))
	require.NoError(t, err)

	_, err = c.CreateTapMirror(ctx, mirror("c", map[api.Direction]uint32{api.DirectionOut: 101}))
	assert.True(t, errdefs.IsConflict(err))

	_, err = c.CreateTapMirror(ctx, mirror("c", map[api.Direction]uint32{api.DirectionIn: 103, api.DirectionOut: 102}))
	assert.True(t, errdefs.IsConflict(err))

	require.NoError(t, q.Close())
	require.Len(t, exec.cmds, 2)
	assert.Equal(t, uint32(101), exec.cmds[0].Index)
	assert.Equal(t, uint32(102), exec.cmds[1].Index)
}

func TestTapMirrorOwnership(t *testing.T) {
	c, _, _, _ := newTunnelCoordinator(t)
	m := mirror("a", map[api.Direction]uint32{api.DirectionIn: 101})
	m.PortID = "other"
	_, err := c.CreateTapMirror(context.Background(), m)
	assert.True(t, errdefs.IsOwnership(err))
}

func TestCreateTapMirrorPostcommitFailure(t *testing.T) {
	c, s, q, _ := newTunnelCoordinator(t)
	require.NoError(t, q.Close())

	_, err := c.CreateTapMirror(context.Background(), mirror("a", map[api.Direction]uint32{api.DirectionIn: 101}))
	assert.True(t, errdefs.IsDriverFailure(err))
	assert.Nil(t, getMirror(s, "a"))
}

func TestDeleteTapMirror(t *testing.T) {
	c, s, q, exec := newTunnelCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateTapMirror(ctx, mirror("a", map[api.Direction]uint32{api.DirectionIn: 101, api.DirectionOut: 102}))
	require.NoError(t, err)
	require.NoError(t, c.DeleteTapMirror(ctx, "a"))
	assert.Nil(t, getMirror(s, "a"))
	assert.True(t, errdefs.IsNotFound(c.DeleteTapMirror(ctx, "a")))

	// The keys are free again.
	_, err = c.CreateTapMirror(ctx, mirror("b", map[api.Direction]uint32{api.DirectionIn: 102}))
	require.NoError(t, err)

	require.NoError(t, q.Close())
	var kinds []mirrorqueue.Kind
	for _, cmd := range exec.cmds {
		kinds = append(kinds, cmd.Kind)
	}
	assert.Equal(t, []mirrorqueue.Kind{
		mirrorqueue.KindAdd, mirrorqueue.KindAdd,
		mirrorqueue.KindDelete, mirrorqueue.KindDelete,
		mirrorqueue.KindAdd,
	}, kinds)
}

func TestHandlePortDelete(t *testing.T) {
	c, s, _ := newFakeCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc-src", Tenant: "t1", PortID: "src"})
	require.NoError(t, err)
	_, err = c.CreateTapService(ctx, &api.TapService{ID: "svc-dst", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	_, err = c.CreateTapFlow(ctx, &api.TapFlow{ID: "flow", Tenant: "t1", TapServiceID: "svc-dst", SourcePort: "src", Direction: api.DirectionIn})
	require.NoError(t, err)
	_, err = c.CreateTapMirror(ctx, mirror("m", map[api.Direction]uint32{api.DirectionIn: 101}))
	require.NoError(t, err)

	require.NoError(t, c.RemovePort(ctx, "src"))
	assert.Nil(t, getService(s, "svc-src"))
	assert.Nil(t, getFlow(s, "flow"))
	assert.Nil(t, getMirror(s, "m"))
	assert.NotNil(t, getService(s, "svc-dst"))

	s.View(func(tx store.ReadTx) {
		assert.Nil(t, store.GetPort(tx, "src"))
	})
	assert.True(t, errdefs.IsNotFound(c.RemovePort(ctx, "src")))
}

func TestRegisterPort(t *testing.T) {
	c, s, _ := newFakeCoordinator(t)
	ctx := context.Background()

	_, err := c.RegisterPort(ctx, &api.Port{ID: "dst", Tenant: "t1", Host: "host-c", MACAddress: "fa:16:3e:00:00:01"})
	require.NoError(t, err)
	s.View(func(tx store.ReadTx) {
		assert.Equal(t, "host-c", store.GetPort(tx, "dst").Host)
	})

	_, err = c.RegisterPort(ctx, &api.Port{ID: "bad"})
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestSyncTapResources(t *testing.T) {
	c, _, _, caster := newPipelineCoordinator(t)
	ctx := context.Background()

	_, err := c.CreateTapService(ctx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"})
	require.NoError(t, err)
	_, err = c.CreateTapFlow(ctx, &api.TapFlow{ID: "flow", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionIn})
	require.NoError(t, err)
	caster.msgs = nil

	n, err := c.SyncTapResources(ctx, "host-b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{api.MethodCreateTapFlow + ":flow"}, caster.methods())

	tunnel, _, _, _ := newTunnelCoordinator(t)
	n, err = tunnel.SyncTapResources(ctx, "host-b")
	require.NoError(t, err)
	assert.Zero(t, n)
}
