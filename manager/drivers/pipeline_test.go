package drivers

import (
	"context"
	"sync"
	"testing"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/allocator/sessionid"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCaster struct {
	mu   sync.Mutex
	msgs []*api.CastMessage
	err  error
}

func (c *recordingCaster) Cast(_ context.Context, msg *api.CastMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func newPipeline(t *testing.T) (*Pipeline, *store.MemoryStore, *recordingCaster) {
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	a, err := sessionid.New(s, 10, 20)
	require.NoError(t, err)
	c := &recordingCaster{}

	require.NoError(t, s.Update(func(tx store.Tx) error {
		for _, p := range []*api.Port{
			{ID: "dst", Tenant: "t1", Host: "host-a", MACAddress: "fa:16:3e:00:00:01", NetworkType: api.NetworkTypeVXLAN},
			{ID: "src", Tenant: "t1", Host: "host-b", MACAddress: "fa:16:3e:00:00:02", NetworkType: api.NetworkTypeVLAN},
		} {
			if err := store.CreatePort(tx, p); err != nil {
				return err
			}
		}
		return nil
	}))
	return NewPipeline(a, c), s, c
}

func createService(t *testing.T, d *Pipeline, s *store.MemoryStore, svc *api.TapService) *TapServiceContext {
	c := &TapServiceContext{TapService: svc}
	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateTapService(tx, svc); err != nil {
			return err
		}
		return d.CreateTapServicePrecommit(context.Background(), tx, c)
	}))
	require.NoError(t, d.CreateTapServicePostcommit(context.Background(), c))
	return c
}

func TestPipelineCreateTapService(t *testing.T) {
	d, s, caster := newPipeline(t)
	c := createService(t, d, s, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst", Status: api.StatusDown})

	assert.Equal(t, uint32(10), c.TaasID)
	require.Len(t, caster.msgs, 1)
	msg := caster.msgs[0]
	assert.Equal(t, api.MethodCreateTapService, msg.Method)
	assert.Equal(t, "host-a", msg.Host)
	assert.Equal(t, uint32(10), msg.TaasID)
	assert.Equal(t, "svc", msg.ObjectID())
	assert.Equal(t, "dst", msg.Port.ID)
}

func TestPipelineDeleteTapServiceFansOut(t *testing.T) {
	d, s, caster := newPipeline(t)
	svc := &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst", Status: api.StatusActive}
	createService(t, d, s, svc)

	require.NoError(t, s.Update(func(tx store.Tx) error {
		return d.DeleteTapServicePrecommit(context.Background(), tx, &TapServiceContext{TapService: svc})
	}))
	require.Len(t, caster.msgs, 2)
	msg := caster.msgs[1]
	assert.Equal(t, api.MethodDeleteTapService, msg.Method)
	assert.Empty(t, msg.Host)
	assert.Equal(t, uint32(10), msg.TaasID)
}

func TestPipelineTapFlowCasts(t *testing.T) {
	d, s, caster := newPipeline(t)
	svc := &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst", Status: api.StatusActive}
	createService(t, d, s, svc)

	flow := &api.TapFlow{ID: "flow", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionBoth, VLANFilter: "9,18-19"}
	c := &TapFlowContext{TapFlow: flow}
	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateTapFlow(tx, flow); err != nil {
			return err
		}
		return d.CreateTapFlowPrecommit(context.Background(), tx, c)
	}))
	require.NoError(t, d.CreateTapFlowPostcommit(context.Background(), c))

	require.Len(t, caster.msgs, 2)
	msg := caster.msgs[1]
	assert.Equal(t, api.MethodCreateTapFlow, msg.Method)
	assert.Equal(t, "host-b", msg.Host)
	assert.Equal(t, uint32(10), msg.TaasID)
	assert.Equal(t, "fa:16:3e:00:00:02", msg.PortMAC)
	assert.Equal(t, "dst", msg.TapServicePort.ID)
	assert.Equal(t, []int{9, 18, 19}, msg.VLANFilter)
}

func TestPipelineFlowWithoutServiceIdentifier(t *testing.T) {
	d, s, _ := newPipeline(t)
	flow := &api.TapFlow{ID: "flow", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionIn}

	err := s.Update(func(tx store.Tx) error {
		if err := store.CreateTapService(tx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"}); err != nil {
			return err
		}
		return d.CreateTapFlowPrecommit(context.Background(), tx, &TapFlowContext{TapFlow: flow})
	})
	assert.True(t, errdefs.IsNotFound(err))
}

func TestPipelineCastFailure(t *testing.T) {
	d, s, caster := newPipeline(t)
	caster.err = errors.New("dispatcher stopped")

	c := &TapServiceContext{TapService: &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst"}}
	require.NoError(t, s.Update(func(tx store.Tx) error {
		return d.CreateTapServicePrecommit(context.Background(), tx, c)
	}))
	err := d.CreateTapServicePostcommit(context.Background(), c)
	require.Error(t, err)
	assert.True(t, errdefs.IsDriverFailure(err))
}

func TestPipelineRejectsTapMirrors(t *testing.T) {
	d, s, _ := newPipeline(t)
	err := s.Update(func(tx store.Tx) error {
		return d.CreateTapMirrorPrecommit(context.Background(), tx, &TapMirrorContext{TapMirror: &api.TapMirror{ID: "m"}})
	})
	assert.True(t, errdefs.IsInvalidArgument(err))
}

func TestPipelineSyncHost(t *testing.T) {
	d, s, caster := newPipeline(t)
	createService(t, d, s, &api.TapService{ID: "svc", Tenant: "t1", PortID: "dst", Status: api.StatusActive})

	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateTapFlow(tx, &api.TapFlow{ID: "f1", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionIn, Status: api.StatusActive}); err != nil {
			return err
		}
		return store.CreateTapFlow(tx, &api.TapFlow{ID: "f2", Tenant: "t1", TapServiceID: "svc", SourcePort: "src", Direction: api.DirectionOut, Status: api.StatusPendingDelete})
	}))
	caster.msgs = nil

	var (
		n   int
		err error
	)
	s.View(func(tx store.ReadTx) {
		n, err = d.SyncHost(context.Background(), tx, "host-b")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	methods := map[string]string{}
	for _, msg := range caster.msgs {
		methods[msg.ObjectID()] = msg.Method
	}
	assert.Equal(t, map[string]string{
		"f1": api.MethodCreateTapFlow,
		"f2": api.MethodDeleteTapFlow,
	}, methods)

	caster.msgs = nil
	s.View(func(tx store.ReadTx) {
		n, err = d.SyncHost(context.Background(), tx, "host-a")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, api.MethodCreateTapService, caster.msgs[0].Method)
}
