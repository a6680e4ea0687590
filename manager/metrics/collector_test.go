package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	require.NoError(t, s.Update(func(tx store.Tx) error {
		return store.CreateTapService(tx, &api.TapService{ID: "existing", Tenant: "t1", PortID: "p1", Status: api.StatusActive})
	}))

	c := NewCollector(s)
	go func() {
		_ = c.Run(context.Background())
	}()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return c.Counts(api.KindTapService)[api.StatusActive] == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateTapService(tx, &api.TapService{ID: "new", Tenant: "t1", PortID: "p1", Status: api.StatusDown}); err != nil {
			return err
		}
		return store.CreateTapFlow(tx, &api.TapFlow{ID: "f1", Tenant: "t1", TapServiceID: "new", SourcePort: "p2", Direction: api.DirectionIn, Status: api.StatusDown})
	}))

	require.Eventually(t, func() bool {
		return c.Counts(api.KindTapService)[api.StatusDown] == 1 && c.Counts(api.KindTapFlow)[api.StatusDown] == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Update(func(tx store.Tx) error {
		svc := store.GetTapService(tx, "existing")
		svc.Status = api.StatusPendingDelete
		if err := store.UpdateTapService(tx, svc); err != nil {
			return err
		}
		return store.DeleteTapFlow(tx, "f1")
	}))

	require.Eventually(t, func() bool {
		services := c.Counts(api.KindTapService)
		return services[api.StatusActive] == 0 && services[api.StatusPendingDelete] == 1 && len(c.Counts(api.KindTapFlow)) == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, c.Counts(api.KindTapService)[api.StatusDown])
}
