package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func stored(t *testing.T, s *Store, table, id string) bool {
	var found bool
	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		bkt := getBucket(tx, bucketKeyStorageVersion, []byte(table))
		found = bkt != nil && bkt.Get([]byte(id)) != nil
		return nil
	}))
	return found
}

func TestWriteThroughAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	mem := store.NewMemoryStore()
	require.NoError(t, mem.Update(func(tx store.Tx) error {
		return store.CreatePort(tx, &api.Port{ID: "p1", Tenant: "t1", Host: "host-a"})
	}))

	s, err := Open(path, mem)
	require.NoError(t, err)
	go func() {
		_ = s.Run(context.Background())
	}()

	require.Eventually(t, func() bool { return stored(t, s, store.TablePort, "p1") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, mem.Update(func(tx store.Tx) error {
		if err := store.CreateTapService(tx, &api.TapService{ID: "svc", Tenant: "t1", PortID: "p1", Status: api.StatusDown}); err != nil {
			return err
		}
		if err := store.CreateTapIDAssociation(tx, &api.TapIDAssociation{TaasID: 7, TapServiceID: "svc"}); err != nil {
			return err
		}
		return store.CreateTapMirror(tx, &api.TapMirror{
			ID: "m1", Project: "t1", PortID: "p1", RemoteIP: "192.0.2.1", MirrorType: api.MirrorTypeGRE,
			Directions: map[api.Direction]uint32{api.DirectionIn: 11},
		})
	}))
	require.Eventually(t, func() bool { return stored(t, s, store.TableTapMirror, "m1") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, mem.Update(func(tx store.Tx) error {
		return store.DeleteTapMirror(tx, "m1")
	}))
	require.Eventually(t, func() bool { return !stored(t, s, store.TableTapMirror, "m1") }, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	require.NoError(t, s.Close())
	mem.Close()

	restored := store.NewMemoryStore()
	defer restored.Close()
	s, err = Open(path, restored)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Restore())

	restored.View(func(tx store.ReadTx) {
		assert.NotNil(t, store.GetPort(tx, "p1"))
		svc := store.GetTapService(tx, "svc")
		require.NotNil(t, svc)
		assert.Equal(t, api.StatusDown, svc.Status)
		assoc := store.GetTapIDAssociation(tx, 7)
		require.NotNil(t, assoc)
		assert.Equal(t, "svc", assoc.TapServiceID)
		assert.Nil(t, store.GetTapMirror(tx, "m1"))
	})
}

func TestRunDropsStaleRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path, store.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, store.TablePort, &api.Port{ID: "stale", Tenant: "t1"})
	}))

	go func() {
		_ = s.Run(context.Background())
	}()
	require.Eventually(t, func() bool { return !stored(t, s, store.TablePort, "stale") }, 5*time.Second, 10*time.Millisecond)
	s.Stop()
	require.NoError(t, s.Close())
}
