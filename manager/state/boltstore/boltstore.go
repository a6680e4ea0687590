// Package boltstore persists the manager store to a bbolt database. The
// memory store stays authoritative; committed changes are written through
// and the database is read back into the memory store at startup.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/docker/go-events"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Layout:
//
//	bucket(v1.<table>) ->
//			<object id> (object json)
var (
	bucketKeyStorageVersion = []byte("v1")

	tables = []string{
		store.TablePort,
		store.TableTapService,
		store.TableTapFlow,
		store.TableTapMirror,
		store.TableTapIDAssociation,
	}
)

type bucketKeyPath [][]byte

func (bk bucketKeyPath) String() string {
	return string(bytes.Join([][]byte(bk), []byte("/")))
}

// Store mirrors a MemoryStore into a bbolt database.
type Store struct {
	db  *bolt.DB
	mem *store.MemoryStore

	stopChan chan struct{}
	doneChan chan struct{}
}

// Open opens or creates the database at path.
func Open(path string, mem *store.MemoryStore) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open state database %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, table := range tables {
			if _, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, []byte(table)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:       db,
		mem:      mem,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Close closes the database. Run must have returned.
func (s *Store) Close() error {
	return s.db.Close()
}

// Restore loads the database content into the memory store.
func (s *Store) Restore() error {
	var snapshot store.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		if snapshot.Ports, err = load[api.Port](tx, store.TablePort); err != nil {
			return err
		}
		if snapshot.TapServices, err = load[api.TapService](tx, store.TableTapService); err != nil {
			return err
		}
		if snapshot.TapFlows, err = load[api.TapFlow](tx, store.TableTapFlow); err != nil {
			return err
		}
		if snapshot.TapMirrors, err = load[api.TapMirror](tx, store.TableTapMirror); err != nil {
			return err
		}
		snapshot.TapIDAssociations, err = load[api.TapIDAssociation](tx, store.TableTapIDAssociation)
		return err
	})
	if err != nil {
		return err
	}

	log.L.WithField("module", "boltstore").Debugf("restored %d ports, %d tap services, %d tap flows, %d tap mirrors",
		len(snapshot.Ports), len(snapshot.TapServices), len(snapshot.TapFlows), len(snapshot.TapMirrors))
	return s.mem.Restore(&snapshot)
}

// Run writes the current memory store content to the database, then writes
// every committed transaction through until ctx is done or Stop is called.
func (s *Store) Run(ctx context.Context) error {
	defer close(s.doneChan)

	watcher, cancel, err := s.mem.ViewAndWatch(s.save, store.MatchTables(tables...))
	if err != nil {
		return err
	}
	defer cancel()

	var pending []events.Event
	for {
		select {
		case event := <-watcher:
			if _, ok := event.(store.EventCommit); !ok {
				pending = append(pending, event)
				continue
			}
			if err := s.db.Update(func(tx *bolt.Tx) error {
				for _, ev := range pending {
					if err := apply(tx, ev); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				log.G(ctx).WithError(err).Error("failed to persist store changes")
			}
			pending = pending[:0]
		case <-s.stopChan:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop stops Run and waits for it to return.
func (s *Store) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

// Sync writes the whole memory store to the database. Callers use it after
// the last transaction, since Run may stop before writing queued changes.
func (s *Store) Sync() error {
	var err error
	s.mem.View(func(tx store.ReadTx) {
		err = s.save(tx)
	})
	return err
}

func (s *Store) save(tx store.ReadTx) error {
	snapshot, err := s.mem.Save(tx)
	if err != nil {
		return err
	}
	return s.writeSnapshot(snapshot)
}

func (s *Store) writeSnapshot(snapshot *store.Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		// Start over so objects removed while the database was closed are
		// dropped.
		for _, table := range tables {
			bkt := getBucket(tx, bucketKeyStorageVersion)
			if err := bkt.DeleteBucket([]byte(table)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, []byte(table)); err != nil {
				return err
			}
		}

		var objects []api.StoreObject
		for _, o := range snapshot.Ports {
			objects = append(objects, o)
		}
		for _, o := range snapshot.TapServices {
			objects = append(objects, o)
		}
		for _, o := range snapshot.TapFlows {
			objects = append(objects, o)
		}
		for _, o := range snapshot.TapMirrors {
			objects = append(objects, o)
		}
		for _, o := range snapshot.TapIDAssociations {
			objects = append(objects, o)
		}
		for _, o := range objects {
			if err := put(tx, tableOf(o), o); err != nil {
				return err
			}
		}
		return nil
	})
}

func apply(tx *bolt.Tx, ev events.Event) error {
	switch v := ev.(type) {
	case store.EventCreate:
		return put(tx, v.Table, v.Object)
	case store.EventUpdate:
		return put(tx, v.Table, v.Object)
	case store.EventDelete:
		bkt := getBucket(tx, bucketKeyStorageVersion, []byte(v.Table))
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(v.Object.GetID()))
	}
	return nil
}

func tableOf(o api.StoreObject) string {
	switch o.(type) {
	case *api.Port:
		return store.TablePort
	case *api.TapService:
		return store.TableTapService
	case *api.TapFlow:
		return store.TableTapFlow
	case *api.TapMirror:
		return store.TableTapMirror
	case *api.TapIDAssociation:
		return store.TableTapIDAssociation
	}
	return ""
}

func put(tx *bolt.Tx, table string, o api.StoreObject) error {
	bkt, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, []byte(table))
	if err != nil {
		return err
	}
	p, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return bkt.Put([]byte(o.GetID()), p)
}

func load[T any](tx *bolt.Tx, table string) ([]*T, error) {
	bkt := getBucket(tx, bucketKeyStorageVersion, []byte(table))
	if bkt == nil {
		return nil, nil
	}
	var out []*T
	err := bkt.ForEach(func(k, v []byte) error {
		var o T
		if err := json.Unmarshal(v, &o); err != nil {
			return errors.Wrapf(err, "corrupt %s record %s", table, k)
		}
		out = append(out, &o)
		return nil
	})
	return out, err
}

func createBucketIfNotExists(tx *bolt.Tx, keys ...[]byte) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(keys[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create bucket %v", bucketKeyPath(keys))
	}

	for _, key := range keys[1:] {
		bkt, err = bkt.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create bucket %v", bucketKeyPath(keys))
		}
	}

	return bkt, nil
}

func getBucket(tx *bolt.Tx, keys ...[]byte) *bolt.Bucket {
	bkt := tx.Bucket(keys[0])

	for _, key := range keys[1:] {
		if bkt == nil {
			break
		}
		bkt = bkt.Bucket(key)
	}

	return bkt
}
