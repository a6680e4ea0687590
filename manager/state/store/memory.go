package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docker/go-events"
	memdb "github.com/hashicorp/go-memdb"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/watch"
)

const (
	indexID           = "id"
	indexTenant       = "tenant"
	indexPortID       = "portid"
	indexSourcePort   = "sourceport"
	indexTapServiceID = "tapserviceid"
	indexHost         = "host"
	indexStatus       = "status"

	prefix = "_prefix"
)

var (
	// ErrExist is returned by create operations if the provided ID is already
	// taken.
	ErrExist = errors.New("object already exists")

	// ErrNotExist is returned by altering operations (update, delete) if the
	// provided ID is not found.
	ErrNotExist = errors.New("object does not exist")

	// ErrInvalidFindBy is returned if an unrecognized type is passed to Find.
	ErrInvalidFindBy = errors.New("invalid find argument type")
)

var (
	objectStorers []ObjectStoreConfig
	schema        = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{},
	}
)

func register(os ObjectStoreConfig) {
	objectStorers = append(objectStorers, os)
	schema.Tables[os.Table.Name] = os.Table
}

// ReadTx is a read transaction.
type ReadTx interface {
	lookup(table, index, id string) api.StoreObject
	get(table, id string) api.StoreObject
	find(table string, by By, checkType func(By) error, appendResult func(api.StoreObject)) error
}

// Tx is a read/write transaction.
type Tx interface {
	ReadTx
	create(table string, o api.StoreObject) error
	update(table string, o api.StoreObject) error
	delete(table, id string) error
}

// MemoryStore is a concurrency-safe, in-memory store of tapkit objects.
// Every committed change is published on its watch queue.
type MemoryStore struct {
	// updateLock must be held during an update transaction.
	updateLock sync.Mutex

	memDB *memdb.MemDB
	queue *watch.Queue

	version uint64
	now     func() time.Time
}

// NewMemoryStore returns an in-memory store.
func NewMemoryStore() *MemoryStore {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		// This shouldn't fail
		panic(err)
	}

	return &MemoryStore{
		memDB: memDB,
		queue: watch.NewQueue(),
		now:   time.Now,
	}
}

// Close closes the memory store and frees its associated resources.
func (s *MemoryStore) Close() error {
	return s.queue.Close()
}

func fromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	arg, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[0])
	}
	// Add the null character as a terminator
	arg += "\x00"
	return []byte(arg), nil
}

func prefixFromArgs(args ...interface{}) ([]byte, error) {
	val, err := fromArgs(args...)
	if err != nil {
		return nil, err
	}

	// Strip the null terminator, the rest is a prefix
	n := len(val)
	if n > 0 {
		return val[:n-1], nil
	}
	return val, nil
}

// stringIndexer indexes objects by the string the function returns. Objects
// for which it returns false are left out of the index.
type stringIndexer func(api.StoreObject) (string, bool)

func (f stringIndexer) FromArgs(args ...interface{}) ([]byte, error) {
	return fromArgs(args...)
}

func (f stringIndexer) PrefixFromArgs(args ...interface{}) ([]byte, error) {
	return prefixFromArgs(args...)
}

func (f stringIndexer) FromObject(obj interface{}) (bool, []byte, error) {
	o, ok := obj.(api.StoreObject)
	if !ok {
		panic("unexpected type passed to FromObject")
	}
	val, ok := f(o)
	if !ok {
		return false, nil, nil
	}
	// Add the null character as a terminator
	return true, []byte(val + "\x00"), nil
}

func byID(o api.StoreObject) (string, bool) {
	return o.GetID(), true
}

type readTx struct {
	memDBTx *memdb.Txn
}

// View executes a read transaction.
func (s *MemoryStore) View(cb func(ReadTx)) {
	memDBTx := s.memDB.Txn(false)

	readTx := readTx{
		memDBTx: memDBTx,
	}
	cb(readTx)
	memDBTx.Commit()
}

// ViewAndWatch calls a callback which can observe the state of this
// MemoryStore. It also returns a channel that will return further events from
// this point so the snapshot can be kept up to date. The watch channel must be
// released with the returned cancel function.
func (s *MemoryStore) ViewAndWatch(cb func(ReadTx) error, matcher events.Matcher) (watch chan events.Event, cancel func(), err error) {
	// Using Update to lock the store and guarantee consistency between
	// the watcher and the state seen by the callback.
	err = s.Update(func(tx Tx) error {
		if err := cb(tx); err != nil {
			return err
		}
		watch, cancel = s.queue.CallbackWatch(matcher)
		return nil
	})
	if watch != nil && err != nil {
		cancel()
		cancel = nil
		watch = nil
	}
	return
}

type tx struct {
	readTx
	store      *MemoryStore
	changelist []events.Event
	// restoring keeps the metadata of created objects as given.
	restoring bool
}

// Update executes a read/write transaction. The transaction is committed if
// the callback returns nil, and aborted otherwise.
func (s *MemoryStore) Update(cb func(Tx) error) error {
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	memDBTx := s.memDB.Txn(true)

	tx := tx{
		readTx: readTx{memDBTx: memDBTx},
		store:  s,
	}

	if err := cb(&tx); err != nil {
		memDBTx.Abort()
		return err
	}
	memDBTx.Commit()

	if len(tx.changelist) != 0 {
		s.version++
		for _, c := range tx.changelist {
			s.queue.Publish(c)
		}
		s.queue.Publish(EventCommit{Version: s.version})
	}
	return nil
}

// lookup is an internal typed wrapper around memdb.
func (tx readTx) lookup(table, index, id string) api.StoreObject {
	j, err := tx.memDBTx.First(table, index, id)
	if err != nil {
		return nil
	}
	if j != nil {
		return j.(api.StoreObject)
	}
	return nil
}

// create adds a new object to the store.
// Returns ErrExist if the ID is already taken.
func (tx *tx) create(table string, o api.StoreObject) error {
	if tx.lookup(table, indexID, o.GetID()) != nil {
		return ErrExist
	}

	copy := o.CopyStoreObject()
	if !tx.restoring {
		now := tx.store.now().UTC()
		copy.SetMeta(api.Meta{Version: 1, CreatedAt: now, UpdatedAt: now})
	}

	err := tx.memDBTx.Insert(table, copy)
	if err == nil {
		tx.changelist = append(tx.changelist, EventCreate{Table: table, Object: copy})
		o.SetMeta(copy.GetMeta())
	}
	return err
}

// update updates an existing object in the store.
// Returns ErrNotExist if the object doesn't exist.
func (tx *tx) update(table string, o api.StoreObject) error {
	oldN := tx.lookup(table, indexID, o.GetID())
	if oldN == nil {
		return ErrNotExist
	}

	copy := o.CopyStoreObject()
	meta := oldN.GetMeta()
	meta.Version++
	meta.UpdatedAt = tx.store.now().UTC()
	copy.SetMeta(meta)

	err := tx.memDBTx.Insert(table, copy)
	if err == nil {
		tx.changelist = append(tx.changelist, EventUpdate{Table: table, Object: copy, OldObject: oldN})
		o.SetMeta(meta)
	}
	return err
}

// delete removes an object from the store.
// Returns ErrNotExist if the object doesn't exist.
func (tx *tx) delete(table, id string) error {
	n := tx.lookup(table, indexID, id)
	if n == nil {
		return ErrNotExist
	}

	err := tx.memDBTx.Delete(table, n)
	if err == nil {
		tx.changelist = append(tx.changelist, EventDelete{Table: table, Object: n})
	}
	return err
}

// get looks up an object by ID.
// Returns nil if the object doesn't exist.
func (tx readTx) get(table, id string) api.StoreObject {
	o := tx.lookup(table, indexID, id)
	if o == nil {
		return nil
	}
	return o.CopyStoreObject()
}

// find selects a set of objects calls a callback for each matching object.
func (tx readTx) find(table string, by By, checkType func(By) error, appendResult func(api.StoreObject)) error {
	fromResultIterators := func(its ...memdb.ResultIterator) {
		ids := make(map[string]struct{})
		for _, it := range its {
			for {
				obj := it.Next()
				if obj == nil {
					break
				}
				o := obj.(api.StoreObject)
				id := o.GetID()
				if _, exists := ids[id]; !exists {
					appendResult(o.CopyStoreObject())
					ids[id] = struct{}{}
				}
			}
		}
	}

	iters, err := tx.findIterators(table, by, checkType)
	if err != nil {
		return err
	}

	fromResultIterators(iters...)

	return nil
}

func (tx readTx) findIterators(table string, by By, checkType func(By) error) ([]memdb.ResultIterator, error) {
	switch by.(type) {
	case byAll, orCombinator:
	default:
		if err := checkType(by); err != nil {
			return nil, err
		}
	}

	var (
		index string
		arg   string
	)
	switch v := by.(type) {
	case byAll:
		it, err := tx.memDBTx.Get(table, indexID)
		if err != nil {
			return nil, err
		}
		return []memdb.ResultIterator{it}, nil
	case byIDPrefix:
		index, arg = indexID+prefix, string(v)
	case byTenant:
		index, arg = indexTenant, string(v)
	case byPortID:
		index, arg = indexPortID, string(v)
	case bySourcePort:
		index, arg = indexSourcePort, string(v)
	case byTapServiceID:
		index, arg = indexTapServiceID, string(v)
	case byHost:
		index, arg = indexHost, string(v)
	case byStatus:
		index, arg = indexStatus, string(v)
	case byTaasID:
		index, arg = indexID, string(v)
	case orCombinator:
		var iters []memdb.ResultIterator
		for _, subBy := range v.bys {
			it, err := tx.findIterators(table, subBy, checkType)
			if err != nil {
				return nil, err
			}
			iters = append(iters, it...)
		}
		return iters, nil
	default:
		return nil, ErrInvalidFindBy
	}

	it, err := tx.memDBTx.Get(table, index, arg)
	if err != nil {
		return nil, err
	}
	return []memdb.ResultIterator{it}, nil
}

// Snapshot is the full content of a store.
type Snapshot struct {
	Ports             []*api.Port             `json:"ports,omitempty"`
	TapServices       []*api.TapService       `json:"tap_services,omitempty"`
	TapFlows          []*api.TapFlow          `json:"tap_flows,omitempty"`
	TapMirrors        []*api.TapMirror        `json:"tap_mirrors,omitempty"`
	TapIDAssociations []*api.TapIDAssociation `json:"tap_id_associations,omitempty"`
}

// Save serializes the data in the store.
func (s *MemoryStore) Save(tx ReadTx) (*Snapshot, error) {
	var snapshot Snapshot
	for _, os := range objectStorers {
		if err := os.Save(tx, &snapshot); err != nil {
			return nil, err
		}
	}

	return &snapshot, nil
}

// Restore sets the contents of the store to the serialized data in the
// argument.
func (s *MemoryStore) Restore(snapshot *Snapshot) error {
	return s.Update(func(t Tx) error {
		t.(*tx).restoring = true
		for _, os := range objectStorers {
			if err := os.Restore(t, snapshot); err != nil {
				return err
			}
		}
		return nil
	})
}

// WatchQueue returns the publish/subscribe queue.
func (s *MemoryStore) WatchQueue() *watch.Queue {
	return s.queue
}
