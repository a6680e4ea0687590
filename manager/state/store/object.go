package store

import (
	memdb "github.com/hashicorp/go-memdb"
)

// ObjectStoreConfig provides the necessary methods to store a particular object
// type inside MemoryStore.
type ObjectStoreConfig struct {
	Table   *memdb.TableSchema
	Save    func(ReadTx, *Snapshot) error
	Restore func(Tx, *Snapshot) error
}
