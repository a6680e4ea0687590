package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/moby/tapkit/api"
)

// TablePort is the name of the ports table.
const TablePort = "ports"

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: TablePort,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: stringIndexer(byID),
				},
				indexTenant: {
					Name:         indexTenant,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return o.(*api.Port).Tenant, true
					}),
				},
				indexHost: {
					Name:         indexHost,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						p := o.(*api.Port)
						return p.Host, p.Host != ""
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.Ports, err = FindPorts(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *Snapshot) error {
			ports, err := FindPorts(tx, All)
			if err != nil {
				return err
			}
			for _, p := range ports {
				if err := DeletePort(tx, p.ID); err != nil {
					return err
				}
			}
			for _, p := range snapshot.Ports {
				if err := CreatePort(tx, p); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// CreatePort adds a new port to the store.
// Returns ErrExist if the ID is already taken.
func CreatePort(tx Tx, p *api.Port) error {
	return tx.create(TablePort, p)
}

// UpdatePort updates an existing port in the store.
// Returns ErrNotExist if the port doesn't exist.
func UpdatePort(tx Tx, p *api.Port) error {
	return tx.update(TablePort, p)
}

// DeletePort removes a port from the store.
// Returns ErrNotExist if the port doesn't exist.
func DeletePort(tx Tx, id string) error {
	return tx.delete(TablePort, id)
}

// GetPort looks up a port by ID.
// Returns nil if the port doesn't exist.
func GetPort(tx ReadTx, id string) *api.Port {
	p := tx.get(TablePort, id)
	if p == nil {
		return nil
	}
	return p.(*api.Port)
}

// FindPorts selects a set of ports and returns them.
func FindPorts(tx ReadTx, by By) ([]*api.Port, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byIDPrefix, byTenant, byHost:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	portList := []*api.Port{}
	appendResult := func(o api.StoreObject) {
		portList = append(portList, o.(*api.Port))
	}

	err := tx.find(TablePort, by, checkType, appendResult)
	return portList, err
}
