package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/moby/tapkit/api"
)

// TableTapFlow is the name of the tap flows table.
const TableTapFlow = "tapflows"

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: TableTapFlow,
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
						return o.(*api.TapFlow).Tenant, true
					}),
				},
				indexTapServiceID: {
					Name:         indexTapServiceID,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return o.(*api.TapFlow).TapServiceID, true
					}),
				},
				indexSourcePort: {
					Name:         indexSourcePort,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return o.(*api.TapFlow).SourcePort, true
					}),
				},
				indexStatus: {
					Name:         indexStatus,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return string(o.(*api.TapFlow).Status), true
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.TapFlows, err = FindTapFlows(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *Snapshot) error {
			flows, err := FindTapFlows(tx, All)
			if err != nil {
				return err
			}
			for _, f := range flows {
				if err := DeleteTapFlow(tx, f.ID); err != nil {
					return err
				}
			}
			for _, f := range snapshot.TapFlows {
				if err := CreateTapFlow(tx, f); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// CreateTapFlow adds a new tap flow to the store.
// Returns ErrExist if the ID is already taken.
func CreateTapFlow(tx Tx, f *api.TapFlow) error {
	return tx.create(TableTapFlow, f)
}

// UpdateTapFlow updates an existing tap flow in the store.
// Returns ErrNotExist if the tap flow doesn't exist.
func UpdateTapFlow(tx Tx, f *api.TapFlow) error {
	return tx.update(TableTapFlow, f)
}

// DeleteTapFlow removes a tap flow from the store.
// Returns ErrNotExist if the tap flow doesn't exist.
func DeleteTapFlow(tx Tx, id string) error {
	return tx.delete(TableTapFlow, id)
}

// GetTapFlow looks up a tap flow by ID.
// Returns nil if the tap flow doesn't exist.
func GetTapFlow(tx ReadTx, id string) *api.TapFlow {
	f := tx.get(TableTapFlow, id)
	if f == nil {
		return nil
	}
	return f.(*api.TapFlow)
}

// FindTapFlows selects a set of tap flows and returns them.
func FindTapFlows(tx ReadTx, by By) ([]*api.TapFlow, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byIDPrefix, byTenant, byTapServiceID, bySourcePort, byStatus:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	flowList := []*api.TapFlow{}
	appendResult := func(o api.StoreObject) {
		flowList = append(flowList, o.(*api.TapFlow))
	}

	err := tx.find(TableTapFlow, by, checkType, appendResult)
	return flowList, err
}
