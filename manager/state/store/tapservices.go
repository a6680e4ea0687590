package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/moby/tapkit/api"
)

// TableTapService is the name of the tap services table.
const TableTapService = "tapservices"

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: TableTapService,
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
						return o.(*api.TapService).Tenant, true
					}),
				},
				indexPortID: {
					Name:         indexPortID,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return o.(*api.TapService).PortID, true
					}),
				},
				indexStatus: {
					Name:         indexStatus,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return string(o.(*api.TapService).Status), true
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.TapServices, err = FindTapServices(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *Snapshot) error {
			services, err := FindTapServices(tx, All)
			if err != nil {
				return err
			}
			for _, s := range services {
				if err := DeleteTapService(tx, s.ID); err != nil {
					return err
				}
			}
			for _, s := range snapshot.TapServices {
				if err := CreateTapService(tx, s); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// CreateTapService adds a new tap service to the store.
// Returns ErrExist if the ID is already taken.
func CreateTapService(tx Tx, s *api.TapService) error {
	return tx.create(TableTapService, s)
}

// UpdateTapService updates an existing tap service in the store.
// Returns ErrNotExist if the tap service doesn't exist.
func UpdateTapService(tx Tx, s *api.TapService) error {
	return tx.update(TableTapService, s)
}

// DeleteTapService removes a tap service from the store.
// Returns ErrNotExist if the tap service doesn't exist.
func DeleteTapService(tx Tx, id string) error {
	return tx.delete(TableTapService, id)
}

// GetTapService looks up a tap service by ID.
// Returns nil if the tap service doesn't exist.
func GetTapService(tx ReadTx, id string) *api.TapService {
	s := tx.get(TableTapService, id)
	if s == nil {
		return nil
	}
	return s.(*api.TapService)
}

// FindTapServices selects a set of tap services and returns them.
func FindTapServices(tx ReadTx, by By) ([]*api.TapService, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byIDPrefix, byTenant, byPortID, byStatus:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	serviceList := []*api.TapService{}
	appendResult := func(o api.StoreObject) {
		serviceList = append(serviceList, o.(*api.TapService))
	}

	err := tx.find(TableTapService, by, checkType, appendResult)
	return serviceList, err
}
