package store

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/moby/tapkit/api"
)

// TableTapMirror is the name of the tap mirrors table.
const TableTapMirror = "tapmirrors"

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: TableTapMirror,
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
						return o.(*api.TapMirror).Project, true
					}),
				},
				indexPortID: {
					Name:         indexPortID,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return o.(*api.TapMirror).PortID, true
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.TapMirrors, err = FindTapMirrors(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *Snapshot) error {
			mirrors, err := FindTapMirrors(tx, All)
			if err != nil {
				return err
			}
			for _, m := range mirrors {
				if err := DeleteTapMirror(tx, m.ID); err != nil {
					return err
				}
			}
			for _, m := range snapshot.TapMirrors {
				if err := CreateTapMirror(tx, m); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// CreateTapMirror adds a new tap mirror to the store.
// Returns ErrExist if the ID is already taken.
func CreateTapMirror(tx Tx, m *api.TapMirror) error {
	return tx.create(TableTapMirror, m)
}

// UpdateTapMirror updates an existing tap mirror in the store.
// Returns ErrNotExist if the tap mirror doesn't exist.
func UpdateTapMirror(tx Tx, m *api.TapMirror) error {
	return tx.update(TableTapMirror, m)
}

// DeleteTapMirror removes a tap mirror from the store.
// Returns ErrNotExist if the tap mirror doesn't exist.
func DeleteTapMirror(tx Tx, id string) error {
	return tx.delete(TableTapMirror, id)
}

// GetTapMirror looks up a tap mirror by ID.
// Returns nil if the tap mirror doesn't exist.
func GetTapMirror(tx ReadTx, id string) *api.TapMirror {
	m := tx.get(TableTapMirror, id)
	if m == nil {
		return nil
	}
	return m.(*api.TapMirror)
}

// FindTapMirrors selects a set of tap mirrors and returns them.
func FindTapMirrors(tx ReadTx, by By) ([]*api.TapMirror, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byIDPrefix, byTenant, byPortID:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	mirrorList := []*api.TapMirror{}
	appendResult := func(o api.StoreObject) {
		mirrorList = append(mirrorList, o.(*api.TapMirror))
	}

	err := tx.find(TableTapMirror, by, checkType, appendResult)
	return mirrorList, err
}
