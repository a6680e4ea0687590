package store

import (
	"strconv"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/moby/tapkit/api"
)

// TableTapIDAssociation is the name of the session identifier table.
const TableTapIDAssociation = "tapidassociations"

func init() {
	register(ObjectStoreConfig{
		Table: &memdb.TableSchema{
			Name: TableTapIDAssociation,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: stringIndexer(byID),
				},
				// Free rows are indexed under the empty owner.
				indexTapServiceID: {
					Name:         indexTapServiceID,
					AllowMissing: true,
					Indexer: stringIndexer(func(o api.StoreObject) (string, bool) {
						return o.(*api.TapIDAssociation).TapServiceID, true
					}),
				},
			},
		},
		Save: func(tx ReadTx, snapshot *Snapshot) error {
			var err error
			snapshot.TapIDAssociations, err = FindTapIDAssociations(tx, All)
			return err
		},
		Restore: func(tx Tx, snapshot *Snapshot) error {
			assocs, err := FindTapIDAssociations(tx, All)
			if err != nil {
				return err
			}
			for _, a := range assocs {
				if err := DeleteTapIDAssociation(tx, a.TaasID); err != nil {
					return err
				}
			}
			for _, a := range snapshot.TapIDAssociations {
				if err := CreateTapIDAssociation(tx, a); err != nil {
					return err
				}
			}
			return nil
		},
	})
}

// CreateTapIDAssociation adds a new session identifier row to the store.
// Returns ErrExist if the identifier is already present.
func CreateTapIDAssociation(tx Tx, a *api.TapIDAssociation) error {
	return tx.create(TableTapIDAssociation, a)
}

// UpdateTapIDAssociation updates an existing session identifier row.
// Returns ErrNotExist if the row doesn't exist.
func UpdateTapIDAssociation(tx Tx, a *api.TapIDAssociation) error {
	return tx.update(TableTapIDAssociation, a)
}

// DeleteTapIDAssociation removes a session identifier row.
// Returns ErrNotExist if the row doesn't exist.
func DeleteTapIDAssociation(tx Tx, taasID uint32) error {
	return tx.delete(TableTapIDAssociation, strconv.FormatUint(uint64(taasID), 10))
}

// GetTapIDAssociation looks up a session identifier row.
// Returns nil if the row doesn't exist.
func GetTapIDAssociation(tx ReadTx, taasID uint32) *api.TapIDAssociation {
	a := tx.get(TableTapIDAssociation, strconv.FormatUint(uint64(taasID), 10))
	if a == nil {
		return nil
	}
	return a.(*api.TapIDAssociation)
}

// FindTapIDAssociations selects a set of session identifier rows and
// returns them.
func FindTapIDAssociations(tx ReadTx, by By) ([]*api.TapIDAssociation, error) {
	checkType := func(by By) error {
		switch by.(type) {
		case byTapServiceID, byTaasID:
			return nil
		default:
			return ErrInvalidFindBy
		}
	}

	assocList := []*api.TapIDAssociation{}
	appendResult := func(o api.StoreObject) {
		assocList = append(assocList, o.(*api.TapIDAssociation))
	}

	err := tx.find(TableTapIDAssociation, by, checkType, appendResult)
	return assocList, err
}
