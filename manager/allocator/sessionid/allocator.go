package sessionid

import (
	"context"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultRangeStart is the first identifier of the default range.
	DefaultRangeStart = 3900
	// DefaultRangeEnd is one past the last identifier of the default range.
	DefaultRangeEnd = 4000

	// maxID is the largest usable VLAN id.
	maxID = 4094
)

// Allocator hands out session identifiers from the association table of a
// store.
type Allocator struct {
	store *store.MemoryStore

	mu    sync.RWMutex
	start uint32
	end   uint32
}

// New returns an allocator over [start, end).
func New(s *store.MemoryStore, start, end uint32) (*Allocator, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	return &Allocator{
		store: s,
		start: start,
		end:   end,
	}, nil
}

func validateRange(start, end uint32) error {
	if start == 0 || start >= end || end > maxID+1 {
		return errdefs.ErrInvalidArgument("invalid session identifier range [%d, %d)", start, end)
	}
	return nil
}

// Range returns the configured range.
func (a *Allocator) Range() (start, end uint32) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.start, a.end
}

// SetRange reconfigures the range. Bound identifiers outside the new range
// stay bound until released; free ones are dropped on the next rebuild.
func (a *Allocator) SetRange(start, end uint32) error {
	if err := validateRange(start, end); err != nil {
		return err
	}
	a.mu.Lock()
	a.start, a.end = start, end
	a.mu.Unlock()
	return nil
}

func (a *Allocator) inRange(id uint32) bool {
	start, end := a.Range()
	return id >= start && id < end
}

// Acquire binds a free identifier to ownerID and returns it. An owner that
// already holds an identifier gets the same one back.
func (a *Allocator) Acquire(tx store.Tx, ownerID string) (uint32, error) {
	if ownerID == "" {
		return 0, errdefs.ErrInvalidArgument("session identifier owner must not be empty")
	}
	if id, ok := a.Lookup(tx, ownerID); ok {
		return id, nil
	}

	assoc, err := a.pickFree(tx)
	if err != nil {
		return 0, err
	}
	if assoc == nil {
		if err := a.rebuild(tx); err != nil {
			return 0, err
		}
		if assoc, err = a.pickFree(tx); err != nil {
			return 0, err
		}
	}
	if assoc == nil {
		start, end := a.Range()
		return 0, errdefs.ErrResourceExhausted("session identifier", "tap service limit reached (%d)", end-start)
	}

	assoc.TapServiceID = ownerID
	if err := store.UpdateTapIDAssociation(tx, assoc); err != nil {
		return 0, errors.Wrapf(err, "failed to bind session identifier %d", assoc.TaasID)
	}
	return assoc.TaasID, nil
}

// pickFree returns the lowest free row inside the range, or nil.
func (a *Allocator) pickFree(tx store.ReadTx) (*api.TapIDAssociation, error) {
	free, err := store.FindTapIDAssociations(tx, store.Free)
	if err != nil {
		return nil, err
	}
	var picked *api.TapIDAssociation
	for _, assoc := range free {
		if !a.inRange(assoc.TaasID) {
			continue
		}
		if picked == nil || assoc.TaasID < picked.TaasID {
			picked = assoc
		}
	}
	return picked, nil
}

// rebuild inserts a free row for every identifier of the range that has no
// row, and drops free rows that fell out of the range.
func (a *Allocator) rebuild(tx store.Tx) error {
	start, end := a.Range()

	full := mapset.NewThreadUnsafeSet[uint32]()
	for id := start; id < end; id++ {
		full.Add(id)
	}

	free, err := store.FindTapIDAssociations(tx, store.Free)
	if err != nil {
		return err
	}
	existing := mapset.NewThreadUnsafeSet[uint32]()
	for _, assoc := range free {
		if !full.Contains(assoc.TaasID) {
			if err := store.DeleteTapIDAssociation(tx, assoc.TaasID); err != nil {
				return err
			}
			continue
		}
		existing.Add(assoc.TaasID)
	}
	for id := start; id < end; id++ {
		if assoc := store.GetTapIDAssociation(tx, id); assoc != nil && assoc.Bound() {
			existing.Add(id)
		}
	}

	missing := full.Difference(existing).ToSlice()
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	for _, id := range missing {
		if err := store.CreateTapIDAssociation(tx, &api.TapIDAssociation{TaasID: id}); err != nil {
			return errors.Wrapf(err, "failed to add session identifier %d", id)
		}
	}
	return nil
}

// Release unbinds the identifier held by ownerID. Releasing an owner that
// holds nothing is not an error.
func (a *Allocator) Release(tx store.Tx, ownerID string) error {
	if ownerID == "" {
		return nil
	}
	held, err := store.FindTapIDAssociations(tx, store.ByTapServiceID(ownerID))
	if err != nil {
		return err
	}
	for _, assoc := range held {
		if !a.inRange(assoc.TaasID) {
			if err := store.DeleteTapIDAssociation(tx, assoc.TaasID); err != nil {
				return err
			}
			continue
		}
		assoc.TapServiceID = ""
		if err := store.UpdateTapIDAssociation(tx, assoc); err != nil {
			return errors.Wrapf(err, "failed to release session identifier %d", assoc.TaasID)
		}
	}
	return nil
}

// Lookup returns the identifier held by ownerID.
func (a *Allocator) Lookup(tx store.ReadTx, ownerID string) (uint32, bool) {
	if ownerID == "" {
		return 0, false
	}
	held, err := store.FindTapIDAssociations(tx, store.ByTapServiceID(ownerID))
	if err != nil || len(held) == 0 {
		return 0, false
	}
	return held[0].TaasID, true
}

// AcquireID runs Acquire in its own store transaction.
func (a *Allocator) AcquireID(ctx context.Context, ownerID string) (uint32, error) {
	var id uint32
	err := a.store.Update(func(tx store.Tx) error {
		var err error
		id, err = a.Acquire(tx, ownerID)
		return err
	})
	if err != nil {
		return 0, err
	}
	log.G(ctx).WithFields(logrus.Fields{
		"tap_service.id": ownerID,
		"taas_id":        id,
	}).Debug("session identifier acquired")
	a.RefreshGauges()
	return id, nil
}

// ReleaseID runs Release in its own store transaction.
func (a *Allocator) ReleaseID(ctx context.Context, ownerID string) error {
	err := a.store.Update(func(tx store.Tx) error {
		return a.Release(tx, ownerID)
	})
	if err != nil {
		return err
	}
	log.G(ctx).WithField("tap_service.id", ownerID).Debug("session identifier released")
	a.RefreshGauges()
	return nil
}

// Stats returns the number of free and bound identifiers known to the store.
func (a *Allocator) Stats() (free, bound int) {
	a.store.View(func(tx store.ReadTx) {
		start, end := a.Range()
		bound = 0
		for id := start; id < end; id++ {
			if assoc := store.GetTapIDAssociation(tx, id); assoc != nil && assoc.Bound() {
				bound++
			}
		}
		free = int(end-start) - bound
	})
	return free, bound
}

// RefreshGauges publishes the free and bound counts. Callers running Acquire or
// Release inside their own transaction call it after commit.
func (a *Allocator) RefreshGauges() {
	free, bound := a.Stats()
	idsGauge.WithValues("free").Set(float64(free))
	idsGauge.WithValues("bound").Set(float64(bound))
}
