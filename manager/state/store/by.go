package store

import (
	"strconv"

	"github.com/moby/tapkit/api"
)

// By is an interface type passed to Find methods. Implementations must be
// defined in this package.
type By interface {
	// isBy allows this interface to only be satisfied by certain internal
	// types.
	isBy()
}

type byAll struct{}

func (a byAll) isBy() {
}

// All is an argument that can be passed to find to list all items in the
// set.
var All byAll

type orCombinator struct {
	bys []By
}

func (b orCombinator) isBy() {
}

// Or returns a combinator that applies OR logic on all the supplied By
// arguments.
func Or(bys ...By) By {
	return orCombinator{bys: bys}
}

type byIDPrefix string

func (b byIDPrefix) isBy() {
}

// ByIDPrefix creates an object to pass to Find to select by ID prefix.
func ByIDPrefix(idPrefix string) By {
	return byIDPrefix(idPrefix)
}

type byTenant string

func (b byTenant) isBy() {
}

// ByTenant creates an object to pass to Find to select by tenant. Tap
// mirrors are selected by project.
func ByTenant(tenant string) By {
	return byTenant(tenant)
}

type byPortID string

func (b byPortID) isBy() {
}

// ByPortID creates an object to pass to Find to select tap services and tap
// mirrors by the port they use.
func ByPortID(portID string) By {
	return byPortID(portID)
}

type bySourcePort string

func (b bySourcePort) isBy() {
}

// BySourcePort creates an object to pass to Find to select tap flows by
// source port.
func BySourcePort(portID string) By {
	return bySourcePort(portID)
}

type byTapServiceID string

func (b byTapServiceID) isBy() {
}

// ByTapServiceID creates an object to pass to Find to select tap flows, or
// session identifier associations, by tap service.
func ByTapServiceID(serviceID string) By {
	return byTapServiceID(serviceID)
}

// Free selects the session identifier associations not bound to any tap
// service.
var Free = byTapServiceID("")

type byHost string

func (b byHost) isBy() {
}

// ByHost creates an object to pass to Find to select ports by binding host.
func ByHost(host string) By {
	return byHost(host)
}

type byStatus api.Status

func (b byStatus) isBy() {
}

// ByStatus creates an object to pass to Find to select by status.
func ByStatus(status api.Status) By {
	return byStatus(status)
}

type byTaasID string

func (b byTaasID) isBy() {
}

// ByTaasID creates an object to pass to Find to select an association by its
// session identifier.
func ByTaasID(taasID uint32) By {
	return byTaasID(strconv.FormatUint(uint64(taasID), 10))
}
