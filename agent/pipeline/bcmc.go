package pipeline

import (
	"fmt"
	"sort"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

// Affiliations tracks which sessions mirror the ingress broadcast and
// multicast traffic of each local VLAN. It is not safe for concurrent use.
type Affiliations struct {
	vlans map[int]mapset.Set[uint32]
}

// NewAffiliations returns an empty tracker.
func NewAffiliations() *Affiliations {
	return &Affiliations{vlans: make(map[int]mapset.Set[uint32])}
}

// Affiliate adds taasID to vlan and returns the sessions now affiliated with
// it.
func (a *Affiliations) Affiliate(vlan int, taasID uint32) []uint32 {
	set, ok := a.vlans[vlan]
	if !ok {
		set = mapset.NewThreadUnsafeSet[uint32]()
		a.vlans[vlan] = set
	}
	set.Add(taasID)
	return a.List(vlan)
}

// Unaffiliate removes taasID from vlan and returns the sessions still
// affiliated with it.
func (a *Affiliations) Unaffiliate(vlan int, taasID uint32) []uint32 {
	set, ok := a.vlans[vlan]
	if !ok {
		return nil
	}
	set.Remove(taasID)
	if set.Cardinality() == 0 {
		delete(a.vlans, vlan)
		return nil
	}
	return a.List(vlan)
}

// List returns the sessions affiliated with vlan in ascending order.
func (a *Affiliations) List(vlan int) []uint32 {
	set, ok := a.vlans[vlan]
	if !ok {
		return nil
	}
	ids := set.ToSlice()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IngressBCMC copies the broadcast and multicast traffic entering vlan into
// every session of taasIDs, through port out. With no session left the flow
// is removed.
func IngressBCMC(vlan int, taasIDs []uint32, out int) []FlowEdit {
	m := match("dl_vlan", strconv.Itoa(vlan), "dl_dst", bcmcMask)
	if len(taasIDs) == 0 {
		return []FlowEdit{del(BridgeInt, 0, m)}
	}
	actions := []string{"normal"}
	for _, id := range taasIDs {
		actions = append(actions, fmt.Sprintf("mod_vlan_vid:%d", id), output(out))
	}
	return []FlowEdit{add(BridgeInt, 0, 20, m, actions...)}
}
