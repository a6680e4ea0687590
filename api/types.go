package api

import (
	"strconv"
	"time"
)

// Status is the lifecycle state of a mirror session.
type Status string

// Session states. INACTIVE is only ever reported by an agent after a
// successful teardown; it is never persisted.
const (
	StatusDown          Status = "DOWN"
	StatusActive        Status = "ACTIVE"
	StatusPendingDelete Status = "PENDING_DELETE"
	StatusError         Status = "ERROR"
	StatusInactive      Status = "INACTIVE"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDown, StatusActive, StatusPendingDelete, StatusError, StatusInactive:
		return true
	}
	return false
}

// Direction selects which traffic of a source port is mirrored.
type Direction string

// Directions, relative to the guest attached to the source port.
const (
	DirectionIn   Direction = "IN"
	DirectionOut  Direction = "OUT"
	DirectionBoth Direction = "BOTH"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionIn, DirectionOut, DirectionBoth:
		return true
	}
	return false
}

// Ingress reports whether traffic towards the port is mirrored.
func (d Direction) Ingress() bool {
	return d == DirectionIn || d == DirectionBoth
}

// Egress reports whether traffic from the port is mirrored.
func (d Direction) Egress() bool {
	return d == DirectionOut || d == DirectionBoth
}

// MirrorType is the encapsulation used by a tunnel mirror.
type MirrorType string

// Supported tunnel mirror encapsulations.
const (
	MirrorTypeERSPANv1 MirrorType = "erspanv1"
	MirrorTypeGRE      MirrorType = "gre"
)

// Valid reports whether m is a known mirror type.
func (m MirrorType) Valid() bool {
	return m == MirrorTypeERSPANv1 || m == MirrorTypeGRE
}

// Network types a port can be attached to.
const (
	NetworkTypeFlat   = "flat"
	NetworkTypeVLAN   = "vlan"
	NetworkTypeGRE    = "gre"
	NetworkTypeVXLAN  = "vxlan"
	NetworkTypeGeneve = "geneve"
)

// VNIC types. Only normal ports are plugged into Open vSwitch.
const (
	VNICNormal = "normal"
	VNICDirect = "direct"
)

// Meta holds the bookkeeping fields of every stored object.
type Meta struct {
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreObject is implemented by every object kept in the manager store.
type StoreObject interface {
	GetID() string
	GetMeta() Meta
	SetMeta(Meta)
	CopyStoreObject() StoreObject
}

// Port is a network port owned by the network layer. Mirror sessions
// reference ports as their source or destination.
type Port struct {
	ID          string `json:"id"`
	Tenant      string `json:"tenant_id"`
	Name        string `json:"name,omitempty"`
	Host        string `json:"host,omitempty"`
	MACAddress  string `json:"mac_address"`
	NetworkID   string `json:"network_id,omitempty"`
	NetworkType string `json:"network_type,omitempty"`
	VNICType    string `json:"vnic_type,omitempty"`
	// HybridPlug is set when the port is plugged through a Linux bridge
	// sitting between the guest and the integration bridge.
	HybridPlug bool `json:"ovs_hybrid_plug,omitempty"`
	Meta       Meta `json:"meta"`
}

// TapService is the destination of a switch-pipeline mirror session.
type TapService struct {
	ID          string `json:"id"`
	Tenant      string `json:"tenant_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	PortID      string `json:"port_id"`
	Status      Status `json:"status"`
	Meta        Meta   `json:"meta"`
}

// TapFlow attaches a source port to a TapService.
type TapFlow struct {
	ID           string    `json:"id"`
	Tenant       string    `json:"tenant_id"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	TapServiceID string    `json:"tap_service_id"`
	SourcePort   string    `json:"source_port"`
	Direction    Direction `json:"direction"`
	Status       Status    `json:"status"`
	VLANFilter   string    `json:"vlan_filter,omitempty"`
	Meta         Meta      `json:"meta"`
}

// TapMirror mirrors a port to a remote endpoint through GRE or ERSPAN
// tunnels, one per direction.
type TapMirror struct {
	ID          string               `json:"id"`
	Project     string               `json:"project_id"`
	Name        string               `json:"name,omitempty"`
	Description string               `json:"description,omitempty"`
	PortID      string               `json:"port_id"`
	Directions  map[Direction]uint32 `json:"directions"`
	RemoteIP    string               `json:"remote_ip"`
	MirrorType  MirrorType           `json:"mirror_type"`
	Meta        Meta                 `json:"meta"`
}

// TapIDAssociation binds a session identifier to the tap service owning it.
// A row with an empty TapServiceID is free.
type TapIDAssociation struct {
	TaasID       uint32 `json:"taas_id"`
	TapServiceID string `json:"tap_service_id,omitempty"`
	Meta         Meta   `json:"meta"`
}

// GetID implements StoreObject.
func (p *Port) GetID() string { return p.ID }

// GetMeta implements StoreObject.
func (p *Port) GetMeta() Meta { return p.Meta }

// SetMeta implements StoreObject.
func (p *Port) SetMeta(m Meta) { p.Meta = m }

// Copy returns a deep copy of the port.
func (p *Port) Copy() *Port {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// CopyStoreObject implements StoreObject.
func (p *Port) CopyStoreObject() StoreObject { return p.Copy() }

// GetID implements StoreObject.
func (s *TapService) GetID() string { return s.ID }

// GetMeta implements StoreObject.
func (s *TapService) GetMeta() Meta { return s.Meta }

// SetMeta implements StoreObject.
func (s *TapService) SetMeta(m Meta) { s.Meta = m }

// Copy returns a deep copy of the tap service.
func (s *TapService) Copy() *TapService {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// CopyStoreObject implements StoreObject.
func (s *TapService) CopyStoreObject() StoreObject { return s.Copy() }

// GetID implements StoreObject.
func (f *TapFlow) GetID() string { return f.ID }

// GetMeta implements StoreObject.
func (f *TapFlow) GetMeta() Meta { return f.Meta }

// SetMeta implements StoreObject.
func (f *TapFlow) SetMeta(m Meta) { f.Meta = m }

// Copy returns a deep copy of the tap flow.
func (f *TapFlow) Copy() *TapFlow {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// CopyStoreObject implements StoreObject.
func (f *TapFlow) CopyStoreObject() StoreObject { return f.Copy() }

// GetID implements StoreObject.
func (m *TapMirror) GetID() string { return m.ID }

// GetMeta implements StoreObject.
func (m *TapMirror) GetMeta() Meta { return m.Meta }

// SetMeta implements StoreObject.
func (m *TapMirror) SetMeta(meta Meta) { m.Meta = meta }

// Copy returns a deep copy of the tap mirror.
func (m *TapMirror) Copy() *TapMirror {
	if m == nil {
		return nil
	}
	c := *m
	if m.Directions != nil {
		c.Directions = make(map[Direction]uint32, len(m.Directions))
		for d, key := range m.Directions {
			c.Directions[d] = key
		}
	}
	return &c
}

// CopyStoreObject implements StoreObject.
func (m *TapMirror) CopyStoreObject() StoreObject { return m.Copy() }

// SortedDirections returns the configured directions in a stable order.
func (m *TapMirror) SortedDirections() []Direction {
	var out []Direction
	for _, d := range []Direction{DirectionIn, DirectionOut, DirectionBoth} {
		if _, ok := m.Directions[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// GetID implements StoreObject. Associations are keyed by their identifier.
func (a *TapIDAssociation) GetID() string { return strconv.FormatUint(uint64(a.TaasID), 10) }

// GetMeta implements StoreObject.
func (a *TapIDAssociation) GetMeta() Meta { return a.Meta }

// SetMeta implements StoreObject.
func (a *TapIDAssociation) SetMeta(m Meta) { a.Meta = m }

// Copy returns a copy of the association.
func (a *TapIDAssociation) Copy() *TapIDAssociation {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// CopyStoreObject implements StoreObject.
func (a *TapIDAssociation) CopyStoreObject() StoreObject { return a.Copy() }

// Bound reports whether the identifier is owned by a tap service.
func (a *TapIDAssociation) Bound() bool { return a.TapServiceID != "" }
