package api

import (
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/moby/tapkit/errdefs"
)

const maxVLANID = 4095

// ParseVLANFilter parses a VLAN filter such as "9,18-27" into the sorted list
// of VLAN ids it selects. An empty filter selects nothing and is valid.
func ParseVLANFilter(filter string) ([]int, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(filter, ",") {
		part = strings.TrimSpace(part)
		lo, hi, err := parseVLANRange(part)
		if err != nil {
			return nil, err
		}
		for v := lo; v <= hi; v++ {
			seen[v] = struct{}{}
		}
	}

	ids := make([]int, 0, len(seen))
	for v := range seen {
		ids = append(ids, v)
	}
	sort.Ints(ids)
	return ids, nil
}

func parseVLANRange(part string) (int, int, error) {
	bounds := strings.SplitN(part, "-", 2)
	lo, err := parseVLANID(bounds[0])
	if err != nil {
		return 0, 0, err
	}
	if len(bounds) == 1 {
		return lo, lo, nil
	}
	hi, err := parseVLANID(bounds[1])
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, errdefs.ErrInvalidArgument("vlan range %q is reversed", part)
	}
	return lo, hi, nil
}

func parseVLANID(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 || v > maxVLANID {
		return 0, errdefs.ErrInvalidArgument("vlan id %q must be an integer in [0, %d]", s, maxVLANID)
	}
	return v, nil
}

// ValidateTapService checks the fields a client must provide.
func ValidateTapService(s *TapService) error {
	if s == nil {
		return errdefs.ErrInvalidArgument("tap service is required")
	}
	if s.Tenant == "" {
		return errdefs.ErrInvalidArgument("tap service tenant is required")
	}
	if s.PortID == "" {
		return errdefs.ErrInvalidArgument("tap service port is required")
	}
	return nil
}

// ValidateTapFlow checks the fields a client must provide.
func ValidateTapFlow(f *TapFlow) error {
	if f == nil {
		return errdefs.ErrInvalidArgument("tap flow is required")
	}
	if f.Tenant == "" {
		return errdefs.ErrInvalidArgument("tap flow tenant is required")
	}
	if f.TapServiceID == "" || f.SourcePort == "" {
		return errdefs.ErrInvalidArgument("tap flow requires a tap service and a source port")
	}
	if !f.Direction.Valid() {
		return errdefs.ErrInvalidArgument("tap flow direction %q is not one of IN, OUT, BOTH", f.Direction)
	}
	if _, err := ParseVLANFilter(f.VLANFilter); err != nil {
		return err
	}
	return nil
}

// ValidateTapMirror checks the fields a client must provide.
func ValidateTapMirror(m *TapMirror) error {
	if m == nil {
		return errdefs.ErrInvalidArgument("tap mirror is required")
	}
	if m.Project == "" || m.PortID == "" {
		return errdefs.ErrInvalidArgument("tap mirror requires a project and a port")
	}
	if len(m.Directions) == 0 {
		return errdefs.ErrInvalidArgument("tap mirror requires at least one direction")
	}
	keys := make(map[uint32]Direction, len(m.Directions))
	for d, key := range m.Directions {
		if d != DirectionIn && d != DirectionOut {
			return errdefs.ErrInvalidArgument("tap mirror direction %q is not one of IN, OUT", d)
		}
		if other, dup := keys[key]; dup {
			return errdefs.ErrInvalidArgument("tunnel id %d used for both %s and %s", key, other, d)
		}
		keys[key] = d
	}
	if net.ParseIP(m.RemoteIP) == nil {
		return errdefs.ErrInvalidArgument("remote ip %q is not an IP address", m.RemoteIP)
	}
	if !m.MirrorType.Valid() {
		return errdefs.ErrInvalidArgument("mirror type %q is not one of erspanv1, gre", m.MirrorType)
	}
	return nil
}

// ValidatePort checks the fields the network layer must provide.
func ValidatePort(p *Port) error {
	if p == nil || p.ID == "" || p.Tenant == "" {
		return errdefs.ErrInvalidArgument("port requires an id and a tenant")
	}
	if p.MACAddress != "" {
		if _, err := net.ParseMAC(p.MACAddress); err != nil {
			return errdefs.ErrInvalidArgument("port mac address %q: %v", p.MACAddress, err)
		}
	}
	return nil
}
