package pipeline

// Bridge is the role a bridge plays in the pipeline. The sink maps a role to
// the actual bridge name.
type Bridge string

func (b Bridge) String() string {
	return string(b)
}

// Bridge roles.
const (
	BridgeInt Bridge = "int"
	BridgeTap Bridge = "tap"
	BridgeTun Bridge = "tun"
)

// Tables of the tap bridge.
const (
	TableRecvLocal  = 1
	TableRecvRemote = 2
)

// Tables of the tunnel bridge.
const (
	TableSendUnicast = 30
	TableSendFlood   = 31
	TableClassify    = 35
	TableDstCheck    = 36
	TableSrcCheck    = 37
	TableDstRespond  = 38
	TableSrcRespond  = 39
)

// Patch port names.
const (
	PatchIntTap = "patch-int-tap"
	PatchTapInt = "patch-tap-int"
	PatchTapTun = "patch-tap-tun"
	PatchTunTap = "patch-tun-tap"

	// PatchTunInt is the br-tun side of the br-int to br-tun patch. It is
	// owned by the network agent, not by this pipeline.
	PatchTunInt = "patch-int"
)

// TunnelTable is a per tunnel type ingress table of the tunnel bridge.
type TunnelTable struct {
	NetworkType string
	Table       int
}

// TunnelTables lists the tunnel ingress tables in the order flows are
// installed.
var TunnelTables = []TunnelTable{
	{NetworkType: "gre", Table: 3},
	{NetworkType: "vxlan", Table: 4},
	{NetworkType: "geneve", Table: 6},
}

// Discriminator values kept in reg0 by the tunnel ingress tables. The value
// is the VLAN id the sending host wrote before encapsulating.
const (
	// classUnicastLocal is traffic for a destination known to be on this
	// host.
	classUnicastLocal = 0
	// classFlood is traffic sent to every peer.
	classFlood = 1
	// classUnicastSource is traffic needing the source check.
	classUnicastSource = 2
)

const (
	bcmcMask = "01:00:00:00:00:00/01:00:00:00:00:00"

	learnTimeout = 60
)
