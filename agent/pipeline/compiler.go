package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/moby/tapkit/api"
)

// Ports holds the OpenFlow port numbers of the patch ports joining the
// bridges.
type Ports struct {
	// PatchIntTap is patch-int-tap on br-int.
	PatchIntTap int
	// PatchTapInt is patch-tap-int on br-tap.
	PatchTapInt int
	// PatchTapTun is patch-tap-tun on br-tap.
	PatchTapTun int
	// PatchTunTap is patch-tun-tap on br-tun.
	PatchTunTap int
}

// Peer is a tunnel port of br-tun leading to another host.
type Peer struct {
	Name   string
	OFPort int
}

// TunnelPeers returns the tunnel ports among the ports of br-tun, ordered by
// port number. The patch ports are not peers.
func TunnelPeers(ports map[string]int) []Peer {
	var peers []Peer
	for name, ofport := range ports {
		if name == PatchTunInt || name == PatchTunTap {
			continue
		}
		peers = append(peers, Peer{Name: name, OFPort: ofport})
	}
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].OFPort != peers[j].OFPort {
			return peers[i].OFPort < peers[j].OFPort
		}
		return peers[i].Name < peers[j].Name
	})
	return peers
}

// Endpoint is a VM port as seen on br-int.
type Endpoint struct {
	OFPort int
	// LocalVLAN is the tag of the port on br-int.
	LocalVLAN int
	MAC       string
	// NetworkType is the segmentation type of the port's network.
	NetworkType string
}

// Setup purges the tables owned by the pipeline and installs the flows that
// do not depend on any session.
func Setup(ports Ports, peers []Peer) []FlowEdit {
	edits := []FlowEdit{
		del(BridgeTap, 0, nil),
		del(BridgeTap, TableRecvLocal, nil),
		del(BridgeTap, TableRecvRemote, nil),

		del(BridgeTun, 0, match("in_port", strconv.Itoa(ports.PatchTunTap))),
		del(BridgeTun, TableSendUnicast, nil),
		del(BridgeTun, TableSendFlood, nil),
		del(BridgeTun, TableClassify, nil),
		del(BridgeTun, TableDstCheck, nil),
		del(BridgeTun, TableSrcCheck, nil),
		del(BridgeTun, TableDstRespond, nil),
		del(BridgeTun, TableSrcRespond, nil),

		add(BridgeTap, 0, 1, match("in_port", strconv.Itoa(ports.PatchTapInt)), resubmit(TableRecvLocal)),
		add(BridgeTap, 0, 1, match("in_port", strconv.Itoa(ports.PatchTapTun)), resubmit(TableRecvRemote)),
		add(BridgeTap, 0, 0, nil, "drop"),
		add(BridgeTap, TableRecvLocal, 0, nil, output(ports.PatchTapTun)),
		add(BridgeTap, TableRecvRemote, 0, nil, "drop"),

		add(BridgeTun, 0, 1, match("in_port", strconv.Itoa(ports.PatchTunTap)), resubmit(TableSendUnicast)),
		add(BridgeTun, TableSendUnicast, 0, nil, resubmit(TableSendFlood)),
	}

	if actions := floodActions(peers); actions != nil {
		edits = append(edits, add(BridgeTun, TableSendFlood, 0, nil, actions...))
	}

	edits = append(edits,
		add(BridgeTun, TableClassify, 2, match("reg0", strconv.Itoa(classUnicastLocal)), resubmit(TableDstCheck)),
		add(BridgeTun, TableClassify, 1, match("reg0", strconv.Itoa(classFlood)), resubmit(TableDstCheck)),
		add(BridgeTun, TableClassify, 1, match("reg0", strconv.Itoa(classUnicastSource)), resubmit(TableSrcCheck)),
		add(BridgeTun, TableDstCheck, 0, nil, "drop"),
		add(BridgeTun, TableSrcCheck, 0, nil, "drop"),
		add(BridgeTun, TableDstRespond, 2, match("reg0", strconv.Itoa(classUnicastLocal)), output(ports.PatchTunTap)),
		add(BridgeTun, TableDstRespond, 1, match("reg0", strconv.Itoa(classFlood)),
			output(ports.PatchTunTap),
			"move:NXM_OF_VLAN_TCI[0..11]->NXM_NX_TUN_ID[0..11]",
			fmt.Sprintf("mod_vlan_vid:%d", classUnicastSource),
			"output:in_port"),
		add(BridgeTun, TableSrcRespond, 1, nil, learnAction()),
	)
	return edits
}

func learnAction() string {
	return fmt.Sprintf("learn(table=%d,hard_timeout=%d,priority=1,"+
		"NXM_OF_VLAN_TCI[0..11],"+
		"load:NXM_OF_VLAN_TCI[0..11]->NXM_NX_TUN_ID[0..11],"+
		"load:0->NXM_OF_VLAN_TCI[0..11],"+
		"output:NXM_OF_IN_PORT[])", TableSendUnicast, learnTimeout)
}

func floodActions(peers []Peer) []string {
	if len(peers) == 0 {
		return nil
	}
	actions := []string{
		"move:NXM_OF_VLAN_TCI[0..11]->NXM_NX_TUN_ID[0..11]",
		fmt.Sprintf("mod_vlan_vid:%d", classFlood),
	}
	for _, p := range peers {
		actions = append(actions, output(p.OFPort))
	}
	return actions
}

// Flood rewrites the flood flow of br-tun so it reaches every peer. It
// returns nothing when there is no peer.
func Flood(peers []Peer) []FlowEdit {
	actions := floodActions(peers)
	if actions == nil {
		return nil
	}
	return []FlowEdit{{
		Bridge:  BridgeTun,
		Op:      OpModify,
		Table:   TableSendFlood,
		Actions: actions,
	}}
}

func taas(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// tunnelIngress moves the session identifier from the tunnel key to the VLAN
// tag, saving the sender's discriminator in reg0.
func tunnelIngress(taasID uint32) []FlowEdit {
	edits := make([]FlowEdit, 0, len(TunnelTables))
	for _, tt := range TunnelTables {
		edits = append(edits, add(BridgeTun, tt.Table, 1, match("tun_id", taas(taasID)),
			"move:NXM_OF_VLAN_TCI[0..11]->NXM_NX_REG0[0..11]",
			"move:NXM_NX_TUN_ID[0..11]->NXM_OF_VLAN_TCI[0..11]",
			resubmit(TableClassify)))
	}
	return edits
}

func tunnelIngressTeardown(taasID uint32) []FlowEdit {
	edits := make([]FlowEdit, 0, len(TunnelTables))
	for _, tt := range TunnelTables {
		edits = append(edits, del(BridgeTun, tt.Table, match("tun_id", taas(taasID))))
	}
	return edits
}

// CreateService installs the flows delivering the traffic of session taasID
// to the destination port dst.
func CreateService(ports Ports, taasID uint32, dst Endpoint) []FlowEdit {
	edits := []FlowEdit{
		add(BridgeInt, 0, 25, match("in_port", strconv.Itoa(ports.PatchIntTap), "dl_vlan", taas(taasID)),
			fmt.Sprintf("mod_vlan_vid:%d", dst.LocalVLAN), output(dst.OFPort)),
		add(BridgeTap, TableRecvLocal, 1, match("dl_vlan", taas(taasID)), "output:in_port"),
		add(BridgeTap, TableRecvRemote, 1, match("dl_vlan", taas(taasID)), output(ports.PatchTapInt)),
	}
	edits = append(edits, tunnelIngress(taasID)...)
	edits = append(edits, add(BridgeTun, TableDstCheck, 1, match("tun_id", taas(taasID)), resubmit(TableDstRespond)))
	return edits
}

// DeleteService removes the flows of session taasID. It also clears the
// source check a flow of the same session may have left behind.
func DeleteService(ports Ports, taasID uint32) []FlowEdit {
	edits := []FlowEdit{
		del(BridgeInt, 0, match("in_port", strconv.Itoa(ports.PatchIntTap), "dl_vlan", taas(taasID))),
		del(BridgeTap, TableRecvLocal, match("dl_vlan", taas(taasID))),
		del(BridgeTap, TableRecvRemote, match("dl_vlan", taas(taasID))),
	}
	edits = append(edits, tunnelIngressTeardown(taasID)...)
	edits = append(edits,
		del(BridgeTun, TableDstCheck, match("tun_id", taas(taasID))),
		del(BridgeTun, TableSrcCheck, match("tun_id", taas(taasID))),
	)
	return edits
}

// FlowSpec is a tap flow resolved on the host of its source port.
type FlowSpec struct {
	TaasID    uint32
	Direction api.Direction
	Source    Endpoint
}

func (f FlowSpec) copyActions(ports Ports) []string {
	var actions []string
	actions = append(actions, "normal")
	if f.Source.NetworkType == api.NetworkTypeVLAN {
		actions = append(actions, "strip_vlan")
	}
	return append(actions,
		fmt.Sprintf("mod_vlan_vid:%d", f.TaasID),
		output(ports.PatchIntTap))
}

// CreateFlow installs the flows copying the traffic of a source port into
// the session.
func CreateFlow(ports Ports, f FlowSpec) []FlowEdit {
	var edits []FlowEdit
	if f.Direction.Egress() {
		edits = append(edits, add(BridgeInt, 0, 20, match("in_port", strconv.Itoa(f.Source.OFPort)), f.copyActions(ports)...))
	}
	if f.Direction.Ingress() {
		edits = append(edits, add(BridgeInt, 0, 20, match("dl_dst", strings.ToLower(f.Source.MAC)), f.copyActions(ports)...))
	}
	edits = append(edits, tunnelIngress(f.TaasID)...)
	edits = append(edits, add(BridgeTun, TableSrcCheck, 1, match("tun_id", taas(f.TaasID)), resubmit(TableSrcRespond)))
	return edits
}

// DeleteFlow removes the flows copying the traffic of a source port. The
// tunnel flows of the session are shared by every flow of the session on
// this host, and by the service itself when its destination is local, so
// they are removed only when lastOnHost is set and serviceLocal is not.
func DeleteFlow(ports Ports, f FlowSpec, lastOnHost, serviceLocal bool) []FlowEdit {
	var edits []FlowEdit
	if f.Direction.Egress() {
		edits = append(edits, del(BridgeInt, 0, match("in_port", strconv.Itoa(f.Source.OFPort))))
	}
	if f.Direction.Ingress() {
		edits = append(edits, del(BridgeInt, 0, match("dl_dst", strings.ToLower(f.Source.MAC))))
	}
	if lastOnHost && !serviceLocal {
		edits = append(edits, tunnelIngressTeardown(f.TaasID)...)
		edits = append(edits, del(BridgeTun, TableSrcCheck, match("tun_id", taas(f.TaasID))))
	}
	return edits
}
