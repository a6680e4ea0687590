package ovs

import (
	"context"
	"strings"
	"testing"

	"github.com/moby/tapkit/agent/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls   []string
	outputs map[string]string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, call)
	for prefix, out := range r.outputs {
		if strings.HasPrefix(call, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func TestSwitchSink(t *testing.T) {
	r := &fakeRunner{}
	s := New(DefaultConfig(), WithRunner(r))
	ctx := context.Background()

	edits := append(pipeline.CreateService(pipeline.Ports{PatchIntTap: 10, PatchTapInt: 1}, 3900,
		pipeline.Endpoint{OFPort: 7, LocalVLAN: 3})[:2], pipeline.Flood([]pipeline.Peer{{Name: "vxlan-1", OFPort: 3}})...)
	edits = append(edits, pipeline.DeleteService(pipeline.Ports{PatchIntTap: 10}, 3900)[0])
	require.NoError(t, pipeline.Apply(ctx, s, edits))

	assert.Equal(t, []string{
		"ovs-ofctl add-flow br-int table=0,priority=25,in_port=10,dl_vlan=3900,actions=mod_vlan_vid:3,output:7",
		"ovs-ofctl add-flow br-tap table=1,priority=1,dl_vlan=3900,actions=output:in_port",
		"ovs-ofctl mod-flows br-tun table=31,actions=move:NXM_OF_VLAN_TCI[0..11]->NXM_NX_TUN_ID[0..11],mod_vlan_vid:1,output:3",
		"ovs-ofctl del-flows br-int table=0,in_port=10,dl_vlan=3900",
	}, r.calls)
}

func TestPrepare(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"ovs-vsctl --timeout=10 get Interface patch-int-tap ofport": "10\n",
		"ovs-vsctl --timeout=10 get Interface patch-tap-int ofport": "1\n",
		"ovs-vsctl --timeout=10 get Interface patch-tap-tun ofport": "2\n",
		"ovs-vsctl --timeout=10 get Interface patch-tun-tap ofport": "5\n",
	}}
	s := New(DefaultConfig(), WithRunner(r))

	ports, err := s.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.Ports{PatchIntTap: 10, PatchTapInt: 1, PatchTapTun: 2, PatchTunTap: 5}, ports)
	assert.Equal(t, "ovs-vsctl --timeout=10 --may-exist add-br br-tap", r.calls[0])
	assert.Equal(t, "ovs-vsctl --timeout=10 --may-exist add-port br-int patch-int-tap -- set Interface patch-int-tap type=patch options:peer=patch-tap-int", r.calls[1])
}

func TestPrepareMissingOFPort(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"ovs-vsctl --timeout=10 get Interface": "-1",
	}}
	s := New(DefaultConfig(), WithRunner(r))
	_, err := s.Prepare(context.Background())
	assert.Error(t, err)
}

func TestPeers(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"ovs-vsctl --timeout=10 list-ports br-tun":                   "patch-int\npatch-tun-tap\nvxlan-0a000002\ngre-0a000003\n",
		"ovs-vsctl --timeout=10 get Interface vxlan-0a000002 ofport": "4",
		"ovs-vsctl --timeout=10 get Interface gre-0a000003 ofport":   "3",
	}}
	s := New(DefaultConfig(), WithRunner(r))

	peers, err := s.Peers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Peer{{Name: "gre-0a000003", OFPort: 3}, {Name: "vxlan-0a000002", OFPort: 4}}, peers)
}

func TestVifPortByID(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"ovs-vsctl --timeout=10 --bare --columns=name,ofport find Interface external_ids:iface-id=port1": "qvo1234\n7\n\n",
		"ovs-vsctl --timeout=10 get Port qvo1234 tag":                                                    "3\n",
	}}
	s := New(DefaultConfig(), WithRunner(r))
	ctx := context.Background()

	vif, err := s.VifPortByID(ctx, "port1")
	require.NoError(t, err)
	assert.Equal(t, VifPort{Name: "qvo1234", OFPort: 7}, vif)

	tag, err := s.PortTag(ctx, vif.Name)
	require.NoError(t, err)
	assert.Equal(t, 3, tag)

	_, err = s.VifPortByID(ctx, "missing")
	assert.Error(t, err)
}
