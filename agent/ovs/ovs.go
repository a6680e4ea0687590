// Package ovs drives the Open vSwitch bridges of a host through ovs-vsctl and
// ovs-ofctl.
package ovs

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/moby/tapkit/agent/pipeline"
	"github.com/pkg/errors"
)

// Runner runs a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Config names the bridges of the host.
type Config struct {
	IntegrationBridge string `yaml:"integration_bridge"`
	TapBridge         string `yaml:"tap_bridge"`
	TunnelBridge      string `yaml:"tunnel_bridge"`
}

// DefaultConfig returns the usual bridge names.
func DefaultConfig() Config {
	return Config{
		IntegrationBridge: "br-int",
		TapBridge:         "br-tap",
		TunnelBridge:      "br-tun",
	}
}

// Switch is the set of bridges of a host. It implements pipeline.Sink.
type Switch struct {
	config Config
	runner Runner
}

// Option configures a Switch.
type Option func(*Switch)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(s *Switch) {
		s.runner = r
	}
}

// New returns a Switch over the bridges named by config.
func New(config Config, opts ...Option) *Switch {
	s := &Switch{
		config: config,
		runner: execRunner{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ pipeline.Sink = &Switch{}

func (s *Switch) bridgeName(b pipeline.Bridge) (string, error) {
	switch b {
	case pipeline.BridgeInt:
		return s.config.IntegrationBridge, nil
	case pipeline.BridgeTap:
		return s.config.TapBridge, nil
	case pipeline.BridgeTun:
		return s.config.TunnelBridge, nil
	}
	return "", errors.Errorf("unknown bridge %q", b)
}

func (s *Switch) ofctl(ctx context.Context, cmd string, bridge pipeline.Bridge, flow string) error {
	name, err := s.bridgeName(bridge)
	if err != nil {
		return err
	}
	_, err = s.runner.Run(ctx, "ovs-ofctl", cmd, name, flow)
	return err
}

// AddFlow implements pipeline.Sink.
func (s *Switch) AddFlow(ctx context.Context, bridge pipeline.Bridge, flow string) error {
	return s.ofctl(ctx, "add-flow", bridge, flow)
}

// DeleteFlows implements pipeline.Sink.
func (s *Switch) DeleteFlows(ctx context.Context, bridge pipeline.Bridge, match string) error {
	return s.ofctl(ctx, "del-flows", bridge, match)
}

// ModFlows implements pipeline.Sink.
func (s *Switch) ModFlows(ctx context.Context, bridge pipeline.Bridge, flow string) error {
	return s.ofctl(ctx, "mod-flows", bridge, flow)
}

func (s *Switch) vsctl(ctx context.Context, args ...string) (string, error) {
	out, err := s.runner.Run(ctx, "ovs-vsctl", append([]string{"--timeout=10"}, args...)...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CreateBridge creates a bridge unless it exists.
func (s *Switch) CreateBridge(ctx context.Context, name string) error {
	_, err := s.vsctl(ctx, "--may-exist", "add-br", name)
	return err
}

// AddPatchPort adds a patch port named name to bridge, peered with peer.
func (s *Switch) AddPatchPort(ctx context.Context, bridge, name, peer string) error {
	_, err := s.vsctl(ctx, "--may-exist", "add-port", bridge, name,
		"--", "set", "Interface", name, "type=patch", "options:peer="+peer)
	return err
}

// OFPort returns the OpenFlow port number of an interface.
func (s *Switch) OFPort(ctx context.Context, name string) (int, error) {
	out, err := s.vsctl(ctx, "get", "Interface", name, "ofport")
	if err != nil {
		return 0, err
	}
	return parseOFPort(name, out)
}

func parseOFPort(name, out string) (int, error) {
	ofport, err := strconv.Atoi(out)
	if err != nil || ofport <= 0 {
		return 0, errors.Errorf("interface %s has no valid ofport (%q)", name, out)
	}
	return ofport, nil
}

// ListPorts returns the names of the ports of bridge.
func (s *Switch) ListPorts(ctx context.Context, bridge string) ([]string, error) {
	out, err := s.vsctl(ctx, "list-ports", bridge)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// PortTag returns the local VLAN tag of a port of the integration bridge.
func (s *Switch) PortTag(ctx context.Context, name string) (int, error) {
	out, err := s.vsctl(ctx, "get", "Port", name, "tag")
	if err != nil {
		return 0, err
	}
	tag, err := strconv.Atoi(out)
	if err != nil {
		return 0, errors.Errorf("port %s has no tag (%q)", name, out)
	}
	return tag, nil
}

// VifPort is a VM interface plugged into the integration bridge.
type VifPort struct {
	Name   string
	OFPort int
}

// VifPortByID finds the interface of a network port by its iface-id.
func (s *Switch) VifPortByID(ctx context.Context, portID string) (VifPort, error) {
	out, err := s.vsctl(ctx, "--bare", "--columns=name,ofport", "find", "Interface",
		"external_ids:iface-id="+portID)
	if err != nil {
		return VifPort{}, err
	}
	var fields []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fields = append(fields, line)
		}
	}
	if len(fields) < 2 {
		return VifPort{}, errors.Errorf("no interface found for port %s", portID)
	}
	ofport, err := parseOFPort(fields[0], fields[1])
	if err != nil {
		return VifPort{}, err
	}
	return VifPort{Name: fields[0], OFPort: ofport}, nil
}

// Prepare creates the tap bridge, joins it to the integration and tunnel
// bridges, and returns the port numbers of the patch ports.
func (s *Switch) Prepare(ctx context.Context) (pipeline.Ports, error) {
	var ports pipeline.Ports

	if err := s.CreateBridge(ctx, s.config.TapBridge); err != nil {
		return ports, err
	}
	for _, p := range []struct{ bridge, name, peer string }{
		{s.config.IntegrationBridge, pipeline.PatchIntTap, pipeline.PatchTapInt},
		{s.config.TapBridge, pipeline.PatchTapInt, pipeline.PatchIntTap},
		{s.config.TunnelBridge, pipeline.PatchTunTap, pipeline.PatchTapTun},
		{s.config.TapBridge, pipeline.PatchTapTun, pipeline.PatchTunTap},
	} {
		if err := s.AddPatchPort(ctx, p.bridge, p.name, p.peer); err != nil {
			return ports, errors.Wrapf(err, "failed to add patch port %s", p.name)
		}
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{pipeline.PatchIntTap, &ports.PatchIntTap},
		{pipeline.PatchTapInt, &ports.PatchTapInt},
		{pipeline.PatchTapTun, &ports.PatchTapTun},
		{pipeline.PatchTunTap, &ports.PatchTunTap},
	} {
		ofport, err := s.OFPort(ctx, p.name)
		if err != nil {
			return ports, err
		}
		*p.dst = ofport
	}
	return ports, nil
}

// Peers returns the tunnel ports of the tunnel bridge.
func (s *Switch) Peers(ctx context.Context) ([]pipeline.Peer, error) {
	names, err := s.ListPorts(ctx, s.config.TunnelBridge)
	if err != nil {
		return nil, err
	}
	ports := make(map[string]int, len(names))
	for _, name := range names {
		if name == pipeline.PatchTunInt || name == pipeline.PatchTunTap {
			continue
		}
		ofport, err := s.OFPort(ctx, name)
		if err != nil {
			return nil, err
		}
		ports[name] = ofport
	}
	return pipeline.TunnelPeers(ports), nil
}
