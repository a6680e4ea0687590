// Package config holds the settings of the tapd manager and agent. Values
// come from an optional YAML file; command line flags override them.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/moby/tapkit/errdefs"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults shared by the manager and the agent.
const (
	DefaultListenAddr       = "0.0.0.0:4242"
	DefaultVLANRangeStart   = 3900
	DefaultVLANRangeEnd     = 4000
	DefaultPeriodicInterval = 5 * time.Second
	DefaultIntegrationBr    = "br-int"
	DefaultTapBr            = "br-tap"
	DefaultTunnelBr         = "br-tun"
)

// TLS names the PEM files used to secure a gRPC connection. TLS is off when
// Cert is empty.
type TLS struct {
	CA   string `yaml:"ca,omitempty"`
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// Enabled reports whether certificates are configured.
func (t TLS) Enabled() bool {
	return t.Cert != ""
}

// Manager configures tapd manager.
type Manager struct {
	ListenAddr        string `yaml:"listen_addr"`
	MetricsListenAddr string `yaml:"metrics_listen_addr,omitempty"`
	StateDir          string `yaml:"state_dir"`
	Driver            string `yaml:"driver"`
	VLANRangeStart    uint32 `yaml:"vlan_range_start"`
	VLANRangeEnd      uint32 `yaml:"vlan_range_end"`
	TLS               TLS    `yaml:"tls,omitempty"`

	OVN struct {
		Endpoint string `yaml:"endpoint,omitempty"`
		TLS      TLS    `yaml:"tls,omitempty"`
	} `yaml:"ovn,omitempty"`
}

// Agent configures tapd agent.
type Agent struct {
	Hostname         string        `yaml:"hostname,omitempty"`
	Manager          string        `yaml:"manager"`
	StateDir         string        `yaml:"state_dir"`
	IntegrationBr    string        `yaml:"integration_bridge"`
	TapBr            string        `yaml:"tap_bridge"`
	TunnelBr         string        `yaml:"tunnel_bridge"`
	PeriodicInterval time.Duration `yaml:"periodic_interval"`
	EnableBCMC       bool          `yaml:"enable_bcmc"`
	TLS              TLS           `yaml:"tls,omitempty"`
}

// DefaultManager returns the manager defaults.
func DefaultManager() *Manager {
	return &Manager{
		ListenAddr:     DefaultListenAddr,
		StateDir:       "/var/lib/tapkit/manager",
		Driver:         "pipeline",
		VLANRangeStart: DefaultVLANRangeStart,
		VLANRangeEnd:   DefaultVLANRangeEnd,
	}
}

// DefaultAgent returns the agent defaults.
func DefaultAgent() *Agent {
	hostname, _ := os.Hostname()
	return &Agent{
		Hostname:         hostname,
		Manager:          "localhost:4242",
		StateDir:         "/var/lib/tapkit/agent",
		IntegrationBr:    DefaultIntegrationBr,
		TapBr:            DefaultTapBr,
		TunnelBr:         DefaultTunnelBr,
		PeriodicInterval: DefaultPeriodicInterval,
	}
}

// Load decodes the YAML file at path on top of the values already in v.
// Unknown keys are rejected.
func Load(path string, v interface{}) error {
	p, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if len(bytes.TrimSpace(p)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(p))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// Validate checks the manager settings.
func (c *Manager) Validate() error {
	if c.ListenAddr == "" {
		return errdefs.ErrInvalidArgument("listen address is required")
	}
	if c.StateDir == "" {
		return errdefs.ErrInvalidArgument("state directory is required")
	}
	if c.VLANRangeStart == 0 || c.VLANRangeStart >= c.VLANRangeEnd {
		return errdefs.ErrInvalidArgument("invalid vlan range [%d, %d)", c.VLANRangeStart, c.VLANRangeEnd)
	}
	if c.Driver == "tunnel" && c.OVN.Endpoint == "" {
		return errdefs.ErrInvalidArgument("the tunnel driver requires an OVN northbound endpoint")
	}
	return nil
}

// Validate checks the agent settings.
func (c *Agent) Validate() error {
	if c.Hostname == "" {
		return errdefs.ErrInvalidArgument("hostname is required")
	}
	if c.Manager == "" {
		return errdefs.ErrInvalidArgument("manager address is required")
	}
	if c.PeriodicInterval <= 0 {
		return errdefs.ErrInvalidArgument("periodic interval must be positive")
	}
	if c.IntegrationBr == "" || c.TapBr == "" || c.TunnelBr == "" {
		return errdefs.ErrInvalidArgument("bridge names are required")
	}
	return nil
}
