package agent

import (
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"google.golang.org/grpc"
)

// driverType is announced to the manager on registration.
const driverType = "ovs"

const defaultPeriodicInterval = 5 * time.Second

// Config provides values for an Agent.
type Config struct {
	// Host is the name the manager places sessions on.
	Host string

	// Addr is the address of the manager.
	Addr string

	// DialOptions carry the transport credentials used to reach the manager.
	DialOptions []grpc.DialOption

	// Switch programs the local dataplane.
	Switch Switch

	// DB is the database used to keep what was programmed across restarts.
	DB *bolt.DB

	// EnableBCMC installs broadcast and multicast copy flows for ingress
	// mirrors.
	EnableBCMC bool

	// PeriodicInterval is the period of the flood flow refresh.
	PeriodicInterval time.Duration

	// Clock is replaced in tests.
	Clock clock.Clock
}

func (c *Config) validate() error {
	if c.Host == "" {
		return errors.New("agent: host required")
	}
	if c.Addr == "" {
		return errors.New("agent: manager address required")
	}
	if c.Switch == nil {
		return errors.New("agent: switch required")
	}
	if c.DB == nil {
		return errors.New("agent: database required")
	}
	if c.PeriodicInterval <= 0 {
		c.PeriodicInterval = defaultPeriodicInterval
	}
	if c.Clock == nil {
		c.Clock = clock.NewClock()
	}

	return nil
}
