// Package drivers implements the session drivers that program mirror
// sessions into a dataplane: the switch pipeline driver, which casts to the
// per-host agents, and the tunnel mirror driver, which drives the OVN
// northbound database through the mirror command queue.
package drivers

import (
	"github.com/moby/tapkit/manager/allocator/sessionid"
	"github.com/moby/tapkit/manager/mirrorqueue"
	"github.com/pkg/errors"
)

// Driver names accepted by NewSessionDriver.
const (
	PipelineDriver = "pipeline"
	TunnelDriver   = "tunnel"
)

// DriverProvider builds the session driver selected by configuration.
type DriverProvider struct {
	allocator *sessionid.Allocator
	caster    Caster
	queue     *mirrorqueue.Queue
}

// New returns a new driver provider. The allocator and caster are needed by
// the pipeline driver, the queue by the tunnel driver.
func New(allocator *sessionid.Allocator, caster Caster, queue *mirrorqueue.Queue) *DriverProvider {
	return &DriverProvider{allocator: allocator, caster: caster, queue: queue}
}

// NewSessionDriver creates the named session driver.
func (p *DriverProvider) NewSessionDriver(name string) (SessionDriver, error) {
	switch name {
	case PipelineDriver, "":
		if p.allocator == nil || p.caster == nil {
			return nil, errors.New("pipeline driver requires an allocator and a caster")
		}
		return NewPipeline(p.allocator, p.caster), nil
	case TunnelDriver:
		if p.queue == nil {
			return nil, errors.New("tunnel driver requires a mirror command queue")
		}
		return NewTunnel(p.queue), nil
	}
	return nil, errors.Errorf("unknown session driver %q", name)
}
