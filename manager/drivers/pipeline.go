package drivers

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager/allocator/sessionid"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Pipeline is the switch pipeline driver. Tap services get a session
// identifier at precommit; the agents on the involved hosts compile the
// flows and report status back.
type Pipeline struct {
	allocator *sessionid.Allocator
	caster    Caster
}

var (
	_ SessionDriver = &Pipeline{}
	_ Syncer        = &Pipeline{}
)

// NewPipeline returns a switch pipeline driver.
func NewPipeline(allocator *sessionid.Allocator, caster Caster) *Pipeline {
	return &Pipeline{allocator: allocator, caster: caster}
}

// Name implements SessionDriver.
func (d *Pipeline) Name() string { return PipelineDriver }

func (d *Pipeline) cast(ctx context.Context, msg *api.CastMessage) error {
	log.G(ctx).WithFields(logrus.Fields{
		"method":  msg.Method,
		"host":    msg.Host,
		"taas_id": msg.TaasID,
	}).Debug("cast")
	if err := d.caster.Cast(ctx, msg); err != nil {
		return errdefs.ErrDriverFailure(msg.Method, err)
	}
	return nil
}

func host(p *api.Port) string {
	if p == nil {
		return ""
	}
	return p.Host
}

// CreateTapServicePrecommit binds a session identifier to the service.
func (d *Pipeline) CreateTapServicePrecommit(ctx context.Context, tx store.Tx, c *TapServiceContext) error {
	id, err := d.allocator.Acquire(tx, c.TapService.ID)
	if err != nil {
		return err
	}
	c.TaasID = id
	if c.Port == nil {
		c.Port = store.GetPort(tx, c.TapService.PortID)
	}
	return nil
}

// CreateTapServicePostcommit casts the service to the host of its port.
func (d *Pipeline) CreateTapServicePostcommit(ctx context.Context, c *TapServiceContext) error {
	d.allocator.RefreshGauges()
	return d.cast(ctx, d.serviceMessage(api.MethodCreateTapService, host(c.Port), c))
}

// DeleteTapServicePrecommit casts the teardown of an active service to every
// host, since flows towards it may live anywhere.
func (d *Pipeline) DeleteTapServicePrecommit(ctx context.Context, tx store.Tx, c *TapServiceContext) error {
	if err := d.resolveService(tx, c); err != nil {
		return err
	}
	return d.cast(ctx, d.serviceMessage(api.MethodDeleteTapService, "", c))
}

// DeleteTapServicePostcommit runs once the record is gone. Nothing was
// programmed for a service that never became active.
func (d *Pipeline) DeleteTapServicePostcommit(ctx context.Context, c *TapServiceContext) error {
	d.allocator.RefreshGauges()
	return nil
}

// CreateTapFlowPrecommit resolves the identifier of the flow's service and
// the ports involved.
func (d *Pipeline) CreateTapFlowPrecommit(ctx context.Context, tx store.Tx, c *TapFlowContext) error {
	return d.resolveFlow(tx, c)
}

// CreateTapFlowPostcommit casts the flow to the host of its source port.
func (d *Pipeline) CreateTapFlowPostcommit(ctx context.Context, c *TapFlowContext) error {
	msg, err := d.flowMessage(api.MethodCreateTapFlow, c)
	if err != nil {
		return err
	}
	return d.cast(ctx, msg)
}

// DeleteTapFlowPrecommit casts the teardown of an active flow to the host of
// its source port.
func (d *Pipeline) DeleteTapFlowPrecommit(ctx context.Context, tx store.Tx, c *TapFlowContext) error {
	if err := d.resolveFlow(tx, c); err != nil {
		return err
	}
	msg, err := d.flowMessage(api.MethodDeleteTapFlow, c)
	if err != nil {
		return err
	}
	return d.cast(ctx, msg)
}

// DeleteTapFlowPostcommit implements SessionDriver.
func (d *Pipeline) DeleteTapFlowPostcommit(ctx context.Context, c *TapFlowContext) error {
	return nil
}

// CreateTapMirrorPrecommit rejects tap mirrors, which need the tunnel
// driver.
func (d *Pipeline) CreateTapMirrorPrecommit(ctx context.Context, tx store.Tx, c *TapMirrorContext) error {
	return errdefs.ErrInvalidArgument("tap mirrors are not supported by the %s driver", PipelineDriver)
}

// CreateTapMirrorPostcommit implements SessionDriver.
func (d *Pipeline) CreateTapMirrorPostcommit(ctx context.Context, c *TapMirrorContext) error {
	return nil
}

// DeleteTapMirrorPrecommit lets stale records be removed.
func (d *Pipeline) DeleteTapMirrorPrecommit(ctx context.Context, tx store.Tx, c *TapMirrorContext) error {
	return nil
}

// DeleteTapMirrorPostcommit implements SessionDriver.
func (d *Pipeline) DeleteTapMirrorPostcommit(ctx context.Context, c *TapMirrorContext) error {
	return nil
}

// SyncHost casts every session with a port on host again: creates for live
// sessions and deletes for the ones pending deletion. Services go first so
// the agent knows about local destinations before it compiles flows.
func (d *Pipeline) SyncHost(ctx context.Context, tx store.ReadTx, host string) (int, error) {
	ports, err := store.FindPorts(tx, store.ByHost(host))
	if err != nil {
		return 0, err
	}

	var msgs []*api.CastMessage
	for _, p := range ports {
		services, err := store.FindTapServices(tx, store.ByPortID(p.ID))
		if err != nil {
			return 0, err
		}
		for _, s := range services {
			c := &TapServiceContext{TapService: s, Port: p}
			if err := d.resolveService(tx, c); err != nil {
				log.G(ctx).WithError(err).WithField("tap_service.id", s.ID).Warn("skipping tap service without identifier")
				continue
			}
			method := api.MethodCreateTapService
			if s.Status == api.StatusPendingDelete {
				method = api.MethodDeleteTapService
			}
			msgs = append(msgs, d.serviceMessage(method, host, c))
		}
	}
	for _, p := range ports {
		flows, err := store.FindTapFlows(tx, store.BySourcePort(p.ID))
		if err != nil {
			return 0, err
		}
		for _, f := range flows {
			c := &TapFlowContext{TapFlow: f, SourcePort: p}
			if err := d.resolveFlow(tx, c); err != nil {
				log.G(ctx).WithError(err).WithField("tap_flow.id", f.ID).Warn("skipping tap flow")
				continue
			}
			method := api.MethodCreateTapFlow
			if f.Status == api.StatusPendingDelete {
				method = api.MethodDeleteTapFlow
			}
			msg, err := d.flowMessage(method, c)
			if err != nil {
				log.G(ctx).WithError(err).WithField("tap_flow.id", f.ID).Warn("skipping tap flow")
				continue
			}
			msgs = append(msgs, msg)
		}
	}

	for _, msg := range msgs {
		if err := d.cast(ctx, msg); err != nil {
			return 0, err
		}
	}
	return len(msgs), nil
}

func (d *Pipeline) resolveService(tx store.ReadTx, c *TapServiceContext) error {
	id, ok := d.allocator.Lookup(tx, c.TapService.ID)
	if !ok {
		return errdefs.ErrNotFound("session identifier of tap service", c.TapService.ID)
	}
	c.TaasID = id
	if c.Port == nil {
		c.Port = store.GetPort(tx, c.TapService.PortID)
	}
	return nil
}

func (d *Pipeline) resolveFlow(tx store.ReadTx, c *TapFlowContext) error {
	if c.TapService == nil {
		c.TapService = store.GetTapService(tx, c.TapFlow.TapServiceID)
		if c.TapService == nil {
			return errdefs.ErrNotFound("tap service", c.TapFlow.TapServiceID)
		}
	}
	id, ok := d.allocator.Lookup(tx, c.TapService.ID)
	if !ok {
		return errdefs.ErrNotFound("session identifier of tap service", c.TapService.ID)
	}
	c.TaasID = id
	if c.SourcePort == nil {
		c.SourcePort = store.GetPort(tx, c.TapFlow.SourcePort)
		if c.SourcePort == nil {
			return errdefs.ErrNotFound("port", c.TapFlow.SourcePort)
		}
	}
	if c.ServicePort == nil {
		c.ServicePort = store.GetPort(tx, c.TapService.PortID)
	}
	return nil
}

func (d *Pipeline) serviceMessage(method, host string, c *TapServiceContext) *api.CastMessage {
	return &api.CastMessage{
		Method:     method,
		Host:       host,
		TaasID:     c.TaasID,
		TapService: c.TapService.Copy(),
		Port:       c.Port.Copy(),
	}
}

func (d *Pipeline) flowMessage(method string, c *TapFlowContext) (*api.CastMessage, error) {
	filter, err := api.ParseVLANFilter(c.TapFlow.VLANFilter)
	if err != nil {
		return nil, errors.Wrapf(err, "tap flow %s", c.TapFlow.ID)
	}
	return &api.CastMessage{
		Method:         method,
		Host:           host(c.SourcePort),
		TaasID:         c.TaasID,
		TapFlow:        c.TapFlow.Copy(),
		Port:           c.SourcePort.Copy(),
		TapServicePort: c.ServicePort.Copy(),
		PortMAC:        c.SourcePort.MACAddress,
		VLANFilter:     filter,
	}, nil
}
