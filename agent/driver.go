package agent

import (
	"context"

	"github.com/moby/tapkit/agent/ovs"
	"github.com/moby/tapkit/agent/pipeline"
	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// Switch is the Open vSwitch dataplane of a host, as seen by the agent.
type Switch interface {
	pipeline.Sink

	// Prepare creates the tap bridge and its patch ports.
	Prepare(ctx context.Context) (pipeline.Ports, error)
	// Peers lists the tunnel ports leading to other hosts.
	Peers(ctx context.Context) ([]pipeline.Peer, error)
	// VifPortByID finds the integration bridge interface of a network port.
	VifPortByID(ctx context.Context, portID string) (ovs.VifPort, error)
	// PortTag returns the local VLAN of an integration bridge port.
	PortTag(ctx context.Context, name string) (int, error)
}

var _ Switch = &ovs.Switch{}

// driver programs mirror sessions on the local switch. It keeps what it
// programmed in the agent database so deletes still work after a restart.
// Calls must be serialized.
type driver struct {
	host       string
	sw         Switch
	db         *bolt.DB
	enableBCMC bool
	// disableAgeing is replaced in tests.
	disableAgeing func(ovsPortName string) error

	ports pipeline.Ports
	bcmc  *pipeline.Affiliations
}

func newDriver(host string, sw Switch, db *bolt.DB, enableBCMC bool) *driver {
	return &driver{
		host:          host,
		sw:            sw,
		db:            db,
		enableBCMC:    enableBCMC,
		disableAgeing: ovs.DisableAgeing,
		bcmc:          pipeline.NewAffiliations(),
	}
}

// init prepares the bridges and installs the session independent flows.
func (d *driver) init(ctx context.Context) error {
	ports, err := d.sw.Prepare(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to prepare bridges")
	}
	peers, err := d.sw.Peers(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list tunnel peers")
	}
	d.ports = ports
	log.G(ctx).WithField("peers", len(peers)).Debug("installing base pipeline")
	if err := pipeline.Apply(ctx, d.sw, pipeline.Setup(ports, peers)); err != nil {
		return err
	}
	return d.restoreBCMC(ctx)
}

// restoreBCMC rebuilds the vlan affiliations of the tap flows programmed
// before a restart and reinstalls their bcmc flows.
func (d *driver) restoreBCMC(ctx context.Context) error {
	var flows map[string]*flowRecord
	if err := d.db.View(func(tx *bolt.Tx) error {
		flows = allFlows(tx)
		return nil
	}); err != nil {
		return errors.Wrap(err, "failed to read tap flow records")
	}

	d.bcmc = pipeline.NewAffiliations()
	vlans := make(map[int]struct{})
	for _, rec := range flows {
		if !rec.Direction.Ingress() {
			continue
		}
		d.bcmc.Affiliate(rec.LocalVLAN, rec.TaasID)
		vlans[rec.LocalVLAN] = struct{}{}
	}
	for vlan := range vlans {
		d.updateBCMC(ctx, vlan, d.bcmc.List(vlan))
	}
	if len(vlans) > 0 {
		log.G(ctx).WithField("vlans", len(vlans)).Debug("restored bcmc affiliations")
	}
	return nil
}

// refreshFlood rewrites the flood flow so that it reaches the tunnel ports
// created since the last refresh.
func (d *driver) refreshFlood(ctx context.Context) error {
	peers, err := d.sw.Peers(ctx)
	if err != nil {
		return err
	}
	return pipeline.Apply(ctx, d.sw, pipeline.Flood(peers))
}

func (d *driver) endpoint(ctx context.Context, port *api.Port) (ovs.VifPort, pipeline.Endpoint, error) {
	if port == nil {
		return ovs.VifPort{}, pipeline.Endpoint{}, errors.New("message carries no port")
	}
	vif, err := d.sw.VifPortByID(ctx, port.ID)
	if err != nil {
		return vif, pipeline.Endpoint{}, err
	}
	tag, err := d.sw.PortTag(ctx, vif.Name)
	if err != nil {
		return vif, pipeline.Endpoint{}, err
	}
	return vif, pipeline.Endpoint{
		OFPort:      vif.OFPort,
		LocalVLAN:   tag,
		MAC:         port.MACAddress,
		NetworkType: port.NetworkType,
	}, nil
}

func (d *driver) createTapService(ctx context.Context, msg *api.CastMessage) error {
	vif, dst, err := d.endpoint(ctx, msg.Port)
	if err != nil {
		return err
	}
	if err := pipeline.Apply(ctx, d.sw, pipeline.CreateService(d.ports, msg.TaasID, dst)); err != nil {
		return err
	}

	if msg.Port.HybridPlug {
		if err := d.disableAgeing(vif.Name); err != nil {
			log.G(ctx).WithError(err).Warn("failed to disable mac learning on hybrid plug bridge")
		}
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		return putService(tx, msg.TapService.ID, &serviceRecord{
			TaasID:    msg.TaasID,
			PortID:    msg.Port.ID,
			VifName:   vif.Name,
			OFPort:    dst.OFPort,
			LocalVLAN: dst.LocalVLAN,
		})
	})
}

// deleteTapService runs on every host, since flows of the session may live
// anywhere.
func (d *driver) deleteTapService(ctx context.Context, msg *api.CastMessage) error {
	if err := pipeline.Apply(ctx, d.sw, pipeline.DeleteService(d.ports, msg.TaasID)); err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return deleteService(tx, msg.TapService.ID)
	})
}

func (d *driver) createTapFlow(ctx context.Context, msg *api.CastMessage) error {
	vif, src, err := d.endpoint(ctx, msg.Port)
	if err != nil {
		return err
	}
	if msg.PortMAC != "" {
		src.MAC = msg.PortMAC
	}
	spec := pipeline.FlowSpec{
		TaasID:    msg.TaasID,
		Direction: msg.TapFlow.Direction,
		Source:    src,
	}
	if err := pipeline.Apply(ctx, d.sw, pipeline.CreateFlow(d.ports, spec)); err != nil {
		return err
	}

	if spec.Direction.Ingress() {
		d.updateBCMC(ctx, src.LocalVLAN, d.bcmc.Affiliate(src.LocalVLAN, msg.TaasID))
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		return putFlow(tx, msg.TapFlow.ID, &flowRecord{
			TaasID:       msg.TaasID,
			TapServiceID: msg.TapFlow.TapServiceID,
			PortID:       msg.Port.ID,
			Direction:    spec.Direction,
			OFPort:       vif.OFPort,
			MAC:          src.MAC,
			LocalVLAN:    src.LocalVLAN,
			NetworkType:  src.NetworkType,
		})
	})
}

func (d *driver) deleteTapFlow(ctx context.Context, msg *api.CastMessage) error {
	var (
		rec          *flowRecord
		lastOnHost   bool
		serviceLocal bool
	)
	if err := d.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getFlow(tx, msg.TapFlow.ID)
		if err != nil {
			return err
		}
		others := flowsByTaasID(tx, msg.TaasID)
		delete(others, msg.TapFlow.ID)
		lastOnHost = len(others) == 0
		serviceLocal = len(servicesByTaasID(tx, msg.TaasID)) > 0
		return nil
	}); err != nil {
		return err
	}
	if msg.TapServicePort != nil && msg.TapServicePort.Host == d.host {
		serviceLocal = true
	}

	if rec == nil {
		// Nothing recorded, likely programmed before the database was
		// lost. Resolve the port again.
		log.G(ctx).Debug("no local record for tap flow, resolving source port")
		vif, src, err := d.endpoint(ctx, msg.Port)
		if err != nil {
			return err
		}
		rec = &flowRecord{
			TaasID:      msg.TaasID,
			Direction:   msg.TapFlow.Direction,
			OFPort:      vif.OFPort,
			MAC:         msg.PortMAC,
			LocalVLAN:   src.LocalVLAN,
			NetworkType: src.NetworkType,
		}
	}

	spec := pipeline.FlowSpec{
		TaasID:    msg.TaasID,
		Direction: rec.Direction,
		Source: pipeline.Endpoint{
			OFPort:      rec.OFPort,
			LocalVLAN:   rec.LocalVLAN,
			MAC:         rec.MAC,
			NetworkType: rec.NetworkType,
		},
	}
	if err := pipeline.Apply(ctx, d.sw, pipeline.DeleteFlow(d.ports, spec, lastOnHost, serviceLocal)); err != nil {
		return err
	}

	if spec.Direction.Ingress() {
		d.updateBCMC(ctx, rec.LocalVLAN, d.bcmc.Unaffiliate(rec.LocalVLAN, msg.TaasID))
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		return deleteFlow(tx, msg.TapFlow.ID)
	})
}

// updateBCMC reprograms the broadcast and multicast copy flow of a VLAN.
// Failures are logged; the unicast flows are already in place.
func (d *driver) updateBCMC(ctx context.Context, vlan int, taasIDs []uint32) {
	if !d.enableBCMC {
		return
	}
	if err := pipeline.Apply(ctx, d.sw, pipeline.IngressBCMC(vlan, taasIDs, d.ports.PatchIntTap)); err != nil {
		log.G(ctx).WithError(err).WithFields(logrus.Fields{
			"vlan":     vlan,
			"sessions": taasIDs,
		}).Error("failed to update bcmc flow")
	}
}
