package drivers

import (
	"context"
	"fmt"
	"strings"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/identity"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager/mirrorqueue"
	"github.com/moby/tapkit/manager/state/store"
)

// Tunnel is the tunnel mirror driver. It turns every direction of a tap
// mirror into a northbound mirror command and leaves execution to the
// mirror command queue.
type Tunnel struct {
	queue *mirrorqueue.Queue
}

var _ SessionDriver = &Tunnel{}

// NewTunnel returns a tunnel mirror driver feeding queue.
func NewTunnel(queue *mirrorqueue.Queue) *Tunnel {
	return &Tunnel{queue: queue}
}

// Name implements SessionDriver.
func (d *Tunnel) Name() string { return TunnelDriver }

// MirrorName is the northbound name of the mirror of one direction of a tap
// mirror.
func MirrorName(d api.Direction, mirrorID string) string {
	return fmt.Sprintf("tm_%s_%s", strings.ToLower(string(d)), identity.ShortID(mirrorID))
}

// MirrorFilter maps a direction to the northbound mirror filter. Outgoing
// guest traffic leaves the port towards the switch.
func MirrorFilter(d api.Direction) string {
	if d == api.DirectionOut {
		return mirrorqueue.FilterFromPort
	}
	return mirrorqueue.FilterToPort
}

// MirrorType maps a tap mirror type to the northbound mirror type.
func MirrorType(t api.MirrorType) string {
	if strings.Contains(string(t), "erspan") {
		return "erspan"
	}
	return "gre"
}

func (d *Tunnel) enqueue(ctx context.Context, op string, cmds []mirrorqueue.Command) error {
	for _, cmd := range cmds {
		if err := d.queue.Enqueue(cmd); err != nil {
			return errdefs.ErrDriverFailure(op, err)
		}
		log.G(ctx).WithField("mirror", cmd.Name).Debugf("%s enqueued", cmd.Kind)
	}
	return nil
}

func unsupported(kind string) error {
	return errdefs.ErrInvalidArgument("%s are not supported by the %s driver", kind, TunnelDriver)
}

// CreateTapServicePrecommit rejects tap services.
func (d *Tunnel) CreateTapServicePrecommit(ctx context.Context, tx store.Tx, c *TapServiceContext) error {
	return unsupported("tap services")
}

// CreateTapServicePostcommit implements SessionDriver.
func (d *Tunnel) CreateTapServicePostcommit(ctx context.Context, c *TapServiceContext) error {
	return nil
}

// DeleteTapServicePrecommit lets stale records be removed.
func (d *Tunnel) DeleteTapServicePrecommit(ctx context.Context, tx store.Tx, c *TapServiceContext) error {
	return nil
}

// DeleteTapServicePostcommit implements SessionDriver.
func (d *Tunnel) DeleteTapServicePostcommit(ctx context.Context, c *TapServiceContext) error {
	return nil
}

// CreateTapFlowPrecommit rejects tap flows.
func (d *Tunnel) CreateTapFlowPrecommit(ctx context.Context, tx store.Tx, c *TapFlowContext) error {
	return unsupported("tap flows")
}

// CreateTapFlowPostcommit implements SessionDriver.
func (d *Tunnel) CreateTapFlowPostcommit(ctx context.Context, c *TapFlowContext) error {
	return nil
}

// DeleteTapFlowPrecommit implements SessionDriver.
func (d *Tunnel) DeleteTapFlowPrecommit(ctx context.Context, tx store.Tx, c *TapFlowContext) error {
	return nil
}

// DeleteTapFlowPostcommit implements SessionDriver.
func (d *Tunnel) DeleteTapFlowPostcommit(ctx context.Context, c *TapFlowContext) error {
	return nil
}

// CreateTapMirrorPrecommit implements SessionDriver. Tunnel key conflicts
// are checked by the caller against every persisted mirror.
func (d *Tunnel) CreateTapMirrorPrecommit(ctx context.Context, tx store.Tx, c *TapMirrorContext) error {
	return nil
}

// CreateTapMirrorPostcommit enqueues one mirror-add per direction.
func (d *Tunnel) CreateTapMirrorPostcommit(ctx context.Context, c *TapMirrorContext) error {
	return d.enqueue(ctx, "create_tap_mirror_postcommit", AddCommands(c.TapMirror))
}

// DeleteTapMirrorPrecommit enqueues one mirror-delete per direction.
func (d *Tunnel) DeleteTapMirrorPrecommit(ctx context.Context, tx store.Tx, c *TapMirrorContext) error {
	return d.enqueue(ctx, "delete_tap_mirror_precommit", DeleteCommands(c.TapMirror))
}

// DeleteTapMirrorPostcommit implements SessionDriver.
func (d *Tunnel) DeleteTapMirrorPostcommit(ctx context.Context, c *TapMirrorContext) error {
	return nil
}

// AddCommands returns the mirror-add commands of m, one per direction.
func AddCommands(m *api.TapMirror) []mirrorqueue.Command {
	var cmds []mirrorqueue.Command
	for _, dir := range m.SortedDirections() {
		cmds = append(cmds, mirrorqueue.MirrorAdd(
			MirrorName(dir, m.ID),
			MirrorFilter(dir),
			m.RemoteIP,
			MirrorType(m.MirrorType),
			m.Directions[dir],
			m.PortID,
		))
	}
	return cmds
}

// DeleteCommands returns the mirror-delete commands of m, one per direction.
func DeleteCommands(m *api.TapMirror) []mirrorqueue.Command {
	var cmds []mirrorqueue.Command
	for _, dir := range m.SortedDirections() {
		cmds = append(cmds, mirrorqueue.MirrorDelete(MirrorName(dir, m.ID), m.PortID))
	}
	return cmds
}
