// Package coordinator keeps the mirror session records consistent with the
// dataplane. Every create and delete runs the driver precommit and
// postcommit callbacks around the store commit, and agent status reports
// move records to their final state.
//
// Tap services and tap flows follow this state machine:
//
//	DOWN -> ACTIVE | ERROR                  on create, reported by the agent
//	ACTIVE -> PENDING_DELETE -> (removed)   on delete, removed on INACTIVE
//	DOWN | ERROR -> (removed)               on delete
//
// Tap mirrors have no status: their record is removed as soon as the
// southbound deletes are queued.
package coordinator

import (
	"context"
	"strconv"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/identity"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager/allocator/sessionid"
	"github.com/moby/tapkit/manager/drivers"
	"github.com/moby/tapkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Coordinator runs the session lifecycle against one session driver.
type Coordinator struct {
	store     *store.MemoryStore
	allocator *sessionid.Allocator
	driver    drivers.SessionDriver
}

// New returns a coordinator. The allocator may be nil when the driver never
// binds session identifiers.
func New(s *store.MemoryStore, allocator *sessionid.Allocator, driver drivers.SessionDriver) *Coordinator {
	return &Coordinator{
		store:     s,
		allocator: allocator,
		driver:    driver,
	}
}

// Driver returns the session driver in use.
func (c *Coordinator) Driver() drivers.SessionDriver {
	return c.driver
}

func (c *Coordinator) logger(ctx context.Context) *logrus.Entry {
	return log.G(log.WithModule(ctx, "coordinator"))
}

func createErr(kind, id string, err error) error {
	if err == store.ErrExist {
		return errdefs.ErrConflict(kind, id)
	}
	return err
}

// removeTapService deletes a service record and releases its identifier.
func (c *Coordinator) removeTapService(tx store.Tx, id string) error {
	if err := store.DeleteTapService(tx, id); err != nil {
		return err
	}
	if c.allocator != nil {
		return c.allocator.Release(tx, id)
	}
	return nil
}

func (c *Coordinator) refreshGauges() {
	if c.allocator != nil {
		c.allocator.RefreshGauges()
	}
}

func ownedPort(tx store.ReadTx, portID, tenant string) (*api.Port, error) {
	port := store.GetPort(tx, portID)
	if port == nil {
		return nil, errdefs.ErrNotFound("port", portID)
	}
	if port.Tenant != tenant {
		return nil, errdefs.ErrOwnership("port %s does not belong to tenant %s", portID, tenant)
	}
	return port, nil
}

// CreateTapService persists svc in DOWN, binds a session identifier and
// programs it. If programming fails the record is removed again and the
// driver error is returned.
func (c *Coordinator) CreateTapService(ctx context.Context, svc *api.TapService) (*api.TapService, error) {
	defer timeOperation("create_tap_service")()

	if err := api.ValidateTapService(svc); err != nil {
		return nil, err
	}
	svc = svc.Copy()
	if svc.ID == "" {
		svc.ID = identity.NewObjectID()
	}
	svc.Status = api.StatusDown
	logger := c.logger(ctx).WithField("tap_service.id", svc.ID)

	dc := &drivers.TapServiceContext{TapService: svc}
	err := c.store.Update(func(tx store.Tx) error {
		port, err := ownedPort(tx, svc.PortID, svc.Tenant)
		if err != nil {
			return err
		}
		dc.Port = port
		if err := store.CreateTapService(tx, svc); err != nil {
			return createErr("tap service", svc.ID, err)
		}
		return c.driver.CreateTapServicePrecommit(ctx, tx, dc)
	})
	if err != nil {
		return nil, err
	}

	if err := c.driver.CreateTapServicePostcommit(ctx, dc); err != nil {
		logger.WithError(err).Error("failed to create tap service on driver, deleting tap service")
		if rerr := c.store.Update(func(tx store.Tx) error {
			return c.removeTapService(tx, svc.ID)
		}); rerr != nil {
			logger.WithError(rerr).Error("failed to delete tap service")
		}
		c.refreshGauges()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"port":    svc.PortID,
		"taas_id": dc.TaasID,
	}).Info("tap service created")
	return svc, nil
}

// DeleteTapService deletes the flows of the service, then the service. An
// active service moves to PENDING_DELETE until the agents report the
// teardown; any other service is removed right away. Driver errors are
// returned but the record change is kept. A flow created while the flows
// were being deleted fails the call with a conflict.
func (c *Coordinator) DeleteTapService(ctx context.Context, id string) error {
	defer timeOperation("delete_tap_service")()
	logger := c.logger(ctx).WithField("tap_service.id", id)

	var flows []*api.TapFlow
	var err error
	c.store.View(func(tx store.ReadTx) {
		flows, err = store.FindTapFlows(tx, store.ByTapServiceID(id))
	})
	if err != nil {
		return err
	}
	for _, f := range flows {
		if err := c.DeleteTapFlow(ctx, f.ID); err != nil && !errdefs.IsNotFound(err) {
			return err
		}
	}

	var (
		dc      *drivers.TapServiceContext
		pending bool
	)
	err = c.store.Update(func(tx store.Tx) error {
		svc := store.GetTapService(tx, id)
		if svc == nil {
			return errdefs.ErrNotFound("tap service", id)
		}
		dc = &drivers.TapServiceContext{
			TapService: svc,
			Port:       store.GetPort(tx, svc.PortID),
		}
		if c.allocator != nil {
			dc.TaasID, _ = c.allocator.Lookup(tx, id)
		}
		// flows created while the cascade ran would be left dangling
		remaining, err := store.FindTapFlows(tx, store.ByTapServiceID(id))
		if err != nil {
			return err
		}
		for _, f := range remaining {
			if f.Status != api.StatusPendingDelete {
				return errdefs.ErrConflict("tap service", id)
			}
		}
		if svc.Status == api.StatusActive {
			pending = true
			svc.Status = api.StatusPendingDelete
			return store.UpdateTapService(tx, svc)
		}
		return c.removeTapService(tx, id)
	})
	if err != nil {
		return err
	}

	if pending {
		err = c.store.Update(func(tx store.Tx) error {
			return c.driver.DeleteTapServicePrecommit(ctx, tx, dc)
		})
	} else {
		err = c.driver.DeleteTapServicePostcommit(ctx, dc)
	}
	if err != nil {
		logger.WithError(err).Error("failed to delete tap service on driver")
		return err
	}
	logger.WithField("pending", pending).Info("tap service deleted")
	return nil
}

// CreateTapFlow persists flow in DOWN and programs it. The tap service and
// the source port must belong to the flow's tenant. If programming fails the
// record is removed again and the driver error is returned.
func (c *Coordinator) CreateTapFlow(ctx context.Context, flow *api.TapFlow) (*api.TapFlow, error) {
	defer timeOperation("create_tap_flow")()

	if err := api.ValidateTapFlow(flow); err != nil {
		return nil, err
	}
	flow = flow.Copy()
	if flow.ID == "" {
		flow.ID = identity.NewObjectID()
	}
	flow.Status = api.StatusDown
	logger := c.logger(ctx).WithField("tap_flow.id", flow.ID)

	dc := &drivers.TapFlowContext{TapFlow: flow}
	err := c.store.Update(func(tx store.Tx) error {
		svc := store.GetTapService(tx, flow.TapServiceID)
		if svc == nil {
			return errdefs.ErrNotFound("tap service", flow.TapServiceID)
		}
		if svc.Tenant != flow.Tenant {
			return errdefs.ErrOwnership("tap service %s does not belong to tenant %s", svc.ID, flow.Tenant)
		}
		if svc.Status == api.StatusPendingDelete {
			return errdefs.ErrInvalidArgument("tap service %s is being deleted", svc.ID)
		}
		port, err := ownedPort(tx, flow.SourcePort, flow.Tenant)
		if err != nil {
			return err
		}
		dc.TapService = svc
		dc.SourcePort = port
		if err := store.CreateTapFlow(tx, flow); err != nil {
			return createErr("tap flow", flow.ID, err)
		}
		return c.driver.CreateTapFlowPrecommit(ctx, tx, dc)
	})
	if err != nil {
		return nil, err
	}

	if err := c.driver.CreateTapFlowPostcommit(ctx, dc); err != nil {
		logger.WithError(err).Error("failed to create tap flow on driver, deleting tap flow")
		if rerr := c.store.Update(func(tx store.Tx) error {
			return store.DeleteTapFlow(tx, flow.ID)
		}); rerr != nil {
			logger.WithError(rerr).Error("failed to delete tap flow")
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"tap_service.id": flow.TapServiceID,
		"source_port":    flow.SourcePort,
		"direction":      flow.Direction,
	}).Info("tap flow created")
	return flow, nil
}

// DeleteTapFlow deletes a flow. An active flow moves to PENDING_DELETE until
// its agent reports the teardown; any other flow is removed right away.
func (c *Coordinator) DeleteTapFlow(ctx context.Context, id string) error {
	defer timeOperation("delete_tap_flow")()
	logger := c.logger(ctx).WithField("tap_flow.id", id)

	var (
		dc      *drivers.TapFlowContext
		pending bool
	)
	err := c.store.Update(func(tx store.Tx) error {
		flow := store.GetTapFlow(tx, id)
		if flow == nil {
			return errdefs.ErrNotFound("tap flow", id)
		}
		dc = &drivers.TapFlowContext{TapFlow: flow}
		if flow.Status == api.StatusActive {
			pending = true
			flow.Status = api.StatusPendingDelete
			return store.UpdateTapFlow(tx, flow)
		}
		return store.DeleteTapFlow(tx, id)
	})
	if err != nil {
		return err
	}

	if pending {
		err = c.store.Update(func(tx store.Tx) error {
			return c.driver.DeleteTapFlowPrecommit(ctx, tx, dc)
		})
	} else {
		err = c.driver.DeleteTapFlowPostcommit(ctx, dc)
	}
	if err != nil {
		logger.WithError(err).Error("failed to delete tap flow on driver")
		return err
	}
	logger.WithField("pending", pending).Info("tap flow deleted")
	return nil
}

// checkTunnelKeys fails with a conflict if any tunnel key of m is used by a
// persisted mirror, whatever the direction.
func checkTunnelKeys(tx store.ReadTx, m *api.TapMirror) error {
	mirrors, err := store.FindTapMirrors(tx, store.All)
	if err != nil {
		return err
	}
	requested := make(map[uint32]struct{}, len(m.Directions))
	for _, key := range m.Directions {
		requested[key] = struct{}{}
	}
	for _, existing := range mirrors {
		for _, dir := range existing.SortedDirections() {
			key := existing.Directions[dir]
			if _, ok := requested[key]; ok {
				return errdefs.ErrConflict("tunnel id", strconv.FormatUint(uint64(key), 10))
			}
		}
	}
	return nil
}

// CreateTapMirror persists m and queues its southbound mirrors. Tunnel keys
// are unique across all tap mirrors.
func (c *Coordinator) CreateTapMirror(ctx context.Context, m *api.TapMirror) (*api.TapMirror, error) {
	defer timeOperation("create_tap_mirror")()

	if err := api.ValidateTapMirror(m); err != nil {
		return nil, err
	}
	m = m.Copy()
	if m.ID == "" {
		m.ID = identity.NewObjectID()
	}
	logger := c.logger(ctx).WithField("tap_mirror.id", m.ID)

	dc := &drivers.TapMirrorContext{TapMirror: m}
	err := c.store.Update(func(tx store.Tx) error {
		port, err := ownedPort(tx, m.PortID, m.Project)
		if err != nil {
			return err
		}
		dc.Port = port
		if err := checkTunnelKeys(tx, m); err != nil {
			return err
		}
		if err := store.CreateTapMirror(tx, m); err != nil {
			return createErr("tap mirror", m.ID, err)
		}
		return c.driver.CreateTapMirrorPrecommit(ctx, tx, dc)
	})
	if err != nil {
		return nil, err
	}

	if err := c.driver.CreateTapMirrorPostcommit(ctx, dc); err != nil {
		logger.WithError(err).Error("failed to create tap mirror on driver, deleting tap mirror")
		if rerr := c.store.Update(func(tx store.Tx) error {
			return store.DeleteTapMirror(tx, m.ID)
		}); rerr != nil {
			logger.WithError(rerr).Error("failed to delete tap mirror")
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"port":      m.PortID,
		"remote_ip": m.RemoteIP,
	}).Info("tap mirror created")
	return m, nil
}

// DeleteTapMirror queues the southbound deletes and removes the record in
// one transaction, then runs the postcommit callback. Postcommit errors are
// returned without restoring the record.
func (c *Coordinator) DeleteTapMirror(ctx context.Context, id string) error {
	defer timeOperation("delete_tap_mirror")()
	logger := c.logger(ctx).WithField("tap_mirror.id", id)

	var dc *drivers.TapMirrorContext
	err := c.store.Update(func(tx store.Tx) error {
		m := store.GetTapMirror(tx, id)
		if m == nil {
			return errdefs.ErrNotFound("tap mirror", id)
		}
		dc = &drivers.TapMirrorContext{TapMirror: m, Port: store.GetPort(tx, m.PortID)}
		if err := c.driver.DeleteTapMirrorPrecommit(ctx, tx, dc); err != nil {
			return err
		}
		return store.DeleteTapMirror(tx, id)
	})
	if err != nil {
		return err
	}

	if err := c.driver.DeleteTapMirrorPostcommit(ctx, dc); err != nil {
		logger.WithError(err).Error("failed to delete tap mirror on driver")
		return err
	}
	logger.Info("tap mirror deleted")
	return nil
}

// HandlePortDelete deletes every session referencing portID: services with
// it as destination, flows with it as source and mirrors attached to it.
// Sessions that disappear concurrently are skipped.
func (c *Coordinator) HandlePortDelete(ctx context.Context, portID string) error {
	logger := c.logger(ctx).WithField("port", portID)

	var (
		services []*api.TapService
		flows    []*api.TapFlow
		mirrors  []*api.TapMirror
		err      error
	)
	c.store.View(func(tx store.ReadTx) {
		if services, err = store.FindTapServices(tx, store.ByPortID(portID)); err != nil {
			return
		}
		if flows, err = store.FindTapFlows(tx, store.BySourcePort(portID)); err != nil {
			return
		}
		mirrors, err = store.FindTapMirrors(tx, store.ByPortID(portID))
	})
	if err != nil {
		return err
	}

	for _, s := range services {
		if err := c.DeleteTapService(ctx, s.ID); err != nil {
			if !errdefs.IsNotFound(err) {
				return err
			}
			logger.WithField("tap_service.id", s.ID).Debug("tap service already gone")
		}
	}
	for _, f := range flows {
		if err := c.DeleteTapFlow(ctx, f.ID); err != nil {
			if !errdefs.IsNotFound(err) {
				return err
			}
			logger.WithField("tap_flow.id", f.ID).Debug("tap flow already gone")
		}
	}
	for _, m := range mirrors {
		if err := c.DeleteTapMirror(ctx, m.ID); err != nil {
			if !errdefs.IsNotFound(err) {
				return err
			}
			logger.WithField("tap_mirror.id", m.ID).Debug("tap mirror already gone")
		}
	}
	return nil
}

// RemovePort deletes the sessions of a port, then the port record.
func (c *Coordinator) RemovePort(ctx context.Context, portID string) error {
	if err := c.HandlePortDelete(ctx, portID); err != nil {
		return err
	}
	err := c.store.Update(func(tx store.Tx) error {
		return store.DeletePort(tx, portID)
	})
	if err == store.ErrNotExist {
		return errdefs.ErrNotFound("port", portID)
	}
	return err
}

// RegisterPort creates or replaces a port record.
func (c *Coordinator) RegisterPort(ctx context.Context, port *api.Port) (*api.Port, error) {
	if err := api.ValidatePort(port); err != nil {
		return nil, err
	}
	port = port.Copy()
	err := c.store.Update(func(tx store.Tx) error {
		if store.GetPort(tx, port.ID) != nil {
			return store.UpdatePort(tx, port)
		}
		return store.CreatePort(tx, port)
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

func checkReportedStatus(status api.Status) error {
	if !status.Valid() {
		return errdefs.ErrInvalidArgument("unknown status %q", status)
	}
	return nil
}

// SetTapServiceStatus applies an agent report about a tap service. INACTIVE
// removes the record and releases its identifier; PENDING_DELETE keeps it.
// Reports about unknown services are ignored: after a fanout delete every
// host reports, and only the first report finds the record.
func (c *Coordinator) SetTapServiceStatus(ctx context.Context, id string, status api.Status, host string) error {
	if err := checkReportedStatus(status); err != nil {
		return err
	}
	statusReports.WithValues(api.KindTapService, string(status)).Inc()
	logger := c.logger(ctx).WithFields(logrus.Fields{
		"tap_service.id": id,
		"status":         status,
		"host":           host,
	})

	var removed bool
	err := c.store.Update(func(tx store.Tx) error {
		svc := store.GetTapService(tx, id)
		if svc == nil {
			logger.Debug("status report for unknown tap service")
			return nil
		}
		switch status {
		case api.StatusInactive:
			removed = true
			return c.removeTapService(tx, id)
		case api.StatusPendingDelete:
			return nil
		}
		if svc.Status == api.StatusPendingDelete {
			logger.Debug("ignoring status report for tap service pending deletion")
			return nil
		}
		svc.Status = status
		return store.UpdateTapService(tx, svc)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set status of tap service %s", id)
	}
	if removed {
		c.refreshGauges()
		logger.Info("tap service removed")
	}
	return nil
}

// SetTapFlowStatus applies an agent report about a tap flow. INACTIVE
// removes the record; PENDING_DELETE keeps it.
func (c *Coordinator) SetTapFlowStatus(ctx context.Context, id string, status api.Status, host string) error {
	if err := checkReportedStatus(status); err != nil {
		return err
	}
	statusReports.WithValues(api.KindTapFlow, string(status)).Inc()
	logger := c.logger(ctx).WithFields(logrus.Fields{
		"tap_flow.id": id,
		"status":      status,
		"host":        host,
	})

	err := c.store.Update(func(tx store.Tx) error {
		flow := store.GetTapFlow(tx, id)
		if flow == nil {
			logger.Debug("status report for unknown tap flow")
			return nil
		}
		switch status {
		case api.StatusInactive:
			logger.Info("tap flow removed")
			return store.DeleteTapFlow(tx, id)
		case api.StatusPendingDelete:
			return nil
		}
		if flow.Status == api.StatusPendingDelete {
			logger.Debug("ignoring status report for tap flow pending deletion")
			return nil
		}
		flow.Status = status
		return store.UpdateTapFlow(tx, flow)
	})
	return errors.Wrapf(err, "failed to set status of tap flow %s", id)
}

// SyncTapResources casts every session of host again so a restarted agent
// converges. It returns the number of casts.
func (c *Coordinator) SyncTapResources(ctx context.Context, host string) (int, error) {
	defer timeOperation("sync_tap_resources")()

	syncer, ok := c.driver.(drivers.Syncer)
	if !ok {
		return 0, nil
	}
	var (
		n   int
		err error
	)
	c.store.View(func(tx store.ReadTx) {
		n, err = syncer.SyncHost(ctx, tx, host)
	})
	if err != nil {
		return 0, err
	}
	c.logger(ctx).WithFields(logrus.Fields{
		"host":  host,
		"casts": n,
	}).Info("tap resources synced")
	return n, nil
}
