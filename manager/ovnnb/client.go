// Package ovnnb executes tunnel mirror commands against the OVN northbound
// database.
package ovnnb

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager/mirrorqueue"
	"github.com/ovn-org/libovsdb/client"
	"github.com/ovn-org/libovsdb/model"
	"github.com/ovn-org/libovsdb/ovsdb"
	"github.com/pkg/errors"
)

const (
	// DefaultLookupTimeout bounds the retries of a logical switch port
	// lookup.
	DefaultLookupTimeout = 10 * time.Second

	// newMirrorUUID names the mirror row inside the add transaction.
	newMirrorUUID = "new_mirror"

	// ExternalIDTapMirror is the external id holding the owning tap mirror.
	ExternalIDTapMirror = "tapkit:tap_mirror_name"
)

// Config is the connection configuration of the northbound database.
type Config struct {
	// Endpoint is an OVSDB endpoint such as tcp:127.0.0.1:6641 or
	// ssl:10.0.0.1:6641.
	Endpoint string
	TLS      *tls.Config
}

// Client implements mirrorqueue.Executor.
type Client struct {
	nb            client.Client
	lookupTimeout time.Duration

	// getPort and getMirror are replaced in tests.
	getPort   func(ctx context.Context, name string) (*LogicalSwitchPort, error)
	getMirror func(ctx context.Context, name string) (*Mirror, error)
}

var _ mirrorqueue.Executor = &Client{}

// Dial connects to the northbound database and starts monitoring the tables
// of the model.
func Dial(ctx context.Context, config Config) (*Client, error) {
	dbModel, err := FullDatabaseModel()
	if err != nil {
		return nil, err
	}
	opts := []client.Option{client.WithEndpoint(config.Endpoint)}
	if config.TLS != nil {
		opts = append(opts, client.WithTLSConfig(config.TLS))
	}
	nb, err := client.NewOVSDBClient(dbModel, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create northbound client")
	}
	if err := nb.Connect(ctx); err != nil {
		return nil, errdefs.ErrTransient("failed to connect to %s: %v", config.Endpoint, err)
	}
	if _, err := nb.MonitorAll(ctx); err != nil {
		nb.Close()
		return nil, errors.Wrap(err, "failed to monitor northbound tables")
	}
	log.G(ctx).WithField("endpoint", config.Endpoint).Info("connected to OVN northbound database")
	return newClient(nb), nil
}

func newClient(nb client.Client) *Client {
	c := &Client{
		nb:            nb,
		lookupTimeout: DefaultLookupTimeout,
	}
	c.getPort = c.cachedPort
	c.getMirror = c.cachedMirror
	return c
}

// Close disconnects from the database.
func (c *Client) Close() {
	if c.nb != nil {
		c.nb.Close()
	}
}

func (c *Client) cachedPort(ctx context.Context, name string) (*LogicalSwitchPort, error) {
	lsp := &LogicalSwitchPort{Name: name}
	if err := c.nb.Get(ctx, lsp); err != nil {
		return nil, err
	}
	return lsp, nil
}

func (c *Client) cachedMirror(ctx context.Context, name string) (*Mirror, error) {
	var mirrors []Mirror
	err := c.nb.WhereCache(func(m *Mirror) bool {
		return m.Name == name
	}).List(ctx, &mirrors)
	if err != nil {
		return nil, err
	}
	if len(mirrors) == 0 {
		return nil, client.ErrNotFound
	}
	return &mirrors[0], nil
}

// retryNotFound calls fn until it stops failing with client.ErrNotFound or
// the lookup timeout expires. The cache trails the database, so rows written
// a moment ago may not be visible yet.
func (c *Client) retryNotFound(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.lookupTimeout

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !errors.Is(err, client.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// lookupPort finds the logical switch port of a network port. The port may
// not have reached the database yet, so a missing port is retried with
// exponential backoff until the lookup timeout.
func (c *Client) lookupPort(ctx context.Context, portID string) (*LogicalSwitchPort, error) {
	var lsp *LogicalSwitchPort
	err := c.retryNotFound(ctx, func() error {
		p, err := c.getPort(ctx, portID)
		lsp = p
		return err
	})
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, errdefs.ErrTransient("logical switch port %s not found", portID)
		}
		return nil, errors.Wrapf(err, "failed to look up logical switch port %s", portID)
	}
	return lsp, nil
}

func (c *Client) transact(ctx context.Context, ops []ovsdb.Operation) error {
	results, err := c.nb.Transact(ctx, ops...)
	if err != nil {
		return errdefs.ErrTransient("northbound transaction failed: %v", err)
	}
	if _, err := ovsdb.CheckOperationResults(results, ops); err != nil {
		return errors.Wrap(err, "northbound transaction rejected")
	}
	return nil
}

// MirrorAdd creates a mirror and attaches it to its logical switch port in
// one transaction.
func (c *Client) MirrorAdd(ctx context.Context, cmd mirrorqueue.Command) error {
	lsp, err := c.lookupPort(ctx, cmd.PortID)
	if err != nil {
		return err
	}

	mirror := &Mirror{
		UUID:        newMirrorUUID,
		Name:        cmd.Name,
		Filter:      cmd.Filter,
		Sink:        cmd.Sink,
		Type:        cmd.Type,
		Index:       int(cmd.Index),
		ExternalIDs: map[string]string{ExternalIDTapMirror: cmd.Name},
	}
	ops, err := c.nb.Create(mirror)
	if err != nil {
		return errors.Wrapf(err, "failed to build creation of mirror %s", cmd.Name)
	}
	attach, err := c.nb.Where(lsp).Mutate(lsp, model.Mutation{
		Field:   &lsp.MirrorRules,
		Mutator: ovsdb.MutateOperationInsert,
		Value:   []string{mirror.UUID},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to build attachment of mirror %s", cmd.Name)
	}
	return c.transact(ctx, append(ops, attach...))
}

// MirrorDel detaches a mirror from its logical switch port, if attached, and
// deletes it, in one transaction. The mirror is looked up first so that the
// port read afterwards reflects its attachment.
func (c *Client) MirrorDel(ctx context.Context, cmd mirrorqueue.Command) error {
	var mirror *Mirror
	err := c.retryNotFound(ctx, func() error {
		m, err := c.getMirror(ctx, cmd.Name)
		mirror = m
		return err
	})
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return errdefs.ErrNotFound("mirror", cmd.Name)
		}
		return errors.Wrapf(err, "failed to look up mirror %s", cmd.Name)
	}

	lsp, err := c.lookupPort(ctx, cmd.PortID)
	if err != nil {
		return err
	}

	var ops []ovsdb.Operation
	if attached(lsp, mirror.UUID) {
		detach, err := c.nb.Where(lsp).Mutate(lsp, model.Mutation{
			Field:   &lsp.MirrorRules,
			Mutator: ovsdb.MutateOperationDelete,
			Value:   []string{mirror.UUID},
		})
		if err != nil {
			return errors.Wrapf(err, "failed to build detachment of mirror %s", cmd.Name)
		}
		ops = append(ops, detach...)
	}
	del, err := c.nb.Where(mirror).Delete()
	if err != nil {
		return errors.Wrapf(err, "failed to build deletion of mirror %s", cmd.Name)
	}
	return c.transact(ctx, append(ops, del...))
}

func attached(lsp *LogicalSwitchPort, uuid string) bool {
	for _, rule := range lsp.MirrorRules {
		if rule == uuid {
			return true
		}
	}
	return false
}
