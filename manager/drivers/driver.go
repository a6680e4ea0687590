package drivers

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/manager/state/store"
)

// TapServiceContext is the state handed to the tap service callbacks of a
// SessionDriver. Precommit callbacks may fill in TaasID and Port.
type TapServiceContext struct {
	TapService *api.TapService
	Port       *api.Port
	TaasID     uint32
}

// TapFlowContext is the state handed to the tap flow callbacks of a
// SessionDriver.
type TapFlowContext struct {
	TapFlow     *api.TapFlow
	TapService  *api.TapService
	SourcePort  *api.Port
	ServicePort *api.Port
	TaasID      uint32
}

// TapMirrorContext is the state handed to the tap mirror callbacks of a
// SessionDriver.
type TapMirrorContext struct {
	TapMirror *api.TapMirror
	Port      *api.Port
}

// SessionDriver programs mirror sessions into a dataplane.
//
// Precommit callbacks run inside the store write transaction that persists
// the record; an error aborts the whole transaction. Postcommit callbacks
// run after the commit and perform the external effect.
type SessionDriver interface {
	Name() string

	CreateTapServicePrecommit(ctx context.Context, tx store.Tx, c *TapServiceContext) error
	CreateTapServicePostcommit(ctx context.Context, c *TapServiceContext) error
	DeleteTapServicePrecommit(ctx context.Context, tx store.Tx, c *TapServiceContext) error
	DeleteTapServicePostcommit(ctx context.Context, c *TapServiceContext) error

	CreateTapFlowPrecommit(ctx context.Context, tx store.Tx, c *TapFlowContext) error
	CreateTapFlowPostcommit(ctx context.Context, c *TapFlowContext) error
	DeleteTapFlowPrecommit(ctx context.Context, tx store.Tx, c *TapFlowContext) error
	DeleteTapFlowPostcommit(ctx context.Context, c *TapFlowContext) error

	CreateTapMirrorPrecommit(ctx context.Context, tx store.Tx, c *TapMirrorContext) error
	CreateTapMirrorPostcommit(ctx context.Context, c *TapMirrorContext) error
	DeleteTapMirrorPrecommit(ctx context.Context, tx store.Tx, c *TapMirrorContext) error
	DeleteTapMirrorPostcommit(ctx context.Context, c *TapMirrorContext) error
}

// Caster delivers cast messages to the agents.
type Caster interface {
	Cast(ctx context.Context, msg *api.CastMessage) error
}

// Syncer is implemented by drivers whose dataplane agents can ask for the
// sessions of their host to be sent again.
type Syncer interface {
	SyncHost(ctx context.Context, tx store.ReadTx, host string) (int, error)
}
