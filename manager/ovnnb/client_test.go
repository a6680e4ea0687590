package ovnnb

import (
	"context"
	"testing"
	"time"

	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/mirrorqueue"
	"github.com/ovn-org/libovsdb/client"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPortRetriesUntilFound(t *testing.T) {
	calls := 0
	c := &Client{
		lookupTimeout: 5 * time.Second,
		getPort: func(_ context.Context, name string) (*LogicalSwitchPort, error) {
			calls++
			if calls < 3 {
				return nil, client.ErrNotFound
			}
			return &LogicalSwitchPort{UUID: "lsp-uuid", Name: name}, nil
		},
	}

	lsp, err := c.lookupPort(context.Background(), "port-1")
	require.NoError(t, err)
	assert.Equal(t, "port-1", lsp.Name)
	assert.Equal(t, 3, calls)
}

func TestLookupPortExhaustedIsTransient(t *testing.T) {
	c := &Client{
		lookupTimeout: 50 * time.Millisecond,
		getPort: func(context.Context, string) (*LogicalSwitchPort, error) {
			return nil, client.ErrNotFound
		},
	}

	_, err := c.lookupPort(context.Background(), "port-1")
	require.Error(t, err)
	assert.True(t, errdefs.IsTransient(err))
}

func TestLookupPortPermanentError(t *testing.T) {
	calls := 0
	c := &Client{
		lookupTimeout: 5 * time.Second,
		getPort: func(context.Context, string) (*LogicalSwitchPort, error) {
			calls++
			return nil, errors.New("connection reset")
		},
	}

	_, err := c.lookupPort(context.Background(), "port-1")
	require.Error(t, err)
	assert.False(t, errdefs.IsTransient(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, calls)
}

func TestAttached(t *testing.T) {
	lsp := &LogicalSwitchPort{MirrorRules: []string{"a", "b"}}
	assert.True(t, attached(lsp, "b"))
	assert.False(t, attached(lsp, "c"))
}

func TestFullDatabaseModel(t *testing.T) {
	m, err := FullDatabaseModel()
	require.NoError(t, err)
	assert.Equal(t, DatabaseName, m.Name())
}

func TestMirrorDelRetriesUntilMirrorVisible(t *testing.T) {
	c := &Client{lookupTimeout: 50 * time.Millisecond}
	calls := 0
	c.getMirror = func(context.Context, string) (*Mirror, error) {
		calls++
		return nil, client.ErrNotFound
	}

	err := c.MirrorDel(context.Background(), mirrorqueue.MirrorDelete("tm_in_abc", "port-1"))
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Greater(t, calls, 1)
}
