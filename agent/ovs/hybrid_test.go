package ovs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

func TestHybridBridgeName(t *testing.T) {
	assert.Equal(t, "qbr1234abcd-12", HybridBridgeName("qvo1234abcd-12"))
	assert.Equal(t, "tap1234", HybridBridgeName("tap1234"))
}

func TestDisableAgeing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "qbr1234", "bridge"), 0755))

	oldSysfs, oldLink := sysfsNet, linkByName
	defer func() { sysfsNet, linkByName = oldSysfs, oldLink }()
	sysfsNet = dir

	linkByName = func(name string) (netlink.Link, error) {
		switch name {
		case "qbr1234":
			return &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: name}}, nil
		case "qbrdummy":
			return &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: name}}, nil
		}
		return nil, errors.New("Link not found")
	}

	require.NoError(t, DisableAgeing("qvo1234"))
	content, err := os.ReadFile(filepath.Join(dir, "qbr1234", "bridge", "ageing_time"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(content))

	assert.Error(t, DisableAgeing("qvodummy"))
	assert.Error(t, DisableAgeing("qvomissing"))
}
