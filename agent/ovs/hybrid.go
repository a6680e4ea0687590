package ovs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

var (
	sysfsNet   = "/sys/class/net"
	linkByName = netlink.LinkByName
)

// HybridBridgeName returns the Linux bridge sitting behind a hybrid-plugged
// integration bridge port.
func HybridBridgeName(ovsPortName string) string {
	return strings.Replace(ovsPortName, "qvo", "qbr", 1)
}

// DisableAgeing sets the MAC ageing time of the Linux bridge behind a
// hybrid-plugged port to zero. The bridge then floods every frame, so
// mirrored traffic reaches the VM whatever its destination MAC.
func DisableAgeing(ovsPortName string) error {
	name := HybridBridgeName(ovsPortName)
	link, err := linkByName(name)
	if err != nil {
		return errors.Wrapf(err, "failed to find bridge %s", name)
	}
	if link.Type() != "bridge" {
		return errors.Errorf("%s is a %s, not a bridge", name, link.Type())
	}
	// netlink has no attribute for the ageing time of a bridge.
	path := filepath.Join(sysfsNet, name, "bridge", "ageing_time")
	if err := os.WriteFile(path, []byte("0"), 0644); err != nil {
		return errors.Wrapf(err, "failed to disable ageing on %s", name)
	}
	return nil
}
