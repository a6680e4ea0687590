package main

import (
	"github.com/moby/tapkit/config"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/manager"
	"github.com/spf13/cobra"
)

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the tapkit manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := config.DefaultManager()
		path, err := loadConfig(cmd, c)
		if err != nil {
			return err
		}

		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"listen-addr", &c.ListenAddr},
			{"metrics-listen-addr", &c.MetricsListenAddr},
			{"state-dir", &c.StateDir},
			{"driver", &c.Driver},
			{"ovn-nb", &c.OVN.Endpoint},
		} {
			if err := stringFlag(cmd.Flags(), f.name, f.dst); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("vlan-range-start") {
			if c.VLANRangeStart, err = cmd.Flags().GetUint32("vlan-range-start"); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("vlan-range-end") {
			if c.VLANRangeEnd, err = cmd.Flags().GetUint32("vlan-range-end"); err != nil {
				return err
			}
		}
		if err := tlsFlags(cmd, &c.TLS); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		m, err := manager.New(ctx, &manager.Config{
			Manager:    c,
			ConfigPath: path,
		})
		if err != nil {
			return err
		}

		log.G(ctx).WithField("addr", c.ListenAddr).Info("starting manager")
		return m.Run(ctx)
	},
}

func init() {
	managerCmd.Flags().String("listen-addr", config.DefaultListenAddr, "Listen address")
	managerCmd.Flags().String("metrics-listen-addr", "", "Listen address of the /metrics endpoint, disabled when empty")
	managerCmd.Flags().String("driver", "pipeline", "Session driver (options \"pipeline\", \"tunnel\")")
	managerCmd.Flags().String("ovn-nb", "", "OVN northbound database endpoint, required by the tunnel driver")
	managerCmd.Flags().Uint32("vlan-range-start", config.DefaultVLANRangeStart, "First session identifier")
	managerCmd.Flags().Uint32("vlan-range-end", config.DefaultVLANRangeEnd, "Session identifier range end, exclusive")
}
