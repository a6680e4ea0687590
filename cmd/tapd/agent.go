package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/moby/tapkit/agent"
	"github.com/moby/tapkit/agent/ovs"
	"github.com/moby/tapkit/config"
	"github.com/moby/tapkit/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var (
	agentCmd = &cobra.Command{
		Use:   "agent",
		Short: "Run the tapkit agent",
		Long: `Start a tapkit agent on a compute host. The agent creates the tap bridge,
connects to the manager and programs the mirror sessions placed on this
host. What was programmed is kept in the state directory, so sessions can
be torn down after a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := config.DefaultAgent()
			if _, err := loadConfig(cmd, c); err != nil {
				return err
			}

			for _, f := range []struct {
				name string
				dst  *string
			}{
				{"hostname", &c.Hostname},
				{"manager", &c.Manager},
				{"state-dir", &c.StateDir},
				{"integration-bridge", &c.IntegrationBr},
				{"tap-bridge", &c.TapBr},
				{"tunnel-bridge", &c.TunnelBr},
			} {
				if err := stringFlag(cmd.Flags(), f.name, f.dst); err != nil {
					return err
				}
			}
			var err error
			if cmd.Flags().Changed("periodic-interval") {
				if c.PeriodicInterval, err = cmd.Flags().GetDuration("periodic-interval"); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("enable-bcmc") {
				if c.EnableBCMC, err = cmd.Flags().GetBool("enable-bcmc"); err != nil {
					return err
				}
			}
			if err := tlsFlags(cmd, &c.TLS); err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}

			dialOpts := []grpc.DialOption{grpc.WithInsecure()}
			tlsConfig, err := c.TLS.ClientConfig()
			if err != nil {
				return err
			}
			if tlsConfig != nil {
				dialOpts = []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig))}
			}

			if err := os.MkdirAll(c.StateDir, 0700); err != nil {
				return errors.Wrap(err, "failed to create state directory")
			}
			db, err := bolt.Open(filepath.Join(c.StateDir, "agent.db"), 0600, &bolt.Options{Timeout: time.Second})
			if err != nil {
				return errors.Wrap(err, "failed to open agent database")
			}
			defer db.Close()

			ctx, cancel := signalContext()
			defer cancel()
			ctx = log.WithLogger(ctx, log.G(ctx).WithFields(logrus.Fields{
				"hostname": c.Hostname,
				"manager":  c.Manager,
			}))

			a, err := agent.New(&agent.Config{
				Host:        c.Hostname,
				Addr:        c.Manager,
				DialOptions: dialOpts,
				Switch: ovs.New(ovs.Config{
					IntegrationBridge: c.IntegrationBr,
					TapBridge:         c.TapBr,
					TunnelBridge:      c.TunnelBr,
				}),
				DB:               db,
				EnableBCMC:       c.EnableBCMC,
				PeriodicInterval: c.PeriodicInterval,
			})
			if err != nil {
				return err
			}

			log.G(ctx).Info("starting agent")
			return a.Run(ctx)
		},
	}
)

func init() {
	agentCmd.Flags().String("hostname", "", "Override reported agent hostname")
	agentCmd.Flags().StringP("manager", "m", "localhost:4242", "Manager address")
	agentCmd.Flags().String("integration-bridge", config.DefaultIntegrationBr, "Integration bridge")
	agentCmd.Flags().String("tap-bridge", config.DefaultTapBr, "Tap bridge, created if missing")
	agentCmd.Flags().String("tunnel-bridge", config.DefaultTunnelBr, "Tunnel bridge")
	agentCmd.Flags().Duration("periodic-interval", config.DefaultPeriodicInterval, "Interval of the flood flow refresh")
	agentCmd.Flags().Bool("enable-bcmc", false, "Mirror ingress broadcast and multicast traffic")
}
