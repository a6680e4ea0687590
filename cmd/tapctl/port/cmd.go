package port

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/cmd/tapctl/common"
	"github.com/spf13/cobra"
)

var (
	// Cmd exposes the top-level port command.
	Cmd = &cobra.Command{
		Use:   "port",
		Short: "Port management",
		Long: `Ports are owned by the network layer. They are registered here so that
mirror sessions can reference them, and removed when the network layer
deletes them.`,
	}

	registerCmd = &cobra.Command{
		Use:   "register <port ID>",
		Short: "Register or update a port",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("port ID missing")
			}
			flags := cmd.Flags()
			p := &api.Port{ID: args[0]}
			for _, f := range []struct {
				name string
				dst  *string
			}{
				{"tenant", &p.Tenant},
				{"name", &p.Name},
				{"host", &p.Host},
				{"mac", &p.MACAddress},
				{"network", &p.NetworkID},
				{"network-type", &p.NetworkType},
				{"vnic-type", &p.VNICType},
			} {
				v, err := flags.GetString(f.name)
				if err != nil {
					return err
				}
				*f.dst = v
			}
			hybrid, err := flags.GetBool("hybrid-plug")
			if err != nil {
				return err
			}
			p.HybridPlug = hybrid

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.RegisterPort(ctx, &api.RegisterPortRequest{Port: p})
			if err != nil {
				return err
			}
			fmt.Println(r.Port.ID)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "ls",
		Short: "List ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			quiet, err := flags.GetBool("quiet")
			if err != nil {
				return err
			}
			tenant, err := flags.GetString("tenant")
			if err != nil {
				return err
			}
			host, err := flags.GetString("host")
			if err != nil {
				return err
			}

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.ListPorts(ctx, &api.ListPortsRequest{Tenant: tenant, Host: host})
			if err != nil {
				return err
			}

			var output func(p *api.Port)
			if !quiet {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				defer func() {
					// Ignore flushing errors - there's nothing we can do.
					_ = w.Flush()
				}()
				common.PrintHeader(w, "ID", "Tenant", "Host", "MAC", "Network type", "VNIC type")
				output = func(p *api.Port) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						p.ID,
						p.Tenant,
						p.Host,
						p.MACAddress,
						p.NetworkType,
						p.VNICType,
					)
				}
			} else {
				output = func(p *api.Port) { fmt.Println(p.ID) }
			}

			for _, p := range r.Ports {
				output(p)
			}
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:     "rm <port ID>",
		Aliases: []string{"remove"},
		Short:   "Remove a port and the sessions referencing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("port ID missing")
			}
			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			for _, id := range args {
				if _, err := c.RemovePort(ctx, &api.RemovePortRequest{PortID: id}); err != nil {
					return err
				}
				fmt.Println(id)
			}
			return nil
		},
	}
)

func init() {
	registerCmd.Flags().String("tenant", "", "Owning tenant")
	registerCmd.Flags().String("name", "", "Port name")
	registerCmd.Flags().String("host", "", "Host the port is bound to")
	registerCmd.Flags().String("mac", "", "MAC address")
	registerCmd.Flags().String("network", "", "Network ID")
	registerCmd.Flags().String("network-type", api.NetworkTypeVXLAN, "Segmentation type of the network")
	registerCmd.Flags().String("vnic-type", api.VNICNormal, "VNIC type (options \"normal\", \"direct\")")
	registerCmd.Flags().Bool("hybrid-plug", false, "Port is plugged through a Linux bridge")

	listCmd.Flags().BoolP("quiet", "q", false, "Only display IDs")
	listCmd.Flags().String("tenant", "", "Only list the ports of a tenant")
	listCmd.Flags().String("host", "", "Only list the ports bound to a host")

	Cmd.AddCommand(
		registerCmd,
		listCmd,
		removeCmd,
	)
}
