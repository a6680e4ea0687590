package tapflow

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/cmd/tapctl/common"
	"github.com/spf13/cobra"
)

var (
	// Cmd exposes the top-level tap flow command.
	Cmd = &cobra.Command{
		Use:     "tap-flow",
		Aliases: []string{"tf"},
		Short:   "Tap flow management",
	}

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a tap flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			flow := &api.TapFlow{}
			var direction string
			for _, f := range []struct {
				name string
				dst  *string
			}{
				{"tenant", &flow.Tenant},
				{"name", &flow.Name},
				{"description", &flow.Description},
				{"tap-service", &flow.TapServiceID},
				{"port", &flow.SourcePort},
				{"direction", &direction},
				{"vlan-filter", &flow.VLANFilter},
			} {
				v, err := flags.GetString(f.name)
				if err != nil {
					return err
				}
				*f.dst = v
			}
			if flow.TapServiceID == "" || flow.SourcePort == "" {
				return errors.New("--tap-service and --port are mandatory")
			}
			flow.Direction = api.Direction(strings.ToUpper(direction))
			if !flow.Direction.Valid() {
				return fmt.Errorf("invalid direction %q", direction)
			}

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.CreateTapFlow(ctx, &api.CreateTapFlowRequest{TapFlow: flow})
			if err != nil {
				return err
			}
			fmt.Println(r.TapFlow.ID)
			return nil
		},
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect <tap flow ID>",
		Short: "Inspect a tap flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("tap flow ID missing")
			}
			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.GetTapFlow(ctx, &api.GetTapFlowRequest{TapFlowID: args[0]})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 8, 8, 8, ' ', 0)
			defer func() {
				// Ignore flushing errors - there's nothing we can do.
				_ = w.Flush()
			}()
			flow := r.TapFlow
			fmt.Fprintf(w, "ID\t: %s\n", flow.ID)
			common.FprintfIfNotEmpty(w, "Name\t: %s\n", flow.Name)
			common.FprintfIfNotEmpty(w, "Description\t: %s\n", flow.Description)
			fmt.Fprintf(w, "Tenant\t: %s\n", flow.Tenant)
			fmt.Fprintf(w, "Tap service\t: %s\n", flow.TapServiceID)
			fmt.Fprintf(w, "Source port\t: %s\n", flow.SourcePort)
			fmt.Fprintf(w, "Direction\t: %s\n", flow.Direction)
			common.FprintfIfNotEmpty(w, "VLAN filter\t: %s\n", flow.VLANFilter)
			fmt.Fprintf(w, "Status\t: %s\n", flow.Status)
			common.PrintMeta(w, flow.Meta)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "ls",
		Short: "List tap flows",
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
			service, err := flags.GetString("tap-service")
			if err != nil {
				return err
			}

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.ListTapFlows(ctx, &api.ListTapFlowsRequest{Tenant: tenant, TapServiceID: service})
			if err != nil {
				return err
			}

			var output func(f *api.TapFlow)
			if !quiet {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				defer func() {
					// Ignore flushing errors - there's nothing we can do.
					_ = w.Flush()
				}()
				common.PrintHeader(w, "ID", "Name", "Tap service", "Source port", "Direction", "Status", "Created")
				output = func(f *api.TapFlow) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						f.ID,
						f.Name,
						f.TapServiceID,
						f.SourcePort,
						f.Direction,
						f.Status,
						common.Age(f.Meta.CreatedAt),
					)
				}
			} else {
				output = func(f *api.TapFlow) { fmt.Println(f.ID) }
			}

			for _, f := range r.TapFlows {
				output(f)
			}
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:     "rm <tap flow ID>",
		Aliases: []string{"remove"},
		Short:   "Remove a tap flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("tap flow ID missing")
			}
			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			for _, id := range args {
				if _, err := c.DeleteTapFlow(ctx, &api.DeleteTapFlowRequest{TapFlowID: id}); err != nil {
					return err
				}
				fmt.Println(id)
			}
			return nil
		},
	}
)

func init() {
	createCmd.Flags().String("tenant", "", "Owning tenant")
	createCmd.Flags().String("name", "", "Tap flow name")
	createCmd.Flags().String("description", "", "Tap flow description")
	createCmd.Flags().String("tap-service", "", "Tap service receiving the mirrored traffic")
	createCmd.Flags().String("port", "", "Source port ID")
	createCmd.Flags().String("direction", string(api.DirectionBoth), "Mirrored direction (options \"IN\", \"OUT\", \"BOTH\")")
	createCmd.Flags().String("vlan-filter", "", "VLAN ranges to mirror, e.g. \"9,18-27\"")

	listCmd.Flags().BoolP("quiet", "q", false, "Only display IDs")
	listCmd.Flags().String("tenant", "", "Only list the tap flows of a tenant")
	listCmd.Flags().String("tap-service", "", "Only list the tap flows of a tap service")

	Cmd.AddCommand(
		createCmd,
		inspectCmd,
		listCmd,
		removeCmd,
	)
}
