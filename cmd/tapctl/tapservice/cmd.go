package tapservice

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
	// Cmd exposes the top-level tap service command.
	Cmd = &cobra.Command{
		Use:     "tap-service",
		Aliases: []string{"ts"},
		Short:   "Tap service management",
	}

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a tap service",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			svc := &api.TapService{}
			for _, f := range []struct {
				name string
				dst  *string
			}{
				{"tenant", &svc.Tenant},
				{"name", &svc.Name},
				{"description", &svc.Description},
				{"port", &svc.PortID},
			} {
				v, err := flags.GetString(f.name)
				if err != nil {
					return err
				}
				*f.dst = v
			}
			if svc.PortID == "" {
				return errors.New("--port is mandatory")
			}

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.CreateTapService(ctx, &api.CreateTapServiceRequest{TapService: svc})
			if err != nil {
				return err
			}
			fmt.Println(r.TapService.ID)
			return nil
		},
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect <tap service ID>",
		Short: "Inspect a tap service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("tap service ID missing")
			}
			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.GetTapService(ctx, &api.GetTapServiceRequest{TapServiceID: args[0]})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 8, 8, 8, ' ', 0)
			defer func() {
				// Ignore flushing errors - there's nothing we can do.
				_ = w.Flush()
			}()
			svc := r.TapService
			fmt.Fprintf(w, "ID\t: %s\n", svc.ID)
			common.FprintfIfNotEmpty(w, "Name\t: %s\n", svc.Name)
			common.FprintfIfNotEmpty(w, "Description\t: %s\n", svc.Description)
			fmt.Fprintf(w, "Tenant\t: %s\n", svc.Tenant)
			fmt.Fprintf(w, "Port\t: %s\n", svc.PortID)
			fmt.Fprintf(w, "Status\t: %s\n", svc.Status)
			if r.TaasID != 0 {
				fmt.Fprintf(w, "Session\t: %d\n", r.TaasID)
			}
			common.PrintMeta(w, svc.Meta)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "ls",
		Short: "List tap services",
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

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.ListTapServices(ctx, &api.ListTapServicesRequest{Tenant: tenant})
			if err != nil {
				return err
			}

			var output func(s *api.TapService)
			if !quiet {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				defer func() {
					// Ignore flushing errors - there's nothing we can do.
					_ = w.Flush()
				}()
				common.PrintHeader(w, "ID", "Name", "Tenant", "Port", "Status", "Created")
				output = func(s *api.TapService) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						s.ID,
						s.Name,
						s.Tenant,
						s.PortID,
						s.Status,
						common.Age(s.Meta.CreatedAt),
					)
				}
			} else {
				output = func(s *api.TapService) { fmt.Println(s.ID) }
			}

			for _, s := range r.TapServices {
				output(s)
			}
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:     "rm <tap service ID>",
		Aliases: []string{"remove"},
		Short:   "Remove a tap service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("tap service ID missing")
			}
			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			for _, id := range args {
				if _, err := c.DeleteTapService(ctx, &api.DeleteTapServiceRequest{TapServiceID: id}); err != nil {
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
	createCmd.Flags().String("name", "", "Tap service name")
	createCmd.Flags().String("description", "", "Tap service description")
	createCmd.Flags().String("port", "", "Destination port ID")

	listCmd.Flags().BoolP("quiet", "q", false, "Only display IDs")
	listCmd.Flags().String("tenant", "", "Only list the tap services of a tenant")

	Cmd.AddCommand(
		createCmd,
		inspectCmd,
		listCmd,
		removeCmd,
	)
}
