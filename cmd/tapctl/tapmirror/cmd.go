package tapmirror

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/cmd/tapctl/common"
	"github.com/spf13/cobra"
)

var (
	// Cmd exposes the top-level tap mirror command.
	Cmd = &cobra.Command{
		Use:     "tap-mirror",
		Aliases: []string{"tm"},
		Short:   "Tap mirror management",
	}

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a tap mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			mirror := &api.TapMirror{}
			var mirrorType string
			for _, f := range []struct {
				name string
				dst  *string
			}{
				{"project", &mirror.Project},
				{"name", &mirror.Name},
				{"description", &mirror.Description},
				{"port", &mirror.PortID},
				{"remote-ip", &mirror.RemoteIP},
				{"mirror-type", &mirrorType},
			} {
				v, err := flags.GetString(f.name)
				if err != nil {
					return err
				}
				*f.dst = v
			}
			mirror.MirrorType = api.MirrorType(strings.ToLower(mirrorType))

			directions, err := flags.GetStringToString("directions")
			if err != nil {
				return err
			}
			mirror.Directions, err = parseDirections(directions)
			if err != nil {
				return err
			}

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.CreateTapMirror(ctx, &api.CreateTapMirrorRequest{TapMirror: mirror})
			if err != nil {
				return err
			}
			fmt.Println(r.TapMirror.ID)
			return nil
		},
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect <tap mirror ID>",
		Short: "Inspect a tap mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("tap mirror ID missing")
			}
			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.GetTapMirror(ctx, &api.GetTapMirrorRequest{TapMirrorID: args[0]})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 8, 8, 8, ' ', 0)
			defer func() {
				// Ignore flushing errors - there's nothing we can do.
				_ = w.Flush()
			}()
			mirror := r.TapMirror
			fmt.Fprintf(w, "ID\t: %s\n", mirror.ID)
			common.FprintfIfNotEmpty(w, "Name\t: %s\n", mirror.Name)
			common.FprintfIfNotEmpty(w, "Description\t: %s\n", mirror.Description)
			fmt.Fprintf(w, "Project\t: %s\n", mirror.Project)
			fmt.Fprintf(w, "Port\t: %s\n", mirror.PortID)
			fmt.Fprintf(w, "Remote IP\t: %s\n", mirror.RemoteIP)
			fmt.Fprintf(w, "Type\t: %s\n", mirror.MirrorType)
			fmt.Fprintf(w, "Directions\t: %s\n", formatDirections(mirror))
			common.PrintMeta(w, mirror.Meta)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "ls",
		Short: "List tap mirrors",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			quiet, err := flags.GetBool("quiet")
			if err != nil {
				return err
			}
			project, err := flags.GetString("project")
			if err != nil {
				return err
			}

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			r, err := c.ListTapMirrors(ctx, &api.ListTapMirrorsRequest{Project: project})
			if err != nil {
				return err
			}

			var output func(m *api.TapMirror)
			if !quiet {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				defer func() {
					// Ignore flushing errors - there's nothing we can do.
					_ = w.Flush()
				}()
				common.PrintHeader(w, "ID", "Name", "Port", "Remote IP", "Type", "Directions", "Created")
				output = func(m *api.TapMirror) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						m.ID,
						m.Name,
						m.PortID,
						m.RemoteIP,
						m.MirrorType,
						formatDirections(m),
						common.Age(m.Meta.CreatedAt),
					)
				}
			} else {
				output = func(m *api.TapMirror) { fmt.Println(m.ID) }
			}

			for _, m := range r.TapMirrors {
				output(m)
			}
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:     "rm <tap mirror ID>",
		Aliases: []string{"remove"},
		Short:   "Remove a tap mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("tap mirror ID missing")
			}
			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := common.Context(cmd)
			defer cancel()
			for _, id := range args {
				if _, err := c.DeleteTapMirror(ctx, &api.DeleteTapMirrorRequest{TapMirrorID: id}); err != nil {
					return err
				}
				fmt.Println(id)
			}
			return nil
		},
	}
)

// parseDirections turns IN=100,OUT=101 into tunnel keys per direction.
func parseDirections(in map[string]string) (map[api.Direction]uint32, error) {
	if len(in) == 0 {
		return nil, errors.New("--directions is mandatory")
	}
	out := make(map[api.Direction]uint32, len(in))
	for k, v := range in {
		d := api.Direction(strings.ToUpper(k))
		if !d.Valid() {
			return nil, fmt.Errorf("invalid direction %q", k)
		}
		key, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid tunnel key %q for %s", v, d)
		}
		out[d] = uint32(key)
	}
	return out, nil
}

func formatDirections(m *api.TapMirror) string {
	parts := make([]string, 0, len(m.Directions))
	for _, d := range m.SortedDirections() {
		parts = append(parts, fmt.Sprintf("%s=%d", d, m.Directions[d]))
	}
	return strings.Join(parts, ",")
}

func init() {
	createCmd.Flags().String("project", "", "Owning project")
	createCmd.Flags().String("name", "", "Tap mirror name")
	createCmd.Flags().String("description", "", "Tap mirror description")
	createCmd.Flags().String("port", "", "Mirrored port ID")
	createCmd.Flags().String("remote-ip", "", "Tunnel endpoint receiving the mirrored traffic")
	createCmd.Flags().String("mirror-type", string(api.MirrorTypeERSPANv1), "Encapsulation (options \"erspanv1\", \"gre\")")
	createCmd.Flags().StringToString("directions", nil, "Tunnel key per direction, e.g. IN=100,OUT=101")

	listCmd.Flags().BoolP("quiet", "q", false, "Only display IDs")
	listCmd.Flags().String("project", "", "Only list the tap mirrors of a project")

	Cmd.AddCommand(
		createCmd,
		inspectCmd,
		listCmd,
		removeCmd,
	)
}
