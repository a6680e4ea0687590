package main

import (
	"os"

	"github.com/moby/tapkit/cmd/tapctl/port"
	"github.com/moby/tapkit/cmd/tapctl/tapflow"
	"github.com/moby/tapkit/cmd/tapctl/tapmirror"
	"github.com/moby/tapkit/cmd/tapctl/tapservice"
	"github.com/moby/tapkit/config"
	"github.com/moby/tapkit/version"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"
)

func main() {
	if c, err := mainCmd.ExecuteC(); err != nil {
		s, _ := status.FromError(err)
		c.Println("Error:", s.Message())
		// if it's not a grpc, we assume it's a user error and we display the usage.
		if _, ok := status.FromError(err); !ok {
			c.Println(c.UsageString())
		}

		os.Exit(-1)
	}
}

var (
	mainCmd = &cobra.Command{
		Use:           os.Args[0],
		Short:         "Control a tapkit manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func defaultAddr() string {
	if addr := os.Getenv("TAPKIT_MANAGER"); addr != "" {
		return addr
	}
	return "localhost:4242"
}

func init() {
	mainCmd.PersistentFlags().StringP("addr", "a", defaultAddr(), "Address of the tapkit manager")
	mainCmd.PersistentFlags().Duration("timeout", config.DefaultPeriodicInterval*2, "Timeout of each request")
	mainCmd.PersistentFlags().String("tls-ca", "", "CA certificate used to verify the manager")
	mainCmd.PersistentFlags().String("tls-cert", "", "Client certificate")
	mainCmd.PersistentFlags().String("tls-key", "", "Private key of the client certificate")

	mainCmd.AddCommand(
		tapservice.Cmd,
		tapflow.Cmd,
		tapmirror.Cmd,
		port.Cmd,
		version.Cmd,
	)
}
