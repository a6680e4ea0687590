package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/moby/tapkit/config"
	"github.com/moby/tapkit/log"
	"github.com/moby/tapkit/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	if err := mainCmd.Execute(); err != nil {
		log.L.Fatal(err)
	}
}

var (
	mainCmd = &cobra.Command{
		Use:          os.Args[0],
		Short:        "Run a tapkit control process",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logrus.SetOutput(os.Stderr)
			flag, err := cmd.Flags().GetString("log-level")
			if err != nil {
				log.L.Fatal(err)
			}
			level, err := logrus.ParseLevel(flag)
			if err != nil {
				log.L.Fatal(err)
			}
			logrus.SetLevel(level)
			log.ConfigureGRPC()
		},
	}
)

func init() {
	mainCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (options \"debug\", \"info\", \"warn\", \"error\", \"fatal\", \"panic\")")
	mainCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file, command line flags take precedence")
	mainCmd.PersistentFlags().StringP("state-dir", "d", "", "State directory")
	mainCmd.PersistentFlags().String("tls-ca", "", "CA certificate used to verify peers")
	mainCmd.PersistentFlags().String("tls-cert", "", "Certificate presented to peers")
	mainCmd.PersistentFlags().String("tls-key", "", "Private key of the certificate")

	mainCmd.AddCommand(
		agentCmd,
		managerCmd,
		version.Cmd,
	)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig decodes the file named by --config, if any, into v.
func loadConfig(cmd *cobra.Command, v interface{}) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}
	return path, config.Load(path, v)
}

// tlsFlags overrides the TLS file names set on the command line.
func tlsFlags(cmd *cobra.Command, t *config.TLS) error {
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"tls-ca", &t.CA},
		{"tls-cert", &t.Cert},
		{"tls-key", &t.Key},
	} {
		if err := stringFlag(cmd.Flags(), f.name, f.dst); err != nil {
			return err
		}
	}
	return nil
}

// stringFlag stores the value of a flag in dst when it was set.
func stringFlag(flags *pflag.FlagSet, name string, dst *string) error {
	if !flags.Changed(name) {
		return nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
