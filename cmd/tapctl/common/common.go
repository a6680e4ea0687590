package common

import (
	"context"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/config"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Dial establishes a connection and creates a client.
// It infers connection parameters from CLI options.
func Dial(cmd *cobra.Command) (api.ControlClient, error) {
	flags := cmd.Flags()
	addr, err := flags.GetString("addr")
	if err != nil {
		return nil, err
	}

	var t config.TLS
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"tls-ca", &t.CA},
		{"tls-cert", &t.Cert},
		{"tls-key", &t.Key},
	} {
		if *f.dst, err = flags.GetString(f.name); err != nil {
			return nil, err
		}
	}

	opts := []grpc.DialOption{grpc.WithInsecure()}
	tlsConfig, err := t.ClientConfig()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig))}
	}

	conn, err := grpc.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}

	return api.NewControlClient(conn), nil
}

// Context returns a request context based on CLI arguments.
func Context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
