package main

import (
	"testing"

	"github.com/moby/tapkit/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideConfig(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("driver", "pipeline", "")
	cmd.Flags().String("listen-addr", config.DefaultListenAddr, "")
	cmd.Flags().String("tls-ca", "", "")
	cmd.Flags().String("tls-cert", "", "")
	cmd.Flags().String("tls-key", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--driver", "tunnel", "--tls-cert", "cert.pem"}))

	c := config.DefaultManager()
	c.ListenAddr = "10.0.0.1:4242"
	c.TLS.Key = "key.pem"

	require.NoError(t, stringFlag(cmd.Flags(), "driver", &c.Driver))
	require.NoError(t, stringFlag(cmd.Flags(), "listen-addr", &c.ListenAddr))
	require.NoError(t, tlsFlags(cmd, &c.TLS))

	assert.Equal(t, "tunnel", c.Driver)
	// flags left at their default do not clobber the file
	assert.Equal(t, "10.0.0.1:4242", c.ListenAddr)
	assert.Equal(t, config.TLS{Cert: "cert.pem", Key: "key.pem"}, c.TLS)

	// unknown flags are never set
	assert.NoError(t, stringFlag(cmd.Flags(), "missing", &c.Driver))
	assert.Equal(t, "tunnel", c.Driver)
}
