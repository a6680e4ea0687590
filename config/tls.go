package config

import (
	"crypto/tls"

	"github.com/docker/go-connections/tlsconfig"
	"github.com/moby/tapkit/errdefs"
	"github.com/phayes/permbits"
	"github.com/pkg/errors"
)

func (t TLS) options() (tlsconfig.Options, error) {
	if t.Key == "" {
		return tlsconfig.Options{}, errdefs.ErrInvalidArgument("tls certificate %s has no key", t.Cert)
	}
	perms, err := permbits.Stat(t.Key)
	if err != nil {
		return tlsconfig.Options{}, errors.Wrapf(err, "failed to stat tls key %s", t.Key)
	}
	if perms.OtherRead() || perms.OtherWrite() || perms.GroupWrite() {
		return tlsconfig.Options{}, errdefs.ErrInvalidArgument("tls key %s must not be accessible by other users (mode %v)", t.Key, perms)
	}
	return tlsconfig.Options{
		CAFile:   t.CA,
		CertFile: t.Cert,
		KeyFile:  t.Key,
	}, nil
}

// ServerConfig returns the server side TLS configuration, or nil when TLS is
// disabled. Clients must present a certificate signed by CA when CA is set.
func (t TLS) ServerConfig() (*tls.Config, error) {
	if !t.Enabled() {
		return nil, nil
	}
	opts, err := t.options()
	if err != nil {
		return nil, err
	}
	if t.CA != "" {
		opts.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsconfig.Server(opts)
}

// ClientConfig returns the client side TLS configuration, or nil when TLS is
// disabled.
func (t TLS) ClientConfig() (*tls.Config, error) {
	if !t.Enabled() {
		return nil, nil
	}
	opts, err := t.options()
	if err != nil {
		return nil, err
	}
	return tlsconfig.Client(opts)
}
