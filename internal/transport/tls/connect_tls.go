package tls

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/tlsconf"
	"github.com/thriftmux/thriftmux/internal/transport"
)

type TLSConnecter struct {
	Address   string
	dialer    net.Dialer
	tlsConfig *tls.Config
}

// TLSConnecterFromConfig loads the certificates named in the config.
// With parseOnly, no files are read and the connecter cannot Connect.
func TLSConnecterFromConfig(in *config.TLSConnect, parseOnly bool) (*TLSConnecter, error) {
	dialer := net.Dialer{
		Timeout: in.DialTimeout,
	}

	if parseOnly {
		return &TLSConnecter{in.Address, dialer, nil}, nil
	}

	tlsConfig, err := tlsconf.ClientAuthClientFromFiles(in.Ca, in.Cert, in.Key, in.ServerCN)
	if err != nil {
		return nil, err
	}

	return &TLSConnecter{in.Address, dialer, tlsConfig}, nil
}

func (c *TLSConnecter) Connect(dialCtx context.Context) (transport.Wire, error) {
	if c.tlsConfig == nil {
		return nil, errors.New("tls connecter was created for config parsing only")
	}
	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.Address)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, c.tlsConfig)
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}
	transport.GetLogger(dialCtx).
		WithField("remote", conn.RemoteAddr().String()).
		WithField("server_cn", c.tlsConfig.ServerName).
		Debug("tls connection established")
	return tlsConn, nil
}
