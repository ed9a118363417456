// Package quic runs each rpc connection on its own QUIC connection,
// using a single bidirectional stream.
package quic

import (
	"context"
	"crypto/tls"

	"github.com/pkg/errors"
	quicgo "github.com/quic-go/quic-go"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/tlsconf"
	"github.com/thriftmux/thriftmux/internal/transport"
)

type QUICConnecter struct {
	Address    string
	tlsConfig  *tls.Config
	quicConfig *quicgo.Config
}

func QUICConnecterFromConfig(in *config.QUICConnect, parseOnly bool) (*QUICConnecter, error) {
	quicConfig := &quicgo.Config{
		HandshakeIdleTimeout: in.DialTimeout,
		KeepAlivePeriod:      in.KeepAlivePeriod,
	}
	if parseOnly {
		return &QUICConnecter{in.Address, nil, quicConfig}, nil
	}
	tlsConfig, err := tlsconf.ClientAuthClientFromFiles(in.Ca, in.Cert, in.Key, in.ServerCN)
	if err != nil {
		return nil, err
	}
	tlsConfig.NextProtos = []string{in.ALPN}
	return NewQUICConnecter(in.Address, tlsConfig, quicConfig), nil
}

func NewQUICConnecter(address string, tlsConfig *tls.Config, quicConfig *quicgo.Config) *QUICConnecter {
	return &QUICConnecter{address, tlsConfig, quicConfig}
}

func (c *QUICConnecter) Connect(ctx context.Context) (transport.Wire, error) {
	if c.tlsConfig == nil {
		return nil, errors.New("quic connecter was created for config parsing only")
	}
	conn, err := quicgo.DialAddr(ctx, c.Address, c.tlsConfig, c.quicConfig)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(quicgo.ApplicationErrorCode(0), "")
		return nil, errors.Wrap(err, "cannot open stream")
	}
	transport.GetLogger(ctx).WithField("remote", conn.RemoteAddr().String()).Debug("quic connection established")
	return &streamWire{stream, conn}, nil
}

// streamWire owns the QUIC connection its stream belongs to.
type streamWire struct {
	*quicgo.Stream
	conn *quicgo.Conn
}

func (w *streamWire) Close() error {
	w.Stream.CancelRead(0)
	closeErr := w.Stream.Close()
	if err := w.conn.CloseWithError(quicgo.ApplicationErrorCode(0), "connection closed"); err != nil {
		return err
	}
	return closeErr
}
