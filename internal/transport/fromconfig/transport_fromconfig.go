// Package fromconfig instantiates transports based on config structures
// (see package config).
package fromconfig

import (
	"fmt"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/transport"
	"github.com/thriftmux/thriftmux/internal/transport/quic"
	"github.com/thriftmux/thriftmux/internal/transport/tcp"
	"github.com/thriftmux/thriftmux/internal/transport/tls"
)

func ConnecterFromConfig(in config.ConnectEnum, parseOnly bool) (transport.Connecter, error) {
	var (
		connecter transport.Connecter
		err       error
	)
	switch v := in.Ret.(type) {
	case *config.TCPConnect:
		connecter, err = tcp.TCPConnecterFromConfig(v)
	case *config.TLSConnect:
		connecter, err = tls.TLSConnecterFromConfig(v, parseOnly)
	case *config.QUICConnect:
		connecter, err = quic.QUICConnecterFromConfig(v, parseOnly)
	default:
		panic(fmt.Sprintf("implementation error: unknown connecter type %T", v))
	}

	return connecter, err
}
