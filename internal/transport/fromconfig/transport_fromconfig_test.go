package fromconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/transport/quic"
	"github.com/thriftmux/thriftmux/internal/transport/tcp"
	"github.com/thriftmux/thriftmux/internal/transport/tls"
)

func TestConnecterFromConfig(t *testing.T) {
	type tc struct {
		yaml   string
		expect interface{}
	}
	cases := []tc{
		{"connect: {type: tcp, address: 'h:1'}", &tcp.TCPConnecter{}},
		{"connect: {type: tls, address: 'h:1', ca: a, cert: b, key: c, server_cn: h}", &tls.TLSConnecter{}},
		{"connect: {type: quic, address: 'h:1', ca: a, cert: b, key: c, server_cn: h}", &quic.QUICConnecter{}},
	}
	for _, c := range cases {
		conf, err := config.ParseConfigBytes([]byte(c.yaml))
		require.NoError(t, err)
		connecter, err := ConnecterFromConfig(conf.Connect, true)
		require.NoError(t, err)
		assert.IsType(t, c.expect, connecter)
	}
}
