package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/config"
)

func TestConnect(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(c, c)
	}()

	connecter, err := TCPConnecterFromConfig(&config.TCPConnect{Address: l.Addr().String(), DialTimeout: time.Second})
	require.NoError(t, err)
	wire, err := connecter.Connect(context.Background())
	require.NoError(t, err)
	defer wire.Close()

	_, err = wire.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(wire, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	connecter, err := TCPConnecterFromConfig(&config.TCPConnect{Address: addr, DialTimeout: time.Second})
	require.NoError(t, err)
	_, err = connecter.Connect(context.Background())
	assert.Error(t, err)
}
