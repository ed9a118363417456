package quic

import (
	"context"
	"io"
	"testing"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/tlsconf"
	"github.com/thriftmux/thriftmux/internal/tlsconf/tlsconftest"
)

func TestConnectEcho(t *testing.T) {
	files := tlsconftest.Generate(t)
	ca, err := tlsconf.ParseCAFile(files.CA)
	require.NoError(t, err)
	serverTLS := tlsconf.ClientAuthServer(ca, files.ServerCertificate(t))
	serverTLS.NextProtos = []string{"thrift"}

	l, err := quicgo.ListenAddr("127.0.0.1:0", serverTLS, nil)
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept(context.Background())
		if err != nil {
			return
		}
		stream, err := conn.AcceptStream(context.Background())
		if err != nil {
			return
		}
		io.Copy(stream, stream)
	}()

	connecter, err := QUICConnecterFromConfig(&config.QUICConnect{
		Address:         l.Addr().String(),
		Ca:              files.CA,
		Cert:            files.ClientCert,
		Key:             files.ClientKey,
		ServerCN:        files.ServerName,
		ALPN:            "thrift",
		DialTimeout:     5 * time.Second,
		KeepAlivePeriod: time.Second,
	}, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wire, err := connecter.Connect(ctx)
	require.NoError(t, err)

	// the server only sees the stream once data arrives
	_, err = wire.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(wire, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	readErr := make(chan error, 1)
	go func() {
		_, err := wire.Read(buf)
		readErr <- err
	}()
	require.NoError(t, wire.Close())
	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("Close did not unblock Read")
	}
}

func TestParseOnly(t *testing.T) {
	connecter, err := QUICConnecterFromConfig(&config.QUICConnect{Address: "127.0.0.1:1", ServerCN: "x"}, true)
	require.NoError(t, err)
	_, err = connecter.Connect(context.Background())
	assert.Error(t, err)
}
