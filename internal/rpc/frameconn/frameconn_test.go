package frameconn

import (
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
	"github.com/thriftmux/thriftmux/internal/util/socketpair"
)

func encodeMessage(t *testing.T, p protocol.Protocol, name string, seq int32, payload string) []byte {
	t.Helper()
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	proto := p.New(buf, &thrift.TConfiguration{})
	require.NoError(t, proto.WriteMessageBegin(ctx, name, thrift.REPLY, seq))
	require.NoError(t, proto.WriteStructBegin(ctx, name+"_result"))
	require.NoError(t, proto.WriteFieldBegin(ctx, "success", thrift.STRING, 0))
	require.NoError(t, proto.WriteString(ctx, payload))
	require.NoError(t, proto.WriteFieldEnd(ctx))
	require.NoError(t, proto.WriteFieldStop(ctx))
	require.NoError(t, proto.WriteStructEnd(ctx))
	require.NoError(t, proto.WriteMessageEnd(ctx))
	return buf.Bytes()
}

func pair(t *testing.T, config Config) (client *Conn, server *Conn) {
	t.Helper()
	a, b, err := socketpair.SocketPair()
	require.NoError(t, err)
	client = Wrap(a, config)
	server = Wrap(b, config)
	t.Cleanup(func() {
		client.Shutdown()
		server.Shutdown()
	})
	return client, server
}

func readString(t *testing.T, c *Conn) string {
	t.Helper()
	buf, err := c.ReadFrame()
	require.NoError(t, err)
	defer buf.Release()
	return string(buf.Bytes())
}

func TestFramedRoundTrip(t *testing.T) {
	pool := bufpool.New(4, 16, bufpool.Allocate)
	client, server := pair(t, Config{Transport: protocol.Framed, Pool: pool})

	require.NoError(t, server.WriteFrame([]byte("one")))
	require.NoError(t, server.WriteFrame([]byte{}))
	require.NoError(t, server.WriteFrame([]byte("three")))

	assert.Equal(t, "one", readString(t, client))
	assert.Equal(t, "", readString(t, client))
	assert.Equal(t, "three", readString(t, client))
	assert.Equal(t, int64(0), pool.Outstanding())

	require.NoError(t, server.Shutdown())
	_, err := client.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestFramedTooLarge(t *testing.T) {
	client, server := pair(t, Config{Transport: protocol.Framed, Protocol: protocol.Binary, MaxFrameSize: 64})

	big := encodeMessage(t, protocol.Binary, "get", 17, string(make([]byte, 200)))
	require.NoError(t, server.WriteFrame(big))
	require.NoError(t, server.WriteFrame([]byte("after")))

	_, err := client.ReadFrame()
	var tooLarge *frame.TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(len(big)), tooLarge.Size)
	assert.Equal(t, int64(64), tooLarge.Max)
	require.NotNil(t, tooLarge.Info)
	assert.Equal(t, "get", tooLarge.Info.MethodName)
	assert.Equal(t, int32(17), tooLarge.Info.SequenceID)
	assert.Equal(t, thrift.TMessageType(thrift.REPLY), tooLarge.Info.MessageType)

	// the stream stays in sync
	assert.Equal(t, "after", readString(t, client))
}

func TestFramedTooLargeUnparseablePrefix(t *testing.T) {
	client, server := pair(t, Config{Transport: protocol.Framed, MaxFrameSize: 8})

	require.NoError(t, server.WriteFrame([]byte("garbage garbage garbage")))
	_, err := client.ReadFrame()
	var tooLarge *frame.TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Nil(t, tooLarge.Info)
}

func TestFramedNegativeSize(t *testing.T) {
	client, server := pair(t, Config{Transport: protocol.Framed})
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 0x80000000)
	_, err := server.wire.Write(hdr[:])
	require.NoError(t, err)
	_, err = client.ReadFrame()
	assert.Equal(t, ErrNegativeFrameSize, err)
}

func TestUnframedRoundTrip(t *testing.T) {
	for _, p := range []protocol.Protocol{protocol.Binary, protocol.Compact} {
		t.Run(p.String(), func(t *testing.T) {
			pool := bufpool.New(4, 16, bufpool.Allocate)
			client, server := pair(t, Config{Transport: protocol.Unframed, Protocol: p, Pool: pool})

			m1 := encodeMessage(t, p, "a", 1, "first")
			m2 := encodeMessage(t, p, "b", 2, "second")
			require.NoError(t, server.WriteFrame(m1))
			require.NoError(t, server.WriteFrame(m2))

			assert.Equal(t, string(m1), readString(t, client))
			assert.Equal(t, string(m2), readString(t, client))
			assert.Equal(t, int64(0), pool.Outstanding())

			require.NoError(t, server.Shutdown())
			_, err := client.ReadFrame()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestUnframedTooLarge(t *testing.T) {
	client, server := pair(t, Config{Transport: protocol.Unframed, Protocol: protocol.Binary, MaxFrameSize: 64})

	big := encodeMessage(t, protocol.Binary, "get", 5, string(make([]byte, 100)))
	small := encodeMessage(t, protocol.Binary, "get", 6, "")
	require.NoError(t, server.WriteFrame(big))
	require.NoError(t, server.WriteFrame(small))

	_, err := client.ReadFrame()
	var tooLarge *frame.TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	require.NotNil(t, tooLarge.Info)
	assert.Equal(t, int32(5), tooLarge.Info.SequenceID)
	assert.Equal(t, int64(len(big)), tooLarge.Size)

	assert.Equal(t, string(small), readString(t, client))
}

func TestShutdown(t *testing.T) {
	client, _ := pair(t, Config{Transport: protocol.Framed})
	require.NoError(t, client.Shutdown())
	assert.NoError(t, client.Shutdown())
	assert.True(t, client.IsShuttingDown())
	_, err := client.ReadFrame()
	assert.Equal(t, ErrShutdown, err)
	assert.Equal(t, ErrShutdown, client.WriteFrame([]byte("x")))
}

func TestShutdownUnblocksReader(t *testing.T) {
	client, _ := pair(t, Config{Transport: protocol.Framed})
	errs := make(chan error)
	go func() {
		_, err := client.ReadFrame()
		errs <- err
	}()
	require.NoError(t, client.Shutdown())
	assert.Equal(t, ErrShutdown, <-errs)
}
