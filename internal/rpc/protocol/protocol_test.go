package protocol

import (
	"context"
	"testing"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeEnvelope(t *testing.T, p Protocol, name string, typ thrift.TMessageType, seq int32) []byte {
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	proto := p.New(buf, &thrift.TConfiguration{})
	require.NoError(t, proto.WriteMessageBegin(ctx, name, typ, seq))
	require.NoError(t, proto.WriteStructBegin(ctx, "result"))
	require.NoError(t, proto.WriteFieldStop(ctx))
	require.NoError(t, proto.WriteStructEnd(ctx))
	require.NoError(t, proto.WriteMessageEnd(ctx))
	require.NoError(t, proto.Flush(ctx))
	return buf.Bytes()
}

func TestPeekEnvelopeDoesNotConsume(t *testing.T) {
	for _, p := range []Protocol{Binary, Compact} {
		t.Run(p.String(), func(t *testing.T) {
			data := encodeEnvelope(t, p, "ping", thrift.REPLY, 23)
			orig := append([]byte(nil), data...)

			env, err := PeekEnvelope(context.Background(), data, p, &thrift.TConfiguration{})
			require.NoError(t, err)
			assert.Equal(t, Envelope{Name: "ping", Type: thrift.REPLY, SequenceID: 23}, env)
			assert.Equal(t, Reply, env.Kind())
			assert.Equal(t, orig, data)

			// a second peek sees the same envelope
			env2, err := PeekEnvelope(context.Background(), data, p, &thrift.TConfiguration{})
			require.NoError(t, err)
			assert.Equal(t, env, env2)
		})
	}
}

func TestPeekEnvelopeOnewaySentinel(t *testing.T) {
	data := encodeEnvelope(t, Binary, "notify", thrift.ONEWAY, OnewaySequenceID)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, data[len(data)-5:len(data)-1])
	env, err := PeekEnvelope(context.Background(), data, Binary, &thrift.TConfiguration{})
	require.NoError(t, err)
	assert.Equal(t, OnewaySequenceID, env.SequenceID)
	assert.Equal(t, InvalidType, env.Kind())
}

func TestPeekEnvelopeTruncated(t *testing.T) {
	data := encodeEnvelope(t, Binary, "ping", thrift.REPLY, 1)
	_, err := PeekEnvelope(context.Background(), data[:6], Binary, &thrift.TConfiguration{})
	assert.Error(t, err)
	_, err = PeekEnvelope(context.Background(), nil, Binary, &thrift.TConfiguration{})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	p, err := ParseProtocol("compact")
	require.NoError(t, err)
	assert.Equal(t, Compact, p)
	_, err = ParseProtocol("json")
	assert.Error(t, err)

	tr, err := ParseTransport("unframed")
	require.NoError(t, err)
	assert.Equal(t, Unframed, tr)
	_, err = ParseTransport("header")
	assert.Error(t, err)
}
