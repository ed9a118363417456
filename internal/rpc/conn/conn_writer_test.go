package conn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/framecodec"
	"github.com/thriftmux/thriftmux/internal/rpc/frameconn"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
	"github.com/thriftmux/thriftmux/internal/util/socketpair"
)

func testFrame(seq int32, size int) frame.Frame {
	return frame.New(seq, bufpool.Wrap(make([]byte, size)), nil, protocol.Framed, protocol.Binary, true)
}

func TestWriteQueueWatermarks(t *testing.T) {
	a, b, err := socketpair.SocketPair()
	require.NoError(t, err)
	defer b.Close()
	fc := frameconn.Wrap(a, frameconn.Config{Transport: protocol.Framed})
	codec := framecodec.NewSimpleCodec(protocol.Framed, protocol.Binary, true, nil)
	q := newWriteQueue(fc, codec, 100, 20, logger.NewTestLogger(t))
	defer q.Close()

	require.NoError(t, q.waitWritable(context.Background()))

	// the writer is not running yet, nothing drains the queue
	done := func(err error) { assert.NoError(t, err) }
	for i := 0; i < 3; i++ {
		q.Write(testFrame(int32(i), 40), done)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, q.waitWritable(ctx))

	go q.run()
	require.NoError(t, q.waitWritable(context.Background()))

	peer := frameconn.Wrap(b, frameconn.Config{Transport: protocol.Framed})
	for i := 0; i < 3; i++ {
		buf, err := peer.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, 40, buf.Len())
		buf.Release()
	}
}

func TestWriteQueueClose(t *testing.T) {
	a, b, err := socketpair.SocketPair()
	require.NoError(t, err)
	defer b.Close()
	fc := frameconn.Wrap(a, frameconn.Config{Transport: protocol.Framed})
	codec := framecodec.NewSimpleCodec(protocol.Framed, protocol.Binary, true, nil)
	q := newWriteQueue(fc, codec, 10, 5, logger.NewTestLogger(t))

	errs := make(chan error, 2)
	q.Write(testFrame(1, 40), func(err error) { errs <- err })
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go q.run()
	require.NoError(t, q.Close())
	<-q.stopped
	// queued frames were either written or failed, never dropped silently
	select {
	case err := <-errs:
		if err != nil {
			assert.Equal(t, ErrWriterClosed, err)
		}
	case <-ctx.Done():
		t.Fatal("done callback not called")
	}
	require.NoError(t, q.waitWritable(ctx))

	q.Write(testFrame(2, 1), func(err error) { errs <- err })
	assert.Equal(t, ErrWriterClosed, <-errs)
	assert.True(t, fc.IsShuttingDown())
}

func TestTimerExecutor(t *testing.T) {
	var e timerExecutor
	fired := make(chan struct{})
	_, err := e.Schedule(time.Millisecond, func() { close(fired) })
	require.NoError(t, err)
	<-fired

	c, err := e.Schedule(time.Hour, func() { t.Error("must not fire") })
	require.NoError(t, err)
	assert.True(t, c.Cancel())
	assert.False(t, c.Cancel())

	e.close()
	_, err = e.Schedule(time.Millisecond, func() {})
	assert.Equal(t, ErrExecutorClosed, err)
}
