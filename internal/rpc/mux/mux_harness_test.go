package mux

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/codec"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

type written struct {
	seq     int32
	msg     []byte
	headers map[string]string
	done    func(error)
}

type fakeChannel struct {
	mtx      sync.Mutex
	writes   []*written
	autoDone bool
	closes   atomic.Int32
}

func (c *fakeChannel) Write(f frame.Frame, done func(err error)) {
	w := &written{seq: f.SequenceID, msg: append([]byte(nil), f.Message()...), headers: f.Headers, done: done}
	f.Release()
	c.mtx.Lock()
	c.writes = append(c.writes, w)
	auto := c.autoDone
	c.mtx.Unlock()
	if auto {
		done(nil)
	}
}

func (c *fakeChannel) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeChannel) Writes() []*written {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]*written(nil), c.writes...)
}

type manualTimer struct {
	f     func()
	delay time.Duration
	state atomic.Int32 // 0 armed, 1 canceled, 2 fired
}

func (mt *manualTimer) Cancel() bool { return mt.state.CompareAndSwap(0, 1) }

func (mt *manualTimer) Fire() {
	if mt.state.CompareAndSwap(0, 2) {
		mt.f()
	}
}

func (mt *manualTimer) Canceled() bool { return mt.state.Load() == 1 }

type manualExecutor struct {
	mtx             sync.Mutex
	timers          []*manualTimer
	err             error
	fireImmediately bool
}

func (e *manualExecutor) Schedule(delay time.Duration, f func()) (Cancelable, error) {
	e.mtx.Lock()
	if e.err != nil {
		e.mtx.Unlock()
		return nil, e.err
	}
	t := &manualTimer{f: f, delay: delay}
	e.timers = append(e.timers, t)
	fire := e.fireImmediately
	e.mtx.Unlock()
	if fire {
		t.Fire()
	}
	return t, nil
}

func (e *manualExecutor) timer(i int) *manualTimer {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.timers[i]
}

type harness struct {
	t     *testing.T
	proto protocol.Protocol
	pool  *bufpool.Pool
	ch    *fakeChannel
	ex    *manualExecutor
	m     *Mux
}

const testRequestTimeout = 5 * time.Second

func newHarnessLog(t *testing.T, initialSeq int32, proto protocol.Protocol, log logger.Logger) *harness {
	h := &harness{
		t:     t,
		proto: proto,
		pool:  bufpool.New(6, 16, bufpool.Allocate),
		ch:    &fakeChannel{autoDone: true},
		ex:    &manualExecutor{},
	}
	h.m = New(Config{
		RequestTimeout:    testRequestTimeout,
		Transport:         protocol.Framed,
		Protocol:          proto,
		Pool:              h.pool,
		InitialSequenceID: initialSeq,
	}, h.ch, h.ex, log)
	return h
}

func newHarness(t *testing.T, initialSeq int32, proto protocol.Protocol) *harness {
	return newHarnessLog(t, initialSeq, proto, logger.NewTestLogger(t))
}

type fieldWriter func(ctx context.Context, p thrift.TProtocol) error

func field(id int16, c codec.Codec, v interface{}) fieldWriter {
	return func(ctx context.Context, p thrift.TProtocol) error {
		if err := p.WriteFieldBegin(ctx, "", c.Type(), id); err != nil {
			return err
		}
		if err := c.Write(ctx, p, v); err != nil {
			return err
		}
		return p.WriteFieldEnd(ctx)
	}
}

// response encodes a REPLY style message with a struct body.
func (h *harness) response(name string, typ thrift.TMessageType, envSeq int32, fields ...fieldWriter) []byte {
	ctx := context.Background()
	mb := thrift.NewTMemoryBuffer()
	p := h.proto.New(mb, nil)
	require.NoError(h.t, p.WriteMessageBegin(ctx, name, typ, envSeq))
	require.NoError(h.t, p.WriteStructBegin(ctx, name+"_result"))
	for _, f := range fields {
		require.NoError(h.t, f(ctx, p))
	}
	require.NoError(h.t, p.WriteFieldStop(ctx))
	require.NoError(h.t, p.WriteStructEnd(ctx))
	require.NoError(h.t, p.WriteMessageEnd(ctx))
	return mb.Bytes()
}

func (h *harness) applicationException(name string, seq int32, exc thrift.TApplicationException) []byte {
	ctx := context.Background()
	mb := thrift.NewTMemoryBuffer()
	p := h.proto.New(mb, nil)
	require.NoError(h.t, p.WriteMessageBegin(ctx, name, thrift.EXCEPTION, seq))
	require.NoError(h.t, exc.Write(ctx, p))
	require.NoError(h.t, p.WriteMessageEnd(ctx))
	return mb.Bytes()
}

// frame wraps msg the way the frame codec would.
func (h *harness) frame(seq int32, msg []byte) frame.Frame {
	buf := h.pool.Get(uint(len(msg)))
	copy(buf.Bytes(), msg)
	return frame.New(seq, buf, nil, protocol.Framed, h.proto, true)
}

func (h *harness) decodeRequest(msg []byte) (protocol.Envelope, codec.StructValue) {
	ctx := context.Background()
	p := h.proto.New(protocol.NewReadTransport(msg), nil)
	env, err := protocol.ReadMessageBegin(ctx, p)
	require.NoError(h.t, err)
	args, err := codec.Dynamic("args").Read(ctx, p)
	require.NoError(h.t, err)
	require.NoError(h.t, p.ReadMessageEnd(ctx))
	return env, args.(codec.StructValue)
}
