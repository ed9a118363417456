// Package conn runs a mux.Mux over a byte stream.
//
// A Conn owns two goroutines: the reader feeds response frames into the mux,
// the writer drains the outbound queue onto the wire.
package conn

import (
	"context"
	"io"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/framecodec"
	"github.com/thriftmux/thriftmux/internal/rpc/frameconn"
	"github.com/thriftmux/thriftmux/internal/rpc/mux"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
	"github.com/thriftmux/thriftmux/internal/util/envconst"
)

const (
	DefaultRequestTimeout          = 10 * time.Second
	DefaultWriteQueueHighWatermark = 4 << 20
	DefaultWriteQueueLowWatermark  = 1 << 20
)

type Config struct {
	Transport protocol.Transport
	Protocol  protocol.Protocol
	// zero selects frameconn.DefaultMaxFrameSize
	MaxFrameSize int
	// zero selects THRIFTMUX_RPC_REQUEST_TIMEOUT or DefaultRequestTimeout
	RequestTimeout time.Duration
	// whether the server may answer calls in any order
	AssumeOutOfOrderResponses bool
	// zero selects THRIFTMUX_RPC_INITIAL_SEQUENCE_ID or mux.DefaultInitialSequenceID
	InitialSequenceID int32
	// zero selects THRIFTMUX_RPC_WRITE_QUEUE_{HIGH,LOW}_WATERMARK or the defaults above
	WriteQueueHighWatermark int
	WriteQueueLowWatermark  int
	Pool                    *bufpool.Pool
	ThriftConfig            *thrift.TConfiguration
	// defaults to the connection's logger
	MuxLog logger.Logger
}

func (c *Config) setDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = envconst.Duration("THRIFTMUX_RPC_REQUEST_TIMEOUT", DefaultRequestTimeout)
	}
	if c.InitialSequenceID == 0 {
		c.InitialSequenceID = envconst.Int32("THRIFTMUX_RPC_INITIAL_SEQUENCE_ID", mux.DefaultInitialSequenceID)
	}
	if c.WriteQueueHighWatermark <= 0 {
		c.WriteQueueHighWatermark = envconst.Int("THRIFTMUX_RPC_WRITE_QUEUE_HIGH_WATERMARK", DefaultWriteQueueHighWatermark)
	}
	if c.WriteQueueLowWatermark <= 0 {
		c.WriteQueueLowWatermark = envconst.Int("THRIFTMUX_RPC_WRITE_QUEUE_LOW_WATERMARK", DefaultWriteQueueLowWatermark)
	}
	if c.Pool == nil {
		c.Pool = bufpool.Default
	}
	if c.ThriftConfig == nil {
		c.ThriftConfig = &thrift.TConfiguration{}
	}
}

type Conn struct {
	id     uuid.UUID
	log    logger.Logger
	fc     *frameconn.Conn
	codec  *framecodec.SimpleCodec
	writer *writeQueue
	timers *timerExecutor
	mux    *mux.Mux

	readerDone chan struct{}
}

var ErrClosedByClient = errors.New("connection closed by client")

// Wrap takes ownership of wire and starts serving calls on it.
func Wrap(wire io.ReadWriteCloser, config Config, log logger.Logger) *Conn {
	config.setDefaults()
	id := uuid.New()
	log = log.WithField("conn", id.String()[:8])
	muxLog := log
	if config.MuxLog != nil {
		muxLog = config.MuxLog.WithField("conn", id.String()[:8])
	}

	fc := frameconn.Wrap(wire, frameconn.Config{
		Transport:    config.Transport,
		Protocol:     config.Protocol,
		MaxFrameSize: config.MaxFrameSize,
		Pool:         config.Pool,
		ThriftConfig: config.ThriftConfig,
	})
	codec := framecodec.NewSimpleCodec(config.Transport, config.Protocol, config.AssumeOutOfOrderResponses, config.ThriftConfig)
	c := &Conn{
		id:         id,
		log:        log,
		fc:         fc,
		codec:      codec,
		writer:     newWriteQueue(fc, codec, config.WriteQueueHighWatermark, config.WriteQueueLowWatermark, log),
		timers:     &timerExecutor{},
		readerDone: make(chan struct{}),
	}
	c.mux = mux.New(mux.Config{
		RequestTimeout:    config.RequestTimeout,
		Transport:         config.Transport,
		Protocol:          config.Protocol,
		ThriftConfig:      config.ThriftConfig,
		Pool:              config.Pool,
		InitialSequenceID: config.InitialSequenceID,
	}, c.writer, c.timers, muxLog)

	log.WithField("transport", config.Transport).
		WithField("protocol", config.Protocol).
		Debug("connection established")

	go c.writer.run()
	go c.readLoop()
	go func() {
		<-c.mux.Done()
		c.timers.close()
	}()
	return c
}

func (c *Conn) ID() uuid.UUID { return c.id }

// Done is closed once the connection has failed or was closed.
func (c *Conn) Done() <-chan struct{} { return c.mux.Done() }

// Err returns the error that ended the connection.
func (c *Conn) Err() error { return c.mux.Err() }

// Pending returns the number of calls awaiting a response.
func (c *Conn) Pending() int { return c.mux.Pending() }

// WaitWritable blocks while the outbound queue is above its high watermark.
func (c *Conn) WaitWritable(ctx context.Context) error {
	return c.writer.waitWritable(ctx)
}

// Submit sends call without waiting. See mux.Mux.Submit.
func (c *Conn) Submit(call *mux.Call) *mux.Handle {
	return c.mux.Submit(call)
}

// Invoke waits for writability, sends the call and waits for its outcome.
// Returning early because ctx is done does not cancel the call.
func (c *Conn) Invoke(ctx context.Context, m *mux.Method, args []interface{}, headers map[string]string) (interface{}, error) {
	if err := c.WaitWritable(ctx); err != nil {
		return nil, err
	}
	return c.Submit(mux.NewCall(m, args, headers)).Wait(ctx)
}

// Close fails all outstanding calls and closes the wire.
// It waits for the reader and writer to exit and returns the error from
// closing the wire, which is the same on every call.
func (c *Conn) Close() error {
	c.mux.OnError(mux.NewTransportError("connection closed", ErrClosedByClient))
	<-c.readerDone
	<-c.writer.stopped
	<-c.writer.shutdownDone
	return c.writer.shutdownErr
}

func (c *Conn) readLoop() {
	defer close(c.readerDone)
	for {
		buf, err := c.fc.ReadFrame()
		if err != nil {
			var tooLarge *frame.TooLargeError
			if errors.As(err, &tooLarge) {
				c.log.WithField("size", tooLarge.Size).WithField("max", tooLarge.Max).Warn("response too large")
				c.mux.OnError(tooLarge)
				if c.mux.Err() == nil {
					continue
				}
				return
			}
			c.mux.OnError(c.readError(err))
			return
		}

		f, err := c.codec.Decode(buf)
		if errors.Is(err, framecodec.ErrEmptyPayload) {
			debug("skipping empty frame")
			continue
		}
		if err != nil {
			c.mux.OnError(mux.NewTransportError("cannot decode response", err))
			return
		}
		c.mux.OnFrame(f)
		if c.mux.Err() != nil {
			return
		}
	}
}

func (c *Conn) readError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return mux.NewTransportError("client was disconnected by server", err)
	case errors.Is(err, frameconn.ErrShutdown):
		return mux.NewTransportError("connection closed", err)
	default:
		return mux.NewTransportError("read failed", err)
	}
}
