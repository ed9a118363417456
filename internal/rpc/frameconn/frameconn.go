// Package frameconn cuts a byte stream into complete Thrift messages.
package frameconn

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

// DefaultMaxFrameSize matches the limit used by common Thrift servers.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// at most this many bytes of an oversized frame are kept to recover its envelope
const tooLargePrefixLen = 1024

type Config struct {
	Transport    protocol.Transport
	Protocol     protocol.Protocol
	MaxFrameSize int
	// defaults to bufpool.Default
	Pool         *bufpool.Pool
	ThriftConfig *thrift.TConfiguration
}

type Conn struct {
	readMtx, writeMtx sync.Mutex
	wire              io.ReadWriteCloser
	r                 *bufio.Reader
	config            Config
	// set once by the first Shutdown
	shutdown atomic.Bool
}

func Wrap(wire io.ReadWriteCloser, config Config) *Conn {
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.Pool == nil {
		config.Pool = bufpool.Default
	}
	if config.ThriftConfig == nil {
		config.ThriftConfig = &thrift.TConfiguration{}
	}
	return &Conn{
		wire:   wire,
		r:      bufio.NewReaderSize(wire, 1<<16),
		config: config,
	}
}

var ErrShutdown = fmt.Errorf("frameconn: shutting down")

var ErrNegativeFrameSize = errors.New("frameconn: negative frame size")

// ReadFrame returns the next complete message.
// The caller owns the returned buffer.
//
// A *frame.TooLargeError leaves the connection usable: the oversized
// message has been consumed from the stream.
func (c *Conn) ReadFrame() (*bufpool.Buffer, error) {
	if c.shutdown.Load() {
		return nil, ErrShutdown
	}
	c.readMtx.Lock()
	defer c.readMtx.Unlock()

	var (
		buf *bufpool.Buffer
		err error
	)
	switch c.config.Transport {
	case protocol.Framed:
		buf, err = c.readFramed()
	case protocol.Unframed:
		buf, err = c.readUnframed()
	default:
		panic(fmt.Sprintf("unknown transport %v", c.config.Transport))
	}
	if err != nil {
		var tooLarge *frame.TooLargeError
		if errors.As(err, &tooLarge) {
			prom.FramesTooLarge.WithLabelValues(c.config.Transport.String()).Inc()
		}
		if c.shutdown.Load() {
			return nil, ErrShutdown
		}
		return nil, err
	}
	prom.FramesRead.Inc()
	prom.BytesRead.Add(float64(buf.Len()))
	return buf, nil
}

// callers must hold readMtx
func (c *Conn) readFramed() (*bufpool.Buffer, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, err
	}
	size := int32(binary.BigEndian.Uint32(hdr[:]))
	if size < 0 {
		return nil, ErrNegativeFrameSize
	}
	if size == 0 {
		return bufpool.Wrap(nil), nil
	}
	if int(size) > c.config.MaxFrameSize {
		return nil, c.discardTooLarge(int64(size))
	}
	buf := c.config.Pool.Get(uint(size))
	if _, err := io.ReadFull(c.r, buf.Bytes()); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// callers must hold readMtx
func (c *Conn) discardTooLarge(size int64) error {
	prefixLen := size
	if prefixLen > tooLargePrefixLen {
		prefixLen = tooLargePrefixLen
	}
	prefix := make([]byte, prefixLen)
	if _, err := io.ReadFull(c.r, prefix); err != nil {
		return err
	}
	if _, err := io.CopyN(io.Discard, c.r, size-prefixLen); err != nil {
		return err
	}
	tooLarge := &frame.TooLargeError{Size: size, Max: int64(c.config.MaxFrameSize)}
	env, err := protocol.PeekEnvelope(context.Background(), prefix, c.config.Protocol, c.config.ThriftConfig)
	if err == nil {
		tooLarge.Info = c.frameInfo(env)
	}
	debug("discarded frame of size %d: %s", size, tooLarge)
	return tooLarge
}

func (c *Conn) frameInfo(env protocol.Envelope) *frame.Info {
	return &frame.Info{
		MethodName:  env.Name,
		MessageType: env.Type,
		SequenceID:  env.SequenceID,
		Transport:   c.config.Transport,
		Protocol:    c.config.Protocol,
	}
}

// callers must hold readMtx
func (c *Conn) readUnframed() (*bufpool.Buffer, error) {
	ctx := context.Background()
	rt := &recordingTransport{r: c.r, max: c.config.MaxFrameSize}
	proto := c.config.Protocol.New(rt, c.config.ThriftConfig)

	env, err := protocol.ReadMessageBegin(ctx, proto)
	if err != nil {
		if rt.n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if err := proto.Skip(ctx, thrift.STRUCT); err != nil {
		return nil, err
	}
	if err := proto.ReadMessageEnd(ctx); err != nil {
		return nil, err
	}
	if rt.overflow {
		tooLarge := &frame.TooLargeError{Size: rt.n, Max: int64(c.config.MaxFrameSize), Info: c.frameInfo(env)}
		debug("discarded message of size %d: %s", rt.n, tooLarge)
		return nil, tooLarge
	}
	buf := c.config.Pool.Get(uint(len(rt.rec)))
	copy(buf.Bytes(), rt.rec)
	return buf, nil
}

// WriteFrame writes payload as one message.
func (c *Conn) WriteFrame(payload []byte) error {
	if c.shutdown.Load() {
		return ErrShutdown
	}
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	if err := c.writeFrame(payload); err != nil {
		return err
	}
	prom.FramesWritten.Inc()
	prom.BytesWritten.Add(float64(len(payload)))
	return nil
}

func (c *Conn) writeFrame(payload []byte) error {
	switch c.config.Transport {
	case protocol.Framed:
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
		bufs := net.Buffers([][]byte{hdr[:], payload})
		_, err := bufs.WriteTo(c.wire)
		return err
	case protocol.Unframed:
		_, err := c.wire.Write(payload)
		return err
	default:
		panic(fmt.Sprintf("unknown transport %v", c.config.Transport))
	}
}

// Shutdown closes the wire. Only the first call has an effect.
// Blocked ReadFrame and WriteFrame calls return ErrShutdown.
func (c *Conn) Shutdown() error {
	if !c.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	closeErr := c.wire.Close()
	if closeErr == nil {
		return nil
	}
	if errors.Is(closeErr, syscall.ECONNRESET) {
		// FD is closed nonetheless
		return nil
	}
	prom.ShutdownCloseErrors.Inc()
	return closeErr
}

func (c *Conn) IsShuttingDown() bool { return c.shutdown.Load() }
