// Package mux multiplexes concurrent Thrift calls over one pipelined
// connection.
//
// A Mux assigns sequence ids, encodes calls, matches response frames to
// outstanding calls and fails calls on timeout or connection failure.
// Every call is resolved exactly once. Four paths race for each call:
// the response, the request timeout, a send failure and connection teardown.
// Whichever flips the call's finished flag first resolves it, the others
// do nothing.
//
// There is no lock around the Mux. Shared state is the pending table
// (a sync.Map), the per-call finished flag and the connection error slot.
package mux

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/codec"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

type Parameter struct {
	ID    int16
	Name  string
	Codec codec.Codec
}

// Method describes a remote method.
type Method struct {
	Name       string
	Oneway     bool
	Parameters []Parameter
	// nil is equivalent to codec.Void
	Result codec.Codec
	// field id in the result struct => exception codec
	Exceptions map[int16]codec.Codec
}

func (m *Method) resultCodec() codec.Codec {
	if m.Result == nil {
		return codec.Void
	}
	return m.Result
}

// Call is one invocation of a Method. It must not be modified after NewCall.
type Call struct {
	method    *Method
	args      []interface{}
	headers   map[string]string
	handle    *Handle
	submitted atomic.Bool
}

// NewCall binds args to m. A nil argument leaves the field unset.
func NewCall(m *Method, args []interface{}, headers map[string]string) *Call {
	return &Call{
		method:  m,
		args:    args,
		headers: headers,
		handle:  newHandle(),
	}
}

func (c *Call) Method() *Method            { return c.method }
func (c *Call) Args() []interface{}        { return c.args }
func (c *Call) Headers() map[string]string { return c.headers }
func (c *Call) Handle() *Handle            { return c.handle }

// Cancelable is a scheduled callback.
type Cancelable interface {
	// Cancel reports whether the callback was prevented from running.
	Cancel() bool
}

type Executor interface {
	Schedule(delay time.Duration, f func()) (Cancelable, error)
}

// Channel is the outbound side of the connection.
type Channel interface {
	// Write takes ownership of f and does not block.
	// done is called exactly once, after the frame was written or the write failed.
	Write(f frame.Frame, done func(err error))
	Close() error
}

const DefaultInitialSequenceID = 42

type Config struct {
	RequestTimeout time.Duration
	Transport      protocol.Transport
	Protocol       protocol.Protocol
	ThriftConfig   *thrift.TConfiguration
	// for encoded requests, defaults to bufpool.Default
	Pool *bufpool.Pool
	// The first call is sent with InitialSequenceID+1.
	// Zero selects DefaultInitialSequenceID.
	InitialSequenceID int32
}

type Mux struct {
	config   Config
	channel  Channel
	executor Executor
	log      logger.Logger

	pending pendingTable
	nextSeq atomic.Uint32
	// first connection-fatal error, never overwritten
	channelErr atomic.Pointer[TransportError]
	closed     chan struct{}
}

func New(config Config, channel Channel, executor Executor, log logger.Logger) *Mux {
	if config.Pool == nil {
		config.Pool = bufpool.Default
	}
	if config.ThriftConfig == nil {
		config.ThriftConfig = &thrift.TConfiguration{}
	}
	if config.InitialSequenceID == 0 {
		config.InitialSequenceID = DefaultInitialSequenceID
	}
	m := &Mux{
		config:   config,
		channel:  channel,
		executor: executor,
		log:      log,
		closed:   make(chan struct{}),
	}
	m.nextSeq.Store(uint32(config.InitialSequenceID))
	return m
}

func (m *Mux) nextSequenceID() int32 {
	for {
		seq := int32(m.nextSeq.Add(1))
		if seq != protocol.OnewaySequenceID {
			return seq
		}
	}
}

// Pending returns the number of outstanding two-way calls.
func (m *Mux) Pending() int { return m.pending.len() }

// Err returns the connection error, nil while the connection is healthy.
func (m *Mux) Err() error {
	if err := m.channelErr.Load(); err != nil {
		return err
	}
	return nil
}

// Done is closed when the connection has been torn down.
func (m *Mux) Done() <-chan struct{} { return m.closed }

// Submit sends call and returns its handle. It never blocks.
func (m *Mux) Submit(call *Call) *Handle {
	if !call.submitted.CompareAndSwap(false, true) {
		panic(errCallSubmittedTwice)
	}
	method := call.method

	seq := protocol.OnewaySequenceID
	if !method.Oneway {
		seq = m.nextSequenceID()
	}
	call.handle.seq = seq
	req := &request{seq: seq, call: call, started: time.Now()}
	log := m.log.WithField("method", method.Name).WithField("seq", seq)

	timeout, err := m.executor.Schedule(m.config.RequestTimeout, func() { m.onTimeout(req) })
	if err != nil {
		if connErr := m.channelErr.Load(); connErr != nil {
			// the executor stops with the connection
			m.finish(req, nil, connErr)
		} else {
			m.finish(req, nil, NewTransportError("unable to schedule request timeout", err))
		}
		return call.handle
	}
	req.setTimeout(timeout)

	buf, err := m.encodeRequest(req)
	if err != nil {
		log.WithError(err).Debug("cannot encode request")
		m.finish(req, nil, err)
		return call.handle
	}

	if !method.Oneway && !m.pending.insertIfAbsent(req) {
		m.finish(req, nil, NewTransportError("another request with the same sequence id is already in progress", nil))
		buf.Release()
		return call.handle
	}

	if connErr := m.channelErr.Load(); connErr != nil {
		log.WithError(connErr).Debug("connection already failed, not sending request")
		m.pending.removeIf(req)
		m.finish(req, nil, connErr)
		buf.Release()
		return call.handle
	}

	if req.finished.Load() {
		// timeout fired before the request was registered
		m.pending.removeIf(req)
		buf.Release()
		return call.handle
	}

	debug("send seq=%d method=%s pending=%d", seq, method.Name, m.pending.len())
	f := frame.New(seq, buf, call.headers, m.config.Transport, m.config.Protocol, true)
	m.channel.Write(f, func(err error) { m.messageSent(req, err) })
	return call.handle
}

func (m *Mux) messageSent(req *request, err error) {
	if err != nil {
		m.log.WithField("seq", req.seq).WithError(err).Debug("sending request failed")
		m.pending.removeIf(req)
		m.finish(req, nil, NewTransportError("sending request failed", err))
		return
	}
	if req.call.method.Oneway {
		m.finish(req, nil, nil)
	}
}

// OnFrame routes a response frame to its call. It consumes f.
func (m *Mux) OnFrame(f frame.Frame) {
	defer f.Release()
	req, ok := m.pending.remove(f.SequenceID)
	if !ok {
		m.teardown(NewTransportError(fmt.Sprintf("unknown sequence id in response: %d", f.SequenceID), nil), nil)
		return
	}
	debug("recv seq=%d method=%s pending=%d", f.SequenceID, req.call.method.Name, m.pending.len())
	if !m.claim(req) {
		debug("seq=%d already finished, discarding response", f.SequenceID)
		return
	}
	value, err := m.decodeResponse(req, f.Message())
	m.complete(req, value, err)
	if IsApplicationError(err) {
		m.onError(err, req)
	}
}

func (m *Mux) onTimeout(req *request) {
	if !m.claim(req) {
		return
	}
	m.pending.removeIf(req)
	m.complete(req, nil, &RequestTimeoutError{Method: req.call.method.Name, After: m.config.RequestTimeout})
}

// OnError reports a failure of the inbound side of the connection.
//
// A *frame.TooLargeError with a recoverable sequence id fails only that call.
// Everything else tears the connection down: all outstanding calls fail with
// the first such error and the channel is closed.
func (m *Mux) OnError(err error) {
	m.onError(err, nil)
}

func (m *Mux) onError(err error, current *request) {
	var tooLarge *frame.TooLargeError
	if errors.As(err, &tooLarge) {
		m.onFrameTooLarge(tooLarge)
		return
	}
	if IsApplicationError(err) {
		// already delivered to the caller of current
		if current != nil {
			m.pending.removeIf(current)
		}
		return
	}
	m.teardown(asTransportError(err), current)
}

func (m *Mux) onFrameTooLarge(e *frame.TooLargeError) {
	if e.Info != nil {
		if req, ok := m.pending.remove(e.Info.SequenceID); ok {
			m.finish(req, nil, &MessageTooLargeError{Cause: e})
			return
		}
	}
	m.teardown(NewTransportError("connection failed", &MessageTooLargeError{
		Msg:   "unexpected too large response happened on communication channel",
		Cause: e,
	}), nil)
}

func (m *Mux) teardown(connErr *TransportError, current *request) {
	if !m.channelErr.CompareAndSwap(nil, connErr) {
		// someone else is tearing down
		return
	}
	prom.ConnectionTeardowns.Inc()
	m.log.WithError(connErr).WithField("pending", m.pending.len()).Error("connection failed, failing all outstanding requests")

	if current != nil {
		m.pending.removeIf(current)
		m.finish(current, nil, connErr)
	}
	m.pending.drain(func(req *request) {
		m.finish(req, nil, connErr)
	})
	if err := m.channel.Close(); err != nil {
		m.log.WithError(err).Warn("cannot close connection")
	}
	close(m.closed)
}

// claim flips the finished flag. Only the caller that wins may resolve req.
func (m *Mux) claim(req *request) bool {
	if !req.finished.CompareAndSwap(false, true) {
		return false
	}
	req.cancelTimeout()
	return true
}

func (m *Mux) complete(req *request, value interface{}, err error) {
	prom.RequestsCompleted.WithLabelValues(outcome(req, err)).Inc()
	prom.RequestDuration.Observe(time.Since(req.started).Seconds())
	if err != nil {
		debug("seq=%d failed: %s", req.seq, err)
	}
	req.call.handle.resolve(value, err)
}

func (m *Mux) finish(req *request, value interface{}, err error) bool {
	if !m.claim(req) {
		return false
	}
	m.complete(req, value, err)
	return true
}

func outcome(req *request, err error) string {
	var (
		appErr   *ApplicationError
		tooLarge *MessageTooLargeError
		timeout  *RequestTimeoutError
		tae      thrift.TApplicationException
	)
	switch {
	case err == nil && req.call.method.Oneway:
		return "oneway"
	case err == nil:
		return "ok"
	case errors.As(err, &appErr):
		return "application_exception"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &tooLarge) && !IsTransportError(err):
		return "too_large"
	case IsTransportError(err):
		return "transport_error"
	case errors.As(err, &tae):
		return "protocol_error"
	default:
		return "local_error"
	}
}
