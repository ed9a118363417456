// Package frame defines the unit exchanged between the frame codec and the
// request multiplexer.
package frame

import (
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

// Frame is a sequence-id tagged message payload.
//
// A Frame owns one reference to its payload buffer.
// Whoever holds the Frame last must call Release exactly once.
type Frame struct {
	SequenceID int32
	buf        *bufpool.Buffer
	// Headers are not transmitted by the simple framing.
	Headers            map[string]string
	Trailers           []string
	Transport          protocol.Transport
	Protocol           protocol.Protocol
	SupportsOutOfOrder bool
}

func New(seq int32, buf *bufpool.Buffer, headers map[string]string, transport protocol.Transport, proto protocol.Protocol, supportsOutOfOrder bool) Frame {
	if buf == nil {
		panic("frame: nil payload")
	}
	if headers == nil {
		headers = map[string]string{}
	}
	return Frame{
		SequenceID:         seq,
		buf:                buf,
		Headers:            headers,
		Transport:          transport,
		Protocol:           proto,
		SupportsOutOfOrder: supportsOutOfOrder,
	}
}

// Message returns the encoded Thrift message.
// The slice is only valid until the frame is released.
func (f Frame) Message() []byte { return f.buf.Bytes() }

// Buffer hands out the payload buffer without changing its reference count.
func (f Frame) Buffer() *bufpool.Buffer { return f.buf }

func (f Frame) Retain() Frame {
	f.buf.Retain()
	return f
}

func (f Frame) Release() { f.buf.Release() }

func (f Frame) String() string {
	return fmt.Sprintf("frame(seq=%d len=%d %s/%s)", f.SequenceID, f.buf.Len(), f.Transport, f.Protocol)
}

// Info is what could be recovered from a frame that was not kept.
type Info struct {
	MethodName         string
	MessageType        thrift.TMessageType
	SequenceID         int32
	Transport          protocol.Transport
	Protocol           protocol.Protocol
	SupportsOutOfOrder bool
}

// TooLargeError reports an inbound frame exceeding the configured maximum.
// Its payload has already been discarded from the stream.
type TooLargeError struct {
	Size int64
	Max  int64
	// nil if the envelope could not be parsed from the frame prefix
	Info *Info
}

func (e *TooLargeError) Error() string {
	if e.Info != nil {
		return fmt.Sprintf("frame of size %d exceeds maximum of %d bytes (method %q, sequence id %d)", e.Size, e.Max, e.Info.MethodName, e.Info.SequenceID)
	}
	return fmt.Sprintf("frame of size %d exceeds maximum of %d bytes", e.Size, e.Max)
}
