// Package framecodec turns message payloads into sequence-id tagged frames
// and back.
//
// The simple codec carries no header channel: headers of outbound frames are
// dropped, inbound frames never have any.
package framecodec

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

var (
	ErrCouldNotFindSequenceID = errors.New("could not find sequence id in message")
	ErrEmptyPayload           = errors.New("empty message payload")
)

// DecodeError is returned when no sequence id can be extracted from an
// inbound payload. No single request can be blamed for it.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return ErrCouldNotFindSequenceID.Error() + ": " + e.Cause.Error()
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func (e *DecodeError) Is(target error) bool { return target == ErrCouldNotFindSequenceID }

type SimpleCodec struct {
	transport                               protocol.Transport
	protocol                                protocol.Protocol
	assumeClientsSupportOutOfOrderResponses bool
	thriftConf                              *thrift.TConfiguration
}

func NewSimpleCodec(transport protocol.Transport, proto protocol.Protocol, assumeClientsSupportOutOfOrderResponses bool, thriftConf *thrift.TConfiguration) *SimpleCodec {
	if thriftConf == nil {
		thriftConf = &thrift.TConfiguration{}
	}
	return &SimpleCodec{
		transport:                               transport,
		protocol:                                proto,
		assumeClientsSupportOutOfOrderResponses: assumeClientsSupportOutOfOrderResponses,
		thriftConf:                              thriftConf,
	}
}

// Decode consumes buf. On success, the returned frame owns it, on error it
// has been released.
func (c *SimpleCodec) Decode(buf *bufpool.Buffer) (frame.Frame, error) {
	if buf.Len() == 0 {
		buf.Release()
		return frame.Frame{}, ErrEmptyPayload
	}
	seq, err := c.extractResponseSequenceID(buf)
	if err != nil {
		buf.Release()
		return frame.Frame{}, err
	}
	return frame.New(seq, buf, nil, c.transport, c.protocol, c.assumeClientsSupportOutOfOrderResponses), nil
}

func (c *SimpleCodec) extractResponseSequenceID(buf *bufpool.Buffer) (int32, error) {
	// PeekEnvelope reads through its own view of the bytes
	env, err := protocol.PeekEnvelope(context.Background(), buf.Bytes(), c.protocol, c.thriftConf)
	if err != nil {
		return 0, &DecodeError{Cause: err}
	}
	return env.SequenceID, nil
}

// Encode consumes f and returns its payload, owned by the caller.
func (c *SimpleCodec) Encode(f frame.Frame) *bufpool.Buffer {
	if len(f.Headers) > 0 {
		debug("dropping %d headers of frame seq=%d", len(f.Headers), f.SequenceID)
	}
	return f.Buffer()
}

func (c *SimpleCodec) Transport() protocol.Transport { return c.transport }
func (c *SimpleCodec) Protocol() protocol.Protocol   { return c.protocol }
