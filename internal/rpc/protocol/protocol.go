// Package protocol names the wire strategies a connection can use and
// decodes Thrift message envelopes without consuming the payload.
package protocol

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"
)

// OnewaySequenceID is reserved for oneway calls (0xFFFFFFFF on the wire).
// Responses never carry it.
const OnewaySequenceID int32 = -1

type Protocol int

const (
	Binary Protocol = iota
	Compact
)

func (p Protocol) String() string {
	switch p {
	case Binary:
		return "binary"
	case Compact:
		return "compact"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "binary":
		return Binary, nil
	case "compact":
		return Compact, nil
	default:
		return 0, errors.Errorf("unknown protocol %q", s)
	}
}

// New returns a protocol instance reading from and writing to t.
func (p Protocol) New(t thrift.TTransport, conf *thrift.TConfiguration) thrift.TProtocol {
	switch p {
	case Binary:
		return thrift.NewTBinaryProtocolConf(t, conf)
	case Compact:
		return thrift.NewTCompactProtocolConf(t, conf)
	default:
		panic(fmt.Sprintf("unknown protocol %v", p))
	}
}

type Transport int

const (
	// 4 byte big endian length prefix before every message
	Framed Transport = iota
	// message boundaries are found by parsing the message
	Unframed
)

func (t Transport) String() string {
	switch t {
	case Framed:
		return "framed"
	case Unframed:
		return "unframed"
	default:
		return fmt.Sprintf("Transport(%d)", int(t))
	}
}

func ParseTransport(s string) (Transport, error) {
	switch s {
	case "framed":
		return Framed, nil
	case "unframed":
		return Unframed, nil
	default:
		return 0, errors.Errorf("unknown transport %q", s)
	}
}

// NewReadTransport returns a transport that reads data from the start.
// Reading advances the transport's offset only, data itself is never modified.
func NewReadTransport(data []byte) *thrift.TMemoryBuffer {
	return &thrift.TMemoryBuffer{Buffer: bytes.NewBuffer(data)}
}

type EnvelopeKind int

const (
	InvalidType EnvelopeKind = iota
	Reply
	Exception
)

func (k EnvelopeKind) String() string {
	switch k {
	case Reply:
		return "reply"
	case Exception:
		return "exception"
	default:
		return "invalid"
	}
}

// Envelope is the message header in front of every Thrift message.
type Envelope struct {
	Name       string
	Type       thrift.TMessageType
	SequenceID int32
}

// Kind classifies a response envelope.
func (e Envelope) Kind() EnvelopeKind {
	switch e.Type {
	case thrift.REPLY:
		return Reply
	case thrift.EXCEPTION:
		return Exception
	default:
		return InvalidType
	}
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s(type=%d seq=%d)", e.Name, e.Type, e.SequenceID)
}

// ReadMessageBegin reads the envelope from proto.
func ReadMessageBegin(ctx context.Context, proto thrift.TProtocol) (Envelope, error) {
	name, typ, seq, err := proto.ReadMessageBegin(ctx)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Name: name, Type: typ, SequenceID: seq}, nil
}

// PeekEnvelope decodes only the envelope at the start of data.
func PeekEnvelope(ctx context.Context, data []byte, p Protocol, conf *thrift.TConfiguration) (Envelope, error) {
	return ReadMessageBegin(ctx, p.New(NewReadTransport(data), conf))
}
