package mux

import (
	"context"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/rpc/bufpool"
	"github.com/thriftmux/thriftmux/internal/rpc/codec"
	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

// encodeRequest returns the complete request message, owned by the caller.
func (m *Mux) encodeRequest(req *request) (*bufpool.Buffer, error) {
	ctx := context.Background()
	method := req.call.method
	args := req.call.args
	if len(args) != len(method.Parameters) {
		return nil, errors.Errorf("%s: expected %d arguments, got %d", method.Name, len(method.Parameters), len(args))
	}

	mb := thrift.NewTMemoryBufferLen(256)
	p := m.config.Protocol.New(mb, m.config.ThriftConfig)

	// some servers ignore ONEWAY and rely on their IDL instead,
	// sending it anyway helps when reading packet captures
	msgType := thrift.CALL
	if method.Oneway {
		msgType = thrift.ONEWAY
	}
	if err := p.WriteMessageBegin(ctx, method.Name, msgType, req.seq); err != nil {
		return nil, err
	}
	if err := p.WriteStructBegin(ctx, method.Name+"_args"); err != nil {
		return nil, err
	}
	for i, param := range method.Parameters {
		if args[i] == nil {
			continue
		}
		if err := p.WriteFieldBegin(ctx, param.Name, param.Codec.Type(), param.ID); err != nil {
			return nil, err
		}
		if err := param.Codec.Write(ctx, p, args[i]); err != nil {
			return nil, errors.Wrapf(err, "%s: argument %d (%s)", method.Name, param.ID, param.Name)
		}
		if err := p.WriteFieldEnd(ctx); err != nil {
			return nil, err
		}
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return nil, err
	}
	if err := p.WriteStructEnd(ctx); err != nil {
		return nil, err
	}
	if err := p.WriteMessageEnd(ctx); err != nil {
		return nil, err
	}
	if err := p.Flush(ctx); err != nil {
		return nil, err
	}

	buf := m.config.Pool.Get(uint(mb.Len()))
	copy(buf.Bytes(), mb.Bytes())
	return buf, nil
}

// decodeResponse decodes a response message for req. msg is borrowed.
func (m *Mux) decodeResponse(req *request, msg []byte) (interface{}, error) {
	ctx := context.Background()
	method := req.call.method
	p := m.config.Protocol.New(protocol.NewReadTransport(msg), m.config.ThriftConfig)

	env, err := protocol.ReadMessageBegin(ctx, p)
	if err != nil {
		return nil, err
	}
	switch env.Kind() {
	case protocol.Exception:
		exc := thrift.NewTApplicationException(thrift.UNKNOWN_APPLICATION_EXCEPTION, "")
		if err := exc.Read(ctx, p); err != nil {
			return nil, err
		}
		if err := p.ReadMessageEnd(ctx); err != nil {
			return nil, err
		}
		return nil, exc
	case protocol.InvalidType:
		return nil, thrift.NewTApplicationException(thrift.INVALID_MESSAGE_TYPE_EXCEPTION,
			fmt.Sprintf("received invalid message type %d from server", env.Type))
	case protocol.Reply:
		if env.Name != method.Name {
			return nil, thrift.NewTApplicationException(thrift.WRONG_METHOD_NAME,
				fmt.Sprintf("wrong method name in reply: expected %s but received %s", method.Name, env.Name))
		}
		if env.SequenceID != req.seq {
			return nil, thrift.NewTApplicationException(thrift.BAD_SEQUENCE_ID,
				fmt.Sprintf("%s failed: out of sequence response", method.Name))
		}
		return m.readResult(ctx, p, method)
	default:
		panic(fmt.Sprintf("unknown envelope kind %v", env.Kind()))
	}
}

func (m *Mux) readResult(ctx context.Context, p thrift.TProtocol, method *Method) (interface{}, error) {
	resultCodec := method.resultCodec()

	if _, err := p.ReadStructBegin(ctx); err != nil {
		return nil, err
	}
	var (
		result     interface{}
		haveResult bool
		appErr     *ApplicationError
	)
	for {
		_, ft, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return nil, err
		}
		if ft == thrift.STOP {
			break
		}
		var excCodec codec.Codec
		if id != 0 {
			excCodec = method.Exceptions[id]
		}
		switch {
		case id == 0 && resultCodec != codec.Void && ft == resultCodec.Type():
			if result, err = resultCodec.Read(ctx, p); err != nil {
				return nil, errors.Wrapf(err, "%s: decode result", method.Name)
			}
			haveResult = true
		case excCodec != nil && ft == excCodec.Type():
			exc, err := excCodec.Read(ctx, p)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: decode exception %d", method.Name, id)
			}
			appErr = &ApplicationError{Method: method.Name, FieldID: id, Exception: asError(exc)}
		case id == 0 && resultCodec != codec.Void:
			debug("%s: result field has wire type %d, expected %d", method.Name, ft, resultCodec.Type())
			return nil, errors.Errorf("%s: decode result: field 0 has wire type %d, expected %d",
				method.Name, ft, resultCodec.Type())
		case excCodec != nil:
			debug("%s: exception field %d has wire type %d, expected %d", method.Name, id, ft, excCodec.Type())
			return nil, errors.Errorf("%s: decode exception %d: wire type %d, expected %d",
				method.Name, id, ft, excCodec.Type())
		default:
			// forward compatibility with newer servers
			if err := p.Skip(ctx, ft); err != nil {
				return nil, err
			}
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return nil, err
		}
	}
	if err := p.ReadStructEnd(ctx); err != nil {
		return nil, err
	}
	if err := p.ReadMessageEnd(ctx); err != nil {
		return nil, err
	}

	switch {
	case appErr != nil:
		return nil, appErr
	case resultCodec == codec.Void:
		return nil, nil
	case !haveResult:
		return nil, thrift.NewTApplicationException(thrift.MISSING_RESULT,
			fmt.Sprintf("%s failed: unknown result", method.Name))
	default:
		return result, nil
	}
}

func asError(v interface{}) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &codec.Exception{TypeName: fmt.Sprintf("%T", v), Fields: codec.StructValue{1: v}}
}
