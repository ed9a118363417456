package codec

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"
)

type dynamicCodec struct{ name string }

// Dynamic decodes any struct using only the type information on the wire.
// Containers decode to []interface{} and map[interface{}]interface{},
// nested structs to StructValue. It cannot encode.
func Dynamic(name string) Codec { return dynamicCodec{name} }

func (c dynamicCodec) Type() thrift.TType { return thrift.STRUCT }
func (c dynamicCodec) String() string     { return c.name }

func (c dynamicCodec) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	return readWire(ctx, p, thrift.STRUCT, thrift.DEFAULT_RECURSION_DEPTH)
}

func (c dynamicCodec) Write(ctx context.Context, p thrift.TProtocol, v interface{}) error {
	return errors.Errorf("%s: dynamic struct cannot be encoded", c.name)
}

type dynamicExceptionCodec struct{ dynamicCodec }

// DynamicException is like Dynamic but decodes to *Exception.
func DynamicException(name string) Codec { return dynamicExceptionCodec{dynamicCodec{name}} }

func (c dynamicExceptionCodec) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	v, err := c.dynamicCodec.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Exception{TypeName: c.name, Fields: v.(StructValue)}, nil
}

func readWire(ctx context.Context, p thrift.TProtocol, t thrift.TType, depth int) (interface{}, error) {
	if depth <= 0 {
		return nil, thrift.NewTProtocolExceptionWithType(thrift.DEPTH_LIMIT, errors.New("depth limit exceeded"))
	}
	switch t {
	case thrift.BOOL:
		return p.ReadBool(ctx)
	case thrift.BYTE:
		return p.ReadByte(ctx)
	case thrift.I16:
		return p.ReadI16(ctx)
	case thrift.I32:
		return p.ReadI32(ctx)
	case thrift.I64:
		return p.ReadI64(ctx)
	case thrift.DOUBLE:
		return p.ReadDouble(ctx)
	case thrift.STRING:
		return p.ReadString(ctx)
	case thrift.UUID:
		return p.ReadUUID(ctx)
	case thrift.STRUCT:
		if _, err := p.ReadStructBegin(ctx); err != nil {
			return nil, err
		}
		sv := StructValue{}
		for {
			_, ft, id, err := p.ReadFieldBegin(ctx)
			if err != nil {
				return nil, err
			}
			if ft == thrift.STOP {
				break
			}
			if sv[id], err = readWire(ctx, p, ft, depth-1); err != nil {
				return nil, err
			}
			if err := p.ReadFieldEnd(ctx); err != nil {
				return nil, err
			}
		}
		return sv, p.ReadStructEnd(ctx)
	case thrift.LIST, thrift.SET:
		var (
			et   thrift.TType
			size int
			err  error
		)
		if t == thrift.LIST {
			et, size, err = p.ReadListBegin(ctx)
		} else {
			et, size, err = p.ReadSetBegin(ctx)
		}
		if err != nil {
			return nil, err
		}
		l := make([]interface{}, 0, size)
		for i := 0; i < size; i++ {
			e, err := readWire(ctx, p, et, depth-1)
			if err != nil {
				return nil, err
			}
			l = append(l, e)
		}
		if t == thrift.LIST {
			return l, p.ReadListEnd(ctx)
		}
		return l, p.ReadSetEnd(ctx)
	case thrift.MAP:
		kt, vt, size, err := p.ReadMapBegin(ctx)
		if err != nil {
			return nil, err
		}
		m := make(map[interface{}]interface{}, size)
		for i := 0; i < size; i++ {
			k, err := readWire(ctx, p, kt, depth-1)
			if err != nil {
				return nil, err
			}
			v, err := readWire(ctx, p, vt, depth-1)
			if err != nil {
				return nil, err
			}
			if _, ok := k.(StructValue); ok {
				return nil, thrift.NewTProtocolExceptionWithType(thrift.INVALID_DATA, errors.New("struct map keys are not supported"))
			}
			m[k] = v
		}
		return m, p.ReadMapEnd(ctx)
	default:
		return nil, thrift.NewTProtocolExceptionWithType(thrift.INVALID_DATA, errors.Errorf("unknown wire type %d", t))
	}
}
