// Package codec reads and writes typed values through a thrift.TProtocol.
//
// Codecs describe argument, result and exception types of a method so the
// multiplexer can encode calls and decode responses without generated code.
package codec

import (
	"context"
	"fmt"
	"math"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"
)

type Codec interface {
	Type() thrift.TType
	Read(ctx context.Context, p thrift.TProtocol) (interface{}, error)
	Write(ctx context.Context, p thrift.TProtocol, v interface{}) error
	String() string
}

type voidCodec struct{}

// Void is the result codec of methods that return nothing.
var Void Codec = voidCodec{}

func (voidCodec) Type() thrift.TType { return thrift.VOID }
func (voidCodec) String() string     { return "void" }
func (voidCodec) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	return nil, nil
}
func (voidCodec) Write(ctx context.Context, p thrift.TProtocol, v interface{}) error {
	return nil
}

type scalar struct {
	name  string
	typ   thrift.TType
	read  func(ctx context.Context, p thrift.TProtocol) (interface{}, error)
	write func(ctx context.Context, p thrift.TProtocol, v interface{}) error
}

func (s *scalar) Type() thrift.TType { return s.typ }
func (s *scalar) String() string     { return s.name }
func (s *scalar) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	return s.read(ctx, p)
}
func (s *scalar) Write(ctx context.Context, p thrift.TProtocol, v interface{}) error {
	return s.write(ctx, p, v)
}

func typeError(c Codec, v interface{}) error {
	return errors.Errorf("cannot encode %T as %s", v, c)
}

func toInt64(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func integer(name string, typ thrift.TType, min, max int64, write func(ctx context.Context, p thrift.TProtocol, i int64) error, read func(ctx context.Context, p thrift.TProtocol) (interface{}, error)) *scalar {
	c := &scalar{name: name, typ: typ, read: read}
	c.write = func(ctx context.Context, p thrift.TProtocol, v interface{}) error {
		i, ok := toInt64(v)
		if !ok {
			return typeError(c, v)
		}
		if i < min || i > max {
			return errors.Errorf("value %d out of range for %s", i, name)
		}
		return write(ctx, p, i)
	}
	return c
}

var (
	Bool Codec = &scalar{
		name: "bool",
		typ:  thrift.BOOL,
		read: func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadBool(ctx) },
		write: func(ctx context.Context, p thrift.TProtocol, v interface{}) error {
			b, ok := v.(bool)
			if !ok {
				return errors.Errorf("cannot encode %T as bool", v)
			}
			return p.WriteBool(ctx, b)
		},
	}
	Byte Codec = integer("byte", thrift.BYTE, math.MinInt8, math.MaxInt8,
		func(ctx context.Context, p thrift.TProtocol, i int64) error { return p.WriteByte(ctx, int8(i)) },
		func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadByte(ctx) })
	I16 Codec = integer("i16", thrift.I16, math.MinInt16, math.MaxInt16,
		func(ctx context.Context, p thrift.TProtocol, i int64) error { return p.WriteI16(ctx, int16(i)) },
		func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadI16(ctx) })
	I32 Codec = integer("i32", thrift.I32, math.MinInt32, math.MaxInt32,
		func(ctx context.Context, p thrift.TProtocol, i int64) error { return p.WriteI32(ctx, int32(i)) },
		func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadI32(ctx) })
	I64 Codec = integer("i64", thrift.I64, math.MinInt64, math.MaxInt64,
		func(ctx context.Context, p thrift.TProtocol, i int64) error { return p.WriteI64(ctx, i) },
		func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadI64(ctx) })
	Double Codec = &scalar{
		name: "double",
		typ:  thrift.DOUBLE,
		read: func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadDouble(ctx) },
		write: func(ctx context.Context, p thrift.TProtocol, v interface{}) error {
			switch v := v.(type) {
			case float64:
				return p.WriteDouble(ctx, v)
			case float32:
				return p.WriteDouble(ctx, float64(v))
			default:
				return errors.Errorf("cannot encode %T as double", v)
			}
		},
	}
	String Codec = &scalar{
		name: "string",
		typ:  thrift.STRING,
		read: func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadString(ctx) },
		write: func(ctx context.Context, p thrift.TProtocol, v interface{}) error {
			s, ok := v.(string)
			if !ok {
				return errors.Errorf("cannot encode %T as string", v)
			}
			return p.WriteString(ctx, s)
		},
	}
	Binary Codec = &scalar{
		name: "binary",
		typ:  thrift.STRING,
		read: func(ctx context.Context, p thrift.TProtocol) (interface{}, error) { return p.ReadBinary(ctx) },
		write: func(ctx context.Context, p thrift.TProtocol, v interface{}) error {
			switch v := v.(type) {
			case []byte:
				return p.WriteBinary(ctx, v)
			case string:
				return p.WriteBinary(ctx, []byte(v))
			default:
				return errors.Errorf("cannot encode %T as binary", v)
			}
		},
	}
)

func checkElemType(what string, want, got thrift.TType) error {
	if want != got {
		return thrift.NewTProtocolExceptionWithType(thrift.INVALID_DATA, fmt.Errorf("%s: expected element type %d, got %d", what, want, got))
	}
	return nil
}

type listCodec struct {
	elem Codec
	set  bool
}

// List encodes []interface{} values.
func List(elem Codec) Codec { return &listCodec{elem: elem} }

// Set encodes []interface{} values with set semantics on the wire.
func Set(elem Codec) Codec { return &listCodec{elem: elem, set: true} }

func (c *listCodec) Type() thrift.TType {
	if c.set {
		return thrift.SET
	}
	return thrift.LIST
}

func (c *listCodec) String() string {
	if c.set {
		return fmt.Sprintf("set<%s>", c.elem)
	}
	return fmt.Sprintf("list<%s>", c.elem)
}

func (c *listCodec) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	var (
		et   thrift.TType
		size int
		err  error
	)
	if c.set {
		et, size, err = p.ReadSetBegin(ctx)
	} else {
		et, size, err = p.ReadListBegin(ctx)
	}
	if err != nil {
		return nil, err
	}
	if err := checkElemType(c.String(), c.elem.Type(), et); err != nil {
		return nil, err
	}
	l := make([]interface{}, 0, size)
	for i := 0; i < size; i++ {
		v, err := c.elem.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
	if c.set {
		err = p.ReadSetEnd(ctx)
	} else {
		err = p.ReadListEnd(ctx)
	}
	return l, err
}

func (c *listCodec) Write(ctx context.Context, p thrift.TProtocol, v interface{}) error {
	l, ok := v.([]interface{})
	if !ok {
		return typeError(c, v)
	}
	var err error
	if c.set {
		err = p.WriteSetBegin(ctx, c.elem.Type(), len(l))
	} else {
		err = p.WriteListBegin(ctx, c.elem.Type(), len(l))
	}
	if err != nil {
		return err
	}
	for _, e := range l {
		if err := c.elem.Write(ctx, p, e); err != nil {
			return err
		}
	}
	if c.set {
		return p.WriteSetEnd(ctx)
	}
	return p.WriteListEnd(ctx)
}

type mapCodec struct {
	key, value Codec
}

// Map encodes map[interface{}]interface{} values.
func Map(key, value Codec) Codec { return &mapCodec{key, value} }

func (c *mapCodec) Type() thrift.TType { return thrift.MAP }
func (c *mapCodec) String() string     { return fmt.Sprintf("map<%s,%s>", c.key, c.value) }

func (c *mapCodec) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	kt, vt, size, err := p.ReadMapBegin(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[interface{}]interface{}, size)
	if size > 0 {
		if err := checkElemType(c.String(), c.key.Type(), kt); err != nil {
			return nil, err
		}
		if err := checkElemType(c.String(), c.value.Type(), vt); err != nil {
			return nil, err
		}
	}
	for i := 0; i < size; i++ {
		k, err := c.key.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		v, err := c.value.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		if b, ok := k.([]byte); ok {
			k = string(b)
		}
		m[k] = v
	}
	return m, p.ReadMapEnd(ctx)
}

func (c *mapCodec) Write(ctx context.Context, p thrift.TProtocol, v interface{}) error {
	m, ok := v.(map[interface{}]interface{})
	if !ok {
		return typeError(c, v)
	}
	if err := p.WriteMapBegin(ctx, c.key.Type(), c.value.Type(), len(m)); err != nil {
		return err
	}
	for k, v := range m {
		if err := c.key.Write(ctx, p, k); err != nil {
			return err
		}
		if err := c.value.Write(ctx, p, v); err != nil {
			return err
		}
	}
	return p.WriteMapEnd(ctx)
}
