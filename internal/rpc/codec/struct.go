package codec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/pkg/errors"
)

type Field struct {
	ID    int16
	Name  string
	Codec Codec
}

// StructValue holds decoded struct fields by field id.
type StructValue map[int16]interface{}

func (v StructValue) String() string {
	ids := make([]int, 0, len(v))
	for id := range v {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d:%v", id, v[int16(id)]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

type structCodec struct {
	name   string
	fields []Field
	byID   map[int16]Field
}

func newStructCodec(name string, fields []Field) *structCodec {
	c := &structCodec{name: name, fields: fields, byID: make(map[int16]Field, len(fields))}
	for _, f := range fields {
		if _, dup := c.byID[f.ID]; dup {
			panic(fmt.Sprintf("codec: struct %s declares field id %d twice", name, f.ID))
		}
		c.byID[f.ID] = f
	}
	return c
}

// Struct decodes to StructValue. Fields that are not declared, or whose wire
// type does not match the declaration, are skipped.
func Struct(name string, fields ...Field) Codec { return newStructCodec(name, fields) }

func (c *structCodec) Type() thrift.TType { return thrift.STRUCT }
func (c *structCodec) String() string     { return c.name }

func (c *structCodec) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	return c.readFields(ctx, p)
}

func (c *structCodec) readFields(ctx context.Context, p thrift.TProtocol) (StructValue, error) {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return nil, err
	}
	v := StructValue{}
	for {
		_, ft, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return nil, err
		}
		if ft == thrift.STOP {
			break
		}
		f, ok := c.byID[id]
		if ok && f.Codec.Type() == ft {
			fv, err := f.Codec.Read(ctx, p)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: field %d (%s)", c.name, id, f.Name)
			}
			v[id] = fv
		} else if err := p.Skip(ctx, ft); err != nil {
			return nil, err
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return nil, err
		}
	}
	return v, p.ReadStructEnd(ctx)
}

func (c *structCodec) Write(ctx context.Context, p thrift.TProtocol, v interface{}) error {
	sv, ok := v.(StructValue)
	if !ok {
		return typeError(c, v)
	}
	return c.writeFields(ctx, p, sv)
}

func (c *structCodec) writeFields(ctx context.Context, p thrift.TProtocol, sv StructValue) error {
	for id := range sv {
		if _, ok := c.byID[id]; !ok {
			return errors.Errorf("%s has no field %d", c.name, id)
		}
	}
	if err := p.WriteStructBegin(ctx, c.name); err != nil {
		return err
	}
	for _, f := range c.fields {
		fv, ok := sv[f.ID]
		if !ok {
			continue
		}
		if err := p.WriteFieldBegin(ctx, f.Name, f.Codec.Type(), f.ID); err != nil {
			return err
		}
		if err := f.Codec.Write(ctx, p, fv); err != nil {
			return errors.Wrapf(err, "%s: field %d (%s)", c.name, f.ID, f.Name)
		}
		if err := p.WriteFieldEnd(ctx); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

// Exception is a decoded user-declared exception struct.
type Exception struct {
	TypeName string
	Fields   StructValue
}

func (e *Exception) Error() string {
	if len(e.Fields) == 1 {
		for _, v := range e.Fields {
			if s, ok := v.(string); ok {
				return fmt.Sprintf("%s: %s", e.TypeName, s)
			}
		}
	}
	return fmt.Sprintf("%s%s", e.TypeName, e.Fields)
}

type exceptionCodec struct {
	*structCodec
}

// ExceptionStruct is like Struct but decodes to *Exception.
func ExceptionStruct(name string, fields ...Field) Codec {
	return exceptionCodec{newStructCodec(name, fields)}
}

func (c exceptionCodec) Read(ctx context.Context, p thrift.TProtocol) (interface{}, error) {
	sv, err := c.readFields(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Exception{TypeName: c.name, Fields: sv}, nil
}

func (c exceptionCodec) Write(ctx context.Context, p thrift.TProtocol, v interface{}) error {
	switch v := v.(type) {
	case *Exception:
		return c.writeFields(ctx, p, v.Fields)
	case StructValue:
		return c.writeFields(ctx, p, v)
	default:
		return typeError(c, v)
	}
}
