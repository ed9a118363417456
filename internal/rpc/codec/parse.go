package codec

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var scalarNames = map[string]Codec{
	"void":   Void,
	"bool":   Bool,
	"byte":   Byte,
	"i8":     Byte,
	"i16":    I16,
	"i32":    I32,
	"i64":    I64,
	"double": Double,
	"string": String,
	"binary": Binary,
}

// ParseType parses type expressions like "i32", "list<string>" or
// "map<string,list<i64>>". "struct" yields a Dynamic codec.
func ParseType(s string) (Codec, error) {
	s = strings.TrimSpace(s)
	if c, ok := scalarNames[s]; ok {
		return c, nil
	}
	if s == "struct" {
		return Dynamic("struct"), nil
	}
	open := strings.IndexByte(s, '<')
	if open < 0 || !strings.HasSuffix(s, ">") {
		return nil, errors.Errorf("unknown type %q", s)
	}
	kind, inner := s[:open], s[open+1:len(s)-1]
	switch kind {
	case "list", "set":
		elem, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		if elem == Void {
			return nil, errors.Errorf("invalid element type in %q", s)
		}
		if kind == "set" {
			return Set(elem), nil
		}
		return List(elem), nil
	case "map":
		comma := splitTopLevelComma(inner)
		if comma < 0 {
			return nil, errors.Errorf("map type %q needs key and value type", s)
		}
		k, err := ParseType(inner[:comma])
		if err != nil {
			return nil, err
		}
		v, err := ParseType(inner[comma+1:])
		if err != nil {
			return nil, err
		}
		if k == Void || v == Void {
			return nil, errors.Errorf("invalid element type in %q", s)
		}
		return Map(k, v), nil
	default:
		return nil, errors.Errorf("unknown type %q", s)
	}
}

func splitTopLevelComma(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseValue parses s as a value of type c.
// Containers are given in JSON notation, e.g. `[1,2]` or `{"a":[true]}`.
func ParseValue(c Codec, s string) (interface{}, error) {
	switch c {
	case Bool:
		return strconv.ParseBool(s)
	case Byte:
		i, err := strconv.ParseInt(s, 0, 8)
		return int8(i), err
	case I16:
		i, err := strconv.ParseInt(s, 0, 16)
		return int16(i), err
	case I32:
		i, err := strconv.ParseInt(s, 0, 32)
		return int32(i), err
	case I64:
		return strconv.ParseInt(s, 0, 64)
	case Double:
		return strconv.ParseFloat(s, 64)
	case String:
		return s, nil
	case Binary:
		return []byte(s), nil
	}
	switch c.(type) {
	case *listCodec, *mapCodec:
		var j interface{}
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			return nil, errors.Wrapf(err, "parse %s", c)
		}
		return fromJSON(c, j)
	default:
		return nil, errors.Errorf("values of type %s cannot be given on the command line", c)
	}
}

func fromJSON(c Codec, j interface{}) (interface{}, error) {
	switch c := c.(type) {
	case *listCodec:
		l, ok := j.([]interface{})
		if !ok {
			return nil, errors.Errorf("expected JSON array for %s, got %T", c, j)
		}
		out := make([]interface{}, len(l))
		for i := range l {
			v, err := fromJSON(c.elem, l[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *mapCodec:
		m, ok := j.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("expected JSON object for %s, got %T", c, j)
		}
		out := make(map[interface{}]interface{}, len(m))
		for k, jv := range m {
			kv, err := ParseValue(c.key, k)
			if err != nil {
				return nil, err
			}
			if b, ok := kv.([]byte); ok {
				kv = string(b)
			}
			v, err := fromJSON(c.value, jv)
			if err != nil {
				return nil, err
			}
			out[kv] = v
		}
		return out, nil
	}
	switch j := j.(type) {
	case string:
		return ParseValue(c, j)
	case bool:
		return ParseValue(c, strconv.FormatBool(j))
	case float64:
		if c == Double {
			return j, nil
		}
		return ParseValue(c, strconv.FormatFloat(j, 'f', -1, 64))
	default:
		return nil, errors.Errorf("cannot use JSON %T as %s", j, c)
	}
}
