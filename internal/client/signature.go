package client

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/thriftmux/thriftmux/internal/rpc/codec"
	"github.com/thriftmux/thriftmux/internal/rpc/mux"
)

// signatureArgs describes a method on the command line, there is no IDL.
type signatureArgs struct {
	method     string
	args       []string
	result     string
	exceptions []string
	oneway     bool
}

func (s *signatureArgs) setupFlags(f *pflag.FlagSet) {
	f.StringVar(&s.method, "method", "", "method name")
	f.StringArrayVar(&s.args, "arg", nil, "argument as ID:TYPE:VALUE, VALUE is JSON for containers (repeatable)")
	f.StringVar(&s.result, "result", "void", "result type, e.g. i64 or map<string,list<i32>>")
	f.StringArrayVar(&s.exceptions, "exception", nil, "declared exception as ID:NAME (repeatable)")
	f.BoolVar(&s.oneway, "oneway", false, "send as oneway call, no response is expected")
}

func parseFieldID(s string) (int16, error) {
	id, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return 0, errors.Errorf("invalid field id %q", s)
	}
	if id <= 0 {
		return 0, errors.Errorf("field id must be positive, got %d", id)
	}
	return int16(id), nil
}

// parseArg parses ID:TYPE:VALUE. VALUE may itself contain colons.
func parseArg(in string) (mux.Parameter, interface{}, error) {
	parts := strings.SplitN(in, ":", 3)
	if len(parts) != 3 {
		return mux.Parameter{}, nil, errors.Errorf("argument %q: expecting ID:TYPE:VALUE", in)
	}
	id, err := parseFieldID(parts[0])
	if err != nil {
		return mux.Parameter{}, nil, errors.Wrapf(err, "argument %q", in)
	}
	c, err := codec.ParseType(parts[1])
	if err != nil {
		return mux.Parameter{}, nil, errors.Wrapf(err, "argument %q", in)
	}
	if c == codec.Void {
		return mux.Parameter{}, nil, errors.Errorf("argument %q: void is not a value type", in)
	}
	v, err := codec.ParseValue(c, parts[2])
	if err != nil {
		return mux.Parameter{}, nil, errors.Wrapf(err, "argument %q", in)
	}
	return mux.Parameter{ID: id, Name: "arg" + parts[0], Codec: c}, v, nil
}

func parseException(in string) (int16, codec.Codec, error) {
	parts := strings.SplitN(in, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, nil, errors.Errorf("exception %q: expecting ID:NAME", in)
	}
	id, err := parseFieldID(parts[0])
	if err != nil {
		return 0, nil, errors.Wrapf(err, "exception %q", in)
	}
	return id, codec.DynamicException(parts[1]), nil
}

func (s *signatureArgs) build() (*mux.Method, []interface{}, error) {
	if s.method == "" {
		return nil, nil, errors.New("must specify --method")
	}
	m := &mux.Method{Name: s.method, Oneway: s.oneway}

	result, err := codec.ParseType(s.result)
	if err != nil {
		return nil, nil, errors.Wrap(err, "--result")
	}
	if s.oneway && (result != codec.Void || len(s.exceptions) > 0) {
		return nil, nil, errors.New("oneway methods have neither result nor exceptions")
	}
	m.Result = result

	ids := make(map[int16]bool)
	var args []interface{}
	for _, a := range s.args {
		p, v, err := parseArg(a)
		if err != nil {
			return nil, nil, err
		}
		if ids[p.ID] {
			return nil, nil, errors.Errorf("duplicate argument id %d", p.ID)
		}
		ids[p.ID] = true
		m.Parameters = append(m.Parameters, p)
		args = append(args, v)
	}

	for _, e := range s.exceptions {
		id, c, err := parseException(e)
		if err != nil {
			return nil, nil, err
		}
		if m.Exceptions == nil {
			m.Exceptions = make(map[int16]codec.Codec)
		}
		if _, dup := m.Exceptions[id]; dup {
			return nil, nil, errors.Errorf("duplicate exception id %d", id)
		}
		m.Exceptions[id] = c
	}
	return m, args, nil
}
