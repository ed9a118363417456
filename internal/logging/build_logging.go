// Package logging builds loggers from the configuration and hands them
// out per subsystem through context.Context.
package logging

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/tlsconf"
	"github.com/thriftmux/thriftmux/internal/transport"
)

func OutletsFromConfig(in config.LoggingOutletEnumList) (*logger.Outlets, error) {

	outlets := logger.NewOutlets()

	if len(in) == 0 {
		// Default config
		out := WriterOutlet{&HumanFormatter{}, os.Stdout}
		outlets.Add(out, logger.Warn)
		return outlets, nil
	}

	var stdoutOutlets int
	for lei, le := range in {

		outlet, minLevel, err := ParseOutlet(le)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot parse outlet #%d", lei)
		}
		if _, ok := outlet.(WriterOutlet); ok {
			stdoutOutlets++
		}

		outlets.Add(outlet, minLevel)

	}

	if stdoutOutlets > 1 {
		return nil, errors.Errorf("can only define one 'stdout' outlet")
	}

	return outlets, nil

}

type Subsystem string

const (
	SubsysCLI       Subsystem = "cli"
	SubsysTransport Subsystem = "transport"
	SubsysRPC       Subsystem = "rpc"
	SubsysRPCConn   Subsystem = "rpc.conn"
	SubsysRPCMux    Subsystem = "rpc.mux"
	SubsysBench     Subsystem = "bench"
)

var AllSubsystems = []Subsystem{
	SubsysCLI,
	SubsysTransport,
	SubsysRPC,
	SubsysRPCConn,
	SubsysRPCMux,
	SubsysBench,
}

// WithSubsystemLoggers makes log available to all subsystems, including
// packages that take their logger from the context directly.
func WithSubsystemLoggers(ctx context.Context, log logger.Logger) context.Context {
	ctx = WithLoggers(ctx, SubsystemLoggersWithUniversalLogger(log))
	ctx = transport.WithLogger(ctx, GetLogger(ctx, SubsysTransport))
	return ctx
}

func parseLogFormat(i interface{}) (f EntryFormatter, err error) {
	var is string
	switch j := i.(type) {
	case string:
		is = j
	default:
		return nil, errors.Errorf("invalid log format: wrong type: %T", i)
	}

	switch is {
	case "human":
		return &HumanFormatter{}, nil
	case "logfmt":
		return &LogfmtFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	default:
		return nil, errors.Errorf("invalid log format: '%s'", is)
	}

}

func ParseOutlet(in config.LoggingOutletEnum) (o logger.Outlet, level logger.Level, err error) {

	parseCommon := func(common config.LoggingOutletCommon) (logger.Level, EntryFormatter, error) {
		if common.Level == "" || common.Format == "" {
			return 0, nil, errors.Errorf("must specify 'level' and 'format' field")
		}

		minLevel, err := logger.ParseLevel(common.Level)
		if err != nil {
			return 0, nil, errors.Wrap(err, "cannot parse 'level' field")
		}
		formatter, err := parseLogFormat(common.Format)
		if err != nil {
			return 0, nil, errors.Wrap(err, "cannot parse 'formatter' field")
		}
		return minLevel, formatter, nil
	}

	var f EntryFormatter

	switch v := in.Ret.(type) {
	case *config.StdoutLoggingOutlet:
		level, f, err = parseCommon(v.LoggingOutletCommon)
		if err != nil {
			break
		}
		o, err = parseStdoutOutlet(v, f)
	case *config.TCPLoggingOutlet:
		level, f, err = parseCommon(v.LoggingOutletCommon)
		if err != nil {
			break
		}
		o, err = parseTCPOutlet(v, f)
	default:
		panic(v)
	}
	return o, level, err
}

func stdoutMetadataFlags(in *config.StdoutLoggingOutlet, isTerminal bool) MetadataFlags {
	flags := MetadataAll
	if !isTerminal && !in.Time {
		flags &= ^MetadataTime
	}
	if !isTerminal || !in.Color {
		flags &= ^MetadataColor
	}
	return flags
}

func parseStdoutOutlet(in *config.StdoutLoggingOutlet, formatter EntryFormatter) (WriterOutlet, error) {
	writer := os.Stdout
	formatter.SetMetadataFlags(stdoutMetadataFlags(in, isatty.IsTerminal(writer.Fd())))
	return WriterOutlet{
		formatter,
		writer,
	}, nil
}

func parseTCPOutlet(in *config.TCPLoggingOutlet, formatter EntryFormatter) (out *TCPOutlet, err error) {
	var tlsConfig *tls.Config
	if in.TLS != nil {
		tlsConfig, err = func(m *config.TCPLoggingOutletTLS, host string) (*tls.Config, error) {
			clientCert, err := tls.LoadX509KeyPair(m.Cert, m.Key)
			if err != nil {
				return nil, errors.Wrap(err, "cannot load client cert")
			}

			var rootCAs *x509.CertPool
			if m.CA == "" {
				if rootCAs, err = x509.SystemCertPool(); err != nil {
					return nil, errors.Wrap(err, "cannot open system cert pool")
				}
			} else {
				rootCAs, err = tlsconf.ParseCAFile(m.CA)
				if err != nil {
					return nil, errors.Wrap(err, "cannot parse CA cert")
				}
			}

			return tlsconf.ClientAuthClient(host, rootCAs, clientCert)
		}(in.TLS, hostOf(in.Address))
		if err != nil {
			return nil, errors.Wrap(err, "cannot not parse TLS config in field 'tls'")
		}
	}

	formatter.SetMetadataFlags(MetadataAll &^ MetadataColor)
	return NewTCPOutlet(formatter, in.Net, in.Address, tlsConfig, in.RetryInterval), nil

}

func hostOf(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}
