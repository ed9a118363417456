package logging

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zrepl/yaml-config"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/transport"
)

type recordingOutlet struct {
	mtx     sync.Mutex
	entries []logger.Entry
}

func (o *recordingOutlet) WriteEntry(e logger.Entry) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.entries = append(o.entries, e)
	return nil
}

func (o *recordingOutlet) Entries() []logger.Entry {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return append([]logger.Entry(nil), o.entries...)
}

func newRecordingLogger() (logger.Logger, *recordingOutlet) {
	rec := &recordingOutlet{}
	outlets := logger.NewOutlets()
	outlets.Add(rec, logger.Debug)
	return logger.NewLogger(outlets, time.Second), rec
}

func TestGetLoggerWithoutLoggers(t *testing.T) {
	l := GetLogger(context.Background(), SubsysRPC)
	require.NotNil(t, l)
	l.Info("goes nowhere")
}

func TestGetLoggerInjectsFields(t *testing.T) {
	l, rec := newRecordingLogger()
	ctx := WithLoggers(context.Background(), SubsystemLoggersWithUniversalLogger(l))
	ctx = WithInjectedField(ctx, "method", "outer")
	ctx = WithInjectedField(ctx, "method", "inner")
	ctx = WithInjectedField(ctx, "seqid", 3)

	GetLogger(ctx, SubsysRPCConn).Info("sent")

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "sent", entries[0].Message)
	assert.Equal(t, SubsysRPCConn, entries[0].Fields[SubsysField])
	assert.Equal(t, "inner", entries[0].Fields["method"])
	assert.Equal(t, 3, entries[0].Fields["seqid"])
}

func TestWithSubsystemLoggersSetsTransportLogger(t *testing.T) {
	l, rec := newRecordingLogger()
	ctx := WithSubsystemLoggers(context.Background(), l)
	transport.GetLogger(ctx).Debug("dial")

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, SubsysTransport, entries[0].Fields[SubsysField])
}

func parseLogging(t *testing.T, in string) config.LoggingOutletEnumList {
	var c struct {
		Logging config.LoggingOutletEnumList `yaml:"logging"`
	}
	require.NoError(t, yaml.UnmarshalStrict([]byte(in), &c))
	return c.Logging
}

func TestOutletsFromConfig(t *testing.T) {
	outlets, err := OutletsFromConfig(nil)
	require.NoError(t, err)
	assert.Len(t, outlets.Get(logger.Warn), 1)
	assert.Len(t, outlets.Get(logger.Info), 0)

	in := parseLogging(t, `
logging:
  - type: stdout
    level: debug
    format: logfmt
  - type: tcp
    level: error
    format: json
    address: 127.0.0.1:1
    retry_interval: 1s
`)
	outlets, err = OutletsFromConfig(in)
	require.NoError(t, err)
	assert.Len(t, outlets.Get(logger.Debug), 1)
	assert.Len(t, outlets.Get(logger.Error), 2)
	for _, o := range outlets.Get(logger.Error) {
		if tcp, ok := o.(*TCPOutlet); ok {
			tcp.Close()
		}
	}
}

func TestOutletsFromConfigErrors(t *testing.T) {
	cases := map[string]string{
		"bad level": `
logging:
  - type: stdout
    level: loud
    format: human
`,
		"bad format": `
logging:
  - type: stdout
    level: info
    format: xml
`,
		"two stdout": `
logging:
  - type: stdout
    level: info
    format: human
  - type: stdout
    level: info
    format: json
`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := OutletsFromConfig(parseLogging(t, in))
			assert.Error(t, err)
		})
	}
}

func TestStdoutMetadataFlags(t *testing.T) {
	o := &config.StdoutLoggingOutlet{Time: false, Color: true}
	assert.Equal(t, MetadataLevel, stdoutMetadataFlags(o, false)&(MetadataTime|MetadataLevel|MetadataColor))
	assert.Equal(t, MetadataAll, stdoutMetadataFlags(o, true))
	o.Color = false
	assert.Zero(t, stdoutMetadataFlags(o, true)&MetadataColor)
}

func TestWriterOutlet(t *testing.T) {
	var buf bytes.Buffer
	o := NewWriterOutlet(&LogfmtFormatter{}, &buf)
	require.NoError(t, o.WriteEntry(logger.Entry{Message: "hello", Fields: logger.Fields{"a": 1}}))
	assert.Equal(t, "msg=hello a=1\n", buf.String())
}

func TestTCPOutlet(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	lines := make(chan string, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		lines <- line
	}()

	o := NewTCPOutlet(&LogfmtFormatter{}, "tcp", l.Addr().String(), nil, time.Second)
	defer o.Close()
	require.NoError(t, o.WriteEntry(logger.Entry{Message: "shipped"}))

	select {
	case line := <-lines:
		assert.Equal(t, "msg=shipped\n", line)
	case <-time.After(5 * time.Second):
		t.Fatal("entry not received")
	}
}
