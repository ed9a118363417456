package config

import (
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

func TestSampleConfigsAreParsedWithoutErrors(t *testing.T) {
	paths, err := filepath.Glob("./samples/*")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {

		if path.Ext(p) != ".yml" {
			t.Logf("skipping file %s", p)
			continue
		}

		t.Run(p, func(t *testing.T) {
			c, err := ParseConfig(p)
			if err != nil {
				t.Errorf("error parsing %s:\n%+v", p, err)
			}

			t.Logf("file: %s", p)
			t.Log(pretty.Sprint(c))
		})

	}

}

func testValidConfig(t *testing.T, input string) *Config {
	t.Helper()
	conf, err := ParseConfigBytes([]byte(input))
	require.NoError(t, err)
	require.NotNil(t, conf)
	return conf
}

const minimalConnect = `
connect:
  type: tcp
  address: "localhost:9090"
`

func TestRPCDefaults(t *testing.T) {
	conf := testValidConfig(t, minimalConnect)
	rpc := conf.RPC
	require.NotNil(t, rpc)
	assert.Equal(t, protocol.Framed, rpc.TransportType())
	assert.Equal(t, protocol.Binary, rpc.ProtocolType())
	assert.Equal(t, 10*time.Second, rpc.RequestTimeout)
	assert.Equal(t, 16777216, rpc.MaxFrameSize)
	assert.True(t, rpc.AssumeOutOfOrderResponses)
	assert.Equal(t, int64(1024), rpc.MaxOutstanding)
	assert.Equal(t, 4194304, rpc.WriteQueueHighWatermark)
	assert.Equal(t, 1048576, rpc.WriteQueueLowWatermark)

	tcp := conf.Connect.Ret.(*TCPConnect)
	assert.Equal(t, "localhost:9090", tcp.Address)
	assert.Equal(t, 10*time.Second, tcp.DialTimeout)
}

func TestDefaultLoggingOutlet(t *testing.T) {
	conf := testValidConfig(t, minimalConnect)
	require.Len(t, *conf.Global.Logging, 1)
	o := (*conf.Global.Logging)[0].Ret.(*StdoutLoggingOutlet)
	assert.Equal(t, "warn", o.Level)
	assert.Equal(t, "human", o.Format)
	assert.True(t, o.Time)
}

func TestConnectTypes(t *testing.T) {
	conf := testValidConfig(t, `
connect:
  type: quic
  address: "h:4433"
  ca: ca.crt
  cert: c.crt
  key: c.key
  server_cn: h
`)
	q := conf.Connect.Ret.(*QUICConnect)
	assert.Equal(t, "thrift", q.ALPN)
	assert.Equal(t, 15*time.Second, q.KeepAlivePeriod)

	conf = testValidConfig(t, `
connect:
  type: tls
  address: "h:9091"
  ca: ca.crt
  cert: c.crt
  key: c.key
  server_cn: h
`)
	assert.Equal(t, "h", conf.Connect.Ret.(*TLSConnect).ServerCN)
}

func TestOutletTypes(t *testing.T) {
	conf := testValidConfig(t, minimalConnect+`
global:
  logging:
  - type: stdout
    level: debug
    format: human
  - type: tcp
    level: info
    format: json
    address: logserver.example.com:1234
    tls:
      ca: /etc/thriftmux/log/ca.crt
      cert: /etc/thriftmux/log/cert.pem
      key: /etc/thriftmux/log/key.pem
  monitoring:
  - type: prometheus
    listen: ':9091'
`)
	require.Len(t, *conf.Global.Logging, 2)
	tcp := (*conf.Global.Logging)[1].Ret.(*TCPLoggingOutlet)
	assert.Equal(t, "tcp", tcp.Net)
	assert.Equal(t, 10*time.Second, tcp.RetryInterval)
	assert.NotNil(t, tcp.TLS)
	assert.Equal(t, ":9091", conf.Global.Monitoring[0].Ret.(*PrometheusMonitoring).Listen)
}

func TestInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"empty":              "# nothing here\n",
		"missing connect":    "rpc:\n  protocol: binary\n",
		"unknown connect":    "connect:\n  type: carrier-pigeon\n",
		"connect no type":    "connect:\n  address: x\n",
		"unknown transport":  minimalConnect + "rpc:\n  transport: http\n",
		"unknown protocol":   minimalConnect + "rpc:\n  protocol: json\n",
		"negative timeout":   minimalConnect + "rpc:\n  request_timeout: -1s\n",
		"inverted watermark": minimalConnect + "rpc:\n  write_queue_high_watermark: 10\n  write_queue_low_watermark: 20\n",
		"zero outstanding":   minimalConnect + "rpc:\n  max_outstanding: 0\n",
		"unknown field":      minimalConnect + "rpc:\n  compression: zstd\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfigBytes([]byte(input))
			assert.Error(t, err)
		})
	}
}
