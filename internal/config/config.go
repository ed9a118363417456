// Package config defines the thriftmux client configuration file.
package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/zrepl/yaml-config"

	"github.com/thriftmux/thriftmux/internal/rpc/protocol"
)

type Config struct {
	Connect ConnectEnum `yaml:"connect"`
	RPC     *RPCConfig  `yaml:"rpc,optional,fromdefaults"`
	Global  *Global     `yaml:"global,optional,fromdefaults"`
}

type RPCConfig struct {
	Transport                 string        `yaml:"transport,optional,default=framed"`
	Protocol                  string        `yaml:"protocol,optional,default=binary"`
	RequestTimeout            time.Duration `yaml:"request_timeout,optional,positive,default=10s"`
	MaxFrameSize              int           `yaml:"max_frame_size,optional,default=16777216"`
	AssumeOutOfOrderResponses bool          `yaml:"assume_out_of_order_responses,optional,default=true"`
	MaxOutstanding            int64         `yaml:"max_outstanding,optional,default=1024"`
	WriteQueueHighWatermark   int           `yaml:"write_queue_high_watermark,optional,default=4194304"`
	WriteQueueLowWatermark    int           `yaml:"write_queue_low_watermark,optional,default=1048576"`
}

// TransportType returns the parsed transport field. Only valid after Validate.
func (c *RPCConfig) TransportType() protocol.Transport {
	t, err := protocol.ParseTransport(c.Transport)
	if err != nil {
		panic(err)
	}
	return t
}

// ProtocolType returns the parsed protocol field. Only valid after Validate.
func (c *RPCConfig) ProtocolType() protocol.Protocol {
	p, err := protocol.ParseProtocol(c.Protocol)
	if err != nil {
		panic(err)
	}
	return p
}

func (c *RPCConfig) Validate() error {
	if _, err := protocol.ParseTransport(c.Transport); err != nil {
		return errors.Wrap(err, "field 'transport'")
	}
	if _, err := protocol.ParseProtocol(c.Protocol); err != nil {
		return errors.Wrap(err, "field 'protocol'")
	}
	if c.MaxFrameSize <= 0 {
		return errors.Errorf("field 'max_frame_size' must be positive, got %d", c.MaxFrameSize)
	}
	if c.MaxOutstanding <= 0 {
		return errors.Errorf("field 'max_outstanding' must be positive, got %d", c.MaxOutstanding)
	}
	if c.WriteQueueLowWatermark > c.WriteQueueHighWatermark {
		return errors.Errorf("write_queue_low_watermark (%d) exceeds write_queue_high_watermark (%d)",
			c.WriteQueueLowWatermark, c.WriteQueueHighWatermark)
	}
	return nil
}

type ConnectEnum struct {
	Ret interface{}
}

type ConnectCommon struct {
	Type string `yaml:"type"`
}

type TCPConnect struct {
	ConnectCommon `yaml:",inline"`
	Address       string        `yaml:"address"`
	DialTimeout   time.Duration `yaml:"dial_timeout,positive,default=10s"`
}

type TLSConnect struct {
	ConnectCommon `yaml:",inline"`
	Address       string        `yaml:"address"`
	Ca            string        `yaml:"ca"`
	Cert          string        `yaml:"cert"`
	Key           string        `yaml:"key"`
	ServerCN      string        `yaml:"server_cn"`
	DialTimeout   time.Duration `yaml:"dial_timeout,positive,default=10s"`
}

// QUICConnect carries each connection on one bidirectional QUIC stream.
type QUICConnect struct {
	ConnectCommon   `yaml:",inline"`
	Address         string        `yaml:"address"`
	Ca              string        `yaml:"ca"`
	Cert            string        `yaml:"cert"`
	Key             string        `yaml:"key"`
	ServerCN        string        `yaml:"server_cn"`
	ALPN            string        `yaml:"alpn,optional,default=thrift"`
	DialTimeout     time.Duration `yaml:"dial_timeout,positive,default=10s"`
	KeepAlivePeriod time.Duration `yaml:"keep_alive_period,optional,positive,default=15s"`
}

type LoggingOutletEnumList []LoggingOutletEnum

func (l *LoggingOutletEnumList) SetDefault() {
	def := `
type: "stdout"
time: true
level: "warn"
format: "human"
`
	s := &StdoutLoggingOutlet{}
	err := yaml.UnmarshalStrict([]byte(def), s)
	if err != nil {
		panic(err)
	}
	*l = []LoggingOutletEnum{{Ret: s}}
}

var _ yaml.Defaulter = &LoggingOutletEnumList{}

type Global struct {
	Logging    *LoggingOutletEnumList `yaml:"logging,optional,fromdefaults"`
	Monitoring []MonitoringEnum       `yaml:"monitoring,optional"`
}

func Default(i interface{}) {
	v := reflect.ValueOf(i)
	if v.Kind() != reflect.Ptr {
		panic(v)
	}
	y := `{}`
	err := yaml.Unmarshal([]byte(y), v.Interface())
	if err != nil {
		panic(err)
	}
}

type LoggingOutletEnum struct {
	Ret interface{}
}

type LoggingOutletCommon struct {
	Type   string `yaml:"type"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StdoutLoggingOutlet struct {
	LoggingOutletCommon `yaml:",inline"`
	Time                bool `yaml:"time,default=true"`
	Color               bool `yaml:"color,default=true"`
}

type TCPLoggingOutlet struct {
	LoggingOutletCommon `yaml:",inline"`
	Address             string               `yaml:"address"`
	Net                 string               `yaml:"net,default=tcp"`
	RetryInterval       time.Duration        `yaml:"retry_interval,positive,default=10s"`
	TLS                 *TCPLoggingOutletTLS `yaml:"tls,optional"`
}

type TCPLoggingOutletTLS struct {
	CA   string `yaml:"ca"`
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type MonitoringEnum struct {
	Ret interface{}
}

type PrometheusMonitoring struct {
	Type   string `yaml:"type"`
	Listen string `yaml:"listen"`
}

func enumUnmarshal(u func(interface{}, bool) error, types map[string]interface{}) (interface{}, error) {
	var in struct {
		Type string
	}
	if err := u(&in, true); err != nil {
		return nil, err
	}
	if in.Type == "" {
		return nil, &yaml.TypeError{Errors: []string{"must specify type"}}
	}

	v, ok := types[in.Type]
	if !ok {
		return nil, &yaml.TypeError{Errors: []string{fmt.Sprintf("invalid type name %q", in.Type)}}
	}
	if err := u(v, false); err != nil {
		return nil, err
	}
	return v, nil
}

func (t *ConnectEnum) UnmarshalYAML(u func(interface{}, bool) error) (err error) {
	t.Ret, err = enumUnmarshal(u, map[string]interface{}{
		"tcp":  &TCPConnect{},
		"tls":  &TLSConnect{},
		"quic": &QUICConnect{},
	})
	return
}

func (t *LoggingOutletEnum) UnmarshalYAML(u func(interface{}, bool) error) (err error) {
	t.Ret, err = enumUnmarshal(u, map[string]interface{}{
		"stdout": &StdoutLoggingOutlet{},
		"tcp":    &TCPLoggingOutlet{},
	})
	return
}

func (t *MonitoringEnum) UnmarshalYAML(u func(interface{}, bool) error) (err error) {
	t.Ret, err = enumUnmarshal(u, map[string]interface{}{
		"prometheus": &PrometheusMonitoring{},
	})
	return
}

var ConfigFileDefaultLocations = []string{
	"/etc/thriftmux/thriftmux.yml",
	"/usr/local/etc/thriftmux/thriftmux.yml",
}

func ParseConfig(path string) (i *Config, err error) {

	if path == "" {
		// Try default locations
		for _, l := range ConfigFileDefaultLocations {
			stat, statErr := os.Stat(l)
			if statErr != nil {
				continue
			}
			if !stat.Mode().IsRegular() {
				err = errors.Errorf("file at default location is not a regular file: %s", l)
				return
			}
			path = l
			break
		}
	}
	if path == "" {
		return nil, errors.Errorf("no config file found at default locations %v", ConfigFileDefaultLocations)
	}

	var bytes []byte

	if bytes, err = os.ReadFile(path); err != nil {
		return
	}

	return ParseConfigBytes(bytes)
}

func ParseConfigBytes(bytes []byte) (*Config, error) {
	var c *Config
	if err := yaml.UnmarshalStrict(bytes, &c); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("config is empty or only consists of comments")
	}
	if err := c.RPC.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid 'rpc' section")
	}
	return c, nil
}
