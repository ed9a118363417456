package frameconn

import "github.com/prometheus/client_golang/prometheus"

var prom struct {
	FramesRead          prometheus.Counter
	FramesWritten       prometheus.Counter
	BytesRead           prometheus.Counter
	BytesWritten        prometheus.Counter
	FramesTooLarge      *prometheus.CounterVec
	ShutdownCloseErrors prometheus.Counter
}

func init() {
	prom.FramesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "frameconn",
		Name:      "frames_read",
		Help:      "Number of complete messages read from connections",
	})
	prom.FramesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "frameconn",
		Name:      "frames_written",
		Help:      "Number of messages written to connections",
	})
	prom.BytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "frameconn",
		Name:      "payload_bytes_read",
		Help:      "Message payload bytes read, excluding framing",
	})
	prom.BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "frameconn",
		Name:      "payload_bytes_written",
		Help:      "Message payload bytes written, excluding framing",
	})
	prom.FramesTooLarge = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "frameconn",
		Name:      "frames_too_large",
		Help:      "Number of inbound messages discarded because they exceeded the maximum frame size",
	}, []string{"transport"})
	prom.ShutdownCloseErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "frameconn",
		Name:      "shutdown_close_errors",
		Help:      "Number of errors closing the underlying network connection. Should alert on this",
	})
}

func PrometheusRegister(registry prometheus.Registerer) error {
	if err := registry.Register(prom.FramesRead); err != nil {
		return err
	}
	if err := registry.Register(prom.FramesWritten); err != nil {
		return err
	}
	if err := registry.Register(prom.BytesRead); err != nil {
		return err
	}
	if err := registry.Register(prom.BytesWritten); err != nil {
		return err
	}
	if err := registry.Register(prom.FramesTooLarge); err != nil {
		return err
	}
	if err := registry.Register(prom.ShutdownCloseErrors); err != nil {
		return err
	}
	return nil
}
