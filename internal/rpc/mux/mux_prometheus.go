package mux

import "github.com/prometheus/client_golang/prometheus"

var prom struct {
	PendingRequests     prometheus.Gauge
	RequestsCompleted   *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	ConnectionTeardowns prometheus.Counter
}

func init() {
	prom.PendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "thriftmux",
		Subsystem: "mux",
		Name:      "pending_requests",
		Help:      "Number of two-way requests awaiting a response",
	})
	prom.RequestsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "mux",
		Name:      "requests_completed",
		Help:      "Number of resolved requests by outcome",
	}, []string{"outcome"})
	prom.RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "thriftmux",
		Subsystem: "mux",
		Name:      "request_duration_seconds",
		Help:      "Time from submission to resolution of a request",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	prom.ConnectionTeardowns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "thriftmux",
		Subsystem: "mux",
		Name:      "connection_teardowns",
		Help:      "Number of connections torn down because of a connection-fatal error",
	})
}

func PrometheusRegister(registry prometheus.Registerer) error {
	if err := registry.Register(prom.PendingRequests); err != nil {
		return err
	}
	if err := registry.Register(prom.RequestsCompleted); err != nil {
		return err
	}
	if err := registry.Register(prom.RequestDuration); err != nil {
		return err
	}
	if err := registry.Register(prom.ConnectionTeardowns); err != nil {
		return err
	}
	return nil
}
