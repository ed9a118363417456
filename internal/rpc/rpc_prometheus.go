package rpc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/thriftmux/thriftmux/internal/rpc/frameconn"
	"github.com/thriftmux/thriftmux/internal/rpc/mux"
)

func PrometheusRegister(registry prometheus.Registerer) error {
	if err := frameconn.PrometheusRegister(registry); err != nil {
		return err
	}
	if err := mux.PrometheusRegister(registry); err != nil {
		return err
	}
	return nil
}
