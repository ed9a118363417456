// Package client implements the thriftmux subcommands.
package client

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/logging"
	"github.com/thriftmux/thriftmux/internal/rpc"
	"github.com/thriftmux/thriftmux/internal/transport/fromconfig"
	"github.com/thriftmux/thriftmux/internal/version"
)

// withLogging builds the configured outlets and makes the resulting logger
// available to every subsystem through the returned context.
func withLogging(ctx context.Context, conf *config.Config) (context.Context, logger.Logger, error) {
	outlets, err := logging.OutletsFromConfig(*conf.Global.Logging)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot build logging from config")
	}
	log := logger.NewLogger(outlets, 1*time.Second)
	return logging.WithSubsystemLoggers(ctx, log), log, nil
}

func dial(ctx context.Context, conf *config.Config) (*rpc.Client, error) {
	cn, err := fromconfig.ConnecterFromConfig(conf.Connect, false)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build connecter from config")
	}
	return rpc.NewClient(ctx, cn, rpc.ClientConfigFromConfig(conf.RPC), rpc.GetLoggersOrPanic(ctx))
}

func newMetricsRegistry() (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	version.PrometheusRegister(registry)
	if err := rpc.PrometheusRegister(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// serveMonitoring starts a metrics endpoint for every prometheus monitoring
// entry. The listeners are closed when ctx is done.
func serveMonitoring(ctx context.Context, conf *config.Config) error {
	log := logging.GetLogger(ctx, logging.SubsysCLI)
	var listens []string
	for _, m := range conf.Global.Monitoring {
		if p, ok := m.Ret.(*config.PrometheusMonitoring); ok {
			listens = append(listens, p.Listen)
		}
	}
	if len(listens) == 0 {
		return nil
	}

	registry, err := newMetricsRegistry()
	if err != nil {
		return errors.Wrap(err, "cannot register metrics")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	for _, listen := range listens {
		l, err := net.Listen("tcp", listen)
		if err != nil {
			return errors.Wrapf(err, "cannot listen on %q", listen)
		}
		go func() {
			<-ctx.Done()
			l.Close()
		}()
		go func(listen string) {
			err := http.Serve(l, mux)
			if err != nil && ctx.Err() == nil {
				log.WithError(err).WithField("listen", listen).Error("error while serving metrics")
			}
		}(listen)
		log.WithField("listen", listen).Info("serving metrics")
	}
	return nil
}
