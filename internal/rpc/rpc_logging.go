package rpc

import (
	"context"

	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/logging"
)

type Logger = logger.Logger

// All fields must be non-nil
type Loggers struct {
	General Logger
	Conn    Logger
	Mux     Logger
}

func GetLoggersOrPanic(ctx context.Context) Loggers {
	return Loggers{
		General: logging.GetLogger(ctx, logging.SubsysRPC),
		Conn:    logging.GetLogger(ctx, logging.SubsysRPCConn),
		Mux:     logging.GetLogger(ctx, logging.SubsysRPCMux),
	}
}
