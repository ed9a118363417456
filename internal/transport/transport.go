// Package transport establishes the byte streams that rpc connections run on.
package transport

import (
	"context"
	"io"

	"github.com/thriftmux/thriftmux/internal/logger"
)

// Wire is a full-duplex byte stream. Close must unblock pending Read and Write calls.
type Wire = io.ReadWriteCloser

type Connecter interface {
	Connect(ctx context.Context) (Wire, error)
}

type contextKey int

const contextKeyLog contextKey = 0

type Logger = logger.Logger

func WithLogger(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, contextKeyLog, log)
}

func GetLogger(ctx context.Context) Logger {
	if log, ok := ctx.Value(contextKeyLog).(Logger); ok {
		return log
	}
	return logger.NewNullLogger()
}
