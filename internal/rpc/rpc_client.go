// Package rpc is the client entry point: it dials a connection through a
// transport.Connecter and multiplexes calls over it.
package rpc

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/thriftmux/thriftmux/internal/config"
	"github.com/thriftmux/thriftmux/internal/rpc/conn"
	"github.com/thriftmux/thriftmux/internal/rpc/mux"
	"github.com/thriftmux/thriftmux/internal/transport"
	"github.com/thriftmux/thriftmux/internal/util/bytecounter"
	"github.com/thriftmux/thriftmux/internal/util/envconst"
)

type ClientConfig struct {
	Conn conn.Config
	// bound on calls submitted but not yet resolved,
	// zero selects THRIFTMUX_RPC_MAX_OUTSTANDING or DefaultMaxOutstanding
	MaxOutstanding int64
}

const DefaultMaxOutstanding = 1024

// in must be validated
func ClientConfigFromConfig(in *config.RPCConfig) ClientConfig {
	return ClientConfig{
		Conn: conn.Config{
			Transport:                 in.TransportType(),
			Protocol:                  in.ProtocolType(),
			MaxFrameSize:              in.MaxFrameSize,
			RequestTimeout:            in.RequestTimeout,
			AssumeOutOfOrderResponses: in.AssumeOutOfOrderResponses,
			WriteQueueHighWatermark:   in.WriteQueueHighWatermark,
			WriteQueueLowWatermark:    in.WriteQueueLowWatermark,
		},
		MaxOutstanding: in.MaxOutstanding,
	}
}

// Client multiplexes calls over a single connection.
// It does not reconnect: once Done is closed, a new Client must be created.
type Client struct {
	loggers Loggers
	wire    *bytecounter.ReadWriteCloser
	conn    *conn.Conn
	sem     *semaphore.Weighted
}

func NewClient(ctx context.Context, cn transport.Connecter, config ClientConfig, loggers Loggers) (*Client, error) {
	if config.MaxOutstanding <= 0 {
		config.MaxOutstanding = envconst.Int64("THRIFTMUX_RPC_MAX_OUTSTANDING", DefaultMaxOutstanding)
	}
	loggers.General.Debug("connecting")
	wire, err := cn.Connect(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect")
	}
	config.Conn.MuxLog = loggers.Mux
	counted := bytecounter.NewReadWriteCloser(wire)
	c := &Client{
		loggers: loggers,
		wire:    counted,
		conn:    conn.Wrap(counted, config.Conn, loggers.Conn),
		sem:     semaphore.NewWeighted(config.MaxOutstanding),
	}
	loggers.General.WithField("conn", c.conn.ID().String()).Info("connected")
	return c, nil
}

// Invoke calls m and waits for its outcome.
//
// If ctx is done before the call is resolved, Invoke returns ctx.Err() but the
// call keeps its slot until the response arrives or the request times out.
func (c *Client) Invoke(ctx context.Context, m *mux.Method, args []interface{}, headers map[string]string) (interface{}, error) {
	h, err := c.Submit(ctx, mux.NewCall(m, args, headers))
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// Submit sends call once an outstanding slot is free and the connection
// accepts writes. The returned handle is always non-nil if err is nil.
func (c *Client) Submit(ctx context.Context, call *mux.Call) (*mux.Handle, error) {
	if err := c.conn.Err(); err != nil {
		return nil, err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := c.conn.WaitWritable(ctx); err != nil {
		c.sem.Release(1)
		return nil, err
	}
	h := c.conn.Submit(call)
	select {
	case <-h.Done():
		c.sem.Release(1)
	default:
		go func() {
			<-h.Done()
			c.sem.Release(1)
		}()
	}
	return h, nil
}

// Pending is the number of calls awaiting a response.
func (c *Client) Pending() int { return c.conn.Pending() }

// Traffic returns the bytes read from and written to the wire so far,
// framing included.
func (c *Client) Traffic() (read, written uint64) {
	return c.wire.BytesRead(), c.wire.BytesWritten()
}

// Done is closed once the underlying connection failed or was closed.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

// Err returns the error the connection failed with, or nil.
func (c *Client) Err() error { return c.conn.Err() }

func (c *Client) Close() error {
	c.loggers.General.Debug("closing connection")
	if err := c.conn.Close(); err != nil {
		c.loggers.General.WithError(err).Error("cannot close connection")
		return err
	}
	return nil
}
