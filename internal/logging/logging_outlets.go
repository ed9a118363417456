package logging

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/logger"
)

type WriterOutlet struct {
	formatter EntryFormatter
	writer    io.Writer
}

func NewWriterOutlet(formatter EntryFormatter, w io.Writer) WriterOutlet {
	return WriterOutlet{formatter, w}
}

func (h WriterOutlet) WriteEntry(entry logger.Entry) error {
	bytes, err := h.formatter.Format(&entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(append(bytes, '\n'))
	return err
}

// TCPOutlet ships entries to a remote log collector.
// Entries written while the connection is broken are dropped.
type TCPOutlet struct {
	formatter EntryFormatter
	connect   func(ctx context.Context) (net.Conn, error)
	entryChan chan *bytes.Buffer
	closeOnce sync.Once
	done      chan struct{}
}

func NewTCPOutlet(formatter EntryFormatter, network, address string, tlsConfig *tls.Config, retryInterval time.Duration) *TCPOutlet {

	connect := func(ctx context.Context) (conn net.Conn, err error) {
		var dialer net.Dialer
		if tlsConfig != nil {
			td := tls.Dialer{NetDialer: &dialer, Config: tlsConfig}
			return td.DialContext(ctx, network, address)
		}
		return dialer.DialContext(ctx, network, address)
	}

	o := &TCPOutlet{
		formatter: formatter,
		connect:   connect,
		// one message in flight while the previous is in io.Copy()
		entryChan: make(chan *bytes.Buffer, 1),
		done:      make(chan struct{}),
	}

	go o.outLoop(retryInterval)

	return o
}

// Close stops the outlet after the queued entries were attempted.
func (h *TCPOutlet) Close() {
	h.closeOnce.Do(func() { close(h.entryChan) })
	<-h.done
}

func (h *TCPOutlet) outLoop(retryInterval time.Duration) {
	defer close(h.done)

	var retry time.Time
	var conn net.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()
	for msg := range h.entryChan {
		var err error
		if conn == nil {
			if time.Now().Before(retry) {
				continue // drop
			}
			ctx, cancel := context.WithTimeout(context.Background(), retryInterval)
			conn, err = h.connect(ctx)
			cancel()
			if err != nil {
				retry = time.Now().Add(retryInterval)
				conn = nil
				continue
			}
		}
		err = conn.SetWriteDeadline(time.Now().Add(retryInterval))
		if err == nil {
			_, err = io.Copy(conn, msg)
		}
		if err != nil {
			retry = time.Now().Add(retryInterval)
			conn.Close()
			conn = nil
		}
	}
}

func (h *TCPOutlet) WriteEntry(e logger.Entry) error {

	ebytes, err := h.formatter.Format(&e)
	if err != nil {
		return err
	}

	buf := new(bytes.Buffer)
	buf.Write(ebytes)
	buf.WriteString("\n")

	select {
	case h.entryChan <- buf:
		return nil
	default:
		return errors.New("connection broken or not fast enough")
	}
}
