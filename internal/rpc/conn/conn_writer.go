package conn

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/logger"
	"github.com/thriftmux/thriftmux/internal/rpc/frame"
	"github.com/thriftmux/thriftmux/internal/rpc/framecodec"
	"github.com/thriftmux/thriftmux/internal/rpc/frameconn"
	"github.com/thriftmux/thriftmux/internal/rpc/mux"
	"github.com/thriftmux/thriftmux/internal/util/chainlock"
)

var ErrWriterClosed = errors.New("connection writer closed")

type writeItem struct {
	f    frame.Frame
	done func(err error)
}

// writeQueue is the outbound side of a Conn.
// A single goroutine drains the queue onto the wire in submission order.
//
// The queue is unbounded. Callers that want backpressure use waitWritable:
// once more than high bytes are queued the queue is not writable until
// the writer has brought it down to low bytes.
type writeQueue struct {
	fc    *frameconn.Conn
	codec *framecodec.SimpleCodec
	log   logger.Logger

	high, low int

	mtx         *chainlock.L
	nonEmpty    *sync.Cond
	items       []writeItem
	queuedBytes int
	// nil while writable, closed on the transition back to writable
	writable chan struct{}
	closed   bool
	stopped  chan struct{}

	// closed once the wire is shut down, shutdownErr is valid from then on
	shutdownDone chan struct{}
	shutdownErr  error
}

var _ mux.Channel = (*writeQueue)(nil)

func newWriteQueue(fc *frameconn.Conn, codec *framecodec.SimpleCodec, high, low int, log logger.Logger) *writeQueue {
	if low > high {
		low = high
	}
	q := &writeQueue{
		fc:           fc,
		codec:        codec,
		log:          log,
		high:         high,
		low:          low,
		mtx:          chainlock.New(),
		stopped:      make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}
	q.nonEmpty = q.mtx.NewCond()
	return q
}

func (q *writeQueue) Write(f frame.Frame, done func(err error)) {
	q.mtx.Lock()
	if q.closed {
		q.mtx.Unlock()
		f.Release()
		done(ErrWriterClosed)
		return
	}
	q.items = append(q.items, writeItem{f, done})
	q.queuedBytes += len(f.Message())
	if q.writable == nil && q.queuedBytes > q.high {
		debug("write queue not writable, queued=%d high=%d", q.queuedBytes, q.high)
		q.writable = make(chan struct{})
	}
	q.nonEmpty.Signal()
	q.mtx.Unlock()
}

// Close fails queued frames and shuts the wire down.
func (q *writeQueue) Close() error {
	q.mtx.Lock()
	if q.closed {
		q.mtx.Unlock()
		return nil
	}
	q.closed = true
	items := q.items
	q.items = nil
	q.queuedBytes = 0
	q.signalWritable()
	q.nonEmpty.Broadcast()
	q.mtx.Unlock()

	for _, item := range items {
		item.f.Release()
		item.done(ErrWriterClosed)
	}
	q.shutdownErr = q.fc.Shutdown()
	close(q.shutdownDone)
	return q.shutdownErr
}

// callers must hold mtx
func (q *writeQueue) signalWritable() {
	if q.writable != nil {
		close(q.writable)
		q.writable = nil
	}
}

func (q *writeQueue) waitWritable(ctx context.Context) error {
	q.mtx.Lock()
	ch := q.writable
	q.mtx.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *writeQueue) run() {
	defer close(q.stopped)
	defer q.mtx.Lock().Unlock()
	for {
		for len(q.items) == 0 && !q.closed {
			q.nonEmpty.Wait()
		}
		if q.closed {
			return
		}
		item := q.items[0]
		q.items[0] = writeItem{}
		q.items = q.items[1:]

		var err error
		n := len(item.f.Message())
		q.mtx.DropWhile(func() {
			buf := q.codec.Encode(item.f)
			err = q.fc.WriteFrame(buf.Bytes())
			buf.Release()
		})

		q.queuedBytes -= n
		if q.queuedBytes < 0 {
			// Close reset the counter while we were writing
			q.queuedBytes = 0
		}
		if q.queuedBytes <= q.low {
			q.signalWritable()
		}
		if err != nil {
			q.log.WithError(err).WithField("seq", item.f.SequenceID).Debug("write failed")
		}
		q.mtx.DropWhile(func() { item.done(err) })
	}
}
