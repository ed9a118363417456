package frameconn

import (
	"bufio"
	"context"
	"math"

	"github.com/pkg/errors"
)

// recordingTransport is a read-only thrift.TTransport that keeps a copy of
// everything read, up to max bytes.
type recordingTransport struct {
	r        *bufio.Reader
	max      int
	rec      []byte
	n        int64
	overflow bool
}

func (t *recordingTransport) record(p []byte) {
	t.n += int64(len(p))
	if t.overflow {
		return
	}
	if len(t.rec)+len(p) > t.max {
		t.overflow = true
		t.rec = nil
		return
	}
	t.rec = append(t.rec, p...)
}

func (t *recordingTransport) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.record(p[:n])
	return n, err
}

func (t *recordingTransport) ReadByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err == nil {
		t.record([]byte{b})
	}
	return b, err
}

func (t *recordingTransport) Write(p []byte) (int, error) {
	return 0, errors.New("recordingTransport is read-only")
}

func (t *recordingTransport) Close() error                    { return nil }
func (t *recordingTransport) Flush(ctx context.Context) error { return nil }
func (t *recordingTransport) RemainingBytes() uint64          { return math.MaxUint64 }
func (t *recordingTransport) IsOpen() bool                    { return true }
func (t *recordingTransport) Open() error                     { return nil }
