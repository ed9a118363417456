package bytecounter

import (
	"io"
	"sync/atomic"
)

// ReadWriteCloser counts the bytes passing through a full-duplex stream.
type ReadWriteCloser struct {
	rwc     io.ReadWriteCloser
	read    atomic.Uint64
	written atomic.Uint64
}

var _ io.ReadWriteCloser = &ReadWriteCloser{}

func NewReadWriteCloser(rwc io.ReadWriteCloser) *ReadWriteCloser {
	return &ReadWriteCloser{rwc: rwc}
}

func (c *ReadWriteCloser) Read(p []byte) (int, error) {
	n, err := c.rwc.Read(p)
	if n < 0 {
		panic("expecting n >= 0")
	}
	c.read.Add(uint64(n))
	return n, err
}

func (c *ReadWriteCloser) Write(p []byte) (int, error) {
	n, err := c.rwc.Write(p)
	if n < 0 {
		panic("expecting n >= 0")
	}
	c.written.Add(uint64(n))
	return n, err
}

func (c *ReadWriteCloser) Close() error { return c.rwc.Close() }

func (c *ReadWriteCloser) BytesRead() uint64 { return c.read.Load() }

func (c *ReadWriteCloser) BytesWritten() uint64 { return c.written.Load() }
