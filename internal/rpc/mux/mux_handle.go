package mux

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Handle is the write-once result slot of a Call.
type Handle struct {
	seq      int32
	done     chan struct{}
	resolved atomic.Bool
	value    interface{}
	err      error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// resolve must be called at most once. The pending request's finished flag
// makes sure of that, a second call is a bug.
func (h *Handle) resolve(value interface{}, err error) {
	if !h.resolved.CompareAndSwap(false, true) {
		panic("mux: call handle resolved twice")
	}
	h.value, h.err = value, err
	close(h.done)
}

// Done is closed once the call is resolved.
func (h *Handle) Done() <-chan struct{} { return h.done }

// SequenceID is the id the call was sent with.
// It is only meaningful once Submit has returned.
func (h *Handle) SequenceID() int32 { return h.seq }

var ErrNotResolved = errors.New("call not resolved yet")

// Result returns the outcome of a resolved call, or ErrNotResolved.
func (h *Handle) Result() (interface{}, error) {
	select {
	case <-h.done:
		return h.value, h.err
	default:
		return nil, ErrNotResolved
	}
}

// Wait blocks until the call is resolved or ctx is done.
// Giving up on ctx does not cancel the call.
func (h *Handle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
