package mux

import (
	"sync"
	"sync/atomic"
	"time"
)

// request is the bookkeeping for one submitted call.
type request struct {
	seq      int32
	call     *Call
	started  time.Time
	finished atomic.Bool
	timeout  atomic.Pointer[cancelableBox]
}

type cancelableBox struct{ c Cancelable }

func (r *request) setTimeout(c Cancelable) {
	r.timeout.Store(&cancelableBox{c})
}

func (r *request) cancelTimeout() {
	if b := r.timeout.Load(); b != nil {
		b.c.Cancel()
	}
}

// pendingTable maps sequence ids of outstanding two-way calls to their request.
type pendingTable struct {
	m sync.Map // int32 => *request
	n atomic.Int64
}

func (t *pendingTable) insertIfAbsent(r *request) bool {
	if _, loaded := t.m.LoadOrStore(r.seq, r); loaded {
		return false
	}
	t.n.Add(1)
	prom.PendingRequests.Inc()
	return true
}

func (t *pendingTable) remove(seq int32) (*request, bool) {
	v, ok := t.m.LoadAndDelete(seq)
	if !ok {
		return nil, false
	}
	t.n.Add(-1)
	prom.PendingRequests.Dec()
	return v.(*request), true
}

// removeIf removes r only if it is still the entry for its id.
func (t *pendingTable) removeIf(r *request) bool {
	if !t.m.CompareAndDelete(r.seq, r) {
		return false
	}
	t.n.Add(-1)
	prom.PendingRequests.Dec()
	return true
}

// drain removes every entry and passes it to f.
func (t *pendingTable) drain(f func(r *request)) {
	for t.n.Load() > 0 {
		t.m.Range(func(_, v interface{}) bool {
			r := v.(*request)
			if t.removeIf(r) {
				f(r)
			}
			return true
		})
	}
}

func (t *pendingTable) len() int { return int(t.n.Load()) }
