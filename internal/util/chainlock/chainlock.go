// Package chainlock implements a mutex whose Lock and Unlock
// methods return the lock itself, to enable chaining.
//
//	defer q.mtx.Lock().Unlock()
//	q.mtx.DropWhile(func() { write(item) })
package chainlock

import "sync"

type L struct {
	mtx sync.Mutex
}

func New() *L {
	return &L{}
}

func (l *L) Lock() *L {
	l.mtx.Lock()
	return l
}

func (l *L) Unlock() *L {
	l.mtx.Unlock()
	return l
}

// NewCond returns a condition variable bound to l.
func (l *L) NewCond() *sync.Cond {
	return sync.NewCond(&l.mtx)
}

// DropWhile releases l while f runs. l must be held.
func (l *L) DropWhile(f func()) {
	defer l.Unlock().Lock()
	f()
}
