// Package bufpool provides reference-counted byte buffers backed by
// power-of-two sized free lists.
//
// Every *Buffer has exactly one owner at a time. The owner either hands the
// buffer on (ownership transfer) or calls Release. Retain creates an
// additional reference for a second owner.
package bufpool

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

const maxFreeListLen = 16

type pool struct {
	mtx   sync.Mutex
	bufs  [][]byte
	shift uint
}

func (p *pool) Put(buf []byte) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if len(buf) != 1<<p.shift {
		panic(fmt.Sprintf("implementation error: %v %v", len(buf), 1<<p.shift))
	}
	if len(p.bufs) >= maxFreeListLen {
		return
	}
	p.bufs = append(p.bufs, buf)
}

func (p *pool) Get() []byte {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if len(p.bufs) > 0 {
		ret := p.bufs[len(p.bufs)-1]
		p.bufs = p.bufs[0 : len(p.bufs)-1]
		return ret
	}
	return make([]byte, 1<<p.shift)
}

type Pool struct {
	minShift    uint
	maxShift    uint
	pools       []pool
	onNoFit     NoFitBehavior
	outstanding atomic.Int64
}

type NoFitBehavior uint

const (
	AllocateSmaller NoFitBehavior = 1 << iota
	AllocateLarger

	Allocate NoFitBehavior = AllocateSmaller | AllocateLarger
	Panic    NoFitBehavior = 0
)

func (b NoFitBehavior) String() string {
	switch b {
	case AllocateSmaller:
		return "AllocateSmaller"
	case AllocateLarger:
		return "AllocateLarger"
	case Allocate:
		return "Allocate"
	case Panic:
		return "Panic"
	default:
		return fmt.Sprintf("NoFitBehavior(%d)", uint(b))
	}
}

func New(minShift, maxShift uint, noFitBehavior NoFitBehavior) *Pool {
	if minShift > 63 || maxShift > 63 {
		panic(fmt.Sprintf("{min|max}Shift are the _exponent_, got minShift=%v maxShift=%v and limit of 63, which amounts to %v bits", minShift, maxShift, uint64(1)<<63))
	}
	if minShift > maxShift {
		panic(fmt.Sprintf("minShift=%v > maxShift=%v", minShift, maxShift))
	}
	pools := make([]pool, maxShift-minShift+1)
	for i := uint(0); i < uint(len(pools)); i++ {
		pools[i] = pool{
			shift: minShift + i,
			bufs:  make([][]byte, 0, maxFreeListLen),
		}
	}
	return &Pool{
		minShift: minShift,
		maxShift: maxShift,
		pools:    pools,
		onNoFit:  noFitBehavior,
	}
}

// Default is shared by connections that do not bring their own pool.
var Default = New(9, 22, Allocate)

func fittingShift(x uint) uint {
	if x == 0 {
		return 0
	}
	blen := uint(bits.Len(x))
	if 1<<(blen-1) == x {
		return blen - 1
	}
	return blen
}

// returns buf == nil if the request fits into one of the free lists
func (p *Pool) handlePotentialNoFit(size uint, reqShift uint) (buf []byte, recycle bool) {
	if size == 0 {
		if p.onNoFit&AllocateSmaller != 0 {
			return []byte{}, false
		}
		goto doPanic
	}
	if reqShift < p.minShift {
		if p.onNoFit&AllocateSmaller != 0 {
			// round up to the smallest class so the slice can be recycled
			return p.pools[0].Get(), true
		}
		goto doPanic
	}
	if reqShift > p.maxShift {
		if p.onNoFit&AllocateLarger != 0 {
			return make([]byte, 1<<reqShift), false
		}
		goto doPanic
	}
	return nil, false
doPanic:
	panic(fmt.Sprintf("bufpool: configured to panic on size=%v shift=%v (minShift=%v maxShift=%v)", size, reqShift, p.minShift, p.maxShift))
}

// Get returns a buffer with Len() == size and a reference count of one.
// The contents are not zeroed.
func (p *Pool) Get(size uint) *Buffer {
	shift := fittingShift(size)
	var (
		raw     []byte
		recycle bool
	)
	if b, r := p.handlePotentialNoFit(size, shift); b != nil {
		raw, recycle = b, r
	} else {
		raw, recycle = p.pools[shift-p.minShift].Get(), true
	}
	p.outstanding.Add(1)
	buf := &Buffer{
		shiftBuf:   raw,
		payloadLen: size,
		pool:       p,
		recycle:    recycle,
	}
	buf.refs.Store(1)
	return buf
}

// Outstanding is the number of buffers obtained through Get that have not
// been released by all of their owners.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

func (p *Pool) put(b *Buffer) {
	if b.pool != p {
		panic("putting buffer to pool where it didn't originate from")
	}
	p.outstanding.Add(-1)
	if !b.recycle {
		return
	}
	buf := b.shiftBuf
	if bits.OnesCount(uint(len(buf))) != 1 {
		panic(fmt.Sprintf("putting buffer that is not power of two len: %v", len(buf)))
	}
	shift := fittingShift(uint(len(buf)))
	if shift < p.minShift || shift > p.maxShift {
		return // drop it
	}
	p.pools[shift-p.minShift].Put(buf)
}

type Buffer struct {
	// power of 2 if recycle is set
	shiftBuf   []byte
	payloadLen uint
	refs       atomic.Int32
	// nil for buffers created through Wrap
	pool    *Pool
	recycle bool
}

// Wrap turns b into a Buffer that is not backed by any pool.
func Wrap(b []byte) *Buffer {
	buf := &Buffer{shiftBuf: b, payloadLen: uint(len(b))}
	buf.refs.Store(1)
	return buf
}

func (b *Buffer) Bytes() []byte {
	if b.refs.Load() <= 0 {
		panic("bufpool: use of released buffer")
	}
	return b.shiftBuf[0:b.payloadLen]
}

func (b *Buffer) Len() int { return int(b.payloadLen) }

func (b *Buffer) Shrink(newPayloadLen uint) {
	if newPayloadLen > b.payloadLen {
		panic(fmt.Sprintf("shrink is actually an expand, invalid: %v %v", newPayloadLen, b.payloadLen))
	}
	b.payloadLen = newPayloadLen
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int32 { return b.refs.Load() }

// Retain adds a reference and returns b.
func (b *Buffer) Retain() *Buffer {
	for {
		cur := b.refs.Load()
		if cur <= 0 {
			panic("bufpool: retain of released buffer")
		}
		if b.refs.CompareAndSwap(cur, cur+1) {
			return b
		}
	}
}

// Release drops a reference. The last Release returns the memory to the pool.
// Releasing a buffer that has no references left panics.
func (b *Buffer) Release() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic("bufpool: buffer released more often than retained")
	}
	if n == 0 && b.pool != nil {
		b.pool.put(b)
	}
}
