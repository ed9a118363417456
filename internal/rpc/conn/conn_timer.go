package conn

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/thriftmux/thriftmux/internal/rpc/mux"
)

var ErrExecutorClosed = errors.New("timer executor closed")

// timerExecutor runs request timeouts on the runtime timer heap.
type timerExecutor struct {
	mtx    sync.Mutex
	closed bool
}

var _ mux.Executor = (*timerExecutor)(nil)

type afterFunc struct {
	t *time.Timer
}

func (a afterFunc) Cancel() bool { return a.t.Stop() }

func (e *timerExecutor) Schedule(delay time.Duration, f func()) (mux.Cancelable, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.closed {
		return nil, ErrExecutorClosed
	}
	return afterFunc{time.AfterFunc(delay, f)}, nil
}

// close makes further Schedule calls fail. Timers already scheduled still fire.
func (e *timerExecutor) close() {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.closed = true
}
