package logger

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Levels ordered least severe to most severe
var AllLevels = []Level{Debug, Info, Warn, Error}

var levelNames = [...]struct{ long, short string }{
	Debug: {"debug", "DEBG"},
	Info:  {"info", "INFO"},
	Warn:  {"warn", "WARN"},
	Error: {"error", "ERRO"},
}

func (l Level) valid() bool { return l >= Debug && l <= Error }

// Short is the fixed-width tag used by line-oriented formatters.
func (l Level) Short() string {
	if !l.valid() {
		return fmt.Sprintf("%d", int(l))
	}
	return levelNames[l].short
}

func (l Level) String() string {
	if !l.valid() {
		return fmt.Sprintf("%d", int(l))
	}
	return levelNames[l].long
}

func ParseLevel(s string) (Level, error) {
	for _, l := range AllLevels {
		if s == levelNames[l].long {
			return l, nil
		}
	}
	return -1, errors.Errorf("unknown level '%s'", s)
}

type Fields map[string]interface{}

type Entry struct {
	Level   Level
	Message string
	Time    time.Time
	Fields  Fields
}

// Outlet writes entries to a destination. WriteEntry must not block for long:
// the logger waits for all outlets of a level before the log call returns.
type Outlet interface {
	WriteEntry(entry Entry) error
}

// Outlets maps each level to the outlets that receive entries of that level.
type Outlets struct {
	mtx     sync.RWMutex
	byLevel [len(levelNames)][]Outlet
}

func NewOutlets() *Outlets { return &Outlets{} }

func (os *Outlets) clone() *Outlets {
	os.mtx.RLock()
	defer os.mtx.RUnlock()
	c := &Outlets{}
	for l, outs := range os.byLevel {
		c.byLevel[l] = append([]Outlet(nil), outs...)
	}
	return c
}

// Add registers outlet for minLevel and every more severe level.
func (os *Outlets) Add(outlet Outlet, minLevel Level) {
	if minLevel < Debug {
		minLevel = Debug
	}
	os.mtx.Lock()
	defer os.mtx.Unlock()
	for l := minLevel; l <= Error; l++ {
		os.byLevel[l] = append(os.byLevel[l], outlet)
	}
}

func (os *Outlets) Get(level Level) []Outlet {
	if !level.valid() {
		return nil
	}
	os.mtx.RLock()
	defer os.mtx.RUnlock()
	return os.byLevel[level]
}

// errorOutlet receives failures of other outlets: the first outlet that
// accepts errors, or nil.
func (os *Outlets) errorOutlet() Outlet {
	outs := os.Get(Error)
	if len(outs) == 0 {
		return nil
	}
	return outs[0]
}
