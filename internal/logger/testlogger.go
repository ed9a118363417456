package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"
)

type testingLoggerOutlet struct {
	t testing.TB
}

func (o testingLoggerOutlet) WriteEntry(entry Entry) error {
	o.t.Logf("[%s] %s %s", entry.Level.Short(), entry.Message, formatFields(entry.Fields))
	return nil
}

func formatFields(fields Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v ", k, fields[k])
	}
	return strings.TrimSpace(b.String())
}

// NewTestLogger routes all entries to t.Logf.
func NewTestLogger(t testing.TB) Logger {
	outlets := NewOutlets()
	outlets.Add(&testingLoggerOutlet{t}, Debug)
	return NewLogger(outlets, 0)
}

type stderrLoggerOutlet struct{}

func (stderrLoggerOutlet) WriteEntry(entry Entry) error {
	fmt.Fprintf(os.Stderr, "[%s] %s %s\n", entry.Level.Short(), entry.Message, formatFields(entry.Fields))
	return nil
}

func NewStderrDebugLogger() Logger {
	outlets := NewOutlets()
	outlets.Add(&stderrLoggerOutlet{}, Debug)
	return NewLogger(outlets, 0)
}
